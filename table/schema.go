// Package table implements the signal table of a squiggle file: a
// record-batch stream holding one row per read, keyed by read id, with
// the raw or vbz-compressed signal and its sample count.
package table

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/extensions"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Pool is the Go memory allocator used by Arrow when callers do not
// supply their own.
var Pool = memory.NewGoAllocator()

func init() {
	// The uuid extension must be registered so IPC readers rebuild the
	// read_id column as an extension array rather than raw binary.
	if arrow.GetExtensionType("arrow.uuid") == nil {
		if err := arrow.RegisterExtensionType(extensions.NewUUIDType()); err != nil {
			panic(fmt.Sprintf("table: registering uuid extension: %v", err))
		}
	}
}

// SignalType selects how the signal column stores sample data.
type SignalType int

const (
	// UncompressedSignal stores samples as a large_list<int16>.
	UncompressedSignal SignalType = iota
	// VbzSignal stores each read's samples as one vbz-compressed blob
	// in a large_binary column. The samples column carries the element
	// count needed to decode it.
	VbzSignal
)

func (t SignalType) String() string {
	switch t {
	case UncompressedSignal:
		return "uncompressed"
	case VbzSignal:
		return "vbz"
	default:
		return fmt.Sprintf("SignalType(%d)", int(t))
	}
}

// SchemaError reports a signal table schema that is missing a field or
// carries one with the wrong type. The message names the field and the
// type actually found so a bad file can be diagnosed without other
// tooling.
type SchemaError struct {
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("signal table schema: field %q %s", e.Field, e.Detail)
}

// FieldLocations holds the column positions of the three signal table
// fields, plus the signal storage variant. Locations are derived once
// per table handle and never assumed for a schema that arrives from
// outside this package.
type FieldLocations struct {
	ReadID  int
	Signal  int
	Samples int

	SignalType SignalType
}

func signalDataType(signalType SignalType) arrow.DataType {
	if signalType == VbzSignal {
		return arrow.BinaryTypes.LargeBinary
	}
	return arrow.LargeListOf(arrow.PrimitiveTypes.Int16)
}

// BuildSchema returns the canonical signal table schema: read_id
// (uuid extension), signal (large_list<int16>, 64-bit offsets so the
// file's total sample count may pass 2^31), samples (uint32). The
// caller's metadata is attached unchanged.
func BuildSchema(metadata arrow.Metadata) *arrow.Schema {
	return BuildSchemaWithSignalType(UncompressedSignal, metadata)
}

// BuildSchemaWithSignalType is BuildSchema with an explicit signal
// storage variant; VbzSignal swaps the signal column for large_binary.
func BuildSchemaWithSignalType(signalType SignalType, metadata arrow.Metadata) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: extensions.NewUUIDType()},
		{Name: "signal", Type: signalDataType(signalType)},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
	}, &metadata)
}

// ReadSchema locates and validates the three signal table fields in a
// schema received from outside, returning their positions and the
// signal storage variant. read_id must carry the registered uuid
// extension tag; a plain fixed-size binary of the right width is
// rejected. signal must be either large_list<int16> or large_binary.
// samples must be exactly uint32.
func ReadSchema(schema *arrow.Schema) (FieldLocations, error) {
	var loc FieldLocations

	readIDIdx := schema.FieldIndices("read_id")
	if len(readIDIdx) == 0 {
		return loc, &SchemaError{Field: "read_id", Detail: "is missing"}
	}
	loc.ReadID = readIDIdx[0]
	readIDType := schema.Field(loc.ReadID).Type
	ext, ok := readIDType.(arrow.ExtensionType)
	if !ok {
		return loc, &SchemaError{Field: "read_id",
			Detail: fmt.Sprintf("has incorrect type %s, expected the uuid extension", readIDType)}
	}
	if ext.ExtensionName() != "arrow.uuid" {
		return loc, &SchemaError{Field: "read_id",
			Detail: fmt.Sprintf("has incorrect extension type %q, expected %q",
				ext.ExtensionName(), "arrow.uuid")}
	}

	signalIdx := schema.FieldIndices("signal")
	if len(signalIdx) == 0 {
		return loc, &SchemaError{Field: "signal", Detail: "is missing"}
	}
	loc.Signal = signalIdx[0]
	switch signalType := schema.Field(loc.Signal).Type.(type) {
	case *arrow.LargeListType:
		if signalType.Elem().ID() != arrow.INT16 {
			return loc, &SchemaError{Field: "signal",
				Detail: fmt.Sprintf("has incorrect list value type %s, expected int16",
					signalType.Elem())}
		}
		loc.SignalType = UncompressedSignal
	case *arrow.LargeBinaryType:
		loc.SignalType = VbzSignal
	default:
		return loc, &SchemaError{Field: "signal",
			Detail: fmt.Sprintf("has incorrect type %s, expected large_list<int16> or large_binary",
				schema.Field(loc.Signal).Type)}
	}

	samplesIdx := schema.FieldIndices("samples")
	if len(samplesIdx) == 0 {
		return loc, &SchemaError{Field: "samples", Detail: "is missing"}
	}
	loc.Samples = samplesIdx[0]
	if samplesType := schema.Field(loc.Samples).Type; samplesType.ID() != arrow.UINT32 {
		return loc, &SchemaError{Field: "samples",
			Detail: fmt.Sprintf("has incorrect type %s, expected uint32", samplesType)}
	}

	return loc, nil
}
