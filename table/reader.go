package table

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/extensions"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"

	"github.com/TFMV/squiggle/signal"
)

// decoded vbz signals kept per reader; decoding dominates scan cost
// when rows are revisited.
const signalCacheSize = 128

// Read is one row of the signal table.
type Read struct {
	ID      uuid.UUID
	Signal  []int16
	Samples uint32
}

// Reader scans a signal table back from a record-batch stream. The
// schema is re-validated on open, never trusted, and both signal
// storage variants are handled; vbz blobs are decoded on access with a
// small LRU cache keyed by row index.
type Reader struct {
	fields  FieldLocations
	schema  *arrow.Schema
	records []arrow.Record
	starts  []int64
	numRows int64
	signals *lru.Cache
}

// NewReader opens a signal table from r, validating its schema and
// loading its record batches into memory.
func NewReader(r io.Reader, mem memory.Allocator) (*Reader, error) {
	if mem == nil {
		mem = Pool
	}
	ir, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("signal table: opening stream: %w", err)
	}
	defer ir.Release()

	fields, err := ReadSchema(ir.Schema())
	if err != nil {
		return nil, err
	}

	rd := &Reader{
		fields:  fields,
		schema:  ir.Schema(),
		signals: lru.New(signalCacheSize),
	}
	for ir.Next() {
		rec := ir.Record()
		rec.Retain()
		rd.records = append(rd.records, rec)
		rd.starts = append(rd.starts, rd.numRows)
		rd.numRows += rec.NumRows()
	}
	if err := ir.Err(); err != nil && err != io.EOF {
		rd.Close()
		return nil, fmt.Errorf("signal table: reading stream: %w", err)
	}
	return rd, nil
}

// Schema returns the validated table schema.
func (r *Reader) Schema() *arrow.Schema {
	return r.schema
}

// SignalType reports how the table stores signal data.
func (r *Reader) SignalType() SignalType {
	return r.fields.SignalType
}

// NumReads returns the total row count across all batches.
func (r *Reader) NumReads() int64 {
	return r.numRows
}

// locate maps a table-global row index to its batch and in-batch row.
func (r *Reader) locate(row int64) (arrow.Record, int) {
	lo, hi := 0, len(r.starts)
	for lo+1 < hi {
		if mid := (lo + hi) / 2; r.starts[mid] <= row {
			lo = mid
		} else {
			hi = mid
		}
	}
	return r.records[lo], int(row - r.starts[lo])
}

// ReadAt returns the read at the given table-global row index.
func (r *Reader) ReadAt(row int64) (Read, error) {
	if row < 0 || row >= r.numRows {
		return Read{}, fmt.Errorf("signal table: row %d out of range [0, %d)", row, r.numRows)
	}
	rec, i := r.locate(row)

	ids := rec.Column(r.fields.ReadID).(*extensions.UUIDArray)
	samples := rec.Column(r.fields.Samples).(*array.Uint32)
	out := Read{
		ID:      ids.Value(i),
		Samples: samples.Value(i),
	}

	sig, err := r.signalAt(rec, i, row, out.Samples)
	if err != nil {
		return Read{}, err
	}
	out.Signal = sig
	return out, nil
}

func (r *Reader) signalAt(rec arrow.Record, i int, row int64, sampleCount uint32) ([]int16, error) {
	if r.fields.SignalType == VbzSignal {
		var decoded []int16
		if cached, ok := r.signals.Get(row); ok {
			decoded = cached.([]int16)
		} else {
			blob := rec.Column(r.fields.Signal).(*array.LargeBinary)
			var err error
			decoded, err = signal.Decompress(blob.Value(i), int(sampleCount))
			if err != nil {
				return nil, fmt.Errorf("signal table: row %d: %w", row, err)
			}
			r.signals.Add(row, decoded)
		}
		// The cache keeps ownership; hand the caller a copy so both
		// storage variants return freely mutable signals.
		sig := make([]int16, len(decoded))
		copy(sig, decoded)
		return sig, nil
	}

	list := rec.Column(r.fields.Signal).(*array.LargeList)
	start, end := list.ValueOffsets(i)
	values := list.ListValues().(*array.Int16)
	sig := make([]int16, end-start)
	copy(sig, values.Int16Values()[start:end])
	return sig, nil
}

// ReadAll returns every read in table row order.
func (r *Reader) ReadAll() ([]Read, error) {
	reads := make([]Read, 0, r.numRows)
	for row := int64(0); row < r.numRows; row++ {
		rd, err := r.ReadAt(row)
		if err != nil {
			return nil, err
		}
		reads = append(reads, rd)
	}
	return reads, nil
}

// Close releases the retained record batches.
func (r *Reader) Close() {
	for _, rec := range r.records {
		rec.Release()
	}
	r.records = nil
	r.starts = nil
	r.numRows = 0
}
