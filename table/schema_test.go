package table

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchemaRoundTrip(t *testing.T) {
	t.Parallel()

	metadata := arrow.MetadataFrom(map[string]string{"run_id": "abc123"})
	schema := BuildSchema(metadata)

	require.Equal(t, 3, schema.NumFields())
	assert.Equal(t, "read_id", schema.Field(0).Name)
	assert.Equal(t, "signal", schema.Field(1).Name)
	assert.Equal(t, "samples", schema.Field(2).Name)

	idx := schema.Metadata().FindKey("run_id")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "abc123", schema.Metadata().Values()[idx])

	loc, err := ReadSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, 0, loc.ReadID)
	assert.Equal(t, 1, loc.Signal)
	assert.Equal(t, 2, loc.Samples)
	assert.Equal(t, UncompressedSignal, loc.SignalType)
}

func TestReadSchemaVbzVariant(t *testing.T) {
	t.Parallel()

	schema := BuildSchemaWithSignalType(VbzSignal, arrow.Metadata{})
	loc, err := ReadSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, VbzSignal, loc.SignalType)
	assert.Equal(t, arrow.LARGE_BINARY, schema.Field(loc.Signal).Type.ID())
}

func TestReadSchemaMissingField(t *testing.T) {
	t.Parallel()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: extensions.NewUUIDType()},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
	}, nil)

	_, err := ReadSchema(schema)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "signal", schemaErr.Field)
	assert.Contains(t, err.Error(), "signal")
}

func TestReadSchemaWrongSamplesType(t *testing.T) {
	t.Parallel()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: extensions.NewUUIDType()},
		{Name: "signal", Type: arrow.LargeListOf(arrow.PrimitiveTypes.Int16)},
		{Name: "samples", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	_, err := ReadSchema(schema)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "samples", schemaErr.Field)
	assert.Contains(t, err.Error(), "int32")
}

func TestReadSchemaRejectsPlainBinaryReadID(t *testing.T) {
	t.Parallel()

	// Matching byte width is not enough: read_id must carry the uuid
	// extension tag.
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: &arrow.FixedSizeBinaryType{ByteWidth: 16}},
		{Name: "signal", Type: arrow.LargeListOf(arrow.PrimitiveTypes.Int16)},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
	}, nil)

	_, err := ReadSchema(schema)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "read_id", schemaErr.Field)
}

func TestReadSchemaRejectsNarrowList(t *testing.T) {
	t.Parallel()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: extensions.NewUUIDType()},
		{Name: "signal", Type: arrow.ListOf(arrow.PrimitiveTypes.Int16)},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
	}, nil)

	_, err := ReadSchema(schema)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "signal", schemaErr.Field)
}

func TestReadSchemaRejectsWrongListElement(t *testing.T) {
	t.Parallel()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "read_id", Type: extensions.NewUUIDType()},
		{Name: "signal", Type: arrow.LargeListOf(arrow.PrimitiveTypes.Int32)},
		{Name: "samples", Type: arrow.PrimitiveTypes.Uint32},
	}, nil)

	_, err := ReadSchema(schema)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "signal", schemaErr.Field)
}
