package table

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/extensions"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TFMV/squiggle/signal"
)

var (
	// ErrClosed reports an operation on a writer that has been closed.
	ErrClosed = errors.New("signal table: writer is closed")
	// ErrNilReadID reports a read staged with the nil uuid.
	ErrNilReadID = errors.New("signal table: read id must not be the nil uuid")
	// ErrSignalTooLong reports a signal whose length cannot be recorded
	// in the uint32 samples column.
	ErrSignalTooLong = errors.New("signal table: signal length exceeds uint32 range")
)

var (
	flushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "squiggle_signal_flush_latency_seconds",
		Help: "Signal table batch flush latency distribution",
	})
	rowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squiggle_signal_rows_written_total",
		Help: "Signal table rows flushed to the sink",
	})
	batchesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squiggle_signal_batches_written_total",
		Help: "Signal table record batches flushed to the sink",
	})
)

func init() {
	prometheus.MustRegister(flushLatency, rowsWritten, batchesWritten)
}

// Writer appends reads to a signal table, buffering them into column
// builders and writing them to the sink one record batch at a time.
//
// A Writer owns its sink and builders exclusively and performs no
// internal locking; callers needing concurrency must serialize access
// or use independent writers against independent sinks. It must be
// closed exactly once, after which every operation fails with ErrClosed.
type Writer struct {
	mem    memory.Allocator
	schema *arrow.Schema
	fields FieldLocations

	sink io.Writer
	ipc  *ipc.Writer

	builder        *array.RecordBuilder
	readIDBuilder  *extensions.UUIDBuilder
	signalBuilder  *array.LargeListBuilder
	signalValues   *array.Int16Builder
	vbzBuilder     *array.BinaryBuilder
	samplesBuilder *array.Uint32Builder

	// A batch whose write failed is retained here and retried before
	// anything staged after it, so a flush failure never drops rows.
	retained     arrow.Record
	retainedRows int64

	pendingRows int64
	flushedRows int64
	closed      bool
}

// NewWriter creates a signal table writer over sink, storing samples
// uncompressed as large_list<int16>. The schema is built from metadata
// and re-validated before any row is accepted. The writer takes
// ownership of the sink; if the sink is an io.Closer it is closed by
// Close.
func NewWriter(sink io.Writer, metadata arrow.Metadata, mem memory.Allocator) (*Writer, error) {
	return newWriter(sink, UncompressedSignal, metadata, mem)
}

// NewCompressedWriter creates a signal table writer whose AddRead
// compresses each signal with the vbz codec before storage. The samples
// column still records the original sample count, which readers need to
// decode the blob.
func NewCompressedWriter(sink io.Writer, metadata arrow.Metadata, mem memory.Allocator) (*Writer, error) {
	return newWriter(sink, VbzSignal, metadata, mem)
}

func newWriter(sink io.Writer, signalType SignalType, metadata arrow.Metadata, mem memory.Allocator) (*Writer, error) {
	if mem == nil {
		mem = Pool
	}
	schema := BuildSchemaWithSignalType(signalType, metadata)
	fields, err := ReadSchema(schema)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		mem:    mem,
		schema: schema,
		fields: fields,
		sink:   sink,
		ipc:    ipc.NewWriter(sink, ipc.WithSchema(schema), ipc.WithAllocator(mem)),
	}
	w.builder = array.NewRecordBuilder(mem, schema)
	w.readIDBuilder = w.builder.Field(fields.ReadID).(*extensions.UUIDBuilder)
	switch fields.SignalType {
	case VbzSignal:
		w.vbzBuilder = w.builder.Field(fields.Signal).(*array.BinaryBuilder)
	default:
		w.signalBuilder = w.builder.Field(fields.Signal).(*array.LargeListBuilder)
		w.signalValues = w.signalBuilder.ValueBuilder().(*array.Int16Builder)
	}
	w.samplesBuilder = w.builder.Field(fields.Samples).(*array.Uint32Builder)
	return w, nil
}

// SignalType reports how this writer stores signal data.
func (w *Writer) SignalType() SignalType {
	return w.fields.SignalType
}

// Schema returns the schema written to the sink.
func (w *Writer) Schema() *arrow.Schema {
	return w.schema
}

// AddRead stages one read into the current batch and returns its
// table-global row index, which increases by one per read and is
// continuous across flushes. Validation happens before any column
// builder is touched, so a rejected read never leaves the three columns
// misaligned.
func (w *Writer) AddRead(readID uuid.UUID, samples []int16) (int64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if readID == uuid.Nil {
		return 0, ErrNilReadID
	}
	if uint64(len(samples)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d samples", ErrSignalTooLong, len(samples))
	}

	var vbz []byte
	if w.fields.SignalType == VbzSignal {
		var err error
		if vbz, err = signal.Compress(samples); err != nil {
			return 0, fmt.Errorf("signal table: compressing read %s: %w", readID, err)
		}
	}

	// All inputs are valid; commit the row to all three columns.
	w.readIDBuilder.Append(readID)
	if w.fields.SignalType == VbzSignal {
		w.vbzBuilder.Append(vbz)
	} else {
		w.signalBuilder.Append(true)
		w.signalValues.AppendValues(samples, nil)
	}
	w.samplesBuilder.Append(uint32(len(samples)))

	index := w.flushedRows + w.retainedRows + w.pendingRows
	w.pendingRows++
	return index, nil
}

// Flush writes the buffered rows to the sink as one record batch and
// resets the builders. Flushing with no buffered rows is a no-op: no
// empty batch is ever written. If the sink write fails the batch is
// retained, and the next Flush or Close retries it before any rows
// staged later.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if w.retained != nil {
		if err := w.writeRetained(); err != nil {
			return err
		}
	}
	if w.pendingRows == 0 {
		return nil
	}

	w.retained = w.builder.NewRecord()
	w.retainedRows = w.pendingRows
	w.pendingRows = 0
	return w.writeRetained()
}

func (w *Writer) writeRetained() error {
	start := time.Now()
	if err := w.ipc.Write(w.retained); err != nil {
		return fmt.Errorf("signal table: writing batch of %d rows: %w", w.retainedRows, err)
	}
	flushLatency.Observe(time.Since(start).Seconds())
	rowsWritten.Add(float64(w.retainedRows))
	batchesWritten.Inc()

	w.flushedRows += w.retainedRows
	w.retained.Release()
	w.retained = nil
	w.retainedRows = 0
	return nil
}

// Close flushes any buffered rows, finalizes the record-batch stream,
// and closes the sink if it is an io.Closer. On success the writer is
// closed for good; a failed flush leaves it open so the caller may
// retry or abandon it.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.ipc.Close(); err != nil {
		return fmt.Errorf("signal table: finalizing stream: %w", err)
	}
	if closer, ok := w.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("signal table: closing sink: %w", err)
		}
	}
	w.builder.Release()
	w.closed = true
	return nil
}
