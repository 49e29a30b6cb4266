// Command squiggle writes and inspects signal table files.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/docopt/docopt.go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TFMV/squiggle/signal"
	"github.com/TFMV/squiggle/table"
)

func main() {
	usage := `Squiggle signal tables.

Usage:
  squiggle write <file> [--reads=<n>] [--samples=<n>] [--batch=<n>] [--vbz]
  squiggle inspect <file>
  squiggle (-h | --help)
  squiggle --version

Options:
  -h --help      Show this screen.
  --version      Show version.
  --reads=<n>    Number of synthetic reads to write [default: 100].
  --samples=<n>  Samples per synthetic read [default: 4000].
  --batch=<n>    Reads per record batch [default: 25].
  --vbz          Store signals vbz-compressed.
`

	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}
	if v, _ := arguments.Bool("--version"); v {
		fmt.Println("squiggle version 1.0.0")
		os.Exit(0)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	file, _ := arguments.String("<file>")
	switch {
	case mustBool(arguments, "write"):
		reads, _ := arguments.Int("--reads")
		samples, _ := arguments.Int("--samples")
		batch, _ := arguments.Int("--batch")
		vbz, _ := arguments.Bool("--vbz")
		if err := writeTable(file, reads, samples, batch, vbz, logger); err != nil {
			logger.Fatal("write failed", zap.String("file", file), zap.Error(err))
		}
	case mustBool(arguments, "inspect"):
		if err := inspectTable(file, logger); err != nil {
			logger.Fatal("inspect failed", zap.String("file", file), zap.Error(err))
		}
	}
}

func mustBool(args docopt.Opts, key string) bool {
	v, _ := args.Bool(key)
	return v
}

// syntheticSignal generates a bounded random walk, which compresses the
// way real nanopore current traces do: small steps, occasional jumps.
func syntheticSignal(rng *rand.Rand, n int) []int16 {
	out := make([]int16, n)
	level := int16(500)
	for i := range out {
		level += int16(rng.Intn(21) - 10)
		if rng.Intn(100) == 0 {
			level += int16(rng.Intn(401) - 200)
		}
		out[i] = level
	}
	return out
}

func writeTable(path string, reads, samplesPerRead, batchSize int, vbz bool, logger *zap.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	// The writer closes the file on a successful Close; this guard
	// covers every earlier error return.
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
	}()

	metadata := arrow.MetadataFrom(map[string]string{
		"writer": "squiggle 1.0.0",
	})
	newWriter := table.NewWriter
	if vbz {
		newWriter = table.NewCompressedWriter
	}
	w, err := newWriter(f, metadata, table.Pool)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < reads; i++ {
		row, err := w.AddRead(uuid.New(), syntheticSignal(rng, samplesPerRead))
		if err != nil {
			return err
		}
		if (i+1)%batchSize == 0 {
			if err := w.Flush(); err != nil {
				return err
			}
			logger.Info("flushed batch",
				zap.Int64("last_row", row),
				zap.String("signal_type", w.SignalType().String()))
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	closed = true

	logger.Info("wrote signal table",
		zap.String("file", path),
		zap.Int("reads", reads),
		zap.Int("samples_per_read", samplesPerRead),
		zap.Bool("vbz", vbz))
	return nil
}

func inspectTable(path string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	r, err := table.NewReader(f, table.Pool)
	if err != nil {
		return err
	}
	defer r.Close()

	var totalSamples uint64
	var rawBytes, vbzBytes int
	for row := int64(0); row < r.NumReads(); row++ {
		rd, err := r.ReadAt(row)
		if err != nil {
			return err
		}
		totalSamples += uint64(rd.Samples)
		rawBytes += 2 * len(rd.Signal)
		blob, err := signal.Compress(rd.Signal)
		if err != nil {
			return err
		}
		vbzBytes += len(blob)
	}

	logger.Info("signal table",
		zap.String("file", path),
		zap.String("signal_type", r.SignalType().String()),
		zap.Int64("reads", r.NumReads()),
		zap.Uint64("total_samples", totalSamples),
		zap.Int("raw_signal_bytes", rawBytes),
		zap.Int("vbz_signal_bytes", vbzBytes))
	return nil
}
