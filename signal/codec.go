// Package signal implements the vbz codec for nanopore signal data: a
// lossless two-stage compression of int16 sample arrays, combining a
// delta+zigzag StreamVByte transform with zstd.
//
// The codec is pure and stateless. Compressed buffers do not carry the
// original sample count; callers persist it out of band (the signal
// table stores it in the samples column) and supply it to Decompress.
package signal

import (
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrSizeBound reports that a compressed size bound could not be
	// computed for the requested sample count.
	ErrSizeBound = errors.New("signal: cannot determine compressed size bound")
	// ErrCompress reports a compression failure.
	ErrCompress = errors.New("signal: compression failed")
	// ErrDecompress reports corrupt or truncated compressed input.
	ErrDecompress = errors.New("signal: decompression failed")
)

// Shared zstd surfaces. EncodeAll and DecodeAll are safe for concurrent
// use, so the codec stays reentrant with no per-call setup cost.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	// Single-segment frames always record their content size, which
	// Decompress depends on; without it small frames omit the field.
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithZeroFrames(true),
		zstd.WithSingleSegment(true),
	)
	if err != nil {
		panic(fmt.Sprintf("signal: zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("signal: zstd decoder init: %v", err))
	}
}

// zstdCompressBound mirrors ZSTD_compressBound: the worst-case frame
// size for srcSize bytes of incompressible input.
func zstdCompressBound(srcSize int) int {
	bound := srcSize + srcSize>>8
	if srcSize < 128<<10 {
		bound += ((128 << 10) - srcSize) >> 11
	}
	return bound
}

// MaxCompressedSize returns an upper bound on the size of Compress
// output for sampleCount samples. The bound composes the worst case of
// the svb16 transform with zstd's expansion bound and never
// under-reports; a buffer of this size is always sufficient.
func MaxCompressedSize(sampleCount int) int {
	return zstdCompressBound(svb16MaxEncodedLength(sampleCount))
}

// Compress losslessly encodes samples. Stage one delta-codes each
// sample against its predecessor (zero baseline for the first), zigzag
// maps the deltas and packs them with svb16; stage two compresses the
// packed bytes with zstd at a fixed level. The returned buffer is owned
// by the caller.
func Compress(samples []int16) ([]byte, error) {
	if uint64(len(samples)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d samples exceed the uint32 sample count range",
			ErrSizeBound, len(samples))
	}

	intermediate := make([]byte, svb16MaxEncodedLength(len(samples)))
	encoded := svb16Encode(samples, intermediate)

	out := zstdEncoder.EncodeAll(intermediate[:encoded],
		make([]byte, 0, zstdCompressBound(encoded)))
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty zstd frame", ErrCompress)
	}
	return out, nil
}

// Decompress recovers exactly sampleCount samples from a buffer
// produced by Compress. The zstd frame carries the size of the packed
// intermediate, but not the element count, which the caller must track
// alongside the compressed bytes. Corrupt, truncated, or trailing input
// is reported as ErrDecompress; a partially decoded result is never
// returned.
func Decompress(compressed []byte, sampleCount int) ([]int16, error) {
	if sampleCount < 0 {
		return nil, fmt.Errorf("%w: negative sample count %d", ErrDecompress, sampleCount)
	}

	var header zstd.Header
	if err := header.Decode(compressed); err != nil {
		return nil, fmt.Errorf("%w: input is not a zstd frame: %v", ErrDecompress, err)
	}
	if !header.HasFCS {
		return nil, fmt.Errorf("%w: zstd frame does not record its content size", ErrDecompress)
	}
	maxIntermediate := uint64(svb16MaxEncodedLength(sampleCount))
	if header.FrameContentSize > maxIntermediate {
		return nil, fmt.Errorf("%w: frame content size %d exceeds the %d byte bound for %d samples",
			ErrDecompress, header.FrameContentSize, maxIntermediate, sampleCount)
	}

	intermediate, err := zstdDecoder.DecodeAll(compressed,
		make([]byte, 0, header.FrameContentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if uint64(len(intermediate)) != header.FrameContentSize {
		return nil, fmt.Errorf("%w: frame decoded to %d bytes, header recorded %d",
			ErrDecompress, len(intermediate), header.FrameContentSize)
	}

	samples := make([]int16, sampleCount)
	consumed, ok := svb16Decode(samples, intermediate)
	if !ok {
		return nil, fmt.Errorf("%w: truncated signal payload for %d samples",
			ErrDecompress, sampleCount)
	}
	if consumed != len(intermediate) {
		return nil, fmt.Errorf("%w: %d trailing bytes after decoding %d samples",
			ErrDecompress, len(intermediate)-consumed, sampleCount)
	}
	return samples, nil
}
