package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestZigzag16(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(0), zigzag16(0))
	assert.Equal(t, uint16(1), zigzag16(-1))
	assert.Equal(t, uint16(2), zigzag16(1))
	assert.Equal(t, uint16(65534), zigzag16(32767))
	assert.Equal(t, uint16(65535), zigzag16(-32768))

	for v := -32768; v <= 32767; v++ {
		require.Equal(t, int16(v), unzigzag16(zigzag16(int16(v))))
	}
}

func TestSvb16SmallDeltasUseOneByte(t *testing.T) {
	t.Parallel()

	// Steps of at most 127 in either direction zigzag below 256, so
	// every value lands in the 1-byte class.
	samples := []int16{0, 100, 73, 120, 50}
	out := make([]byte, svb16MaxEncodedLength(len(samples)))
	n := svb16Encode(samples, out)
	assert.Equal(t, svb16KeyLength(len(samples))+len(samples), n)

	decoded := make([]int16, len(samples))
	consumed, ok := svb16Decode(decoded, out[:n])
	require.True(t, ok)
	assert.Equal(t, n, consumed)
	assert.Equal(t, samples, decoded)
}

func TestSvb16WrappingDeltas(t *testing.T) {
	t.Parallel()

	// Deltas wrap mod 2^16, so jumps across the full int16 range still
	// round-trip.
	samples := []int16{32767, -32768, 32767, 0, -32768}
	out := make([]byte, svb16MaxEncodedLength(len(samples)))
	n := svb16Encode(samples, out)

	decoded := make([]int16, len(samples))
	consumed, ok := svb16Decode(decoded, out[:n])
	require.True(t, ok)
	assert.Equal(t, n, consumed)
	assert.Equal(t, samples, decoded)
}

func TestSvb16DecodeTruncated(t *testing.T) {
	t.Parallel()

	samples := []int16{1000, -2000, 3000, -4000}
	out := make([]byte, svb16MaxEncodedLength(len(samples)))
	n := svb16Encode(samples, out)

	decoded := make([]int16, len(samples))
	for cut := 0; cut < n; cut++ {
		_, ok := svb16Decode(decoded, out[:cut])
		assert.False(t, ok, "cut %d", cut)
	}
}

func TestSvb16RoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		samples := rapid.SliceOfN(rapid.Int16(), 0, 1000).Draw(t, "samples")
		out := make([]byte, svb16MaxEncodedLength(len(samples)))
		n := svb16Encode(samples, out)
		if n > len(out) {
			t.Fatalf("encoded %d bytes, bound is %d", n, len(out))
		}

		decoded := make([]int16, len(samples))
		consumed, ok := svb16Decode(decoded, out[:n])
		if !ok {
			t.Fatalf("decode failed on its own output")
		}
		if consumed != n {
			t.Fatalf("consumed %d of %d bytes", consumed, n)
		}
		for i := range samples {
			if decoded[i] != samples[i] {
				t.Fatalf("sample %d: got %d, want %d", i, decoded[i], samples[i])
			}
		}
	})
}
