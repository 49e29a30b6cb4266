package signal

import "encoding/binary"

// svb16 is a 16-bit StreamVByte layout: one control bit per value
// selecting a 1-byte or 2-byte little-endian payload, with the control
// bits packed at the front of the buffer and the payload bytes after
// them. Values are delta-coded against the previous sample (zero
// baseline for the first) and zigzag-mapped before packing, so small
// steps in either direction land in the 1-byte class.

// svb16KeyLength returns the number of control bytes needed for n values.
func svb16KeyLength(n int) int {
	return (n + 7) / 8
}

// svb16MaxEncodedLength returns the worst-case encoded size for n
// values: every value in the 2-byte class plus the control section.
func svb16MaxEncodedLength(n int) int {
	return svb16KeyLength(n) + 2*n
}

func zigzag16(v int16) uint16 {
	return uint16(v<<1) ^ uint16(v>>15)
}

func unzigzag16(v uint16) int16 {
	return int16(v>>1) ^ -int16(v&1)
}

// svb16Encode packs samples into out, which must hold at least
// svb16MaxEncodedLength(len(samples)) bytes, and returns the number of
// bytes written. Deltas use wrapping 16-bit arithmetic so the full
// int16 range round-trips.
func svb16Encode(samples []int16, out []byte) int {
	keyLen := svb16KeyLength(len(samples))
	keys := out[:keyLen]
	for i := range keys {
		keys[i] = 0
	}
	data := out[keyLen:]

	var prev int16
	pos := 0
	for i, s := range samples {
		delta := zigzag16(int16(uint16(s) - uint16(prev)))
		prev = s
		if delta < 1<<8 {
			data[pos] = byte(delta)
			pos++
		} else {
			keys[i>>3] |= 1 << (i & 7)
			binary.LittleEndian.PutUint16(data[pos:], delta)
			pos += 2
		}
	}
	return keyLen + pos
}

// svb16Decode fills out from in, undoing the zigzag and the running
// delta. It returns the number of input bytes consumed and whether the
// input held enough bytes for len(out) values.
func svb16Decode(out []int16, in []byte) (int, bool) {
	keyLen := svb16KeyLength(len(out))
	if len(in) < keyLen {
		return 0, false
	}
	keys := in[:keyLen]
	data := in[keyLen:]

	var prev int16
	pos := 0
	for i := range out {
		var zz uint16
		if keys[i>>3]&(1<<(i&7)) != 0 {
			if pos+2 > len(data) {
				return 0, false
			}
			zz = binary.LittleEndian.Uint16(data[pos:])
			pos += 2
		} else {
			if pos >= len(data) {
				return 0, false
			}
			zz = uint16(data[pos])
			pos++
		}
		v := int16(uint16(prev) + uint16(unzigzag16(zz)))
		out[i] = v
		prev = v
	}
	return keyLen + pos, true
}
