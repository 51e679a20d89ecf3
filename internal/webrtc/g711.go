package webrtc

import "encoding/binary"

// G.711 decode, ITU-T companding. The peer offers PCMU/PCMA; the payload is
// one byte per sample, expanded here to 16-bit little-endian PCM for the
// audio sink.

const g711Bias = 0x84

// decodeULawSample expands one mu-law byte to a linear 16-bit sample.
func decodeULawSample(b byte) int16 {
	b = ^b
	t := (int32(b&0x0f) << 3) + g711Bias
	t <<= (b & 0x70) >> 4
	if b&0x80 != 0 {
		return int16(g711Bias - t)
	}
	return int16(t - g711Bias)
}

// decodeALawSample expands one A-law byte to a linear 16-bit sample.
func decodeALawSample(b byte) int16 {
	b ^= 0x55
	t := int32(b&0x0f) << 4
	seg := (b & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if b&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// decodeG711 expands a G.711 payload to 16-bit little-endian PCM.
func decodeG711(payload []byte, aLaw bool) []byte {
	out := make([]byte, len(payload)*2)
	for i, b := range payload {
		var s int16
		if aLaw {
			s = decodeALawSample(b)
		} else {
			s = decodeULawSample(b)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
