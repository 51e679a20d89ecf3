package webrtc

import (
	"bytes"
	"testing"
)

func TestDecodeULawSample(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},      // positive zero
		{0x7F, 0},      // negative zero
		{0x00, -32124}, // most negative
		{0x80, 32124},  // most positive
	}
	for _, tc := range cases {
		if got := decodeULawSample(tc.in); got != tc.want {
			t.Errorf("ulaw 0x%02X: expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestDecodeALawSample(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		{0x55, -8},
		{0xD5, 8},
		{0x2A, -32256}, // most negative
		{0xAA, 32256},  // most positive
	}
	for _, tc := range cases {
		if got := decodeALawSample(tc.in); got != tc.want {
			t.Errorf("alaw 0x%02X: expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestDecodeG711_LittleEndianExpansion(t *testing.T) {
	pcm := decodeG711([]byte{0xFF, 0x00}, false)
	if len(pcm) != 4 {
		t.Fatalf("expected 4 bytes of PCM, got %d", len(pcm))
	}
	// 0xFF → 0, 0x00 → -32124 (0x8284)
	want := []byte{0x00, 0x00, 0x84, 0x82}
	if !bytes.Equal(pcm, want) {
		t.Errorf("expected %v, got %v", want, pcm)
	}
}

func TestDecodeG711_Empty(t *testing.T) {
	if pcm := decodeG711(nil, true); len(pcm) != 0 {
		t.Errorf("expected empty PCM, got %d bytes", len(pcm))
	}
}
