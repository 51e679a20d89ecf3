package webrtc

import (
	"bytes"
	"testing"
)

func TestParseH264SPS_Baseline720p(t *testing.T) {
	// Baseline profile, 1280x720, no cropping.
	sps := []byte{0x67, 0x42, 0x00, 0x1F, 0xF4, 0x02, 0x80, 0x2D, 0xC8}

	w, h, err := parseH264SPS(sps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Errorf("expected 1280x720, got %dx%d", w, h)
	}
}

func TestParseH264SPS_RejectsNonSPS(t *testing.T) {
	// Type 5 = IDR slice, not an SPS.
	if _, _, err := parseH264SPS([]byte{0x65, 0x01, 0x02, 0x03}); err == nil {
		t.Error("expected error for non-SPS NALU")
	}
	if _, _, err := parseH264SPS(nil); err == nil {
		t.Error("expected error for empty NALU")
	}
}

func TestParseH264SPS_Truncated(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F}
	if _, _, err := parseH264SPS(sps); err == nil {
		t.Error("expected error for truncated SPS")
	}
}

func TestStripEmulationPrevention(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0xAA, 0x00, 0x00, 0x03, 0x00}
	want := []byte{0x00, 0x00, 0x01, 0xAA, 0x00, 0x00, 0x00}
	if got := stripEmulationPrevention(in); !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStripEmulationPrevention_NoMarkers(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	if got := stripEmulationPrevention(in); !bytes.Equal(got, in) {
		t.Errorf("expected %v unchanged, got %v", in, got)
	}
}
