package config

import (
	"testing"

	"github.com/zw326/rk3566/internal/media"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"ws://example.com:8080", "room-1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ServerURL != "ws://example.com:8080" || cfg.RoomID != "room-1" {
		t.Errorf("unexpected positional args: %+v", cfg)
	}
	if cfg.ClientID != "" {
		t.Errorf("expected empty client id, got %q", cfg.ClientID)
	}
	if cfg.STUNURL != DefaultSTUNURL {
		t.Errorf("expected default STUN url, got %q", cfg.STUNURL)
	}
	if cfg.TargetDelayMs != 40 || cfg.AudioBufferFrames != 100 {
		t.Errorf("unexpected audio tuning: %+v", cfg)
	}
	if cfg.SampleRate != 48000 || cfg.Channels != 2 {
		t.Errorf("unexpected audio format: %+v", cfg)
	}
	if cfg.VideoCodec != media.CodecH264 || cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("unexpected video defaults: %+v", cfg)
	}
}

func TestLoad_ClientIDArg(t *testing.T) {
	cfg, err := Load([]string{"ws://example.com", "room-1", "disp-01"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ClientID != "disp-01" {
		t.Errorf("expected client id disp-01, got %q", cfg.ClientID)
	}
}

func TestLoad_ArgCount(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Error("expected usage error for no args")
	}
	if _, err := Load([]string{"ws://example.com"}); err == nil {
		t.Error("expected usage error for one arg")
	}
	if _, err := Load([]string{"a", "b", "c", "d"}); err == nil {
		t.Error("expected usage error for four args")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECEIVER_STUN_URL", "stun:stun.example.com:3478")
	t.Setenv("RECEIVER_TARGET_DELAY_MS", "80")
	t.Setenv("RECEIVER_VIDEO_CODEC", "hevc")
	t.Setenv("RECEIVER_WIDTH", "1280")
	t.Setenv("RECEIVER_HEIGHT", "720")

	cfg, err := Load([]string{"ws://example.com", "room-1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.STUNURL != "stun:stun.example.com:3478" {
		t.Errorf("expected overridden STUN url, got %q", cfg.STUNURL)
	}
	if cfg.TargetDelayMs != 80 {
		t.Errorf("expected target delay 80, got %d", cfg.TargetDelayMs)
	}
	if cfg.VideoCodec != media.CodecH265 {
		t.Errorf("expected H265, got %s", cfg.VideoCodec)
	}
	if cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("RECEIVER_SAMPLE_RATE", "fast")
	if _, err := Load([]string{"ws://example.com", "room-1"}); err == nil {
		t.Error("expected error for non-integer sample rate")
	}

	t.Setenv("RECEIVER_SAMPLE_RATE", "-1")
	if _, err := Load([]string{"ws://example.com", "room-1"}); err == nil {
		t.Error("expected error for negative sample rate")
	}
}

func TestLoad_RejectsUnknownCodec(t *testing.T) {
	t.Setenv("RECEIVER_VIDEO_CODEC", "vp9")
	if _, err := Load([]string{"ws://example.com", "room-1"}); err == nil {
		t.Error("expected error for unsupported codec")
	}
}
