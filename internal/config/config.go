// Package config assembles the receiver configuration from positional
// arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/zw326/rk3566/internal/media"
)

// Defaults for the environment-tunable knobs.
const (
	DefaultSTUNURL           = "stun:stun.l.google.com:19302"
	DefaultTargetDelayMs     = 40
	DefaultAudioBufferFrames = 100
	DefaultSampleRate        = 48000
	DefaultChannels          = 2
	DefaultWidth             = 1920
	DefaultHeight            = 1080
)

// Config holds the receiver configuration.
type Config struct {
	ServerURL string
	RoomID    string
	ClientID  string

	STUNURL           string
	TargetDelayMs     int
	AudioBufferFrames int
	SampleRate        int
	Channels          int

	VideoCodec media.Codec
	Width      int
	Height     int
}

// Load parses the positional arguments (server URL, room id, optional
// client id) and reads tunables from a .env file (if present) and the
// environment. Environment variables take precedence over .env values.
func Load(args []string) (*Config, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("usage: receiver <server-url> <room-id> [client-id]")
	}

	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:         args[0],
		RoomID:            args[1],
		STUNURL:           envString("RECEIVER_STUN_URL", DefaultSTUNURL),
		TargetDelayMs:     DefaultTargetDelayMs,
		AudioBufferFrames: DefaultAudioBufferFrames,
		SampleRate:        DefaultSampleRate,
		Channels:          DefaultChannels,
		VideoCodec:        media.CodecH264,
		Width:             DefaultWidth,
		Height:            DefaultHeight,
	}
	if len(args) == 3 {
		cfg.ClientID = args[2]
	}

	var err error
	if cfg.TargetDelayMs, err = envInt("RECEIVER_TARGET_DELAY_MS", DefaultTargetDelayMs); err != nil {
		return nil, err
	}
	if cfg.AudioBufferFrames, err = envInt("RECEIVER_AUDIO_BUFFER_FRAMES", DefaultAudioBufferFrames); err != nil {
		return nil, err
	}
	if cfg.SampleRate, err = envInt("RECEIVER_SAMPLE_RATE", DefaultSampleRate); err != nil {
		return nil, err
	}
	if cfg.Channels, err = envInt("RECEIVER_CHANNELS", DefaultChannels); err != nil {
		return nil, err
	}
	if cfg.Width, err = envInt("RECEIVER_WIDTH", DefaultWidth); err != nil {
		return nil, err
	}
	if cfg.Height, err = envInt("RECEIVER_HEIGHT", DefaultHeight); err != nil {
		return nil, err
	}

	switch codec := strings.ToLower(envString("RECEIVER_VIDEO_CODEC", "h264")); codec {
	case "h264", "avc":
		cfg.VideoCodec = media.CodecH264
	case "h265", "hevc":
		cfg.VideoCodec = media.CodecH265
	default:
		return nil, fmt.Errorf("RECEIVER_VIDEO_CODEC: unknown codec %q", codec)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}
