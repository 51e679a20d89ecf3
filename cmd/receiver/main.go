package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/zw326/rk3566/internal/config"
	"github.com/zw326/rk3566/internal/hw/rockit"
	"github.com/zw326/rk3566/internal/hw/stream"
	"github.com/zw326/rk3566/internal/media"
	"github.com/zw326/rk3566/internal/receiver"
	sigclient "github.com/zw326/rk3566/internal/signal"
	"github.com/zw326/rk3566/internal/sink"
	"github.com/zw326/rk3566/internal/webrtc"
)

const helpText = `receiver - WebRTC receiving endpoint for RK3566 (VDEC/VO/AO playback)

Usage:
  receiver <server-url> <room-id> [client-id]

Connects to the signaling server, registers into the room and answers the
first inbound offer. Video goes to the hardware decoder and HDMI output;
audio goes to the hardware audio device. On machines without the vendor MPI
the raw Annex-B video stream is written to stdout instead.

Environment Variables (optional):
  RECEIVER_STUN_URL             STUN server (default stun:stun.l.google.com:19302)
  RECEIVER_TARGET_DELAY_MS      A/V sync target delay (default 40)
  RECEIVER_AUDIO_BUFFER_FRAMES  audio jitter buffer depth (default 100)
  RECEIVER_SAMPLE_RATE          audio device sample rate (default 48000)
  RECEIVER_CHANNELS             audio device channels (default 2)
  RECEIVER_VIDEO_CODEC          h264 or h265 (default h264)
  RECEIVER_WIDTH                fallback frame width (default 1920)
  RECEIVER_HEIGHT               fallback frame height (default 1080)

Examples:
  receiver ws://192.168.1.10:8080 livingroom
  receiver ws://192.168.1.10:8080 livingroom cam-display | ffplay -f h264 -

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	// Step 1: Bring up the media subsystem, hardware first, stream fallback
	// second.
	var (
		system media.System
		dec    media.VideoDecoder
		out    media.VideoOutput
		audio  media.AudioOutput
	)
	system = rockit.NewSystem()
	if err := system.Init(); err != nil {
		log.Printf("[main] rockit unavailable (%v), writing video to stdout", err)
		system = stream.NewSystem()
		if err := system.Init(); err != nil {
			log.Fatalf("[main] media init: %v", err)
		}
		dec = stream.NewDecoder(os.Stdout)
		out = stream.NewOutput()
		audio = stream.NewAudio(nil)
	} else {
		dec = rockit.NewDecoder()
		out = rockit.NewOutput()
		audio = rockit.NewAudio()
	}
	defer system.Deinit()

	// Step 2: Build the sinks.
	videoSink := sink.NewVideoSink(dec, out)
	videoSink.SetEventCallback(logSinkEvent("video"))
	if err := videoSink.Initialize(); err != nil {
		log.Fatalf("[main] video sink init: %v", err)
	}

	audioSink := sink.NewAudioSink(audio)
	audioSink.SetEventCallback(logSinkEvent("audio"))
	audioSink.SetTargetDelayMs(cfg.TargetDelayMs)
	audioSink.SetMaxBufferFrames(cfg.AudioBufferFrames)
	if err := audioSink.Initialize(media.AudioConfig{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		BitsPerSample: 16,
	}); err != nil {
		log.Fatalf("[main] audio sink init: %v", err)
	}

	// Step 3: Signaling client and peer connection.
	sc := sigclient.NewClient()
	peer, err := webrtc.NewPeer(webrtc.Config{
		STUNURL:        cfg.STUNURL,
		Codec:          cfg.VideoCodec,
		FallbackWidth:  cfg.Width,
		FallbackHeight: cfg.Height,
	}, sc, videoSink, audioSink)
	if err != nil {
		log.Fatalf("[main] create peer: %v", err)
	}

	// Step 4: Wire everything and run.
	r := receiver.New(cfg, sc, peer, videoSink, audioSink)
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[main] session ended: %v", err)
		r.Close()
		os.Exit(1)
	}

	log.Printf("[main] shutting down")
	r.Close()
	log.Printf("[main] done")
}

// logSinkEvent reports sink events to the log, skipping underflow which
// fires every drain tick while the room is quiet.
func logSinkEvent(tag string) sink.EventCallback {
	return func(ev sink.Event) {
		if ev.Code == sink.EventBufferUnderflow {
			return
		}
		log.Printf("[%s] %s: %s", tag, ev.Code, ev.Message)
	}
}
