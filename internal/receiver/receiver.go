// Package receiver wires the signaling client, the peer connection and the
// media sinks into one running endpoint.
package receiver

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zw326/rk3566/internal/config"
	"github.com/zw326/rk3566/internal/signal"
	"github.com/zw326/rk3566/internal/sink"
	"github.com/zw326/rk3566/internal/webrtc"
)

// Receiver owns the session lifecycle: register, answer, play, tear down.
type Receiver struct {
	cfg   *config.Config
	sig   *signal.Client
	peer  *webrtc.Peer
	video *sink.VideoSink
	audio *sink.AudioSink

	fatal chan error
}

// New assembles the receiver. The sinks must be initialized by the caller;
// the video-to-audio sync reference is wired here.
func New(cfg *config.Config, sig *signal.Client, peer *webrtc.Peer, video *sink.VideoSink, audio *sink.AudioSink) *Receiver {
	r := &Receiver{
		cfg:   cfg,
		sig:   sig,
		peer:  peer,
		video: video,
		audio: audio,
		fatal: make(chan error, 1),
	}

	video.SetAudioSyncCallback(audio.SetVideoReference)

	sig.OnState(r.onSignalState)
	sig.OnMessage(r.onSignalMessage)

	return r
}

// Run starts the sinks, registers into the room and connects to the
// signaling server, then blocks until the context is cancelled or the
// signaling connection is lost for good. Teardown is the caller's job via
// Close.
func (r *Receiver) Run(ctx context.Context) error {
	r.video.Start()
	r.audio.Start()

	// Registration is cached before the dial so the client announces
	// itself the moment the connection is established.
	r.sig.Register(r.cfg.RoomID, r.cfg.ClientID)
	if err := r.sig.Connect(r.cfg.ServerURL); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}
	log.Printf("[receiver] registered as %s in room %s", r.sig.ClientID(), r.cfg.RoomID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-r.fatal:
		return err
	}
}

// Close tears the session down: leave the room, drop the peer, stop the
// sinks, close signaling. Hardware deinit stays with the caller.
func (r *Receiver) Close() {
	r.sig.SendLeave()
	r.sig.Flush(500 * time.Millisecond)
	r.peer.Close()
	r.video.Stop()
	r.audio.Stop()
	r.sig.Close()
}

func (r *Receiver) onSignalState(connected bool, message string) {
	if connected {
		log.Printf("[receiver] signaling connected: %s", message)
		return
	}
	log.Printf("[receiver] signaling disconnected: %s", message)
	if strings.Contains(message, "max reconnect attempts") {
		select {
		case r.fatal <- fmt.Errorf("signaling gone: %s", message):
		default:
		}
	}
}

func (r *Receiver) onSignalMessage(t signal.Type, raw []byte) {
	switch t {
	case signal.TypeOffer, signal.TypeCandidate:
		r.peer.HandleSignal(t, raw)
	case signal.TypeRegister:
		log.Printf("[receiver] peer registered in room")
	case signal.TypeLeave:
		log.Printf("[receiver] peer left room")
	case signal.TypeAnswer:
		// This endpoint never offers, so an inbound answer is a protocol
		// mix-up worth noticing.
		log.Printf("[receiver] unexpected answer message, ignoring")
	default:
	}
}
