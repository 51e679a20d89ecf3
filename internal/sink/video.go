package sink

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zw326/rk3566/internal/media"
)

// frameBufCnt is the number of output buffers given to the hardware decoder.
const frameBufCnt = 8

// SyncCallback publishes a video anchor to the audio path.
type SyncCallback func(videoPTSMs, wallclockMs int64)

// VideoSink routes intercepted encoded frames into the hardware decoder and
// binds the decoder output to the display layer. The decoder and display are
// brought up lazily from the dimensions of the first frame; once up they
// live until Stop.
type VideoSink struct {
	dec media.VideoDecoder
	out media.VideoOutput

	running    atomic.Bool
	configured bool
	setupMu    sync.Mutex

	syncMu    sync.Mutex
	firstSeen bool
	syncCb    SyncCallback

	onEvent EventCallback

	nowMs func() int64
}

// NewVideoSink creates a sink feeding dec bound to out.
func NewVideoSink(dec media.VideoDecoder, out media.VideoOutput) *VideoSink {
	return &VideoSink{
		dec:   dec,
		out:   out,
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEventCallback installs the state event callback.
func (s *VideoSink) SetEventCallback(cb EventCallback) { s.onEvent = cb }

// SetAudioSyncCallback installs the anchor callback, invoked on the first
// frame and on every keyframe.
func (s *VideoSink) SetAudioSyncCallback(cb SyncCallback) {
	s.syncMu.Lock()
	s.syncCb = cb
	s.syncMu.Unlock()
}

// Initialize marks the sink ready to receive. Hardware allocation waits for
// the first frame, whose dimensions drive the configuration.
func (s *VideoSink) Initialize() error {
	s.emit(EventInitialized, "video sink initialized")
	return nil
}

// Start enables the hot path.
func (s *VideoSink) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.emit(EventStarted, "video sink started")
}

// Stop disables the hot path and releases the decoder channel and display
// layer if they were brought up.
func (s *VideoSink) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.setupMu.Lock()
	if s.configured {
		if err := s.dec.DestroyChannel(); err != nil {
			log.Printf("[video] destroy decoder channel: %v", err)
		}
		if err := s.out.Disable(); err != nil {
			log.Printf("[video] disable output: %v", err)
		}
		s.configured = false
	}
	s.setupMu.Unlock()

	s.emit(EventStopped, "video sink stopped")
}

// Reset drops the sync anchor state only; the decoder keeps running.
func (s *VideoSink) Reset() {
	s.syncMu.Lock()
	s.firstSeen = false
	s.syncMu.Unlock()
	s.emit(EventSyncReset, "video sync reset")
}

// OnEncodedFrame is the hot path. Bring-up failure is fatal and returned;
// per-frame submit failure drops the frame and the pipeline continues.
func (s *VideoSink) OnEncodedFrame(frame *media.EncodedFrame) error {
	if !s.running.Load() {
		release(frame)
		return nil
	}

	if err := s.ensureConfigured(frame); err != nil {
		release(frame)
		return err
	}

	buf := media.StreamBuffer{
		Data:    frame.Data,
		PTSMs:   frame.PTSMs,
		Release: frame.Release,
	}
	if err := s.dec.SendStream(buf); err != nil {
		// Ownership did not transfer; free the buffer now.
		release(frame)
		log.Printf("[video] decoder submit failed, dropping frame: %v", err)
		s.emit(EventDecoderError, "decoder submit failed, frame dropped")
		return nil
	}

	s.publishAnchor(frame)
	return nil
}

// ensureConfigured performs the lazy one-time VDEC and VO bring-up using the
// first frame's dimensions and binds decoder output to the display layer.
func (s *VideoSink) ensureConfigured(frame *media.EncodedFrame) error {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()
	if s.configured {
		return nil
	}

	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("video: invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}

	decCfg := media.DecoderConfig{
		Codec:       frame.Codec,
		Width:       frame.Width,
		Height:      frame.Height,
		FrameBufCnt: frameBufCnt,
	}
	if err := s.dec.CreateChannel(decCfg); err != nil {
		s.emit(EventDecoderError, "decoder bring-up failed")
		return fmt.Errorf("video: create decoder channel: %w", err)
	}

	outCfg := media.OutputConfig{Width: frame.Width, Height: frame.Height}
	if err := s.out.Enable(outCfg); err != nil {
		s.dec.DestroyChannel()
		s.emit(EventDisplayError, "display bring-up failed")
		return fmt.Errorf("video: enable output: %w", err)
	}
	if err := s.out.Bind(s.dec); err != nil {
		s.out.Disable()
		s.dec.DestroyChannel()
		s.emit(EventDisplayError, "decoder to output bind failed")
		return fmt.Errorf("video: bind decoder to output: %w", err)
	}

	log.Printf("[video] pipeline up: %s %dx%d", frame.Codec, frame.Width, frame.Height)
	s.configured = true
	return nil
}

// publishAnchor notifies the audio path on the first frame and on every
// keyframe. A keyframe results in exactly one callback invocation, including
// when it is also the first frame.
func (s *VideoSink) publishAnchor(frame *media.EncodedFrame) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	first := !s.firstSeen
	if !first && !frame.Keyframe {
		return
	}
	s.firstSeen = true

	if s.syncCb != nil {
		s.syncCb(frame.PTSMs, s.nowMs())
	}
	if first {
		s.emit(EventFirstFrame, "first video frame received")
	} else {
		s.emit(EventKeyFrame, "key frame received")
	}
}

func (s *VideoSink) emit(code EventCode, msg string) {
	if s.onEvent != nil {
		s.onEvent(Event{Code: code, Message: msg})
	}
}

func release(frame *media.EncodedFrame) {
	if frame.Release != nil {
		frame.Release()
	}
}
