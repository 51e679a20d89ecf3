package sink

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zw326/rk3566/internal/media"
)

const (
	defaultSampleRate    = 48000
	defaultChannels      = 2
	defaultBitsPerSample = 16

	// defaultMaxBufferFrames bounds the jitter buffer; with 10 ms frames
	// this is roughly one second of audio.
	defaultMaxBufferFrames = 100

	defaultTargetDelayMs = 40

	drainInterval = 5 * time.Millisecond
)

// AudioSink buffers decoded PCM frames and drains them into the hardware
// audio output with a presentation timestamp disciplined against the video
// reference published by the video sink.
type AudioSink struct {
	out media.AudioOutput
	cfg media.AudioConfig

	maxBufferFrames int
	targetDelayMs   int64

	bufMu sync.Mutex
	buf   []*media.PCMFrame

	syncMu        sync.Mutex
	anchor        media.SyncAnchor
	hasAnchor     bool
	firstSeen     bool
	firstAudioPTS int64
	firstAudioMs  int64
	lastPTS       int64

	running atomic.Bool
	opened  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	onEvent EventCallback

	// nowMs is replaceable in tests.
	nowMs func() int64
}

// NewAudioSink creates a sink writing to out. Initialize must be called
// before Start.
func NewAudioSink(out media.AudioOutput) *AudioSink {
	return &AudioSink{
		out:             out,
		maxBufferFrames: defaultMaxBufferFrames,
		targetDelayMs:   defaultTargetDelayMs,
		nowMs:           func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEventCallback installs the state event callback.
func (s *AudioSink) SetEventCallback(cb EventCallback) { s.onEvent = cb }

// Initialize opens the audio device. The parameters are fixed for the life
// of the device; zero values fall back to 48 kHz stereo 16-bit.
func (s *AudioSink) Initialize(cfg media.AudioConfig) error {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = defaultChannels
	}
	if cfg.BitsPerSample == 0 {
		cfg.BitsPerSample = defaultBitsPerSample
	}
	if err := s.out.Open(cfg); err != nil {
		return fmt.Errorf("audio: open device: %w", err)
	}
	s.cfg = cfg
	s.opened.Store(true)
	s.emit(EventInitialized, "audio sink initialized")
	return nil
}

// Start spawns the drain worker.
func (s *AudioSink) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.drainLoop()
	s.emit(EventStarted, "audio sink started")
}

// Stop signals the worker to exit, joins it, drops the buffer and closes the
// device. The device is closed even when Start never ran, so an initialized
// but unstarted sink does not hold the channel open.
func (s *AudioSink) Stop() {
	if s.running.CompareAndSwap(true, false) {
		close(s.done)
		s.wg.Wait()
	}

	s.bufMu.Lock()
	s.buf = nil
	s.bufMu.Unlock()

	if s.opened.CompareAndSwap(true, false) {
		if err := s.out.Close(); err != nil {
			log.Printf("[audio] close device: %v", err)
		}
		s.emit(EventStopped, "audio sink stopped")
	}
}

// Reset drops the sync state and clears the buffer. The next frame starts a
// fresh timeline.
func (s *AudioSink) Reset() {
	s.syncMu.Lock()
	s.firstSeen = false
	s.firstAudioPTS = 0
	s.firstAudioMs = 0
	s.hasAnchor = false
	s.lastPTS = 0
	s.syncMu.Unlock()

	s.bufMu.Lock()
	s.buf = nil
	s.bufMu.Unlock()

	s.emit(EventSyncReset, "audio sync reset")
}

// SetVideoReference installs the video anchor. Called by the video sink on
// the first frame and on every keyframe; the anchor is overwritten wholesale.
func (s *AudioSink) SetVideoReference(videoPTSMs, wallclockMs int64) {
	s.syncMu.Lock()
	s.anchor = media.SyncAnchor{VideoPTSMs: videoPTSMs, WallclockMs: wallclockMs}
	s.hasAnchor = true
	s.syncMu.Unlock()
}

// SetTargetDelayMs sets the drift tolerance before a correction is applied.
func (s *AudioSink) SetTargetDelayMs(d int) {
	s.syncMu.Lock()
	s.targetDelayMs = int64(d)
	s.syncMu.Unlock()
}

// SetMaxBufferFrames bounds the jitter buffer depth. Values below one are
// ignored.
func (s *AudioSink) SetMaxBufferFrames(n int) {
	if n <= 0 {
		return
	}
	s.bufMu.Lock()
	s.maxBufferFrames = n
	s.bufMu.Unlock()
}

// BufferSize returns the number of queued frames.
func (s *AudioSink) BufferSize() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return len(s.buf)
}

// CurrentDelayMs estimates the buffered latency assuming 10 ms frames.
func (s *AudioSink) CurrentDelayMs() int {
	return s.BufferSize() * 10
}

// OnPCM is the producer side: one decoded audio frame from the peer
// connection. data is copied; the caller keeps ownership of its buffer.
func (s *AudioSink) OnPCM(data []byte, bitsPerSample, sampleRate, channels, samples int, captureTsMs *int64) {
	if !s.running.Load() {
		return
	}

	frame := &media.PCMFrame{
		Data:          append([]byte(nil), data...),
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		Samples:       samples,
		PTSMs:         s.calculatePTS(s.nowMs()),
	}

	s.bufMu.Lock()
	overflow := len(s.buf) >= s.maxBufferFrames
	if overflow {
		s.buf = s.buf[1:]
	}
	s.buf = append(s.buf, frame)
	s.bufMu.Unlock()

	if overflow {
		s.emit(EventBufferOverflow, "audio buffer overflow, dropping oldest frame")
	}
}

// calculatePTS produces a monotonic presentation timestamp. The first frame
// adopts the video anchor (or zero); later frames advance by wallclock
// elapsed time, corrected gently toward the anchor-derived expected value so
// playback never jumps audibly.
func (s *AudioSink) calculatePTS(nowMs int64) int64 {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if !s.firstSeen {
		s.firstSeen = true
		s.firstAudioMs = nowMs
		if s.hasAnchor {
			s.firstAudioPTS = s.anchor.VideoPTSMs
		} else {
			s.firstAudioPTS = 0
		}
		s.lastPTS = s.firstAudioPTS
		return s.firstAudioPTS
	}

	elapsed := nowMs - s.firstAudioMs
	pts := s.firstAudioPTS + elapsed

	if s.hasAnchor {
		expected := s.anchor.VideoPTSMs + (nowMs - s.anchor.WallclockMs)
		diff := pts - expected
		if diff < 0 {
			diff = -diff
		}
		if diff > s.targetDelayMs {
			// Correct a quarter of the deviation per frame; a full step
			// would be an audible click.
			adjustment := (pts - expected) / 4
			pts -= adjustment
			s.firstAudioPTS = pts - elapsed
		}
	}

	if pts < s.lastPTS {
		pts = s.lastPTS
	}
	s.lastPTS = pts
	return pts
}

func (s *AudioSink) drainLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		frame := s.pop()
		if frame != nil {
			if err := s.out.WriteFrame(frame); err != nil {
				log.Printf("[audio] device write failed: %v", err)
				s.emit(EventDeviceError, "failed to write frame to audio device")
			}
			continue
		}

		s.emit(EventBufferUnderflow, "audio buffer underflow")
		select {
		case <-s.done:
			return
		case <-time.After(drainInterval):
		}
	}
}

func (s *AudioSink) pop() *media.PCMFrame {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	frame := s.buf[0]
	s.buf = s.buf[1:]
	return frame
}

func (s *AudioSink) emit(code EventCode, msg string) {
	if s.onEvent != nil {
		s.onEvent(Event{Code: code, Message: msg})
	}
}
