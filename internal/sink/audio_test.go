package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zw326/rk3566/internal/media"
)

type mockAudioOutput struct {
	mu      sync.Mutex
	opened  bool
	cfg     media.AudioConfig
	frames  []*media.PCMFrame
	written chan *media.PCMFrame
	failOne bool
}

func newMockAudioOutput() *mockAudioOutput {
	return &mockAudioOutput{written: make(chan *media.PCMFrame, 256)}
}

func (m *mockAudioOutput) Open(cfg media.AudioConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	m.cfg = cfg
	return nil
}

func (m *mockAudioOutput) WriteFrame(f *media.PCMFrame) error {
	m.mu.Lock()
	fail := m.failOne
	m.failOne = false
	if !fail {
		m.frames = append(m.frames, f)
	}
	m.mu.Unlock()
	if fail {
		return errors.New("device busy")
	}
	m.written <- f
	return nil
}

func (m *mockAudioOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(code EventCode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Code == code {
			n++
		}
	}
	return n
}

func TestAudioSink_InitializeAppliesDefaults(t *testing.T) {
	out := newMockAudioOutput()
	s := NewAudioSink(out)

	if err := s.Initialize(media.AudioConfig{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if out.cfg.SampleRate != 48000 || out.cfg.Channels != 2 || out.cfg.BitsPerSample != 16 {
		t.Errorf("unexpected device config: %+v", out.cfg)
	}
}

func TestAudioSink_PTSWithoutAnchorStartsAtZero(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())

	if got := s.calculatePTS(1000); got != 0 {
		t.Errorf("first PTS: expected 0, got %d", got)
	}
	if got := s.calculatePTS(1010); got != 10 {
		t.Errorf("second PTS: expected 10, got %d", got)
	}
}

func TestAudioSink_PTSAdoptsVideoAnchor(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())
	s.SetVideoReference(500, 1000)

	if got := s.calculatePTS(1000); got != 500 {
		t.Errorf("first PTS: expected anchor 500, got %d", got)
	}
	if got := s.calculatePTS(1020); got != 520 {
		t.Errorf("second PTS: expected 520, got %d", got)
	}
}

func TestAudioSink_PTSDriftCorrection(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())
	s.SetVideoReference(1000, 1000)

	if got := s.calculatePTS(1000); got != 1000 {
		t.Fatalf("first PTS: expected 1000, got %d", got)
	}

	// A fresh anchor 160 ms behind the audio timeline. At now=1200 the
	// tentative PTS is 1200 and the expected value is 1040; a quarter of
	// the 160 ms deviation is corrected.
	s.SetVideoReference(840, 1000)
	if got := s.calculatePTS(1200); got != 1160 {
		t.Errorf("corrected PTS: expected 1160, got %d", got)
	}

	// The correction rebased the timeline, so the next frame keeps closing
	// the gap instead of reverting.
	got := s.calculatePTS(1240)
	if got >= 1200 {
		t.Errorf("rebase lost: expected PTS below 1200, got %d", got)
	}
}

func TestAudioSink_PTSNeverGoesBackward(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())

	if got := s.calculatePTS(1000); got != 0 {
		t.Fatalf("first PTS: expected 0, got %d", got)
	}

	// An anchor far in the past would pull the PTS negative; the clamp
	// holds it at the last emitted value.
	s.SetVideoReference(-1000, 1000)
	if got := s.calculatePTS(1010); got != 0 {
		t.Errorf("expected clamp at 0, got %d", got)
	}
}

func TestAudioSink_SmallDriftIsLeftAlone(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())
	s.SetVideoReference(1000, 1000)
	s.calculatePTS(1000)

	// 20 ms deviation is inside the 40 ms target delay.
	s.SetVideoReference(980, 1000)
	if got := s.calculatePTS(1100); got != 1100 {
		t.Errorf("expected uncorrected 1100, got %d", got)
	}
}

func TestAudioSink_BufferOverflowEvictsOldest(t *testing.T) {
	rec := &eventRecorder{}
	s := NewAudioSink(newMockAudioOutput())
	s.SetEventCallback(rec.record)
	s.running.Store(true)

	for i := 0; i < 101; i++ {
		s.OnPCM([]byte{byte(i)}, 16, 48000, 2, 1, nil)
	}

	if got := s.BufferSize(); got != 100 {
		t.Errorf("expected 100 buffered frames, got %d", got)
	}
	if got := rec.count(EventBufferOverflow); got != 1 {
		t.Errorf("expected 1 overflow event, got %d", got)
	}

	s.bufMu.Lock()
	oldest := s.buf[0].Data[0]
	s.bufMu.Unlock()
	if oldest != 1 {
		t.Errorf("expected oldest frame to be #1 after eviction, got #%d", oldest)
	}
}

func TestAudioSink_OnPCMIgnoredWhenStopped(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())

	s.OnPCM([]byte{0x01}, 16, 48000, 2, 1, nil)
	if got := s.BufferSize(); got != 0 {
		t.Errorf("expected empty buffer while stopped, got %d", got)
	}
}

func TestAudioSink_CurrentDelayEstimate(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())
	s.running.Store(true)

	for i := 0; i < 5; i++ {
		s.OnPCM([]byte{0x01}, 16, 48000, 2, 1, nil)
	}
	if got := s.CurrentDelayMs(); got != 50 {
		t.Errorf("expected 50 ms estimated delay, got %d", got)
	}
}

func TestAudioSink_ResetStartsFreshTimeline(t *testing.T) {
	rec := &eventRecorder{}
	s := NewAudioSink(newMockAudioOutput())
	s.SetEventCallback(rec.record)
	s.SetVideoReference(500, 1000)
	s.calculatePTS(1000)
	s.running.Store(true)
	s.OnPCM([]byte{0x01}, 16, 48000, 2, 1, nil)

	s.Reset()

	if got := s.BufferSize(); got != 0 {
		t.Errorf("expected empty buffer after reset, got %d", got)
	}
	if got := rec.count(EventSyncReset); got != 1 {
		t.Errorf("expected 1 sync reset event, got %d", got)
	}
	// The anchor is gone too; the next timeline starts at zero.
	if got := s.calculatePTS(2000); got != 0 {
		t.Errorf("expected fresh timeline at 0, got %d", got)
	}
}

func TestAudioSink_DrainWritesToDevice(t *testing.T) {
	out := newMockAudioOutput()
	s := NewAudioSink(out)
	if err := s.Initialize(media.AudioConfig{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	s.Start()
	defer s.Stop()

	s.OnPCM([]byte{0xAA, 0xBB}, 16, 48000, 2, 1, nil)

	select {
	case f := <-out.written:
		if len(f.Data) != 2 || f.Data[0] != 0xAA {
			t.Errorf("unexpected frame data %v", f.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device write")
	}
}

func TestAudioSink_DeviceErrorDropsFrame(t *testing.T) {
	rec := &eventRecorder{}
	out := newMockAudioOutput()
	out.failOne = true
	s := NewAudioSink(out)
	s.SetEventCallback(rec.record)
	if err := s.Initialize(media.AudioConfig{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	s.Start()
	defer s.Stop()

	s.OnPCM([]byte{0x01}, 16, 48000, 2, 1, nil)
	s.OnPCM([]byte{0x02}, 16, 48000, 2, 1, nil)

	// The failed frame is gone; the next one still arrives.
	select {
	case f := <-out.written:
		if f.Data[0] != 0x02 {
			t.Errorf("expected frame #2 after dropped frame, got #%d", f.Data[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device write")
	}
	if got := rec.count(EventDeviceError); got != 1 {
		t.Errorf("expected 1 device error event, got %d", got)
	}
}

func TestAudioSink_ConfigurableBufferDepth(t *testing.T) {
	s := NewAudioSink(newMockAudioOutput())
	s.SetMaxBufferFrames(3)
	s.running.Store(true)

	for i := 0; i < 4; i++ {
		s.OnPCM([]byte{byte(i)}, 16, 48000, 2, 1, nil)
	}

	if got := s.BufferSize(); got != 3 {
		t.Errorf("expected 3 buffered frames, got %d", got)
	}
	s.bufMu.Lock()
	oldest := s.buf[0].Data[0]
	s.bufMu.Unlock()
	if oldest != 1 {
		t.Errorf("expected oldest frame to be #1 after eviction, got #%d", oldest)
	}

	// Out-of-range values leave the bound alone.
	s.SetMaxBufferFrames(0)
	s.OnPCM([]byte{0x04}, 16, 48000, 2, 1, nil)
	if got := s.BufferSize(); got != 3 {
		t.Errorf("expected bound to stay at 3, got %d", got)
	}
}

func TestAudioSink_EmptyBufferEmitsUnderflow(t *testing.T) {
	out := newMockAudioOutput()
	s := NewAudioSink(out)
	underflow := make(chan struct{}, 1)
	s.SetEventCallback(func(ev Event) {
		if ev.Code == EventBufferUnderflow {
			select {
			case underflow <- struct{}{}:
			default:
			}
		}
	})
	if err := s.Initialize(media.AudioConfig{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-underflow:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for underflow event")
	}

	// The drain loop keeps running; a late frame still reaches the device.
	s.OnPCM([]byte{0x7F}, 16, 48000, 2, 1, nil)
	select {
	case f := <-out.written:
		if f.Data[0] != 0x7F {
			t.Errorf("unexpected frame data %v", f.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device write after underflow")
	}
}

func TestAudioSink_StopClosesDeviceWithoutStart(t *testing.T) {
	out := newMockAudioOutput()
	s := NewAudioSink(out)
	if err := s.Initialize(media.AudioConfig{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	s.Stop()

	out.mu.Lock()
	opened := out.opened
	out.mu.Unlock()
	if opened {
		t.Error("expected device to be closed after Stop without Start")
	}

	// A second Stop is a no-op.
	s.Stop()
}
