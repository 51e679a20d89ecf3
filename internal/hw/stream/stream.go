// Package stream is the software fallback for the media ports: it writes the
// Annex-B elementary stream to an io.Writer instead of decoding it, and
// discards or dumps PCM. It exists so the receiver runs on machines without
// the vendor MPI, with the output pipeable into a file or ffplay.
package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/zw326/rk3566/internal/media"
)

// System satisfies the hardware init contract with no-ops.
type System struct{}

func NewSystem() *System { return &System{} }

func (s *System) Init() error { return nil }

func (s *System) Deinit() {}

// Decoder writes submitted encoded frames to w as a raw Annex-B stream.
type Decoder struct {
	mu   sync.Mutex
	w    io.Writer
	open bool
}

func NewDecoder(w io.Writer) *Decoder { return &Decoder{w: w} }

func (d *Decoder) CreateChannel(cfg media.DecoderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return fmt.Errorf("stream: decoder already open")
	}
	d.open = true
	return nil
}

func (d *Decoder) SendStream(buf media.StreamBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return fmt.Errorf("stream: decoder not open")
	}
	if _, err := d.w.Write(buf.Data); err != nil {
		return fmt.Errorf("stream: write frame: %w", err)
	}
	if buf.Release != nil {
		buf.Release()
	}
	return nil
}

func (d *Decoder) DestroyChannel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

// Output is a display stand-in; frames already leave through the Decoder's
// writer, so enabling and binding are bookkeeping only.
type Output struct {
	mu      sync.Mutex
	enabled bool
}

func NewOutput() *Output { return &Output{} }

func (o *Output) Enable(cfg media.OutputConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = true
	return nil
}

func (o *Output) Bind(dec media.VideoDecoder) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return fmt.Errorf("stream: output not enabled")
	}
	return nil
}

func (o *Output) Disable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = false
	return nil
}

// Audio writes raw interleaved PCM to w, or discards it when w is nil.
type Audio struct {
	mu   sync.Mutex
	w    io.Writer
	open bool
}

func NewAudio(w io.Writer) *Audio {
	if w == nil {
		w = io.Discard
	}
	return &Audio{w: w}
}

func (a *Audio) Open(cfg media.AudioConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return fmt.Errorf("stream: audio already open")
	}
	a.open = true
	return nil
}

func (a *Audio) WriteFrame(f *media.PCMFrame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return fmt.Errorf("stream: audio not open")
	}
	if _, err := a.w.Write(f.Data); err != nil {
		return fmt.Errorf("stream: write pcm: %w", err)
	}
	return nil
}

func (a *Audio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	return nil
}
