// Package rockit drives the RK3566 media pipeline through the vendor MPI:
// the VDEC hardware decoder, the VO display path and the AO audio device.
// The MPI calls live behind the "rockit" build tag; without it every entry
// point reports ErrUnavailable so callers can fall back to a software sink.
package rockit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zw326/rk3566/internal/media"
)

// ErrUnavailable is returned when the vendor MPI is not present in this
// build or the hardware cannot be brought up.
var ErrUnavailable = errors.New("rockit: vendor MPI unavailable in this build")

const (
	vdecChannel = 0
	voChannel   = 0
	aoDevice    = 0
)

// System wraps the process-wide MPI init and teardown.
type System struct{}

func NewSystem() *System { return &System{} }

func (s *System) Init() error { return mpiSysInit() }

func (s *System) Deinit() { mpiSysExit() }

// Decoder is one VDEC channel in frame submit mode.
type Decoder struct {
	mu     sync.Mutex
	open   bool
	width  int
	height int
}

func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) CreateChannel(cfg media.DecoderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return fmt.Errorf("rockit: vdec channel %d already open", vdecChannel)
	}
	if err := mpiVdecCreate(vdecChannel, cfg.Codec, cfg.Width, cfg.Height, cfg.FrameBufCnt); err != nil {
		return err
	}
	d.open = true
	d.width = cfg.Width
	d.height = cfg.Height
	return nil
}

// SendStream submits one encoded frame. On success the MPI references the
// buffer in place and Release fires from its free callback once the
// decoder is done with it; on failure ownership stays with the caller.
func (d *Decoder) SendStream(buf media.StreamBuffer) error {
	d.mu.Lock()
	open, w, h := d.open, d.width, d.height
	d.mu.Unlock()
	if !open {
		return fmt.Errorf("rockit: vdec channel %d not open", vdecChannel)
	}
	return mpiVdecSend(vdecChannel, buf.Data, buf.PTSMs, w, h, buf.Release)
}

func (d *Decoder) DestroyChannel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	return mpiVdecDestroy(vdecChannel)
}

// Output is the VO display channel on the HDMI path, 1080p60, NV12.
type Output struct {
	mu      sync.Mutex
	enabled bool
	bound   bool
}

func NewOutput() *Output { return &Output{} }

func (o *Output) Enable(cfg media.OutputConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enabled {
		return fmt.Errorf("rockit: vo channel %d already enabled", voChannel)
	}
	if err := mpiVoCreate(voChannel, cfg.Width, cfg.Height); err != nil {
		return err
	}
	o.enabled = true
	return nil
}

// Bind routes the decoder channel's frames into the display layer. Only the
// rockit Decoder can be bound; the binding happens inside the MPI.
func (o *Output) Bind(dec media.VideoDecoder) error {
	if _, ok := dec.(*Decoder); !ok {
		return fmt.Errorf("rockit: cannot bind %T to vo channel", dec)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return fmt.Errorf("rockit: vo channel %d not enabled", voChannel)
	}
	if o.bound {
		return nil
	}
	if err := mpiVoBind(vdecChannel, voChannel); err != nil {
		return err
	}
	o.bound = true
	return nil
}

func (o *Output) Disable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return nil
	}
	o.enabled = false
	o.bound = false
	return mpiVoDestroy(voChannel)
}

// Audio is the AO device.
type Audio struct {
	mu   sync.Mutex
	open bool
	cfg  media.AudioConfig
}

func NewAudio() *Audio { return &Audio{} }

func (a *Audio) Open(cfg media.AudioConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return fmt.Errorf("rockit: ao device %d already open", aoDevice)
	}
	if err := mpiAoOpen(aoDevice, cfg.SampleRate, cfg.Channels, cfg.BitsPerSample); err != nil {
		return err
	}
	a.open = true
	a.cfg = cfg
	return nil
}

// WriteFrame blocks until the device accepts the frame.
func (a *Audio) WriteFrame(f *media.PCMFrame) error {
	a.mu.Lock()
	open, cfg := a.open, a.cfg
	a.mu.Unlock()
	if !open {
		return fmt.Errorf("rockit: ao device %d not open", aoDevice)
	}
	return mpiAoSend(aoDevice, f.Data, f.PTSMs, cfg.SampleRate, cfg.Channels, cfg.BitsPerSample, f.Samples)
}

func (a *Audio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil
	}
	a.open = false
	mpiAoClose(aoDevice)
	return nil
}
