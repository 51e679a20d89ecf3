package media

// DecoderConfig carries everything the hardware video decoder needs to open
// a channel. Codec type belongs here; pixel format belongs on the output
// layer only.
type DecoderConfig struct {
	Codec       Codec
	Width       int
	Height      int
	FrameBufCnt int
}

// StreamBuffer wraps a host-owned encoded buffer for a zero-copy decoder
// submit. The implementation must reference Data in place and invoke Release
// once its internal reference count drops; on a failed submit the caller
// releases.
type StreamBuffer struct {
	Data    []byte
	PTSMs   int64
	Release func()
}

// VideoDecoder is one hardware decode channel.
type VideoDecoder interface {
	CreateChannel(cfg DecoderConfig) error
	// SendStream submits an encoded frame. Ownership of buf transfers only
	// on success.
	SendStream(buf StreamBuffer) error
	DestroyChannel() error
}

// OutputConfig configures the display layer the decoder is bound to.
type OutputConfig struct {
	Width  int
	Height int
}

// VideoOutput is the display side: HDMI interface, 1080p60 timing, main
// video layer with an NV12 surface of the configured rectangle.
type VideoOutput interface {
	Enable(cfg OutputConfig) error
	// Bind routes the decoder channel's output frames into the layer.
	Bind(dec VideoDecoder) error
	Disable() error
}

// AudioConfig fixes the device-wide audio parameters. Sample rate and bit
// width live on the device, not on individual frames.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// AudioOutput is the hardware audio sink. WriteFrame blocks until the device
// accepts the frame.
type AudioOutput interface {
	Open(cfg AudioConfig) error
	WriteFrame(f *PCMFrame) error
	Close() error
}

// System is the process-wide vendor subsystem, acquired once before any
// channel is created and released after every channel is gone.
type System interface {
	Init() error
	Deinit()
}
