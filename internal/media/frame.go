package media

// Codec identifies the video bitstream format carried to the hardware decoder.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	default:
		return "unknown"
	}
}

// EncodedFrame is one encoded video access unit, intercepted before any
// software decoding. Data is host-owned; when the frame is handed to the
// decoder its lifetime is extended until the Release callback fires.
type EncodedFrame struct {
	Data     []byte
	PTSMs    int64
	Keyframe bool
	Width    int
	Height   int
	Codec    Codec

	// Release returns the underlying buffer to its owner. May be nil.
	Release func()
}

// PCMFrame is one decoded audio frame queued for the hardware audio output.
type PCMFrame struct {
	Data          []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       int
	PTSMs         int64
}

// SyncAnchor pairs a video presentation timestamp with the wallclock instant
// it was observed. Published by the video path, consumed by the audio path.
type SyncAnchor struct {
	VideoPTSMs  int64
	WallclockMs int64
}
