// Package sink contains the two media endpoints of the receiver: the video
// sink driving the hardware decode/display path and the audio sink driving
// the hardware audio output through a jitter buffer.
package sink

// EventCode classifies sink state events. Hot-path failures surface as
// events rather than errors so the pipeline keeps running.
type EventCode int

const (
	EventInitialized EventCode = iota
	EventStarted
	EventStopped
	EventFirstFrame
	EventKeyFrame
	EventSyncReset
	EventDecoderError
	EventDisplayError
	EventDeviceError
	EventBufferOverflow
	EventBufferUnderflow
)

func (c EventCode) String() string {
	switch c {
	case EventInitialized:
		return "initialized"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventFirstFrame:
		return "first_frame"
	case EventKeyFrame:
		return "key_frame"
	case EventSyncReset:
		return "sync_reset"
	case EventDecoderError:
		return "decoder_error"
	case EventDisplayError:
		return "display_error"
	case EventDeviceError:
		return "device_error"
	case EventBufferOverflow:
		return "buffer_overflow"
	case EventBufferUnderflow:
		return "buffer_underflow"
	default:
		return "unknown"
	}
}

// Event is one observability notification from a sink.
type Event struct {
	Code    EventCode
	Message string
}

// EventCallback receives sink events. It may be called from the media hot
// path and must return promptly.
type EventCallback func(Event)
