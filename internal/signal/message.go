package signal

import "encoding/json"

// Type is the canonical signaling message kind.
type Type int

const (
	TypeRegister Type = iota
	TypeOffer
	TypeAnswer
	TypeCandidate
	TypeLeave
	TypeError
)

// String returns the canonical wire name.
func (t Type) String() string {
	switch t {
	case TypeRegister:
		return "register"
	case TypeOffer:
		return "offer"
	case TypeAnswer:
		return "answer"
	case TypeCandidate:
		return "candidate"
	case TypeLeave:
		return "leave"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseType maps a wire type name onto the canonical variant. Servers use
// richer names for room events; those fold into register/leave. Unknown
// names map to TypeError, mirroring the server's own error convention.
func ParseType(s string) Type {
	switch s {
	case "register", "register_success", "client_exists", "client_joined":
		return TypeRegister
	case "offer":
		return TypeOffer
	case "answer":
		return TypeAnswer
	case "candidate":
		return TypeCandidate
	case "leave", "client_left":
		return TypeLeave
	default:
		return TypeError
	}
}

// Envelope is the one-JSON-object-per-frame wire format. Every outbound
// envelope carries roomId and from; to is present only on peer-targeted
// messages.
type Envelope struct {
	Type          string `json:"type"`
	RoomID        string `json:"roomId"`
	From          string `json:"from"`
	To            string `json:"to,omitempty"`
	SDP           string `json:"sdp,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex *int   `json:"sdpMLineIndex,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// DecodeEnvelope parses one inbound text frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
