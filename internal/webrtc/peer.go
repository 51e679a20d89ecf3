// Package webrtc owns the peer connection: SDP negotiation as the answerer,
// ICE candidate exchange, and demultiplexing of the inbound tracks into the
// hardware-backed sinks.
package webrtc

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"

	"github.com/zw326/rk3566/internal/media"
	"github.com/zw326/rk3566/internal/signal"
)

// DefaultSTUNURL is the single ICE server used when none is configured.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// VideoFrameSink consumes intercepted encoded video frames.
type VideoFrameSink interface {
	OnEncodedFrame(frame *media.EncodedFrame) error
	Reset()
}

// AudioPCMSink consumes decoded PCM audio.
type AudioPCMSink interface {
	OnPCM(data []byte, bitsPerSample, sampleRate, channels, samples int, captureTsMs *int64)
	Reset()
}

// Signaler is the outbound half of the signaling client the peer needs.
type Signaler interface {
	SendAnswer(sdp, to string)
	SendCandidate(sdpMid string, sdpMLineIndex int, candidate, to string)
}

// Config tunes the peer connection.
type Config struct {
	STUNURL string
	// Codec is the video codec negotiated with the sender, matching what the
	// decoder channel will be configured for. The zero value is H264.
	Codec media.Codec
	// Fallback frame dimensions used when the bitstream does not carry them
	// (H265, or H264 before the first SPS).
	FallbackWidth  int
	FallbackHeight int
}

// Peer is the answerer-side coordinator: it owns the single peer
// connection, reacts to signaling, and routes tracks to the sinks. At most
// one peer connection exists at a time; it never creates an offer.
type Peer struct {
	pc       *pion.PeerConnection
	signaler Signaler
	video    VideoFrameSink
	audio    AudioPCMSink

	fallbackWidth  int
	fallbackHeight int

	mu            sync.Mutex
	remoteID      string
	remoteDescSet bool
	pending       []pion.ICECandidateInit

	closed atomic.Bool
}

// NewPeer creates the peer connection with Unified-Plan semantics, the
// receiver-side interceptors, the configured video codec and the G.711
// audio codecs.
func NewPeer(cfg Config, signaler Signaler, video VideoFrameSink, audio AudioPCMSink) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := registerCodecs(m, cfg.Codec); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := pion.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generator)
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(3 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("create pli generator: %w", err)
	}
	i.Add(pli)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	stunURL := cfg.STUNURL
	if stunURL == "" {
		stunURL = DefaultSTUNURL
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: []pion.ICEServer{{URLs: []string{stunURL}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:             pc,
		signaler:       signaler,
		video:          video,
		audio:          audio,
		fallbackWidth:  cfg.FallbackWidth,
		fallbackHeight: cfg.FallbackHeight,
	}

	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnICEConnectionStateChange(p.onICEStateChange)
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[webrtc] peer connection state: %s", state)
	})
	pc.OnTrack(p.onTrack)

	return p, nil
}

// videoCodecParameters maps the configured decoder codec to its RTP
// negotiation parameters.
func videoCodecParameters(codec media.Codec) (pion.RTPCodecParameters, error) {
	videoFeedback := []pion.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
	}

	switch codec {
	case media.CodecH264:
		return pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    videoClockRate,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 102,
		}, nil
	case media.CodecH265:
		return pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH265,
				ClockRate:    videoClockRate,
				SDPFmtpLine:  "profile-id=1;tier-flag=0;level-id=123",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 98,
		}, nil
	default:
		return pion.RTPCodecParameters{}, fmt.Errorf("unsupported video codec %s", codec)
	}
}

func registerCodecs(m *pion.MediaEngine, codec media.Codec) error {
	video, err := videoCodecParameters(codec)
	if err != nil {
		return err
	}
	if err := m.RegisterCodec(video, pion.RTPCodecTypeVideo); err != nil {
		return fmt.Errorf("register %s: %w", video.MimeType, err)
	}

	pcmu := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 0,
	}
	if err := m.RegisterCodec(pcmu, pion.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("register PCMU: %w", err)
	}

	pcma := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMA,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 8,
	}
	if err := m.RegisterCodec(pcma, pion.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("register PCMA: %w", err)
	}

	return nil
}

// RemoteClientID returns the pinned peer id, empty until the first offer.
func (p *Peer) RemoteClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteID
}

// HandleSignal dispatches one inbound signaling message. Only OFFER and
// CANDIDATE drive the peer; everything else is ignored here.
func (p *Peer) HandleSignal(t signal.Type, raw []byte) {
	if p.closed.Load() {
		return
	}
	env, err := signal.DecodeEnvelope(raw)
	if err != nil {
		log.Printf("[webrtc] dropping malformed signal: %v", err)
		return
	}

	switch t {
	case signal.TypeOffer:
		p.handleOffer(env)
	case signal.TypeCandidate:
		p.handleCandidate(env)
	default:
	}
}

// handleOffer runs the answerer chain: pin the remote id, apply the remote
// description, create and apply the answer, send it back. A failure at any
// hop abandons this negotiation; a new offer is required.
func (p *Peer) handleOffer(env *signal.Envelope) {
	if env.SDP == "" {
		log.Printf("[webrtc] offer without sdp, ignoring")
		return
	}

	p.mu.Lock()
	if p.remoteID == "" && env.From != "" {
		p.remoteID = env.From
		log.Printf("[webrtc] remote peer pinned: %s", p.remoteID)
	}
	remoteID := p.remoteID
	p.mu.Unlock()

	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: env.SDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		log.Printf("[webrtc] set remote description: %v, abandoning negotiation", err)
		return
	}
	p.flushPendingCandidates()

	if p.closed.Load() {
		return
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		log.Printf("[webrtc] create answer: %v, abandoning negotiation", err)
		return
	}

	if p.closed.Load() {
		return
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		log.Printf("[webrtc] set local description: %v, abandoning negotiation", err)
		return
	}

	p.signaler.SendAnswer(answer.SDP, remoteID)
	log.Printf("[webrtc] answer sent to %s", remoteID)
}

func (p *Peer) handleCandidate(env *signal.Envelope) {
	if env.Candidate == "" {
		log.Printf("[webrtc] candidate without payload, dropping")
		return
	}

	mid := env.SDPMid
	var mLine uint16
	if env.SDPMLineIndex != nil {
		mLine = uint16(*env.SDPMLineIndex)
	}
	init := pion.ICECandidateInit{
		Candidate:     env.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mLine,
	}

	p.mu.Lock()
	if !p.remoteDescSet {
		// Candidates may race ahead of the offer; hold them until the
		// remote description lands.
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(init); err != nil {
		log.Printf("[webrtc] add ice candidate: %v, dropping", err)
	}
}

func (p *Peer) flushPendingCandidates() {
	p.mu.Lock()
	p.remoteDescSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, init := range pending {
		if err := p.pc.AddICECandidate(init); err != nil {
			log.Printf("[webrtc] add pending ice candidate: %v, dropping", err)
		}
	}
}

func (p *Peer) onLocalCandidate(c *pion.ICECandidate) {
	if c == nil {
		log.Printf("[webrtc] ICE gathering complete")
		return
	}

	remoteID := p.RemoteClientID()
	if remoteID == "" {
		log.Printf("[webrtc] local candidate before offer, dropping")
		return
	}

	j := c.ToJSON()
	mid := ""
	if j.SDPMid != nil {
		mid = *j.SDPMid
	}
	mLine := 0
	if j.SDPMLineIndex != nil {
		mLine = int(*j.SDPMLineIndex)
	}
	p.signaler.SendCandidate(mid, mLine, j.Candidate, remoteID)
}

func (p *Peer) onICEStateChange(state pion.ICEConnectionState) {
	log.Printf("[webrtc] ICE connection state: %s", state)
	if state == pion.ICEConnectionStateDisconnected || state == pion.ICEConnectionStateFailed {
		// Clear buffers and sync state so a recovered connection starts
		// from a clean timeline.
		p.video.Reset()
		p.audio.Reset()
	}
}

func (p *Peer) onTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	codec := track.Codec()
	log.Printf("[webrtc] got track: kind=%s codec=%s pt=%d", track.Kind(), codec.MimeType, codec.PayloadType)

	if track.Kind() == pion.RTPCodecTypeVideo {
		go p.readVideoTrack(track)
	} else {
		go p.readAudioTrack(track)
	}
}

// Close shuts the peer connection down, which also stops pion's internal
// transport goroutines and the track readers.
func (p *Peer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if err := p.pc.Close(); err != nil {
		log.Printf("[webrtc] close peer connection: %v", err)
	}
}
