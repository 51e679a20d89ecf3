package webrtc

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/zw326/rk3566/internal/media"
)

const videoClockRate = 90000

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// rtpTimestamp unwraps the 32-bit RTP timestamp into a monotonic 64-bit
// tick count so presentation times survive wraparound.
type rtpTimestamp struct {
	last    uint32
	ticks   int64
	started bool
}

func (t *rtpTimestamp) extend(ts uint32) int64 {
	if !t.started {
		t.started = true
		t.last = ts
		t.ticks = int64(ts)
		return t.ticks
	}
	t.ticks += int64(int32(ts - t.last))
	t.last = ts
	return t.ticks
}

// accessUnit accumulates the Annex-B NALUs of one video frame. Buffers come
// from a pool; the frame's Release callback returns them once the decoder is
// done, which keeps the hot path allocation-free in steady state.
type accessUnit struct {
	pool     *sync.Pool
	buf      []byte
	keyframe bool
	width    int
	height   int
}

func newAccessUnit(pool *sync.Pool) *accessUnit {
	return &accessUnit{pool: pool}
}

func (au *accessUnit) add(nalu []byte, key bool) {
	if au.buf == nil {
		au.buf = au.pool.Get().([]byte)[:0]
	}
	au.buf = append(au.buf, annexBStartCode...)
	au.buf = append(au.buf, nalu...)
	if key {
		au.keyframe = true
	}
}

func (au *accessUnit) empty() bool { return len(au.buf) == 0 }

// finish emits the assembled frame and rearms the unit.
func (au *accessUnit) finish(codec media.Codec, ptsMs int64, w, h int) *media.EncodedFrame {
	buf := au.buf
	pool := au.pool
	frame := &media.EncodedFrame{
		Data:     buf,
		PTSMs:    ptsMs,
		Keyframe: au.keyframe,
		Width:    w,
		Height:   h,
		Codec:    codec,
		Release:  func() { pool.Put(buf[:0]) },
	}
	au.buf = nil
	au.keyframe = false
	return frame
}

// readVideoTrack drains RTP from the remote video track, reassembles access
// units and hands encoded frames to the video sink. Runs on its own
// goroutine until the track closes.
func (p *Peer) readVideoTrack(track *pion.TrackRemote) {
	codec := media.CodecH264
	if track.Codec().MimeType == pion.MimeTypeH265 {
		codec = media.CodecH265
	}
	log.Printf("[webrtc] reading %s video track", codec)

	var (
		h264   = NewH264Depacketizer()
		h265   = NewH265Depacketizer()
		ts     rtpTimestamp
		pool   = &sync.Pool{New: func() any { return make([]byte, 0, 256<<10) }}
		au     = newAccessUnit(pool)
		width  = p.fallbackWidth
		height = p.fallbackHeight
	)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[webrtc] video track read error: %v", err)
			}
			return
		}

		nalus := p.depacketize(codec, h264, h265, pkt)
		for _, nalu := range nalus {
			if len(nalu) == 0 {
				continue
			}
			key := false
			switch codec {
			case media.CodecH264:
				key = isH264KeyNALU(nalu)
				if h264NALType(nalu) == 7 {
					if w, h, perr := parseH264SPS(nalu); perr == nil {
						width, height = w, h
					}
				}
			case media.CodecH265:
				key = isH265KeyNALU(nalu)
			}
			au.add(nalu, key)
		}

		// The marker bit closes the access unit.
		if pkt.Marker && !au.empty() {
			ptsMs := ts.extend(pkt.Timestamp) / (videoClockRate / 1000)
			frame := au.finish(codec, ptsMs, width, height)
			if err := p.video.OnEncodedFrame(frame); err != nil {
				log.Printf("[webrtc] video sink failed: %v", err)
				return
			}
		}
	}
}

func (p *Peer) depacketize(codec media.Codec, h264 *H264Depacketizer, h265 *H265Depacketizer, pkt *rtp.Packet) [][]byte {
	if codec == media.CodecH265 {
		return h265.Depacketize(pkt.SequenceNumber, pkt.Payload)
	}
	return h264.Depacketize(pkt.SequenceNumber, pkt.Payload)
}

// readAudioTrack drains RTP from the remote audio track, expands the G.711
// payload to PCM and feeds the audio sink. Runs on its own goroutine until
// the track closes.
func (p *Peer) readAudioTrack(track *pion.TrackRemote) {
	codec := track.Codec()
	aLaw := codec.MimeType == pion.MimeTypePCMA
	log.Printf("[webrtc] reading audio track: %s %dHz", codec.MimeType, codec.ClockRate)

	channels := int(codec.Channels)
	if channels == 0 {
		channels = 1
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[webrtc] audio track read error: %v", err)
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm := decodeG711(pkt.Payload, aLaw)
		samples := len(pkt.Payload) / channels
		p.audio.OnPCM(pcm, 16, int(codec.ClockRate), channels, samples, nil)
	}
}
