package webrtc

// H265 RTP payload types from RFC 7798.
const (
	h265TypeAP = 48
	h265TypeFU = 49
)

// H265Depacketizer extracts NAL units from RTP H265 payloads. Same shape as
// the H264 depacketizer: single NAL, aggregation (AP), fragmentation (FU).
type H265Depacketizer struct {
	fuBuf    []byte
	fuSeq    uint16
	fuActive bool
}

// NewH265Depacketizer creates a new depacketizer with its own reassembly buffer.
func NewH265Depacketizer() *H265Depacketizer {
	return &H265Depacketizer{}
}

// Depacketize extracts NAL units from an RTP H265 payload.
func (d *H265Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	naluType := (payload[0] >> 1) & 0x3f

	switch naluType {
	case h265TypeAP:
		return d.depacketizeAP(payload)
	case h265TypeFU:
		return d.depacketizeFU(seq, payload)
	default:
		if naluType < h265TypeAP {
			return [][]byte{payload}
		}
		return nil
	}
}

func (d *H265Depacketizer) depacketizeAP(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 2 // skip the two-byte payload header

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H265Depacketizer) depacketizeFU(seq uint16, payload []byte) [][]byte {
	if len(payload) < 3 {
		return nil
	}

	fuHeader := payload[2]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x3f

	if start {
		// Rebuild the two-byte NAL header: layer/TID bits from the payload
		// header, type from the FU header.
		hdr0 := (payload[0] & 0x81) | (naluType << 1)
		d.fuBuf = []byte{hdr0, payload[1]}
		d.fuBuf = append(d.fuBuf, payload[3:]...)
		d.fuSeq = seq
		d.fuActive = true
		return nil
	}

	if !d.fuActive || seq != d.fuSeq+1 {
		d.fuBuf = nil
		d.fuActive = false
		return nil
	}

	d.fuBuf = append(d.fuBuf, payload[3:]...)
	d.fuSeq = seq

	if end {
		nalu := d.fuBuf
		d.fuBuf = nil
		d.fuActive = false
		return [][]byte{nalu}
	}

	return nil
}

// h265NALType returns the NAL unit type of an H265 NALU.
func h265NALType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return (nalu[0] >> 1) & 0x3f
}

// isH265KeyNALU reports whether the NALU marks a decoder resync point.
// Types 16-21 are IRAP pictures (BLA/IDR/CRA); 32/33 are VPS/SPS.
func isH265KeyNALU(nalu []byte) bool {
	t := h265NALType(nalu)
	return (t >= 16 && t <= 21) || t == 32 || t == 33
}
