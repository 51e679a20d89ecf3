package webrtc

import "errors"

var errSPSTruncated = errors.New("truncated SPS")

// parseH264SPS extracts the coded frame dimensions from an H264 sequence
// parameter set NALU (including the NAL header byte). The hardware decoder
// channel is sized from these.
func parseH264SPS(nalu []byte) (width, height int, err error) {
	if len(nalu) < 4 || h264NALType(nalu) != 7 {
		return 0, 0, errors.New("not an SPS NALU")
	}

	r := newBitReader(stripEmulationPrevention(nalu[1:]))

	profileIDC, err := r.bits(8)
	if err != nil {
		return 0, 0, err
	}
	if _, err = r.bits(16); err != nil { // constraint flags + level_idc
		return 0, 0, err
	}
	if _, err = r.ue(); err != nil { // seq_parameter_set_id
		return 0, 0, err
	}

	chromaFormatIDC := uint32(1)
	switch profileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		if chromaFormatIDC, err = r.ue(); err != nil {
			return 0, 0, err
		}
		if chromaFormatIDC == 3 {
			if _, err = r.bits(1); err != nil { // separate_colour_plane_flag
				return 0, 0, err
			}
		}
		if _, err = r.ue(); err != nil { // bit_depth_luma_minus8
			return 0, 0, err
		}
		if _, err = r.ue(); err != nil { // bit_depth_chroma_minus8
			return 0, 0, err
		}
		if _, err = r.bits(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return 0, 0, err
		}
		var scalingMatrix uint32
		if scalingMatrix, err = r.bits(1); err != nil {
			return 0, 0, err
		}
		if scalingMatrix == 1 {
			lists := 8
			if chromaFormatIDC == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				var present uint32
				if present, err = r.bits(1); err != nil {
					return 0, 0, err
				}
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err = r.skipScalingList(size); err != nil {
						return 0, 0, err
					}
				}
			}
		}
	}

	if _, err = r.ue(); err != nil { // log2_max_frame_num_minus4
		return 0, 0, err
	}
	pocType, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	switch pocType {
	case 0:
		if _, err = r.ue(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return 0, 0, err
		}
	case 1:
		if _, err = r.bits(1); err != nil { // delta_pic_order_always_zero_flag
			return 0, 0, err
		}
		if _, err = r.se(); err != nil { // offset_for_non_ref_pic
			return 0, 0, err
		}
		if _, err = r.se(); err != nil { // offset_for_top_to_bottom_field
			return 0, 0, err
		}
		cycle, cerr := r.ue()
		if cerr != nil {
			return 0, 0, cerr
		}
		for i := uint32(0); i < cycle; i++ {
			if _, err = r.se(); err != nil {
				return 0, 0, err
			}
		}
	}

	if _, err = r.ue(); err != nil { // max_num_ref_frames
		return 0, 0, err
	}
	if _, err = r.bits(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return 0, 0, err
	}

	picWidthInMbs, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	picHeightInMapUnits, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	frameMbsOnly, err := r.bits(1)
	if err != nil {
		return 0, 0, err
	}
	if frameMbsOnly == 0 {
		if _, err = r.bits(1); err != nil { // mb_adaptive_frame_field_flag
			return 0, 0, err
		}
	}
	if _, err = r.bits(1); err != nil { // direct_8x8_inference_flag
		return 0, 0, err
	}

	cropping, err := r.bits(1)
	if err != nil {
		return 0, 0, err
	}
	var cropLeft, cropRight, cropTop, cropBottom uint32
	if cropping == 1 {
		if cropLeft, err = r.ue(); err != nil {
			return 0, 0, err
		}
		if cropRight, err = r.ue(); err != nil {
			return 0, 0, err
		}
		if cropTop, err = r.ue(); err != nil {
			return 0, 0, err
		}
		if cropBottom, err = r.ue(); err != nil {
			return 0, 0, err
		}
	}

	cropUnitX := uint32(1)
	cropUnitY := 2 - frameMbsOnly
	if chromaFormatIDC == 1 || chromaFormatIDC == 2 {
		cropUnitX = 2
	}
	if chromaFormatIDC == 1 {
		cropUnitY *= 2
	}

	w := (picWidthInMbs+1)*16 - (cropLeft+cropRight)*cropUnitX
	h := (picHeightInMapUnits+1)*16*(2-frameMbsOnly) - (cropTop+cropBottom)*cropUnitY
	return int(w), int(h), nil
}

// stripEmulationPrevention removes 00 00 03 escape bytes from an RBSP.
func stripEmulationPrevention(in []byte) []byte {
	out := make([]byte, 0, len(in))
	zeros := 0
	for i := 0; i < len(in); i++ {
		if zeros == 2 && in[i] == 0x03 {
			zeros = 0
			continue
		}
		if in[i] == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, in[i])
	}
	return out
}

type bitReader struct {
	data []byte
	pos  int // bit position
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) bits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		byteIdx := r.pos / 8
		if byteIdx >= len(r.data) {
			return 0, errSPSTruncated
		}
		bit := (r.data[byteIdx] >> (7 - uint(r.pos%8))) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v, nil
}

// ue reads an unsigned exp-Golomb code.
func (r *bitReader) ue() (uint32, error) {
	zeros := 0
	for {
		b, err := r.bits(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errSPSTruncated
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	rest, err := r.bits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<uint(zeros) - 1 + rest, nil
}

// se reads a signed exp-Golomb code.
func (r *bitReader) se() (int32, error) {
	v, err := r.ue()
	if err != nil {
		return 0, err
	}
	if v%2 == 0 {
		return -int32(v / 2), nil
	}
	return int32(v/2) + 1, nil
}

func (r *bitReader) skipScalingList(size int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta, err := r.se()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}
