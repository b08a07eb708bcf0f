package heifitem

import (
	"fmt"
	"math"

	"github.com/go-heif/heifcore/heiferr"
)

// MaxUvlcLeadingZeros bounds the unary prefix of a uvlc code; a conforming
// depth-representation-info payload never needs more than a handful.
const MaxUvlcLeadingZeros = 20

// bitReader is a simple MSB-first bit reader over a byte slice, sized for
// the short SEI payloads decoded here (not general HEVC bitstream parsing).
type bitReader struct {
	data []byte
	pos  int // bit position
	err  error
}

func (r *bitReader) getBit() uint64 {
	if r.err != nil {
		return 0
	}
	byteIdx := r.pos / 8
	if byteIdx >= len(r.data) {
		r.err = heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "depth SEI bit reader exhausted")
		return 0
	}
	bit := (r.data[byteIdx] >> (7 - uint(r.pos%8))) & 1
	r.pos++
	return uint64(bit)
}

func (r *bitReader) getBits(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | r.getBit()
	}
	return v
}

// getUvlc reads an unsigned Exp-Golomb code: a unary run of zero bits
// terminated by a one bit, followed by that many value bits.
func (r *bitReader) getUvlc() uint64 {
	zeros := 0
	for r.err == nil && r.getBit() == 0 {
		zeros++
		if zeros > MaxUvlcLeadingZeros {
			r.err = heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
				fmt.Sprintf("uvlc leading zeros exceed %d", MaxUvlcLeadingZeros))
			return 0
		}
	}
	if r.err != nil {
		return 0
	}
	if zeros == 0 {
		return 0
	}
	info := r.getBits(zeros)
	return (uint64(1)<<uint(zeros) - 1) + info
}

// getDepthFloat decodes the custom floating-point encoding used by
// depth_representation_info's z_near/z_far/d_min/d_max fields: sign(1),
// exponent(7), mantissa_len(5, value+1), mantissa(mantissa_len bits).
func (r *bitReader) getDepthFloat() float64 {
	sign := r.getBit()
	exponent := r.getBits(7)
	mantissaLen := int(r.getBits(5)) + 1
	mantissa := r.getBits(mantissaLen)

	var value float64
	if exponent > 0 {
		value = math.Pow(2, float64(exponent)-31) * (1 + float64(mantissa)/math.Pow(2, float64(mantissaLen)))
	} else {
		value = math.Pow(2, -(30+float64(mantissaLen))) * float64(mantissa)
	}
	if sign == 1 {
		value = -value
	}
	return value
}

// decodeDepthRepresentationInfo parses the auxC subtype bytes of a depth
// auxiliary image: an outer 4-byte length, a second 4-byte nal_size (unused,
// present only in the on-disk layout), a 2-byte NAL header, a 1-byte
// payload_id, a 1-byte payload_size, and the bit-packed
// depth_representation_info payload itself (SEI payload type 177).
func decodeDepthRepresentationInfo(subtype []byte) (*DepthRepresentationInfo, error) {
	if len(subtype) < 4 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "auxC subtype too short for SEI length")
	}
	length := int(subtype[0])<<24 | int(subtype[1])<<16 | int(subtype[2])<<8 | int(subtype[3])
	nal := subtype[4:]
	if length <= 0 || length > len(nal) {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "auxC SEI length exceeds available bytes")
	}
	nal = nal[:length]
	if len(nal) < 4 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "auxC SEI NAL too short")
	}
	_ = nal[0:4] // nal_size, not needed: length already bounds the NAL
	nal = nal[4:]
	if len(nal) < 4 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "auxC SEI NAL too short")
	}

	nalType := (nal[0] >> 1) & 0x7F
	if nalType != 39 && nalType != 40 {
		return nil, heiferr.New(heiferr.UnsupportedFeature, heiferr.UnsupportedImageType,
			fmt.Sprintf("auxC NAL type %d is not a prefix/suffix SEI", nalType))
	}
	payload := nal[2:] // 2-byte NAL header
	if len(payload) < 2 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "auxC SEI payload too short")
	}
	payloadID := payload[0]
	_ = payload[1] // payload_size, not needed: we read exactly what the bit layout defines
	if payloadID != 177 {
		return nil, heiferr.New(heiferr.UnsupportedFeature, heiferr.UnsupportedImageType,
			fmt.Sprintf("auxC SEI payload type %d is not depth_representation_info", payloadID))
	}

	br := &bitReader{data: payload[2:]}
	info := &DepthRepresentationInfo{}
	info.HasZNear = br.getBit() == 1
	info.HasZFar = br.getBit() == 1
	info.HasDMin = br.getBit() == 1
	info.HasDMax = br.getBit() == 1

	info.RepresentationType = br.getUvlc()
	if info.HasDMin || info.HasDMax {
		info.HasDisparityReferenceView = true
		info.DisparityReferenceView = br.getUvlc()
	}
	if info.HasZNear {
		info.ZNear = br.getDepthFloat()
	}
	if info.HasZFar {
		info.ZFar = br.getDepthFloat()
	}
	if info.HasDMin {
		info.DMin = br.getDepthFloat()
	}
	if info.HasDMax {
		info.DMax = br.getDepthFloat()
	}
	if br.err != nil {
		return nil, br.err
	}
	return info, nil
}
