package bmff

import "github.com/go-heif/heifcore/brange"

// HevcConfig is the decoder configuration record carried by a "hvcC" box:
// profile/level/tier fields plus the VPS/SPS/PPS parameter-set NAL units
// the item extractor must prepend to every hvc1 item's bitstream.
type HevcConfig struct {
	Version                          uint8
	GeneralProfileSpace              uint8
	GeneralTierFlag                  uint8
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralLevelIdc                  uint8

	MinSpatialSegmentationIdc uint16
	ParallelismType           uint8
	ChromaFormat              uint8
	BitDepthLuma              uint8
	BitDepthChroma            uint8
	AvgFrameRate              uint16

	ConstantFrameRate uint8
	NumTemporalLayers uint8
	TemporalIDNested  uint8
}

// HevcNalArray is one completeness/type group of parameter-set NAL units.
type HevcNalArray struct {
	Completeness uint8
	UnitType     uint8 // HEVC NAL unit type (VPS=32, SPS=33, PPS=34, ...)
	Units        [][]byte
}

// ItemHevcConfigBox is the "hvcC" property.
type ItemHevcConfigBox struct {
	Header_  BoxHeader
	Config   HevcConfig
	NalArray []HevcNalArray
}

func (b *ItemHevcConfigBox) Header() BoxHeader { return b.Header_ }
func (b *ItemHevcConfigBox) Size() int64       { return int64(b.Header_.Size) }
func (b *ItemHevcConfigBox) Type() BoxType     { return b.Header_.Type }
func (b *ItemHevcConfigBox) Parse() (Box, error) { return b, nil }
func (b *ItemHevcConfigBox) Body() []byte        { return nil }

// ParameterSetUnits returns every parameter-set NAL unit's raw bytes (no
// length prefix, no start code), in array order, ready for the item
// extractor to convert to an Annex-B elementary stream alongside the item's
// own coded-slice NAL units.
func (b *ItemHevcConfigBox) ParameterSetUnits() [][]byte {
	var out [][]byte
	for _, na := range b.NalArray {
		out = append(out, na.Units...)
	}
	return out
}

func parseItemHevcConfigBox(h BoxHeader, r *brange.Range) (Box, error) {
	ib := &ItemHevcConfigBox{Header_: h}
	c := &ib.Config

	c.Version = r.ReadU8()
	b1 := r.ReadU8()
	c.GeneralProfileSpace = (b1 >> 6) & 3
	c.GeneralTierFlag = (b1 >> 5) & 1
	c.GeneralProfileIdc = b1 & 0x1F

	c.GeneralProfileCompatibilityFlags = r.ReadU32BE()
	r.ReadBytes(6) // general_constraint_indicator_flags (48 bits)

	c.GeneralLevelIdc = r.ReadU8()
	c.MinSpatialSegmentationIdc = r.ReadU16BE() & 0x0FFF
	c.ParallelismType = r.ReadU8() & 3
	c.ChromaFormat = r.ReadU8() & 3
	c.BitDepthLuma = (r.ReadU8() & 7) + 8
	c.BitDepthChroma = (r.ReadU8() & 7) + 8
	c.AvgFrameRate = r.ReadU16BE()

	b2 := r.ReadU8()
	c.ConstantFrameRate = (b2 >> 6) & 3
	c.NumTemporalLayers = (b2 >> 3) & 7
	c.TemporalIDNested = (b2 >> 2) & 1

	numArrays := r.ReadU8()
	if r.Err() != nil {
		return nil, r.Err()
	}

	for i := uint8(0); i < numArrays; i++ {
		ah := r.ReadU8()
		na := HevcNalArray{
			Completeness: (ah >> 7) & 1,
			UnitType:     ah & 0x3F,
		}
		numUnits := r.ReadU16BE()
		for j := uint16(0); j < numUnits; j++ {
			size := r.ReadU16BE()
			if size == 0 {
				continue
			}
			unit := r.ReadBytes(int(size))
			if r.Err() != nil {
				return nil, r.Err()
			}
			na.Units = append(na.Units, unit)
		}
		ib.NalArray = append(ib.NalArray, na)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ib, nil
}
