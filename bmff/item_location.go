package bmff

import (
	"fmt"

	"github.com/go-heif/heifcore/brange"
	"github.com/go-heif/heifcore/heiferr"
)

// Construction methods for an ItemLocationBoxEntry, per ISO/IEC 14496-12.
const (
	ConstructionFileOffset uint8 = 0
	ConstructionIdatOffset uint8 = 1
)

// Extent is a single {offset, length, index} extent of an item's location.
type Extent struct {
	Offset, Length, Index uint64
}

// ItemLocationBoxEntry is one item's entry in the "iloc" table.
type ItemLocationBoxEntry struct {
	ItemID             uint32
	ConstructionMethod uint8
	DataReferenceIndex uint16
	BaseOffset         uint64
	Extents            []Extent
}

// ItemLocationBox is the "iloc" box: maps item ids to their byte extents.
type ItemLocationBox struct {
	FullBox

	offsetSize, lengthSize, baseOffsetSize, indexSize uint8

	ItemCount uint32
	Items     []ItemLocationBoxEntry
}

func (b *ItemLocationBox) Parse() (Box, error) { return b, nil }
func (b *ItemLocationBox) Body() []byte        { return nil }

// ByID returns the entry for id, or false if absent.
func (b *ItemLocationBox) ByID(id uint32) (ItemLocationBoxEntry, bool) {
	for _, e := range b.Items {
		if e.ItemID == id {
			return e, true
		}
	}
	return ItemLocationBoxEntry{}, false
}

func parseItemLocationBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	ilb := &ItemLocationBox{FullBox: fb}

	nibble := r.ReadU16BE()
	ilb.offsetSize = uint8(nibble >> 12 & 0xF)
	ilb.lengthSize = uint8(nibble >> 8 & 0xF)
	ilb.baseOffsetSize = uint8(nibble >> 4 & 0xF)
	if fb.Version >= 1 {
		ilb.indexSize = uint8(nibble & 0xF)
	}

	if fb.Version < 2 {
		ilb.ItemCount = uint32(r.ReadU16BE())
	} else {
		ilb.ItemCount = r.ReadU32BE()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if ilb.ItemCount > MaxLocationItems {
		return nil, heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
			fmt.Sprintf("iloc declares %d items, exceeding the %d-item limit", ilb.ItemCount, MaxLocationItems))
	}

	for i := uint32(0); r.Err() == nil && i < ilb.ItemCount; i++ {
		var ent ItemLocationBoxEntry
		if fb.Version < 2 {
			ent.ItemID = uint32(r.ReadU16BE())
		} else {
			ent.ItemID = r.ReadU32BE()
		}
		if fb.Version >= 1 {
			cm := r.ReadU16BE()
			ent.ConstructionMethod = uint8(cm & 0xF)
		}
		ent.DataReferenceIndex = r.ReadU16BE()
		ent.BaseOffset = r.ReadUintN(int(ilb.baseOffsetSize))

		extentCount := r.ReadU16BE()
		if r.Err() != nil {
			break
		}
		if int(extentCount) > MaxExtentsPerItem {
			return nil, heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
				fmt.Sprintf("item %d declares %d extents, exceeding the %d-extent limit", ent.ItemID, extentCount, MaxExtentsPerItem))
		}
		for j := uint16(0); r.Err() == nil && j < extentCount; j++ {
			var ext Extent
			if fb.Version > 1 && ilb.indexSize > 0 {
				ext.Index = r.ReadUintN(int(ilb.indexSize))
			}
			ext.Offset = r.ReadUintN(int(ilb.offsetSize))
			ext.Length = r.ReadUintN(int(ilb.lengthSize))
			ent.Extents = append(ent.Extents, ext)
		}
		ilb.Items = append(ilb.Items, ent)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ilb, nil
}
