package bmff

import (
	"bytes"

	"github.com/go-heif/heifcore/brange"
)

// ItemReferenceEntry is one entry of an "iref" box: a typed reference
// (thmb, auxl, dimg, cdsc, ...) from one item to a list of others. The
// reference's semantic type is the entry's own box type (SingleItemTypeReferenceBox).
type ItemReferenceEntry struct {
	Type       BoxType
	FromItemID uint32
	ToItemIDs  []uint32
}

// ItemReferenceBox is the "iref" box: a list of typed inter-item references.
type ItemReferenceBox struct {
	FullBox
	Refs []ItemReferenceEntry
}

func (b *ItemReferenceBox) Parse() (Box, error) { return b, nil }
func (b *ItemReferenceBox) Body() []byte        { return nil }

// ByFromID returns every reference entry whose FromItemID matches id.
func (b *ItemReferenceBox) ByFromID(id uint32) []ItemReferenceEntry {
	var out []ItemReferenceEntry
	for _, r := range b.Refs {
		if r.FromItemID == id {
			out = append(out, r)
		}
	}
	return out
}

func parseItemReferenceBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	ib := &ItemReferenceBox{FullBox: fb}

	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		entry, err := parseItemReferenceEntry(c, fb.Version)
		if err != nil {
			return nil, err
		}
		ib.Refs = append(ib.Refs, entry)
	}
	return ib, nil
}

func parseItemReferenceEntry(c Box, version uint8) (ItemReferenceEntry, error) {
	cr := brange.New(bytes.NewReader(c.Body()), int64(len(c.Body())))
	e := ItemReferenceEntry{Type: c.Type()}

	if version == 0 {
		e.FromItemID = uint32(cr.ReadU16BE())
		count := cr.ReadU16BE()
		for i := uint16(0); cr.Err() == nil && i < count; i++ {
			e.ToItemIDs = append(e.ToItemIDs, uint32(cr.ReadU16BE()))
		}
	} else {
		e.FromItemID = cr.ReadU32BE()
		count := cr.ReadU16BE()
		for i := uint16(0); cr.Err() == nil && i < count; i++ {
			e.ToItemIDs = append(e.ToItemIDs, cr.ReadU32BE())
		}
	}
	if cr.Err() != nil {
		return ItemReferenceEntry{}, cr.Err()
	}
	return e, nil
}
