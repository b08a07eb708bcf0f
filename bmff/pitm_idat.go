package bmff

import "github.com/go-heif/heifcore/brange"

// PrimaryItemBox is the "pitm" box: the id of the file's primary item.
type PrimaryItemBox struct {
	FullBox
	ItemID uint32
}

func (b *PrimaryItemBox) Parse() (Box, error) { return b, nil }
func (b *PrimaryItemBox) Body() []byte        { return nil }

func parsePrimaryItemBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	pib := &PrimaryItemBox{FullBox: fb}
	if fb.Version == 0 {
		pib.ItemID = uint32(r.ReadU16BE())
	} else {
		pib.ItemID = r.ReadU32BE()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return pib, nil
}

// ItemDataBox is the "idat" box: an inline data blob, not a full box.
// Extents with construction_method == idat index into this blob by
// (base_offset+offset, length) rather than into the file directly.
type ItemDataBox struct {
	Header_ BoxHeader
	Data    []byte
}

func (b *ItemDataBox) Header() BoxHeader { return b.Header_ }
func (b *ItemDataBox) Size() int64       { return int64(b.Header_.Size) }
func (b *ItemDataBox) Type() BoxType     { return b.Header_.Type }
func (b *ItemDataBox) Parse() (Box, error) { return b, nil }
func (b *ItemDataBox) Body() []byte        { return b.Data }

func parseItemDataBox(h BoxHeader, r *brange.Range) (Box, error) {
	data := r.ReadBytes(int(r.Remaining()))
	if r.Err() != nil {
		return nil, r.Err()
	}
	return &ItemDataBox{Header_: h, Data: data}, nil
}
