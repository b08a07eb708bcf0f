package bmff

import "github.com/go-heif/heifcore/brange"

// ItemInfoEntry is the "infe" box: per-item metadata (id, type, optional
// name/content-type/content-encoding or uri type). Versions 0/1 carry an
// item_name/content_type/content_encoding triple unconditionally; version 2
// (and later 3) gate those by item type and add the hidden-item flag,
// following original_source/src/box.cc's Box_infe::parse.
type ItemInfoEntry struct {
	FullBox

	ItemID          uint32
	ProtectionIndex uint16
	ItemType        string
	Hidden          bool

	Name string

	ContentType     string // if ItemType == "mime"
	ContentEncoding string

	ItemURIType string // if ItemType == "uri "
}

func (b *ItemInfoEntry) Parse() (Box, error) { return b, nil }
func (b *ItemInfoEntry) Body() []byte        { return nil }

func parseItemInfoEntry(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	ie := &ItemInfoEntry{FullBox: fb}

	if fb.Version <= 1 {
		ie.ItemID = uint32(r.ReadU16BE())
		ie.ProtectionIndex = r.ReadU16BE()
		ie.Name = r.ReadCString()
		ie.ContentType = r.ReadCString()
		if r.Remaining() > 0 {
			ie.ContentEncoding = r.ReadCString()
		}
		if fb.Version == 1 {
			// extra_type/item_info_extension fields (FDEL/FPAR/FECR) are not
			// modeled: no operation in this module consumes them.
			r.SkipToEndOfContainer()
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
		return ie, nil
	}

	if fb.Version == 2 {
		ie.ItemID = uint32(r.ReadU16BE())
	} else {
		ie.ItemID = r.ReadU32BE()
	}
	ie.ProtectionIndex = r.ReadU16BE()
	ie.ItemType = string(r.ReadBytes(4))
	ie.Name = r.ReadCString()
	ie.Hidden = fb.Flags&1 != 0

	switch ie.ItemType {
	case "mime":
		ie.ContentType = r.ReadCString()
		if r.Remaining() > 0 {
			ie.ContentEncoding = r.ReadCString()
		}
	case "uri ":
		ie.ItemURIType = r.ReadCString()
	default:
		// hvc1, grid, iovl, iden, Exif, and anything else carry no further
		// infe-level fields.
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ie, nil
}

// ItemInfoBox is the "iinf" box: a container of infe entries.
type ItemInfoBox struct {
	FullBox
	Count     uint32
	ItemInfos []*ItemInfoEntry
}

func (b *ItemInfoBox) Parse() (Box, error) { return b, nil }
func (b *ItemInfoBox) Body() []byte        { return nil }

func parseItemInfoBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	ib := &ItemInfoBox{FullBox: fb}
	if fb.Version >= 1 {
		ib.Count = r.ReadU32BE()
	} else {
		ib.Count = uint32(r.ReadU16BE())
	}
	if r.Err() != nil {
		return nil, r.Err()
	}

	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		pb, err := c.Parse()
		if err == ErrUnknownBox {
			continue
		}
		if err != nil {
			return nil, err
		}
		if iie, ok := pb.(*ItemInfoEntry); ok {
			ib.ItemInfos = append(ib.ItemInfos, iie)
		}
	}
	return ib, nil
}
