package bmff

import "github.com/go-heif/heifcore/brange"

// MetaBox is the "meta" full box: the container for the whole item/property
// metadata sub-tree (hdlr, pitm, iinf, iloc, iprp, iref, idat, dinf).
type MetaBox struct {
	FullBox
	Children []Box
}

func (b *MetaBox) Parse() (Box, error) { return b, nil }
func (b *MetaBox) Body() []byte        { return nil }

func parseMetaBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	return &MetaBox{FullBox: fb, Children: children}, nil
}

// Child returns the first direct child of the given type, or nil.
func (m *MetaBox) Child(typ BoxType) Box {
	for _, c := range m.Children {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// DataInformationBox is the "dinf" box: declares where item data not stored
// inline (idat) or by file offset lives. Parsed but non-essential to the
// core item model.
type DataInformationBox struct {
	Header_  BoxHeader
	Children []Box
}

func (b *DataInformationBox) Header() BoxHeader { return b.Header_ }
func (b *DataInformationBox) Size() int64       { return int64(b.Header_.Size) }
func (b *DataInformationBox) Type() BoxType     { return b.Header_.Type }
func (b *DataInformationBox) Parse() (Box, error) { return b, nil }
func (b *DataInformationBox) Body() []byte        { return nil }

func parseDataInformationBox(h BoxHeader, r *brange.Range) (Box, error) {
	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	return &DataInformationBox{Header_: h, Children: children}, nil
}

// DataReferenceBox is the "dref" box: a list of data entry boxes (url , urn
// space, etc). This module only ever resolves the implicit self-reference,
// so entries are kept opaque.
type DataReferenceBox struct {
	FullBox
	EntryCount uint32
	Children   []Box
}

func (b *DataReferenceBox) Parse() (Box, error) { return b, nil }
func (b *DataReferenceBox) Body() []byte        { return nil }

func parseDataReferenceBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	count := r.ReadU32BE()
	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	return &DataReferenceBox{FullBox: fb, EntryCount: count, Children: children}, nil
}

// DataEntryURLBox is a "url " data reference entry. Flags bit 0 set means
// "data is in this file" (no location string follows).
type DataEntryURLBox struct {
	FullBox
	Location string
}

func (b *DataEntryURLBox) Parse() (Box, error) { return b, nil }
func (b *DataEntryURLBox) Body() []byte        { return nil }

func parseDataEntryURLBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	e := &DataEntryURLBox{FullBox: fb}
	if fb.Flags&1 == 0 {
		e.Location = r.ReadCString()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return e, nil
}

// EntityToGroupListBox is the "grpl" box: a list of entity-grouping boxes.
// Not consumed by the item model (no EntityToGroup semantics are in scope),
// kept as an opaque container of its raw child boxes.
type EntityToGroupListBox struct {
	Header_  BoxHeader
	Children []Box
}

func (b *EntityToGroupListBox) Header() BoxHeader { return b.Header_ }
func (b *EntityToGroupListBox) Size() int64       { return int64(b.Header_.Size) }
func (b *EntityToGroupListBox) Type() BoxType     { return b.Header_.Type }
func (b *EntityToGroupListBox) Parse() (Box, error) { return b, nil }
func (b *EntityToGroupListBox) Body() []byte        { return nil }

func parseEntityToGroupListBox(h BoxHeader, r *brange.Range) (Box, error) {
	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	return &EntityToGroupListBox{Header_: h, Children: children}, nil
}
