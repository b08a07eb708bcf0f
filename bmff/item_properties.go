package bmff

import (
	"fmt"

	"github.com/go-heif/heifcore/brange"
	"github.com/go-heif/heifcore/heiferr"
)

// ItemPropertyContainerBox is the "ipco" box: an ordered, 1-based-indexed
// list of property boxes (ispe, clap, irot, imir, hvcC, auxC, ...).
type ItemPropertyContainerBox struct {
	Header_    BoxHeader
	Properties []Box
}

func (b *ItemPropertyContainerBox) Header() BoxHeader { return b.Header_ }
func (b *ItemPropertyContainerBox) Size() int64       { return int64(b.Header_.Size) }
func (b *ItemPropertyContainerBox) Type() BoxType     { return b.Header_.Type }
func (b *ItemPropertyContainerBox) Parse() (Box, error) { return b, nil }
func (b *ItemPropertyContainerBox) Body() []byte        { return nil }

func parseItemPropertyContainerBox(h BoxHeader, r *brange.Range) (Box, error) {
	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	return &ItemPropertyContainerBox{Header_: h, Properties: children}, nil
}

// ItemProperty is one {index, essential} association entry (not a box).
type ItemProperty struct {
	Index     uint32 // 1-based
	Essential bool
}

// ItemPropertyAssociationItem is one item's association list (not a box).
type ItemPropertyAssociationItem struct {
	ItemID       uint32
	Associations []ItemProperty
}

// ItemPropertyAssociation is one "ipma" box.
type ItemPropertyAssociation struct {
	FullBox
	Entries []ItemPropertyAssociationItem
}

func (b *ItemPropertyAssociation) Parse() (Box, error) { return b, nil }
func (b *ItemPropertyAssociation) Body() []byte        { return nil }

func parseItemPropertyAssociation(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	ipa := &ItemPropertyAssociation{FullBox: fb}
	count := r.ReadU32BE()

	for i := uint32(0); r.Err() == nil && i < count; i++ {
		var itemID uint32
		if fb.Version < 1 {
			itemID = uint32(r.ReadU16BE())
		} else {
			itemID = r.ReadU32BE()
		}
		assocCount := r.ReadU8()
		item := ItemPropertyAssociationItem{ItemID: itemID}
		for j := uint8(0); r.Err() == nil && j < assocCount; j++ {
			first := r.ReadU8()
			essential := first&(1<<7) != 0
			first &^= 1 << 7

			var index uint32
			if fb.Flags&1 != 0 {
				second := r.ReadU8()
				index = uint32(first)<<8 | uint32(second)
			} else {
				index = uint32(first)
			}
			item.Associations = append(item.Associations, ItemProperty{Index: index, Essential: essential})
		}
		ipa.Entries = append(ipa.Entries, item)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ipa, nil
}

// ItemPropertiesBox is the "iprp" box: exactly one property container (ipco)
// followed by one or more association boxes (ipma) — a file may legally
// carry more than one ipma box (e.g. to separate essential/non-essential
// groups); all are merged by the interpreter, never just the first seen.
type ItemPropertiesBox struct {
	Header_           BoxHeader
	PropertyContainer *ItemPropertyContainerBox
	Associations      []*ItemPropertyAssociation
}

func (b *ItemPropertiesBox) Header() BoxHeader { return b.Header_ }
func (b *ItemPropertiesBox) Size() int64       { return int64(b.Header_.Size) }
func (b *ItemPropertiesBox) Type() BoxType     { return b.Header_.Type }
func (b *ItemPropertiesBox) Parse() (Box, error) { return b, nil }
func (b *ItemPropertiesBox) Body() []byte        { return nil }

func parseItemPropertiesBox(h BoxHeader, r *brange.Range) (Box, error) {
	ip := &ItemPropertiesBox{Header_: h}

	children, err := readChildren(r)
	if err != nil {
		return nil, err
	}
	if len(children) < 2 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIpcoBox, "iprp must contain an ipco box and at least one ipma box")
	}

	cb, err := children[0].Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing ipco: %w", err)
	}
	pc, ok := cb.(*ItemPropertyContainerBox)
	if !ok {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIpcoBox, "iprp's first child is not ipco")
	}
	ip.PropertyContainer = pc

	for _, c := range children[1:] {
		pb, err := c.Parse()
		if err != nil {
			return nil, fmt.Errorf("parsing ipma: %w", err)
		}
		ipma, ok := pb.(*ItemPropertyAssociation)
		if !ok {
			return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIpmaBox, "iprp child after ipco is not ipma")
		}
		ip.Associations = append(ip.Associations, ipma)
	}
	return ip, nil
}

// PropertiesForItem resolves the full, index-validated property list for an
// item id, merging every ipma box's entries (spec.md §4.3: "any ipma index >
// len(ipco.children)" must fail; an item with no entries at all also fails).
func (b *ItemPropertiesBox) PropertiesForItem(itemID uint32) ([]ItemProperty, error) {
	var assocs []ItemProperty
	found := false
	for _, ipma := range b.Associations {
		for _, entry := range ipma.Entries {
			if entry.ItemID != itemID {
				continue
			}
			found = true
			assocs = append(assocs, entry.Associations...)
		}
	}
	if !found {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoPropertiesAssignedToItem,
			fmt.Sprintf("item %d has no ipma entry", itemID))
	}
	for _, a := range assocs {
		if a.Index == 0 || int(a.Index) > len(b.PropertyContainer.Properties) {
			return nil, heiferr.New(heiferr.InvalidInput, heiferr.IpmaBoxReferencesNonexistingProperty,
				fmt.Sprintf("item %d references property index %d, container has %d", itemID, a.Index, len(b.PropertyContainer.Properties)))
		}
	}
	return assocs, nil
}

// Property returns the parsed property box at the given 1-based index. A
// property of an unrecognized type is returned as its opaque, unparsed box.
func (b *ItemPropertiesBox) Property(index uint32) (Box, error) {
	if index == 0 || int(index) > len(b.PropertyContainer.Properties) {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.IpmaBoxReferencesNonexistingProperty,
			fmt.Sprintf("property index %d out of range", index))
	}
	boxed := b.PropertyContainer.Properties[index-1]
	p, err := boxed.Parse()
	if err == ErrUnknownBox {
		return boxed, nil
	}
	return p, err
}

// ImageSpatialExtentsProperty is the "ispe" property: pixel width/height.
type ImageSpatialExtentsProperty struct {
	FullBox
	ImageWidth  uint32
	ImageHeight uint32
}

func parseImageSpatialExtentsProperty(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	w := r.ReadU32BE()
	ht := r.ReadU32BE()
	if r.Err() != nil {
		return nil, r.Err()
	}
	return &ImageSpatialExtentsProperty{FullBox: fb, ImageWidth: w, ImageHeight: ht}, nil
}

func (b *ImageSpatialExtentsProperty) Parse() (Box, error) { return b, nil }
func (b *ImageSpatialExtentsProperty) Body() []byte        { return nil }

// CleanAperture is the "clap" property: four rational fields describing a
// crop window relative to the full decoded picture.
type CleanAperture struct {
	Header_ BoxHeader

	WidthN, WidthD   int64
	HeightN, HeightD int64
	HorizOffN, HorizOffD int64
	VertOffN, VertOffD   int64
}

func (b *CleanAperture) Header() BoxHeader { return b.Header_ }
func (b *CleanAperture) Size() int64       { return int64(b.Header_.Size) }
func (b *CleanAperture) Type() BoxType     { return b.Header_.Type }
func (b *CleanAperture) Parse() (Box, error) { return b, nil }
func (b *CleanAperture) Body() []byte        { return nil }

func (b *CleanAperture) Width() Fraction     { return Fraction{b.WidthN, b.WidthD} }
func (b *CleanAperture) Height() Fraction    { return Fraction{b.HeightN, b.HeightD} }
func (b *CleanAperture) HorizOff() Fraction  { return Fraction{b.HorizOffN, b.HorizOffD} }
func (b *CleanAperture) VertOff() Fraction   { return Fraction{b.VertOffN, b.VertOffD} }

func parseCleanAperture(h BoxHeader, r *brange.Range) (Box, error) {
	c := &CleanAperture{Header_: h}
	c.WidthN = int64(r.ReadU32BE())
	c.WidthD = int64(r.ReadU32BE())
	c.HeightN = int64(r.ReadU32BE())
	c.HeightD = int64(r.ReadU32BE())
	c.HorizOffN = int64(int32(r.ReadU32BE()))
	c.HorizOffD = int64(r.ReadU32BE())
	c.VertOffN = int64(int32(r.ReadU32BE()))
	c.VertOffD = int64(r.ReadU32BE())
	if r.Err() != nil {
		return nil, r.Err()
	}
	return c, nil
}

// ImageRotation is the "irot" property: rotation in units of 90° CCW.
type ImageRotation struct {
	Header_ BoxHeader
	Angle   uint8 // 0..3, each unit is 90 degrees counter-clockwise
}

func (b *ImageRotation) Header() BoxHeader { return b.Header_ }
func (b *ImageRotation) Size() int64       { return int64(b.Header_.Size) }
func (b *ImageRotation) Type() BoxType     { return b.Header_.Type }
func (b *ImageRotation) Parse() (Box, error) { return b, nil }
func (b *ImageRotation) Body() []byte        { return nil }

// Degrees returns the rotation as a value in {0, 90, 180, 270}.
func (b *ImageRotation) Degrees() int { return int(b.Angle) * 90 }

func parseImageRotation(h BoxHeader, r *brange.Range) (Box, error) {
	v := r.ReadU8()
	if r.Err() != nil {
		return nil, r.Err()
	}
	return &ImageRotation{Header_: h, Angle: v & 3}, nil
}

// Mirror axes for the "imir" property.
const (
	MirrorVertical   uint8 = 0
	MirrorHorizontal uint8 = 1
)

// ImageMirror is the "imir" property.
type ImageMirror struct {
	Header_ BoxHeader
	Axis    uint8
}

func (b *ImageMirror) Header() BoxHeader { return b.Header_ }
func (b *ImageMirror) Size() int64       { return int64(b.Header_.Size) }
func (b *ImageMirror) Type() BoxType     { return b.Header_.Type }
func (b *ImageMirror) Parse() (Box, error) { return b, nil }
func (b *ImageMirror) Body() []byte        { return nil }

func parseImageMirror(h BoxHeader, r *brange.Range) (Box, error) {
	v := r.ReadU8()
	if r.Err() != nil {
		return nil, r.Err()
	}
	return &ImageMirror{Header_: h, Axis: v & 1}, nil
}

// AuxiliaryTypeProperty is the "auxC" property: a URN identifying the
// auxiliary image's role (alpha/depth) plus codec-specific subtype bytes
// (e.g. the depth-representation-info SEI payload for depth channels).
type AuxiliaryTypeProperty struct {
	FullBox
	AuxType    string
	AuxSubtype []byte
}

func (b *AuxiliaryTypeProperty) Parse() (Box, error) { return b, nil }
func (b *AuxiliaryTypeProperty) Body() []byte        { return nil }

func parseAuxiliaryTypeProperty(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	a := &AuxiliaryTypeProperty{FullBox: fb}
	a.AuxType = r.ReadCString()
	if remaining := r.Remaining(); remaining > 0 {
		a.AuxSubtype = r.ReadBytes(int(remaining))
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return a, nil
}
