// Package heifitem interprets a parsed ISOBMFF box tree (bmff.MetaBox and
// its children) into the item/property graph HEIF defines, and extracts
// compressed bitstreams, grid/overlay geometry and depth metadata from it.
// It implements spec §4.3 (Item/Property Model Interpreter) and §4.4 (Item
// Extractor), grounded on original_source/src/heif_context.cc's two-pass
// interpret_heif_file.
package heifitem

import "github.com/go-heif/heifcore/bmff"

// Kind is the item's coded type, the ImageBundle.kind of the Session API.
type Kind string

const (
	KindHEVC    Kind = "hvc1"
	KindGrid    Kind = "grid"
	KindIdentity Kind = "iden"
	KindOverlay Kind = "iovl"
	KindUnknown Kind = "unknown"
)

func kindOf(itemType string) Kind {
	switch itemType {
	case "hvc1":
		return KindHEVC
	case "grid":
		return KindGrid
	case "iden":
		return KindIdentity
	case "iovl":
		return KindOverlay
	default:
		return KindUnknown
	}
}

// Item is one image entity in a HEIF file's item/property graph.
type Item struct {
	ID     uint32
	Type   Kind
	Hidden bool

	Width, Height uint32

	Thumbnails []uint32
	AlphaOf    *uint32
	DepthOf    *uint32
	ThmbOf     *uint32

	ExifBlobs []uint32 // ids of Exif metadata items (cdsc references) describing this item

	Properties []bmff.ItemProperty

	DepthInfo *DepthRepresentationInfo
}

// GridDescriptor is the reconstructed payload of a "grid" item.
type GridDescriptor struct {
	Rows, Columns             int
	OutputWidth, OutputHeight uint32
	TileIDs                   []uint32
}

// OverlayDescriptor is the reconstructed payload of an "iovl" item.
type OverlayDescriptor struct {
	BackgroundColor [4]uint16
	CanvasWidth     uint32
	CanvasHeight    uint32
	Offsets         []Offset
	ImageIDs        []uint32
}

// Offset is one overlay tile's signed pixel placement.
type Offset struct {
	X, Y int64
}

// DepthRepresentationInfo is the decoded depth-representation-info SEI
// payload attached to a depth auxiliary image, per spec §4.4's
// floating-point field decoding.
type DepthRepresentationInfo struct {
	HasZNear, HasZFar, HasDMin, HasDMax bool
	ZNear, ZFar, DMin, DMax             float64
	RepresentationType                  uint64
	DisparityReferenceView              uint64
	HasDisparityReferenceView           bool
}

// Model is the fully interpreted item/property graph for one session.
type Model struct {
	FileType *bmff.FileTypeBox
	Meta     *bmff.MetaBox
	Handler  *bmff.HandlerBox
	ItemInfo *bmff.ItemInfoBox
	Location *bmff.ItemLocationBox
	ItemRefs *bmff.ItemReferenceBox // nil if absent
	Props    *bmff.ItemPropertiesBox
	ItemData *bmff.ItemDataBox // nil if absent

	PrimaryItemID uint32

	Items    map[uint32]*Item
	TopLevel []uint32 // insertion order, thumbnails/aux already removed

	// MaxMemoryBlockSize bounds the cumulative bytes an extractor reads for
	// one item's extents; set by the caller (Interpret defaults it to
	// bmff.MaxMemoryBlockSize).
	MaxMemoryBlockSize int
}

// Item looks up an item by id.
func (m *Model) Item(id uint32) (*Item, bool) {
	it, ok := m.Items[id]
	return it, ok
}
