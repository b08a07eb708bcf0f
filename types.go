package heifcore

import "github.com/go-heif/heifcore/heifitem"

// Item is one image entity in the HEIF container's item/property graph.
type Item = heifitem.Item

// GridInfo is the reconstructed payload of a "grid" item.
type GridInfo = heifitem.GridDescriptor

// OverlayInfo is the reconstructed payload of an "iovl" item.
type OverlayInfo = heifitem.OverlayDescriptor

// DepthRepresentationInfo is the decoded depth-representation-info SEI
// payload attached to a depth auxiliary image.
type DepthRepresentationInfo = heifitem.DepthRepresentationInfo

// Kind is an item's coded type (hvc1, grid, iden, iovl, or unknown).
type Kind = heifitem.Kind

// ImageBundle is the compressed form of one top-level image, returned by
// Session.ImageData.
type ImageBundle struct {
	ItemID         uint32
	Kind           Kind
	Width, Height  uint32
	CompressedData []byte
}

// FreeImageData is a no-op: an ImageBundle holds no resources beyond its
// memory, which is released once the caller drops the reference.
func (b *ImageBundle) FreeImageData() {}
