package heifitem

import (
	"fmt"
	"io"

	"github.com/go-heif/heifcore/bmff"
	"github.com/go-heif/heifcore/heiferr"
)

const annexBStartCode = "\x00\x00\x00\x01"

// rawExtentBytes resolves an item's iloc extents into concatenated raw
// bytes, honoring construction_method 0 (file offset via ra) and 1 (idat
// blob), enforcing the MAX_MEMORY_BLOCK_SIZE cumulative cap.
func rawExtentBytes(m *Model, ra io.ReaderAt, itemID uint32) ([]byte, error) {
	entry, ok := m.Location.ByID(itemID)
	if !ok {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoItemData,
			fmt.Sprintf("item %d has no iloc entry", itemID))
	}

	limit := m.MaxMemoryBlockSize
	if limit <= 0 {
		limit = bmff.MaxMemoryBlockSize
	}
	var out []byte
	for _, ext := range entry.Extents {
		if len(out)+int(ext.Length) > limit {
			return nil, heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
				fmt.Sprintf("item %d compressed data exceeds %d bytes", itemID, limit))
		}
		switch entry.ConstructionMethod {
		case bmff.ConstructionFileOffset:
			buf := make([]byte, ext.Length)
			if _, err := ra.ReadAt(buf, int64(entry.BaseOffset+ext.Offset)); err != nil {
				return nil, heiferr.Errorf(heiferr.InvalidInput, heiferr.EndOfData,
					"reading item %d extent at %d: %v", itemID, entry.BaseOffset+ext.Offset, err)
			}
			out = append(out, buf...)
		case bmff.ConstructionIdatOffset:
			if m.ItemData == nil {
				return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIdatBox,
					fmt.Sprintf("item %d uses idat construction but no idat box is present", itemID))
			}
			start := entry.BaseOffset + ext.Offset
			end := start + ext.Length
			if end > uint64(len(m.ItemData.Data)) {
				return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData,
					fmt.Sprintf("item %d idat extent [%d:%d] exceeds idat size %d", itemID, start, end, len(m.ItemData.Data)))
			}
			out = append(out, m.ItemData.Data[start:end]...)
		default:
			return nil, heiferr.New(heiferr.UsageError, heiferr.IndexOutOfRange,
				fmt.Sprintf("item %d has unknown construction_method %d", itemID, entry.ConstructionMethod))
		}
	}
	return out, nil
}

// rewriteLengthPrefixedToAnnexB walks a sequence of 4-byte-length-prefixed
// NAL units (as iloc extents for hvc1 items carry them) and rewrites every
// length prefix to the Annex-B start code, preserving every NAL unit's
// payload bytes exactly, across however many NAL units one extent packs.
func rewriteLengthPrefixedToAnnexB(data []byte) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "truncated NAL length prefix")
		}
		n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		data = data[4:]
		if n < 0 || n > len(data) {
			return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "NAL length prefix exceeds remaining extent bytes")
		}
		out = append(out, annexBStartCode...)
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out, nil
}

func annexBUnits(units [][]byte) []byte {
	var out []byte
	for _, u := range units {
		out = append(out, annexBStartCode...)
		out = append(out, u...)
	}
	return out
}

// RawItemBytes returns an item's raw, concatenated extent bytes without any
// HEVC-specific reinterpretation. Unlike CompressedBytes, it works for
// items never registered as Image entities in pass 1 (e.g. "Exif" metadata
// items, reachable only through iloc/cdsc, never through Model.Items).
func RawItemBytes(m *Model, ra io.ReaderAt, itemID uint32) ([]byte, error) {
	return rawExtentBytes(m, ra, itemID)
}

// CompressedBytes implements spec §4.4's compressed_bytes operation: for
// hvc1 items, the hvcC parameter sets followed by the Annex-B-rewritten
// coded-slice NAL units; for every other item type, the raw concatenated
// extent bytes.
func CompressedBytes(m *Model, ra io.ReaderAt, itemID uint32) ([]byte, error) {
	item, ok := m.Items[itemID]
	if !ok {
		return nil, heiferr.New(heiferr.UsageError, heiferr.NonexistingImageReferenced,
			fmt.Sprintf("item %d does not exist", itemID))
	}

	raw, err := rawExtentBytes(m, ra, itemID)
	if err != nil {
		return nil, err
	}

	if item.Type != KindHEVC {
		return raw, nil
	}

	hvcC, err := findHevcConfig(m, itemID)
	if err != nil {
		return nil, err
	}
	out := annexBUnits(hvcC.ParameterSetUnits())
	nals, err := rewriteLengthPrefixedToAnnexB(raw)
	if err != nil {
		return nil, err
	}
	return append(out, nals...), nil
}

func findHevcConfig(m *Model, itemID uint32) (*bmff.ItemHevcConfigBox, error) {
	assocs, err := m.Props.PropertiesForItem(itemID)
	if err != nil {
		return nil, err
	}
	for _, a := range assocs {
		b, err := m.Props.Property(a.Index)
		if err != nil {
			return nil, err
		}
		if hvcC, ok := b.(*bmff.ItemHevcConfigBox); ok {
			return hvcC, nil
		}
	}
	return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoHvcCBox,
		fmt.Sprintf("item %d has no hvcC property", itemID))
}

// GridInfo implements spec §4.4's grid_info operation: parses the grid
// item's own bytes for rows/columns/output size, and resolves its tile ids
// from the grid item's "dimg" references, in listed order.
func GridInfo(m *Model, ra io.ReaderAt, itemID uint32) (*GridDescriptor, error) {
	item, ok := m.Items[itemID]
	if !ok || item.Type != KindGrid {
		return nil, heiferr.New(heiferr.UsageError, heiferr.NonexistingImageReferenced,
			fmt.Sprintf("item %d is not a grid item", itemID))
	}
	raw, err := rawExtentBytes(m, ra, itemID)
	if err != nil {
		return nil, err
	}
	if len(raw) < 8 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.InvalidGridData, "grid payload too short")
	}
	flags := raw[1]
	rows := int(raw[2]) + 1
	cols := int(raw[3]) + 1
	var width, height uint32
	if flags&1 != 0 {
		if len(raw) < 12 {
			return nil, heiferr.New(heiferr.InvalidInput, heiferr.InvalidGridData, "grid payload too short for 32-bit dimensions")
		}
		width = uint32(raw[4])<<24 | uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
		height = uint32(raw[8])<<24 | uint32(raw[9])<<16 | uint32(raw[10])<<8 | uint32(raw[11])
	} else {
		width = uint32(raw[4])<<8 | uint32(raw[5])
		height = uint32(raw[6])<<8 | uint32(raw[7])
	}

	tileIDs := dimgTargets(m, itemID)
	if len(tileIDs) != rows*cols {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.MissingGridImages,
			fmt.Sprintf("grid item %d declares %dx%d tiles but has %d dimg references", itemID, rows, cols, len(tileIDs)))
	}

	return &GridDescriptor{
		Rows: rows, Columns: cols,
		OutputWidth: width, OutputHeight: height,
		TileIDs: tileIDs,
	}, nil
}

func dimgTargets(m *Model, fromID uint32) []uint32 {
	if m.ItemRefs == nil {
		return nil
	}
	var out []uint32
	for _, ref := range m.ItemRefs.ByFromID(fromID) {
		if ref.Type.Equal("dimg") {
			out = append(out, ref.ToItemIDs...)
		}
	}
	return out
}

// OverlayInfo implements spec §4.4's overlay_info operation.
func OverlayInfo(m *Model, ra io.ReaderAt, itemID uint32) (*OverlayDescriptor, error) {
	item, ok := m.Items[itemID]
	if !ok || item.Type != KindOverlay {
		return nil, heiferr.New(heiferr.UsageError, heiferr.NonexistingImageReferenced,
			fmt.Sprintf("item %d is not an overlay item", itemID))
	}
	raw, err := rawExtentBytes(m, ra, itemID)
	if err != nil {
		return nil, err
	}
	if len(raw) < 2+8 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.InvalidOverlayData, "overlay payload too short")
	}
	flags := raw[1]
	pos := 2
	var bg [4]uint16
	for i := range bg {
		bg[i] = uint16(raw[pos])<<8 | uint16(raw[pos+1])
		pos += 2
	}

	fieldLen := 2
	if flags&1 != 0 {
		fieldLen = 4
	}
	// readField reads a signed per-tile offset; canvas width/height are
	// unsigned and use readUnsignedField instead.
	readField := func() (int64, error) {
		if pos+fieldLen > len(raw) {
			return 0, heiferr.New(heiferr.InvalidInput, heiferr.InvalidOverlayData, "overlay payload truncated")
		}
		var v int64
		if fieldLen == 2 {
			v = int64(int16(uint16(raw[pos])<<8 | uint16(raw[pos+1])))
		} else {
			v = int64(int32(uint32(raw[pos])<<24 | uint32(raw[pos+1])<<16 | uint32(raw[pos+2])<<8 | uint32(raw[pos+3])))
		}
		pos += fieldLen
		return v, nil
	}
	readUnsignedField := func() (uint32, error) {
		if pos+fieldLen > len(raw) {
			return 0, heiferr.New(heiferr.InvalidInput, heiferr.InvalidOverlayData, "overlay payload truncated")
		}
		var v uint32
		if fieldLen == 2 {
			v = uint32(raw[pos])<<8 | uint32(raw[pos+1])
		} else {
			v = uint32(raw[pos])<<24 | uint32(raw[pos+1])<<16 | uint32(raw[pos+2])<<8 | uint32(raw[pos+3])
		}
		pos += fieldLen
		return v, nil
	}

	canvasW, err := readUnsignedField()
	if err != nil {
		return nil, err
	}
	canvasH, err := readUnsignedField()
	if err != nil {
		return nil, err
	}

	imageIDs := dimgTargets(m, itemID)
	var offsets []Offset
	for range imageIDs {
		x, err := readField()
		if err != nil {
			return nil, err
		}
		y, err := readField()
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, Offset{X: x, Y: y})
	}

	return &OverlayDescriptor{
		BackgroundColor: bg,
		CanvasWidth:     canvasW,
		CanvasHeight:    canvasH,
		Offsets:         offsets,
		ImageIDs:        imageIDs,
	}, nil
}
