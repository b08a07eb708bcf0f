package heifcore

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- synthetic HEIF byte-stream builders -----------------------------------
//
// Tests in this file build HEIF containers box by box rather than shipping
// fixture files, so every boundary case (truncated extents, malformed
// indices, security-limit overflows) is directly constructible in Go.

func be16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func be32(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }
func cstr(s string) []byte { return append([]byte(s), 0) }

func rawBox(typ string, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + len(payload))
	buf.Write(be32(size))
	buf.WriteString(typ)
	buf.Write(payload)
	return buf.Bytes()
}

func fullBoxHeader(version uint8, flags uint32) []byte {
	word := uint32(version)<<24 | flags&0x00FFFFFF
	return be32(word)
}

func concatAll(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func ftypBytes() []byte {
	payload := concatAll([]byte("heic"), be32(0), []byte("mif1"), []byte("heix"))
	return rawBox("ftyp", payload)
}

func hdlrBytes() []byte {
	payload := concatAll(fullBoxHeader(0, 0), be32(0), []byte("pict"), make([]byte, 12), cstr(""))
	return rawBox("hdlr", payload)
}

func pitmBytes(primaryID uint16) []byte {
	return rawBox("pitm", concatAll(fullBoxHeader(0, 0), be16(primaryID)))
}

func infeEntry(id uint16, itemType string, hidden bool) []byte {
	var flags uint32
	if hidden {
		flags = 1
	}
	payload := concatAll(be16(id), be16(0), []byte(itemType), cstr(""))
	return rawBox("infe", concatAll(fullBoxHeader(2, flags), payload))
}

func iinfBytes(entries ...[]byte) []byte {
	payload := concatAll(fullBoxHeader(0, 0), be16(uint16(len(entries))), concatAll(entries...))
	return rawBox("iinf", payload)
}

type ilocItemSpec struct {
	id     uint16
	offset uint32
	length uint32
}

func ilocBytes(items []ilocItemSpec) []byte {
	payload := concatAll(fullBoxHeader(0, 0), []byte{0x44, 0x00}, be16(uint16(len(items))))
	for _, it := range items {
		payload = concatAll(payload,
			be16(it.id),
			be16(0), // data_reference_index
			be16(1), // extent_count
			be32(it.offset),
			be32(it.length),
		)
	}
	return rawBox("iloc", payload)
}

func ispeBytes(w, h uint32) []byte {
	return rawBox("ispe", concatAll(fullBoxHeader(0, 0), be32(w), be32(h)))
}

// hvcCBytes builds a minimal hvcC with no parameter-set NAL arrays.
func hvcCBytes() []byte {
	payload := []byte{
		1,          // version
		0,          // profile space/tier/idc
		0, 0, 0, 0, // profile compatibility flags
		0, 0, 0, 0, 0, 0, // constraint indicator flags
		0,    // level idc
		0, 0, // min spatial segmentation idc
		0,    // parallelism type
		1,    // chroma format
		0,    // bit depth luma (-> 8)
		0,    // bit depth chroma (-> 8)
		0, 0, // avg frame rate
		0, // constant frame rate/num temporal layers/temporal id nested
		0, // num arrays
	}
	return rawBox("hvcC", payload)
}

func ipcoBytes(props ...[]byte) []byte {
	return rawBox("ipco", concatAll(props...))
}

type ipmaAssoc struct {
	essential bool
	index     uint8
}

func ipmaEntry(itemID uint16, assocs ...ipmaAssoc) []byte {
	payload := concatAll(be16(itemID), []byte{byte(len(assocs))})
	for _, a := range assocs {
		b := a.index & 0x7F
		if a.essential {
			b |= 0x80
		}
		payload = append(payload, b)
	}
	return payload
}

func ipmaBytes(entries ...[]byte) []byte {
	payload := concatAll(fullBoxHeader(0, 0), be32(uint32(len(entries))), concatAll(entries...))
	return rawBox("ipma", payload)
}

func iprpBytes(ipco []byte, ipma []byte) []byte {
	return rawBox("iprp", concatAll(ipco, ipma))
}

func irefEntry(typ string, from uint16, to ...uint16) []byte {
	payload := concatAll(be16(from), be16(uint16(len(to))))
	for _, id := range to {
		payload = append(payload, be16(id)...)
	}
	return rawBox(typ, payload)
}

func irefBytes(entries ...[]byte) []byte {
	return rawBox("iref", concatAll(fullBoxHeader(0, 0), concatAll(entries...)))
}

// assembleFile lays out ftyp + meta(other children + iloc) + data blocks,
// resolving iloc's file offsets against the meta box's own (fixed, since
// offset field widths don't depend on their values) size.
func assembleFile(otherMetaChildren [][]byte, itemIDs []uint16, dataBlocks [][]byte) []byte {
	placeholder := make([]ilocItemSpec, len(itemIDs))
	for i, id := range itemIDs {
		placeholder[i] = ilocItemSpec{id: id, offset: 0, length: uint32(len(dataBlocks[i]))}
	}
	ilocPlaceholder := ilocBytes(placeholder)

	children := append(append([][]byte{}, otherMetaChildren...), ilocPlaceholder)
	metaPayloadLen := len(fullBoxHeader(0, 0))
	for _, c := range children {
		metaPayloadLen += len(c)
	}
	metaTotalLen := 8 + metaPayloadLen
	dataOffset := len(ftypBytes()) + metaTotalLen

	final := make([]ilocItemSpec, len(itemIDs))
	offset := uint32(dataOffset)
	for i, id := range itemIDs {
		final[i] = ilocItemSpec{id: id, offset: offset, length: uint32(len(dataBlocks[i]))}
		offset += uint32(len(dataBlocks[i]))
	}
	ilocFinal := ilocBytes(final)
	if len(ilocFinal) != len(ilocPlaceholder) {
		panic("iloc size changed between placeholder and final build")
	}

	metaChildren := append(append([][]byte{}, otherMetaChildren...), ilocFinal)
	metaPayload := concatAll(fullBoxHeader(0, 0), concatAll(metaChildren...))
	metaBytes := rawBox("meta", metaPayload)

	out := concatAll(ftypBytes(), metaBytes)
	for _, d := range dataBlocks {
		out = append(out, d...)
	}
	return out
}

func buildHevcItemGraph(t *testing.T) []byte {
	t.Helper()

	nal := []byte{0x26, 0x01, 0xAF, 0xFF}
	item1Data := concatAll(be32(uint32(len(nal))), nal)
	thumbNal := []byte{0x01, 0x02}
	item2Data := concatAll(be32(uint32(len(thumbNal))), thumbNal)
	item3Data := []byte{0, 0} // Exif item, too short (<4 bytes) for a TIFF offset

	infes := iinfBytes(
		infeEntry(1, "hvc1", false),
		infeEntry(2, "hvc1", false),
		infeEntry(3, "Exif", false),
	)

	ispe := ispeBytes(64, 48)
	hvcC := hvcCBytes()
	ipco := ipcoBytes(ispe, hvcC)
	ipma := ipmaBytes(
		ipmaEntry(1, ipmaAssoc{essential: true, index: 1}, ipmaAssoc{essential: false, index: 2}),
		ipmaEntry(2, ipmaAssoc{essential: true, index: 1}, ipmaAssoc{essential: false, index: 2}),
	)
	iprp := iprpBytes(ipco, ipma)

	iref := irefBytes(
		irefEntry("thmb", 2, 1),
		irefEntry("cdsc", 3, 1),
	)

	otherChildren := [][]byte{hdlrBytes(), pitmBytes(1), infes, iprp, iref}
	return assembleFile(otherChildren, []uint16{1, 2, 3}, [][]byte{item1Data, item2Data, item3Data})
}

func TestSessionHevcItemGraph(t *testing.T) {
	data := buildHevcItemGraph(t)
	s, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := s.ImageCount(); got != 1 {
		t.Fatalf("ImageCount = %d, want 1", got)
	}
	ids := s.TopLevelItemIDs()
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("TopLevelItemIDs = %v, want [1]", ids)
	}

	item, err := s.ItemByID(1)
	if err != nil {
		t.Fatalf("ItemByID(1): %v", err)
	}
	if item.Width != 64 || item.Height != 48 {
		t.Fatalf("item 1 dims = %dx%d, want 64x48", item.Width, item.Height)
	}

	thumbs := s.ThumbnailsOf(1)
	if len(thumbs) != 1 || thumbs[0] != 2 {
		t.Fatalf("ThumbnailsOf(1) = %v, want [2]", thumbs)
	}

	idx, err := s.PrimaryImageIndex()
	if err != nil {
		t.Fatalf("PrimaryImageIndex: %v", err)
	}
	if idx != 0 {
		t.Fatalf("PrimaryImageIndex = %d, want 0", idx)
	}

	if _, ok := s.AlphaOf(1); ok {
		t.Fatalf("AlphaOf(1) = true, want false (no auxl reference present)")
	}

	compressed, err := s.CompressedBytes(1)
	if err != nil {
		t.Fatalf("CompressedBytes(1): %v", err)
	}
	want := []byte{0, 0, 0, 1, 0x26, 0x01, 0xAF, 0xFF}
	if !bytes.Equal(compressed, want) {
		t.Fatalf("CompressedBytes(1) = %x, want %x", compressed, want)
	}

	if _, err := s.ExifTags(1); err == nil {
		t.Fatalf("ExifTags(1): expected error for undersized Exif item")
	}

	dump := s.DebugDumpBoxes()
	if !bytes.Contains([]byte(dump), []byte("ftyp major=heic")) {
		t.Fatalf("DebugDumpBoxes missing ftyp line: %q", dump)
	}
}

func TestSessionTruncatedMetaFails(t *testing.T) {
	data := buildHevcItemGraph(t)
	_, err := Open(bytes.NewReader(data[:len(data)-20]))
	if err == nil {
		t.Fatalf("expected error opening a truncated container")
	}
}

func buildGridItemGraph(t *testing.T) []byte {
	t.Helper()

	gridData := concatAll([]byte{0, 0}, []byte{0, 1}, be16(128), be16(64)) // 1x2 tiles, 128x64 output
	tileNal := []byte{0x26, 0x00}
	tile1Data := concatAll(be32(uint32(len(tileNal))), tileNal)
	tile2Data := concatAll(be32(uint32(len(tileNal))), tileNal)

	infes := iinfBytes(
		infeEntry(10, "grid", false),
		infeEntry(11, "hvc1", true),
		infeEntry(12, "hvc1", true),
	)

	gridIspe := ispeBytes(128, 64)
	tileIspe := ispeBytes(64, 64)
	hvcC := hvcCBytes()
	ipco := ipcoBytes(gridIspe, tileIspe, hvcC)
	ipma := ipmaBytes(
		ipmaEntry(10, ipmaAssoc{essential: true, index: 1}),
		ipmaEntry(11, ipmaAssoc{essential: true, index: 2}, ipmaAssoc{essential: false, index: 3}),
		ipmaEntry(12, ipmaAssoc{essential: true, index: 2}, ipmaAssoc{essential: false, index: 3}),
	)
	iprp := iprpBytes(ipco, ipma)

	iref := irefBytes(irefEntry("dimg", 10, 11, 12))

	otherChildren := [][]byte{hdlrBytes(), pitmBytes(10), infes, iprp, iref}
	return assembleFile(otherChildren, []uint16{10, 11, 12}, [][]byte{gridData, tile1Data, tile2Data})
}

func TestSessionGridItem(t *testing.T) {
	data := buildGridItemGraph(t)
	s, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ids := s.TopLevelItemIDs()
	if len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("TopLevelItemIDs = %v, want [10] (tiles are hidden)", ids)
	}

	grid, err := s.GridInfo(10)
	if err != nil {
		t.Fatalf("GridInfo(10): %v", err)
	}
	want := &GridInfo{
		Rows: 1, Columns: 2,
		OutputWidth: 128, OutputHeight: 64,
		TileIDs: []uint32{11, 12},
	}
	if diff := cmp.Diff(want, grid); diff != "" {
		t.Fatalf("GridInfo(10) mismatch (-want +got):\n%s", diff)
	}
}
