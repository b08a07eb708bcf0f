package bmff

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-heif/heifcore/heiferr"
)

// rawBox builds a raw box (4-byte size, 4-byte type, payload) for test fixtures.
func rawBox(typ string, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + len(payload))
	buf.WriteByte(byte(size >> 24))
	buf.WriteByte(byte(size >> 16))
	buf.WriteByte(byte(size >> 8))
	buf.WriteByte(byte(size))
	buf.WriteString(typ)
	buf.Write(payload)
	return buf.Bytes()
}

func fullBoxPayload(version uint8, flags uint32, rest []byte) []byte {
	word := uint32(version)<<24 | flags&0x00FFFFFF
	hdr := []byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
	return append(hdr, rest...)
}

func TestParseFileTypeBox(t *testing.T) {
	payload := append([]byte("heic"), []byte{0, 0, 0, 0}...)
	payload = append(payload, []byte("mif1")...)
	payload = append(payload, []byte("heix")...)

	r := NewReader(bytes.NewReader(rawBox("ftyp", payload)))
	b, err := r.ReadBox()
	if err != nil {
		t.Fatalf("ReadBox: %v", err)
	}
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ft, ok := pb.(*FileTypeBox)
	if !ok {
		t.Fatalf("got %T, want *FileTypeBox", pb)
	}
	if ft.MajorBrand != "heic" {
		t.Fatalf("MajorBrand = %q, want heic", ft.MajorBrand)
	}
	if !ft.HasCompatibleBrand() {
		t.Fatalf("expected HasCompatibleBrand true")
	}
	if len(ft.Compatible) != 2 || ft.Compatible[0] != "mif1" || ft.Compatible[1] != "heix" {
		t.Fatalf("Compatible = %v, want [mif1 heix]", ft.Compatible)
	}
}

func TestFileTypeBoxRejectsUnknownBrands(t *testing.T) {
	payload := append([]byte("jpeg"), []byte{0, 0, 0, 0}...)
	r := NewReader(bytes.NewReader(rawBox("ftyp", payload)))
	b, _ := r.ReadBox()
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pb.(*FileTypeBox).HasCompatibleBrand() {
		t.Fatalf("expected HasCompatibleBrand false for an unrelated brand")
	}
}

func TestItemPropertyAssociationEssentialAndWidth(t *testing.T) {
	// version 0, flags bit0=0 -> 8-bit indices; one item (id 1), two assocs:
	// essential index 1, non-essential index 2.
	rest := []byte{
		0, 0, 0, 1, // entry count = 1
		0, 1, // item id (16-bit, version<1)
		2,          // association count
		0x81,       // essential=1, index=1
		0x02,       // essential=0, index=2
	}
	payload := fullBoxPayload(0, 0, rest)
	r := NewReader(bytes.NewReader(rawBox("ipma", payload)))
	b, _ := r.ReadBox()
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ipma := pb.(*ItemPropertyAssociation)
	if len(ipma.Entries) != 1 {
		t.Fatalf("Entries = %d, want 1", len(ipma.Entries))
	}
	e := ipma.Entries[0]
	if e.ItemID != 1 {
		t.Fatalf("ItemID = %d, want 1", e.ItemID)
	}
	if len(e.Associations) != 2 {
		t.Fatalf("Associations = %d, want 2", len(e.Associations))
	}
	if !e.Associations[0].Essential || e.Associations[0].Index != 1 {
		t.Fatalf("assoc[0] = %+v, want essential index 1", e.Associations[0])
	}
	if e.Associations[1].Essential || e.Associations[1].Index != 2 {
		t.Fatalf("assoc[1] = %+v, want non-essential index 2", e.Associations[1])
	}
}

func TestItemPropertyAssociation16BitIndex(t *testing.T) {
	// flags bit0=1 -> 16-bit indices.
	rest := []byte{
		0, 0, 0, 1,
		0, 1,
		1,          // association count
		0x80, 0x05, // essential=1, index=5
	}
	payload := fullBoxPayload(0, 1, rest)
	r := NewReader(bytes.NewReader(rawBox("ipma", payload)))
	b, _ := r.ReadBox()
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ipma := pb.(*ItemPropertyAssociation)
	a := ipma.Entries[0].Associations[0]
	if !a.Essential || a.Index != 5 {
		t.Fatalf("got %+v, want essential index 5", a)
	}
}

func TestItemLocationBoxVersion2WithIndex(t *testing.T) {
	// version 2: 32-bit item ids and item count; index_size nibble=4 so
	// extents carry a 4-byte index field ahead of offset/length.
	nibble := []byte{0x44, 0x44} // offset=4,length=4 | baseOffset=4,index=4
	rest := append([]byte{}, nibble...)
	rest = append(rest, 0, 0, 0, 1) // item_count = 1 (32-bit, version2)

	// one item: id(32) cm(16, low4=1 idat) dataRefIdx(16) baseOffset(4) extentCount(16)
	rest = append(rest, 0, 0, 0, 7) // item id = 7
	rest = append(rest, 0, 1)       // construction_method = 1 (idat)
	rest = append(rest, 0, 0)       // data_reference_index
	rest = append(rest, 0, 0, 0, 0) // base_offset (4 bytes)
	rest = append(rest, 0, 1)       // extent_count = 1
	rest = append(rest, 0, 0, 0, 9) // extent index = 9
	rest = append(rest, 0, 0, 0, 100) // extent offset = 100
	rest = append(rest, 0, 0, 0, 50)  // extent length = 50

	payload := fullBoxPayload(2, 0, rest)
	r := NewReader(bytes.NewReader(rawBox("iloc", payload)))
	b, _ := r.ReadBox()
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ilb := pb.(*ItemLocationBox)
	if ilb.ItemCount != 1 {
		t.Fatalf("ItemCount = %d, want 1", ilb.ItemCount)
	}
	entry, ok := ilb.ByID(7)
	if !ok {
		t.Fatalf("item 7 not found")
	}
	if entry.ConstructionMethod != ConstructionIdatOffset {
		t.Fatalf("ConstructionMethod = %d, want idat(1)", entry.ConstructionMethod)
	}
	if len(entry.Extents) != 1 {
		t.Fatalf("Extents = %d, want 1", len(entry.Extents))
	}
	ext := entry.Extents[0]
	if ext.Index != 9 || ext.Offset != 100 || ext.Length != 50 {
		t.Fatalf("extent = %+v, want {Index:9 Offset:100 Length:50}", ext)
	}
}

func TestItemLocationBoxExceedsExtentLimit(t *testing.T) {
	nibble := []byte{0x44, 0x00} // offset=4,length=4, no index
	rest := append([]byte{}, nibble...)
	rest = append(rest, 0, 1) // item_count = 1 (version<2, 16-bit)
	rest = append(rest, 0, 1) // item id = 1
	// version 0: no construction_method field
	rest = append(rest, 0, 0) // data_reference_index
	extentCount := uint16(MaxExtentsPerItem + 1)
	rest = append(rest, byte(extentCount>>8), byte(extentCount)) // extent_count too large

	payload := fullBoxPayload(0, 0, rest)
	r := NewReader(bytes.NewReader(rawBox("iloc", payload)))
	b, _ := r.ReadBox()
	_, err := b.Parse()
	if err == nil {
		t.Fatalf("expected error for extent count exceeding limit")
	}
	var herr *heiferr.Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *heiferr.Error, got %v", err)
	}
	if herr.Subcode != heiferr.SecurityLimitExceeded {
		t.Fatalf("Subcode = %v, want SecurityLimitExceeded", herr.Subcode)
	}
}

func TestItemInfoEntryVersion2(t *testing.T) {
	rest := []byte{0, 5} // item id (16-bit, version2)
	rest = append(rest, 0, 0) // protection index
	rest = append(rest, []byte("hvc1")...)
	rest = append(rest, 0) // empty item_name cstring
	payload := fullBoxPayload(2, 0, rest)
	r := NewReader(bytes.NewReader(rawBox("infe", payload)))
	b, _ := r.ReadBox()
	pb, err := b.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ie := pb.(*ItemInfoEntry)
	if ie.ItemID != 5 || ie.ItemType != "hvc1" {
		t.Fatalf("got %+v", ie)
	}
}

func TestUnknownBoxType(t *testing.T) {
	r := NewReader(bytes.NewReader(rawBox("xxxx", []byte{1, 2, 3})))
	b, err := r.ReadBox()
	if err != nil {
		t.Fatalf("ReadBox: %v", err)
	}
	_, err = b.Parse()
	if !errors.Is(err, ErrUnknownBox) {
		t.Fatalf("Parse() err = %v, want ErrUnknownBox", err)
	}
}

func TestBoxHeaderSizeTooSmall(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 4}) // size == 4, smaller than the 8-byte header
	buf.WriteString("ftyp")
	r := NewReader(bytes.NewReader(buf.Bytes()))
	_, err := r.ReadBox()
	if err == nil {
		t.Fatalf("expected error for undersized box")
	}
	var herr *heiferr.Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *heiferr.Error, got %v", err)
	}
	if herr.Subcode != heiferr.InvalidBoxSize {
		t.Fatalf("Subcode = %v, want InvalidBoxSize", herr.Subcode)
	}
}
