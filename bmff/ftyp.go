package bmff

import "github.com/go-heif/heifcore/brange"

// FileTypeBox is the "ftyp" box: major brand, minor version, and the list
// of compatible brands a reader may treat the file as.
type FileTypeBox struct {
	Header_      BoxHeader
	MajorBrand   string
	MinorVersion uint32
	Compatible   []string
}

func (b *FileTypeBox) Header() BoxHeader { return b.Header_ }
func (b *FileTypeBox) Size() int64       { return int64(b.Header_.Size) }
func (b *FileTypeBox) Type() BoxType     { return b.Header_.Type }
func (b *FileTypeBox) Parse() (Box, error) { return b, nil }
func (b *FileTypeBox) Body() []byte        { return nil }

func parseFileTypeBox(h BoxHeader, r *brange.Range) (Box, error) {
	ft := &FileTypeBox{Header_: h}
	ft.MajorBrand = string(r.ReadBytes(4))
	ft.MinorVersion = r.ReadU32BE()
	for r.Remaining() >= 4 {
		ft.Compatible = append(ft.Compatible, string(r.ReadBytes(4)))
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return ft, nil
}

// acceptedCompatibleBrands are the brands this reader treats as satisfying
// the "compatible brand heic" requirement (spec.md §4.3). Real-world
// AVIF/HEIF siblings commonly carry mif1/heix alongside or instead of heic
// in their compatible-brands list; bep-imagemeta's own ftyp handling is
// similarly lenient about brand matching. See DESIGN.md Open Question
// decisions.
var acceptedCompatibleBrands = map[string]bool{
	"heic": true,
	"mif1": true,
	"heix": true,
}

// HasCompatibleBrand reports whether the major brand or any compatible
// brand is one this reader accepts.
func (b *FileTypeBox) HasCompatibleBrand() bool {
	if acceptedCompatibleBrands[b.MajorBrand] {
		return true
	}
	for _, c := range b.Compatible {
		if acceptedCompatibleBrands[c] {
			return true
		}
	}
	return false
}
