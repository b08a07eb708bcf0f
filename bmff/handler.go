package bmff

import "github.com/go-heif/heifcore/brange"

// HandlerBox is the "hdlr" box. For HEIF, HandlerType MUST be "pict".
type HandlerBox struct {
	FullBox
	HandlerType string
	Name        string
}

func (b *HandlerBox) Parse() (Box, error) { return b, nil }
func (b *HandlerBox) Body() []byte        { return nil }

func parseHandlerBox(h BoxHeader, r *brange.Range) (Box, error) {
	fb, err := readFullBoxHeader(h, r)
	if err != nil {
		return nil, err
	}
	hb := &HandlerBox{FullBox: fb}
	_ = r.ReadU32BE() // pre_defined
	hb.HandlerType = string(r.ReadBytes(4))
	r.ReadBytes(12) // reserved[3]
	hb.Name = r.ReadCString()
	if r.Err() != nil {
		return nil, r.Err()
	}
	return hb, nil
}
