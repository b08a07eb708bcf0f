/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package bmff reads the ISO BMFF box tree as used by HEIF: a recursive
// hierarchy of boxes, each with a common header (size, four-character type,
// optional 64-bit size, optional extended uuid type, optional version+flags)
// and a type-specific payload. Unknown box types are preserved as opaque
// boxes whose payload is skipped, never an error by itself.
package bmff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/go-heif/heifcore/brange"
	"github.com/go-heif/heifcore/heiferr"
)

// Security sanity limits, so a hostile or truncated file can't make the
// parser allocate or recurse without bound.
const (
	MaxChildrenPerBox  = 1024
	MaxLocationItems   = 1024
	MaxExtentsPerItem  = 32
	MaxMemoryBlockSize = 50 << 20 // 50 MiB
)

// FourCC is a four-character box/brand/handler type code.
type FourCC [4]byte

func fourCC(s string) FourCC {
	if len(s) != 4 {
		panic("bogus FourCC length: " + s)
	}
	return FourCC{s[0], s[1], s[2], s[3]}
}

func (f FourCC) String() string { return string(f[:]) }

func (f FourCC) Equal(s string) bool {
	return len(s) == 4 && s[0] == f[0] && s[1] == f[1] && s[2] == f[2] && s[3] == f[3]
}

// BoxType is an alias for FourCC, kept distinct in name for readability at
// call sites that specifically mean "the type of a box".
type BoxType = FourCC

// Common box types referenced outside their own parser.
var (
	TypeFtyp = fourCC("ftyp")
	TypeMeta = fourCC("meta")
	TypeMdat = fourCC("mdat")
)

// Fraction is the rational-number type used by clean-aperture (clap)
// cropping math, ported from original_source/src/box.cc's Fraction.
type Fraction struct {
	Num, Den int64
}

// RoundDown returns num/den, truncated toward zero.
func (f Fraction) RoundDown() int64 {
	if f.Den == 0 {
		return 0
	}
	return f.Num / f.Den
}

// RoundUp returns the ceiling of num/den.
func (f Fraction) RoundUp() int64 {
	if f.Den == 0 {
		return 0
	}
	return (f.Num + f.Den - 1) / f.Den
}

// Round returns (num+den/2)/den, the way original_source's Fraction::round()
// does: for non-negative values this is the nearest integer with halves
// rounded up; because the division truncates toward zero, negative values
// are not rounded to the nearest integer in general.
func (f Fraction) Round() int64 {
	if f.Den == 0 {
		return 0
	}
	return (f.Num + f.Den/2) / f.Den
}

func (f Fraction) Sub(n int64) Fraction { return Fraction{f.Num - n*f.Den, f.Den} }
func (f Fraction) Add(n int64) Fraction { return Fraction{f.Num + n*f.Den, f.Den} }

// BoxHeader is the common header shared by every box: size, type, optional
// uuid extension, and optional full-box version+flags.
type BoxHeader struct {
	Size       uint64
	Type       BoxType
	UUID       [16]byte
	HasUUID    bool
	IsFull     bool
	Version    uint8
	Flags      uint32 // 24 bits
	HeaderSize int64
}

// parseFunc parses a box's payload given its header and bounded body range.
type parseFunc func(h BoxHeader, r *brange.Range) (Box, error)

var parsers = map[BoxType]parseFunc{}

func register(typ string, fn parseFunc) { parsers[fourCC(typ)] = fn }

func init() {
	register("ftyp", parseFileTypeBox)
	register("meta", parseMetaBox)
	register("hdlr", parseHandlerBox)
	register("pitm", parsePrimaryItemBox)
	register("iinf", parseItemInfoBox)
	register("infe", parseItemInfoEntry)
	register("iloc", parseItemLocationBox)
	register("iref", parseItemReferenceBox)
	register("iprp", parseItemPropertiesBox)
	register("ipco", parseItemPropertyContainerBox)
	register("ipma", parseItemPropertyAssociation)
	register("ispe", parseImageSpatialExtentsProperty)
	register("clap", parseCleanAperture)
	register("irot", parseImageRotation)
	register("imir", parseImageMirror)
	register("hvcC", parseItemHevcConfigBox)
	register("auxC", parseAuxiliaryTypeProperty)
	register("idat", parseItemDataBox)
	register("dinf", parseDataInformationBox)
	register("dref", parseDataReferenceBox)
	register("url ", parseDataEntryURLBox)
	register("grpl", parseEntityToGroupListBox)
}

// ErrUnknownBox is returned by Box.Parse for unrecognized box types. It is
// never itself a fatal condition: callers skip unknown boxes and move on.
var ErrUnknownBox = heiferr.New(heiferr.UnsupportedFeature, heiferr.UnsupportedImageType, "unknown box type")

// Box is a parsed or parseable BMFF box.
type Box interface {
	Header() BoxHeader
	Size() int64
	Type() BoxType

	// Parse parses the box payload, returning a concrete type. The result is
	// cached: calling Parse twice returns the same value. Unknown box types
	// return ErrUnknownBox without having consumed any payload bytes.
	Parse() (Box, error)

	// Body returns the raw, unparsed payload bytes (excluding the header).
	Body() []byte
}

type box struct {
	header BoxHeader
	raw    []byte // payload bytes, already slurped
	parsed Box
}

func (b *box) Header() BoxHeader { return b.header }
func (b *box) Size() int64       { return int64(b.header.Size) }
func (b *box) Type() BoxType     { return b.header.Type }
func (b *box) Body() []byte      { return b.raw }

func (b *box) Parse() (Box, error) {
	if b.parsed != nil {
		return b.parsed, nil
	}
	fn, ok := parsers[b.Type()]
	if !ok {
		return nil, ErrUnknownBox
	}
	body := brange.New(bytes.NewReader(b.raw), int64(len(b.raw)))
	v, err := fn(b.header, body)
	if err != nil {
		return nil, err
	}
	b.parsed = v
	return v, nil
}

// FullBox is embedded by boxes whose payload begins with the standard
// version(8 bits)+flags(24 bits) full-box header.
type FullBox struct {
	Header_ BoxHeader
	Version uint8
	Flags   uint32
}

func (fb FullBox) Header() BoxHeader { return fb.Header_ }
func (fb FullBox) Size() int64       { return int64(fb.Header_.Size) }
func (fb FullBox) Type() BoxType     { return fb.Header_.Type }

// readFullBoxHeader reads the version+flags word, returning a FullBox with
// the version/flags fields populated.
func readFullBoxHeader(h BoxHeader, r *brange.Range) (FullBox, error) {
	word := r.ReadU32BE()
	if r.Err() != nil {
		return FullBox{}, r.Err()
	}
	return FullBox{
		Header_: h,
		Version: uint8(word >> 24),
		Flags:   word & 0x00FFFFFF,
	}, nil
}

// Reader reads a sequence of top-level (or child) boxes from a stream.
type Reader struct {
	br          *bufio.Reader
	noMoreBoxes bool
}

// NewReader wraps r for sequential box reading.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

// ReadBox reads and fully slurps the next box's header and payload. At the
// end of input, the error is io.EOF.
func (r *Reader) ReadBox() (Box, error) {
	if r.noMoreBoxes {
		return nil, io.EOF
	}

	hdr := BoxHeader{HeaderSize: 8}
	var buf [8]byte
	if _, err := io.ReadFull(r.br, buf[:4]); err != nil {
		return nil, err
	}
	size32 := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	if _, err := io.ReadFull(r.br, hdr.Type[:]); err != nil {
		return nil, err
	}

	switch size32 {
	case 1:
		var ext [8]byte
		if _, err := io.ReadFull(r.br, ext[:]); err != nil {
			return nil, err
		}
		var v uint64
		for _, c := range ext {
			v = v<<8 | uint64(c)
		}
		hdr.Size = v
		hdr.HeaderSize += 8
	case 0:
		r.noMoreBoxes = true
		hdr.Size = 0
	default:
		hdr.Size = uint64(size32)
	}

	if hdr.Type.Equal("uuid") {
		if _, err := io.ReadFull(r.br, hdr.UUID[:]); err != nil {
			return nil, err
		}
		hdr.HasUUID = true
		hdr.HeaderSize += 16
	}

	if hdr.Size != 0 && hdr.Size < uint64(hdr.HeaderSize) {
		return nil, heiferr.Errorf(heiferr.InvalidInput, heiferr.InvalidBoxSize,
			"box %q declares size %d, smaller than its %d-byte header", hdr.Type, hdr.Size, hdr.HeaderSize)
	}

	var payload []byte
	var err error
	if hdr.Size == 0 {
		payload, err = io.ReadAll(io.LimitReader(r.br, MaxMemoryBlockSize+1))
	} else {
		remain := int64(hdr.Size) - hdr.HeaderSize
		payload = make([]byte, remain)
		_, err = io.ReadFull(r.br, payload)
	}
	if err != nil {
		return nil, heiferr.Errorf(heiferr.InvalidInput, heiferr.EndOfData, "reading body of box %q: %v", hdr.Type, err)
	}
	if len(payload) > MaxMemoryBlockSize {
		return nil, heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
			fmt.Sprintf("box %q payload exceeds %d bytes", hdr.Type, MaxMemoryBlockSize))
	}

	return &box{header: hdr, raw: payload}, nil
}

// ReadAndParseBox reads the next box, requires it to have type typ, and
// parses it.
func (r *Reader) ReadAndParseBox(typ BoxType) (Box, error) {
	b, err := r.ReadBox()
	if err != nil {
		return nil, fmt.Errorf("reading %q box: %w", typ, err)
	}
	if b.Type() != typ {
		return nil, fmt.Errorf("reading %q box: got %q instead", typ, b.Type())
	}
	return b.Parse()
}

// readChildren reads every child box from r's full contents, up to
// MaxChildrenPerBox, erroring with Security_limit_exceeded past that.
func readChildren(r *brange.Range) ([]Box, error) {
	remaining := r.Remaining()
	body := make([]byte, remaining)
	if remaining > 0 {
		got := r.ReadBytes(int(remaining))
		if r.Err() != nil {
			return nil, r.Err()
		}
		body = got
	}
	cr := NewReader(bytes.NewReader(body))
	var out []Box
	for {
		b, err := cr.ReadBox()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(out) >= MaxChildrenPerBox {
			return nil, heiferr.New(heiferr.MemoryAllocationError, heiferr.SecurityLimitExceeded,
				fmt.Sprintf("more than %d children in one box", MaxChildrenPerBox))
		}
		out = append(out, b)
	}
}
