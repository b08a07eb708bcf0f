package heifcore

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/go-heif/heifcore/heiferr"
	"github.com/go-heif/heifcore/heifitem"
)

// ExifTags decodes the Exif metadata item describing id, if one exists.
//
// The Exif item's data carries a 4-byte big-endian offset into the TIFF
// header before the TIFF payload itself (see original_source's metadata
// assignment path and bep-imagemeta's handleEXIF, which both skip the same
// offset); exif.Decode wants the TIFF payload directly, so that prefix is
// skipped here.
func (s *Session) ExifTags(id uint32) (*exif.Exif, error) {
	item, err := s.ItemByID(id)
	if err != nil {
		return nil, err
	}
	if len(item.ExifBlobs) == 0 {
		return nil, heiferr.Errorf(heiferr.InvalidInput, heiferr.Unspecified, "item %d has no Exif metadata", id)
	}

	s.lock()
	data, err := heifitem.RawItemBytes(s.model, s.ra, item.ExifBlobs[0])
	s.unlock()
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "Exif item too short for TIFF header offset")
	}
	offset := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if offset < 0 || 4+offset > len(data) {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.EndOfData, "Exif TIFF header offset out of range")
	}

	return exif.Decode(bytes.NewReader(data[4+offset:]))
}
