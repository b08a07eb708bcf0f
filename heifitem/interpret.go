package heifitem

import (
	"fmt"

	"github.com/go-heif/heifcore/bmff"
	"github.com/go-heif/heifcore/heiferr"
)

// imageItemTypes are the infe item types registered as Image entities in
// pass 1 (spec §4.3). Everything else (Exif, mime metadata, ...) is only
// reachable through iloc/iref, never through Model.Items.
var imageItemTypes = map[string]bool{
	"hvc1": true,
	"grid": true,
	"iden": true,
	"iovl": true,
}

// Interpret builds the item/property Model from a parsed ftyp and meta box,
// the two-pass process of original_source/src/heif_context.cc's
// interpret_heif_file.
func Interpret(ft *bmff.FileTypeBox, meta *bmff.MetaBox) (*Model, error) {
	if ft == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoFtypBox)
	}
	if !ft.HasCompatibleBrand() {
		return nil, heiferr.New(heiferr.UnsupportedFiletype, heiferr.Unspecified,
			fmt.Sprintf("major brand %q has no accepted compatible brand", ft.MajorBrand))
	}
	if meta == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoMetaBox)
	}

	m := &Model{FileType: ft, Meta: meta, Items: map[uint32]*Item{}, MaxMemoryBlockSize: bmff.MaxMemoryBlockSize}

	hdlrBox := meta.Child(bmff.BoxType{'h', 'd', 'l', 'r'})
	if hdlrBox == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoHdlrBox)
	}
	hdlrParsed, err := hdlrBox.Parse()
	if err != nil {
		return nil, err
	}
	hdlr, ok := hdlrParsed.(*bmff.HandlerBox)
	if !ok {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoHdlrBox)
	}
	if hdlr.HandlerType != "pict" {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoPictHandler)
	}
	m.Handler = hdlr

	pitmBox := meta.Child(bmff.BoxType{'p', 'i', 't', 'm'})
	if pitmBox == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoPitmBox)
	}
	pitmParsed, err := pitmBox.Parse()
	if err != nil {
		return nil, err
	}
	m.PrimaryItemID = pitmParsed.(*bmff.PrimaryItemBox).ItemID

	iinfBox := meta.Child(bmff.BoxType{'i', 'i', 'n', 'f'})
	if iinfBox == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIinfBox)
	}
	iinfParsed, err := iinfBox.Parse()
	if err != nil {
		return nil, err
	}
	m.ItemInfo = iinfParsed.(*bmff.ItemInfoBox)

	ilocBox := meta.Child(bmff.BoxType{'i', 'l', 'o', 'c'})
	if ilocBox == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIlocBox)
	}
	ilocParsed, err := ilocBox.Parse()
	if err != nil {
		return nil, err
	}
	m.Location = ilocParsed.(*bmff.ItemLocationBox)

	iprpBox := meta.Child(bmff.BoxType{'i', 'p', 'r', 'p'})
	if iprpBox == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIprpBox)
	}
	iprpParsed, err := iprpBox.Parse()
	if err != nil {
		return nil, err
	}
	m.Props = iprpParsed.(*bmff.ItemPropertiesBox)
	if m.Props.PropertyContainer == nil {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIpcoBox)
	}
	if len(m.Props.Associations) == 0 {
		return nil, heiferr.New(heiferr.InvalidInput, heiferr.NoIpmaBox)
	}

	if irefBox := meta.Child(bmff.BoxType{'i', 'r', 'e', 'f'}); irefBox != nil {
		p, err := irefBox.Parse()
		if err != nil {
			return nil, err
		}
		m.ItemRefs = p.(*bmff.ItemReferenceBox)
	}
	if idatBox := meta.Child(bmff.BoxType{'i', 'd', 'a', 't'}); idatBox != nil {
		p, err := idatBox.Parse()
		if err != nil {
			return nil, err
		}
		m.ItemData = p.(*bmff.ItemDataBox)
	}

	if err := pass1EnumerateItems(m); err != nil {
		return nil, err
	}
	if err := pass2ApplyReferencesAndProperties(m); err != nil {
		return nil, err
	}
	return m, nil
}

func pass1EnumerateItems(m *Model) error {
	for _, ie := range m.ItemInfo.ItemInfos {
		if !imageItemTypes[ie.ItemType] {
			continue
		}
		item := &Item{
			ID:     ie.ItemID,
			Type:   kindOf(ie.ItemType),
			Hidden: ie.Hidden,
		}
		m.Items[item.ID] = item
		if !item.Hidden {
			m.TopLevel = append(m.TopLevel, item.ID)
		}
	}
	if _, ok := m.Items[m.PrimaryItemID]; !ok {
		return heiferr.New(heiferr.InvalidInput, heiferr.NonexistingImageReferenced,
			fmt.Sprintf("pitm references nonexisting item %d", m.PrimaryItemID))
	}
	return nil
}

func removeTopLevel(m *Model, id uint32) {
	for i, tid := range m.TopLevel {
		if tid == id {
			m.TopLevel = append(m.TopLevel[:i], m.TopLevel[i+1:]...)
			return
		}
	}
}

const (
	auxTypeAlphaAVC  = "urn:mpeg:avc:2015:auxid:1"
	auxTypeAlphaHEVC = "urn:mpeg:hevc:2015:auxid:1"
	auxTypeDepth     = "urn:mpeg:hevc:2015:auxid:2"
)

func pass2ApplyReferencesAndProperties(m *Model) error {
	if m.ItemRefs != nil {
		for _, item := range m.Items {
			refs := m.ItemRefs.ByFromID(item.ID)
			for _, ref := range refs {
				if err := applyReference(m, item, ref); err != nil {
					return err
				}
			}
		}
		// Exif cdsc references originate from items not registered as
		// Images (item type "Exif"), so they're handled from the raw infe
		// list directly.
		for _, ie := range m.ItemInfo.ItemInfos {
			if ie.ItemType != "Exif" {
				continue
			}
			for _, ref := range m.ItemRefs.ByFromID(ie.ItemID) {
				if !ref.Type.Equal("cdsc") {
					continue
				}
				for _, toID := range ref.ToItemIDs {
					if target, ok := m.Items[toID]; ok {
						target.ExifBlobs = append(target.ExifBlobs, ie.ItemID)
					}
				}
			}
		}
	}

	for _, id := range append(append([]uint32{}, m.TopLevel...), hiddenIDs(m)...) {
		item := m.Items[id]
		if err := applyProperties(m, item); err != nil {
			return err
		}
	}
	return nil
}

func hiddenIDs(m *Model) []uint32 {
	var out []uint32
	for id, it := range m.Items {
		if it.Hidden {
			out = append(out, id)
		}
	}
	return out
}

func applyReference(m *Model, item *Item, ref bmff.ItemReferenceEntry) error {
	switch {
	case ref.Type.Equal("thmb"):
		if len(ref.ToItemIDs) != 1 {
			return heiferr.New(heiferr.InvalidInput, heiferr.Unspecified, "thmb reference must have exactly one target")
		}
		masterID := ref.ToItemIDs[0]
		master, ok := m.Items[masterID]
		if !ok {
			return heiferr.New(heiferr.InvalidInput, heiferr.NonexistingImageReferenced,
				fmt.Sprintf("thmb target %d does not exist", masterID))
		}
		if master.ThmbOf != nil {
			return heiferr.New(heiferr.InvalidInput, heiferr.Unspecified, "thumbnail target is itself a thumbnail")
		}
		id := item.ID
		item.ThmbOf = &masterID
		master.Thumbnails = append(master.Thumbnails, id)
		removeTopLevel(m, item.ID)

	case ref.Type.Equal("auxl"):
		if len(ref.ToItemIDs) != 1 {
			return heiferr.New(heiferr.InvalidInput, heiferr.Unspecified, "auxl reference must have exactly one target")
		}
		targetID := ref.ToItemIDs[0]
		if _, ok := m.Items[targetID]; !ok {
			return heiferr.New(heiferr.InvalidInput, heiferr.NonexistingImageReferenced,
				fmt.Sprintf("auxl target %d does not exist", targetID))
		}
		auxType, auxSubtype, err := auxCProperty(m, item.ID)
		if err != nil {
			return err
		}
		switch auxType {
		case auxTypeAlphaAVC, auxTypeAlphaHEVC:
			item.AlphaOf = &targetID
		case auxTypeDepth:
			item.DepthOf = &targetID
			if info, err := decodeDepthRepresentationInfo(auxSubtype); err == nil {
				item.DepthInfo = info
			}
		}
		removeTopLevel(m, item.ID)

	case ref.Type.Equal("dimg"), ref.Type.Equal("cdsc"):
		// dimg (grid/overlay tile ordering) is resolved on demand by the
		// extractor; cdsc from non-image items is handled by the caller.
	}
	return nil
}

func auxCProperty(m *Model, itemID uint32) (auxType string, subtype []byte, err error) {
	assocs, err := m.Props.PropertiesForItem(itemID)
	if err != nil {
		return "", nil, err
	}
	for _, a := range assocs {
		b, err := m.Props.Property(a.Index)
		if err != nil {
			return "", nil, err
		}
		if auxC, ok := b.(*bmff.AuxiliaryTypeProperty); ok {
			return auxC.AuxType, auxC.AuxSubtype, nil
		}
	}
	return "", nil, heiferr.New(heiferr.InvalidInput, heiferr.AuxiliaryImageTypeUnspecified,
		fmt.Sprintf("item %d has an auxl reference but no auxC property", itemID))
}

func applyProperties(m *Model, item *Item) error {
	assocs, err := m.Props.PropertiesForItem(item.ID)
	if err != nil {
		return err
	}
	item.Properties = assocs

	for _, a := range assocs {
		b, err := m.Props.Property(a.Index)
		if err != nil {
			return err
		}
		switch p := b.(type) {
		case *bmff.ImageSpatialExtentsProperty:
			item.Width = p.ImageWidth
			item.Height = p.ImageHeight
		case *bmff.CleanAperture:
			left, right := clapBoundsRounded(item.Width, p.Width(), p.HorizOff())
			top, bottom := clapBoundsRounded(item.Height, p.Height(), p.VertOff())
			w := right - left + 1
			h := bottom - top + 1
			if w <= 0 || h <= 0 {
				return heiferr.New(heiferr.InvalidInput, heiferr.InvalidCleanAperture,
					fmt.Sprintf("item %d has non-positive clap dimensions", item.ID))
			}
			item.Width = uint32(w)
			item.Height = uint32(h)
		case *bmff.ImageRotation:
			if p.Degrees() == 90 || p.Degrees() == 270 {
				item.Width, item.Height = item.Height, item.Width
			}
		}
	}
	return nil
}

// clapBoundsRounded computes a clean-aperture crop window's rounded
// low/high pixel bounds along one axis, following Box_clap::left_rounded/
// right_rounded (and their top_rounded/bottom_rounded siblings): the
// aperture is centered on the pre-crop image using center = offset +
// (size-1)/2, and the bounds sit (clean-1)/2 to either side of that center,
// each rounded with Fraction.Round (halves round up for non-negative bounds).
func clapBoundsRounded(imageSize uint32, clapSize, offset bmff.Fraction) (low, high int64) {
	center := fracAdd(offset, bmff.Fraction{Num: int64(imageSize) - 1, Den: 2})
	half := fracHalf(fracSub1(clapSize))
	low = fracSub(center, half).Round()
	high = fracAdd(center, half).Round()
	return
}

func fracAdd(a, b bmff.Fraction) bmff.Fraction {
	return bmff.Fraction{Num: a.Num*b.Den + b.Num*a.Den, Den: a.Den * b.Den}
}

func fracSub(a, b bmff.Fraction) bmff.Fraction {
	return bmff.Fraction{Num: a.Num*b.Den - b.Num*a.Den, Den: a.Den * b.Den}
}

// fracSub1 returns f-1.
func fracSub1(f bmff.Fraction) bmff.Fraction {
	return bmff.Fraction{Num: f.Num - f.Den, Den: f.Den}
}

// fracHalf returns f/2.
func fracHalf(f bmff.Fraction) bmff.Fraction {
	return bmff.Fraction{Num: f.Num, Den: f.Den * 2}
}

