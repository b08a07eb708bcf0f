// Package heiferr defines the typed {code, subcode, message} error model
// used throughout heifcore, mirroring the heif_error/heif_error_code/
// heif_suberror_code triple of the original C implementation.
package heiferr

import "fmt"

// Code is the broad error category, matching heif_error_code.
type Code int

const (
	Ok Code = iota
	InputDoesNotExist
	InvalidInput
	UnsupportedFiletype
	UnsupportedFeature
	UsageError
	MemoryAllocationError
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case InputDoesNotExist:
		return "Input_does_not_exist"
	case InvalidInput:
		return "Invalid_input"
	case UnsupportedFiletype:
		return "Unsupported_filetype"
	case UnsupportedFeature:
		return "Unsupported_feature"
	case UsageError:
		return "Usage_error"
	case MemoryAllocationError:
		return "Memory_allocation_error"
	default:
		return "Unknown_error_code"
	}
}

// Subcode is the detailed error reason, matching heif_suberror_code.
type Subcode int

const (
	Unspecified Subcode = iota

	// --- InvalidInput ---
	EndOfData
	InvalidBoxSize
	NoFtypBox
	NoIdatBox
	NoMetaBox
	NoHdlrBox
	NoHvcCBox
	NoPitmBox
	NoIpcoBox
	NoIpmaBox
	NoIlocBox
	NoIinfBox
	NoIprpBox
	NoIrefBox
	NoInfeBox
	NoPictHandler
	IpmaBoxReferencesNonexistingProperty
	NoPropertiesAssignedToItem
	NoItemData
	InvalidGridData
	MissingGridImages
	InvalidCleanAperture
	InvalidOverlayData
	OverlayImageOutsideOfCanvas
	AuxiliaryImageTypeUnspecified
	NoOrInvalidPrimaryImage

	// --- MemoryAllocationError ---
	SecurityLimitExceeded

	// --- UsageError ---
	NonexistingImageReferenced
	NullPointerArgument
	NonexistingImageChannelReferenced
	IndexOutOfRange

	// --- UnsupportedFeature ---
	UnsupportedCodec
	UnsupportedImageType
	UnsupportedDataVersion
	UnsupportedColorConversion
)

var subcodeNames = map[Subcode]string{
	Unspecified:                           "Unspecified",
	EndOfData:                             "End_of_data",
	InvalidBoxSize:                        "Invalid_box_size",
	NoFtypBox:                             "No_ftyp_box",
	NoIdatBox:                             "No_idat_box",
	NoMetaBox:                             "No_meta_box",
	NoHdlrBox:                             "No_hdlr_box",
	NoHvcCBox:                             "No_hvcC_box",
	NoPitmBox:                             "No_pitm_box",
	NoIpcoBox:                             "No_ipco_box",
	NoIpmaBox:                             "No_ipma_box",
	NoIlocBox:                             "No_iloc_box",
	NoIinfBox:                             "No_iinf_box",
	NoIprpBox:                             "No_iprp_box",
	NoIrefBox:                             "No_iref_box",
	NoInfeBox:                             "No_infe_box",
	NoPictHandler:                         "No_pict_handler",
	IpmaBoxReferencesNonexistingProperty:  "Ipma_box_references_nonexisting_property",
	NoPropertiesAssignedToItem:            "No_properties_assigned_to_item",
	NoItemData:                            "No_item_data",
	InvalidGridData:                       "Invalid_grid_data",
	MissingGridImages:                     "Missing_grid_images",
	InvalidCleanAperture:                  "Invalid_clean_aperture",
	InvalidOverlayData:                    "Invalid_overlay_data",
	OverlayImageOutsideOfCanvas:           "Overlay_image_outside_of_canvas",
	AuxiliaryImageTypeUnspecified:         "Auxiliary_image_type_unspecified",
	NoOrInvalidPrimaryImage:               "No_or_invalid_primary_image",
	SecurityLimitExceeded:                 "Security_limit_exceeded",
	NonexistingImageReferenced:            "Nonexisting_image_referenced",
	NullPointerArgument:                   "Null_pointer_argument",
	NonexistingImageChannelReferenced:     "Nonexisting_image_channel_referenced",
	IndexOutOfRange:                       "Index_out_of_range",
	UnsupportedCodec:                      "Unsupported_codec",
	UnsupportedImageType:                  "Unsupported_image_type",
	UnsupportedDataVersion:                "Unsupported_data_version",
	UnsupportedColorConversion:            "Unsupported_color_conversion",
}

func (s Subcode) String() string {
	if name, ok := subcodeNames[s]; ok {
		return name
	}
	return "Unknown_suberror_code"
}

// Error is the concrete error value returned throughout heifcore. The zero
// value is not a valid error; use New or one of the constructors below.
type Error struct {
	Code    Code
	Subcode Subcode
	Message string
}

// New builds an Error, using the subcode's name as the message when none is
// supplied, matching the original's "message is always defined" guarantee.
func New(code Code, subcode Subcode, msg ...string) *Error {
	m := ""
	if len(msg) > 0 {
		m = msg[0]
	}
	if m == "" {
		m = subcode.String()
	}
	return &Error{Code: code, Subcode: subcode, Message: m}
}

func (e *Error) Error() string {
	return fmt.Sprintf("heif: %s (%s): %s", e.Code, e.Subcode, e.Message)
}

// Is lets errors.Is match two heiferr.Errors with the same code/subcode,
// ignoring message text (which often carries offsets/ids for diagnostics).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Subcode == t.Subcode
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, subcode Subcode, format string, args ...interface{}) *Error {
	return New(code, subcode, fmt.Sprintf(format, args...))
}
