package schema

// PageSize names a supported paper format.
type PageSize string

const (
	SizeA4     PageSize = "A4"
	SizeA5     PageSize = "A5"
	SizeLetter PageSize = "Letter"
	SizeLegal  PageSize = "Legal"
)

// Page dimensions in points (1/72 in).
var pageDimensions = map[PageSize][2]float64{
	SizeA4:     {595.28, 841.89},
	SizeA5:     {419.53, 595.28},
	SizeLetter: {612, 792},
	SizeLegal:  {612, 1008},
}

// Dimensions returns the width and height of the page size in points.
// Unknown or empty sizes fall back to A4.
func (s PageSize) Dimensions() (w, h float64) {
	d, ok := pageDimensions[s]
	if !ok {
		d = pageDimensions[SizeA4]
	}
	return d[0], d[1]
}

// PageSpec defines the page geometry of a template.
type PageSpec struct {
	Size       PageSize `json:"size" validate:"omitempty,oneof=A4 A5 Letter Legal"`
	Margin     Margin   `json:"margin"`
	Background *string  `json:"background"` // color, or null for none

	// Letterhead is an optional asset reference to a PDF whose first page
	// is painted underneath the template on every page.
	Letterhead string `json:"letterhead,omitempty"`
}

// Margin defines page margins.
type Margin struct {
	Top    float64 `json:"top" validate:"gte=0"`
	Right  float64 `json:"right" validate:"gte=0"`
	Bottom float64 `json:"bottom" validate:"gte=0"`
	Left   float64 `json:"left" validate:"gte=0"`
}

// DefaultPage returns the page used when a document carries none:
// A4, 40pt margins on all sides, no background.
func DefaultPage() PageSpec {
	return PageSpec{
		Size:   SizeA4,
		Margin: Margin{Top: 40, Right: 40, Bottom: 40, Left: 40},
	}
}
