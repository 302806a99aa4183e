package render

import (
	"github.com/lvillar/invtpl/schema"
)

// Tree is the paginated draw description produced by Engine.Render. Paint
// backends consume it without access to the template or the data context.
type Tree struct {
	TemplateID string
	Title      string
	Watermark  string // painted diagonally on every page when set
	Pages      []*Page
}

// Page is one page of a Tree. Coordinates are points from the top-left
// corner of the page.
type Page struct {
	Number     int // 1-based
	Width      float64
	Height     float64
	Margin     schema.Margin
	Background *Color

	// Letterhead is the resolved path of a PDF whose first page is painted
	// underneath the page content; empty for none.
	Letterhead string

	Ops []Op
}

// Role tells backends and tests which part of an element an op draws.
type Role string

const (
	RoleText        Role = "text"
	RoleField       Role = "field"
	RoleImage       Role = "image"
	RoleShape       Role = "shape"
	RoleBarcode     Role = "barcode"
	RoleTableHeader Role = "table-header"
	RoleTableRow    Role = "table-row"
	RoleTableCell   Role = "table-cell"
)

// Op is a draw primitive. The set of ops is closed: TextOp, ImageOp, RectOp,
// EllipseOp, LineOp and BarcodeOp.
type Op interface {
	Source() Origin
	isOp()
}

// Origin identifies the element an op was produced from.
type Origin struct {
	ElementID string
	Role      Role
}

// Source returns o.
func (o Origin) Source() Origin { return o }

// Box is an axis-aligned rectangle.
type Box struct {
	X, Y, W, H float64
}

// Color is an opaque RGB color.
type Color struct {
	R, G, B uint8
}

// Font describes a text face. Family is one of the names the backend
// understands; unknown families fall back to Helvetica.
type Font struct {
	Family    string
	Size      float64 // points
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
}

// Align is a horizontal text alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// TextOp draws pre-wrapped lines of text inside Box, starting at its top.
type TextOp struct {
	Origin
	Box
	Text       string   // text after transforms, before wrapping
	Lines      []string // wrapped to Box.W
	Font       Font
	Color      Color
	Align      Align
	LineHeight float64 // distance between baselines in points
	Opacity    float64
}

// ImageOp draws encoded image bytes scaled into Box.
type ImageOp struct {
	Origin
	Box
	Data      []byte
	MediaType string // sniffed from Data, e.g. "image/png"
	Opacity   float64
}

// RectOp draws a rectangle. A nil Fill or Stroke skips that part.
type RectOp struct {
	Origin
	Box
	Fill        *Color
	Stroke      *Color
	StrokeWidth float64
	Radius      float64
	Opacity     float64
}

// EllipseOp draws the ellipse inscribed in Box.
type EllipseOp struct {
	Origin
	Box
	Fill        *Color
	Stroke      *Color
	StrokeWidth float64
	Opacity     float64
}

// LineOp draws a straight line.
type LineOp struct {
	Origin
	X1, Y1, X2, Y2 float64
	Stroke         Color
	Width          float64
	Opacity        float64
}

// BarcodeOp draws Value encoded with Symbology, scaled into Box.
type BarcodeOp struct {
	Origin
	Box
	Symbology schema.Symbology
	Value     string
	Color     Color
}

func (TextOp) isOp()    {}
func (ImageOp) isOp()   {}
func (RectOp) isOp()    {}
func (EllipseOp) isOp() {}
func (LineOp) isOp()    {}
func (BarcodeOp) isOp() {}

// Texts returns the text ops of all pages in paint order.
func (t *Tree) Texts() []TextOp {
	var out []TextOp
	for _, p := range t.Pages {
		for _, op := range p.Ops {
			if text, ok := op.(TextOp); ok {
				out = append(out, text)
			}
		}
	}
	return out
}

// Count returns the number of ops with the given role across all pages.
func (t *Tree) Count(role Role) int {
	n := 0
	for _, p := range t.Pages {
		for _, op := range p.Ops {
			if op.Source().Role == role {
				n++
			}
		}
	}
	return n
}
