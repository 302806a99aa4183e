package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
	pdf417 "github.com/ruudk/golang-pdf417"

	"github.com/lvillar/invtpl/schema"
)

// PDF417 layout parameters.
const (
	pdf417Columns       = 5
	pdf417SecurityLevel = 2
)

// Symbol encodes the barcode op and scales it to at least w x h pixels.
// Two-dimensional codes keep square modules, so the result can be smaller
// than requested along one axis. Dark modules take the op color.
func (op BarcodeOp) Symbol(w, h int) (image.Image, error) {
	var (
		code barcode.Barcode
		err  error
	)
	switch op.Symbology {
	case schema.SymbologyCode128:
		code, err = code128.Encode(op.Value)
	case schema.SymbologyPDF417:
		code = pdf417.Encode(op.Value, pdf417Columns, pdf417SecurityLevel)
	default:
		code, err = qr.Encode(op.Value, qr.M, qr.Auto)
	}
	if err != nil {
		return nil, fmt.Errorf("render: encoding %s barcode: %w", op.Symbology, err)
	}

	b := code.Bounds()
	w, h = max(w, b.Dx()), max(h, b.Dy())
	if op.Symbology != schema.SymbologyCode128 {
		// Integral module size along both axes.
		f := min(w/b.Dx(), h/b.Dy())
		w, h = b.Dx()*f, b.Dy()*f
	}
	scaled, err := barcode.Scale(code, w, h)
	if err != nil {
		return nil, fmt.Errorf("render: scaling %s barcode: %w", op.Symbology, err)
	}
	return tint(scaled, op.Color), nil
}

// tint returns an 8-bit copy of img with dark pixels in c and light pixels
// white.
func tint(img image.Image, c Color) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	ink := color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
	paper := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			px := paper
			if g.Y < 128 {
				px = ink
			}
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, px)
		}
	}
	return out
}
