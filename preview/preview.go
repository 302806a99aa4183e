// Package preview rasterizes render trees into images for template
// thumbnails.
//
// The rasterizer trades fidelity for zero external font files: text uses the
// fixed 7x13 bitmap face scaled to the requested size and letterheads are
// not drawn.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/render"
)

// DefaultWidth is the pixel width of thumbnails produced by Thumbnail when
// no width is given.
const DefaultWidth = 420

// Watermark appearance, matching the PDF backend.
const (
	watermarkFontSize = 60
	watermarkOpacity  = 0.3
)

var face = basicfont.Face7x13

// Option configures a rasterization.
type Option func(*canvas)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *canvas) {
		c.log = log
	}
}

type canvas struct {
	img   *image.RGBA
	scale float64
	log   logrus.FieldLogger
}

// Rasterize paints page i (0-based) of tree at scale pixels per point.
func Rasterize(tree *render.Tree, i int, scale float64, opts ...Option) (*image.RGBA, error) {
	if tree == nil || i < 0 || i >= len(tree.Pages) {
		return nil, fmt.Errorf("preview: %w: page %d out of range", invtpl.ErrInvalidInput, i)
	}
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return nil, fmt.Errorf("preview: %w: scale %v", invtpl.ErrInvalidInput, scale)
	}
	page := tree.Pages[i]
	w, h := int(math.Ceil(page.Width*scale)), int(math.Ceil(page.Height*scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("preview: %w: page %d has no area", invtpl.ErrInvalidInput, page.Number)
	}

	c := &canvas{
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		scale: scale,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("template_id", tree.TemplateID)

	draw.Draw(c.img, c.img.Bounds(), image.White, image.Point{}, draw.Src)
	if page.Background != nil {
		draw.Draw(c.img, c.img.Bounds(), image.NewUniform(rgba(*page.Background, 1)), image.Point{}, draw.Src)
	}

	for _, op := range page.Ops {
		switch o := op.(type) {
		case render.TextOp:
			c.text(o)
		case render.ImageOp:
			c.image(o)
		case render.RectOp:
			c.rect(o)
		case render.EllipseOp:
			c.ellipse(o)
		case render.LineOp:
			c.line(o)
		case render.BarcodeOp:
			c.barcode(o)
		}
	}

	if tree.Watermark != "" {
		c.text(render.TextOp{
			Box:        render.Box{X: 0, Y: (page.Height - watermarkFontSize) / 2, W: page.Width, H: watermarkFontSize},
			Lines:      []string{tree.Watermark},
			Font:       render.Font{Size: watermarkFontSize, Bold: true},
			Color:      render.Color{R: 200, G: 200, B: 200},
			Align:      render.AlignCenter,
			LineHeight: watermarkFontSize,
			Opacity:    watermarkOpacity,
		})
	}
	return c.img, nil
}

// Thumbnail rasterizes the first page of tree scaled to width pixels.
func Thumbnail(tree *render.Tree, width int, opts ...Option) (*image.RGBA, error) {
	if tree == nil || len(tree.Pages) == 0 {
		return nil, fmt.Errorf("preview: %w: empty render tree", invtpl.ErrInvalidInput)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return Rasterize(tree, 0, float64(width)/tree.Pages[0].Width, opts...)
}

// EncodePNG writes img to w as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("preview: encoding png: %w", err)
	}
	return nil
}

func rgba(c render.Color, opacity float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(255 * max(0, min(1, opacity))))}
}

// frect is a rectangle in pixel space.
type frect struct{ x0, y0, x1, y1 float64 }

func (c *canvas) frect(b render.Box) frect {
	return frect{b.X * c.scale, b.Y * c.scale, (b.X + b.W) * c.scale, (b.Y + b.H) * c.scale}
}

func (f frect) inset(d float64) frect {
	return frect{f.x0 + d, f.y0 + d, f.x1 - d, f.y1 - d}
}

func (f frect) bounds() image.Rectangle {
	return image.Rect(int(math.Floor(f.x0)), int(math.Floor(f.y0)), int(math.Ceil(f.x1)), int(math.Ceil(f.y1)))
}

func (c *canvas) pixels(b render.Box) image.Rectangle {
	f := c.frect(b)
	return image.Rect(int(math.Round(f.x0)), int(math.Round(f.y0)), int(math.Round(f.x1)), int(math.Round(f.y1)))
}

// cover builds a mask of the pixels in r whose centers are inside.
func (c *canvas) cover(r image.Rectangle, inside func(x, y float64) bool) *image.Alpha {
	r = r.Intersect(c.img.Bounds())
	if r.Empty() {
		return nil
	}
	m := image.NewAlpha(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if inside(float64(x)+0.5, float64(y)+0.5) {
				m.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return m
}

func (c *canvas) fill(m *image.Alpha, col render.Color, opacity float64) {
	if m == nil {
		return
	}
	draw.DrawMask(c.img, m.Bounds(), image.NewUniform(rgba(col, opacity)), image.Point{}, m, m.Bounds().Min, draw.Over)
}

func (c *canvas) strokeWidth(w float64) float64 {
	return max(1, w*c.scale)
}

func inRounded(f frect, r, x, y float64) bool {
	if x < f.x0 || x >= f.x1 || y < f.y0 || y >= f.y1 {
		return false
	}
	r = min(r, (f.x1-f.x0)/2, (f.y1-f.y0)/2)
	if r <= 0 {
		return true
	}
	cx := min(max(x, f.x0+r), f.x1-r)
	cy := min(max(y, f.y0+r), f.y1-r)
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}

func inEllipse(f frect, x, y float64) bool {
	rx, ry := (f.x1-f.x0)/2, (f.y1-f.y0)/2
	if rx <= 0 || ry <= 0 {
		return false
	}
	dx, dy := (x-f.x0-rx)/rx, (y-f.y0-ry)/ry
	return dx*dx+dy*dy <= 1
}

func (c *canvas) rect(op render.RectOp) {
	f := c.frect(op.Box)
	radius := op.Radius * c.scale
	if op.Fill != nil {
		c.fill(c.cover(f.bounds(), func(x, y float64) bool {
			return inRounded(f, radius, x, y)
		}), *op.Fill, op.Opacity)
	}
	if op.Stroke != nil {
		t := c.strokeWidth(op.StrokeWidth) / 2
		outer, inner := f.inset(-t), f.inset(t)
		c.fill(c.cover(outer.bounds(), func(x, y float64) bool {
			return inRounded(outer, radius+t, x, y) && !inRounded(inner, radius-t, x, y)
		}), *op.Stroke, op.Opacity)
	}
}

func (c *canvas) ellipse(op render.EllipseOp) {
	f := c.frect(op.Box)
	if op.Fill != nil {
		c.fill(c.cover(f.bounds(), func(x, y float64) bool {
			return inEllipse(f, x, y)
		}), *op.Fill, op.Opacity)
	}
	if op.Stroke != nil {
		t := c.strokeWidth(op.StrokeWidth) / 2
		outer, inner := f.inset(-t), f.inset(t)
		c.fill(c.cover(outer.bounds(), func(x, y float64) bool {
			return inEllipse(outer, x, y) && !inEllipse(inner, x, y)
		}), *op.Stroke, op.Opacity)
	}
}

func (c *canvas) line(op render.LineOp) {
	x1, y1 := op.X1*c.scale, op.Y1*c.scale
	x2, y2 := op.X2*c.scale, op.Y2*c.scale
	t := c.strokeWidth(op.Width) / 2
	f := frect{min(x1, x2) - t, min(y1, y2) - t, max(x1, x2) + t, max(y1, y2) + t}
	c.fill(c.cover(f.bounds(), func(x, y float64) bool {
		return segmentDistance(x, y, x1, y1, x2, y2) <= t
	}), op.Stroke, op.Opacity)
}

// segmentDistance is the distance from (px, py) to the segment (x1, y1)-(x2, y2).
func segmentDistance(px, py, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-x1, py-y1)
	}
	u := max(0, min(1, ((px-x1)*dx+(py-y1)*dy)/l2))
	return math.Hypot(px-(x1+u*dx), py-(y1+u*dy))
}

func (c *canvas) text(op render.TextOp) {
	k := op.Font.Size * c.scale / float64(face.Height)
	if k <= 0 {
		return
	}
	src := image.NewUniform(rgba(op.Color, op.Opacity))
	for i, line := range op.Lines {
		adv := font.MeasureString(face, line).Ceil()
		if adv == 0 {
			continue
		}
		glyphs := image.NewRGBA(image.Rect(0, 0, adv, face.Height))
		d := font.Drawer{Dst: glyphs, Src: src, Face: face, Dot: fixed.P(0, face.Ascent)}
		d.DrawString(line)

		w := float64(adv) * k
		x := op.X * c.scale
		switch op.Align {
		case render.AlignCenter:
			x += (op.W*c.scale - w) / 2
		case render.AlignRight:
			x += op.W*c.scale - w
		}
		y := (op.Y + float64(i)*op.LineHeight) * c.scale
		dst := frect{x, y, x + w, y + float64(face.Height)*k}
		draw.ApproxBiLinear.Scale(c.img, dst.bounds(), glyphs, glyphs.Bounds(), draw.Over, nil)

		rule := func(at float64) {
			t := max(1, k)
			c.fill(c.cover(frect{dst.x0, at - t/2, dst.x1, at + t/2}.bounds(), func(float64, float64) bool { return true }), op.Color, op.Opacity)
		}
		if op.Font.Underline {
			rule(y + float64(face.Ascent+1)*k)
		}
		if op.Font.Strike {
			rule(y + float64(face.Ascent)*k/2)
		}
	}
}

func (c *canvas) image(op render.ImageOp) {
	r := c.pixels(op.Box)
	if r.Empty() {
		return
	}
	src, _, err := asset.Decode(op.Data)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"element_id": op.ElementID,
			"media_type": op.MediaType,
		}).Warn("Skipping image the preview cannot decode")
		return
	}
	c.place(r, src, draw.CatmullRom, op.Opacity)
}

func (c *canvas) barcode(op render.BarcodeOp) {
	r := c.pixels(op.Box)
	if r.Empty() {
		return
	}
	sym, err := op.Symbol(r.Dx(), r.Dy())
	if err != nil {
		c.log.WithError(err).WithField("element_id", op.ElementID).Warn("Skipping barcode")
		return
	}
	c.place(r, sym, draw.NearestNeighbor, 1)
}

// place scales src into r and composites it with the given opacity.
func (c *canvas) place(r image.Rectangle, src image.Image, s draw.Scaler, opacity float64) {
	scaled := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	s.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(255 * max(0, min(1, opacity))))})
	draw.DrawMask(c.img, r, scaled, image.Point{}, mask, image.Point{}, draw.Over)
}
