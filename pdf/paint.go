// Package pdf paints render trees into PDF documents with gofpdf.
//
// All coordinates are points. Text is drawn line by line as wrapped by the
// render engine; use NewMeasurer with the engine so that wrapping follows
// the same font metrics the painter draws with.
package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/render"
)

// Barcodes are rasterized at this many pixels per point.
const barcodeResolution = 4

// Watermark appearance.
const (
	watermarkFontSize = 60
	watermarkOpacity  = 0.3
	watermarkAngle    = 45
)

// Option configures Paint.
type Option func(*painter)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *painter) {
		p.log = log
	}
}

// WithCompression toggles stream compression, which is on by default.
func WithCompression(on bool) Option {
	return func(p *painter) {
		p.compress = on
	}
}

// WithAuthor sets the document author.
func WithAuthor(author string) Option {
	return func(p *painter) {
		p.author = author
	}
}

// WithCodePage selects the single-byte code page text is translated to, by
// gofpdf descriptor such as "cp1250". The default is cp1252.
func WithCodePage(cp string) Option {
	return func(p *painter) {
		p.codePage = cp
	}
}

type painter struct {
	pdf      *gofpdf.Fpdf
	tr       func(string) string
	log      logrus.FieldLogger
	compress bool
	author   string
	codePage string

	images      int
	imp         *gofpdi.Importer
	letterheads map[string]int // path -> template id, -1 when unusable
}

// Paint writes tree as a PDF document to w.
func Paint(w io.Writer, tree *render.Tree, opts ...Option) error {
	if tree == nil || len(tree.Pages) == 0 {
		return fmt.Errorf("pdf: %w: empty render tree", invtpl.ErrInvalidInput)
	}
	p := &painter{
		log:         logrus.StandardLogger(),
		compress:    true,
		letterheads: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	first := tree.Pages[0]
	p.pdf = gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	p.pdf.SetMargins(0, 0, 0)
	p.pdf.SetAutoPageBreak(false, 0)
	p.pdf.SetCellMargin(0)
	p.pdf.SetCompression(p.compress)
	p.pdf.SetCreator("invtpl", true)
	if tree.Title != "" {
		p.pdf.SetTitle(tree.Title, true)
	}
	if p.author != "" {
		p.pdf.SetAuthor(p.author, true)
	}
	p.tr = p.pdf.UnicodeTranslatorFromDescriptor(p.codePage)

	for _, page := range tree.Pages {
		p.page(page, tree.Watermark)
		if p.pdf.Err() {
			break
		}
	}

	if p.pdf.Err() {
		return fmt.Errorf("pdf: %w", p.pdf.Error())
	}
	return p.pdf.Output(w)
}

func (p *painter) page(page *render.Page, watermark string) {
	p.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: page.Width, Ht: page.Height})

	if page.Background != nil {
		p.fill(*page.Background)
		p.pdf.Rect(0, 0, page.Width, page.Height, "F")
	}
	if page.Letterhead != "" {
		p.letterhead(page)
	}

	for _, op := range page.Ops {
		switch o := op.(type) {
		case render.TextOp:
			p.text(o)
		case render.ImageOp:
			p.image(o)
		case render.RectOp:
			p.rect(o)
		case render.EllipseOp:
			p.ellipse(o)
		case render.LineOp:
			p.line(o)
		case render.BarcodeOp:
			p.barcode(o)
		}
	}

	if watermark != "" {
		p.watermark(watermark, page.Width, page.Height)
	}
}

func (p *painter) fill(c render.Color) {
	p.pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

func (p *painter) stroke(c render.Color) {
	p.pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func (p *painter) alpha(a float64) func() {
	if a >= 1 {
		return func() {}
	}
	p.pdf.SetAlpha(a, "Normal")
	return func() { p.pdf.SetAlpha(1, "Normal") }
}

// letterhead paints the first page of a PDF underneath the page content.
// gofpdi panics on unreadable input, which disables the letterhead.
func (p *painter) letterhead(page *render.Page) {
	id, ok := p.letterheads[page.Letterhead]
	if !ok {
		id = p.importLetterhead(page.Letterhead)
		p.letterheads[page.Letterhead] = id
	}
	if id >= 0 {
		p.imp.UseImportedTemplate(p.pdf, id, 0, 0, page.Width, page.Height)
	}
}

func (p *painter) importLetterhead(path string) (id int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("path", path).Warnf("Skipping unreadable letterhead: %v", r)
			id = -1
		}
	}()
	if p.imp == nil {
		p.imp = gofpdi.NewImporter()
	}
	return p.imp.ImportPage(p.pdf, path, 1, "/MediaBox")
}

var fontFamilies = map[string]string{
	"helvetica":       "Helvetica",
	"arial":           "Helvetica",
	"sans-serif":      "Helvetica",
	"times":           "Times",
	"times new roman": "Times",
	"georgia":         "Times",
	"serif":           "Times",
	"courier":         "Courier",
	"courier new":     "Courier",
	"monospace":       "Courier",
}

// coreFont maps a font to a PDF core font family and gofpdf style string.
func coreFont(f render.Font) (family, style string) {
	family = "Helvetica"
	name := strings.ToLower(strings.Trim(strings.TrimSpace(f.Family), `"'`))
	if core, ok := fontFamilies[name]; ok {
		family = core
	}
	if f.Bold {
		style += "B"
	}
	if f.Italic {
		style += "I"
	}
	if f.Underline {
		style += "U"
	}
	return family, style
}

var alignStr = map[render.Align]string{
	render.AlignLeft:   "LT",
	render.AlignCenter: "CT",
	render.AlignRight:  "RT",
}

func (p *painter) text(op render.TextOp) {
	if len(op.Lines) == 0 {
		return
	}
	family, style := coreFont(op.Font)
	p.pdf.SetFont(family, style, op.Font.Size)
	p.pdf.SetTextColor(int(op.Color.R), int(op.Color.G), int(op.Color.B))
	defer p.alpha(op.Opacity)()

	align := alignStr[op.Align]
	if align == "" {
		align = "LT"
	}
	for i, line := range op.Lines {
		y := op.Y + float64(i)*op.LineHeight
		text := p.tr(line)
		p.pdf.SetXY(op.X, y)
		p.pdf.CellFormat(op.W, op.LineHeight, text, "", 0, align, false, 0, "")
		if op.Font.Strike {
			p.strike(op, text, y)
		}
	}
}

// strike draws a line through the middle of one drawn line of text.
func (p *painter) strike(op render.TextOp, text string, y float64) {
	w := p.pdf.GetStringWidth(text)
	x := op.X
	switch op.Align {
	case render.AlignCenter:
		x += (op.W - w) / 2
	case render.AlignRight:
		x += op.W - w
	}
	mid := y + op.Font.Size/2
	p.stroke(op.Color)
	p.pdf.SetLineWidth(op.Font.Size / 20)
	p.pdf.Line(x, mid, x+w, mid)
}

func shapeStyle(fill, stroke *render.Color) string {
	switch {
	case fill != nil && stroke != nil:
		return "FD"
	case fill != nil:
		return "F"
	default:
		return "D"
	}
}

func (p *painter) prepareShape(fill, stroke *render.Color, width float64) string {
	if fill != nil {
		p.fill(*fill)
	}
	if stroke != nil {
		p.stroke(*stroke)
		p.pdf.SetLineWidth(width)
	}
	return shapeStyle(fill, stroke)
}

func (p *painter) rect(op render.RectOp) {
	if op.Fill == nil && op.Stroke == nil {
		return
	}
	defer p.alpha(op.Opacity)()
	style := p.prepareShape(op.Fill, op.Stroke, op.StrokeWidth)
	if op.Radius > 0 {
		r := min(op.Radius, op.W/2, op.H/2)
		p.pdf.RoundedRect(op.X, op.Y, op.W, op.H, r, "1234", style)
		return
	}
	p.pdf.Rect(op.X, op.Y, op.W, op.H, style)
}

func (p *painter) ellipse(op render.EllipseOp) {
	if op.Fill == nil && op.Stroke == nil {
		return
	}
	defer p.alpha(op.Opacity)()
	style := p.prepareShape(op.Fill, op.Stroke, op.StrokeWidth)
	p.pdf.Ellipse(op.X+op.W/2, op.Y+op.H/2, op.W/2, op.H/2, 0, style)
}

func (p *painter) line(op render.LineOp) {
	defer p.alpha(op.Opacity)()
	p.stroke(op.Stroke)
	p.pdf.SetLineWidth(op.Width)
	p.pdf.Line(op.X1, op.Y1, op.X2, op.Y2)
}

func (p *painter) placeImage(name string, data []byte, imageType string, box render.Box) {
	opts := gofpdf.ImageOptions{ImageType: imageType}
	p.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	p.pdf.ImageOptions(name, box.X, box.Y, box.W, box.H, false, opts, 0, "")
}

func (p *painter) image(op render.ImageOp) {
	data, imageType, err := embeddable(op.Data, op.MediaType)
	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"element_id": op.ElementID,
			"media_type": op.MediaType,
		}).Warn("Skipping image the PDF backend cannot embed")
		return
	}
	p.images++
	defer p.alpha(op.Opacity)()
	p.placeImage(fmt.Sprintf("img-%d", p.images), data, imageType, op.Box)
}

// embeddable returns image bytes gofpdf can embed. JPEG passes through;
// everything else the image decoders understand becomes an 8-bit PNG.
func embeddable(data []byte, mediaType string) ([]byte, string, error) {
	if mediaType == "image/jpeg" {
		return data, "JPG", nil
	}
	img, _, err := asset.Decode(data)
	if err != nil {
		return nil, "", err
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, string, error) {
	b := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, nrgba); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "PNG", nil
}

func (p *painter) barcode(op render.BarcodeOp) {
	img, err := op.Symbol(int(op.W*barcodeResolution), int(op.H*barcodeResolution))
	if err == nil {
		var data []byte
		if data, _, err = encodePNG(img); err == nil {
			p.images++
			p.placeImage(fmt.Sprintf("barcode-%d", p.images), data, "PNG", op.Box)
			return
		}
	}
	p.log.WithError(err).WithField("element_id", op.ElementID).Warn("Skipping barcode")
}

// watermark draws text diagonally across the center of the current page.
func (p *painter) watermark(text string, pageW, pageH float64) {
	p.pdf.SetFont("Helvetica", "B", watermarkFontSize)
	p.pdf.SetTextColor(200, 200, 200)
	p.pdf.SetAlpha(watermarkOpacity, "Normal")

	text = p.tr(text)
	textW := p.pdf.GetStringWidth(text)
	cx, cy := pageW/2, pageH/2

	p.pdf.TransformBegin()
	p.pdf.TransformRotate(watermarkAngle, cx, cy)
	p.pdf.Text(cx-textW/2, cy+watermarkFontSize/3, text)
	p.pdf.TransformEnd()

	p.pdf.SetAlpha(1, "Normal")
}
