// Package render binds a data context to the elements of a template and lays
// them out into a paginated Tree of draw primitives.
//
// Rendering degrades instead of failing: unresolved bindings render as empty
// text and missing images are skipped. Only a structurally unusable
// definition is an error.
package render

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/binding"
	"github.com/lvillar/invtpl/schema"
)

// Style defaults.
const (
	DefaultFontFamily = "Helvetica"
	DefaultFontSize   = 10.0
	DefaultLineHeight = 1.2
)

// AssetResolver maps a template asset reference to a readable path.
// *asset.Manager implements it.
type AssetResolver interface {
	ResolvePath(templateID, ref string) string
}

// Engine renders templates. It is safe for concurrent use once constructed.
type Engine struct {
	measurer  Measurer
	formatter *binding.Formatter
	assets    AssetResolver
	watermark string
	lang      language.Tag
	log       logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMeasurer sets the text measurer used for wrapping and table row
// heights.
func WithMeasurer(m Measurer) Option {
	return func(e *Engine) {
		e.measurer = m
	}
}

// WithFormatter sets the value formatter for fields and table cells.
func WithFormatter(f *binding.Formatter) Option {
	return func(e *Engine) {
		e.formatter = f
	}
}

// WithAssets sets the resolver for image and letterhead references.
// Without one, only absolute paths and inline payloads are loaded.
func WithAssets(r AssetResolver) Option {
	return func(e *Engine) {
		e.assets = r
	}
}

// WithWatermark marks every page with text, e.g. "DRAFT".
func WithWatermark(text string) Option {
	return func(e *Engine) {
		e.watermark = text
	}
}

// WithLanguage sets the language used for text transforms.
func WithLanguage(tag language.Tag) Option {
	return func(e *Engine) {
		e.lang = tag
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New returns an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		measurer:  basicMeasurer{},
		formatter: binding.DefaultFormatter(),
		lang:      language.Und,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render lays out def against ctx. def is not modified.
func (e *Engine) Render(def *schema.TemplateDefinition, ctx binding.Context) (*Tree, error) {
	if def == nil {
		return nil, invtpl.NewError("Render", "", fmt.Errorf("%w: nil definition", invtpl.ErrInvalidTemplate))
	}
	id := def.ID()
	if def.Elements == nil {
		return nil, invtpl.NewError("Render", id, fmt.Errorf("%w: definition has no elements array", invtpl.ErrInvalidTemplate))
	}

	tree := &Tree{TemplateID: id, Watermark: e.watermark}
	if def.Meta != nil {
		tree.Title = def.Meta.Name
	}
	r := &run{
		e:    e,
		def:  def,
		ctx:  ctx,
		tree: tree,
		log:  e.log.WithField("template_id", id),
	}
	r.page(0)

	for _, el := range paintOrder(def.Elements) {
		r.element(el)
	}

	r.log.WithFields(logrus.Fields{
		"pages":    len(tree.Pages),
		"elements": len(def.Elements),
	}).Debug("Template rendered")
	return tree, nil
}

// paintOrder returns the elements sorted by zIndex. Elements without one
// count as 0; ties keep their definition order.
func paintOrder(elements []schema.Element) []*schema.Element {
	out := make([]*schema.Element, len(elements))
	for i := range elements {
		out[i] = &elements[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return zIndex(out[i]) < zIndex(out[j])
	})
	return out
}

func zIndex(el *schema.Element) int {
	if el.ZIndex == nil {
		return 0
	}
	return *el.ZIndex
}

// run holds the state of one Render call.
type run struct {
	e    *Engine
	def  *schema.TemplateDefinition
	ctx  binding.Context
	tree *Tree
	log  logrus.FieldLogger
}

// page returns the page with index i, adding pages as needed.
func (r *run) page(i int) *Page {
	for len(r.tree.Pages) <= i {
		spec := r.def.Page
		w, h := spec.Size.Dimensions()
		p := &Page{
			Number: len(r.tree.Pages) + 1,
			Width:  w,
			Height: h,
			Margin: spec.Margin,
		}
		if spec.Background != nil {
			p.Background = ParseColor(*spec.Background)
		}
		if spec.Letterhead != "" {
			p.Letterhead = r.resolve(spec.Letterhead)
		}
		r.tree.Pages = append(r.tree.Pages, p)
	}
	return r.tree.Pages[i]
}

func (r *run) emit(page int, op Op) {
	p := r.page(page)
	p.Ops = append(p.Ops, op)
}

func (r *run) element(el *schema.Element) {
	switch el.Type {
	case schema.TypeText:
		r.text(el, el.Content, RoleText)
	case schema.TypeField:
		v := binding.Resolve(el.Binding, r.ctx)
		r.text(el, r.e.formatter.Format(v, el.Binding), RoleField)
	case schema.TypeImage:
		r.image(el)
	case schema.TypeTable:
		r.table(el)
	case schema.TypeShape:
		r.shape(el)
	case schema.TypeBarcode:
		r.barcode(el)
	default:
		r.log.WithFields(logrus.Fields{"element_id": el.ID, "type": el.Type}).Warn("Skipping element of unknown type")
	}
}

// textStyle is the resolved typography of an element.
type textStyle struct {
	font       Font
	color      Color
	align      Align
	lineHeight float64
	transform  string
	opacity    float64
}

func (r *run) textStyle(s *schema.Style) textStyle {
	ts := textStyle{
		font:       Font{Family: DefaultFontFamily, Size: DefaultFontSize},
		color:      black,
		align:      AlignLeft,
		lineHeight: DefaultLineHeight,
		opacity:    1,
	}
	if s == nil {
		return ts
	}
	if s.FontFamily != "" {
		ts.font.Family = s.FontFamily
	}
	if s.FontSize > 0 {
		ts.font.Size = s.FontSize
	}
	ts.font.Bold = s.FontWeight.Bold()
	ts.font.Italic = strings.EqualFold(s.FontStyle, "italic") || strings.EqualFold(s.FontStyle, "oblique")
	switch strings.ToLower(s.TextDecoration) {
	case "underline":
		ts.font.Underline = true
	case "line-through":
		ts.font.Strike = true
	}
	ts.color = colorOr(s.Color, black)
	switch Align(strings.ToLower(s.TextAlign)) {
	case AlignCenter:
		ts.align = AlignCenter
	case AlignRight:
		ts.align = AlignRight
	}
	if s.LineHeight > 0 {
		ts.lineHeight = s.LineHeight
	}
	ts.transform = strings.ToLower(s.TextTransform)
	ts.opacity = opacity(s)
	return ts
}

func opacity(s *schema.Style) float64 {
	if s == nil || s.Opacity == nil {
		return 1
	}
	return max(0, min(1, *s.Opacity))
}

func (r *run) transform(text, mode string) string {
	switch mode {
	case "uppercase":
		return cases.Upper(r.e.lang).String(text)
	case "lowercase":
		return cases.Lower(r.e.lang).String(text)
	case "capitalize":
		return cases.Title(r.e.lang, cases.NoLower).String(text)
	}
	return text
}

func (r *run) textOp(el *schema.Element, role Role, box Box, text string, ts textStyle) TextOp {
	text = r.transform(text, ts.transform)
	return TextOp{
		Origin:     Origin{ElementID: el.ID, Role: role},
		Box:        box,
		Text:       text,
		Lines:      r.e.measurer.SplitLines(text, ts.font, box.W),
		Font:       ts.font,
		Color:      ts.color,
		Align:      ts.align,
		LineHeight: ts.font.Size * ts.lineHeight,
		Opacity:    ts.opacity,
	}
}

func (r *run) text(el *schema.Element, text string, role Role) {
	ts := r.textStyle(el.Style)
	r.emit(0, r.textOp(el, role, Box{X: el.X, Y: el.Y, W: el.Width, H: el.Height}, text, ts))
}

func (r *run) shape(el *schema.Element) {
	origin := Origin{ElementID: el.ID, Role: RoleShape}
	box := Box{X: el.X, Y: el.Y, W: el.Width, H: el.Height}

	var fill, stroke *Color
	strokeWidth, radius, alpha := 1.0, 0.0, 1.0
	if s := el.Style; s != nil {
		fill = ParseColor(s.Fill)
		stroke = ParseColor(s.Stroke)
		if s.StrokeWidth > 0 {
			strokeWidth = s.StrokeWidth
		}
		radius = s.BorderRadius
		alpha = opacity(s)
	}
	if fill == nil && stroke == nil {
		c := black
		stroke = &c
	}

	switch el.Shape {
	case schema.ShapeCircle:
		r.emit(0, EllipseOp{Origin: origin, Box: box, Fill: fill, Stroke: stroke, StrokeWidth: strokeWidth, Opacity: alpha})
	case schema.ShapeLine:
		c := black
		if stroke != nil {
			c = *stroke
		} else if fill != nil {
			c = *fill
		}
		r.emit(0, LineOp{Origin: origin, X1: el.X, Y1: el.Y, X2: el.X + el.Width, Y2: el.Y + el.Height, Stroke: c, Width: strokeWidth, Opacity: alpha})
	default:
		r.emit(0, RectOp{Origin: origin, Box: box, Fill: fill, Stroke: stroke, StrokeWidth: strokeWidth, Radius: radius, Opacity: alpha})
	}
}

func (r *run) barcode(el *schema.Element) {
	value := el.Content
	if el.Binding != "" {
		value = r.e.formatter.Format(binding.Resolve(el.Binding, r.ctx), el.Binding)
	}
	if value == "" {
		return
	}
	sym := el.Symbology
	if sym == "" {
		sym = schema.SymbologyQR
	}
	c := black
	if el.Style != nil {
		c = colorOr(el.Style.Color, black)
	}
	r.emit(0, BarcodeOp{
		Origin:    Origin{ElementID: el.ID, Role: RoleBarcode},
		Box:       Box{X: el.X, Y: el.Y, W: el.Width, H: el.Height},
		Symbology: sym,
		Value:     value,
		Color:     c,
	})
}

func (r *run) image(el *schema.Element) {
	if el.Src == "" {
		return
	}
	log := r.log.WithFields(logrus.Fields{"element_id": el.ID, "src": el.Src})

	var data []byte
	if schema.IsInline(el.Src) {
		uri, err := asset.ParseDataURI(el.Src)
		if err != nil {
			log.WithError(err).Warn("Skipping image with invalid inline payload")
			return
		}
		data = uri.Data
	} else {
		path := r.resolve(el.Src)
		if path == "" {
			log.Debug("Skipping image without a resolvable path")
			return
		}
		var err error
		if data, err = os.ReadFile(path); err != nil {
			log.WithError(err).Debug("Skipping missing image")
			return
		}
	}

	box := Box{X: el.X, Y: el.Y, W: el.Width, H: el.Height}
	if el.PreservesAspect() {
		if cfg, _, err := asset.DecodeConfig(data); err == nil {
			box = fit(box, float64(cfg.Width), float64(cfg.Height))
		}
	}
	r.emit(0, ImageOp{
		Origin:    Origin{ElementID: el.ID, Role: RoleImage},
		Box:       box,
		Data:      data,
		MediaType: asset.Sniff(data),
		Opacity:   opacity(el.Style),
	})
}

// resolve maps a reference to a local path. URLs are not fetched.
func (r *run) resolve(ref string) string {
	if strings.Contains(ref, "://") {
		return ""
	}
	if r.e.assets != nil {
		return r.e.assets.ResolvePath(r.def.ID(), ref)
	}
	if schema.IsAbsolute(ref) {
		return ref
	}
	return ""
}

// fit scales an iw x ih image into box keeping its aspect ratio, centered.
func fit(box Box, iw, ih float64) Box {
	if iw <= 0 || ih <= 0 || box.W <= 0 || box.H <= 0 {
		return box
	}
	scale := min(box.W/iw, box.H/ih)
	w, h := iw*scale, ih*scale
	return Box{X: box.X + (box.W-w)/2, Y: box.Y + (box.H-h)/2, W: w, H: h}
}
