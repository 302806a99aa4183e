// Package schema defines the in-memory model of an invoice template.
//
// A template is a TemplateDefinition: metadata, page geometry and an ordered
// sequence of absolutely positioned elements. The package holds no I/O
// besides byte-level decoding and encoding of definition files.
//
// Example JSON:
//
//	{
//	  "schemaVersion": 1,
//	  "meta": {"id": "classic", "name": "Classic", "version": "1.0.0"},
//	  "page": {"size": "A4", "margin": {"top": 40, "right": 40, "bottom": 40, "left": 40}},
//	  "elements": [
//	    {"id": "title", "type": "text", "x": 40, "y": 40, "width": 200, "height": 24, "content": "INVOICE"},
//	    {"id": "total", "type": "field", "x": 400, "y": 700, "width": 150, "height": 20, "binding": "invoice.total"}
//	  ]
//	}
package schema

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 1

// Asset reference prefixes.
const (
	AssetPrefix       = "assets/" // per-template asset directory
	LegacyAssetPrefix = "images/" // shared image directory of the legacy format
)

// ElementType discriminates the variants of Element.
type ElementType string

const (
	TypeText    ElementType = "text"
	TypeField   ElementType = "field"
	TypeImage   ElementType = "image"
	TypeTable   ElementType = "table"
	TypeShape   ElementType = "shape"
	TypeBarcode ElementType = "barcode"
)

// ShapeKind selects the geometry of a shape element.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeLine      ShapeKind = "line"
)

// Symbology selects the encoding of a barcode element.
type Symbology string

const (
	SymbologyQR      Symbology = "qr"
	SymbologyCode128 Symbology = "code128"
	SymbologyPDF417  Symbology = "pdf417"
)

// TemplateDefinition is the current, versioned template document.
type TemplateDefinition struct {
	SchemaVersion int           `json:"schemaVersion"`
	Meta          *TemplateMeta `json:"meta" validate:"required"`
	Page          PageSpec      `json:"page"`
	Elements      []Element     `json:"elements" validate:"dive"`
}

// TemplateMeta describes a template. ID is the storage key.
type TemplateMeta struct {
	ID            string    `json:"id" validate:"required"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Author        string    `json:"author,omitempty"`
	AuthorURL     string    `json:"authorUrl,omitempty"`
	License       string    `json:"license,omitempty"`
	Version       string    `json:"version,omitempty"`
	MinAppVersion string    `json:"minAppVersion,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Tags          []string  `json:"tags,omitempty"`
	Premium       *bool     `json:"premium,omitempty"` // restricts availability to paid plans
	Preview       string    `json:"preview,omitempty"` // asset reference of the preview image
}

// IsPremium reports whether the template is restricted.
func (m *TemplateMeta) IsPremium() bool {
	return m != nil && m.Premium != nil && *m.Premium
}

// Element is a single positioned unit of a template.
// The Type field determines which other fields are relevant.
type Element struct {
	ID     string      `json:"id" validate:"required"`
	Type   ElementType `json:"type" validate:"required,oneof=text field image table shape barcode"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width" validate:"gte=0"`
	Height float64     `json:"height" validate:"gte=0"`
	ZIndex *int        `json:"zIndex,omitempty"`
	Style  *Style      `json:"style,omitempty"`

	// Text, barcode
	Content string `json:"content,omitempty"`

	// Field, table, barcode
	Binding string `json:"binding,omitempty"`

	// Image
	Src                 string `json:"src,omitempty"`
	PreserveAspectRatio *bool  `json:"preserveAspectRatio,omitempty"`

	// Table
	Columns     []TableColumn `json:"columns,omitempty" validate:"dive"`
	MaxRows     int           `json:"maxRows,omitempty" validate:"gte=0"`
	RowHeight   float64       `json:"rowHeight,omitempty" validate:"gte=0"`
	HeaderColor string        `json:"headerColor,omitempty"`
	RowColor    string        `json:"rowColor,omitempty"`

	// Shape
	Shape ShapeKind `json:"shape,omitempty" validate:"omitempty,oneof=rectangle circle line"`

	// Barcode
	Symbology Symbology `json:"symbology,omitempty" validate:"omitempty,oneof=qr code128 pdf417"`
}

// PreservesAspect reports whether an image keeps its aspect ratio when
// scaled into the element box. Defaults to true.
func (e *Element) PreservesAspect() bool {
	return e.PreserveAspectRatio == nil || *e.PreserveAspectRatio
}

// TableColumn defines a column in a table element.
type TableColumn struct {
	Field  string  `json:"field"`
	Header string  `json:"header"`
	Align  string  `json:"align,omitempty" validate:"omitempty,oneof=left center right"`
	Width  float64 `json:"width,omitempty" validate:"gte=0"` // 0 = share remaining width
}

// Style holds typography and shape styling. Zero values mean "inherit the
// renderer default".
type Style struct {
	FontFamily     string     `json:"fontFamily,omitempty"`
	FontSize       float64    `json:"fontSize,omitempty"`
	FontWeight     FontWeight `json:"fontWeight,omitempty"`
	FontStyle      string     `json:"fontStyle,omitempty"` // normal, italic
	Color          string     `json:"color,omitempty"`
	TextAlign      string     `json:"textAlign,omitempty"` // left, center, right
	LineHeight     float64    `json:"lineHeight,omitempty"`
	LetterSpacing  float64    `json:"letterSpacing,omitempty"`
	TextDecoration string     `json:"textDecoration,omitempty"` // underline, line-through
	TextTransform  string     `json:"textTransform,omitempty"`  // uppercase, lowercase, capitalize

	Fill         string   `json:"fill,omitempty"`
	Stroke       string   `json:"stroke,omitempty"`
	StrokeWidth  float64  `json:"strokeWidth,omitempty"`
	BorderRadius float64  `json:"borderRadius,omitempty"`
	Opacity      *float64 `json:"opacity,omitempty"`
}

// FontWeight accepts both CSS keywords ("bold") and numeric weights (700).
type FontWeight string

// Bold reports whether the weight renders as a bold face.
func (w FontWeight) Bold() bool {
	switch strings.ToLower(string(w)) {
	case "bold", "bolder":
		return true
	}
	n, err := strconv.Atoi(string(w))
	return err == nil && n >= 600
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *FontWeight) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*w = FontWeight(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("schema: fontWeight must be a string or number: %w", err)
	}
	*w = FontWeight(n.String())
	return nil
}

// LegacyDocument is the pre-versioning flat template shape. Its image
// elements point into the shared images/ directory of the store.
type LegacyDocument struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Premium     *bool     `json:"premium,omitempty"`
	Page        *PageSpec `json:"page,omitempty"`
	Elements    []Element `json:"elements,omitempty"`
}

var (
	schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	driveRe  = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// IsInline reports whether ref is an inline data payload.
func IsInline(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// IsAbsolute reports whether ref is an absolute filesystem path or a URL.
func IsAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) ||
		driveRe.MatchString(ref) || schemeRe.MatchString(ref)
}

// AssetName returns the file name of a reference under the current asset
// prefix, or "" when ref does not use that prefix.
func AssetName(ref string) string {
	if !strings.HasPrefix(ref, AssetPrefix) {
		return ""
	}
	return path.Base(ref)
}

// ImageRefs returns the src of every image element, in element order.
func (d *TemplateDefinition) ImageRefs() []string {
	var refs []string
	for _, e := range d.Elements {
		if e.Type == TypeImage && e.Src != "" {
			refs = append(refs, e.Src)
		}
	}
	return refs
}

// ID returns the template id or "" when the metadata is missing.
func (d *TemplateDefinition) ID() string {
	if d == nil || d.Meta == nil {
		return ""
	}
	return d.Meta.ID
}
