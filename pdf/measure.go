package pdf

import (
	"sync"

	"github.com/jung-kurt/gofpdf"

	"github.com/lvillar/invtpl/render"
)

// Measurer wraps text with the metrics of the PDF core fonts, matching what
// Paint draws. It is safe for concurrent use.
type Measurer struct {
	mu  sync.Mutex
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

// NewMeasurer returns a Measurer for use with render.WithMeasurer.
func NewMeasurer() *Measurer {
	pdf := gofpdf.New("P", "pt", "A4", "")
	return &Measurer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// Width returns the advance width of s in points.
func (m *Measurer) Width(s string, f render.Font) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setFont(f)
	return m.pdf.GetStringWidth(m.tr(s))
}

// SplitLines implements render.Measurer.
func (m *Measurer) SplitLines(text string, f render.Font, width float64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setFont(f)
	return render.Wrap(text, width, func(s string) float64 {
		return m.pdf.GetStringWidth(m.tr(s))
	})
}

func (m *Measurer) setFont(f render.Font) {
	family, style := coreFont(f)
	size := f.Size
	if size <= 0 {
		size = render.DefaultFontSize
	}
	m.pdf.SetFont(family, style, size)
}
