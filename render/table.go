package render

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/invtpl/binding"
	"github.com/lvillar/invtpl/schema"
)

// Table layout defaults.
const (
	DefaultRowHeight = 20.0
	cellPadding      = 4.0
)

var (
	defaultHeaderFill = Color{R: 240, G: 240, B: 240}
	defaultAltFill    = Color{R: 249, G: 249, B: 249}
	gridColor         = Color{R: 204, G: 204, B: 204}
)

// table lays out a data-bound table. Rows that would cross the bottom
// margin continue at the top margin of the next page, below a repeated
// header.
func (r *run) table(el *schema.Element) {
	rows := binding.List(binding.Resolve(el.Binding, r.ctx))
	if el.MaxRows > 0 && len(rows) > el.MaxRows {
		r.log.WithFields(logrus.Fields{
			"element_id": el.ID,
			"rows":       len(rows),
			"max_rows":   el.MaxRows,
		}).Debug("Truncating table rows")
		rows = rows[:el.MaxRows]
	}

	widths := columnWidths(el.Columns, el.Width)
	ts := r.textStyle(el.Style)
	headerStyle := ts
	headerStyle.font.Bold = true

	minH := el.RowHeight
	if minH <= 0 {
		minH = DefaultRowHeight
	}

	headers := make([]string, len(el.Columns))
	for i, c := range el.Columns {
		headers[i] = c.Header
	}
	headerFill := defaultHeaderFill
	if c := ParseColor(el.HeaderColor); c != nil {
		headerFill = *c
	}
	rowFill := ParseColor(el.RowColor)

	page, y := 0, el.Y
	drawHeader := func() {
		h := r.rowHeight(headers, widths, headerStyle, minH)
		r.row(el, page, y, h, widths, headers, headerStyle, RoleTableHeader, &headerFill)
		y += h
	}
	drawHeader()

	onPage := 0
	for i, row := range rows {
		cells := make([]string, len(el.Columns))
		for j, c := range el.Columns {
			cells[j] = r.e.formatter.Format(binding.Field(row, c.Field), c.Field)
		}
		h := r.rowHeight(cells, widths, ts, minH)

		p := r.page(page)
		if onPage > 0 && y+h > p.Height-p.Margin.Bottom {
			page++
			y = r.page(page).Margin.Top
			onPage = 0
			drawHeader()
		}

		fill := rowFill
		if fill == nil && i%2 == 1 {
			alt := defaultAltFill
			fill = &alt
		}
		r.row(el, page, y, h, widths, cells, ts, RoleTableRow, fill)
		y += h
		onPage++
	}
}

// row emits the background of a row followed by one text op per cell.
func (r *run) row(el *schema.Element, page int, y, h float64, widths []float64, cells []string, ts textStyle, role Role, fill *Color) {
	grid := gridColor
	r.emit(page, RectOp{
		Origin:      Origin{ElementID: el.ID, Role: role},
		Box:         Box{X: el.X, Y: y, W: sum(widths), H: h},
		Fill:        fill,
		Stroke:      &grid,
		StrokeWidth: 0.5,
		Opacity:     ts.opacity,
	})

	x := el.X
	for i, text := range cells {
		cs := ts
		cs.align = columnAlign(el.Columns[i].Align)
		box := Box{X: x + cellPadding, Y: y + cellPadding, W: max(widths[i]-2*cellPadding, 1), H: h - 2*cellPadding}
		r.emit(page, r.textOp(el, RoleTableCell, box, text, cs))
		x += widths[i]
	}
}

// rowHeight is the larger of minH and the height of the tallest wrapped
// cell plus padding.
func (r *run) rowHeight(cells []string, widths []float64, ts textStyle, minH float64) float64 {
	h := minH
	for i, text := range cells {
		contentW := max(widths[i]-2*cellPadding, 1)
		lines := r.e.measurer.SplitLines(r.transform(text, ts.transform), ts.font, contentW)
		cellH := float64(len(lines))*ts.font.Size*ts.lineHeight + 2*cellPadding
		if cellH > h {
			h = cellH
		}
	}
	return h
}

// columnWidths gives fixed-width columns their width and shares the rest of
// total among the others.
func columnWidths(cols []schema.TableColumn, total float64) []float64 {
	widths := make([]float64, len(cols))
	fixed, auto := 0.0, 0
	for i, c := range cols {
		if c.Width > 0 {
			widths[i] = c.Width
			fixed += c.Width
		} else {
			auto++
		}
	}
	if auto > 0 {
		share := max(total-fixed, 0) / float64(auto)
		for i, c := range cols {
			if c.Width <= 0 {
				widths[i] = share
			}
		}
	}
	return widths
}

func columnAlign(a string) Align {
	switch Align(strings.ToLower(a)) {
	case AlignCenter:
		return AlignCenter
	case AlignRight:
		return AlignRight
	}
	return AlignLeft
}

func sum(v []float64) float64 {
	t := 0.0
	for _, x := range v {
		t += x
	}
	return t
}
