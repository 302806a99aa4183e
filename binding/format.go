package binding

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/lvillar/invtpl"
)

// DefaultDateLayout renders dates as day.month.year.
const DefaultDateLayout = "02.01.2006"

// Formatter turns resolved values into display strings. The binding path
// selects the shape: dates for date-like names, localized currency amounts
// for monetary names, plain numbers otherwise.
type Formatter struct {
	printer    *message.Printer
	unit       currency.Unit
	dateLayout string
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithDateLayout overrides DefaultDateLayout.
func WithDateLayout(layout string) FormatterOption {
	return func(f *Formatter) {
		f.dateLayout = layout
	}
}

// NewFormatter returns a formatter for the given locale and ISO 4217
// currency code.
func NewFormatter(tag language.Tag, currencyCode string, opts ...FormatterOption) (*Formatter, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("binding: %w: currency %q: %v", invtpl.ErrInvalidInput, currencyCode, err)
	}
	f := &Formatter{
		printer:    message.NewPrinter(tag),
		unit:       unit,
		dateLayout: DefaultDateLayout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// DefaultFormatter formats German style amounts in euros.
func DefaultFormatter() *Formatter {
	f, _ := NewFormatter(language.German, "EUR")
	return f
}

// Format shapes v for display. Nil formats as "".
func (f *Formatter) Format(v any, path string) string {
	if v == nil {
		return ""
	}
	switch {
	case isDatePath(path):
		if t, ok := toTime(v); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format(f.dateLayout)
		}
		return fmt.Sprint(v)
	case isMoneyPath(path):
		if n, ok := toFloat(v, true); ok {
			return f.Money(n)
		}
	}
	if n, ok := toFloat(v, false); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Money formats an amount with exactly two fraction digits followed by the
// currency code.
func (f *Formatter) Money(n float64) string {
	amount := f.printer.Sprint(number.Decimal(n, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	return amount + " " + f.unit.String()
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// isDatePath and isMoneyPath match anywhere in the path, so
// "invoice.totals.net" is monetary.
func isDatePath(path string) bool {
	seg := lastSegment(path)
	return strings.Contains(strings.ToLower(path), "date") || strings.HasSuffix(seg, "At") || seg == "dueOn"
}

func isMoneyPath(path string) bool {
	lower := strings.ToLower(path)
	for _, k := range []string{"total", "price", "amount"} {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", DefaultDateLayout}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// toFloat converts numeric values. Numeric strings are accepted only when
// parseStrings is set.
func toFloat(v any, parseStrings bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if parseStrings {
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			return f, err == nil
		}
	}
	return 0, false
}
