package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Measurer wraps text into lines that fit a width. The pdf package provides
// one backed by the PDF core-font metrics.
type Measurer interface {
	SplitLines(text string, f Font, width float64) []string
}

// MeasureFunc returns the advance width of s in points.
type MeasureFunc func(s string) float64

// basicMeasurer approximates text width with the fixed 7x13 bitmap face,
// scaled to the requested size.
type basicMeasurer struct{}

func (basicMeasurer) SplitLines(text string, f Font, width float64) []string {
	scale := f.Size / float64(basicfont.Face7x13.Height)
	return Wrap(text, width, func(s string) float64 {
		return float64(font.MeasureString(basicfont.Face7x13, s).Round()) * scale
	})
}

// Wrap breaks text into lines no wider than width. Explicit newlines are
// kept, words are never split unless a single word is wider than width.
func Wrap(text string, width float64, measure MeasureFunc) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(para, width, measure)...)
	}
	return lines
}

func wrapParagraph(para string, width float64, measure MeasureFunc) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := ""
	for _, w := range words {
		candidate := w
		if line != "" {
			candidate = line + " " + w
		}
		if measure(candidate) <= width || width <= 0 {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		line = w
		for measure(line) > width && utf8.RuneCountInString(line) > 1 {
			head, tail := breakWord(line, width, measure)
			lines = append(lines, head)
			line = tail
		}
	}
	return append(lines, line)
}

// breakWord splits a word at the last rune that still fits, keeping at least
// one rune on the first line.
func breakWord(word string, width float64, measure MeasureFunc) (string, string) {
	cut := 0
	for i := range word {
		if i > 0 && measure(word[:i]) > width {
			break
		}
		cut = i
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(word)
		cut = size
	}
	return word[:cut], word[cut:]
}
