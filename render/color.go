package render

import (
	"regexp"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

var (
	black = Color{}
	white = Color{R: 255, G: 255, B: 255}
)

var namedColors = map[string]Color{
	"black":     black,
	"white":     white,
	"red":       {R: 255},
	"green":     {G: 128},
	"blue":      {B: 255},
	"gray":      {R: 128, G: 128, B: 128},
	"grey":      {R: 128, G: 128, B: 128},
	"lightgray": {R: 211, G: 211, B: 211},
	"lightgrey": {R: 211, G: 211, B: 211},
	"darkgray":  {R: 169, G: 169, B: 169},
	"silver":    {R: 192, G: 192, B: 192},
	"navy":      {B: 128},
	"orange":    {R: 255, G: 165},
	"yellow":    {R: 255, G: 255},
}

var rgbRe = regexp.MustCompile(`^rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*(?:,\s*[\d.]+\s*)?\)$`)

// ParseColor parses a CSS-like color: #rgb, #rrggbb, rgb(r, g, b) or one of
// a few common names. Empty, "none" and "transparent" yield nil, as does
// anything unparseable.
func ParseColor(s string) *Color {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "transparent":
		return nil
	}
	if c, ok := namedColors[s]; ok {
		return &c
	}
	if m := rgbRe.FindStringSubmatch(s); m != nil {
		var v [3]uint8
		for i := range v {
			n, _ := strconv.Atoi(m[i+1])
			v[i] = uint8(min(n, 255))
		}
		return &Color{R: v[0], G: v[1], B: v[2]}
	}
	if strings.HasPrefix(s, "#") {
		if c, err := colorful.Hex(s); err == nil {
			r, g, b := c.RGB255()
			return &Color{R: r, G: g, B: b}
		}
	}
	return nil
}

// colorOr returns the parsed color of s or def.
func colorOr(s string, def Color) Color {
	if c := ParseColor(s); c != nil {
		return *c
	}
	return def
}
