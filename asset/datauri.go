package asset

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/lvillar/invtpl"
)

// DataURI is a decoded inline payload of the form
// data:[<media type>][;base64],<data>.
type DataURI struct {
	MediaType string // lower-cased, without parameters; may be empty
	Data      []byte
}

// ParseDataURI decodes an inline payload. Malformed payloads return an
// error wrapping invtpl.ErrInvalidAsset.
func ParseDataURI(s string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URI", invtpl.ErrInvalidAsset)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI has no payload separator", invtpl.ErrInvalidAsset)
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header, isBase64 = h, true
	}

	uri := &DataURI{}
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil {
			uri.MediaType = strings.ToLower(mediaType)
		}
	}

	var err error
	if isBase64 {
		uri.Data, err = decodeBase64(payload)
	} else {
		var text string
		text, err = url.PathUnescape(payload)
		uri.Data = []byte(text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invtpl.ErrInvalidAsset, err)
	}
	if len(uri.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data URI payload", invtpl.ErrInvalidAsset)
	}
	return uri, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Extension returns the file extension derived from the declared media
// subtype, defaulting to "png".
func (u *DataURI) Extension() string {
	_, sub, ok := strings.Cut(u.MediaType, "/")
	if !ok || sub == "" {
		return "png"
	}
	switch sub {
	case "jpeg", "pjpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	case "x-icon", "vnd.microsoft.icon":
		return "ico"
	}
	for _, r := range sub {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return "png"
		}
	}
	return sub
}

// String encodes u as a base64 data URI.
func (u *DataURI) String() string {
	return "data:" + u.MediaType + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}
