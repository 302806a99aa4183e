package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// RawDocument is a decoded definition file: either a *LegacyDocument or a
// *TemplateDefinition. The variant is decided once, by Decode.
type RawDocument interface {
	rawDocument()
}

func (*LegacyDocument) rawDocument()     {}
func (*TemplateDefinition) rawDocument() {}

// IsLegacy reports whether doc is a legacy document.
func IsLegacy(doc RawDocument) bool {
	_, ok := doc.(*LegacyDocument)
	return ok
}

// Decode strips JSONC comments and trailing commas from data and decodes it.
// A document carrying neither a schema version nor a meta block is legacy;
// anything else decodes as a TemplateDefinition.
func Decode(data []byte) (RawDocument, error) {
	stripped := jsonc.ToJSON(data)

	var probe struct {
		SchemaVersion int             `json:"schemaVersion"`
		Meta          json.RawMessage `json:"meta"`
	}
	if err := json.Unmarshal(stripped, &probe); err != nil {
		return nil, fmt.Errorf("schema: parsing document: %w", err)
	}

	hasMeta := len(probe.Meta) > 0 && !bytes.Equal(probe.Meta, []byte("null"))
	if probe.SchemaVersion == 0 && !hasMeta {
		var legacy LegacyDocument
		if err := json.Unmarshal(stripped, &legacy); err != nil {
			return nil, fmt.Errorf("schema: parsing legacy document: %w", err)
		}
		return &legacy, nil
	}

	var def TemplateDefinition
	if err := json.Unmarshal(stripped, &def); err != nil {
		return nil, fmt.Errorf("schema: parsing template: %w", err)
	}
	return &def, nil
}

// Encode returns the pretty-printed JSON form of def, newline terminated.
func Encode(def *TemplateDefinition) ([]byte, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("schema: encoding template: %w", err)
	}
	return append(data, '\n'), nil
}
