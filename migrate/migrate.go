// Package migrate upgrades legacy flat template documents to the current
// schema.
//
// Upgrade is pure: it rewrites image references into the per-template asset
// convention but never touches the filesystem. The returned Rewrite list
// tells the caller which legacy image files have to be copied alongside.
package migrate

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/schema"
)

// Defaults applied to synthesized metadata.
const (
	DefaultID      = "unknown"
	DefaultName    = "Unnamed Template"
	DefaultVersion = "1.0.0"
)

// Rewrite records one image reference changed by Upgrade.
type Rewrite struct {
	ElementID string
	From      string // original src
	To        string // rewritten src, always under schema.AssetPrefix

	// Legacy is true when From pointed into the shared legacy image
	// directory, i.e. the file exists outside the template and must be
	// copied into its assets.
	Legacy bool
}

// Upgrade converts doc to the current schema. A document that is already
// current is returned unchanged with no rewrites. now stamps createdAt and
// updatedAt of synthesized metadata.
func Upgrade(doc schema.RawDocument, now time.Time) (*schema.TemplateDefinition, []Rewrite, error) {
	switch d := doc.(type) {
	case *schema.TemplateDefinition:
		if d == nil {
			break
		}
		return d, nil, nil
	case *schema.LegacyDocument:
		if d == nil {
			break
		}
		def, rewrites := upgradeLegacy(d, now)
		return def, rewrites, nil
	}
	return nil, nil, fmt.Errorf("migrate: %w: no document", invtpl.ErrInvalidInput)
}

func upgradeLegacy(legacy *schema.LegacyDocument, now time.Time) (*schema.TemplateDefinition, []Rewrite) {
	premium := legacy.Premium != nil && *legacy.Premium
	meta := &schema.TemplateMeta{
		ID:          orDefault(legacy.ID, DefaultID),
		Name:        orDefault(legacy.Name, DefaultName),
		Description: legacy.Description,
		Version:     DefaultVersion,
		Premium:     &premium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	page := schema.DefaultPage()
	if legacy.Page != nil {
		page = *legacy.Page
	}

	elements := make([]schema.Element, 0, len(legacy.Elements))
	var rewrites []Rewrite
	for _, e := range legacy.Elements {
		e = e.Clone()
		if e.Type == schema.TypeImage {
			if to, isLegacy, ok := RewriteSrc(e.Src); ok {
				rewrites = append(rewrites, Rewrite{ElementID: e.ID, From: e.Src, To: to, Legacy: isLegacy})
				e.Src = to
			}
		}
		elements = append(elements, e)
	}

	def := &schema.TemplateDefinition{
		SchemaVersion: schema.CurrentVersion,
		Meta:          meta,
		Page:          page.Clone(),
		Elements:      elements,
	}
	return def, rewrites
}

// RewriteSrc maps a legacy image reference to the current asset convention.
// Legacy-prefixed and other relative paths keep only their file name under
// the asset prefix. Inline payloads, absolute paths and paths already under
// the asset prefix are left alone (ok=false).
func RewriteSrc(src string) (to string, legacy, ok bool) {
	if src == "" || schema.IsInline(src) || schema.IsAbsolute(src) || strings.HasPrefix(src, schema.AssetPrefix) {
		return "", false, false
	}
	base := path.Base(strings.ReplaceAll(src, `\`, "/"))
	if base == "." || base == "/" {
		return "", false, false
	}
	return schema.AssetPrefix + base, strings.HasPrefix(src, schema.LegacyAssetPrefix), true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
