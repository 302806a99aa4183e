// Package asset manages the binary files owned by a template.
//
// Every template directory carries an assets/ subdirectory. Image elements
// reference files there as "assets/<name>". Older documents may still point
// into the store-wide images/ directory; those references resolve against
// the store root until the template is migrated.
package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/schema"
)

// Directory names inside the store.
const (
	AssetDirName       = "assets"
	LegacyImageDirName = "images"
)

// Manager manages per-template assets below a store root.
type Manager struct {
	root string
	log  logrus.FieldLogger
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for best-effort operations.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithClock sets the time source used to name ingested files.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager for the store rooted at root.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root: root,
		log:  logrus.StandardLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the store root directory.
func (m *Manager) Root() string { return m.root }

// TemplateDir returns the directory of the template.
func (m *Manager) TemplateDir(templateID string) string {
	return filepath.Join(m.root, templateID)
}

// AssetDir returns the assets directory of the template.
func (m *Manager) AssetDir(templateID string) string {
	return filepath.Join(m.root, templateID, AssetDirName)
}

// LegacyImageDir returns the shared image directory of the legacy format.
func (m *Manager) LegacyImageDir() string {
	return filepath.Join(m.root, LegacyImageDirName)
}

// IngestImage stores an inline image payload as a file in the template's
// assets directory and returns its reference relative to the template root
// ("assets/<file>"). A payload that is not inline is returned unchanged.
func (m *Manager) IngestImage(templateID, elementID, payload string) (string, error) {
	if !schema.IsInline(payload) {
		return payload, nil
	}

	uri, err := ParseDataURI(payload)
	if err != nil {
		return "", invtpl.NewError("IngestImage", templateID, err)
	}

	log := m.log.WithFields(logrus.Fields{"template_id": templateID, "element_id": elementID})
	if sniffed := Sniff(uri.Data); uri.MediaType != "" && !strings.HasPrefix(sniffed, uri.MediaType) {
		log.WithFields(logrus.Fields{"declared": uri.MediaType, "detected": sniffed}).
			Warn("Inline image content does not match its declared media type")
	}

	dir := m.AssetDir(templateID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", invtpl.IOError("IngestImage", templateID, err)
	}

	base := fmt.Sprintf("%s_%d", safeName(elementID), m.now().UnixMilli())
	ext := uri.Extension()
	name := base + "." + ext
	for i := 1; fileExists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s-%d.%s", base, i, ext)
	}

	if err := WriteFileAtomic(filepath.Join(dir, name), uri.Data, 0o644); err != nil {
		return "", invtpl.IOError("IngestImage", templateID, err)
	}

	log.WithFields(logrus.Fields{"asset": name, "bytes": len(uri.Data)}).Info("Image ingested")
	return schema.AssetPrefix + name, nil
}

// ResolvePath turns an asset reference into a readable location. Absolute
// paths, URLs and inline payloads pass through. References under the asset
// prefix, and other relative paths, resolve against the template directory;
// legacy image references resolve against the store root. A relative
// reference that would escape the store root resolves to "".
func (m *Manager) ResolvePath(templateID, ref string) string {
	if ref == "" || schema.IsInline(ref) || schema.IsAbsolute(ref) {
		return ref
	}

	var resolved string
	if strings.HasPrefix(ref, schema.LegacyAssetPrefix) {
		resolved = filepath.Join(m.root, filepath.FromSlash(ref))
	} else {
		resolved = filepath.Join(m.TemplateDir(templateID), filepath.FromSlash(ref))
	}

	rel, err := filepath.Rel(m.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return resolved
}

// CleanupOrphans deletes every file in the template's assets directory that
// the definition does not reference. References are image sources, the
// preview image and the letterhead, when they use the asset prefix.
// Failures are logged and skipped. It returns the names of removed files.
func (m *Manager) CleanupOrphans(def *schema.TemplateDefinition) []string {
	templateID := def.ID()
	dir := m.AssetDir(templateID)
	log := m.log.WithFields(logrus.Fields{"template_id": templateID, "path": dir})

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to read assets directory, skipping cleanup")
		}
		return nil
	}

	keep := referencedAssets(def)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || keep[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			log.WithError(err).WithField("asset", entry.Name()).Warn("Failed to remove orphan asset")
			continue
		}
		removed = append(removed, entry.Name())
	}

	if len(removed) > 0 {
		log.WithField("removed", len(removed)).Info("Removed orphan assets")
	}
	return removed
}

func referencedAssets(def *schema.TemplateDefinition) map[string]bool {
	keep := make(map[string]bool)
	add := func(ref string) {
		if name := schema.AssetName(ref); name != "" {
			keep[name] = true
		}
	}
	for _, ref := range def.ImageRefs() {
		add(ref)
	}
	if def.Meta != nil {
		add(def.Meta.Preview)
	}
	add(def.Page.Letterhead)
	return keep
}

// safeName reduces s to characters that are safe inside a file name.
func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
