package store

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/migrate"
	"github.com/lvillar/invtpl/schema"
)

// SaveOption configures a single Save call.
type SaveOption func(*saveConfig)

type saveConfig struct {
	defaultAuthor string
	// lenient skips element validation; used when persisting documents the
	// store produced itself.
	lenient bool
}

// WithDefaultAuthor fills meta.author when neither the incoming nor the
// stored template has one.
func WithDefaultAuthor(author string) SaveOption {
	return func(c *saveConfig) {
		c.defaultAuthor = author
	}
}

// Save persists a template. Legacy documents are upgraded first. Metadata
// fields the incoming template leaves empty keep their stored values, except
// id, name and updatedAt. Version defaults to "1.0.0", createdAt is set
// only when absent and updatedAt is always stamped. The definition file is
// replaced atomically. The saved definition is returned; doc is not
// modified.
func (s *Store) Save(doc schema.RawDocument, opts ...SaveOption) (*schema.TemplateDefinition, error) {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	def, _, err := migrate.Upgrade(doc, s.now())
	if err != nil {
		return nil, invtpl.NewError("Save", "", fmt.Errorf("%w: %v", invtpl.ErrInvalidTemplate, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(def, cfg)
}

func (s *Store) save(in *schema.TemplateDefinition, cfg saveConfig) (*schema.TemplateDefinition, error) {
	if in.Meta == nil {
		return nil, invtpl.NewError("Save", "", fmt.Errorf("%w: meta is required", invtpl.ErrInvalidTemplate))
	}
	def := in.Clone()
	id := def.Meta.ID
	if !ValidID(id) {
		return nil, invtpl.NewError("Save", id, fmt.Errorf("%w: invalid template id %q", invtpl.ErrInvalidTemplate, id))
	}
	def.SchemaVersion = schema.CurrentVersion
	if def.Elements == nil {
		def.Elements = []schema.Element{}
	}

	if existing := s.peek(id); existing != nil {
		mergeMeta(def.Meta, existing.Meta)
	}
	if def.Meta.Version == "" {
		def.Meta.Version = migrate.DefaultVersion
	}
	if def.Meta.Author == "" {
		def.Meta.Author = cfg.defaultAuthor
	}

	now := s.now()
	def.Meta.UpdatedAt = now
	if def.Meta.CreatedAt.IsZero() || def.Meta.CreatedAt.After(now) {
		def.Meta.CreatedAt = now
	}

	if err := s.validate(def, cfg); err != nil {
		return nil, invtpl.NewError("Save", id, err)
	}

	data, err := schema.Encode(def)
	if err != nil {
		return nil, invtpl.NewError("Save", id, fmt.Errorf("%w: %v", invtpl.ErrInvalidTemplate, err))
	}
	if err := os.MkdirAll(s.assets.AssetDir(id), 0o755); err != nil {
		return nil, invtpl.IOError("Save", id, err)
	}
	if err := asset.WriteFileAtomic(s.definitionPath(id), data, 0o644); err != nil {
		s.log.WithError(err).WithField("template_id", id).Error("Failed to write template")
		return nil, invtpl.IOError("Save", id, err)
	}

	s.log.WithFields(logrus.Fields{
		"template_id": id,
		"elements":    len(def.Elements),
	}).Info("Template saved")
	return def, nil
}

func (s *Store) validate(def *schema.TemplateDefinition, cfg saveConfig) error {
	if !cfg.lenient {
		return schema.Validate(def)
	}
	if def.Meta.Name == "" {
		def.Meta.Name = migrate.DefaultName
	}
	return nil
}

// peek returns the stored template of id without migrating or writing
// anything. Unreadable documents are treated as absent.
func (s *Store) peek(id string) *schema.TemplateDefinition {
	for _, p := range []string{s.definitionPath(id), s.legacyPath(id)} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		raw, err := schema.Decode(data)
		if err != nil {
			s.log.WithError(err).WithField("path", p).Warn("Ignoring unreadable stored template")
			continue
		}
		def, _, err := migrate.Upgrade(raw, s.now())
		if err == nil {
			return def
		}
	}
	return nil
}

// mergeMeta fills the empty fields of dst from stored. Id, name and
// updatedAt always come from dst.
func mergeMeta(dst, stored *schema.TemplateMeta) {
	if stored == nil {
		return
	}
	str := func(d *string, v string) {
		if *d == "" {
			*d = v
		}
	}
	str(&dst.Description, stored.Description)
	str(&dst.Author, stored.Author)
	str(&dst.AuthorURL, stored.AuthorURL)
	str(&dst.License, stored.License)
	str(&dst.Version, stored.Version)
	str(&dst.MinAppVersion, stored.MinAppVersion)
	str(&dst.Preview, stored.Preview)
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = stored.CreatedAt
	}
	if dst.Tags == nil && stored.Tags != nil {
		dst.Tags = append([]string(nil), stored.Tags...)
	}
	if dst.Premium == nil && stored.Premium != nil {
		p := *stored.Premium
		dst.Premium = &p
	}
}
