// Package store is a file-backed repository of invoice templates keyed by
// template id.
//
// Two on-disk shapes are recognized below the store root:
//
//	<root>/<id>/template.json   current format
//	<root>/<id>/assets/         per-template assets
//	<root>/<id>.json            legacy format
//	<root>/images/              shared images of legacy documents
//
// Legacy documents are migrated to the current format the first time they
// are read; the current format wins when both exist. A Store assumes it is
// the only writer of its directory.
package store

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/migrate"
	"github.com/lvillar/invtpl/schema"
)

const (
	// DefinitionFile is the name of the definition file inside a template
	// directory.
	DefinitionFile = "template.json"

	legacyExt = ".json"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidID reports whether id can be used as a template id. Ids must stay
// inside the store root and must not collide with the legacy image
// directory.
func ValidID(id string) bool {
	return idRe.MatchString(id) && id != asset.LegacyImageDirName && !strings.HasSuffix(id, legacyExt)
}

// Store is a template repository rooted at a directory.
type Store struct {
	root   string
	assets *asset.Manager
	log    logrus.FieldLogger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger of the store and its asset manager.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens the store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root: root,
		log:  logrus.StandardLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, invtpl.IOError("New", "", err)
	}
	s.assets = asset.NewManager(root, asset.WithLogger(s.log), asset.WithClock(s.now))
	return s, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Assets returns the asset manager of the store.
func (s *Store) Assets() *asset.Manager { return s.assets }

func (s *Store) definitionPath(id string) string {
	return filepath.Join(s.assets.TemplateDir(id), DefinitionFile)
}

func (s *Store) legacyPath(id string) string {
	return filepath.Join(s.root, id+legacyExt)
}

// Load returns the template with the given id. The current format is
// preferred; a legacy document is migrated and persisted first. When no
// template exists Load returns nil and no error.
func (s *Store) Load(id string) (*schema.TemplateDefinition, error) {
	if !ValidID(id) {
		return nil, invtpl.NewError("Load", id, fmt.Errorf("%w: invalid template id", invtpl.ErrInvalidInput))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *Store) load(id string) (*schema.TemplateDefinition, error) {
	def, err := s.readCurrent(id)
	if err != nil || def != nil {
		return def, err
	}
	return s.migrateTemplate(id)
}

// readCurrent reads the current-format definition of id. A definition file
// that still holds a legacy document is upgraded and rewritten in place.
func (s *Store) readCurrent(id string) (*schema.TemplateDefinition, error) {
	data, err := os.ReadFile(s.definitionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, invtpl.IOError("Load", id, err)
	}

	raw, err := schema.Decode(data)
	if err != nil {
		return nil, invtpl.NewError("Load", id, fmt.Errorf("%w: %v", invtpl.ErrInvalidTemplate, err))
	}
	if def, ok := raw.(*schema.TemplateDefinition); ok {
		return def, nil
	}

	s.log.WithField("template_id", id).Warn("Definition file holds a legacy document, upgrading")
	return s.persistUpgrade(id, raw)
}

// MigrateTemplate converts the legacy document of id to the current format,
// copying the images it references from the shared image directory into the
// template's assets. It returns nil and no error when no legacy document
// exists.
func (s *Store) MigrateTemplate(id string) (*schema.TemplateDefinition, error) {
	if !ValidID(id) {
		return nil, invtpl.NewError("MigrateTemplate", id, fmt.Errorf("%w: invalid template id", invtpl.ErrInvalidInput))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrateTemplate(id)
}

func (s *Store) migrateTemplate(id string) (*schema.TemplateDefinition, error) {
	data, err := os.ReadFile(s.legacyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, invtpl.IOError("MigrateTemplate", id, err)
	}

	raw, err := schema.Decode(data)
	if err != nil {
		return nil, invtpl.NewError("MigrateTemplate", id, fmt.Errorf("%w: %v", invtpl.ErrInvalidTemplate, err))
	}
	def, err := s.persistUpgrade(id, raw)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"template_id": id, "path": s.legacyPath(id)}).Info("Migrated legacy template")
	return def, nil
}

// persistUpgrade upgrades raw, stages the legacy images it references and
// saves the result under id.
func (s *Store) persistUpgrade(id string, raw schema.RawDocument) (*schema.TemplateDefinition, error) {
	def, rewrites, err := migrate.Upgrade(raw, s.now())
	if err != nil {
		return nil, invtpl.NewError("MigrateTemplate", id, err)
	}
	// The file name is the storage key.
	def.Meta.ID = id

	tx, err := s.assets.Begin(id)
	if err != nil {
		return nil, invtpl.IOError("MigrateTemplate", id, err)
	}
	defer tx.Rollback()

	log := s.log.WithField("template_id", id)
	for _, rw := range rewrites {
		if !rw.Legacy {
			continue
		}
		src := filepath.Join(s.root, filepath.FromSlash(rw.From))
		if err := tx.CopyFile(src, path.Base(rw.To)); err != nil {
			// Missing images render as empty regions; never fail the migration.
			log.WithError(err).WithFields(logrus.Fields{"element_id": rw.ElementID, "path": src}).
				Warn("Failed to copy legacy image")
		}
	}

	saved, err := s.save(def, saveConfig{lenient: true})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, invtpl.IOError("MigrateTemplate", id, err)
	}
	return saved, nil
}

// List returns every template in the store, sorted by id. Legacy documents
// without a current-format counterpart are migrated as a side effect.
// Documents that fail to decode or validate are logged and skipped; I/O
// failures are returned.
func (s *Store) List() ([]*schema.TemplateDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, invtpl.IOError("List", "", err)
	}

	seen := make(map[string]bool)
	var defs []*schema.TemplateDefinition
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		def, err := s.readCurrent(entry.Name())
		if errors.Is(err, invtpl.ErrIO) {
			return nil, err
		}
		if err != nil {
			s.log.WithError(err).WithField("template_id", entry.Name()).Warn("Failed to load template, skipping")
			continue
		}
		if def == nil {
			continue
		}
		seen[entry.Name()] = true
		defs = append(defs, def)
	}

	for _, entry := range entries {
		id, ok := strings.CutSuffix(entry.Name(), legacyExt)
		if entry.IsDir() || !ok || seen[id] || !ValidID(id) {
			continue
		}
		def, err := s.migrateTemplate(id)
		if errors.Is(err, invtpl.ErrIO) {
			return nil, err
		}
		if err != nil {
			s.log.WithError(err).WithField("template_id", id).Warn("Failed to migrate legacy template, skipping")
			continue
		}
		if def != nil {
			defs = append(defs, def)
		}
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Meta.ID < defs[j].Meta.ID })
	s.log.Infof("Listed %d templates", len(defs))
	return defs, nil
}

// Delete removes the template with the given id together with its assets.
// A legacy document of the same id is removed as well. It reports whether
// anything was deleted.
func (s *Store) Delete(id string) (bool, error) {
	if !ValidID(id) {
		return false, invtpl.NewError("Delete", id, fmt.Errorf("%w: invalid template id", invtpl.ErrInvalidInput))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.WithField("template_id", id)
	deleted := false

	dir := s.assets.TemplateDir(id)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		// An empty reference set makes every asset an orphan.
		s.assets.CleanupOrphans(&schema.TemplateDefinition{Meta: &schema.TemplateMeta{ID: id}})
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Error("Failed to remove template directory")
			return false, invtpl.IOError("Delete", id, err)
		}
		deleted = true
	}

	if err := os.Remove(s.legacyPath(id)); err == nil {
		deleted = true
	} else if !os.IsNotExist(err) {
		log.WithError(err).Error("Failed to remove legacy template")
		return deleted, invtpl.IOError("Delete", id, err)
	}

	if deleted {
		log.Info("Template deleted")
	} else {
		log.Warn("Template not found for deletion")
	}
	return deleted, nil
}

// exists reports whether a template of either format is stored under id.
func (s *Store) exists(id string) bool {
	for _, p := range []string{s.definitionPath(id), s.legacyPath(id)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Duplicate copies the template id to newID with the given name, fresh
// timestamps and a copy of its assets. An empty newID is replaced by a
// generated one; an empty newName derives from the source name. An existing
// newID is rejected with invtpl.ErrInvalidInput. It returns nil and no error
// when the source does not exist.
func (s *Store) Duplicate(id, newID, newName string) (*schema.TemplateDefinition, error) {
	if newID == "" {
		newID = strings.ToLower(ulid.Make().String())
	}
	if !ValidID(id) || !ValidID(newID) {
		return nil, invtpl.NewError("Duplicate", id, fmt.Errorf("%w: invalid template id", invtpl.ErrInvalidInput))
	}
	if id == newID {
		return nil, invtpl.NewError("Duplicate", id, fmt.Errorf("%w: duplicate id equals source id", invtpl.ErrInvalidInput))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.load(id)
	if err != nil || src == nil {
		return nil, err
	}
	if s.exists(newID) {
		return nil, invtpl.NewError("Duplicate", newID, fmt.Errorf("%w: template already exists", invtpl.ErrInvalidInput))
	}

	dup := src.Clone()
	now := s.now()
	dup.Meta.ID = newID
	dup.Meta.Name = newName
	if newName == "" {
		dup.Meta.Name = src.Meta.Name + " (copy)"
	}
	dup.Meta.CreatedAt = now
	dup.Meta.UpdatedAt = now

	tx, err := s.assets.Begin(newID)
	if err != nil {
		return nil, invtpl.IOError("Duplicate", newID, err)
	}
	defer tx.Rollback()
	if err := tx.CopyTree(s.assets.AssetDir(id)); err != nil {
		return nil, invtpl.IOError("Duplicate", newID, err)
	}

	saved, err := s.save(dup, saveConfig{lenient: true})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, invtpl.IOError("Duplicate", newID, err)
	}

	s.log.WithFields(logrus.Fields{"template_id": newID, "source_id": id}).Info("Template duplicated")
	return saved, nil
}

// IsNotFound reports whether err means that a template or asset is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, invtpl.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
