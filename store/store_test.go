package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/schema"
)

// tickingClock returns a clock that advances one minute per call.
func tickingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := New(t.TempDir(), WithLogger(logger), WithClock(tickingClock()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sample(id string) *schema.TemplateDefinition {
	return &schema.TemplateDefinition{
		SchemaVersion: schema.CurrentVersion,
		Meta:          &schema.TemplateMeta{ID: id, Name: "Classic"},
		Page:          schema.DefaultPage(),
		Elements: []schema.Element{
			{ID: "title", Type: schema.TypeText, X: 40, Y: 40, Width: 200, Height: 20, Content: "INVOICE"},
			{ID: "total", Type: schema.TypeField, X: 400, Y: 700, Width: 120, Height: 20, Binding: "invoice.total"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.Save(sample("classic"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Meta.Version != "1.0.0" {
		t.Fatalf("version = %q, want default 1.0.0", saved.Meta.Version)
	}
	if saved.Meta.CreatedAt.IsZero() || saved.Meta.UpdatedAt.Before(saved.Meta.CreatedAt) {
		t.Fatalf("bad timestamps: %v / %v", saved.Meta.CreatedAt, saved.Meta.UpdatedAt)
	}

	loaded, err := s.Load("classic")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || len(loaded.Elements) != 2 || loaded.Elements[1].Binding != "invoice.total" {
		t.Fatalf("loaded = %+v", loaded)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "classic", "assets")); err != nil {
		t.Fatal("Save should create the assets directory")
	}
}

func TestSaveLoadSaveIsStable(t *testing.T) {
	s := newTestStore(t)
	def := sample("classic")
	def.Meta.Author = "Acme Ltd"
	def.Meta.Tags = []string{"standard"}
	if _, err := s.Save(def); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := s.Load("classic")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := s.Save(first.Clone()); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, err := s.Load("classic")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !second.Meta.UpdatedAt.After(first.Meta.UpdatedAt) {
		t.Fatalf("updatedAt not advanced: %v -> %v", first.Meta.UpdatedAt, second.Meta.UpdatedAt)
	}
	first.Meta.UpdatedAt = time.Time{}
	second.Meta.UpdatedAt = time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("definition changed across save/load:\n%+v\n%+v", first, second)
	}
}

func TestSavePreservesMetadata(t *testing.T) {
	s := newTestStore(t)
	first := sample("classic")
	first.Meta.Author = "Acme Ltd"
	first.Meta.Description = "Two column layout"
	first.Meta.Tags = []string{"standard"}
	orig, err := s.Save(first)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	update := sample("classic")
	update.Meta.Name = "Classic v2"
	saved, err := s.Save(update)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if saved.Meta.Author != "Acme Ltd" || saved.Meta.Description != "Two column layout" {
		t.Fatalf("stored metadata lost: %+v", saved.Meta)
	}
	if len(saved.Meta.Tags) != 1 || saved.Meta.Tags[0] != "standard" {
		t.Fatalf("tags = %v", saved.Meta.Tags)
	}
	if saved.Meta.Name != "Classic v2" {
		t.Fatalf("name = %q", saved.Meta.Name)
	}
	if !saved.Meta.CreatedAt.Equal(orig.Meta.CreatedAt) {
		t.Fatalf("createdAt changed: %v -> %v", orig.Meta.CreatedAt, saved.Meta.CreatedAt)
	}
	if !saved.Meta.UpdatedAt.After(orig.Meta.UpdatedAt) {
		t.Fatalf("updatedAt not advanced: %v -> %v", orig.Meta.UpdatedAt, saved.Meta.UpdatedAt)
	}
}

func TestSaveDefaultAuthor(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.Save(sample("a"), WithDefaultAuthor("Back office"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Meta.Author != "Back office" {
		t.Fatalf("author = %q", saved.Meta.Author)
	}
}

func TestSaveDoesNotMutateInput(t *testing.T) {
	s := newTestStore(t)
	def := sample("classic")
	if _, err := s.Save(def); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if def.Meta.Version != "" || !def.Meta.UpdatedAt.IsZero() {
		t.Fatalf("input modified: %+v", def.Meta)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	bad := sample("../escape")
	if _, err := s.Save(bad); !errors.Is(err, invtpl.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for bad id, got %v", err)
	}

	dup := sample("dup")
	dup.Elements[1].ID = "title"
	if _, err := s.Save(dup); !errors.Is(err, invtpl.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for duplicate element ids, got %v", err)
	}

	if _, err := s.Save(nil); !errors.Is(err, invtpl.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate for nil document, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)
	def, err := s.Load("nope")
	if err != nil || def != nil {
		t.Fatalf("Load = %v, %v; want nil, nil", def, err)
	}
}

const legacyDoc = `{
  "id": "old",
  "name": "Old invoice",
  "premium": true,
  "elements": [
    {"id": "logo", "type": "image", "x": 10, "y": 10, "width": 80, "height": 40, "src": "images/logo.png"},
    {"id": "stamp", "type": "image", "x": 10, "y": 60, "width": 80, "height": 40, "src": "images/missing.png"}
  ]
}`

func TestLoadMigratesLegacy(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.Root(), "old.json"), legacyDoc)
	writeFile(t, filepath.Join(s.Root(), "images", "logo.png"), "png-bytes")

	def, err := s.Load("old")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if def == nil || def.Meta.ID != "old" || def.Meta.Name != "Old invoice" || !def.Meta.IsPremium() {
		t.Fatalf("migrated meta = %+v", def.Meta)
	}
	if def.Elements[0].Src != "assets/logo.png" {
		t.Fatalf("src = %q", def.Elements[0].Src)
	}

	copied, err := os.ReadFile(filepath.Join(s.Root(), "old", "assets", "logo.png"))
	if err != nil || string(copied) != "png-bytes" {
		t.Fatalf("legacy image not copied: %q, %v", copied, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "old", DefinitionFile)); err != nil {
		t.Fatal("migration should persist the current format")
	}

	// The second load reads the current format.
	again, err := s.Load("old")
	if err != nil || !again.Meta.CreatedAt.Equal(def.Meta.CreatedAt) {
		t.Fatalf("second Load = %+v, %v", again, err)
	}
}

func TestLoadUpgradesLegacyShapedDefinitionFile(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.Root(), "odd", DefinitionFile), `{"id": "odd", "elements": []}`)

	def, err := s.Load("odd")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if def.SchemaVersion != schema.CurrentVersion || def.Meta.Name != "Unnamed Template" {
		t.Fatalf("def = %+v", def.Meta)
	}
	data, _ := os.ReadFile(filepath.Join(s.Root(), "odd", DefinitionFile))
	raw, err := schema.Decode(data)
	if err != nil || schema.IsLegacy(raw) {
		t.Fatal("definition file was not rewritten in the current format")
	}
}

func TestMigrateTemplateMissing(t *testing.T) {
	s := newTestStore(t)
	def, err := s.MigrateTemplate("absent")
	if err != nil || def != nil {
		t.Fatalf("MigrateTemplate = %v, %v", def, err)
	}
}

func TestListCurrentWins(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(sample("both")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(sample("alpha")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(s.Root(), "both.json"), `{"id": "both", "name": "Stale", "elements": []}`)
	writeFile(t, filepath.Join(s.Root(), "legacy.json"), `{"id": "legacy", "name": "Legacy", "elements": []}`)
	writeFile(t, filepath.Join(s.Root(), "broken", DefinitionFile), `{not json`)

	defs, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, d := range defs {
		ids = append(ids, d.Meta.ID)
	}
	if len(ids) != 3 || ids[0] != "alpha" || ids[1] != "both" || ids[2] != "legacy" {
		t.Fatalf("ids = %v", ids)
	}
	if defs[1].Meta.Name != "Classic" {
		t.Fatalf("current format did not win: %q", defs[1].Meta.Name)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "legacy", DefinitionFile)); err != nil {
		t.Fatal("List should migrate legacy-only templates")
	}
}

func TestListReturnsIOErrors(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(sample("alpha")); err != nil {
		t.Fatal(err)
	}
	// A directory where the definition file belongs cannot be read.
	if err := os.MkdirAll(filepath.Join(s.Root(), "beta", DefinitionFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(); !errors.Is(err, invtpl.ErrIO) {
		t.Fatalf("List error = %v, want ErrIO", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(sample("gone")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(s.Root(), "gone", "assets", "a.png"), "x")

	ok, err := s.Delete("gone")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "gone")); !os.IsNotExist(err) {
		t.Fatal("template directory still present")
	}

	ok, err = s.Delete("gone")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v", ok, err)
	}
}

func TestDeleteLegacyOnly(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.Root(), "old.json"), legacyDoc)
	ok, err := s.Delete("old")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "old.json")); !os.IsNotExist(err) {
		t.Fatal("legacy file still present")
	}
}

func TestDuplicate(t *testing.T) {
	s := newTestStore(t)
	src := sample("classic")
	src.Elements = append(src.Elements, schema.Element{ID: "logo", Type: schema.TypeImage, Width: 50, Height: 50, Src: "assets/logo.png"})
	orig, err := s.Save(src)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(s.Root(), "classic", "assets", "logo.png"), "logo")

	dup, err := s.Duplicate("classic", "classic-2", "Classic copy")
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	if dup.Meta.ID != "classic-2" || dup.Meta.Name != "Classic copy" {
		t.Fatalf("dup meta = %+v", dup.Meta)
	}
	if !dup.Meta.CreatedAt.After(orig.Meta.CreatedAt) {
		t.Fatal("duplicate should have fresh timestamps")
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), "classic-2", "assets", "logo.png"))
	if err != nil || string(data) != "logo" {
		t.Fatalf("asset not copied: %q, %v", data, err)
	}

	// The source is untouched.
	again, _ := s.Load("classic")
	if again.Meta.Name != "Classic" {
		t.Fatalf("source renamed to %q", again.Meta.Name)
	}
}

func TestDuplicateRejectsExistingTarget(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(sample("classic")); err != nil {
		t.Fatal(err)
	}
	target := sample("modern")
	target.Meta.Name = "Modern"
	target.Meta.Description = "Keep me"
	target.Elements = target.Elements[:1]
	if _, err := s.Save(target); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(s.Root(), "classic", "assets", "logo.png"), "source")
	writeFile(t, filepath.Join(s.Root(), "modern", "assets", "t.png"), "target")
	writeFile(t, filepath.Join(s.Root(), "old.json"), `{"id": "old", "name": "Old", "elements": []}`)

	for _, id := range []string{"modern", "old"} {
		dup, err := s.Duplicate("classic", id, "Copy")
		if !errors.Is(err, invtpl.ErrInvalidInput) || dup != nil {
			t.Fatalf("Duplicate onto %s = %v, %v; want ErrInvalidInput", id, dup, err)
		}
	}

	kept, err := s.Load("modern")
	if err != nil || kept == nil {
		t.Fatalf("Load = %v, %v", kept, err)
	}
	if kept.Meta.Name != "Modern" || kept.Meta.Description != "Keep me" || len(kept.Elements) != 1 {
		t.Fatalf("target modified: %+v, %d elements", kept.Meta, len(kept.Elements))
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "modern", "assets", "logo.png")); !os.IsNotExist(err) {
		t.Fatal("source assets leaked into the target")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "modern", "assets", "t.png")); err != nil {
		t.Fatalf("target asset removed: %v", err)
	}
}

func TestDuplicateGeneratesID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(sample("classic")); err != nil {
		t.Fatal(err)
	}
	dup, err := s.Duplicate("classic", "", "")
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	if !ValidID(dup.Meta.ID) || dup.Meta.ID == "classic" {
		t.Fatalf("generated id %q", dup.Meta.ID)
	}
	if dup.Meta.Name != "Classic (copy)" {
		t.Fatalf("name = %q", dup.Meta.Name)
	}
}

func TestDuplicateMissingSource(t *testing.T) {
	s := newTestStore(t)
	dup, err := s.Duplicate("none", "other", "Other")
	if err != nil || dup != nil {
		t.Fatalf("Duplicate = %v, %v", dup, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "other")); !os.IsNotExist(err) {
		t.Fatal("duplicate of a missing source must not leave a directory")
	}
}

func TestValidID(t *testing.T) {
	for id, want := range map[string]bool{
		"classic":    true,
		"inv_2024.1": true,
		"":           false,
		".hidden":    false,
		"a/b":        false,
		"images":     false,
		"x.json":     false,
	} {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}
