package migrate

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/schema"
)

var testNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

func legacyFixture() *schema.LegacyDocument {
	return &schema.LegacyDocument{
		ID:   "classic",
		Name: "Classic",
		Elements: []schema.Element{
			{ID: "logo", Type: schema.TypeImage, Width: 80, Height: 40, Src: "images/logo.png"},
			{ID: "stamp", Type: schema.TypeImage, Width: 80, Height: 40, Src: "foo/bar.png"},
			{ID: "inline", Type: schema.TypeImage, Width: 10, Height: 10, Src: "data:image/png;base64,AAAA"},
			{ID: "abs", Type: schema.TypeImage, Width: 10, Height: 10, Src: "/srv/shared/sig.png"},
			{ID: "done", Type: schema.TypeImage, Width: 10, Height: 10, Src: "assets/ok.png"},
			{ID: "title", Type: schema.TypeText, Width: 100, Height: 20, Content: "images/not-an-image.png"},
		},
	}
}

func TestUpgradeRewritesImagePaths(t *testing.T) {
	def, rewrites, err := Upgrade(legacyFixture(), testNow)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	want := map[string]string{
		"logo":   "assets/logo.png",
		"stamp":  "assets/bar.png",
		"inline": "data:image/png;base64,AAAA",
		"abs":    "/srv/shared/sig.png",
		"done":   "assets/ok.png",
	}
	for _, e := range def.Elements {
		if w, ok := want[e.ID]; ok && e.Src != w {
			t.Errorf("%s: src = %q, want %q", e.ID, e.Src, w)
		}
	}
	if def.Elements[5].Content != "images/not-an-image.png" {
		t.Error("text content must not be rewritten")
	}

	if len(rewrites) != 2 {
		t.Fatalf("expected 2 rewrites, got %+v", rewrites)
	}
	if !rewrites[0].Legacy || rewrites[0].From != "images/logo.png" || rewrites[0].To != "assets/logo.png" {
		t.Errorf("unexpected legacy rewrite: %+v", rewrites[0])
	}
	if rewrites[1].Legacy {
		t.Errorf("relative path should not be marked legacy: %+v", rewrites[1])
	}
}

func TestUpgradeSynthesizesMeta(t *testing.T) {
	def, _, err := Upgrade(&schema.LegacyDocument{}, testNow)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if def.SchemaVersion != schema.CurrentVersion {
		t.Fatalf("schemaVersion = %d", def.SchemaVersion)
	}
	m := def.Meta
	if m.ID != DefaultID || m.Name != DefaultName || m.Version != DefaultVersion {
		t.Fatalf("unexpected defaults: %+v", m)
	}
	if m.IsPremium() || m.Premium == nil {
		t.Fatal("premium should default to an explicit false")
	}
	if !m.CreatedAt.Equal(testNow) || !m.UpdatedAt.Equal(testNow) {
		t.Fatal("timestamps should be set to now")
	}
	if m.Description != "" {
		t.Fatal("description must only be copied when present")
	}
	if def.Elements == nil || len(def.Elements) != 0 {
		t.Fatalf("expected empty, non-nil elements, got %#v", def.Elements)
	}
	if !reflect.DeepEqual(def.Page, schema.DefaultPage()) {
		t.Fatalf("expected default page, got %+v", def.Page)
	}
}

func TestUpgradeCopiesPageAndPremium(t *testing.T) {
	premium := true
	bg := "#fafafa"
	legacy := &schema.LegacyDocument{
		ID:          "p",
		Description: "paid",
		Premium:     &premium,
		Page:        &schema.PageSpec{Size: schema.SizeLetter, Background: &bg},
	}
	def, _, err := Upgrade(legacy, testNow)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if !def.Meta.IsPremium() || def.Meta.Description != "paid" {
		t.Fatalf("unexpected meta: %+v", def.Meta)
	}
	if def.Page.Size != schema.SizeLetter || *def.Page.Background != bg {
		t.Fatalf("page not copied: %+v", def.Page)
	}
}

func TestUpgradeIsIdempotent(t *testing.T) {
	once, _, err := Upgrade(legacyFixture(), testNow)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	before, _ := json.Marshal(once)

	twice, rewrites, err := Upgrade(once, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Upgrade failed: %v", err)
	}
	if len(rewrites) != 0 {
		t.Fatalf("current document produced rewrites: %+v", rewrites)
	}
	after, _ := json.Marshal(twice)
	if string(before) != string(after) {
		t.Fatalf("upgrade is not idempotent:\n%s\n%s", before, after)
	}
}

func TestUpgradeDoesNotMutateInput(t *testing.T) {
	legacy := legacyFixture()
	if _, _, err := Upgrade(legacy, testNow); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if legacy.Elements[0].Src != "images/logo.png" {
		t.Fatal("input document was modified")
	}
}

func TestUpgradeNil(t *testing.T) {
	var legacy *schema.LegacyDocument
	for _, doc := range []schema.RawDocument{nil, legacy} {
		if _, _, err := Upgrade(doc, testNow); !errors.Is(err, invtpl.ErrInvalidInput) {
			t.Errorf("Upgrade(%T) = %v, want ErrInvalidInput", doc, err)
		}
	}
}

func TestRewriteSrcWindowsPath(t *testing.T) {
	to, legacy, ok := RewriteSrc(`pics\stamp.jpg`)
	if !ok || legacy || to != "assets/stamp.jpg" {
		t.Fatalf("RewriteSrc = %q, %v, %v", to, legacy, ok)
	}
}
