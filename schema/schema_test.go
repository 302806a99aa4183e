package schema

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lvillar/invtpl"
)

func TestDecodeLegacyDocument(t *testing.T) {
	doc, err := Decode([]byte(`{
		"id": "old",
		"name": "Old Layout",
		"premium": true,
		"elements": [{"id": "logo", "type": "image", "x": 0, "y": 0, "width": 50, "height": 50, "src": "images/logo.png"}]
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !IsLegacy(doc) {
		t.Fatalf("expected legacy document, got %T", doc)
	}
	legacy := doc.(*LegacyDocument)
	if legacy.ID != "old" || legacy.Premium == nil || !*legacy.Premium {
		t.Fatalf("unexpected legacy content: %+v", legacy)
	}
	if len(legacy.Elements) != 1 || legacy.Elements[0].Src != "images/logo.png" {
		t.Fatalf("unexpected elements: %+v", legacy.Elements)
	}
}

func TestDecodeCurrentDocument(t *testing.T) {
	doc, err := Decode([]byte(`{
		// hand-edited definition
		"schemaVersion": 1,
		"meta": {"id": "t1", "name": "T"},
		"page": {"size": "Letter", "margin": {"top": 10, "right": 10, "bottom": 10, "left": 10}},
		"elements": [
			{"id": "e1", "type": "text", "x": 1, "y": 2, "width": 3, "height": 4, "content": "Hi",
			 "style": {"fontWeight": 700}},
		],
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	def, ok := doc.(*TemplateDefinition)
	if !ok {
		t.Fatalf("expected *TemplateDefinition, got %T", doc)
	}
	if def.ID() != "t1" {
		t.Fatalf("id = %q, want t1", def.ID())
	}
	if def.Page.Size != SizeLetter {
		t.Fatalf("page size = %q", def.Page.Size)
	}
	if !def.Elements[0].Style.FontWeight.Bold() {
		t.Fatal("numeric weight 700 should be bold")
	}
}

func TestDecodeMetaWithoutVersionIsCurrent(t *testing.T) {
	doc, err := Decode([]byte(`{"meta": {"id": "x"}, "elements": []}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if IsLegacy(doc) {
		t.Fatal("a document with meta must not be treated as legacy")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEncodeIsPrettyPrinted(t *testing.T) {
	def := &TemplateDefinition{
		SchemaVersion: CurrentVersion,
		Meta:          &TemplateMeta{ID: "t", Name: "T"},
		Page:          DefaultPage(),
		Elements:      []Element{},
	}
	data, err := Encode(def)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"meta\": {") {
		t.Fatalf("expected indented output, got:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Fatal("expected trailing newline")
	}
}

func validDefinition() *TemplateDefinition {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &TemplateDefinition{
		SchemaVersion: CurrentVersion,
		Meta:          &TemplateMeta{ID: "t", Name: "T", CreatedAt: now, UpdatedAt: now},
		Page:          DefaultPage(),
		Elements: []Element{
			{ID: "a", Type: TypeText, Width: 10, Height: 10, Content: "A"},
			{ID: "b", Type: TypeShape, Width: 10, Height: 10, Shape: ShapeCircle},
		},
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(validDefinition()); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	cases := map[string]func(d *TemplateDefinition){
		"missing meta":     func(d *TemplateDefinition) { d.Meta = nil },
		"missing id":       func(d *TemplateDefinition) { d.Meta.ID = "" },
		"duplicate ids":    func(d *TemplateDefinition) { d.Elements[1].ID = "a" },
		"negative width":   func(d *TemplateDefinition) { d.Elements[0].Width = -1 },
		"unknown type":     func(d *TemplateDefinition) { d.Elements[0].Type = "video" },
		"negative margin":  func(d *TemplateDefinition) { d.Page.Margin.Left = -5 },
		"updated < create": func(d *TemplateDefinition) { d.Meta.UpdatedAt = d.Meta.CreatedAt.Add(-time.Hour) },
	}
	for name, mutate := range cases {
		def := validDefinition()
		mutate(def)
		err := Validate(def)
		if !errors.Is(err, invtpl.ErrInvalidTemplate) {
			t.Errorf("%s: expected ErrInvalidTemplate, got %v", name, err)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	premium := true
	z := 3
	def := validDefinition()
	def.Meta.Premium = &premium
	def.Meta.Tags = []string{"a"}
	def.Elements[0].ZIndex = &z
	def.Elements[0].Style = &Style{Color: "#000000"}

	c := def.Clone()
	*c.Meta.Premium = false
	c.Meta.Tags[0] = "b"
	*c.Elements[0].ZIndex = 9
	c.Elements[0].Style.Color = "#ffffff"
	c.Elements[1].ID = "changed"

	if !*def.Meta.Premium || def.Meta.Tags[0] != "a" || *def.Elements[0].ZIndex != 3 ||
		def.Elements[0].Style.Color != "#000000" || def.Elements[1].ID != "b" {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestRefClassification(t *testing.T) {
	if !IsInline("data:image/png;base64,AAAA") {
		t.Error("data URI should be inline")
	}
	for _, ref := range []string{"/tmp/a.png", "https://example.com/a.png", `C:\logo.png`, "file:///a.png"} {
		if !IsAbsolute(ref) {
			t.Errorf("%q should be absolute", ref)
		}
	}
	for _, ref := range []string{"assets/a.png", "images/a.png", "foo/bar.png"} {
		if IsAbsolute(ref) {
			t.Errorf("%q should be relative", ref)
		}
	}
	if AssetName("assets/a.png") != "a.png" || AssetName("images/a.png") != "" {
		t.Error("AssetName mismatch")
	}
}

func TestPageDimensions(t *testing.T) {
	w, h := SizeLetter.Dimensions()
	if w != 612 || h != 792 {
		t.Fatalf("Letter = %vx%v", w, h)
	}
	w, h = PageSize("B7").Dimensions()
	if w != 595.28 || h != 841.89 {
		t.Fatalf("unknown size should fall back to A4, got %vx%v", w, h)
	}
}
