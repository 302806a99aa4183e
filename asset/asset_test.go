package asset

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/schema"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewManager(t.TempDir(), WithLogger(logger), WithClock(func() time.Time { return fixedNow }))
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestImageWritesAsset(t *testing.T) {
	m := newTestManager(t)
	data := tinyPNG(t)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	ref, err := m.IngestImage("t1", "logo", payload)
	if err != nil {
		t.Fatalf("IngestImage failed: %v", err)
	}
	want := "assets/logo_1717236000000.png"
	if ref != want {
		t.Fatalf("ref = %q, want %q", ref, want)
	}

	got, err := os.ReadFile(filepath.Join(m.TemplateDir("t1"), filepath.FromSlash(ref)))
	if err != nil {
		t.Fatalf("reading ingested file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("ingested bytes differ from payload")
	}
}

func TestIngestImageExtension(t *testing.T) {
	m := newTestManager(t)
	cases := map[string]string{
		"data:image/jpeg;base64,/9j/4AAQ":       ".jpg",
		"data:image/svg+xml;base64,PHN2Zy8+":    ".svg",
		"data:;base64,iVBORw0K":                 ".png",
		"data:image/webp;base64,UklGRg==":       ".webp",
		"data:image/weird type;base64,iVBORw0K": ".png",
	}
	i := 0
	for payload, ext := range cases {
		i++
		ref, err := m.IngestImage("t1", "e"+string(rune('a'+i)), payload)
		if err != nil {
			t.Fatalf("%s: IngestImage failed: %v", payload, err)
		}
		if !strings.HasSuffix(ref, ext) {
			t.Errorf("%s: ref %q does not end in %s", payload, ref, ext)
		}
	}
}

func TestIngestImageAvoidsCollisions(t *testing.T) {
	m := newTestManager(t)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t))

	first, err := m.IngestImage("t1", "logo", payload)
	if err != nil {
		t.Fatalf("IngestImage failed: %v", err)
	}
	second, err := m.IngestImage("t1", "logo", payload)
	if err != nil {
		t.Fatalf("IngestImage failed: %v", err)
	}
	if first == second {
		t.Fatalf("same clock tick produced the same name %q twice", first)
	}
}

func TestIngestImagePassThrough(t *testing.T) {
	m := newTestManager(t)
	ref, err := m.IngestImage("t1", "logo", "assets/existing.png")
	if err != nil || ref != "assets/existing.png" {
		t.Fatalf("IngestImage = %q, %v", ref, err)
	}
	if _, err := os.Stat(m.AssetDir("t1")); !os.IsNotExist(err) {
		t.Fatal("pass-through ingestion must not touch the filesystem")
	}
}

func TestIngestImageInvalidPayload(t *testing.T) {
	m := newTestManager(t)
	for _, payload := range []string{"data:image/png;base64", "data:image/png;base64,@@@@", "data:image/png;base64,"} {
		_, err := m.IngestImage("t1", "logo", payload)
		if !errors.Is(err, invtpl.ErrInvalidAsset) {
			t.Errorf("%q: expected ErrInvalidAsset, got %v", payload, err)
		}
	}
}

func TestResolvePath(t *testing.T) {
	m := newTestManager(t)
	root := m.Root()
	cases := map[string]string{
		"/abs/logo.png":            "/abs/logo.png",
		"https://cdn.test/a.png":   "https://cdn.test/a.png",
		"data:image/png;base64,AA": "data:image/png;base64,AA",
		"assets/a.png":             filepath.Join(root, "t1", "assets", "a.png"),
		"images/old.png":           filepath.Join(root, "images", "old.png"),
		"misc/b.png":               filepath.Join(root, "t1", "misc", "b.png"),
		"assets/../../../etc/pwd":  "",
	}
	for ref, want := range cases {
		if got := m.ResolvePath("t1", ref); got != want {
			t.Errorf("ResolvePath(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestCleanupOrphans(t *testing.T) {
	m := newTestManager(t)
	dir := m.AssetDir("t1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "b.png", "preview.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	def := &schema.TemplateDefinition{
		Meta: &schema.TemplateMeta{ID: "t1", Preview: "assets/preview.png"},
		Elements: []schema.Element{
			{ID: "img", Type: schema.TypeImage, Src: "assets/a.png"},
			{ID: "txt", Type: schema.TypeText, Content: "assets/b.png"},
		},
	}
	removed := m.CleanupOrphans(def)
	if len(removed) != 1 || removed[0] != "b.png" {
		t.Fatalf("removed = %v, want [b.png]", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.png")); err != nil {
		t.Fatal("referenced asset a.png was deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "preview.png")); err != nil {
		t.Fatal("preview image was deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "b.png")); !os.IsNotExist(err) {
		t.Fatal("orphan b.png still present")
	}
}

func TestCleanupOrphansMissingDirectory(t *testing.T) {
	m := newTestManager(t)
	def := &schema.TemplateDefinition{Meta: &schema.TemplateMeta{ID: "none"}}
	if removed := m.CleanupOrphans(def); removed != nil {
		t.Fatalf("expected nothing removed, got %v", removed)
	}
}

func TestTransactionCommit(t *testing.T) {
	m := newTestManager(t)
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(src, "a.png"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(src, "sub", "b.png"), []byte("b"), 0o644)

	tx, err := m.Begin("copy")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback()
	if err := tx.CopyTree(src); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}
	if err := tx.WriteFile("c.png", []byte("c")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var names []string
	filepath.WalkDir(m.AssetDir("copy"), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(m.AssetDir("copy"), path)
			names = append(names, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(names)
	if strings.Join(names, ",") != "a.png,c.png,sub/b.png" {
		t.Fatalf("committed files = %v", names)
	}

	entries, _ := os.ReadDir(m.TemplateDir("copy"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".assets-") {
			t.Fatalf("staging directory %s left behind", e.Name())
		}
	}
	if err := tx.WriteFile("late.png", nil); err == nil {
		t.Fatal("expected error writing to a finished transaction")
	}
}

func TestTransactionRollback(t *testing.T) {
	m := newTestManager(t)
	tx, err := m.Begin("fresh")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.WriteFile("a.png", []byte("a")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	tx.Rollback()

	if _, err := os.Stat(m.TemplateDir("fresh")); !os.IsNotExist(err) {
		t.Fatal("rollback should remove the template directory it created")
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Fatalf("content = %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestSniffAndDecodeConfig(t *testing.T) {
	data := tinyPNG(t)
	if mt := Sniff(data); mt != "image/png" {
		t.Fatalf("Sniff = %q", mt)
	}
	cfg, format, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if format != "png" || cfg.Width != 4 || cfg.Height != 2 {
		t.Fatalf("DecodeConfig = %+v %s", cfg, format)
	}
}

func TestIngestLogsMediaTypeMismatch(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewManager(t.TempDir(), WithLogger(logger), WithClock(func() time.Time { return fixedNow }))
	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t))
	if _, err := m.IngestImage("t1", "logo", payload); err != nil {
		t.Fatalf("IngestImage failed: %v", err)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a warning for the mismatched media type")
	}
}

func TestDataURIString(t *testing.T) {
	uri := &DataURI{MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	if got := uri.String(); got != "data:image/png;base64,iVBORw==" {
		t.Fatalf("String() = %q", got)
	}
	back, err := ParseDataURI(uri.String())
	if err != nil || !bytes.Equal(back.Data, uri.Data) {
		t.Fatalf("ParseDataURI = %+v, %v", back, err)
	}
}
