// Package service is the entry point the surrounding application uses: it
// ties the template store, the asset manager, the render engine and the
// paint backends together behind one set of operations.
package service

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/invtpl"
	"github.com/lvillar/invtpl/binding"
	"github.com/lvillar/invtpl/config"
	"github.com/lvillar/invtpl/pdf"
	"github.com/lvillar/invtpl/preview"
	"github.com/lvillar/invtpl/render"
	"github.com/lvillar/invtpl/schema"
	"github.com/lvillar/invtpl/store"
)

// PreviewFile is the asset name of generated previews.
const PreviewFile = "preview.png"

// Service exposes the template operations. It is safe for concurrent use.
type Service struct {
	store  *store.Store
	engine *render.Engine
	log    logrus.FieldLogger

	formatter     *binding.Formatter
	watermark     string
	codePage      string
	defaultAuthor string
	previewWidth  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithFormatter sets the value formatter used when rendering.
func WithFormatter(f *binding.Formatter) Option {
	return func(s *Service) {
		s.formatter = f
	}
}

// WithWatermark marks every rendered page with text.
func WithWatermark(text string) Option {
	return func(s *Service) {
		s.watermark = text
	}
}

// WithCodePage selects the PDF code page, see pdf.WithCodePage.
func WithCodePage(cp string) Option {
	return func(s *Service) {
		s.codePage = cp
	}
}

// WithDefaultAuthor is applied to saved templates without an author.
func WithDefaultAuthor(author string) Option {
	return func(s *Service) {
		s.defaultAuthor = author
	}
}

// WithPreviewWidth sets the pixel width of generated previews.
func WithPreviewWidth(px int) Option {
	return func(s *Service) {
		s.previewWidth = px
	}
}

// New returns a Service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		log:          logrus.StandardLogger(),
		formatter:    binding.DefaultFormatter(),
		previewWidth: preview.DefaultWidth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = render.New(
		render.WithMeasurer(pdf.NewMeasurer()),
		render.WithAssets(st.Assets()),
		render.WithFormatter(s.formatter),
		render.WithWatermark(s.watermark),
		render.WithLogger(s.log),
	)
	return s
}

// Open builds a Service from configuration, creating the store root if
// needed.
func Open(cfg *config.Config, log logrus.FieldLogger) (*Service, error) {
	f, err := cfg.Formatter()
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Store.Root, store.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return New(st,
		WithLogger(log),
		WithFormatter(f),
		WithWatermark(cfg.PDF.Watermark),
		WithCodePage(cfg.PDF.CodePage),
		WithDefaultAuthor(cfg.Store.DefaultAuthor),
		WithPreviewWidth(cfg.Preview.Width),
	), nil
}

// Store returns the underlying template store.
func (s *Service) Store() *store.Store { return s.store }

// List returns every template in the store, migrating legacy ones.
func (s *Service) List() ([]*schema.TemplateDefinition, error) {
	return s.store.List()
}

// Load returns the template with the given id, or nil if there is none.
func (s *Service) Load(id string) (*schema.TemplateDefinition, error) {
	return s.store.Load(id)
}

// Save upgrades, normalizes and persists doc, then removes assets the saved
// definition no longer references.
func (s *Service) Save(doc schema.RawDocument) (*schema.TemplateDefinition, error) {
	def, err := s.store.Save(doc, store.WithDefaultAuthor(s.defaultAuthor))
	if err != nil {
		return nil, err
	}
	s.store.Assets().CleanupOrphans(def)
	return def, nil
}

// Delete removes a template in either format and reports whether anything
// was removed.
func (s *Service) Delete(id string) (bool, error) {
	return s.store.Delete(id)
}

// Duplicate copies a template and its assets. An empty newID generates one.
// It returns nil if the source does not exist.
func (s *Service) Duplicate(id, newID, newName string) (*schema.TemplateDefinition, error) {
	return s.store.Duplicate(id, newID, newName)
}

// MigrateTemplate converts the legacy document with the given id. It
// returns nil if there is none.
func (s *Service) MigrateTemplate(id string) (*schema.TemplateDefinition, error) {
	return s.store.MigrateTemplate(id)
}

// IngestImage stores an inline image for an element and returns its asset
// reference. Other payloads are returned unchanged.
func (s *Service) IngestImage(templateID, elementID, payload string) (string, error) {
	if !store.ValidID(templateID) {
		return "", invtpl.NewError("IngestImage", templateID, fmt.Errorf("%w: invalid template id", invtpl.ErrInvalidInput))
	}
	return s.store.Assets().IngestImage(templateID, elementID, payload)
}

// ResolveAsset maps an asset reference of a template to a readable path.
func (s *Service) ResolveAsset(templateID, ref string) string {
	return s.store.Assets().ResolvePath(templateID, ref)
}

// RenderDefinition lays out def against ctx without touching the store.
func (s *Service) RenderDefinition(def *schema.TemplateDefinition, ctx binding.Context) (*render.Tree, error) {
	return s.engine.Render(def, ctx)
}

// Render loads the template with the given id and lays it out against ctx.
func (s *Service) Render(id string, ctx binding.Context) (*render.Tree, error) {
	def, err := s.mustLoad("Render", id)
	if err != nil {
		return nil, err
	}
	return s.engine.Render(def, ctx)
}

// RenderPDF renders the template with the given id as a PDF document to w.
func (s *Service) RenderPDF(w io.Writer, id string, ctx binding.Context) error {
	tree, err := s.Render(id, ctx)
	if err != nil {
		return err
	}
	return s.paint(w, tree)
}

// WritePDF paints an already rendered tree as a PDF document to w.
func (s *Service) WritePDF(w io.Writer, tree *render.Tree) error {
	return s.paint(w, tree)
}

func (s *Service) paint(w io.Writer, tree *render.Tree) error {
	opts := []pdf.Option{pdf.WithLogger(s.log), pdf.WithCodePage(s.codePage)}
	if err := pdf.Paint(w, tree, opts...); err != nil {
		return invtpl.NewError("RenderPDF", tree.TemplateID, err)
	}
	return nil
}

// GeneratePreview renders the first page of a template as a PNG thumbnail,
// stores it as the template's preview asset and saves the reference in the
// template metadata.
func (s *Service) GeneratePreview(id string, ctx binding.Context) (*schema.TemplateDefinition, error) {
	def, err := s.mustLoad("GeneratePreview", id)
	if err != nil {
		return nil, err
	}
	tree, err := s.engine.Render(def, ctx)
	if err != nil {
		return nil, err
	}
	img, err := preview.Thumbnail(tree, s.previewWidth, preview.WithLogger(s.log))
	if err != nil {
		return nil, invtpl.NewError("GeneratePreview", id, err)
	}
	var buf bytes.Buffer
	if err := preview.EncodePNG(&buf, img); err != nil {
		return nil, invtpl.NewError("GeneratePreview", id, err)
	}

	tx, err := s.store.Assets().Begin(id)
	if err != nil {
		return nil, invtpl.IOError("GeneratePreview", id, err)
	}
	defer tx.Rollback()
	if err := tx.WriteFile(PreviewFile, buf.Bytes()); err != nil {
		return nil, invtpl.IOError("GeneratePreview", id, err)
	}

	def.Meta.Preview = schema.AssetPrefix + PreviewFile
	saved, err := s.store.Save(def)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, invtpl.IOError("GeneratePreview", id, err)
	}

	s.log.WithFields(logrus.Fields{"template_id": id, "bytes": buf.Len()}).Info("Preview generated")
	return saved, nil
}

func (s *Service) mustLoad(op, id string) (*schema.TemplateDefinition, error) {
	def, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, invtpl.NewError(op, id, invtpl.ErrNotFound)
	}
	return def, nil
}
