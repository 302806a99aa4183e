package mcp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lvillar/invtpl/binding"
	"github.com/lvillar/invtpl/render"
	"github.com/lvillar/invtpl/schema"
	"github.com/lvillar/invtpl/service"
)

// RegisterDefaultTools adds the template tools backed by svc to the server.
func RegisterDefaultTools(s *Server, svc *service.Service) {
	s.AddTool(listTemplatesTool(svc))
	s.AddTool(getTemplateTool(svc))
	s.AddTool(saveTemplateTool(svc))
	s.AddTool(deleteTemplateTool(svc))
	s.AddTool(duplicateTemplateTool(svc))
	s.AddTool(migrateTemplateTool(svc))
	s.AddTool(ingestImageTool(svc))
	s.AddTool(resolveAssetTool(svc))
	s.AddTool(renderTemplateTool(svc))
	s.AddTool(generatePreviewTool(svc))
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing '%s' argument", name)
	}
	return v, nil
}

func optionalString(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func textResult(format string, a ...interface{}) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}}}
}

func jsonResult(v interface{}) (ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolResult{}, fmt.Errorf("encoding result: %w", err)
	}
	return ToolResult{Content: []ContentBlock{{Type: "text", MIMEType: "application/json", Text: string(data)}}}, nil
}

// contextArg decodes the optional "context" argument into a render context.
func contextArg(args map[string]interface{}) (binding.Context, error) {
	raw, ok := args["context"]
	if !ok || raw == nil {
		return binding.Context{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding context: %w", err)
	}
	return binding.ParseContext(data)
}

// templateSummary is the listing view of a template.
type templateSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version,omitempty"`
	Author    string    `json:"author,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	Elements  int       `json:"elements"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func summarize(defs []*schema.TemplateDefinition) []templateSummary {
	out := make([]templateSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, templateSummary{
			ID:        d.Meta.ID,
			Name:      d.Meta.Name,
			Version:   d.Meta.Version,
			Author:    d.Meta.Author,
			Tags:      d.Meta.Tags,
			Preview:   d.Meta.Preview,
			Elements:  len(d.Elements),
			UpdatedAt: d.Meta.UpdatedAt,
		})
	}
	return out
}

func listTemplatesTool(svc *service.Service) Tool {
	return Tool{
		Name:        "list_templates",
		Description: "List all invoice templates in the store. Legacy templates are migrated on the way.",
		InputSchema: objectSchema(nil, map[string]interface{}{}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			defs, err := svc.List()
			if err != nil {
				return ToolResult{}, fmt.Errorf("listing templates: %w", err)
			}
			return jsonResult(summarize(defs))
		},
	}
}

func getTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "get_template",
		Description: "Return the full JSON definition of a template.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id": prop("string", "Template id"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			def, err := svc.Load(id)
			if err != nil {
				return ToolResult{}, err
			}
			if def == nil {
				return ToolResult{}, fmt.Errorf("template %q not found", id)
			}
			data, err := schema.Encode(def)
			if err != nil {
				return ToolResult{}, err
			}
			return ToolResult{Content: []ContentBlock{{Type: "text", MIMEType: "application/json", Text: string(data)}}}, nil
		},
	}
}

func saveTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "save_template",
		Description: "Create or update a template. Accepts the current format or the legacy flat format; metadata not given is kept from the stored version.",
		InputSchema: objectSchema([]string{"template"}, map[string]interface{}{
			"template": prop("object", "Template definition with schemaVersion, meta, page and elements"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			raw, ok := args["template"]
			if !ok {
				return ToolResult{}, fmt.Errorf("missing 'template' argument")
			}
			data, err := json.Marshal(raw)
			if err != nil {
				return ToolResult{}, fmt.Errorf("encoding template: %w", err)
			}
			doc, err := schema.Decode(data)
			if err != nil {
				return ToolResult{}, err
			}
			def, err := svc.Save(doc)
			if err != nil {
				return ToolResult{}, err
			}
			return textResult("Saved template %s (%s, version %s)", def.Meta.ID, def.Meta.Name, def.Meta.Version), nil
		},
	}
}

func deleteTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "delete_template",
		Description: "Delete a template and its assets.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id": prop("string", "Template id"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			deleted, err := svc.Delete(id)
			if err != nil {
				return ToolResult{}, err
			}
			if !deleted {
				return textResult("No template %s", id), nil
			}
			return textResult("Deleted template %s", id), nil
		},
	}
}

func duplicateTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "duplicate_template",
		Description: "Copy a template and its assets under a new id.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id":      prop("string", "Source template id"),
			"newId":   prop("string", "Id of the copy (generated if omitted)"),
			"newName": prop("string", "Name of the copy (default: source name + \" (copy)\")"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			dup, err := svc.Duplicate(id, optionalString(args, "newId"), optionalString(args, "newName"))
			if err != nil {
				return ToolResult{}, err
			}
			if dup == nil {
				return ToolResult{}, fmt.Errorf("template %q not found", id)
			}
			return textResult("Duplicated %s as %s (%s)", id, dup.Meta.ID, dup.Meta.Name), nil
		},
	}
}

func migrateTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "migrate_template",
		Description: "Convert a legacy flat-format template to the current format, copying its images into the template's assets.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id": prop("string", "Template id"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			def, err := svc.MigrateTemplate(id)
			if err != nil {
				return ToolResult{}, err
			}
			if def == nil {
				return ToolResult{}, fmt.Errorf("no legacy template %q", id)
			}
			return textResult("Migrated %s to schema version %d", id, def.SchemaVersion), nil
		},
	}
}

func ingestImageTool(svc *service.Service) Tool {
	return Tool{
		Name:        "ingest_image",
		Description: "Store an inline image (data URI) as an asset of a template and return the reference to use as the element src.",
		InputSchema: objectSchema([]string{"templateId", "elementId", "data"}, map[string]interface{}{
			"templateId": prop("string", "Template id"),
			"elementId":  prop("string", "Id of the image element"),
			"data":       prop("string", "data:<media type>;base64,<payload>"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			templateID, err := stringArg(args, "templateId")
			if err != nil {
				return ToolResult{}, err
			}
			elementID, err := stringArg(args, "elementId")
			if err != nil {
				return ToolResult{}, err
			}
			payload, err := stringArg(args, "data")
			if err != nil {
				return ToolResult{}, err
			}
			ref, err := svc.IngestImage(templateID, elementID, payload)
			if err != nil {
				return ToolResult{}, err
			}
			return textResult("%s", ref), nil
		},
	}
}

func resolveAssetTool(svc *service.Service) Tool {
	return Tool{
		Name:        "resolve_asset",
		Description: "Resolve an asset reference of a template to a file path.",
		InputSchema: objectSchema([]string{"templateId", "ref"}, map[string]interface{}{
			"templateId": prop("string", "Template id"),
			"ref":        prop("string", "Asset reference, e.g. assets/logo.png"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			templateID, err := stringArg(args, "templateId")
			if err != nil {
				return ToolResult{}, err
			}
			ref, err := stringArg(args, "ref")
			if err != nil {
				return ToolResult{}, err
			}
			path := svc.ResolveAsset(templateID, ref)
			if path == "" {
				return ToolResult{}, fmt.Errorf("reference %q does not resolve inside the store", ref)
			}
			return textResult("%s", path), nil
		},
	}
}

func renderTemplateTool(svc *service.Service) Tool {
	return Tool{
		Name:        "render_template",
		Description: "Render a stored template against invoice, customer and company data. Returns the PDF as base64, writes it to outputPath, or with format \"tree\" returns the laid out pages as JSON.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id":         prop("string", "Template id"),
			"context":    prop("object", "Data context with invoice, customer and company objects"),
			"outputPath": prop("string", "Optional file path to save the PDF. If omitted, returns base64."),
			"format":     prop("string", "\"pdf\" (default) or \"tree\""),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			ctx, err := contextArg(args)
			if err != nil {
				return ToolResult{}, err
			}
			tree, err := svc.Render(id, ctx)
			if err != nil {
				return ToolResult{}, err
			}

			switch format := optionalString(args, "format"); format {
			case "tree":
				return jsonResult(treeSummary(tree))
			case "", "pdf":
			default:
				return ToolResult{}, fmt.Errorf("unknown format %q", format)
			}

			var buf bytes.Buffer
			if err := svc.WritePDF(&buf, tree); err != nil {
				return ToolResult{}, err
			}
			if outputPath := optionalString(args, "outputPath"); outputPath != "" {
				if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
					return ToolResult{}, fmt.Errorf("writing file: %w", err)
				}
				return textResult("Rendered %s to %s (%d pages, %d bytes)", id, outputPath, len(tree.Pages), buf.Len()), nil
			}
			encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
			return textResult("Rendered %s (%d pages, %d bytes). Base64 data:\n%s", id, len(tree.Pages), buf.Len(), encoded), nil
		},
	}
}

type pageSummary struct {
	Number int      `json:"number"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Texts  []string `json:"texts"`
	Ops    int      `json:"ops"`
}

func treeSummary(tree *render.Tree) []pageSummary {
	pages := make([]pageSummary, 0, len(tree.Pages))
	for _, p := range tree.Pages {
		ps := pageSummary{Number: p.Number, Width: p.Width, Height: p.Height, Texts: []string{}, Ops: len(p.Ops)}
		for _, op := range p.Ops {
			if t, ok := op.(render.TextOp); ok && t.Text != "" {
				ps.Texts = append(ps.Texts, t.Text)
			}
		}
		pages = append(pages, ps)
	}
	return pages
}

func generatePreviewTool(svc *service.Service) Tool {
	return Tool{
		Name:        "generate_preview",
		Description: "Render the first page of a template as a PNG thumbnail and store it as the template preview.",
		InputSchema: objectSchema([]string{"id"}, map[string]interface{}{
			"id":      prop("string", "Template id"),
			"context": prop("object", "Optional sample data context"),
		}),
		Handler: func(args map[string]interface{}) (ToolResult, error) {
			id, err := stringArg(args, "id")
			if err != nil {
				return ToolResult{}, err
			}
			ctx, err := contextArg(args)
			if err != nil {
				return ToolResult{}, err
			}
			def, err := svc.GeneratePreview(id, ctx)
			if err != nil {
				return ToolResult{}, err
			}
			return textResult("Preview of %s stored at %s", id, svc.ResolveAsset(id, def.Meta.Preview)), nil
		},
	}
}
