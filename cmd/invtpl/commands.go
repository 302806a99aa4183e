package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"

	"github.com/lvillar/invtpl/asset"
	"github.com/lvillar/invtpl/binding"
	"github.com/lvillar/invtpl/schema"
)

func init() {
	register(command{"list", "list [--json]", "List templates in the store", listCmd})
	register(command{"show", "show <id>", "Print the definition of a template", showCmd})
	register(command{"save", "save <file>...", "Save template files into the store", saveCmd})
	register(command{"delete", "delete <id>", "Delete a template and its assets", deleteCmd})
	register(command{"duplicate", "duplicate [--id id] [--name name] <id>", "Copy a template and its assets", duplicateCmd})
	register(command{"migrate", "migrate <id>", "Convert a legacy template to the current format", migrateCmd})
	register(command{"ingest", "ingest <template> <element> <image>", "Store an image as a template asset", ingestCmd})
	register(command{"render", "render [--data file] [-o out.pdf] <id>", "Render a template to PDF", renderCmd})
	register(command{"preview", "preview [--data file] <id>", "Generate and store the preview thumbnail", previewCmd})
}

func listCmd(a *app, args []string) error {
	fs := newFlags("list")
	asJSON := fs.Bool("json", false, "output as JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defs, err := a.svc.List()
	if err != nil {
		return err
	}

	if *asJSON {
		type entry struct {
			ID       string   `json:"id"`
			Name     string   `json:"name"`
			Version  string   `json:"version,omitempty"`
			Tags     []string `json:"tags,omitempty"`
			Elements int      `json:"elements"`
		}
		entries := make([]entry, 0, len(defs))
		for _, d := range defs {
			entries = append(entries, entry{d.Meta.ID, d.Meta.Name, d.Meta.Version, d.Meta.Tags, len(d.Elements)})
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tELEMENTS\tUPDATED")
	for _, d := range defs {
		updated := "-"
		if !d.Meta.UpdatedAt.IsZero() {
			updated = humanize.Time(d.Meta.UpdatedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.Meta.ID, d.Meta.Name, d.Meta.Version, len(d.Elements), updated)
	}
	return w.Flush()
}

func showCmd(a *app, args []string) error {
	fs := newFlags("show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "show <id>", 1)
	if err != nil {
		return err
	}
	def, err := a.svc.Load(pos[0])
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("template %q not found", pos[0])
	}
	data, err := schema.Encode(def)
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}

func saveCmd(a *app, args []string) error {
	fs := newFlags("save")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no template files given\n\nusage: invtpl save <file>...")
	}
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		doc, err := schema.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		def, err := a.svc.Save(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(a.out, "Saved %s (%s)\n", def.Meta.ID, def.Meta.Name)
	}
	return nil
}

func deleteCmd(a *app, args []string) error {
	fs := newFlags("delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "delete <id>", 1)
	if err != nil {
		return err
	}
	deleted, err := a.svc.Delete(pos[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("template %q not found", pos[0])
	}
	fmt.Fprintf(a.out, "Deleted %s\n", pos[0])
	return nil
}

func duplicateCmd(a *app, args []string) error {
	fs := newFlags("duplicate")
	newID := fs.String("id", "", "id of the copy (generated if empty)")
	newName := fs.String("name", "", "name of the copy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "duplicate [--id id] [--name name] <id>", 1)
	if err != nil {
		return err
	}
	dup, err := a.svc.Duplicate(pos[0], *newID, *newName)
	if err != nil {
		return err
	}
	if dup == nil {
		return fmt.Errorf("template %q not found", pos[0])
	}
	fmt.Fprintf(a.out, "Duplicated %s as %s (%s)\n", pos[0], dup.Meta.ID, dup.Meta.Name)
	return nil
}

func migrateCmd(a *app, args []string) error {
	fs := newFlags("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "migrate <id>", 1)
	if err != nil {
		return err
	}
	def, err := a.svc.MigrateTemplate(pos[0])
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("no legacy template %q", pos[0])
	}
	fmt.Fprintf(a.out, "Migrated %s to schema version %d\n", pos[0], def.SchemaVersion)
	return nil
}

func ingestCmd(a *app, args []string) error {
	fs := newFlags("ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "ingest <template> <element> <image>", 3)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(pos[2])
	if err != nil {
		return fmt.Errorf("reading %s: %w", pos[2], err)
	}
	uri := &asset.DataURI{MediaType: asset.Sniff(data), Data: data}
	ref, err := a.svc.IngestImage(pos[0], pos[1], uri.String())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, ref)
	return nil
}

func renderCmd(a *app, args []string) error {
	fs := newFlags("render")
	dataPath := fs.String("data", "", "JSON file with the invoice, customer and company objects")
	outPath := fs.StringP("output", "o", "", "output file (default <id>.pdf)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "render [--data file] [-o out.pdf] <id>", 1)
	if err != nil {
		return err
	}
	id := pos[0]
	ctx, err := readContext(*dataPath)
	if err != nil {
		return err
	}

	tree, err := a.svc.Render(id, ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := a.svc.WritePDF(&buf, tree); err != nil {
		return err
	}

	out := *outPath
	if out == "" {
		out = id + ".pdf"
	}
	if err := asset.WriteFileAtomic(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	a.log.WithFields(logrus.Fields{"template_id": id, "pages": len(tree.Pages)}).Debug("Rendered")
	fmt.Fprintf(a.out, "Wrote %s (%d pages, %s)\n", out, len(tree.Pages), humanize.Bytes(uint64(buf.Len())))
	return nil
}

func previewCmd(a *app, args []string) error {
	fs := newFlags("preview")
	dataPath := fs.String("data", "", "JSON file with sample data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "preview [--data file] <id>", 1)
	if err != nil {
		return err
	}
	ctx, err := readContext(*dataPath)
	if err != nil {
		return err
	}
	def, err := a.svc.GeneratePreview(pos[0], ctx)
	if err != nil {
		return err
	}
	path := a.svc.ResolveAsset(pos[0], def.Meta.Preview)
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(a.out, "Preview stored at %s (%s)\n", filepath.ToSlash(path), humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Fprintf(a.out, "Preview stored at %s\n", filepath.ToSlash(path))
	}
	return nil
}

// readContext loads a data context from a JSON file, which may carry
// comments. An empty path yields an empty context.
func readContext(path string) (binding.Context, error) {
	if path == "" {
		return binding.Context{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return binding.ParseContext(jsonc.ToJSON(data))
}
