package asset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Transaction stages files for a template's assets directory. Files are
// written into a hidden staging directory next to assets/ and moved into
// place by Commit. Rollback discards the staging directory; it is safe to
// defer unconditionally.
//
//	tx, err := m.Begin(id)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback()
//	if err := tx.CopyTree(src); err != nil {
//		return err
//	}
//	return tx.Commit()
type Transaction struct {
	m          *Manager
	templateID string
	staging    string
	createdDir bool
	done       bool
}

// Begin starts an asset transaction for the template, creating the template
// directory if needed.
func (m *Manager) Begin(templateID string) (*Transaction, error) {
	dir := m.TemplateDir(templateID)
	_, statErr := os.Stat(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("asset: creating template directory: %w", err)
	}
	staging, err := os.MkdirTemp(dir, ".assets-")
	if err != nil {
		return nil, fmt.Errorf("asset: creating staging directory: %w", err)
	}
	return &Transaction{
		m:          m,
		templateID: templateID,
		staging:    staging,
		createdDir: os.IsNotExist(statErr),
	}, nil
}

// WriteFile stages data under name.
func (tx *Transaction) WriteFile(name string, data []byte) error {
	if err := tx.check(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tx.staging, filepath.Base(name)), data, 0o644)
}

// CopyFile stages a copy of src under name.
func (tx *Transaction) CopyFile(src, name string) error {
	if err := tx.check(); err != nil {
		return err
	}
	return copyFile(src, filepath.Join(tx.staging, filepath.Base(name)))
}

// CopyTree stages a recursive copy of srcDir. A missing srcDir is not an
// error: there is nothing to copy.
func (tx *Transaction) CopyTree(srcDir string) error {
	if err := tx.check(); err != nil {
		return err
	}
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(tx.staging, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

// Commit moves every staged file into the assets directory, replacing files
// of the same name.
func (tx *Transaction) Commit() error {
	if err := tx.check(); err != nil {
		return err
	}
	assets := tx.m.AssetDir(tx.templateID)
	err := filepath.WalkDir(tx.staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(tx.staging, path)
		if err != nil {
			return err
		}
		target := filepath.Join(assets, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Rename(path, target)
	})
	if err != nil {
		return fmt.Errorf("asset: committing staged files: %w", err)
	}
	tx.done = true
	if err := os.RemoveAll(tx.staging); err != nil {
		tx.log().WithError(err).Warn("Failed to remove staging directory")
	}
	return nil
}

// Rollback discards staged files. It is a no-op after Commit. A template
// directory created by Begin is removed again when it is left empty.
func (tx *Transaction) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	if err := os.RemoveAll(tx.staging); err != nil {
		tx.log().WithError(err).Warn("Failed to remove staging directory")
	}
	if tx.createdDir {
		// Only succeeds when nothing else was written there.
		_ = os.Remove(tx.m.TemplateDir(tx.templateID))
	}
}

func (tx *Transaction) check() error {
	if tx.done {
		return errors.New("asset: transaction already finished")
	}
	return nil
}

func (tx *Transaction) log() logrus.FieldLogger {
	return tx.m.log.WithFields(logrus.Fields{"template_id": tx.templateID, "path": tx.staging})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it over path. Readers observe either the previous
// content or the new one, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+ulid.Make().String()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
