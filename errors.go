// Package invtpl is a document-template engine for visual invoice layouts.
//
// Templates are versioned JSON documents persisted on disk, one directory
// per template with its own image assets. Documents written in the older
// flat format are migrated transparently when read. A render engine binds
// invoice, customer and company data to the positioned elements of a
// template and produces a paginated draw description that the pdf and
// preview packages paint.
//
// This package holds the error taxonomy shared by the subpackages.
package invtpl

import (
	"errors"
	"fmt"
)

// Sentinel errors for template engine failure conditions.
var (
	ErrNotFound        = errors.New("invtpl: not found")
	ErrInvalidInput    = errors.New("invtpl: invalid input")
	ErrInvalidTemplate = errors.New("invtpl: invalid template")
	ErrInvalidAsset    = errors.New("invtpl: invalid asset")
	ErrIO              = errors.New("invtpl: i/o failure")
)

// TemplateError represents an error that occurred during a specific operation
// on a template. It wraps an underlying error and includes the operation name
// and the template id for context.
type TemplateError struct {
	Op  string // operation name, e.g. "Save", "IngestImage"
	ID  string // template id, may be empty
	Err error  // underlying error
}

func (e *TemplateError) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ID != "" {
		return fmt.Sprintf("invtpl.%s %s: %s", e.Op, e.ID, msg)
	}
	return fmt.Sprintf("invtpl.%s: %s", e.Op, msg)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// NewError creates a new TemplateError wrapping err with operation context.
func NewError(op, id string, err error) *TemplateError {
	return &TemplateError{Op: op, ID: id, Err: err}
}

// IOError wraps an underlying storage error so that it matches both ErrIO
// and the original error under errors.Is.
func IOError(op, id string, err error) *TemplateError {
	return &TemplateError{Op: op, ID: id, Err: fmt.Errorf("%w: %w", ErrIO, err)}
}
