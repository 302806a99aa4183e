package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lvillar/invtpl"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so errors read like the definition file.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the structural requirements of a definition: metadata with
// an id, known element types, non-negative geometry, unique element ids and
// updatedAt not before createdAt. Failures wrap invtpl.ErrInvalidTemplate.
func Validate(def *TemplateDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", invtpl.ErrInvalidTemplate)
	}
	if def.Meta == nil {
		return fmt.Errorf("%w: missing meta", invtpl.ErrInvalidTemplate)
	}
	if err := validate.Struct(def); err != nil {
		return fmt.Errorf("%w: %v", invtpl.ErrInvalidTemplate, err)
	}

	seen := make(map[string]bool, len(def.Elements))
	for _, e := range def.Elements {
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate element id %q", invtpl.ErrInvalidTemplate, e.ID)
		}
		seen[e.ID] = true
	}

	m := def.Meta
	if !m.CreatedAt.IsZero() && m.UpdatedAt.Before(m.CreatedAt) {
		return fmt.Errorf("%w: updatedAt %s before createdAt %s", invtpl.ErrInvalidTemplate,
			m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"), m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
