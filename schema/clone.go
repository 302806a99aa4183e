package schema

import "slices"

// Clone returns a deep copy of the definition. The copy shares no pointers,
// slices or maps with d.
func (d *TemplateDefinition) Clone() *TemplateDefinition {
	if d == nil {
		return nil
	}
	c := &TemplateDefinition{
		SchemaVersion: d.SchemaVersion,
		Page:          d.Page.Clone(),
	}
	if d.Meta != nil {
		m := *d.Meta
		m.Tags = slices.Clone(d.Meta.Tags)
		m.Premium = clonePtr(d.Meta.Premium)
		c.Meta = &m
	}
	if d.Elements != nil {
		c.Elements = make([]Element, len(d.Elements))
		for i, e := range d.Elements {
			c.Elements[i] = e.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	e.ZIndex = clonePtr(e.ZIndex)
	e.PreserveAspectRatio = clonePtr(e.PreserveAspectRatio)
	e.Columns = slices.Clone(e.Columns)
	if e.Style != nil {
		s := *e.Style
		s.Opacity = clonePtr(e.Style.Opacity)
		e.Style = &s
	}
	return e
}

// Clone returns a deep copy of the page spec.
func (p PageSpec) Clone() PageSpec {
	p.Background = clonePtr(p.Background)
	return p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
