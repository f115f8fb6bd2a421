// Package record projects resolved entities into the flat record shape
// consumed by renderers and stores.
package record

import (
	"github.com/dgallion1/annodoc/internal/doctree"
)

// Record is the externalized form of an entity.
type Record struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind,omitempty"`
	DeclaredType string         `json:"declared-type,omitempty"`
	Signatures   []string       `json:"signatures"`
	Text         string         `json:"text"`
	Summary      string         `json:"summary,omitempty"`
	HTML         string         `json:"html,omitempty"`
	Code         string         `json:"code"`
	Meta         map[string]any `json:"meta"`
	Parent       string         `json:"parent,omitempty"`
	Language     string         `json:"language,omitempty"`
	File         string         `json:"file,omitempty"`
	Copyright    string         `json:"copyright,omitempty"`
	Repository   string         `json:"repository,omitempty"`
	Authors      []string       `json:"authors"`
	Licence      string         `json:"licence,omitempty"`
	Line         *int           `json:"line,omitempty"`
	EndLine      *int           `json:"end-line,omitempty"`
}

type options struct {
	html bool
}

// Option configures projection.
type Option func(*options)

// WithHTML renders each entity's text to HTML in the html field.
func WithHTML() Option {
	return func(o *options) { o.html = true }
}

// FromEntity projects a single entity.
func FromEntity(e *doctree.Entity, opts ...Option) Record {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return fromEntity(e, o)
}

// FromEntities projects entities in the given order.
func FromEntities(entities []*doctree.Entity, opts ...Option) []Record {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	out := make([]Record, 0, len(entities))
	for _, e := range entities {
		out = append(out, fromEntity(e, o))
	}
	return out
}

func fromEntity(e *doctree.Entity, o options) Record {
	r := Record{
		ID:         e.ID(),
		Name:       e.Name,
		Signatures: nonNil(e.Signatures),
		Text:       e.Text,
		Code:       e.Code,
		Meta:       e.Meta,
		Language:   e.Language,
		File:       e.File,
		Copyright:  e.Copyright,
		Repository: e.Repository,
		Authors:    nonNil(e.Authors),
		Licence:    e.Licence,
	}
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}

	if e.Kind == doctree.KindUnmapped {
		r.DeclaredType = e.DeclaredType
	} else {
		r.Kind = string(e.Kind)
	}

	if p := e.Parent(); p != nil {
		r.Parent = p.ID()
	}

	if e.Line > 0 {
		line := e.Line
		end := e.EndLine
		if end == 0 {
			end = line
		}
		r.Line = &line
		r.EndLine = &end
	}

	if e.Text != "" {
		r.Summary = Summary(e.Text)
		if o.html {
			r.HTML = RenderHTML(e.Text)
		}
	}
	return r
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
