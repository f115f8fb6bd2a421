// Package doctree defines the documentation entity tree produced by the
// resolver.
package doctree

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies an entity.
type Kind string

const (
	KindGroup    Kind = "group"
	KindFunction Kind = "function"
	KindObject   Kind = "object"
	KindData     Kind = "data"
	KindType     Kind = "type"
	KindModule   Kind = "module"
	KindClass    Kind = "class"
	// KindUnmapped marks a declaration whose type keyword has no mapping.
	// The keyword is kept in Entity.DeclaredType.
	KindUnmapped Kind = "unmapped"
)

var declarationKinds = map[string]Kind{
	"λ":        KindFunction,
	"function": KindFunction,
	"{}":       KindObject,
	"object":   KindObject,
	"data":     KindData,
	"type":     KindType,
	"module":   KindModule,
	"class":    KindClass,
}

// KindForKeyword maps a lowercased declaration keyword to a Kind. The
// boolean is false when the keyword is not recognized, in which case
// KindUnmapped is returned.
func KindForKeyword(keyword string) (Kind, bool) {
	k, ok := declarationKinds[keyword]
	if !ok {
		return KindUnmapped, false
	}
	return k, true
}

// Entity is one documented unit. Children are owned; the parent link is a
// back-reference used for identifiers and projection only.
type Entity struct {
	Name         string
	Kind         Kind
	DeclaredType string
	Depth        int

	Signatures []string
	Text       string
	Code       string
	Line       int // first code line, 0 if none
	EndLine    int // last code line, 0 if only one

	Meta       map[string]any
	Language   string
	File       string
	Copyright  string
	Repository string
	Licence    string
	Authors    []string

	Children []*Entity

	parent *Entity
	id     string
	hasID  bool
}

// New creates an entity with empty accumulators.
func New(name string, kind Kind, depth int) *Entity {
	return &Entity{
		Name:       name,
		Kind:       kind,
		Depth:      depth,
		Signatures: []string{},
		Meta:       map[string]any{},
		Authors:    []string{},
	}
}

// WithID sets an explicit identifier that ID returns verbatim.
func (e *Entity) WithID(id string) *Entity {
	e.id = id
	e.hasID = true
	return e
}

// Parent returns the enclosing entity, or nil for a root.
func (e *Entity) Parent() *Entity { return e.parent }

// Add appends child and points its parent link at e.
func (e *Entity) Add(child *Entity) {
	e.Children = append(e.Children, child)
	child.parent = e
}

// Associate routes a metadata value onto the entity. Reserved keys set
// scalar fields, "author" appends, anything else lands in Meta.
func (e *Entity) Associate(key string, value any) {
	switch key {
	case "language":
		e.Language = valueString(value)
	case "file":
		e.File = valueString(value)
	case "copyright":
		e.Copyright = valueString(value)
	case "repository":
		e.Repository = valueString(value)
	case "licence":
		e.Licence = valueString(value)
	case "author":
		e.Authors = append(e.Authors, valueString(value))
	default:
		if e.Meta == nil {
			e.Meta = map[string]any{}
		}
		e.Meta[key] = value
	}
}

// PushSignature appends a signature.
func (e *Entity) PushSignature(sig string) {
	e.Signatures = append(e.Signatures, sig)
}

// ContinueSignature extends the most recent signature. It reports false when
// there is no signature to extend.
func (e *Entity) ContinueSignature(more string) bool {
	n := len(e.Signatures)
	if n == 0 {
		return false
	}
	e.Signatures[n-1] += "\n" + more
	return true
}

// AppendText sets the text on first use and newline-appends afterwards.
func (e *Entity) AppendText(s string) {
	if e.Text == "" {
		e.Text = s
		return
	}
	e.Text += "\n" + s
}

// AppendCode sets the code and its first line on first use, and
// newline-appends while tracking the last line afterwards.
func (e *Entity) AppendCode(s string, lineNo int) {
	if e.Code == "" {
		e.Code = s
		e.Line = lineNo
		return
	}
	e.Code += "\n" + s
	e.EndLine = lineNo
}

// ID returns the hierarchical identifier, computing and caching it on the
// first call.
func (e *Entity) ID() string {
	if e.hasID {
		return e.id
	}
	id := e.localID()
	if e.parent != nil {
		id = e.parent.ID() + "/" + id
	}
	e.id = id
	e.hasID = true
	return id
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func (e *Entity) localID() string {
	return kindPrefix(e.Kind) + whitespaceRe.ReplaceAllString(strings.TrimSpace(e.Name), "-")
}

func kindPrefix(k Kind) string {
	switch k {
	case KindType:
		return "t:"
	case KindClass:
		return "c:"
	case KindGroup:
		return "g:"
	default:
		return ""
	}
}

// Walk visits e and its descendants depth-first in child order.
func (e *Entity) Walk(fn func(*Entity)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
