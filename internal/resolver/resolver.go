// Package resolver folds a token stream into a forest of documentation
// entities.
//
// Resolution is a left-to-right fold over a single State. Header and
// declaration tokens open new entities; every other token contributes to the
// entity currently open (the context). Nesting follows token depth: a new
// entity becomes a child of the nearest open entity that is strictly
// shallower, closing deeper entities as needed.
package resolver

import (
	"github.com/dgallion1/annodoc/internal/doctree"
	"github.com/dgallion1/annodoc/internal/syntax"
)

// State is the resolution state threaded through Step. A State is consumed
// by Step: callers must continue with the returned value.
type State struct {
	// Context is the open entity receiving contributions, nil before the
	// first header or declaration.
	Context *doctree.Entity
	// Stack holds the open ancestors of Context, innermost last.
	Stack []*doctree.Entity
	// Entities lists every entity in creation order.
	Entities []*doctree.Entity

	strict bool
}

// Option configures a resolution.
type Option func(*State)

// Strict makes unrecognized declaration keywords fatal instead of producing
// entities of kind unmapped.
func Strict() Option {
	return func(s *State) { s.strict = true }
}

// NewState returns an empty state.
func NewState(opts ...Option) State {
	var s State
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Forest is the result of a resolution.
type Forest struct {
	Roots    []*doctree.Entity
	Entities []*doctree.Entity
}

// Resolve folds tokens into a forest. Any error aborts the whole resolution.
func Resolve(tokens []syntax.Token, opts ...Option) (*Forest, error) {
	s := NewState(opts...)
	var err error
	for _, tok := range tokens {
		s, err = Step(s, tok)
		if err != nil {
			return nil, err
		}
	}
	return s.Forest(), nil
}

// Forest returns the roots and flat entity list accumulated so far.
func (s State) Forest() *Forest {
	f := &Forest{Entities: s.Entities}
	for _, e := range s.Entities {
		if e.Parent() == nil {
			f.Roots = append(f.Roots, e)
		}
	}
	return f
}

// Step applies one token to the state.
func Step(s State, tok syntax.Token) (State, error) {
	switch tok.Kind {
	case syntax.Header:
		return s.open(doctree.New(tok.Text, doctree.KindGroup, tok.Depth)), nil

	case syntax.Declaration:
		kind, ok := doctree.KindForKeyword(tok.Type)
		if !ok && s.strict {
			return s, &UnknownDeclarationError{Token: tok}
		}
		e := doctree.New(tok.Text, kind, tok.Depth)
		if !ok {
			e.DeclaredType = tok.Type
		}
		return s.open(e), nil

	case syntax.Meta:
		if s.Context == nil {
			return s, &MissingContextError{Token: tok}
		}
		for _, key := range tok.Keys {
			s.Context.Associate(key, tok.Value)
		}
		return s, nil

	case syntax.Signature:
		if s.Context == nil {
			return s, &MissingContextError{Token: tok}
		}
		s.Context.PushSignature(tok.Text)
		return s, nil

	case syntax.SignatureContinuation:
		if s.Context == nil {
			return s, &MissingContextError{Token: tok}
		}
		if !s.Context.ContinueSignature(tok.Text) {
			return s, &ContinuationWithoutSignatureError{Token: tok}
		}
		return s, nil

	case syntax.Text:
		if s.Context == nil {
			return s, &MissingContextError{Token: tok}
		}
		s.Context.AppendText(tok.Text)
		return s, nil

	case syntax.Code:
		if s.Context == nil {
			return s, &MissingContextError{Token: tok}
		}
		s.Context.AppendCode(tok.Text, tok.LineNo)
		return s, nil

	default:
		return s, &UnknownTokenError{Token: tok}
	}
}

// open places e in the tree and records it.
func (s State) open(e *doctree.Entity) State {
	s = s.place(e)
	s.Entities = append(s.Entities, e)
	return s
}

// place closes open entities until one is shallower than e, then nests e
// under it. With nothing left open, e starts a new root.
func (s State) place(e *doctree.Entity) State {
	for {
		switch {
		case s.Context == nil:
			s.Context = e
			return s
		case s.Context.Depth < e.Depth:
			s.Context.Add(e)
			s.Stack = append(s.Stack, s.Context)
			s.Context = e
			return s
		default:
			s = s.pop()
		}
	}
}

func (s State) pop() State {
	n := len(s.Stack)
	if n == 0 {
		s.Context = nil
		return s
	}
	s.Context = s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return s
}
