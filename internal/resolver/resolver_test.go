package resolver

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/annodoc/internal/doctree"
	"github.com/dgallion1/annodoc/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(name string, depth int) syntax.Token {
	return syntax.Token{Kind: syntax.Header, Text: name, Depth: depth}
}

func decl(typ, name string, depth int) syntax.Token {
	return syntax.Token{Kind: syntax.Declaration, Type: typ, Text: name, Depth: depth}
}

func TestResolve_DepthPlacement(t *testing.T) {
	tokens := []syntax.Token{
		header("A", 0),
		decl("function", "B", 1),
		decl("function", "C", 2),
		decl("function", "D", 1),
		header("E", 0),
	}

	forest, err := Resolve(tokens)
	require.NoError(t, err)

	names := func(es []*doctree.Entity) []string {
		out := make([]string, 0, len(es))
		for _, e := range es {
			out = append(out, e.Name)
		}
		return out
	}

	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, names(forest.Entities))
	assert.Equal(t, []string{"A", "E"}, names(forest.Roots))

	a, b, c, d, e := forest.Entities[0], forest.Entities[1], forest.Entities[2], forest.Entities[3], forest.Entities[4]
	assert.Equal(t, []string{"B", "D"}, names(a.Children))
	assert.Equal(t, []string{"C"}, names(b.Children))
	assert.Empty(t, c.Children)
	assert.Same(t, a, d.Parent())
	assert.Nil(t, e.Parent())
	assert.Empty(t, e.Children)
}

func TestResolve_DepthJump(t *testing.T) {
	tokens := []syntax.Token{
		header("Root", 0),
		decl("function", "Deep", 3),
		decl("function", "Mid", 2),
	}
	forest, err := Resolve(tokens)
	require.NoError(t, err)

	root := forest.Entities[0]
	require.Len(t, root.Children, 2)
	assert.Equal(t, "Deep", root.Children[0].Name)
	assert.Equal(t, "Mid", root.Children[1].Name)
	assert.Len(t, forest.Roots, 1)
}

func TestResolve_SharpDecreaseClosesSeveralLevels(t *testing.T) {
	tokens := []syntax.Token{
		header("L0", 0),
		header("L1", 1),
		header("L2", 2),
		header("L3", 3),
		header("Back1", 1),
	}
	forest, err := Resolve(tokens)
	require.NoError(t, err)

	l0 := forest.Entities[0]
	require.Len(t, l0.Children, 2)
	assert.Equal(t, "Back1", l0.Children[1].Name)
	assert.Equal(t, "g:L0/g:Back1", forest.Entities[4].ID())
}

func TestResolve_ParentIsNearestShallowerOpenEntity(t *testing.T) {
	depths := []int{0, 2, 1, 3, 3, 1, 4, 0, 2}
	tokens := make([]syntax.Token, 0, len(depths))
	for i, d := range depths {
		tokens = append(tokens, header(fmt.Sprintf("e%d", i), d))
	}
	forest, err := Resolve(tokens)
	require.NoError(t, err)

	// Replay the open-set by hand and check each parent.
	var open []*doctree.Entity
	for _, e := range forest.Entities {
		for len(open) > 0 && open[len(open)-1].Depth >= e.Depth {
			open = open[:len(open)-1]
		}
		if len(open) == 0 {
			assert.Nil(t, e.Parent(), e.Name)
		} else {
			assert.Same(t, open[len(open)-1], e.Parent(), e.Name)
		}
		open = append(open, e)
	}
}

func TestResolve_EntityCountMatchesStructuralTokens(t *testing.T) {
	src := strings.Join([]string{
		"## == Top ==",
		"# Some text",
		"### function one",
		"# :: a -> b",
		"one = (a) -> a",
		"### data Two",
		"#### class Three",
		"## -- Other --",
		"# more text",
	}, "\n")
	tokens := syntax.Lex(syntax.Hash, src)

	structural := 0
	for _, tok := range tokens {
		if tok.Kind == syntax.Header || tok.Kind == syntax.Declaration {
			structural++
		}
	}

	forest, err := Resolve(tokens)
	require.NoError(t, err)
	assert.Len(t, forest.Entities, structural)
}

func TestStep_MetaRouting(t *testing.T) {
	s := NewState()
	var err error
	s, err = Step(s, decl("function", "f", 1))
	require.NoError(t, err)

	steps := []syntax.Token{
		{Kind: syntax.Meta, Keys: []string{"param"}, Value: "x"},
		{Kind: syntax.Meta, Keys: []string{"param"}, Value: "y"},
		{Kind: syntax.Meta, Keys: []string{"author"}, Value: "Ada"},
		{Kind: syntax.Meta, Keys: []string{"author"}, Value: "Grace"},
		{Kind: syntax.Meta, Keys: []string{"licence", "since"}, Value: "MIT"},
	}
	for _, tok := range steps {
		s, err = Step(s, tok)
		require.NoError(t, err)
	}

	e := s.Context
	assert.Equal(t, "y", e.Meta["param"])
	assert.Equal(t, []string{"Ada", "Grace"}, e.Authors)
	assert.Equal(t, "MIT", e.Licence)
	assert.Equal(t, "MIT", e.Meta["since"])
}

func TestStep_TextAndCodeAccumulate(t *testing.T) {
	tokens := []syntax.Token{
		decl("function", "f", 1),
		{Kind: syntax.Text, Text: "Does a thing."},
		{Kind: syntax.Text, Text: "Twice."},
		{Kind: syntax.Code, Text: "f = ->", LineNo: 4},
		{Kind: syntax.Code, Text: "  42", LineNo: 5},
	}
	forest, err := Resolve(tokens)
	require.NoError(t, err)

	f := forest.Entities[0]
	assert.Equal(t, "Does a thing.\nTwice.", f.Text)
	assert.Equal(t, "f = ->\n  42", f.Code)
	assert.Equal(t, 4, f.Line)
	assert.Equal(t, 5, f.EndLine)
}

func TestStep_SignatureContinuation(t *testing.T) {
	tokens := []syntax.Token{
		decl("function", "f", 1),
		{Kind: syntax.Signature, Text: "a -> b"},
		{Kind: syntax.Signature, Text: "(x) -> y"},
		{Kind: syntax.SignatureContinuation, Text: "-> z"},
	}
	forest, err := Resolve(tokens)
	require.NoError(t, err)
	assert.Equal(t, []string{"a -> b", "(x) -> y\n-> z"}, forest.Entities[0].Signatures)
}

func TestResolve_ContinuationWithoutSignature(t *testing.T) {
	tokens := []syntax.Token{
		decl("function", "f", 1),
		{Kind: syntax.Text, Text: "has text"},
		{Kind: syntax.Code, Text: "f = 1", LineNo: 3},
		{Kind: syntax.SignatureContinuation, Text: "-> z", LineNo: 4},
	}
	forest, err := Resolve(tokens)
	assert.Nil(t, forest)

	var contErr *ContinuationWithoutSignatureError
	require.True(t, errors.As(err, &contErr))
	assert.Equal(t, 4, contErr.Token.LineNo)
	assert.Equal(t, 4, Line(err))
	assert.Equal(t, "continuation_without_signature", Reason(err))
}

func TestResolve_MissingContext(t *testing.T) {
	kinds := []syntax.Kind{
		syntax.Meta,
		syntax.Signature,
		syntax.SignatureContinuation,
		syntax.Text,
		syntax.Code,
	}
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			_, err := Resolve([]syntax.Token{{Kind: k, Text: "x", Keys: []string{"k"}, LineNo: 1}})
			var mc *MissingContextError
			require.True(t, errors.As(err, &mc), "got %v", err)
			assert.Equal(t, "missing_context", Reason(err))
		})
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	_, err := Resolve([]syntax.Token{
		header("A", 0),
		{Kind: syntax.Unclassified, LineNo: 2},
	})
	var ut *UnknownTokenError
	require.True(t, errors.As(err, &ut))
	assert.Equal(t, 2, Line(err))
	assert.Contains(t, err.Error(), "unclassified")
}

func TestResolve_UnmappedDeclaration(t *testing.T) {
	forest, err := Resolve([]syntax.Token{decl("interface", "Shape", 1)})
	require.NoError(t, err)
	e := forest.Entities[0]
	assert.Equal(t, doctree.KindUnmapped, e.Kind)
	assert.Equal(t, "interface", e.DeclaredType)
	assert.Equal(t, "Shape", e.ID())
}

func TestResolve_StrictRejectsUnmappedDeclaration(t *testing.T) {
	_, err := Resolve([]syntax.Token{decl("interface", "Shape", 1)}, Strict())
	var ud *UnknownDeclarationError
	require.True(t, errors.As(err, &ud))
	assert.Equal(t, "interface", ud.Token.Type)
}

func TestResolve_EndToEnd(t *testing.T) {
	src := "## == Module ==\n### function doThing\n  # :param: x\n  # :: (x) -> y"
	forest, err := Resolve(syntax.Lex(syntax.Hash, src))
	require.NoError(t, err)

	require.Len(t, forest.Roots, 1)
	mod := forest.Roots[0]
	assert.Equal(t, doctree.KindGroup, mod.Kind)
	assert.Equal(t, "Module", mod.Name)

	require.Len(t, mod.Children, 1)
	fn := mod.Children[0]
	assert.Equal(t, doctree.KindFunction, fn.Kind)
	assert.Equal(t, "doThing", fn.Name)
	assert.Equal(t, []string{"(x) -> y"}, fn.Signatures)
	assert.Equal(t, map[string]any{"param": "x"}, fn.Meta)
	assert.Equal(t, "g:Module/doThing", fn.ID())
}

func TestResolve_EmptyMetaValueIsTrue(t *testing.T) {
	forest, err := Resolve(syntax.Lex(syntax.Hash, "## data Flags\n# :flag:"))
	require.NoError(t, err)
	assert.Equal(t, true, forest.Entities[0].Meta["flag"])
}
