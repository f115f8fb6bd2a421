package record

import (
	"encoding/json"
	"testing"

	"github.com/dgallion1/annodoc/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() (*doctree.Entity, *doctree.Entity) {
	root := doctree.New("Module", doctree.KindGroup, 1)
	fn := doctree.New("doThing", doctree.KindFunction, 2)
	root.Add(fn)
	fn.PushSignature("(x) -> y")
	fn.Associate("param", "x")
	fn.AppendText("Does *the* thing & more.")
	fn.AppendText("")
	fn.AppendText("Second paragraph.")
	fn.AppendCode("doThing = (x) -> y", 5)
	return root, fn
}

func TestFromEntity_Fields(t *testing.T) {
	root, fn := sampleTree()

	r := FromEntity(fn)
	assert.Equal(t, "g:Module/doThing", r.ID)
	assert.Equal(t, "doThing", r.Name)
	assert.Equal(t, "function", r.Kind)
	assert.Equal(t, []string{"(x) -> y"}, r.Signatures)
	assert.Equal(t, "g:Module", r.Parent)
	assert.Equal(t, map[string]any{"param": "x"}, r.Meta)
	require.NotNil(t, r.Line)
	require.NotNil(t, r.EndLine)
	assert.Equal(t, 5, *r.Line)
	assert.Equal(t, 5, *r.EndLine, "end-line defaults to line")
	assert.Equal(t, "Does the thing & more.", r.Summary)
	assert.Empty(t, r.HTML)

	rr := FromEntity(root)
	assert.Empty(t, rr.Parent)
	assert.Nil(t, rr.Line)
	assert.Equal(t, []string{}, rr.Authors)
}

func TestFromEntity_EndLine(t *testing.T) {
	e := doctree.New("f", doctree.KindFunction, 1)
	e.AppendCode("a", 3)
	e.AppendCode("b", 4)
	e.AppendCode("c", 9)
	r := FromEntity(e)
	assert.Equal(t, 3, *r.Line)
	assert.Equal(t, 9, *r.EndLine)
}

func TestFromEntity_Unmapped(t *testing.T) {
	e := doctree.New("Shape", doctree.KindUnmapped, 1)
	e.DeclaredType = "interface"
	r := FromEntity(e)
	assert.Empty(t, r.Kind)
	assert.Equal(t, "interface", r.DeclaredType)
}

func TestFromEntity_WithHTML(t *testing.T) {
	_, fn := sampleTree()
	r := FromEntity(fn, WithHTML())
	assert.Contains(t, r.HTML, "<em>the</em>")
	assert.Contains(t, r.HTML, "<p>Second paragraph.</p>")
}

func TestFromEntities_PreservesOrder(t *testing.T) {
	root, fn := sampleTree()
	recs := FromEntities([]*doctree.Entity{root, fn})
	require.Len(t, recs, 2)
	assert.Equal(t, "g:Module", recs[0].ID)
	assert.Equal(t, "g:Module/doThing", recs[1].ID)
}

func TestRecord_JSONShape(t *testing.T) {
	root, _ := sampleTree()
	b, err := json.Marshal(FromEntity(root.Children[0]))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{"id", "name", "kind", "signatures", "text", "code", "meta", "parent", "authors", "line", "end-line"} {
		assert.Contains(t, m, key)
	}

	b, err = json.Marshal(FromEntity(root))
	require.NoError(t, err)
	m = nil
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "parent")
	assert.NotContains(t, m, "line")
}

func TestSummary(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain sentence.", "Plain sentence."},
		{"Uses `code` and [links](http://x).\n\nIgnored.", "Uses code and links."},
		{"# Heading\n\nFirst para\nwraps here.", "First para wraps here."},
		{"", ""},
		{"    only a code block", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Summary(tt.in), tt.in)
	}
}
