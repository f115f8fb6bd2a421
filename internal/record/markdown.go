package record

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

var md = goldmark.New()

// RenderHTML renders Markdown entity text to HTML. Rendering failures yield
// an empty string.
func RenderHTML(src string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// Summary returns the first paragraph of Markdown text as plain text with
// whitespace collapsed.
func Summary(src string) string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			continue
		}
		var buf bytes.Buffer
		if err := md.Renderer().Render(&buf, source, n); err != nil {
			return ""
		}
		return plainText(&buf)
	}
	return ""
}

// plainText flattens rendered HTML into its text content.
func plainText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				sb.WriteByte(' ')
			}
		}
	}
}
