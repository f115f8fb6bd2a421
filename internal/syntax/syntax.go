// Package syntax classifies source lines under a comment-marker convention
// and turns them into tokens for the resolver.
package syntax

import (
	"regexp"
	"strings"
)

// Kind identifies what a single source line contributes to the entity tree.
type Kind int

const (
	Unclassified Kind = iota
	Header
	Declaration
	Meta
	Signature
	SignatureContinuation
	Text
	Code
)

func (k Kind) String() string {
	switch k {
	case Header:
		return "header"
	case Declaration:
		return "declaration"
	case Meta:
		return "meta"
	case Signature:
		return "signature"
	case SignatureContinuation:
		return "signature+"
	case Text:
		return "text"
	case Code:
		return "code"
	default:
		return "unclassified"
	}
}

// Token is one classified line.
type Token struct {
	Kind   Kind
	Text   string
	LineNo int

	// Depth is set for Header and Declaration tokens.
	Depth int
	// Type is the lowercased declared-type keyword of a Declaration.
	Type string
	// Keys and Value are set for Meta tokens. Value is a string, or true
	// when the line carries no value.
	Keys  []string
	Value any
}

// Table holds the classification rules for one comment-marker family.
type Table struct {
	name   string
	marker string

	header       *regexp.Regexp
	declaration  *regexp.Regexp
	meta         *regexp.Regexp
	signature    *regexp.Regexp
	continuation *regexp.Regexp
	text         *regexp.Regexp

	leading  *regexp.Regexp
	trailing *regexp.Regexp
}

// Hash is the table for languages whose comments start with '#'.
var Hash = NewTable("hash", "#")

// Slash is the table for languages whose comments start with '//'.
var Slash = NewTable("slash", "//")

var (
	declarationRe  = regexp.MustCompile(`^\s*(\S+)\s*(.*)$`)
	metaRe         = regexp.MustCompile(`^\s*:([^:]+):(.*)$`)
	signatureRe    = regexp.MustCompile(`^\s*::(.*)$`)
	continuationRe = regexp.MustCompile(`^\s*\.\.(.*)$`)
)

// NewTable builds a table for the given marker. Every rule is the same
// across tables; only the marker differs.
func NewTable(name, marker string) *Table {
	m := "(?:" + regexp.QuoteMeta(marker) + ")"
	return &Table{
		name:         name,
		marker:       marker,
		header:       regexp.MustCompile(`^\s*` + m + `{2,}\s*[=-]+`),
		declaration:  regexp.MustCompile(`^\s*` + m + `{2,}\s*\S`),
		meta:         regexp.MustCompile(`^\s*` + m + `\s*:[^:]+:`),
		signature:    regexp.MustCompile(`^\s*` + m + `\s*::`),
		continuation: regexp.MustCompile(`^\s*` + m + `\s*\.\.`),
		text:         regexp.MustCompile(`^\s*` + m),
		leading:      regexp.MustCompile(`^\s*(` + m + `+)`),
		trailing:     regexp.MustCompile(`\s*` + m + `*\s*$`),
	}
}

// Name returns the family name ("hash" or "slash").
func (t *Table) Name() string { return t.name }

// Marker returns the comment marker string.
func (t *Table) Marker() string { return t.marker }

// Classify returns the kind of line. Rules are tested in precedence order
// and Code is the fallback, so every line gets a kind.
func (t *Table) Classify(line string) Kind {
	switch {
	case t.header.MatchString(line):
		return Header
	case t.declaration.MatchString(line):
		return Declaration
	case t.meta.MatchString(line):
		return Meta
	case t.signature.MatchString(line):
		return Signature
	case t.continuation.MatchString(line):
		return SignatureContinuation
	case t.text.MatchString(line):
		return Text
	default:
		return Code
	}
}

// Tokenize classifies line and extracts the kind-specific fields.
func (t *Table) Tokenize(line string, lineNo int) Token {
	kind := t.Classify(line)
	tok := Token{Kind: kind, LineNo: lineNo}

	switch kind {
	case Header:
		body, depth := t.structural(line)
		tok.Depth = depth
		// Only the outer delimiter runs go; the title may contain = or -.
		tok.Text = strings.TrimSpace(strings.Trim(strings.TrimSpace(body), "=-"))
	case Declaration:
		body, depth := t.structural(line)
		tok.Depth = depth
		if m := declarationRe.FindStringSubmatch(body); m != nil {
			tok.Type = strings.ToLower(m[1])
			tok.Text = strings.TrimSpace(m[2])
		}
	case Meta:
		m := metaRe.FindStringSubmatch(t.stripOne(line))
		if m == nil {
			break
		}
		for _, k := range strings.Split(m[1], ",") {
			tok.Keys = append(tok.Keys, strings.TrimSpace(k))
		}
		if v := strings.TrimSpace(m[2]); v != "" {
			tok.Value = v
		} else {
			tok.Value = true
		}
	case Signature:
		if m := signatureRe.FindStringSubmatch(t.stripOne(line)); m != nil {
			tok.Text = strings.TrimSpace(m[1])
		}
	case SignatureContinuation:
		if m := continuationRe.FindStringSubmatch(t.stripOne(line)); m != nil {
			tok.Text = strings.TrimSpace(m[1])
		}
	case Text:
		tok.Text = t.stripOne(line)
	case Code:
		tok.Text = line
	}
	return tok
}

// structural strips the leading marker run and any trailing marker run from
// a header or declaration line and returns the body with its depth.
func (t *Table) structural(line string) (string, int) {
	loc := t.leading.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, 0
	}
	run := line[loc[2]:loc[3]]
	depth := strings.Count(run, t.marker) - 1
	body := t.trailing.ReplaceAllString(line[loc[1]:], "")
	return body, depth
}

// stripOne removes leading whitespace, a single marker and at most one
// following space or tab.
func (t *Table) stripOne(line string) string {
	rest := strings.TrimLeft(line, " \t")
	rest = strings.TrimPrefix(rest, t.marker)
	if rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
		rest = rest[1:]
	}
	return rest
}
