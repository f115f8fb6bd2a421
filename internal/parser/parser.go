package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/annodoc/internal/doctree"
	"github.com/dgallion1/annodoc/internal/resolver"
	"github.com/dgallion1/annodoc/internal/syntax"
)

// ErrUnsupportedExtension is returned when a file extension has no language.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Language is a source language and the comment syntax used to read it.
type Language struct {
	Name   string
	Syntax *syntax.Table
}

// SupportedExtensions maps file extensions to language names.
var SupportedExtensions = map[string]string{
	".ls":     "LiveScript",
	".coffee": "CoffeeScript",
	".js":     "JavaScript",
}

var syntaxes = map[string]*syntax.Table{
	"livescript":   syntax.Hash,
	"coffeescript": syntax.Hash,
	"javascript":   syntax.Slash,
}

// LanguageFor returns the language name for an extension such as ".ls".
func LanguageFor(ext string) (string, bool) {
	name, ok := SupportedExtensions[strings.ToLower(ext)]
	return name, ok
}

// SyntaxFor returns the syntax table for a language name.
func SyntaxFor(language string) (*syntax.Table, bool) {
	t, ok := syntaxes[strings.ToLower(language)]
	return t, ok
}

// ForFile returns the language for a filename.
func ForFile(filename string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name, ok := LanguageFor(ext)
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	table, ok := SyntaxFor(name)
	if !ok {
		return Language{}, fmt.Errorf("%w: no syntax for %s", ErrUnsupportedExtension, name)
	}
	return Language{Name: name, Syntax: table}, nil
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, ok := LanguageFor(filepath.Ext(filename))
	return ok
}

// Document is a parsed source file.
type Document struct {
	Filename string
	Language string
	Roots    []*doctree.Entity
	Entities []*doctree.Entity
}

// Parse reads contents as the language implied by filename and resolves its
// annotated comments. Every key of meta, plus "language", is associated
// with every entity. The caller's map is not modified.
func Parse(filename string, meta map[string]any, contents string, opts ...resolver.Option) (*Document, error) {
	lang, err := ForFile(filename)
	if err != nil {
		return nil, err
	}

	forest, err := resolver.Resolve(syntax.Lex(lang.Syntax, contents), opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", filename, err)
	}

	broadcast := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		broadcast[k] = v
	}
	broadcast["language"] = lang.Name
	Broadcast(forest.Entities, broadcast)

	return &Document{
		Filename: filename,
		Language: lang.Name,
		Roots:    forest.Roots,
		Entities: forest.Entities,
	}, nil
}

// Broadcast associates every key of meta with every entity. Keys are
// applied in sorted order so repeated "author" values are deterministic.
func Broadcast(entities []*doctree.Entity, meta map[string]any) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, e := range entities {
		for _, k := range keys {
			e.Associate(k, meta[k])
		}
	}
}
