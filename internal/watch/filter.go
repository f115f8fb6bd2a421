package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dgallion1/annodoc/internal/parser"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
}

// Filter selects source files by doublestar patterns matched against the
// slash-separated path relative to the root. Only files with a supported
// extension ever match. An empty Include admits every supported file.
type Filter struct {
	Include []string
	Exclude []string
}

// Validate reports the first malformed pattern.
func (f Filter) Validate() error {
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// Match reports whether rel names a file the filter selects.
func (f Filter) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !parser.IsSupportedExtension(rel) {
		return false
	}
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, p := range f.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// SkipDir reports whether the directory at rel should not be walked.
func (f Filter) SkipDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}
	if skipDirs[filepath.Base(rel)] {
		return true
	}
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Discover expands args into a sorted, de-duplicated list of files. An arg
// naming a file is taken as is when its extension is supported. A directory
// is walked and filtered. Anything else is treated as a glob.
func Discover(args []string, f Filter) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			files, err := walk(arg, f)
			if err != nil {
				return nil, err
			}
			for _, p := range files {
				add(p)
			}
		case err == nil:
			if parser.IsSupportedExtension(arg) {
				add(filepath.Clean(arg))
			}
		default:
			matches, gerr := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if gerr != nil {
				return nil, fmt.Errorf("glob %s: %w", arg, gerr)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("%s: no such file or matching path", arg)
			}
			for _, p := range matches {
				if parser.IsSupportedExtension(p) {
					add(p)
				}
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

func walk(root string, f Filter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		if d.IsDir() {
			if f.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if f.Match(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
