package parser

import (
	"context"

	"github.com/dgallion1/annodoc/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// Input is one file to parse.
type Input struct {
	Filename string
	Meta     map[string]any
	Contents string
}

// Result pairs an input with its outcome. Exactly one of Document and Err is
// set.
type Result struct {
	Input    Input
	Document *Document
	Err      error
}

// ParseAll parses inputs concurrently, at most limit at a time. Each input
// is resolved independently; a failing file does not stop the others.
// Results are returned in input order. The only error returned is the
// context's.
func ParseAll(ctx context.Context, inputs []Input, limit int, opts ...resolver.Option) ([]Result, error) {
	if limit <= 0 {
		limit = 4
	}
	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := Parse(in.Filename, in.Meta, in.Contents, opts...)
			results[i] = Result{Input: in, Document: doc, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
