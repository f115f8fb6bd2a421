// Package extract turns annotated source files into documentation records,
// consulting the record cache and reporting parse metrics along the way.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgallion1/annodoc/internal/cache"
	"github.com/dgallion1/annodoc/internal/metrics"
	"github.com/dgallion1/annodoc/internal/parser"
	"github.com/dgallion1/annodoc/internal/record"
	"github.com/dgallion1/annodoc/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// Extractor is safe for concurrent use.
type Extractor struct {
	cache  *cache.Cache
	stats  *ParseStats
	log    *slog.Logger
	strict bool
	html   bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache serves repeated inputs from c.
func WithCache(c *cache.Cache) Option {
	return func(x *Extractor) { x.cache = c }
}

// WithStats records every parse in s.
func WithStats(s *ParseStats) Option {
	return func(x *Extractor) { x.stats = s }
}

// WithLogger sets the logger used for non-fatal cache failures.
func WithLogger(log *slog.Logger) Option {
	return func(x *Extractor) { x.log = log }
}

// Strict rejects declarations whose keyword maps to no entity kind.
func Strict(on bool) Option {
	return func(x *Extractor) { x.strict = on }
}

// HTML renders entity text to HTML in each record.
func HTML(on bool) Option {
	return func(x *Extractor) { x.html = on }
}

// New returns an extractor configured by opts.
func New(opts ...Option) *Extractor {
	x := &Extractor{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Result is the outcome of one extraction.
type Result struct {
	Filename string          `json:"file"`
	Language string          `json:"language"`
	Records  []record.Record `json:"entities"`
	Cached   bool            `json:"-"`
}

// Extract parses one file. meta is broadcast to every entity.
func (x *Extractor) Extract(filename string, meta map[string]any, contents string) (*Result, error) {
	lang, err := parser.ForFile(filename)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(Reason(err)).Inc()
		return nil, err
	}

	var key string
	if x.cache != nil {
		key = cache.Key(filename, meta, contents, x.variant())
		entry, ok, err := x.cache.Get(key)
		if err != nil {
			x.log.Warn("cache read failed", "file", filename, "error", err)
		}
		if ok {
			metrics.CacheHitsTotal.Inc()
			return &Result{Filename: filename, Language: entry.Language, Records: entry.Records, Cached: true}, nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	var ropts []resolver.Option
	if x.strict {
		ropts = append(ropts, resolver.Strict())
	}
	start := time.Now()
	doc, err := parser.Parse(filename, meta, contents, ropts...)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(Reason(err)).Inc()
		if x.stats != nil {
			x.stats.RecordFailure(lang.Name, elapsed)
		}
		return nil, err
	}

	metrics.ParseDuration.WithLabelValues(doc.Language).Observe(elapsed.Seconds())
	for _, e := range doc.Entities {
		metrics.EntitiesTotal.WithLabelValues(string(e.Kind)).Inc()
	}
	if x.stats != nil {
		x.stats.Record(doc.Language, elapsed, len(doc.Entities))
	}

	var popts []record.Option
	if x.html {
		popts = append(popts, record.WithHTML())
	}
	res := &Result{
		Filename: filename,
		Language: doc.Language,
		Records:  record.FromEntities(doc.Entities, popts...),
	}

	if x.cache != nil {
		if err := x.cache.Put(key, &cache.Entry{Language: res.Language, Records: res.Records}); err != nil {
			x.log.Warn("cache write failed", "file", filename, "error", err)
		}
	}
	return res, nil
}

func (x *Extractor) variant() string {
	v := ""
	if x.strict {
		v += "strict;"
	}
	if x.html {
		v += "html;"
	}
	return v
}

// BatchResult pairs an input with its outcome. Exactly one of Result and Err
// is set.
type BatchResult struct {
	Input  parser.Input
	Result *Result
	Err    error
}

// ExtractAll runs Extract over inputs, at most limit at a time, and returns
// the outcomes in input order. The only error returned is the context's.
func (x *Extractor) ExtractAll(ctx context.Context, inputs []parser.Input, limit int) ([]BatchResult, error) {
	if limit <= 0 {
		limit = 4
	}
	out := make([]BatchResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := x.Extract(in.Filename, in.Meta, in.Contents)
			out[i] = BatchResult{Input: in, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reason classifies an extraction error for metrics and API responses.
func Reason(err error) string {
	if errors.Is(err, parser.ErrUnsupportedExtension) {
		return "unsupported_extension"
	}
	return resolver.Reason(err)
}
