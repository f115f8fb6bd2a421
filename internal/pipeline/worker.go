package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/pathstore"
	"github.com/dgallion1/annodoc/internal/record"
	"github.com/dgallion1/annodoc/internal/resolver"
)

// Worker processes a single document job.
type Worker struct {
	extractor *extract.Extractor
	pathstore *pathstore.Client
	log       *slog.Logger
	backoff   func(int) time.Duration

	maxConcurrentStore int
}

func NewWorker(x *extract.Extractor, ps *pathstore.Client, log *slog.Logger, maxStore int) *Worker {
	if maxStore <= 0 {
		maxStore = 1
	}
	return &Worker{
		extractor:          x,
		pathstore:          ps,
		log:                log,
		backoff:            Backoff,
		maxConcurrentStore: maxStore,
	}
}

// DocPrefix is the pathstore prefix under which a document is stored.
func DocPrefix(userID, docID string) string {
	return fmt.Sprintf("memory/users/%s/documents/%s", userID, docID)
}

// HashIndexPrefix is the pathstore prefix of the duplicate index for one
// content hash.
func HashIndexPrefix(userID, hash string) string {
	return fmt.Sprintf("memory/users/%s/documents/by_hash/%s", userID, hash)
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "user_id", job.UserID)
	defer job.releaseFileData()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	data := job.FileData()
	meta := job.meta()
	if _, ok := meta["file"]; !ok {
		meta["file"] = job.Filename
	}

	res, err := w.extractor.Extract(job.Filename, meta, string(data))
	if err != nil {
		log.Error("parse failed", "error", err, "reason", extract.Reason(err))
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetErrorLine(resolver.Line(err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetLanguage(res.Language)
	job.SetEntitiesFound(len(res.Records))
	hash := ContentHashHex(data)
	job.SetContentHash(hash)
	log.Info("parsed document", "language", res.Language, "entities", len(res.Records), "cached", res.Cached)

	// Phase 1.5: Dedup check
	if !job.Force {
		exists, existingDocID, err := w.checkDuplicate(ctx, job.UserID, hash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if exists {
			log.Info("duplicate document, skipping", "existing_doc_id", existingDocID)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 2: Store entity records with bounded concurrency.
	job.SetStatus(StatusStoring, "storing")
	docPrefix := DocPrefix(job.UserID, job.DocID)
	keys := entityKeys(docPrefix, res.Records)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		hadErrors bool
		stored    = make([]bool, len(res.Records))
	)
	sem := make(chan struct{}, w.maxConcurrentStore)
	for i, rec := range res.Records {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, rec record.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			err := w.put(ctx, log, keys[i], pathstore.NodeRequest{
				Value:      rec,
				MemoryType: "semantic",
				Salience:   salience(rec),
				Source:     "annodoc:" + job.DocID,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("store failed", "path", keys[i], "error", err)
				job.AddError(fmt.Sprintf("store %s: %s", rec.ID, err))
				hadErrors = true
				return
			}
			stored[i] = true
			job.IncrEntitiesStored()
		}(i, rec)
	}
	wg.Wait()

	// Parent links, only between entities that made it into the store. IDs
	// are not unique, so a parent id resolves to its first occurrence.
	first := make(map[string]int, len(res.Records))
	for i, rec := range res.Records {
		if _, ok := first[rec.ID]; !ok {
			first[rec.ID] = i
		}
	}
	storedCount := 0
	for i, rec := range res.Records {
		if !stored[i] {
			continue
		}
		storedCount++
		p, ok := first[rec.Parent]
		if rec.Parent == "" || !ok || !stored[p] {
			continue
		}
		err := w.pathstore.PutLink(ctx, pathstore.LinkRequest{
			From:    keys[p],
			To:      keys[i],
			Weight:  1,
			Summary: "contains",
		})
		if err != nil {
			log.Warn("link write failed", "from", rec.Parent, "to", rec.ID, "error", err)
			continue
		}
		job.IncrLinksStored()
	}

	log.Info("storage complete", "stored", storedCount, "total", len(res.Records))

	// Write document metadata.
	metaErr := w.put(ctx, log, docPrefix+"/meta", pathstore.NodeRequest{
		Value: map[string]any{
			"filename":        job.Filename,
			"language":        res.Language,
			"content_hash":    hash,
			"entities_stored": storedCount,
			"entities_total":  len(res.Records),
			"created_at":      job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     "annodoc:" + job.DocID,
	})
	if metaErr != nil {
		log.Error("meta write failed", "error", metaErr)
		job.AddError(fmt.Sprintf("meta: %s", metaErr))
		hadErrors = true
	}

	// Write hash index for dedup.
	hashPath := HashIndexPrefix(job.UserID, hash) + "/" + job.DocID
	hashErr := w.put(ctx, log, hashPath, pathstore.NodeRequest{
		Value: map[string]any{
			"filename":   job.Filename,
			"created_at": job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.1,
		Source:     "annodoc:" + job.DocID,
	})
	if hashErr != nil {
		log.Error("hash index write failed", "error", hashErr)
	}

	switch {
	case hadErrors && storedCount > 0:
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		job.SetStatus(StatusFailed, "storing")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) put(ctx context.Context, log *slog.Logger, key string, req pathstore.NodeRequest) error {
	return withRetry(ctx, w.backoff,
		func(attempt int, err error) {
			log.Warn("retryable store error", "path", key, "attempt", attempt, "error", err)
		},
		func() error { return w.pathstore.PutNode(ctx, key, req) },
	)
}

// entityKeys assigns each record a key under the document: its position in
// document order plus a slug of its name.
func entityKeys(docPrefix string, recs []record.Record) []string {
	keys := make([]string, len(recs))
	for i, rec := range recs {
		key := fmt.Sprintf("%s/entities/%04d", docPrefix, i)
		if slug := extract.Slugify(rec.Name); slug != "" {
			key += "-" + slug
		}
		keys[i] = key
	}
	return keys
}

// salience ranks documented entities above bare headings.
func salience(rec record.Record) float64 {
	switch {
	case len(rec.Signatures) > 0 && rec.Text != "":
		return 0.7
	case rec.Text != "" || len(rec.Signatures) > 0:
		return 0.5
	default:
		return 0.3
	}
}

// checkDuplicate checks if this content hash already exists for the user.
func (w *Worker) checkDuplicate(ctx context.Context, userID, hash string) (bool, string, error) {
	children, err := w.pathstore.ListChildren(ctx, HashIndexPrefix(userID, hash), 1)
	if err != nil {
		return false, "", err
	}
	if len(children) > 0 {
		return true, lastSegment(children[0].Key), nil
	}
	return false, "", nil
}

// lastSegment returns the final segment of a key in either slash or dotted
// form.
func lastSegment(key string) string {
	if i := strings.LastIndexAny(key, "./"); i >= 0 {
		return key[i+1:]
	}
	return key
}
