package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/annodoc/internal/config"
	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/pathstore"
	"github.com/dgallion1/annodoc/internal/pathstore/pathstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lsSource = `## == Lists ==
# :author: Ada
### λ map
# :: (a -> b) -> [a] -> [b]
# Applies f to each item.
map = (f, xs) --> [f x for x in xs]
### λ filter
filter = (p, xs) --> [x for x in xs when p x]
`

var quiet = slog.New(slog.DiscardHandler)

func newTestWorker(t *testing.T) (*Worker, *pathstoretest.Server) {
	t.Helper()
	srv := pathstoretest.New(t)
	ps := srv.Client()
	t.Cleanup(ps.Close)
	w := NewWorker(extract.New(), ps, quiet, 2)
	w.backoff = func(int) time.Duration { return 0 }
	return w, srv
}

func TestWorker_StoresEntities(t *testing.T) {
	w, srv := newTestWorker(t)
	job := NewJob("u1", "d1", "lists.ls", []byte(lsSource))
	job.Meta["repository"] = "git://example/lists"

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	require.Equal(t, StatusCompleted, snap.Status, snap.Progress.Errors)
	assert.Equal(t, "LiveScript", snap.Language)
	assert.Equal(t, 3, snap.Progress.EntitiesFound)
	assert.Equal(t, 3, snap.Progress.EntitiesStored)
	assert.Equal(t, 2, snap.Progress.LinksStored)
	assert.Nil(t, job.FileData(), "file bytes are released after processing")

	prefix := "memory/users/u1/documents/d1"
	node, ok := srv.Node(prefix + "/entities/0001-map")
	require.True(t, ok, srv.Keys())
	rec := node.Value.(map[string]any)
	assert.Equal(t, "g:Lists/map", rec["id"])
	assert.Equal(t, "lists.ls", rec["file"])
	assert.Equal(t, "git://example/lists", rec["repository"])
	assert.Equal(t, []any{}, rec["authors"])
	assert.Equal(t, 0.7, node.Salience)

	lists, ok := srv.Node(prefix + "/entities/0000-lists")
	require.True(t, ok)
	assert.Equal(t, []any{"Ada"}, lists.Value.(map[string]any)["authors"])
	_, ok = srv.Node(prefix + "/entities/0002-filter")
	assert.True(t, ok)

	meta, ok := srv.Node(prefix + "/meta")
	require.True(t, ok)
	mv := meta.Value.(map[string]any)
	assert.Equal(t, float64(3), mv["entities_stored"])
	assert.Equal(t, snap.ContentHash, mv["content_hash"])

	_, ok = srv.Node("memory/users/u1/documents/by_hash/" + snap.ContentHash + "/d1")
	assert.True(t, ok)

	links := srv.Links()
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, prefix+"/entities/0000-lists", l.From)
		assert.Equal(t, "contains", l.Summary)
	}
}

func TestWorker_ParseFailure(t *testing.T) {
	w, srv := newTestWorker(t)
	job := NewJob("u1", "d1", "bad.ls", []byte("## == A ==\n# .. dangling\n"))

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "parsing", snap.Phase)
	assert.Equal(t, 2, snap.Progress.ErrorLine)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "signature continuation")
	assert.Empty(t, srv.Keys())
}

func TestWorker_UnsupportedExtension(t *testing.T) {
	w, _ := newTestWorker(t)
	job := NewJob("u1", "d1", "notes.txt", []byte("x"))
	w.Process(context.Background(), job)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
}

func TestWorker_DuplicateSkipped(t *testing.T) {
	w, srv := newTestWorker(t)
	data := []byte(lsSource)
	srv.Seed(HashIndexPrefix("u1", ContentHashHex(data))+"/older", map[string]any{})

	job := NewJob("u1", "d2", "lists.ls", data)
	w.Process(context.Background(), job)
	assert.Equal(t, StatusDupSkipped, job.Snapshot().Status)

	forced := NewJob("u1", "d3", "lists.ls", data)
	forced.Force = true
	w.Process(context.Background(), forced)
	assert.Equal(t, StatusCompleted, forced.Snapshot().Status)
}

func TestWorker_RetriesTransientStoreErrors(t *testing.T) {
	w, srv := newTestWorker(t)
	w.maxConcurrentStore = 1
	// Dedup probe, then two transient failures on the first entity.
	srv.FailNext(http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusBadGateway)

	job := NewJob("u1", "d1", "lists.ls", []byte(lsSource))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status, snap.Progress.Errors)
	assert.Equal(t, 3, snap.Progress.EntitiesStored)
}

func TestWorker_PermanentStoreErrorIsPartial(t *testing.T) {
	w, srv := newTestWorker(t)
	w.maxConcurrentStore = 1
	// No dedup probe when forced, so the first entity write is rejected.
	job := NewJob("u1", "d1", "lists.ls", []byte(lsSource))
	job.Force = true
	srv.FailNext(http.StatusBadRequest)

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Equal(t, 2, snap.Progress.EntitiesStored)
	require.Len(t, snap.Progress.Errors, 1)
	assert.True(t, strings.HasPrefix(snap.Progress.Errors[0], "store g:Lists:"), snap.Progress.Errors[0])
	assert.Empty(t, srv.Links(), "children of a missing parent are not linked")
}

func TestWithRetry_GivesUp(t *testing.T) {
	w, srv := newTestWorker(t)
	srv.FailNext(500, 500, 500, 500)
	err := w.put(context.Background(), quiet, "k", pathstore.NodeRequest{Value: 1})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, MaxRetries, srv.Requests())
}

func TestBackoff(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d >= base+base/2 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v)", attempt, d, base, base+base/2)
		}
	}
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "d1", lastSegment("memory.users.u1.documents.by_hash.abc.d1"))
	assert.Equal(t, "d1", lastSegment("memory/users/u1/d1"))
	assert.Equal(t, "d1", lastSegment("d1"))
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	srv := pathstoretest.New(t)
	ps := srv.Client()
	defer ps.Close()

	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, MaxConcurrentStore: 2, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, extract.New(), ps, quiet)
	o.start(context.Background(), func(int) time.Duration { return 0 })

	job := NewJob("u1", "d1", "lists.ls", []byte(lsSource))
	require.NoError(t, o.Submit(job))
	assert.Same(t, job, o.GetJob(job.ID))

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	o.Stop()
	assert.Zero(t, o.QueueDepth())
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, MaxConcurrentStore: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, extract.New(), nil, quiet)

	require.NoError(t, o.Submit(NewJob("u1", "a", "a.ls", nil)))
	extra := NewJob("u1", "b", "b.ls", nil)
	err := o.Submit(extra)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, extra.Snapshot().Status)
	assert.Equal(t, 1, o.QueueDepth())
}
