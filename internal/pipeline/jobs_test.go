package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusStoring, "storing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_SetStatusFailed(t *testing.T) {
	job := &Job{
		ID:        "test-fail",
		Status:    StatusStoring,
		UpdatedAt: time.Now(),
	}
	job.SetStatus(StatusFailed, "storing")
	if job.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, job.Status)
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("store g:A: boom")
	job.AddError("store g:B: boom")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "store g:A: boom" {
		t.Errorf("expected first error %q, got %q", "store g:A: boom", snap.Progress.Errors[0])
	}
}

func TestJob_IncrEntitiesStored(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.SetEntitiesFound(5)
	job.IncrEntitiesStored()
	job.IncrEntitiesStored()
	job.IncrEntitiesStored()
	job.IncrLinksStored()

	snap := job.Snapshot()
	if snap.Progress.EntitiesFound != 5 {
		t.Errorf("expected 5 entities found, got %d", snap.Progress.EntitiesFound)
	}
	if snap.Progress.EntitiesStored != 3 {
		t.Errorf("expected 3 entities stored, got %d", snap.Progress.EntitiesStored)
	}
	if snap.Progress.LinksStored != 1 {
		t.Errorf("expected 1 link stored, got %d", snap.Progress.LinksStored)
	}
}

func TestJob_ErrorLineAndLanguage(t *testing.T) {
	job := &Job{ID: "line-test"}
	job.SetErrorLine(12)
	job.SetLanguage("LiveScript")
	job.SetContentHash("abc")

	snap := job.Snapshot()
	if snap.Progress.ErrorLine != 12 {
		t.Errorf("expected error line 12, got %d", snap.Progress.ErrorLine)
	}
	if snap.Language != "LiveScript" || snap.ContentHash != "abc" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestNewJob(t *testing.T) {
	data := []byte("## == A ==\n")
	a := NewJob("u1", "", "a.ls", data)
	b := NewJob("u1", "doc-b", "a.ls", data)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.DocID != ContentHashHex(data)[:16] {
		t.Errorf("expected doc id from content hash, got %q", a.DocID)
	}
	if b.DocID != "doc-b" {
		t.Errorf("expected explicit doc id, got %q", b.DocID)
	}
	if a.Status != StatusQueued || string(a.FileData()) != string(data) {
		t.Errorf("unexpected initial job state %+v", a.Snapshot())
	}
}

func TestJob_MetaIsCopied(t *testing.T) {
	job := &Job{ID: "meta-test"}
	m := job.meta()
	m["file"] = "x"
	if job.Meta != nil {
		t.Error("expected nil job meta to stay untouched")
	}

	job.Meta = map[string]any{"author": "Ada"}
	m = job.meta()
	m["author"] = "Bob"
	if job.Meta["author"] != "Ada" {
		t.Error("expected meta copy to be independent")
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	got := job.FileData()
	if string(got) != string(data) {
		t.Errorf("expected file data %q, got %q", data, got)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
