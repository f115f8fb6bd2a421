package pipeline

import (
	"crypto/sha256"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single source file ingestion.
type Job struct {
	mu sync.Mutex

	ID     string `json:"job_id"`
	DocID  string `json:"doc_id"`
	UserID string `json:"user_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Language string    `json:"language,omitempty"`

	// Meta is broadcast to every entity of the file.
	Meta map[string]any `json:"-"`
	// Force skips duplicate detection.
	Force bool `json:"-"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData  []byte
	errors    []string
	errorLine int
}

// Progress tracks processing progress.
type Progress struct {
	EntitiesFound  int      `json:"entities_found"`
	EntitiesStored int      `json:"entities_stored"`
	LinksStored    int      `json:"links_stored"`
	ErrorLine      int      `json:"error_line,omitempty"`
	Errors         []string `json:"errors"`
}

// NewJob returns a queued job with a fresh id.
func NewJob(userID, docID, filename string, data []byte) *Job {
	now := time.Now()
	if docID == "" {
		docID = ContentHashHex(data)[:16]
	}
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		UserID:    userID,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Meta:      map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// SetErrorLine records the source line a parse failure points at.
func (j *Job) SetErrorLine(line int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errorLine = line
}

// SetLanguage records the detected source language.
func (j *Job) SetLanguage(lang string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Language = lang
}

// SetContentHash records the hash used for duplicate detection.
func (j *Job) SetContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// SetEntitiesFound records how many entities the parse produced.
func (j *Job) SetEntitiesFound(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.EntitiesFound = n
	j.UpdatedAt = time.Now()
}

// IncrEntitiesStored atomically increments stored entities.
func (j *Job) IncrEntitiesStored() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.EntitiesStored++
	j.UpdatedAt = time.Now()
}

// IncrLinksStored atomically increments stored parent links.
func (j *Job) IncrLinksStored() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.LinksStored++
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the file bytes once processing is over so finished
// jobs waiting for TTL eviction do not pin uploads in memory.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	UserID      string    `json:"user_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Language    string    `json:"language,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	Progress    Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	p := j.Progress
	p.ErrorLine = j.errorLine
	p.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		UserID:      j.UserID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Language:    j.Language,
		ContentHash: j.ContentHash,
		Progress:    p,
	}
}

// meta returns a copy of the job metadata.
func (j *Job) meta() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Meta == nil {
		return map[string]any{}
	}
	return maps.Clone(j.Meta)
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
