package pipeline

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/legalparse/internal/hierarchy"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusReading    JobStatus = "reading"
	StatusParsing    JobStatus = "parsing"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped:
		return true
	}
	return false
}

// Job tracks the state of a single act ingestion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *hierarchy.Result
	rootID   string
	dupOf    string
	errors   []string
}

// Progress tracks processing progress. Nodes counts tree nodes including the
// synthetic root, so a fully stored act has NodesStored == Nodes.
type Progress struct {
	Lines       int      `json:"lines"`
	Nodes       int      `json:"nodes"`
	Diagnostics int      `json:"diagnostics"`
	NodesStored int      `json:"nodes_stored"`
	Errors      []string `json:"errors"`
}

// NewJob creates a queued job. An empty docID gets a fresh one.
func NewJob(filename, docID, title string) *Job {
	now := time.Now()
	if docID == "" {
		docID = uuid.NewString()
	}
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
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

// Cleanup removes finished jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
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
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetParsed stores the parse result and its counts.
func (j *Job) SetParsed(res *hierarchy.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.Progress.Lines = res.Lines
	j.Progress.Nodes = res.Tree.Len() + 1
	j.Progress.Diagnostics = len(res.Diagnostics)
	j.UpdatedAt = time.Now()
}

// Result returns the parse result, or nil before parsing finished.
func (j *Job) Result() *hierarchy.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// AddStored records persisted node counts.
func (j *Job) AddStored(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.NodesStored += n
	j.UpdatedAt = time.Now()
}

// SetRootRecord remembers the record ID of the stored root.
func (j *Job) SetRootRecord(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rootID = id
}

// SetDuplicateOf marks the job as a repeat of an already stored document.
func (j *Job) SetDuplicateOf(docID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dupOf = docID
}

// SetContentHash records the dedup hash of the extracted lines.
func (j *Job) SetContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// SetTitle sets the title when the caller supplied none.
func (j *Job) SetTitle(title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Title == "" {
		j.Title = title
	}
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

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID           string    `json:"job_id"`
	DocID        string    `json:"doc_id"`
	Status       JobStatus `json:"status"`
	Phase        string    `json:"phase"`
	Filename     string    `json:"filename"`
	Title        string    `json:"title"`
	ContentHash  string    `json:"content_hash,omitempty"`
	RootRecordID string    `json:"root_record_id,omitempty"`
	DuplicateOf  string    `json:"duplicate_of,omitempty"`
	Progress     Progress  `json:"progress"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:           j.ID,
		DocID:        j.DocID,
		Status:       j.Status,
		Phase:        j.Phase,
		Filename:     j.Filename,
		Title:        j.Title,
		ContentHash:  j.ContentHash,
		RootRecordID: j.rootID,
		DuplicateOf:  j.dupOf,
		Progress:     p,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// LinesHash hashes extracted lines so that re-uploads of the same act in a
// different container format dedup to one document.
func LinesHash(lines []string) string {
	return ContentHashHex([]byte(strings.Join(lines, "\n")))
}
