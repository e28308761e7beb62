package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a review job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusAssembling JobStatus = "assembling"
	StatusPrompting  JobStatus = "prompting"
	StatusCommenting JobStatus = "commenting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the review of one changed page against one prompt page.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	PageID    string `json:"page_id"`
	PromptID  string `json:"prompt_id"`
	Model     string `json:"model,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Title  string    `json:"title"`

	Progress Progress `json:"progress"`

	ContextHash string    `json:"context_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	ContextSize    int      `json:"context_size"`
	ContextUnit    string   `json:"context_unit"`
	Documents      int      `json:"documents"`
	Truncated      bool     `json:"truncated"`
	ToolCalls      int      `json:"tool_calls"`
	CommentsPosted int      `json:"comments_posted"`
	Errors         []string `json:"errors"`
}

// NewJob returns a queued job for reviewing pageID with promptID.
func NewJob(pageID, promptID, model, requestID string) *Job {
	now := time.Now()
	return &Job{
		ID:        newJobID(),
		PageID:    pageID,
		PromptID:  promptID,
		Model:     model,
		RequestID: requestID,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newJobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// JobStore is a thread-safe in-memory job registry with TTL eviction. It
// also remembers which contexts were reviewed recently so repeated webhook
// deliveries for an unchanged page are skipped.
type JobStore struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	reviewed map[string]time.Time
	ttl      time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs:     make(map[string]*Job),
		reviewed: make(map[string]time.Time),
		ttl:      ttl,
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

// MarkReviewed records key and reports whether it was not already recorded
// within the TTL.
func (s *JobStore) MarkReviewed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if at, ok := s.reviewed[key]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	s.reviewed[key] = now
	return true
}

// Forget drops key so the same context can be reviewed again.
func (s *JobStore) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reviewed, key)
}

// Cleanup removes expired jobs and review markers.
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
	for key, at := range s.reviewed {
		if now.Sub(at) > s.ttl {
			delete(s.reviewed, key)
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

// SetTitle records the reviewed page title.
func (j *Job) SetTitle(title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Title = title
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

// HasErrors reports whether any error was recorded.
func (j *Job) HasErrors() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.errors) > 0
}

// SetContext records the assembled context.
func (j *Job) SetContext(size int, unit string, documents int, truncated bool, hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ContextSize = size
	j.Progress.ContextUnit = unit
	j.Progress.Documents = documents
	j.Progress.Truncated = truncated
	j.ContextHash = hash
	j.UpdatedAt = time.Now()
}

// IncrToolCalls counts one tool call from the model.
func (j *Job) IncrToolCalls() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ToolCalls++
	j.UpdatedAt = time.Now()
}

// IncrCommentsPosted counts one comment written to Notion.
func (j *Job) IncrCommentsPosted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.CommentsPosted++
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	PageID      string    `json:"page_id"`
	PromptID    string    `json:"prompt_id"`
	Model       string    `json:"model,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Title       string    `json:"title"`
	Progress    Progress  `json:"progress"`
	ContextHash string    `json:"context_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	progress := j.Progress
	progress.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		PageID:      j.PageID,
		PromptID:    j.PromptID,
		Model:       j.Model,
		RequestID:   j.RequestID,
		Status:      j.Status,
		Phase:       j.Phase,
		Title:       j.Title,
		Progress:    progress,
		ContextHash: j.ContextHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
