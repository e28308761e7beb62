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

func TestNewJob(t *testing.T) {
	a := NewJob("page", "prompt", "", "req-1")
	b := NewJob("page", "prompt", "", "req-2")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique job ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != StatusQueued || a.PageID != "page" || a.PromptID != "prompt" || a.RequestID != "req-1" {
		t.Errorf("unexpected job %+v", a.Snapshot())
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
		{StatusFetching, "fetching prompt"},
		{StatusAssembling, "assembling context"},
		{StatusPrompting, "prompting"},
		{StatusCommenting, "commenting"},
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

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	if job.HasErrors() {
		t.Error("new job should have no errors")
	}
	job.AddError("comment 1 failed")
	job.AddError("comment 2 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "comment 1 failed" {
		t.Errorf("expected first error %q, got %q", "comment 1 failed", snap.Progress.Errors[0])
	}
	if !job.HasErrors() {
		t.Error("expected HasErrors after AddError")
	}
}

func TestJob_Counters(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.IncrToolCalls()
	job.IncrToolCalls()
	job.IncrCommentsPosted()
	job.SetContext(1200, "bytes", 3, true, "abc")

	snap := job.Snapshot()
	if snap.Progress.ToolCalls != 2 || snap.Progress.CommentsPosted != 1 {
		t.Errorf("unexpected counters %+v", snap.Progress)
	}
	if snap.Progress.ContextSize != 1200 || snap.Progress.Documents != 3 || !snap.Progress.Truncated || snap.ContextHash != "abc" {
		t.Errorf("unexpected context progress %+v", snap)
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

func TestJob_SnapshotIsCopy(t *testing.T) {
	job := &Job{ID: "copy-test", UpdatedAt: time.Now()}
	job.AddError("first")
	snap := job.Snapshot()
	snap.Progress.Errors[0] = "changed"
	if got := job.Snapshot().Progress.Errors[0]; got != "first" {
		t.Errorf("snapshot shares errors with the job: %q", got)
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
	store.MarkReviewed("old-context")

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
	if !store.MarkReviewed("old-context") {
		t.Error("expected expired review marker to be cleaned up")
	}
}

func TestJobStore_MarkReviewed(t *testing.T) {
	store := NewJobStore(time.Hour)
	if !store.MarkReviewed("k") {
		t.Error("first mark should report new")
	}
	if store.MarkReviewed("k") {
		t.Error("second mark should report seen")
	}
	store.Forget("k")
	if !store.MarkReviewed("k") {
		t.Error("mark after Forget should report new")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
