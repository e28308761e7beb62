package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
}

func (p *recordingProcessor) Process(_ context.Context, job *Job) {
	p.mu.Lock()
	p.seen = append(p.seen, job.ID)
	p.mu.Unlock()
	job.SetStatus(StatusCompleted, "done")
	p.done <- struct{}{}
}

func TestOrchestrator_ProcessesSubmittedJobs(t *testing.T) {
	proc := &recordingProcessor{done: make(chan struct{}, 2)}
	o := NewOrchestrator(Options{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}, nil, proc, slog.Default())
	o.Start(context.Background())
	defer o.Stop()

	a := NewJob("p1", "prompt", "", "")
	b := NewJob("p2", "prompt", "", "")
	for _, j := range []*Job{a, b} {
		if err := o.Submit(j); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for range 2 {
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	if got := o.GetJob(a.ID); got == nil || got.Snapshot().Status != StatusCompleted {
		t.Errorf("expected job %s to be completed", a.ID)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	proc := &recordingProcessor{done: make(chan struct{}, 4)}
	o := NewOrchestrator(Options{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}, nil, proc, slog.Default())

	// Not started: the first job fills the queue.
	if err := o.Submit(NewJob("p1", "prompt", "", "")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	overflow := NewJob("p2", "prompt", "", "")
	if err := o.Submit(overflow); err == nil {
		t.Fatal("expected queue full error")
	}
	if snap := overflow.Snapshot(); snap.Status != StatusFailed || snap.Phase != "queue_full" {
		t.Errorf("expected queue_full failure, got %s/%s", snap.Status, snap.Phase)
	}
	if o.GetJob(overflow.ID) == nil {
		t.Error("rejected job should still be queryable")
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected depth 1, got %d", o.QueueDepth())
	}
}
