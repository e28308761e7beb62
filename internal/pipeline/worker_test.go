package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/budget"
	"github.com/dgallion1/notionmd/internal/latency"
	"github.com/dgallion1/notionmd/internal/llm"
	"github.com/dgallion1/notionmd/internal/writeback"
)

const blockID = "9bc30ad4-4f2a-4c37-8c5c-1a2b3c4d5e6f"

type fakeDocs struct {
	docs map[string]*block.Document
}

func (f *fakeDocs) Document(_ context.Context, id string) (*block.Document, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, errors.New("object_not_found")
}

type fakeContexts struct {
	rc  *assemble.RenderedContext
	err error
}

func (f *fakeContexts) Assemble(context.Context, string, int) (*assemble.RenderedContext, error) {
	return f.rc, f.err
}

type postedComment struct {
	target      writeback.Target
	text        string
	displayName string
}

type fakeComments struct {
	mu     sync.Mutex
	posted []postedComment
	fail   bool
}

func (f *fakeComments) Comment(_ context.Context, target writeback.Target, md, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("restricted_resource")
	}
	f.posted = append(f.posted, postedComment{target, md, displayName})
	return "c", nil
}

type scripted struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
}

func (s *scripted) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return &llm.Response{StopReason: "end_turn"}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func toolUse(id, target, comment string) llm.ContentBlock {
	input, _ := json.Marshal(llm.CommentArgs{BlockID: target, CommentMarkdown: comment})
	return llm.ContentBlock{Type: "tool_use", ID: id, Name: llm.CommentToolName, Input: input}
}

func reviewFixture() (*fakeDocs, *fakeContexts) {
	docs := &fakeDocs{docs: map[string]*block.Document{
		"prompt": {ID: "prompt", Title: "Reviewer", Blocks: []*block.Block{
			{ID: "p1", Payload: block.Paragraph{RichText: []block.Span{{Content: "Be strict."}}}},
		}},
	}}
	rootText := "---\npage_id: page\ntitle: Plan\n---\n\nblock_id: " + blockID + "\nShip it"
	contexts := &fakeContexts{rc: &assemble.RenderedContext{
		Text: rootText,
		Size: len(rootText),
		Unit: budget.Bytes,
		Sections: []assemble.Section{
			{DocumentID: "page", Title: "Plan", Text: rootText, BlockIDs: []string{blockID}},
		},
	}}
	return docs, contexts
}

func TestWorker_Review(t *testing.T) {
	docs, contexts := reviewFixture()
	comments := &fakeComments{}
	model := &scripted{responses: []*llm.Response{
		{StopReason: "tool_use", Content: []llm.ContentBlock{
			toolUse("t1", strings.ReplaceAll(blockID, "-", ""), "**Why** now?"),
			toolUse("t2", "deadbeef", "Missing owner"),
		}},
		{StopReason: "end_turn", Content: []llm.ContentBlock{{Type: "text", Text: "Overall fine."}}},
	}}
	w := NewWorker(docs, contexts, model, comments, NewJobStore(time.Hour), slog.Default(), WorkerOptions{})

	job := NewJob("page", "prompt", "claude-test", "req")
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Title != "Plan" || snap.Progress.ToolCalls != 2 || snap.Progress.CommentsPosted != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	want := []postedComment{
		{writeback.Target{PageID: "page", BlockID: blockID}, "**Why** now?", "Reviewer"},
		{writeback.Target{PageID: "page"}, "Missing owner", "Reviewer"},
		{writeback.Target{PageID: "page"}, "Overall fine.", "Reviewer"},
	}
	if len(comments.posted) != len(want) {
		t.Fatalf("expected %d comments, got %+v", len(want), comments.posted)
	}
	for i := range want {
		if comments.posted[i] != want[i] {
			t.Errorf("comment %d: got %+v, want %+v", i, comments.posted[i], want[i])
		}
	}

	if len(model.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(model.requests))
	}
	first := model.requests[0]
	if first.Model != "claude-test" || !strings.Contains(first.System, "Be strict.") || !strings.Contains(first.System, "# Reviewer") {
		t.Errorf("unexpected first request model=%q system=%q", first.Model, first.System)
	}
	if len(first.Tools) != 1 || first.Tools[0].Name != llm.CommentToolName {
		t.Errorf("expected the comment tool, got %+v", first.Tools)
	}
	if got := first.Messages[0].Content[0].Text; got != contexts.rc.Text {
		t.Errorf("user message should be the assembled context, got %q", got)
	}
}

func TestWorker_DuplicateContextSkipped(t *testing.T) {
	docs, contexts := reviewFixture()
	store := NewJobStore(time.Hour)
	model := &scripted{}
	w := NewWorker(docs, contexts, model, &fakeComments{}, store, slog.Default(), WorkerOptions{})

	first := NewJob("page", "prompt", "", "")
	w.Process(context.Background(), first)
	second := NewJob("page", "prompt", "", "")
	w.Process(context.Background(), second)

	if got := first.Snapshot().Status; got != StatusCompleted {
		t.Errorf("first review: expected completed, got %s", got)
	}
	if got := second.Snapshot().Status; got != StatusDupSkipped {
		t.Errorf("second review: expected duplicate_skipped, got %s", got)
	}
	if len(model.requests) != 1 {
		t.Errorf("expected one model call, got %d", len(model.requests))
	}
}

func TestWorker_PromptMissing(t *testing.T) {
	_, contexts := reviewFixture()
	w := NewWorker(&fakeDocs{}, contexts, &scripted{}, &fakeComments{}, nil, slog.Default(), WorkerOptions{})
	job := NewJob("page", "missing", "", "")
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "fetching prompt" {
		t.Errorf("expected failure while fetching prompt, got %s/%s", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected one error, got %v", snap.Progress.Errors)
	}
}

func TestWorker_ContextFailure(t *testing.T) {
	docs, _ := reviewFixture()
	w := NewWorker(docs, &fakeContexts{err: errors.New("fetch page: 404")}, &scripted{}, &fakeComments{}, nil, slog.Default(), WorkerOptions{})
	job := NewJob("page", "prompt", "", "")
	w.Process(context.Background(), job)

	if got := job.Snapshot().Status; got != StatusFailed {
		t.Errorf("expected failed, got %s", got)
	}
}

func TestWorker_CommentFailures(t *testing.T) {
	docs, contexts := reviewFixture()
	model := &scripted{responses: []*llm.Response{
		{StopReason: "tool_use", Content: []llm.ContentBlock{toolUse("t1", blockID, "Fix")}},
		{StopReason: "end_turn", Content: []llm.ContentBlock{{Type: "text", Text: "Done"}}},
	}}
	w := NewWorker(docs, contexts, model, &fakeComments{fail: true}, nil, slog.Default(), WorkerOptions{})
	job := NewJob("page", "prompt", "", "")
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected failed when nothing was posted, got %s", snap.Status)
	}
	if len(snap.Progress.Errors) != 2 {
		t.Errorf("expected tool and final comment errors, got %v", snap.Progress.Errors)
	}
	results := model.requests[1].Messages[2].Content
	if len(results) != 1 || !results[0].IsError {
		t.Errorf("expected failed tool result to reach the model, got %+v", results)
	}
}

func TestWorker_InvalidToolArgs(t *testing.T) {
	docs, contexts := reviewFixture()
	bad := llm.ContentBlock{Type: "tool_use", ID: "t1", Name: llm.CommentToolName, Input: json.RawMessage(`{"block_id": "", "comment_markdown": "x"}`)}
	model := &scripted{responses: []*llm.Response{
		{StopReason: "tool_use", Content: []llm.ContentBlock{bad}},
	}}
	comments := &fakeComments{}
	w := NewWorker(docs, contexts, model, comments, nil, slog.Default(), WorkerOptions{})
	job := NewJob("page", "prompt", "", "")
	w.Process(context.Background(), job)

	if len(comments.posted) != 0 {
		t.Errorf("invalid arguments should not be posted, got %+v", comments.posted)
	}
	if got := job.Snapshot().Status; got != StatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestWorker_RecordsPhaseTimings(t *testing.T) {
	docs, contexts := reviewFixture()
	model := &scripted{responses: []*llm.Response{
		{StopReason: "tool_use", Content: []llm.ContentBlock{toolUse("t1", blockID, "Fix")}},
		{StopReason: "end_turn", Content: []llm.ContentBlock{{Type: "text", Text: "Done"}}},
	}}
	timings := latency.New(0)
	w := NewWorker(docs, contexts, model, &fakeComments{}, nil, slog.Default(), WorkerOptions{Timings: timings})
	w.Process(context.Background(), NewJob("page", "prompt", "", ""))

	got := timings.Snapshot()
	for phase, count := range map[string]int{
		latency.PhasePromptFetch: 1,
		latency.PhaseAssemble:    1,
		latency.PhaseReview:      1,
		latency.PhaseComment:     2,
	} {
		if got[phase].Count != count || got[phase].Failures != 0 {
			t.Errorf("%s: got %+v, want %d successful samples", phase, got[phase], count)
		}
	}
}

func TestWorker_RecordsFailedPhase(t *testing.T) {
	docs, _ := reviewFixture()
	timings := latency.New(0)
	w := NewWorker(docs, &fakeContexts{err: errors.New("fetch page: 404")}, &scripted{}, &fakeComments{}, nil, slog.Default(), WorkerOptions{Timings: timings})
	w.Process(context.Background(), NewJob("page", "prompt", "", ""))

	got := timings.Snapshot()
	if got[latency.PhaseAssemble].Failures != 1 {
		t.Errorf("expected a failed assemble sample, got %+v", got[latency.PhaseAssemble])
	}
	if _, ok := got[latency.PhaseReview]; ok {
		t.Error("review should not run after a failed assembly")
	}
}

func TestPageBlockIDs(t *testing.T) {
	rc := &assemble.RenderedContext{Sections: []assemble.Section{{
		Text: "block_id: A1\n- one\n\n  block_id: " + blockID + "\n  nested",
	}}}
	ids := pageBlockIDs(rc)
	if ids["a1"] != "A1" {
		t.Errorf("expected lowercase key for A1, got %v", ids)
	}
	if ids[blockID] != blockID {
		t.Errorf("expected nested id to be restored, got %v", ids)
	}
	if len(pageBlockIDs(&assemble.RenderedContext{})) != 0 {
		t.Error("expected no ids without sections")
	}
}
