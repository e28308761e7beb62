package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/config"
	"github.com/dgallion1/notionmd/internal/latency"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/dgallion1/notionmd/internal/pipeline"
	"github.com/dgallion1/notionmd/internal/writeback"
)

const (
	pageID   = "9bc30ad44f2a4c378c5c1a2b3c4d5e6f"
	promptID = "11111111-2222-3333-4444-555555555555"
)

type fakeDocs map[string]*block.Document

func (f fakeDocs) Document(_ context.Context, id string) (*block.Document, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, &notion.APIError{StatusCode: http.StatusNotFound, Code: "object_not_found", Message: "missing"}
}

type fakeWriter struct {
	pageID string
	blocks []*block.Block
}

func (f *fakeWriter) Apply(_ context.Context, pageID string, blocks []*block.Block) (*writeback.Result, error) {
	f.pageID, f.blocks = pageID, blocks
	return &writeback.Result{Updated: 1, Created: len(blocks) - 1}, nil
}

type idleProcessor struct{}

func (idleProcessor) Process(context.Context, *pipeline.Job) {}

func para(id, text string) *block.Block {
	return &block.Block{ID: id, Payload: block.Paragraph{RichText: []block.Span{{Content: text}}}}
}

func newTestServer(t *testing.T, token string) (*Server, *fakeWriter, *pipeline.Orchestrator) {
	t.Helper()
	docs := fakeDocs{
		pageID: {ID: pageID, Title: "Plan", Blocks: []*block.Block{
			para("b1", "Intro"),
			{ID: "b2", Payload: block.Paragraph{RichText: []block.Span{
				{Content: "See "},
				{Content: "Other", Mention: &block.Mention{Type: "page", ID: "other"}},
			}}},
			{ID: "u1", Payload: block.Unsupported{Kind: "embed"}},
		}},
		"other": {ID: "other", Title: "Other", Blocks: []*block.Block{para("o1", "Details")}},
	}

	writer := &fakeWriter{}
	orch := pipeline.NewOrchestrator(pipeline.Options{WorkerCount: 1, MaxQueueSize: 2, JobTTL: time.Hour}, nil, idleProcessor{}, slog.Default())
	cfg := config.Config{ClientToken: token, AnthropicModel: "claude-default", ContextMaxSize: 0, ContextUnit: "bytes"}
	s := NewServer(Deps{
		Jobs:      orch,
		Docs:      docs,
		Assembler: &assemble.Assembler{Docs: docs},
		Writer:    writer,
		Timings:   latency.New(0),
		Model:     "claude-default",
	}, slog.Default(), cfg)
	return s, writer, orch
}

func do(t *testing.T, s http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth_NoAuth(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")
	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"missing", "/api/stats/latency", nil, http.StatusUnauthorized},
		{"wrong bearer", "/api/stats/latency", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/api/stats/latency", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"query token", "/api/stats/latency?client_token=secret", nil, http.StatusOK},
		{"wrong query token", "/api/stats/latency?client_token=x", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodGet, tt.target, "", tt.header); rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
	}
}

func TestWebhook_QueuesJob(t *testing.T) {
	s, _, orch := newTestServer(t, "secret")
	body := fmt.Sprintf(`{"source":{"type":"automation"},"data":{"object":"page","id":%q},"request_id":"r-1"}`, pageID)
	rec := do(t, s, http.MethodPost, "/api/webhook?client_token=secret&prompt_id="+promptID, body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	jobID, _ := out["job_id"].(string)
	job := orch.GetJob(jobID)
	if job == nil {
		t.Fatalf("job %q not stored", jobID)
	}
	snap := job.Snapshot()
	if snap.PageID != "9bc30ad4-4f2a-4c37-8c5c-1a2b3c4d5e6f" || snap.PromptID != promptID {
		t.Errorf("ids not normalised: %+v", snap)
	}
	if snap.Model != "claude-default" || snap.RequestID != "r-1" {
		t.Errorf("unexpected model/request id: %+v", snap)
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/"+jobID+"?client_token=secret", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "queued" {
		t.Errorf("unexpected job status response %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhook_Validation(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	good := fmt.Sprintf(`{"data":{"id":%q}}`, pageID)
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing prompt", "/api/webhook", good},
		{"bad prompt id", "/api/webhook?prompt_id=not-an-id", good},
		{"missing page", "/api/webhook?prompt_id=" + promptID, `{"data":{}}`},
		{"bad json", "/api/webhook?prompt_id=" + promptID, `{`},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodPost, tt.target, tt.body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, rec.Code)
		}
	}
}

func TestWebhook_QueueFull(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	body := fmt.Sprintf(`{"data":{"id":%q}}`, pageID)
	target := "/api/webhook?prompt_id=" + promptID + "&model=claude-x"
	var last int
	for range 3 {
		last = do(t, s, http.MethodPost, target, body, nil).Code
	}
	if last != http.StatusServiceUnavailable {
		t.Errorf("expected 503 once the queue is full, got %d", last)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	if rec := do(t, s, http.MethodGet, "/api/jobs/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPageMarkdown(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec := do(t, s, http.MethodGet, "/api/pages/"+pageID+"/markdown", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"page_id: " + pageID, "block_id: b1\nIntro", "[Other](mention:page:other)"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in:\n%s", want, body)
		}
	}
	if rec.Header().Get("X-Unsupported-Blocks") != "1" {
		t.Errorf("expected unsupported block count header, got %q", rec.Header().Get("X-Unsupported-Blocks"))
	}

	if rec := do(t, s, http.MethodGet, "/api/pages/missing/markdown", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing page, got %d", rec.Code)
	}
}

func TestPageContext(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec := do(t, s, http.MethodGet, "/api/pages/"+pageID+"/context", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if sections, _ := out["sections"].([]any); len(sections) != 2 {
		t.Errorf("expected the referenced page to be included, got %v", out["sections"])
	}
	if out["truncated"] != false || out["unit"] != "bytes" {
		t.Errorf("unexpected context response %v", out)
	}

	rec = do(t, s, http.MethodGet, "/api/pages/"+pageID+"/context?max_size=60&unit=runes", "", nil)
	out = decode(t, rec)
	if out["truncated"] != true || out["unit"] != "runes" {
		t.Errorf("expected a truncated runes context, got %v", out)
	}

	for _, q := range []string{"max_size=-1", "max_size=x", "unit=pages"} {
		if rec := do(t, s, http.MethodGet, "/api/pages/"+pageID+"/context?"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestParse(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	rec := do(t, s, http.MethodPost, "/api/markdown/parse", "block_id: a\n# Title\n\n- item\n\n  block_id: c\n  child", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Blocks []*blockView `json:"blocks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Blocks) != 2 || out.Blocks[0].ID != "a" || out.Blocks[0].Type != "heading_1" {
		t.Fatalf("unexpected blocks %+v", out.Blocks)
	}
	if kids := out.Blocks[1].Children; len(kids) != 1 || kids[0].ID != "c" || kids[0].Text != "child" {
		t.Errorf("unexpected children %+v", kids)
	}

	rec = do(t, s, http.MethodPost, "/api/markdown/parse", "```go\nno end", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unterminated fence, got %d", rec.Code)
	}
	if line, _ := decode(t, rec)["line"].(float64); line != 1 {
		t.Errorf("expected line 1, got %v", line)
	}
}

func TestWritePage(t *testing.T) {
	s, writer, _ := newTestServer(t, "")
	md := "---\npage_id: 9bc30ad4-4f2a-4c37-8c5c-1a2b3c4d5e6f\n---\n\nblock_id: b1\nIntro edited\n\nNew paragraph"
	rec := do(t, s, http.MethodPut, "/api/pages/"+pageID+"/markdown", md, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if writer.pageID != pageID || len(writer.blocks) != 2 || writer.blocks[0].ID != "b1" {
		t.Errorf("unexpected apply call %q %+v", writer.pageID, writer.blocks)
	}
	if out := decode(t, rec); out["updated"] != float64(1) || out["created"] != float64(1) {
		t.Errorf("unexpected result %v", out)
	}

	mismatch := "---\npage_id: other\n---\n\nText"
	if rec := do(t, s, http.MethodPut, "/api/pages/"+pageID+"/markdown", mismatch, nil); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a header naming another page, got %d", rec.Code)
	}
}

func TestLatencyStats(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	s.deps.Timings.Observe(latency.PhaseAssemble, 40*time.Millisecond, nil)
	s.deps.Timings.Observe(latency.PhaseLLMCall, 900*time.Millisecond, errors.New("overloaded"))

	out := decode(t, do(t, s, http.MethodGet, "/api/stats/latency", "", nil))
	if out["model"] != "claude-default" {
		t.Errorf("unexpected model %v", out["model"])
	}
	phases, ok := out["phases"].(map[string]any)
	if !ok {
		t.Fatalf("expected phases object, got %v", out["phases"])
	}
	call, _ := phases[latency.PhaseLLMCall].(map[string]any)
	if call["count"] != float64(1) || call["failures"] != float64(1) || call["max_ms"] != float64(900) {
		t.Errorf("unexpected llm_call summary %v", call)
	}
	if _, ok := phases[latency.PhaseAssemble]; !ok {
		t.Errorf("expected assemble phase in %v", phases)
	}
}

func TestLatencyStats_Unavailable(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	s.deps.Timings = nil
	if rec := do(t, s, http.MethodGet, "/api/stats/latency", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a tracker, got %d", rec.Code)
	}
}
