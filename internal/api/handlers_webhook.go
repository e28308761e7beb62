package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxWebhookBytes = 1 << 20

var notionIDRe = regexp.MustCompile(`^[0-9A-Fa-f-]{32,36}$`)

// webhookPayload is the body Notion automations send.
type webhookPayload struct {
	Data struct {
		Object string `json:"object"`
		ID     string `json:"id"`
	} `json:"data"`
	RequestID string `json:"request_id"`
}

type webhookParams struct {
	PageID   string
	PromptID string
	Model    string
}

func (p webhookParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PageID, validation.Required.Error("data.id is required"), validation.Match(notionIDRe)),
		validation.Field(&p.PromptID, validation.Required.Error("prompt_id query parameter is required"), validation.Match(notionIDRe)),
		validation.Field(&p.Model, validation.Length(0, 100)),
	)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)

	var body webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	params := webhookParams{
		PageID:   strings.TrimSpace(body.Data.ID),
		PromptID: strings.TrimSpace(q.Get("prompt_id")),
		Model:    strings.TrimSpace(q.Get("model")),
	}
	if err := params.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.Model == "" {
		params.Model = s.cfg.AnthropicModel
	}
	requestID := body.RequestID
	if requestID == "" {
		requestID = middleware.GetReqID(r.Context())
	}

	job := pipeline.NewJob(assemble.NormalizeID(params.PageID), assemble.NormalizeID(params.PromptID), params.Model, requestID)
	if err := s.deps.Jobs.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"page_id":    job.PageID,
		"prompt_id":  job.PromptID,
		"request_id": job.RequestID,
		"status":     job.Status,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
