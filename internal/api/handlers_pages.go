package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/budget"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/go-chi/chi/v5"
)

const maxMarkdownBytes = 5 << 20

// handlePageMarkdown renders one page as annotated Markdown.
func (s *Server) handlePageMarkdown(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	doc, err := s.deps.Docs.Document(r.Context(), pageID)
	if err != nil {
		upstreamError(w, "fetch page", err)
		return
	}

	out := markdown.Render(doc)
	if unsupported := markdown.UnsupportedBlocks(doc); len(unsupported) > 0 {
		s.log.Warn("unsupported blocks rendered as text", "page_id", pageID, "count", len(unsupported))
		w.Header().Set("X-Unsupported-Blocks", strconv.Itoa(len(unsupported)))
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, out)
}

type sectionView struct {
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	BlockIDs   []string `json:"block_ids"`
	Truncated  bool     `json:"truncated"`
}

// handlePageContext assembles a page with everything it references.
func (s *Server) handlePageContext(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assembler == nil {
		jsonError(w, "context assembly unavailable", http.StatusServiceUnavailable)
		return
	}
	pageID := chi.URLParam(r, "pageID")
	q := r.URL.Query()

	maxSize := s.cfg.ContextMaxSize
	if v := q.Get("max_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "max_size must be a non-negative integer", http.StatusBadRequest)
			return
		}
		maxSize = n
	}
	a := *s.deps.Assembler
	if v := q.Get("unit"); v != "" {
		u, err := budget.ParseUnit(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.Unit = u
	}

	rc, err := a.Assemble(r.Context(), pageID, maxSize)
	if err != nil {
		upstreamError(w, "assemble context", err)
		return
	}

	sections := make([]sectionView, 0, len(rc.Sections))
	for _, sec := range rc.Sections {
		sections = append(sections, sectionView{
			DocumentID: sec.DocumentID,
			Title:      sec.Title,
			BlockIDs:   sec.BlockIDs,
			Truncated:  sec.Truncated,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"text":      rc.Text,
		"size":      rc.Size,
		"unit":      rc.Unit.String(),
		"max_size":  maxSize,
		"truncated": rc.Truncated,
		"sections":  sections,
	})
}

type blockView struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	Children []*blockView `json:"children,omitempty"`
}

func viewBlocks(blocks []*block.Block) []*blockView {
	out := make([]*blockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, &blockView{
			ID:       b.ID,
			Type:     b.Type(),
			Text:     block.PlainText(block.RichText(b.Payload)),
			Children: viewBlocks(b.Children),
		})
	}
	return out
}

// handleParse turns annotated Markdown into a block tree without writing
// anything.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	doc, ok := readMarkdown(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"page_id": doc.ID,
		"title":   doc.Title,
		"blocks":  viewBlocks(doc.Blocks),
	})
}

// handleWritePage applies annotated Markdown to an existing page.
func (s *Server) handleWritePage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Writer == nil {
		jsonError(w, "write-back unavailable", http.StatusServiceUnavailable)
		return
	}
	pageID := chi.URLParam(r, "pageID")
	doc, ok := readMarkdown(w, r)
	if !ok {
		return
	}
	if doc.ID != "" && assemble.NormalizeID(doc.ID) != assemble.NormalizeID(pageID) {
		jsonError(w, fmt.Sprintf("document header names page %s, not %s", doc.ID, pageID), http.StatusConflict)
		return
	}

	res, err := s.deps.Writer.Apply(r.Context(), pageID, doc.Blocks)
	if err != nil {
		s.log.Error("write-back failed", "page_id", pageID, "error", err)
		upstreamError(w, "write page", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func readMarkdown(w http.ResponseWriter, r *http.Request) (*block.Document, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxMarkdownBytes+1))
	if err != nil {
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	if len(data) > maxMarkdownBytes {
		jsonError(w, fmt.Sprintf("body exceeds max size (%d bytes)", maxMarkdownBytes), http.StatusRequestEntityTooLarge)
		return nil, false
	}
	doc, err := markdown.Parse(string(data))
	if err != nil {
		var perr *markdown.ParseError
		if errors.As(err, &perr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{"error": perr.Msg, "line": perr.Line})
			return nil, false
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return doc, true
}

// upstreamError maps Notion failures to a response status.
func upstreamError(w http.ResponseWriter, what string, err error) {
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound, http.StatusForbidden, http.StatusBadRequest:
			jsonError(w, fmt.Sprintf("%s: %s", what, err), apiErr.StatusCode)
			return
		}
	}
	jsonError(w, fmt.Sprintf("%s: %s", what, err), http.StatusBadGateway)
}
