package api

import (
	"encoding/json"
	"net/http"
)

// handleLatencyStats reports recent timings of each review phase.
func (s *Server) handleLatencyStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Timings == nil {
		jsonError(w, "latency stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model":  s.deps.Model,
		"phases": s.deps.Timings.Snapshot(),
	})
}
