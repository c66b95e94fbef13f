package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	kerrors "github.com/keepstack/keeprag/internal/errors"
	"github.com/keepstack/keeprag/internal/search"
)

type queryRequest struct {
	Question       string  `json:"question"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
	Mode           string  `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestResponse struct {
	OK      bool `json:"ok"`
	Handled int  `json:"handled"`
}

type ingestError struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// handleQuery serves POST /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	resp, err := s.engine.Answer(r.Context(), req.Question, search.Options{
		TopK:      req.TopK,
		Threshold: req.ScoreThreshold,
		Mode:      search.Mode(req.Mode),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if kerrors.GetCategory(err) == kerrors.CategoryValidation {
			status = http.StatusBadRequest
		} else {
			slog.Error("query_failed", slog.String("error", err.Error()))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleIngest serves the ingestion trigger. A section_id query parameter
// selects direct single-section mode; otherwise one batch invocation runs.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if raw := r.URL.Query().Get("section_id"); raw != "" {
		sectionID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ingestError{OK: false, Error: "invalid section_id"})
			return
		}
		if err := s.worker.ProcessSection(r.Context(), sectionID); err != nil {
			slog.Error("direct_ingest_failed",
				slog.Int64("section_id", sectionID),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, ingestError{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{OK: true, Handled: 1})
		return
	}

	handled, err := s.worker.Run(r.Context())
	if err != nil {
		slog.Error("batch_ingest_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ingestError{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, Handled: handled})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", slog.String("error", err.Error()))
	}
}
