package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/korhaliv/projectlens/internal/common"
	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/pipeline"
	"github.com/korhaliv/projectlens/internal/store"
)

type runRequest struct {
	ProjectID  string `json:"project_id"`
	Regenerate bool   `json:"regenerate"`
	Provider   string `json:"provider"`
}

type runResponse struct {
	ProjectID string            `json:"project_id"`
	Counters  model.RunCounters `json:"counters"`
}

// handlePipelineRun executes the extraction pipeline synchronously and
// returns the final counters once the run reaches a terminal state.
func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id required"))
		return
	}
	counters, err := s.pipeline.Run(r.Context(), req.ProjectID, pipeline.Options{
		Regenerate:        req.Regenerate,
		PreferredProvider: req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrProjectNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pipeline.ErrNoSources):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, runResponse{ProjectID: strings.TrimSpace(req.ProjectID), Counters: counters})
}

type cancelRequest struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handlePipelineCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id required"))
		return
	}
	if !s.pipeline.Cancel(req.ProjectID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no active run for project %s", req.ProjectID))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	run, err := s.pipeline.LatestRun(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("latest run: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	entries, err := s.pipeline.RecentLogs(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("recent logs: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}

// handleSystemLogs serves the in-process log history, as opposed to the
// durable per-run trail under /v1/logs.
func (s *Server) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}
