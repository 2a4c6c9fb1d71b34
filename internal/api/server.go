package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/korhaliv/projectlens/internal/common"
	"github.com/korhaliv/projectlens/internal/pipeline"
	"github.com/korhaliv/projectlens/internal/store"
)

// Server exposes the extraction pipeline and its entity store over HTTP.
type Server struct {
	router   chi.Router
	store    *store.Store
	pipeline *pipeline.Pipeline
}

func NewServer(st *store.Store, p *pipeline.Pipeline) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store required")
	}
	if p == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	srv := &Server{
		router:   chi.NewRouter(),
		store:    st,
		pipeline: p,
	}
	srv.routes()
	common.Logger().Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/projects", s.handleCreateProject)
	s.router.Get("/v1/projects", s.handleListProjects)
	s.router.Post("/v1/sources", s.handleAddSource)
	s.router.Get("/v1/sources", s.handleListSources)

	s.router.Post("/v1/pipeline/run", s.handlePipelineRun)
	s.router.Post("/v1/pipeline/cancel", s.handlePipelineCancel)
	s.router.Get("/v1/pipeline/status", s.handlePipelineStatus)
	s.router.Get("/v1/logs", s.handleLogs)
	s.router.Get("/v1/system/logs", s.handleSystemLogs)

	s.router.Get("/v1/requirements", s.handleRequirements)
	s.router.Get("/v1/stakeholders", s.handleStakeholders)
	s.router.Get("/v1/decisions", s.handleDecisions)
	s.router.Get("/v1/timeline", s.handleTimeline)
	s.router.Get("/v1/conflicts", s.handleConflicts)
	s.router.Get("/v1/links", s.handleTraceLinks)

	s.router.Get("/v1/report", s.handleReport)
	s.router.Get("/v1/report/versions", s.handleReportVersions)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
