package api

import (
	"fmt"
	"net/http"
)

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	requirements, err := s.store.ListRequirements(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list requirements: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requirements": requirements})
}

func (s *Server) handleStakeholders(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	stakeholders, err := s.store.ListStakeholders(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list stakeholders: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stakeholders": stakeholders})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	decisions, err := s.store.ListDecisions(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list decisions: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	events, err := s.store.ListTimelineEvents(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list timeline events: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"timeline": events})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	conflicts, err := s.store.ListConflicts(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list conflicts: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": conflicts})
}

func (s *Server) handleTraceLinks(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	links, err := s.store.ListTraceLinks(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list trace links: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"links": links})
}
