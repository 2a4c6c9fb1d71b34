package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/store"
)

type createProjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	project, err := s.store.UpsertProject(r.Context(), req.ID, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create project: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list projects: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

type addSourceRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id required"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("content required"))
		return
	}
	if _, err := s.store.GetProject(r.Context(), req.ProjectID); err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	src := model.Source{
		ID:        uuid.NewString(),
		ProjectID: strings.TrimSpace(req.ProjectID),
		Name:      strings.TrimSpace(req.Name),
		Kind:      model.NormalizeSourceKind(req.Kind),
		Content:   req.Content,
		Status:    model.SourcePending,
	}
	if src.Name == "" {
		src.Name = "untitled source"
	}
	if err := s.store.InsertSource(r.Context(), src); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("insert source: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": src.ID})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	sources, err := s.store.ListSources(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list sources: %w", err))
		return
	}
	// Raw content is elided from the listing; it can be megabytes.
	for i := range sources {
		sources[i].Content = ""
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// requireProject extracts the project query parameter, writing a 400 when
// it is missing.
func requireProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project query parameter required"))
		return "", false
	}
	return projectID, true
}
