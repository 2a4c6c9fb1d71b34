package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/pipeline"
	"github.com/korhaliv/projectlens/internal/store"
)

// handleReport serves the latest synthesized report, or a specific version
// when the version query parameter is given.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	var (
		doc model.GeneratedDocument
		err error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("version")); raw != "" {
		version, convErr := strconv.Atoi(raw)
		if convErr != nil || version <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid version %q", raw))
			return
		}
		doc, err = s.store.GetDocumentVersion(r.Context(), projectID, pipeline.DocTypeBRD, version)
	} else {
		doc, err = s.store.LatestDocument(r.Context(), projectID, pipeline.DocTypeBRD)
	}
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("load report: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type reportVersionSummary struct {
	Version    int    `json:"version"`
	Superseded bool   `json:"superseded"`
	CreatedAt  string `json:"created_at"`
}

func (s *Server) handleReportVersions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := requireProject(w, r)
	if !ok {
		return
	}
	docs, err := s.store.ListDocumentVersions(r.Context(), projectID, pipeline.DocTypeBRD)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list report versions: %w", err))
		return
	}
	versions := make([]reportVersionSummary, 0, len(docs))
	for _, doc := range docs {
		versions = append(versions, reportVersionSummary{
			Version:    doc.Version,
			Superseded: doc.Superseded,
			CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}
