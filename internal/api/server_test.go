package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/korhaliv/projectlens/internal/config"
	"github.com/korhaliv/projectlens/internal/llm"
	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/pipeline"
	"github.com/korhaliv/projectlens/internal/store"
)

// cannedProvider returns a fixed JSON body per stage prompt.
type cannedProvider struct{}

func (cannedProvider) Name() string { return "canned" }

func (cannedProvider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	prompt := req.Prompt
	switch {
	case strings.Contains(prompt, "Classify the following"):
		return `{"relevance": 0.8, "detected_type": "email", "summary": "s", "topics": [], "has_requirements": true, "has_decisions": false, "has_stakeholders": false}`, nil
	case strings.Contains(prompt, "Extract every distinct requirement"):
		return `[{"title": "Send receipts by email", "category": "functional", "priority": "high", "confidence": 0.9, "source_excerpt": "receipts must be emailed"}]`, nil
	case strings.Contains(prompt, "Identify every person"):
		return `[]`, nil
	case strings.Contains(prompt, "Extract every project decision"):
		return `[]`, nil
	case strings.Contains(prompt, "Extract dates, deadlines"):
		return `[]`, nil
	case strings.Contains(prompt, "contradict"):
		return `[]`, nil
	case strings.Contains(prompt, "business requirements document"):
		return `{"executive_summary": "done", "objectives": "o", "scope": "s", "requirements_analysis": "r", "stakeholder_analysis": "st", "decision_log": "d", "timeline": "t", "risks_and_conflicts": "rc", "confidence_report": "c"}`, nil
	}
	return `[]`, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	p := pipeline.New(st, cannedProvider{}, config.Default())
	srv, err := NewServer(st, p)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestPipelineOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/projects", `{"id": "proj-1", "name": "Billing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/sources",
		`{"project_id": "proj-1", "name": "thread", "kind": "email", "content": "receipts must be emailed to customers"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add source: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/pipeline/run", `{"project_id": "proj-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rec.Code, rec.Body.String())
	}
	var runResp struct {
		Counters model.RunCounters `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &runResp); err != nil {
		t.Fatalf("decode run response: %v", err)
	}
	if runResp.Counters.RequirementsFound != 1 {
		t.Fatalf("expected 1 requirement, got %+v", runResp.Counters)
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/pipeline/status?project=proj-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
	var run model.PipelineRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/requirements?project=proj-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("requirements: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "REQ-001") {
		t.Fatalf("expected REQ-001 in listing: %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/report?project=proj-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "executive_summary") {
		t.Fatalf("report missing sections: %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/logs?project=proj-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: %d", rec.Code)
	}
}

func TestRunValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/pipeline/run", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing project_id should 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/pipeline/run", `{"project_id": "missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown project should 404, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/projects", `{"id": "empty-proj"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/v1/pipeline/run", `{"project_id": "empty-proj"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("project without sources should 422, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/requirements", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing project param should 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/v1/pipeline/cancel", `{"project_id": "empty-proj"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel with no active run should 404, got %d", rec.Code)
	}
}
