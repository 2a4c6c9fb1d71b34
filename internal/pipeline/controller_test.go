package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/korhaliv/projectlens/internal/config"
	"github.com/korhaliv/projectlens/internal/llm"
	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/store"
)

// scriptedProvider answers each stage prompt with canned JSON, optionally
// gating the first call so tests can hold a run mid-flight.
type scriptedProvider struct {
	mu        sync.Mutex
	calls     int
	failStage string
	gate      chan struct{}
	started   chan struct{}
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first && s.gate != nil {
		close(s.started)
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prompt := req.Prompt
	switch {
	case strings.Contains(prompt, "Classify the following"):
		if s.failStage == "classification" {
			return "", fmt.Errorf("backend unavailable")
		}
		return "Sure! Here's the JSON:\n```json\n{\"relevance\": 0.9, \"detected_type\": \"meeting_notes\", \"summary\": \"kickoff\", \"topics\": [\"payments\"], \"has_requirements\": true, \"has_decisions\": true, \"has_stakeholders\": true}\n```", nil
	case strings.Contains(prompt, "Extract every distinct requirement"):
		return `[
                        {"title": "Support checkout via saved cards", "category": "functional", "priority": "high", "confidence": 0.9, "source_excerpt": "Maya Chen said we must support checkout via saved cards", "tags": ["payments"]},
                        {"title": "Encrypt card data at rest", "category": "security", "priority": "critical", "confidence": 0.95, "source_excerpt": "card data must be encrypted at rest"},
                        {"title": "Checkout latency under 300ms", "category": "performance", "priority": "medium", "confidence": 0.7, "source_excerpt": "checkout should feel instant"}
                ]`, nil
	case strings.Contains(prompt, "Identify every person"):
		return `[{"name": "Maya Chen", "role": "Product Manager", "influence_level": "decision_maker", "sentiment": "supportive"}]`, nil
	case strings.Contains(prompt, "Extract every project decision"):
		return `[{"title": "Adopt saved-card vault", "description": "Support checkout via saved cards using a vault", "type": "scope", "status": "approved", "confidence": 0.8, "source_excerpt": "we will adopt a card vault"}]`, nil
	case strings.Contains(prompt, "Extract dates, deadlines"):
		return `[{"title": "Beta launch", "description": "public beta", "date": "2026-09-15", "type": "deadline", "confidence": 0.8}]`, nil
	case strings.Contains(prompt, "contradict"):
		return `[{"title": "Latency vs encryption overhead", "description": "encryption at rest conflicts with the latency budget", "severity": "major", "requirement_ids": ["REQ-002", "REQ-003", "REQ-999"]}]`, nil
	case strings.Contains(prompt, "business requirements document"):
		return `{"executive_summary": "summary", "objectives": "objectives", "scope": "scope", "requirements_analysis": "reqs", "stakeholder_analysis": "people", "decision_log": "decisions", "timeline": "dates", "risks_and_conflicts": "risks", "confidence_report": "confidence"}`, nil
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ChunkSize = 35000
	cfg.ChunkOverlap = 2000
	return cfg
}

func newTestPipeline(t *testing.T, provider llm.Provider) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, provider, testConfig()), st
}

func seedProject(t *testing.T, st *store.Store, content string) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.UpsertProject(ctx, "proj-1", "Checkout Revamp"); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	err := st.InsertSource(ctx, model.Source{
		ID:        "src-1",
		ProjectID: "proj-1",
		Name:      "kickoff transcript",
		Kind:      model.SourceMeetingTranscript,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}
}

// kickoffContent builds a source over the chunking threshold whose text
// mentions the stakeholder twice.
func kickoffContent() string {
	filler := strings.Repeat("Discussion about sprint logistics. ", 1200)
	return "Maya Chen said we must support checkout via saved cards. " +
		filler +
		"Maya Chen confirmed card data must be encrypted at rest and checkout should feel instant."
}

func TestRunCompletesEndToEnd(t *testing.T) {
	p, st := newTestPipeline(t, &scriptedProvider{})
	seedProject(t, st, kickoffContent())
	ctx := context.Background()

	counters, err := p.Run(ctx, "proj-1", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if counters.SourcesProcessed != 1 {
		t.Fatalf("expected 1 source processed, got %d", counters.SourcesProcessed)
	}
	// The oversized source is chunked and each chunk re-discovers the
	// same requirements; exact-title merge keeps three.
	if counters.RequirementsFound != 3 {
		t.Fatalf("expected 3 requirements, got %d", counters.RequirementsFound)
	}
	if counters.StakeholdersFound != 1 || counters.ConflictsFound != 1 {
		t.Fatalf("unexpected counters: %+v", counters)
	}

	run, err := st.LatestRun(ctx, "proj-1")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Fatalf("expected completed run, got %s (error %q)", run.Status, run.Error)
	}
	project, err := st.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Status != model.ProjectActive || project.Progress != 100 {
		t.Fatalf("project should be active/100, got %s/%d", project.Status, project.Progress)
	}

	reqs, err := st.ListRequirements(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list requirements: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	if reqs[0].ID != "REQ-001" || reqs[2].ID != "REQ-003" {
		t.Fatalf("unexpected requirement labels: %s .. %s", reqs[0].ID, reqs[2].ID)
	}

	// The invalid REQ-999 reference is dropped but the conflict keeps
	// its two real requirements.
	conflicts, err := st.ListConflicts(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != "CON-001" || len(conflicts[0].RequirementIDs) != 2 {
		t.Fatalf("unexpected conflicts: %+v", conflicts)
	}

	links, err := st.ListTraceLinks(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	stakeholders, err := st.ListStakeholders(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list stakeholders: %v", err)
	}
	if len(stakeholders) != 1 {
		t.Fatalf("expected 1 stakeholder, got %d", len(stakeholders))
	}
	var extracted, proposed, blocks, mentioned int
	for _, link := range links {
		if link.ToType == model.NodeStakeholder && link.ToID != stakeholders[0].ID {
			t.Fatalf("stakeholder links must use the stored id %q, got %q", stakeholders[0].ID, link.ToID)
		}
		switch link.Relationship {
		case "extracted_from":
			if link.FromType != model.NodeSource || link.ToType != model.NodeRequirement {
				t.Fatalf("bad extracted_from link: %+v", link)
			}
			extracted++
		case "proposed_by":
			proposed++
		case "blocks":
			blocks++
		case "mentioned_in":
			mentioned++
		}
	}
	if extracted != 3 {
		t.Fatalf("every requirement needs an evidence link, got %d", extracted)
	}
	if proposed == 0 {
		t.Fatal("excerpt names the stakeholder, expected a proposed_by link")
	}
	if blocks != 2 {
		t.Fatalf("expected 2 blocks links, got %d", blocks)
	}
	if mentioned == 0 {
		t.Fatal("expected mentioned_in links")
	}

	// Decision type "scope" lands in the closed set as business.
	decisions, err := st.ListDecisions(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Type != model.DecisionBusiness || decisions[0].ID != "DEC-001" {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}

	doc, err := st.LatestDocument(ctx, "proj-1", DocTypeBRD)
	if err != nil {
		t.Fatalf("latest document: %v", err)
	}
	if doc.Version != 1 || doc.Sections["executive_summary"] == "" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestSecondRunAddsNoRequirements(t *testing.T) {
	p, st := newTestPipeline(t, &scriptedProvider{})
	seedProject(t, st, kickoffContent())
	ctx := context.Background()

	if _, err := p.Run(ctx, "proj-1", Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	counters, err := p.Run(ctx, "proj-1", Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if counters.RequirementsFound != 0 {
		t.Fatalf("second run on unchanged source must add zero requirements, got %d", counters.RequirementsFound)
	}
	reqs, err := st.ListRequirements(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list requirements: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements after second run, got %d", len(reqs))
	}

	// Re-derived heuristic edges must refresh in place, not accumulate.
	links, err := st.ListTraceLinks(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	blockEdges := make(map[string]int)
	var stakeholderMentions, proposed int
	for _, link := range links {
		switch {
		case link.Relationship == "blocks":
			blockEdges[link.FromID+" "+link.ToID]++
		case link.Relationship == "mentioned_in" && link.ToType == model.NodeStakeholder:
			stakeholderMentions++
		case link.Relationship == "proposed_by":
			proposed++
		}
	}
	if len(blockEdges) != 2 {
		t.Fatalf("expected 2 distinct blocks edges, got %d", len(blockEdges))
	}
	for edge, n := range blockEdges {
		if n != 1 {
			t.Fatalf("blocks edge %s duplicated after second run: %d rows", edge, n)
		}
	}
	if stakeholderMentions != 1 {
		t.Fatalf("expected 1 stakeholder mention link after second run, got %d", stakeholderMentions)
	}
	if proposed != 1 {
		t.Fatalf("expected 1 proposed_by link after second run, got %d", proposed)
	}
}

func TestRegenerateReallocatesFromScratch(t *testing.T) {
	p, st := newTestPipeline(t, &scriptedProvider{})
	seedProject(t, st, kickoffContent())
	ctx := context.Background()

	if _, err := p.Run(ctx, "proj-1", Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	counters, err := p.Run(ctx, "proj-1", Options{Regenerate: true})
	if err != nil {
		t.Fatalf("regenerate run: %v", err)
	}
	if counters.RequirementsFound != 3 {
		t.Fatalf("regenerate should re-extract all requirements, got %d", counters.RequirementsFound)
	}
	sources, err := st.ListSources(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("regenerate must preserve sources, got %d", len(sources))
	}
}

func TestConcurrentStartExclusivity(t *testing.T) {
	provider := &scriptedProvider{gate: make(chan struct{}), started: make(chan struct{})}
	p, st := newTestPipeline(t, provider)
	seedProject(t, st, "Maya Chen said we must support checkout via saved cards.")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, "proj-1", Options{})
		done <- err
	}()
	<-provider.started

	if _, err := p.Run(ctx, "proj-1", Options{}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(provider.gate)
	if err := <-done; err != nil {
		t.Fatalf("gated run: %v", err)
	}
}

func TestCancellation(t *testing.T) {
	provider := &scriptedProvider{gate: make(chan struct{}), started: make(chan struct{})}
	p, st := newTestPipeline(t, provider)
	seedProject(t, st, "Maya Chen said we must support checkout via saved cards.")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, "proj-1", Options{})
		done <- err
	}()
	<-provider.started

	if !p.Cancel("proj-1") {
		t.Fatal("expected an active run to cancel")
	}
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	run, err := st.LatestRun(ctx, "proj-1")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != model.RunCancelled {
		t.Fatalf("expected cancelled run, got %s", run.Status)
	}
	if p.Cancel("proj-1") {
		t.Fatal("no run should remain to cancel")
	}
}

func TestCallerContextCancellationLandsTerminalState(t *testing.T) {
	provider := &scriptedProvider{gate: make(chan struct{}), started: make(chan struct{})}
	p, st := newTestPipeline(t, provider)
	seedProject(t, st, "Maya Chen said we must support checkout via saved cards.")

	parent, cancelParent := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(parent, "proj-1", Options{})
		done <- err
	}()
	<-provider.started

	// Cancelling the caller's context (an HTTP client disconnect) must
	// still persist the terminal run state.
	cancelParent()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	ctx := context.Background()
	run, err := st.LatestRun(ctx, "proj-1")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != model.RunCancelled {
		t.Fatalf("caller cancellation left a non-terminal run: %s", run.Status)
	}
	project, err := st.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Status != model.ProjectDraft {
		t.Fatalf("project should revert to draft, got %s", project.Status)
	}

	// The claim must be free again for the next run.
	if _, err := p.Run(ctx, "proj-1", Options{}); err != nil {
		t.Fatalf("run after caller cancellation: %v", err)
	}
}

func TestStageFailureMarksRunFailed(t *testing.T) {
	p, st := newTestPipeline(t, &scriptedProvider{failStage: "classification"})
	seedProject(t, st, "short transcript")
	ctx := context.Background()

	_, err := p.Run(ctx, "proj-1", Options{})
	if err == nil {
		t.Fatal("expected run failure")
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T: %v", err, err)
	}

	run, err := st.LatestRun(ctx, "proj-1")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != model.RunFailed || run.Error == "" {
		t.Fatalf("expected failed run with captured error, got %+v", run)
	}
	project, err := st.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Status != model.ProjectDraft || project.Progress != 0 {
		t.Fatalf("project should revert to draft/0, got %s/%d", project.Status, project.Progress)
	}
}

func TestRunWithoutSourcesFails(t *testing.T) {
	p, st := newTestPipeline(t, &scriptedProvider{})
	ctx := context.Background()
	if _, err := st.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	_, err := p.Run(ctx, "proj-1", Options{})
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
	run, lookupErr := st.LatestRun(ctx, "proj-1")
	if lookupErr != nil {
		t.Fatalf("latest run: %v", lookupErr)
	}
	if run.Status != model.RunFailed {
		t.Fatalf("no-source run must land in failed, got %s", run.Status)
	}
}
