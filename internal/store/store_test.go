package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/korhaliv/projectlens/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "projectlens.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.UpsertProject(ctx, "proj-1", "Checkout Revamp")
	if err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	if project.Status != model.ProjectDraft || project.Progress != 0 {
		t.Fatalf("new project should be draft at 0, got %s %d", project.Status, project.Progress)
	}

	if err := s.SetProjectStatus(ctx, "proj-1", model.ProjectActive, 150); err != nil {
		t.Fatalf("set project status: %v", err)
	}
	project, err = s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Status != model.ProjectActive || project.Progress != 100 {
		t.Fatalf("expected active/100, got %s %d", project.Status, project.Progress)
	}

	if err := s.SetProjectStatus(ctx, "missing", model.ProjectActive, 10); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestSourceClassification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	src := model.Source{
		ID:        "src-1",
		ProjectID: "proj-1",
		Name:      "kickoff notes",
		Kind:      model.SourceMeetingTranscript,
		Content:   "We agreed the system must support SSO.",
	}
	if err := s.InsertSource(ctx, src); err != nil {
		t.Fatalf("insert source: %v", err)
	}

	err := s.ApplyClassification(ctx, "proj-1", "src-1", SourceClassification{
		Relevance:       0.9,
		DetectedType:    "meeting_notes",
		Summary:         "kickoff discussion",
		Topics:          []string{"auth", "sso"},
		HasRequirements: true,
	})
	if err != nil {
		t.Fatalf("apply classification: %v", err)
	}

	sources, err := s.ListSources(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	got := sources[0]
	if got.Status != model.SourceClassified {
		t.Fatalf("expected classified status, got %s", got.Status)
	}
	if !got.HasRequirements || got.HasDecisions {
		t.Fatalf("classification flags not persisted: %+v", got)
	}
	if len(got.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", got.Topics)
	}
}

func TestRequirementsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	req := model.Requirement{
		ID:         "REQ-001",
		ProjectID:  "proj-1",
		Title:      "Support single sign-on",
		Category:   model.CategorySecurity,
		Priority:   model.PriorityHigh,
		Confidence: 0.82,
		SourceID:   "src-1",
		Excerpt:    "the system must support SSO",
		Tags:       []string{"auth"},
	}
	if err := s.InsertRequirement(ctx, req); err != nil {
		t.Fatalf("insert requirement: %v", err)
	}
	list, err := s.ListRequirements(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list requirements: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(list))
	}
	if list[0].ID != "REQ-001" || list[0].Category != model.CategorySecurity || len(list[0].Tags) != 1 {
		t.Fatalf("requirement did not round trip: %+v", list[0])
	}
}

func TestStakeholderUpsertByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	first := model.Stakeholder{
		ID:        "sh-1",
		ProjectID: "proj-1",
		Name:      "Dana Ortiz",
		Role:      "PM",
		Influence: model.InfluenceContributor,
		Sentiment: model.SentimentNeutral,
	}
	firstID, err := s.UpsertStakeholder(ctx, first)
	if err != nil {
		t.Fatalf("upsert stakeholder: %v", err)
	}
	if firstID != "sh-1" {
		t.Fatalf("expected inserted id back, got %s", firstID)
	}
	second := first
	second.ID = "sh-2"
	second.Role = "Product Lead"
	second.Influence = model.InfluenceDecisionMaker
	secondID, err := s.UpsertStakeholder(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if secondID != "sh-1" {
		t.Fatalf("upsert must keep the first stored id, got %s", secondID)
	}
	list, err := s.ListStakeholders(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list stakeholders: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 stakeholder after upsert, got %d", len(list))
	}
	if list[0].ID != "sh-1" {
		t.Fatalf("stored id must survive the second upsert, got %s", list[0].ID)
	}
	if list[0].Role != "Product Lead" || list[0].Influence != model.InfluenceDecisionMaker {
		t.Fatalf("upsert did not refresh record: %+v", list[0])
	}
}

func TestTraceLinkUpsertByEndpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	link := model.TraceLink{
		ProjectID:    "proj-1",
		FromType:     model.NodeConflict,
		FromID:       "CON-001",
		ToType:       model.NodeRequirement,
		ToID:         "REQ-002",
		Relationship: "blocks",
		Strength:     0.8,
	}
	if err := s.InsertTraceLink(ctx, link); err != nil {
		t.Fatalf("insert link: %v", err)
	}
	link.Strength = 0.95
	if err := s.InsertTraceLink(ctx, link); err != nil {
		t.Fatalf("re-insert link: %v", err)
	}
	links, err := s.ListTraceLinks(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("same edge inserted twice must stay one row, got %d", len(links))
	}
	if links[0].Strength != 0.95 {
		t.Fatalf("re-insert should refresh strength, got %v", links[0].Strength)
	}
}

func TestRequirementOrderPastThreeDigits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	for _, id := range []string{"REQ-1000", "REQ-002", "REQ-999"} {
		req := model.Requirement{
			ID:        id,
			ProjectID: "proj-1",
			Title:     "Requirement " + id,
			Category:  model.CategoryFunctional,
			Priority:  model.PriorityMedium,
		}
		if err := s.InsertRequirement(ctx, req); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	list, err := s.ListRequirements(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list requirements: %v", err)
	}
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	want := []string{"REQ-002", "REQ-999", "REQ-1000"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected numeric label order %v, got %v", want, got)
		}
	}
}

func TestConflictRequirementSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	short := model.Conflict{
		ID:             "CON-001",
		ProjectID:      "proj-1",
		Title:          "only one side",
		Severity:       model.SeverityMinor,
		RequirementIDs: []string{"REQ-001"},
	}
	if err := s.InsertConflict(ctx, short); err == nil {
		t.Fatal("expected error for conflict with fewer than two requirements")
	}

	conflict := model.Conflict{
		ID:             "CON-001",
		ProjectID:      "proj-1",
		Title:          "Latency target contradicts batch sync",
		Severity:       model.SeverityMajor,
		RequirementIDs: []string{"REQ-001", "REQ-002"},
	}
	if err := s.InsertConflict(ctx, conflict); err != nil {
		t.Fatalf("insert conflict: %v", err)
	}
	list, err := s.ListConflicts(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(list) != 1 || len(list[0].RequirementIDs) != 2 {
		t.Fatalf("conflict did not round trip: %+v", list)
	}
}

func TestClaimRunExclusivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	if err := s.ClaimRun(ctx, "run-1", "proj-1", time.Now()); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimRun(ctx, "run-2", "proj-1", time.Now()); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive for concurrent claim, got %v", err)
	}

	counters := model.RunCounters{SourcesProcessed: 3, RequirementsFound: 5}
	if err := s.FinishRun(ctx, "run-1", model.RunCompleted, counters, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	// A terminal run frees the project for the next claim.
	if err := s.ClaimRun(ctx, "run-2", "proj-1", time.Now()); err != nil {
		t.Fatalf("claim after completion: %v", err)
	}

	run, err := s.LatestRun(ctx, "proj-1")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != model.RunIngesting {
		t.Fatalf("latest run should be the fresh claim, got %s", run.Status)
	}

	prior, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if prior.Status != model.RunCompleted || prior.Counters.RequirementsFound != 5 || prior.CompletedAt == nil {
		t.Fatalf("finished run not persisted: %+v", prior)
	}
}

func TestFinishRunRejectsNonTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	if err := s.ClaimRun(ctx, "run-1", "proj-1", time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", model.RunClassifying, model.RunCounters{}, ""); err == nil {
		t.Fatal("expected error finishing with non-terminal status")
	}
}

func TestDocumentVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	v1, err := s.InsertDocumentVersion(ctx, model.GeneratedDocument{
		ProjectID: "proj-1",
		DocType:   "brd",
		Sections:  map[string]string{"executive_summary": "first pass"},
	})
	if err != nil {
		t.Fatalf("insert v1: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1, got %d", v1)
	}

	v2, err := s.InsertDocumentVersion(ctx, model.GeneratedDocument{
		ProjectID: "proj-1",
		DocType:   "brd",
		Sections:  map[string]string{"executive_summary": "second pass"},
	})
	if err != nil {
		t.Fatalf("insert v2: %v", err)
	}
	if v2 != 2 {
		t.Fatalf("expected version 2, got %d", v2)
	}

	latest, err := s.LatestDocument(ctx, "proj-1", "brd")
	if err != nil {
		t.Fatalf("latest document: %v", err)
	}
	if latest.Version != 2 || latest.Superseded {
		t.Fatalf("latest should be live v2: %+v", latest)
	}
	prior, err := s.GetDocumentVersion(ctx, "proj-1", "brd", 1)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if !prior.Superseded {
		t.Fatalf("v1 should be superseded: %+v", prior)
	}
	if prior.Sections["executive_summary"] != "first pass" {
		t.Fatalf("v1 sections not preserved: %+v", prior.Sections)
	}
}

func TestDeleteDerivedPreservesSourcesAndRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.UpsertProject(ctx, "proj-1", ""); err != nil {
		t.Fatalf("upsert project: %v", err)
	}
	if err := s.InsertSource(ctx, model.Source{ID: "src-1", ProjectID: "proj-1", Name: "n", Kind: model.SourceEmail, Content: "c"}); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	if err := s.InsertRequirement(ctx, model.Requirement{ID: "REQ-001", ProjectID: "proj-1", Title: "t", Category: model.CategoryFunctional, Priority: model.PriorityMedium}); err != nil {
		t.Fatalf("insert requirement: %v", err)
	}
	if err := s.InsertTraceLink(ctx, model.TraceLink{ProjectID: "proj-1", FromType: model.NodeSource, FromID: "src-1", ToType: model.NodeRequirement, ToID: "REQ-001", Relationship: "extracted_from", Strength: 0.8}); err != nil {
		t.Fatalf("insert trace link: %v", err)
	}
	if err := s.ClaimRun(ctx, "run-1", "proj-1", time.Now()); err != nil {
		t.Fatalf("claim run: %v", err)
	}

	if err := s.DeleteDerived(ctx, "proj-1"); err != nil {
		t.Fatalf("delete derived: %v", err)
	}

	reqs, err := s.ListRequirements(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list requirements: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("requirements should be wiped, got %d", len(reqs))
	}
	links, err := s.ListTraceLinks(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list trace links: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("trace links should be wiped, got %d", len(links))
	}
	sources, err := s.ListSources(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("sources must survive a regenerate wipe, got %d", len(sources))
	}
	if _, err := s.LatestRun(ctx, "proj-1"); err != nil {
		t.Fatalf("run history must survive a regenerate wipe: %v", err)
	}
}
