package pipeline

import (
	"context"
	"time"

	"github.com/korhaliv/projectlens/internal/model"
	"github.com/korhaliv/projectlens/internal/store"
)

// Store is the entity-store surface the pipeline depends on. The sqlite
// implementation in internal/store satisfies it; tests may substitute a
// narrower fake.
type Store interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus, progress int) error
	DeleteDerived(ctx context.Context, projectID string) error

	ListSources(ctx context.Context, projectID string) ([]model.Source, error)
	UpdateSourceStatus(ctx context.Context, projectID, sourceID string, status model.SourceStatus) error
	ApplyClassification(ctx context.Context, projectID, sourceID string, result store.SourceClassification) error

	ListRequirements(ctx context.Context, projectID string) ([]model.Requirement, error)
	InsertRequirement(ctx context.Context, req model.Requirement) error
	ListStakeholders(ctx context.Context, projectID string) ([]model.Stakeholder, error)
	UpsertStakeholder(ctx context.Context, sh model.Stakeholder) (string, error)
	ListDecisions(ctx context.Context, projectID string) ([]model.Decision, error)
	InsertDecision(ctx context.Context, dec model.Decision) error
	ListTimelineEvents(ctx context.Context, projectID string) ([]model.TimelineEvent, error)
	InsertTimelineEvent(ctx context.Context, event model.TimelineEvent) error
	ListConflicts(ctx context.Context, projectID string) ([]model.Conflict, error)
	InsertConflict(ctx context.Context, conflict model.Conflict) error
	InsertTraceLink(ctx context.Context, link model.TraceLink) error
	ListTraceLinks(ctx context.Context, projectID string) ([]model.TraceLink, error)

	ClaimRun(ctx context.Context, runID, projectID string, startedAt time.Time) error
	SetRunStatus(ctx context.Context, runID string, status model.RunStatus, counters model.RunCounters) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, counters model.RunCounters, errMsg string) error
	LatestRun(ctx context.Context, projectID string) (model.PipelineRun, error)
	AppendRunLog(ctx context.Context, entry model.RunLogEntry) error
	RecentRunLogs(ctx context.Context, projectID string, limit int) ([]model.RunLogEntry, error)

	InsertDocumentVersion(ctx context.Context, doc model.GeneratedDocument) (int, error)
	LatestDocument(ctx context.Context, projectID, docType string) (model.GeneratedDocument, error)
}
