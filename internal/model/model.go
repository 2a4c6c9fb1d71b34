package model

import (
	"strings"
	"time"
)

// SourceKind identifies where a communication artifact came from.
type SourceKind string

const (
	SourceEmail             SourceKind = "email"
	SourceMeetingTranscript SourceKind = "meeting_transcript"
	SourceChatLog           SourceKind = "chat_log"
	SourceDocument          SourceKind = "document"
	SourceUploadedFile      SourceKind = "uploaded_file"
)

// SourceStatus tracks how far the pipeline has taken one source.
type SourceStatus string

const (
	SourcePending     SourceStatus = "pending"
	SourceClassifying SourceStatus = "classifying"
	SourceClassified  SourceStatus = "classified"
	SourceExtracting  SourceStatus = "extracting"
	SourceExtracted   SourceStatus = "extracted"
)

// ProjectStatus is the user-visible project state.
type ProjectStatus string

const (
	ProjectDraft  ProjectStatus = "draft"
	ProjectActive ProjectStatus = "active"
)

// Project is the aggregate the pipeline operates on. Sources belong to a
// project; every derived entity carries the project id.
type Project struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    ProjectStatus `db:"status" json:"status"`
	Progress  int           `db:"progress" json:"progress"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Source is an ingested communication artifact. The pipeline only advances
// its status and attaches classification results; it never deletes sources.
type Source struct {
	ID              string       `db:"id" json:"id"`
	ProjectID       string       `db:"project_id" json:"project_id"`
	Name            string       `db:"name" json:"name"`
	Kind            SourceKind   `db:"kind" json:"kind"`
	Content         string       `db:"content" json:"content,omitempty"`
	Status          SourceStatus `db:"status" json:"status"`
	Relevance       float64      `db:"relevance" json:"relevance"`
	DetectedType    string       `db:"detected_type" json:"detected_type,omitempty"`
	Summary         string       `db:"summary" json:"summary,omitempty"`
	Topics          []string     `db:"-" json:"topics,omitempty"`
	HasRequirements bool         `db:"has_requirements" json:"has_requirements"`
	HasDecisions    bool         `db:"has_decisions" json:"has_decisions"`
	HasStakeholders bool         `db:"has_stakeholders" json:"has_stakeholders"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// RequirementCategory is the closed category set for requirements.
type RequirementCategory string

const (
	CategoryFunctional    RequirementCategory = "functional"
	CategoryNonFunctional RequirementCategory = "non_functional"
	CategoryBusiness      RequirementCategory = "business"
	CategoryTechnical     RequirementCategory = "technical"
	CategorySecurity      RequirementCategory = "security"
	CategoryPerformance   RequirementCategory = "performance"
	CategoryCompliance    RequirementCategory = "compliance"
	CategoryIntegration   RequirementCategory = "integration"
)

// Priority orders requirements by urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Requirement is an extracted requirement with its evidence. Logically
// immutable once created; later runs only skip near-duplicates.
type Requirement struct {
	ID          string              `db:"id" json:"id"`
	ProjectID   string              `db:"project_id" json:"project_id"`
	Title       string              `db:"title" json:"title"`
	Description string              `db:"description" json:"description"`
	Category    RequirementCategory `db:"category" json:"category"`
	Priority    Priority            `db:"priority" json:"priority"`
	Confidence  float64             `db:"confidence" json:"confidence"`
	SourceID    string              `db:"source_id" json:"source_id"`
	Excerpt     string              `db:"excerpt" json:"source_excerpt,omitempty"`
	Rationale   string              `db:"rationale" json:"rationale,omitempty"`
	Tags        []string            `db:"-" json:"tags,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// InfluenceLevel ranks how much sway a stakeholder has.
type InfluenceLevel string

const (
	InfluenceDecisionMaker InfluenceLevel = "decision_maker"
	InfluenceInfluencer    InfluenceLevel = "influencer"
	InfluenceContributor   InfluenceLevel = "contributor"
	InfluenceObserver      InfluenceLevel = "observer"
)

// Sentiment is a stakeholder's observed attitude toward the project.
type Sentiment string

const (
	SentimentSupportive Sentiment = "supportive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentResistant  Sentiment = "resistant"
	SentimentUnknown    Sentiment = "unknown"
)

// Stakeholder is upserted fresh on every run keyed by (project, name).
type Stakeholder struct {
	ID         string         `db:"id" json:"id"`
	ProjectID  string         `db:"project_id" json:"project_id"`
	Name       string         `db:"name" json:"name"`
	Role       string         `db:"role" json:"role,omitempty"`
	Department string         `db:"department" json:"department,omitempty"`
	Influence  InfluenceLevel `db:"influence" json:"influence_level"`
	Sentiment  Sentiment      `db:"sentiment" json:"sentiment"`
	SourceIDs  []string       `db:"-" json:"source_ids,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// DecisionType is the closed set every extracted decision type is
// normalized into.
type DecisionType string

const (
	DecisionArchitectural DecisionType = "architectural"
	DecisionFunctional    DecisionType = "functional"
	DecisionBusiness      DecisionType = "business"
	DecisionTechnical     DecisionType = "technical"
	DecisionProcess       DecisionType = "process"
)

// DecisionStatus reflects where a decision stands.
type DecisionStatus string

const (
	DecisionProposed DecisionStatus = "proposed"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
	DecisionDeferred DecisionStatus = "deferred"
)

// Decision is an extracted decision with its evidence excerpt.
type Decision struct {
	ID          string         `db:"id" json:"id"`
	ProjectID   string         `db:"project_id" json:"project_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Type        DecisionType   `db:"decision_type" json:"type"`
	Status      DecisionStatus `db:"status" json:"status"`
	Confidence  float64        `db:"confidence" json:"confidence"`
	SourceID    string         `db:"source_id" json:"source_id"`
	Excerpt     string         `db:"excerpt" json:"source_excerpt,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// TimelineEventType classifies timeline events.
type TimelineEventType string

const (
	TimelineMilestone  TimelineEventType = "milestone"
	TimelineDeadline   TimelineEventType = "deadline"
	TimelineDecision   TimelineEventType = "decision"
	TimelineApproval   TimelineEventType = "approval"
	TimelineDependency TimelineEventType = "dependency"
)

// TimelineEvent is a dated (or undated) event extracted from the corpus.
type TimelineEvent struct {
	ID          string            `db:"id" json:"id"`
	ProjectID   string            `db:"project_id" json:"project_id"`
	Title       string            `db:"title" json:"title"`
	Description string            `db:"description" json:"description,omitempty"`
	Date        string            `db:"event_date" json:"date,omitempty"`
	Type        TimelineEventType `db:"event_type" json:"type"`
	Confidence  float64           `db:"confidence" json:"confidence"`
	SourceID    string            `db:"source_id" json:"source_id,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// ConflictSeverity grades how serious a contradiction is.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityMajor    ConflictSeverity = "major"
	SeverityMinor    ConflictSeverity = "minor"
)

// Conflict records a contradiction between two or more requirements.
// Invariant: RequirementIDs has at least two entries.
type Conflict struct {
	ID             string           `db:"id" json:"id"`
	ProjectID      string           `db:"project_id" json:"project_id"`
	Title          string           `db:"title" json:"title"`
	Description    string           `db:"description" json:"description"`
	Severity       ConflictSeverity `db:"severity" json:"severity"`
	RequirementIDs []string         `db:"-" json:"requirement_ids"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// NodeType names the entity kinds trace links can connect.
type NodeType string

const (
	NodeSource      NodeType = "source"
	NodeRequirement NodeType = "requirement"
	NodeStakeholder NodeType = "stakeholder"
	NodeDecision    NodeType = "decision"
	NodeConflict    NodeType = "conflict"
	NodeTimeline    NodeType = "timeline"
)

// TraceLink is a directed, typed edge between two entities with a strength
// in [0,1].
type TraceLink struct {
	ID           int64     `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"project_id"`
	FromType     NodeType  `db:"from_type" json:"from_type"`
	FromID       string    `db:"from_id" json:"from_id"`
	ToType       NodeType  `db:"to_type" json:"to_type"`
	ToID         string    `db:"to_id" json:"to_id"`
	Relationship string    `db:"relationship" json:"relationship"`
	Strength     float64   `db:"strength" json:"strength"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RunStatus is the pipeline state machine of one run. The sequence is
// strictly linear; failed and cancelled are terminal from any state.
type RunStatus string

const (
	RunIngesting              RunStatus = "ingesting"
	RunClassifying            RunStatus = "classifying"
	RunExtractingRequirements RunStatus = "extracting_requirements"
	RunExtractingStakeholders RunStatus = "extracting_stakeholders"
	RunExtractingDecisions    RunStatus = "extracting_decisions"
	RunExtractingTimeline     RunStatus = "extracting_timeline"
	RunDetectingConflicts     RunStatus = "detecting_conflicts"
	RunBuildingTraceability   RunStatus = "building_traceability"
	RunGeneratingDocuments    RunStatus = "generating_documents"
	RunCompleted              RunStatus = "completed"
	RunFailed                 RunStatus = "failed"
	RunCancelled              RunStatus = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// RunCounters are the per-run result totals returned to the caller.
type RunCounters struct {
	SourcesProcessed  int `db:"sources_processed" json:"sources_processed"`
	RequirementsFound int `db:"requirements_found" json:"requirements_found"`
	StakeholdersFound int `db:"stakeholders_found" json:"stakeholders_found"`
	DecisionsFound    int `db:"decisions_found" json:"decisions_found"`
	ConflictsFound    int `db:"conflicts_found" json:"conflicts_found"`
}

// PipelineRun is one execution of the pipeline for a project. At most one
// non-terminal run may exist per project at any time.
type PipelineRun struct {
	ID          string      `db:"id" json:"id"`
	ProjectID   string      `db:"project_id" json:"project_id"`
	Status      RunStatus   `db:"status" json:"status"`
	Counters    RunCounters `db:"-" json:"counters"`
	Error       string      `db:"error" json:"error,omitempty"`
	StartedAt   time.Time   `db:"started_at" json:"started_at"`
	CompletedAt *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// RunLogEntry is one append-only observability record for a run.
type RunLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	RunID     string    `db:"run_id" json:"run_id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Agent     string    `db:"agent" json:"agent"`
	Level     string    `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GeneratedDocument is one version of a synthesized report. Versions are
// append-only; superseded marks prior versions of the same type.
type GeneratedDocument struct {
	ID         int64             `db:"id" json:"id"`
	ProjectID  string            `db:"project_id" json:"project_id"`
	DocType    string            `db:"doc_type" json:"doc_type"`
	Version    int               `db:"version" json:"version"`
	Sections   map[string]string `db:"-" json:"sections"`
	Superseded bool              `db:"superseded" json:"superseded"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// NormalizeCategory maps a raw category string into the closed set,
// defaulting to functional.
func NormalizeCategory(raw string) RequirementCategory {
	switch RequirementCategory(normalizeToken(raw)) {
	case CategoryFunctional, CategoryNonFunctional, CategoryBusiness, CategoryTechnical,
		CategorySecurity, CategoryPerformance, CategoryCompliance, CategoryIntegration:
		return RequirementCategory(normalizeToken(raw))
	}
	return CategoryFunctional
}

// NormalizePriority maps a raw priority into the closed set, defaulting to
// medium.
func NormalizePriority(raw string) Priority {
	switch Priority(normalizeToken(raw)) {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(normalizeToken(raw))
	}
	return PriorityMedium
}

// NormalizeInfluence maps a raw influence level into the closed set,
// defaulting to contributor.
func NormalizeInfluence(raw string) InfluenceLevel {
	switch InfluenceLevel(normalizeToken(raw)) {
	case InfluenceDecisionMaker, InfluenceInfluencer, InfluenceContributor, InfluenceObserver:
		return InfluenceLevel(normalizeToken(raw))
	}
	return InfluenceContributor
}

// NormalizeSentiment maps a raw sentiment into the closed set, defaulting to
// unknown.
func NormalizeSentiment(raw string) Sentiment {
	switch Sentiment(normalizeToken(raw)) {
	case SentimentSupportive, SentimentNeutral, SentimentResistant, SentimentUnknown:
		return Sentiment(normalizeToken(raw))
	}
	return SentimentUnknown
}

// NormalizeDecisionType maps a raw decision type into the closed set. Values
// outside the set are remapped to the nearest of business or technical:
// scope-, budget- and strategy-flavoured values read as business, everything
// else as technical.
func NormalizeDecisionType(raw string) DecisionType {
	token := normalizeToken(raw)
	switch DecisionType(token) {
	case DecisionArchitectural, DecisionFunctional, DecisionBusiness, DecisionTechnical, DecisionProcess:
		return DecisionType(token)
	}
	for _, hint := range []string{"scope", "budget", "commercial", "strategy", "strategic", "organiz", "market"} {
		if strings.Contains(token, hint) {
			return DecisionBusiness
		}
	}
	return DecisionTechnical
}

// NormalizeDecisionStatus maps a raw decision status into the closed set,
// defaulting to proposed.
func NormalizeDecisionStatus(raw string) DecisionStatus {
	switch DecisionStatus(normalizeToken(raw)) {
	case DecisionProposed, DecisionApproved, DecisionRejected, DecisionDeferred:
		return DecisionStatus(normalizeToken(raw))
	}
	return DecisionProposed
}

// NormalizeTimelineType maps a raw event type into the closed set,
// defaulting to milestone.
func NormalizeTimelineType(raw string) TimelineEventType {
	switch TimelineEventType(normalizeToken(raw)) {
	case TimelineMilestone, TimelineDeadline, TimelineDecision, TimelineApproval, TimelineDependency:
		return TimelineEventType(normalizeToken(raw))
	}
	return TimelineMilestone
}

// NormalizeSeverity maps a raw severity into the closed set, defaulting to
// minor.
func NormalizeSeverity(raw string) ConflictSeverity {
	switch ConflictSeverity(normalizeToken(raw)) {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return ConflictSeverity(normalizeToken(raw))
	}
	return SeverityMinor
}

// NormalizeSourceKind maps a raw kind into the closed set, defaulting to
// document.
func NormalizeSourceKind(raw string) SourceKind {
	switch SourceKind(normalizeToken(raw)) {
	case SourceEmail, SourceMeetingTranscript, SourceChatLog, SourceDocument, SourceUploadedFile:
		return SourceKind(normalizeToken(raw))
	}
	return SourceDocument
}

// ClampScore bounds a confidence or relevance score to [0,1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func normalizeToken(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.ReplaceAll(token, "-", "_")
	token = strings.ReplaceAll(token, " ", "_")
	return token
}
