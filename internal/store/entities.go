package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/korhaliv/projectlens/internal/model"
)

type requirementRow struct {
	ID          string         `db:"id"`
	ProjectID   string         `db:"project_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Category    string         `db:"category"`
	Priority    string         `db:"priority"`
	Confidence  float64        `db:"confidence"`
	SourceID    sql.NullString `db:"source_id"`
	Excerpt     sql.NullString `db:"excerpt"`
	Rationale   sql.NullString `db:"rationale"`
	Tags        sql.NullString `db:"tags"`
	CreatedAt   time.Time      `db:"created_at"`
}

// InsertRequirement persists one requirement. Requirements are logically
// immutable once created.
func (s *Store) InsertRequirement(ctx context.Context, req model.Requirement) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.ProjectID) == "" {
		return errors.New("requirement id and project id required")
	}
	tags, err := marshalStrings(req.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
                INSERT INTO requirements (project_id, id, title, description, category, priority,
                                          confidence, source_id, excerpt, rationale, tags)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ProjectID, req.ID, req.Title, req.Description, string(req.Category), string(req.Priority),
		model.ClampScore(req.Confidence), req.SourceID, req.Excerpt, req.Rationale, tags)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

// ListRequirements returns all requirements for a project ordered by label.
func (s *Store) ListRequirements(ctx context.Context, projectID string) ([]model.Requirement, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []requirementRow
	err := s.db.SelectContext(ctx, &rows, `
                SELECT project_id, id, title, description, category, priority,
                       confidence, source_id, excerpt, rationale, tags, created_at
                FROM requirements WHERE project_id = ? ORDER BY LENGTH(id), id`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	requirements := make([]model.Requirement, 0, len(rows))
	for _, row := range rows {
		req := model.Requirement{
			ID:         row.ID,
			ProjectID:  row.ProjectID,
			Title:      row.Title,
			Category:   model.RequirementCategory(row.Category),
			Priority:   model.Priority(row.Priority),
			Confidence: row.Confidence,
			CreatedAt:  row.CreatedAt,
		}
		if row.Description.Valid {
			req.Description = row.Description.String
		}
		if row.SourceID.Valid {
			req.SourceID = row.SourceID.String
		}
		if row.Excerpt.Valid {
			req.Excerpt = row.Excerpt.String
		}
		if row.Rationale.Valid {
			req.Rationale = row.Rationale.String
		}
		req.Tags = unmarshalStrings(row.Tags)
		requirements = append(requirements, req)
	}
	return requirements, nil
}

// UpsertStakeholder inserts a stakeholder or refreshes the existing record
// with the same name, returning the persisted id. A re-extracted
// stakeholder keeps the id it was first stored under, so trace links keyed
// on the returned id stay joinable across runs.
func (s *Store) UpsertStakeholder(ctx context.Context, sh model.Stakeholder) (string, error) {
	if err := s.ensureReady(); err != nil {
		return "", err
	}
	if strings.TrimSpace(sh.Name) == "" || strings.TrimSpace(sh.ProjectID) == "" {
		return "", errors.New("stakeholder name and project id required")
	}
	sourceIDs, err := marshalStrings(sh.SourceIDs)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
                INSERT INTO stakeholders (id, project_id, name, role, department, influence, sentiment, source_ids)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(project_id, name) DO UPDATE SET
                        role = excluded.role,
                        department = excluded.department,
                        influence = excluded.influence,
                        sentiment = excluded.sentiment,
                        source_ids = excluded.source_ids`,
		sh.ID, sh.ProjectID, sh.Name, sh.Role, sh.Department,
		string(sh.Influence), string(sh.Sentiment), sourceIDs)
	if err != nil {
		return "", fmt.Errorf("upsert stakeholder: %w", err)
	}
	var id string
	err = s.db.GetContext(ctx, &id, `
                SELECT id FROM stakeholders WHERE project_id = ? AND name = ?`,
		sh.ProjectID, sh.Name)
	if err != nil {
		return "", fmt.Errorf("load stakeholder id: %w", err)
	}
	return id, nil
}

// ListStakeholders returns all stakeholders for a project.
func (s *Store) ListStakeholders(ctx context.Context, projectID string) ([]model.Stakeholder, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID         string         `db:"id"`
		ProjectID  string         `db:"project_id"`
		Name       string         `db:"name"`
		Role       sql.NullString `db:"role"`
		Department sql.NullString `db:"department"`
		Influence  string         `db:"influence"`
		Sentiment  string         `db:"sentiment"`
		SourceIDs  sql.NullString `db:"source_ids"`
		CreatedAt  time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
                SELECT id, project_id, name, role, department, influence, sentiment, source_ids, created_at
                FROM stakeholders WHERE project_id = ? ORDER BY name`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list stakeholders: %w", err)
	}
	stakeholders := make([]model.Stakeholder, 0, len(rows))
	for _, row := range rows {
		sh := model.Stakeholder{
			ID:        row.ID,
			ProjectID: row.ProjectID,
			Name:      row.Name,
			Influence: model.InfluenceLevel(row.Influence),
			Sentiment: model.Sentiment(row.Sentiment),
			CreatedAt: row.CreatedAt,
		}
		if row.Role.Valid {
			sh.Role = row.Role.String
		}
		if row.Department.Valid {
			sh.Department = row.Department.String
		}
		sh.SourceIDs = unmarshalStrings(row.SourceIDs)
		stakeholders = append(stakeholders, sh)
	}
	return stakeholders, nil
}

// InsertDecision persists one decision.
func (s *Store) InsertDecision(ctx context.Context, dec model.Decision) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(dec.ID) == "" || strings.TrimSpace(dec.ProjectID) == "" {
		return errors.New("decision id and project id required")
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO decisions (project_id, id, title, description, decision_type, status,
                                       confidence, source_id, excerpt)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dec.ProjectID, dec.ID, dec.Title, dec.Description, string(dec.Type), string(dec.Status),
		model.ClampScore(dec.Confidence), dec.SourceID, dec.Excerpt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns all decisions for a project ordered by label.
func (s *Store) ListDecisions(ctx context.Context, projectID string) ([]model.Decision, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID          string         `db:"id"`
		ProjectID   string         `db:"project_id"`
		Title       string         `db:"title"`
		Description sql.NullString `db:"description"`
		Type        string         `db:"decision_type"`
		Status      string         `db:"status"`
		Confidence  float64        `db:"confidence"`
		SourceID    sql.NullString `db:"source_id"`
		Excerpt     sql.NullString `db:"excerpt"`
		CreatedAt   time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
                SELECT project_id, id, title, description, decision_type, status,
                       confidence, source_id, excerpt, created_at
                FROM decisions WHERE project_id = ? ORDER BY LENGTH(id), id`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	decisions := make([]model.Decision, 0, len(rows))
	for _, row := range rows {
		dec := model.Decision{
			ID:         row.ID,
			ProjectID:  row.ProjectID,
			Title:      row.Title,
			Type:       model.DecisionType(row.Type),
			Status:     model.DecisionStatus(row.Status),
			Confidence: row.Confidence,
			CreatedAt:  row.CreatedAt,
		}
		if row.Description.Valid {
			dec.Description = row.Description.String
		}
		if row.SourceID.Valid {
			dec.SourceID = row.SourceID.String
		}
		if row.Excerpt.Valid {
			dec.Excerpt = row.Excerpt.String
		}
		decisions = append(decisions, dec)
	}
	return decisions, nil
}

// InsertTimelineEvent persists one timeline event.
func (s *Store) InsertTimelineEvent(ctx context.Context, event model.TimelineEvent) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.ProjectID) == "" {
		return errors.New("timeline event id and project id required")
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO timeline_events (id, project_id, title, description, event_date,
                                             event_type, confidence, source_id)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ProjectID, event.Title, event.Description, event.Date,
		string(event.Type), model.ClampScore(event.Confidence), event.SourceID)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// ListTimelineEvents returns all timeline events for a project.
func (s *Store) ListTimelineEvents(ctx context.Context, projectID string) ([]model.TimelineEvent, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID          string         `db:"id"`
		ProjectID   string         `db:"project_id"`
		Title       string         `db:"title"`
		Description sql.NullString `db:"description"`
		Date        sql.NullString `db:"event_date"`
		Type        string         `db:"event_type"`
		Confidence  float64        `db:"confidence"`
		SourceID    sql.NullString `db:"source_id"`
		CreatedAt   time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
                SELECT id, project_id, title, description, event_date, event_type,
                       confidence, source_id, created_at
                FROM timeline_events WHERE project_id = ? ORDER BY created_at, id`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	events := make([]model.TimelineEvent, 0, len(rows))
	for _, row := range rows {
		event := model.TimelineEvent{
			ID:         row.ID,
			ProjectID:  row.ProjectID,
			Title:      row.Title,
			Type:       model.TimelineEventType(row.Type),
			Confidence: row.Confidence,
			CreatedAt:  row.CreatedAt,
		}
		if row.Description.Valid {
			event.Description = row.Description.String
		}
		if row.Date.Valid {
			event.Date = row.Date.String
		}
		if row.SourceID.Valid {
			event.SourceID = row.SourceID.String
		}
		events = append(events, event)
	}
	return events, nil
}

// InsertConflict persists one conflict and its contradicting requirement
// set in a single transaction. Conflict labels are numbered per extraction
// batch, so a re-run reuses labels; the write replaces any prior conflict
// with the same label.
func (s *Store) InsertConflict(ctx context.Context, conflict model.Conflict) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(conflict.ID) == "" || strings.TrimSpace(conflict.ProjectID) == "" {
		return errors.New("conflict id and project id required")
	}
	if len(conflict.RequirementIDs) < 2 {
		return fmt.Errorf("conflict %s must reference at least two requirements", conflict.ID)
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin insert conflict: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
                INSERT INTO conflicts (project_id, id, title, description, severity)
                VALUES (?, ?, ?, ?, ?)
                ON CONFLICT(project_id, id) DO UPDATE SET
                        title = excluded.title,
                        description = excluded.description,
                        severity = excluded.severity`,
		conflict.ProjectID, conflict.ID, conflict.Title, conflict.Description, string(conflict.Severity))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert conflict: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
                DELETE FROM conflict_requirements WHERE project_id = ? AND conflict_id = ?`,
		conflict.ProjectID, conflict.ID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("clear conflict requirements: %w", err)
	}
	for _, reqID := range conflict.RequirementIDs {
		_, err = tx.ExecContext(ctx, `
                        INSERT INTO conflict_requirements (project_id, conflict_id, requirement_id)
                        VALUES (?, ?, ?)`,
			conflict.ProjectID, conflict.ID, reqID)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert conflict requirement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert conflict: %w", err)
	}
	return nil
}

// ListConflicts returns all conflicts for a project with their requirement
// id sets.
func (s *Store) ListConflicts(ctx context.Context, projectID string) ([]model.Conflict, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	projectID = strings.TrimSpace(projectID)
	var rows []struct {
		ID          string         `db:"id"`
		ProjectID   string         `db:"project_id"`
		Title       string         `db:"title"`
		Description sql.NullString `db:"description"`
		Severity    string         `db:"severity"`
		CreatedAt   time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
                SELECT project_id, id, title, description, severity, created_at
                FROM conflicts WHERE project_id = ? ORDER BY LENGTH(id), id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	var members []struct {
		ConflictID    string `db:"conflict_id"`
		RequirementID string `db:"requirement_id"`
	}
	err = s.db.SelectContext(ctx, &members, `
                SELECT conflict_id, requirement_id
                FROM conflict_requirements WHERE project_id = ? ORDER BY conflict_id, requirement_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list conflict requirements: %w", err)
	}
	byConflict := make(map[string][]string, len(rows))
	for _, member := range members {
		byConflict[member.ConflictID] = append(byConflict[member.ConflictID], member.RequirementID)
	}
	conflicts := make([]model.Conflict, 0, len(rows))
	for _, row := range rows {
		conflict := model.Conflict{
			ID:             row.ID,
			ProjectID:      row.ProjectID,
			Title:          row.Title,
			Severity:       model.ConflictSeverity(row.Severity),
			RequirementIDs: byConflict[row.ID],
			CreatedAt:      row.CreatedAt,
		}
		if row.Description.Valid {
			conflict.Description = row.Description.String
		}
		conflicts = append(conflicts, conflict)
	}
	return conflicts, nil
}

// InsertTraceLink persists one traceability edge. An edge with the same
// endpoints and relationship refreshes its strength instead of inserting
// a second row, so re-deriving links over an unchanged entity set is
// idempotent.
func (s *Store) InsertTraceLink(ctx context.Context, link model.TraceLink) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(link.ProjectID) == "" {
		return errors.New("trace link project id required")
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO trace_links (project_id, from_type, from_id, to_type, to_id, relationship, strength)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(project_id, from_type, from_id, to_type, to_id, relationship) DO UPDATE SET
                        strength = excluded.strength`,
		link.ProjectID, string(link.FromType), link.FromID, string(link.ToType), link.ToID,
		link.Relationship, model.ClampScore(link.Strength))
	if err != nil {
		return fmt.Errorf("insert trace link: %w", err)
	}
	return nil
}

// ListTraceLinks returns all traceability edges for a project.
func (s *Store) ListTraceLinks(ctx context.Context, projectID string) ([]model.TraceLink, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var links []model.TraceLink
	err := s.db.SelectContext(ctx, &links, `
                SELECT id, project_id, from_type, from_id, to_type, to_id, relationship, strength, created_at
                FROM trace_links WHERE project_id = ? ORDER BY id`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list trace links: %w", err)
	}
	return links, nil
}
