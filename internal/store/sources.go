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

// ErrSourceNotFound reports a lookup for a source id with no record.
var ErrSourceNotFound = errors.New("source not found")

type sourceRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	Name            string         `db:"name"`
	Kind            string         `db:"kind"`
	Content         string         `db:"content"`
	Status          string         `db:"status"`
	Relevance       float64        `db:"relevance"`
	DetectedType    sql.NullString `db:"detected_type"`
	Summary         sql.NullString `db:"summary"`
	Topics          sql.NullString `db:"topics"`
	HasRequirements bool           `db:"has_requirements"`
	HasDecisions    bool           `db:"has_decisions"`
	HasStakeholders bool           `db:"has_stakeholders"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r sourceRow) toModel() model.Source {
	src := model.Source{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Name:            r.Name,
		Kind:            model.SourceKind(r.Kind),
		Content:         r.Content,
		Status:          model.SourceStatus(r.Status),
		Relevance:       r.Relevance,
		HasRequirements: r.HasRequirements,
		HasDecisions:    r.HasDecisions,
		HasStakeholders: r.HasStakeholders,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.DetectedType.Valid {
		src.DetectedType = r.DetectedType.String
	}
	if r.Summary.Valid {
		src.Summary = r.Summary.String
	}
	src.Topics = unmarshalStrings(r.Topics)
	return src
}

// InsertSource persists a new source in pending status.
func (s *Store) InsertSource(ctx context.Context, src model.Source) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(src.ID) == "" || strings.TrimSpace(src.ProjectID) == "" {
		return errors.New("source id and project id required")
	}
	status := src.Status
	if status == "" {
		status = model.SourcePending
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO sources (id, project_id, name, kind, content, status, relevance)
                VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.ProjectID, src.Name, string(src.Kind), src.Content, string(status), src.Relevance)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// ListSources returns all sources for a project in insertion order.
func (s *Store) ListSources(ctx context.Context, projectID string) ([]model.Source, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []sourceRow
	err := s.db.SelectContext(ctx, &rows, `
                SELECT id, project_id, name, kind, content, status, relevance,
                       detected_type, summary, topics,
                       has_requirements, has_decisions, has_stakeholders,
                       created_at, updated_at
                FROM sources WHERE project_id = ? ORDER BY created_at, id`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	sources := make([]model.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.toModel())
	}
	return sources, nil
}

// UpdateSourceStatus advances the processing status of one source.
func (s *Store) UpdateSourceStatus(ctx context.Context, projectID, sourceID string, status model.SourceStatus) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
                UPDATE sources SET status = ?, updated_at = ?
                WHERE project_id = ? AND id = ?`,
		string(status), time.Now().UTC(), strings.TrimSpace(projectID), strings.TrimSpace(sourceID))
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	if affected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// SourceClassification is the classification stage result attached to a
// source record.
type SourceClassification struct {
	Relevance       float64
	DetectedType    string
	Summary         string
	Topics          []string
	HasRequirements bool
	HasDecisions    bool
	HasStakeholders bool
}

// ApplyClassification writes the classification result onto the source and
// marks it classified.
func (s *Store) ApplyClassification(ctx context.Context, projectID, sourceID string, result SourceClassification) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	topics, err := marshalStrings(result.Topics)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
                UPDATE sources
                SET status = ?, relevance = ?, detected_type = ?, summary = ?, topics = ?,
                    has_requirements = ?, has_decisions = ?, has_stakeholders = ?, updated_at = ?
                WHERE project_id = ? AND id = ?`,
		string(model.SourceClassified), model.ClampScore(result.Relevance),
		strings.TrimSpace(result.DetectedType), strings.TrimSpace(result.Summary), topics,
		result.HasRequirements, result.HasDecisions, result.HasStakeholders,
		time.Now().UTC(), strings.TrimSpace(projectID), strings.TrimSpace(sourceID))
	if err != nil {
		return fmt.Errorf("apply classification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply classification: %w", err)
	}
	if affected == 0 {
		return ErrSourceNotFound
	}
	return nil
}
