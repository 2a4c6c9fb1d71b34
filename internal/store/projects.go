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

// ErrProjectNotFound reports a lookup for a project id with no record.
var ErrProjectNotFound = errors.New("project not found")

// UpsertProject creates the project record if it does not exist yet and
// refreshes its name when it does. New projects start in draft.
func (s *Store) UpsertProject(ctx context.Context, id, name string) (model.Project, error) {
	if err := s.ensureReady(); err != nil {
		return model.Project{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Project{}, errors.New("project id required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO projects (id, name, status, progress)
                VALUES (?, ?, 'draft', 0)
                ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
		id, name)
	if err != nil {
		return model.Project{}, fmt.Errorf("upsert project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject loads one project record.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	if err := s.ensureReady(); err != nil {
		return model.Project{}, err
	}
	var project model.Project
	err := s.db.GetContext(ctx, &project, `
                SELECT id, name, status, progress, created_at, updated_at
                FROM projects WHERE id = ?`, strings.TrimSpace(id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, ErrProjectNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by recency.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var projects []model.Project
	err := s.db.SelectContext(ctx, &projects, `
                SELECT id, name, status, progress, created_at, updated_at
                FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// SetProjectStatus updates the user-visible project status and progress
// percentage.
func (s *Store) SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus, progress int) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res, err := s.db.ExecContext(ctx, `
                UPDATE projects SET status = ?, progress = ?, updated_at = ?
                WHERE id = ?`,
		string(status), progress, time.Now().UTC(), strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// DeleteDerived removes everything the pipeline previously extracted for a
// project while preserving sources and run history. Used by the regenerate
// option before a fresh run.
func (s *Store) DeleteDerived(ctx context.Context, projectID string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return errors.New("project id required")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin regenerate wipe: %w", err)
	}
	statements := []string{
		`DELETE FROM trace_links WHERE project_id = ?`,
		`DELETE FROM conflict_requirements WHERE project_id = ?`,
		`DELETE FROM conflicts WHERE project_id = ?`,
		`DELETE FROM timeline_events WHERE project_id = ?`,
		`DELETE FROM decisions WHERE project_id = ?`,
		`DELETE FROM stakeholders WHERE project_id = ?`,
		`DELETE FROM requirements WHERE project_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
			tx.Rollback()
			return fmt.Errorf("regenerate wipe: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit regenerate wipe: %w", err)
	}
	return nil
}
