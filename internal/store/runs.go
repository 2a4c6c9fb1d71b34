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

// ErrRunActive is returned by ClaimRun when the project already has a
// non-terminal pipeline run.
var ErrRunActive = errors.New("pipeline run already in progress")

// ErrRunNotFound is returned when no pipeline run matches a lookup.
var ErrRunNotFound = errors.New("pipeline run not found")

// ClaimRun inserts a new run record for the project, but only if no
// non-terminal run exists. The existence check and the insert execute in
// one transaction so concurrent starts cannot both claim the project.
func (s *Store) ClaimRun(ctx context.Context, runID, projectID string, startedAt time.Time) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	runID = strings.TrimSpace(runID)
	projectID = strings.TrimSpace(projectID)
	if runID == "" || projectID == "" {
		return errors.New("run id and project id required")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin claim run: %w", err)
	}
	var active int
	err = tx.GetContext(ctx, &active, `
                SELECT COUNT(1) FROM pipeline_runs
                WHERE project_id = ? AND status NOT IN (?, ?, ?)`,
		projectID, string(model.RunCompleted), string(model.RunFailed), string(model.RunCancelled))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("check active runs: %w", err)
	}
	if active > 0 {
		tx.Rollback()
		return ErrRunActive
	}
	_, err = tx.ExecContext(ctx, `
                INSERT INTO pipeline_runs (id, project_id, status, started_at)
                VALUES (?, ?, ?, ?)`,
		runID, projectID, string(model.RunIngesting), startedAt.UTC())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim run: %w", err)
	}
	return nil
}

// SetRunStatus advances a run to the given status. Counters are persisted
// alongside so a crash never loses more than the current stage.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status model.RunStatus, counters model.RunCounters) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
                UPDATE pipeline_runs SET status = ?,
                        sources_processed = ?, requirements_found = ?, stakeholders_found = ?,
                        decisions_found = ?, conflicts_found = ?
                WHERE id = ?`,
		string(status), counters.SourcesProcessed, counters.RequirementsFound,
		counters.StakeholdersFound, counters.DecisionsFound, counters.ConflictsFound,
		strings.TrimSpace(runID))
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status rows: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun records a terminal status for the run along with the final
// counters, an optional error message and the completion timestamp.
func (s *Store) FinishRun(ctx context.Context, runID string, status model.RunStatus, counters model.RunCounters, errMsg string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if !status.Terminal() {
		return fmt.Errorf("finish run: status %q is not terminal", status)
	}
	result, err := s.db.ExecContext(ctx, `
                UPDATE pipeline_runs SET status = ?, error = ?, completed_at = ?,
                        sources_processed = ?, requirements_found = ?, stakeholders_found = ?,
                        decisions_found = ?, conflicts_found = ?
                WHERE id = ?`,
		string(status), strings.TrimSpace(errMsg), time.Now().UTC(),
		counters.SourcesProcessed, counters.RequirementsFound, counters.StakeholdersFound,
		counters.DecisionsFound, counters.ConflictsFound, strings.TrimSpace(runID))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

type runRow struct {
	ID                string         `db:"id"`
	ProjectID         string         `db:"project_id"`
	Status            string         `db:"status"`
	SourcesProcessed  int            `db:"sources_processed"`
	RequirementsFound int            `db:"requirements_found"`
	StakeholdersFound int            `db:"stakeholders_found"`
	DecisionsFound    int            `db:"decisions_found"`
	ConflictsFound    int            `db:"conflicts_found"`
	Error             sql.NullString `db:"error"`
	StartedAt         time.Time      `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
}

func (r runRow) toModel() model.PipelineRun {
	run := model.PipelineRun{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Status:    model.RunStatus(r.Status),
		Counters: model.RunCounters{
			SourcesProcessed:  r.SourcesProcessed,
			RequirementsFound: r.RequirementsFound,
			StakeholdersFound: r.StakeholdersFound,
			DecisionsFound:    r.DecisionsFound,
			ConflictsFound:    r.ConflictsFound,
		},
		StartedAt: r.StartedAt,
	}
	if r.Error.Valid {
		run.Error = r.Error.String
	}
	if r.CompletedAt.Valid {
		completed := r.CompletedAt.Time
		run.CompletedAt = &completed
	}
	return run
}

// LatestRun returns the most recently started run for a project.
func (s *Store) LatestRun(ctx context.Context, projectID string) (model.PipelineRun, error) {
	if err := s.ensureReady(); err != nil {
		return model.PipelineRun{}, err
	}
	var row runRow
	err := s.db.GetContext(ctx, &row, `
                SELECT id, project_id, status, sources_processed, requirements_found,
                       stakeholders_found, decisions_found, conflicts_found, error,
                       started_at, completed_at
                FROM pipeline_runs WHERE project_id = ?
                ORDER BY started_at DESC, id DESC LIMIT 1`, strings.TrimSpace(projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PipelineRun{}, ErrRunNotFound
	}
	if err != nil {
		return model.PipelineRun{}, fmt.Errorf("latest run: %w", err)
	}
	return row.toModel(), nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (model.PipelineRun, error) {
	if err := s.ensureReady(); err != nil {
		return model.PipelineRun{}, err
	}
	var row runRow
	err := s.db.GetContext(ctx, &row, `
                SELECT id, project_id, status, sources_processed, requirements_found,
                       stakeholders_found, decisions_found, conflicts_found, error,
                       started_at, completed_at
                FROM pipeline_runs WHERE id = ?`, strings.TrimSpace(runID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PipelineRun{}, ErrRunNotFound
	}
	if err != nil {
		return model.PipelineRun{}, fmt.Errorf("get run: %w", err)
	}
	return row.toModel(), nil
}

// AppendRunLog records one observability entry for a run.
func (s *Store) AppendRunLog(ctx context.Context, entry model.RunLogEntry) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
                INSERT INTO run_logs (run_id, project_id, agent, level, message, detail)
                VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.ProjectID, entry.Agent, entry.Level, entry.Message, entry.Detail)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// RecentRunLogs returns up to limit run log entries for a project, newest
// first.
func (s *Store) RecentRunLogs(ctx context.Context, projectID string, limit int) ([]model.RunLogEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		ID        int64          `db:"id"`
		RunID     string         `db:"run_id"`
		ProjectID string         `db:"project_id"`
		Agent     string         `db:"agent"`
		Level     string         `db:"level"`
		Message   string         `db:"message"`
		Detail    sql.NullString `db:"detail"`
		CreatedAt time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
                SELECT id, run_id, project_id, agent, level, message, detail, created_at
                FROM run_logs WHERE project_id = ?
                ORDER BY id DESC LIMIT ?`, strings.TrimSpace(projectID), limit)
	if err != nil {
		return nil, fmt.Errorf("recent run logs: %w", err)
	}
	entries := make([]model.RunLogEntry, 0, len(rows))
	for _, row := range rows {
		entry := model.RunLogEntry{
			ID:        row.ID,
			RunID:     row.RunID,
			ProjectID: row.ProjectID,
			Agent:     row.Agent,
			Level:     row.Level,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		}
		if row.Detail.Valid {
			entry.Detail = row.Detail.String
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
