package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/korhaliv/projectlens/internal/model"
)

// ErrDocumentNotFound is returned when a project has no document of the
// requested type.
var ErrDocumentNotFound = errors.New("document not found")

// InsertDocumentVersion stores a new version of a generated document. The
// version number is one past the current maximum for (project, type), and
// all prior versions of the type are marked superseded in the same
// transaction.
func (s *Store) InsertDocumentVersion(ctx context.Context, doc model.GeneratedDocument) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	projectID := strings.TrimSpace(doc.ProjectID)
	docType := strings.TrimSpace(doc.DocType)
	if projectID == "" || docType == "" {
		return 0, errors.New("document project id and type required")
	}
	sections, err := json.Marshal(doc.Sections)
	if err != nil {
		return 0, fmt.Errorf("marshal document sections: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin insert document: %w", err)
	}
	var current int
	err = tx.GetContext(ctx, &current, `
                SELECT COALESCE(MAX(version), 0) FROM documents
                WHERE project_id = ? AND doc_type = ?`, projectID, docType)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("current document version: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
                UPDATE documents SET superseded = 1
                WHERE project_id = ? AND doc_type = ? AND superseded = 0`, projectID, docType)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("supersede documents: %w", err)
	}
	version := current + 1
	_, err = tx.ExecContext(ctx, `
                INSERT INTO documents (project_id, doc_type, version, sections, superseded)
                VALUES (?, ?, ?, ?, 0)`, projectID, docType, version, string(sections))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert document: %w", err)
	}
	return version, nil
}

type documentRow struct {
	ID         int64     `db:"id"`
	ProjectID  string    `db:"project_id"`
	DocType    string    `db:"doc_type"`
	Version    int       `db:"version"`
	Sections   string    `db:"sections"`
	Superseded bool      `db:"superseded"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r documentRow) toModel() (model.GeneratedDocument, error) {
	doc := model.GeneratedDocument{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		DocType:    r.DocType,
		Version:    r.Version,
		Superseded: r.Superseded,
		CreatedAt:  r.CreatedAt,
	}
	if strings.TrimSpace(r.Sections) != "" {
		if err := json.Unmarshal([]byte(r.Sections), &doc.Sections); err != nil {
			return model.GeneratedDocument{}, fmt.Errorf("unmarshal document sections: %w", err)
		}
	}
	return doc, nil
}

// LatestDocument returns the newest version of the given document type.
func (s *Store) LatestDocument(ctx context.Context, projectID, docType string) (model.GeneratedDocument, error) {
	if err := s.ensureReady(); err != nil {
		return model.GeneratedDocument{}, err
	}
	var row documentRow
	err := s.db.GetContext(ctx, &row, `
                SELECT id, project_id, doc_type, version, sections, superseded, created_at
                FROM documents WHERE project_id = ? AND doc_type = ?
                ORDER BY version DESC LIMIT 1`, strings.TrimSpace(projectID), strings.TrimSpace(docType))
	if errors.Is(err, sql.ErrNoRows) {
		return model.GeneratedDocument{}, ErrDocumentNotFound
	}
	if err != nil {
		return model.GeneratedDocument{}, fmt.Errorf("latest document: %w", err)
	}
	return row.toModel()
}

// GetDocumentVersion returns one specific version of a document type.
func (s *Store) GetDocumentVersion(ctx context.Context, projectID, docType string, version int) (model.GeneratedDocument, error) {
	if err := s.ensureReady(); err != nil {
		return model.GeneratedDocument{}, err
	}
	var row documentRow
	err := s.db.GetContext(ctx, &row, `
                SELECT id, project_id, doc_type, version, sections, superseded, created_at
                FROM documents WHERE project_id = ? AND doc_type = ? AND version = ?`,
		strings.TrimSpace(projectID), strings.TrimSpace(docType), version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GeneratedDocument{}, ErrDocumentNotFound
	}
	if err != nil {
		return model.GeneratedDocument{}, fmt.Errorf("get document version: %w", err)
	}
	return row.toModel()
}

// ListDocumentVersions returns all versions of a document type, newest
// first, without section bodies hydrated.
func (s *Store) ListDocumentVersions(ctx context.Context, projectID, docType string) ([]model.GeneratedDocument, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
                SELECT id, project_id, doc_type, version, sections, superseded, created_at
                FROM documents WHERE project_id = ? AND doc_type = ?
                ORDER BY version DESC`, strings.TrimSpace(projectID), strings.TrimSpace(docType))
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	docs := make([]model.GeneratedDocument, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
