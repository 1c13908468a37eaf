package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/models"
)

const defaultAttemptLimit = 50

// RecordAttempt appends one publish attempt.
func (db *DB) RecordAttempt(ctx context.Context, a models.Attempt) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attempts (id, path, publication, title, draft_id, created, published,
			outcome, error, images_uploaded, image_errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Path, a.Publication, a.Title, a.DraftID, a.Created, a.Published,
		a.Outcome, a.Error, a.ImagesUploaded, a.ImageErrors, a.StartedAt.UTC(), a.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: record attempt: %w", err)
	}
	return nil
}

// UpsertPublication stores the latest known remote state of a note.
// Empty canonical URLs do not overwrite a stored one, and published never
// goes back to false.
func (db *DB) UpsertPublication(ctx context.Context, p models.Publication) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO publications (path, publication, draft_id, title, canonical_url, body_checksum, published, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, publication) DO UPDATE SET
			draft_id      = excluded.draft_id,
			title         = excluded.title,
			canonical_url = CASE WHEN excluded.canonical_url = '' THEN publications.canonical_url ELSE excluded.canonical_url END,
			body_checksum = excluded.body_checksum,
			published     = MAX(publications.published, excluded.published),
			updated_at    = excluded.updated_at
	`, p.Path, p.Publication, p.DraftID, p.Title, p.CanonicalURL, p.BodyChecksum, p.Published, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: upsert publication: %w", err)
	}
	return nil
}

// GetPublication returns the record for a note, or apperr.ErrNotFound.
func (db *DB) GetPublication(ctx context.Context, path, publication string) (*models.Publication, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT path, publication, draft_id, title, canonical_url, body_checksum, published, updated_at
		FROM publications WHERE path = ? AND publication = ?
	`, path, publication)
	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get publication: %w", err)
	}
	return p, nil
}

// ListPublications returns every record, most recently updated first.
func (db *DB) ListPublications(ctx context.Context) ([]models.Publication, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, publication, draft_id, title, canonical_url, body_checksum, published, updated_at
		FROM publications ORDER BY updated_at DESC, path
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list publications: %w", err)
	}
	defer rows.Close()

	out := []models.Publication{}
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan publication: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListAttempts returns the newest attempts, optionally for one path.
// A non-positive limit means the default.
func (db *DB) ListAttempts(ctx context.Context, path string, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = defaultAttemptLimit
	}
	query := `
		SELECT id, path, publication, title, draft_id, created, published, outcome, error,
			images_uploaded, image_errors, started_at, finished_at
		FROM attempts`
	args := []any{}
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list attempts: %w", err)
	}
	defer rows.Close()

	out := []models.Attempt{}
	for rows.Next() {
		var a models.Attempt
		if err := rows.Scan(&a.ID, &a.Path, &a.Publication, &a.Title, &a.DraftID, &a.Created,
			&a.Published, &a.Outcome, &a.Error, &a.ImagesUploaded, &a.ImageErrors,
			&a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeletePath forgets the publication records of a note. Attempts are kept.
func (db *DB) DeletePath(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM publications WHERE path = ?`, path); err != nil {
		return fmt.Errorf("ledger: delete path: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPublication(s scanner) (*models.Publication, error) {
	var p models.Publication
	if err := s.Scan(&p.Path, &p.Publication, &p.DraftID, &p.Title, &p.CanonicalURL,
		&p.BodyChecksum, &p.Published, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
