// Package syncruns is the append-only ledger of sync runs. The latest
// successful run of a source is the watermark of its next incremental fetch.
package syncruns

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends run and returns its id.
func (r *PostgresRepository) Insert(ctx context.Context, run *models.SyncRun) (int64, error) {
	query := `
		INSERT INTO sync_runs (source, status, records_processed, records_skipped, error_message, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		run.Source, string(run.Status), run.RecordsProcessed, run.RecordsSkipped, run.ErrorMessage, run.SyncedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	run.ID = id
	return id, nil
}

// LastSuccessfulWatermark returns the newest synced_at among successful runs
// of source, or nil when there is none.
func (r *PostgresRepository) LastSuccessfulWatermark(ctx context.Context, source string) (*time.Time, error) {
	query := `
		SELECT MAX(synced_at) FROM sync_runs
		WHERE source = $1 AND status = 'success'
	`
	var ts sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, source).Scan(&ts); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time
	return &t, nil
}

// ListRecent returns up to limit runs of source, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, source string, limit int) ([]models.SyncRun, error) {
	query := `
		SELECT id, source, status, records_processed, records_skipped, error_message, synced_at
		FROM sync_runs
		WHERE source = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.SyncRun
	for rows.Next() {
		var (
			run    models.SyncRun
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Source, &status, &run.RecordsProcessed, &run.RecordsSkipped, &errMsg, &run.SyncedAt); err != nil {
			return nil, err
		}
		run.Status = models.RunStatus(status)
		if errMsg.Valid {
			msg := errMsg.String
			run.ErrorMessage = &msg
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
