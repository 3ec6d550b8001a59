// Package enrichments stores package-level local curation, one row per
// server name. Only the admin surface writes here.
package enrichments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, name string) (*models.PackageEnrichment, error) {
	query := `
		SELECT name, registry_meta, visibility, created_at, updated_at
		FROM package_enrichments
		WHERE name = $1
	`
	return scan(r.db.QueryRowContext(ctx, query, name))
}

// Upsert creates the enrichment for name or applies patch to the existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, name string, patch Patch, now time.Time) (*models.PackageEnrichment, error) {
	query := `
		INSERT INTO package_enrichments (name, registry_meta, visibility, created_at, updated_at)
		VALUES ($1, COALESCE($2::jsonb, '{}'::jsonb), COALESCE($3::text, 'draft'), $4, $4)
		ON CONFLICT (name)
		DO UPDATE SET
			registry_meta = COALESCE($2::jsonb, package_enrichments.registry_meta),
			visibility = COALESCE($3::text, package_enrichments.visibility),
			updated_at = $4
		RETURNING name, registry_meta, visibility, created_at, updated_at
	`
	var meta, vis any
	if patch.RegistryMeta != nil {
		meta = patch.RegistryMeta
	}
	if patch.Visibility != nil {
		vis = string(*patch.Visibility)
	}

	return scan(r.db.QueryRowContext(ctx, query, name, meta, vis, now))
}

func scan(row *sql.Row) (*models.PackageEnrichment, error) {
	var (
		e          models.PackageEnrichment
		visibility string
	)
	err := row.Scan(&e.Name, &e.RegistryMeta, &visibility, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.Visibility = models.Visibility(visibility)
	return &e, nil
}
