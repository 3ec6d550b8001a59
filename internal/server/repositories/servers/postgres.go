// Package servers provides the PostgreSQL repository of mirrored server
// versions and the read queries joining them with package enrichments.
package servers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

// PostgresRepository implements server version storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const upsertQuery = `
	INSERT INTO server_versions (
		name, version, description, status, is_latest, repository, website_url,
		packages, remotes, publisher_meta, parent_registry_meta, published_at,
		version_registry_meta, visibility, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '{}', 'draft', $13, $13)
	ON CONFLICT (name, version)
	DO UPDATE SET
		description = EXCLUDED.description,
		status = EXCLUDED.status,
		is_latest = EXCLUDED.is_latest,
		repository = EXCLUDED.repository,
		website_url = EXCLUDED.website_url,
		packages = EXCLUDED.packages,
		remotes = EXCLUDED.remotes,
		publisher_meta = EXCLUDED.publisher_meta,
		parent_registry_meta = EXCLUDED.parent_registry_meta,
		published_at = EXCLUDED.published_at,
		updated_at = EXCLUDED.updated_at
`

// Upsert inserts sv or replaces the upstream-owned columns of the existing
// (name, version) row. version_registry_meta, visibility and created_at are
// only written on insert.
func (r *PostgresRepository) Upsert(ctx context.Context, sv *models.ServerVersion, now time.Time) error {
	_, err := r.db.ExecContext(ctx, upsertQuery,
		sv.Name, sv.Version, sv.Description, string(sv.Status), sv.IsLatest, sv.Repository, sv.WebsiteURL,
		sv.Packages, sv.Remotes, sv.PublisherMeta, sv.ParentRegistryMeta, sv.PublishedAt, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectViews = `
	SELECT sv.name, sv.version, sv.description, sv.status, sv.is_latest, sv.repository,
		sv.website_url, sv.packages, sv.remotes, sv.publisher_meta, sv.parent_registry_meta,
		sv.version_registry_meta, sv.visibility, sv.published_at, sv.created_at, sv.updated_at,
		pe.name, pe.registry_meta, pe.visibility, pe.created_at, pe.updated_at
	FROM server_versions sv
	LEFT JOIN package_enrichments pe ON pe.name = sv.name`

// List returns up to q.Limit rows ordered by (name, version) in byte order,
// strictly after q.After. The visibility filter requires both the version and
// its package to match; a missing package row counts as draft.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]models.ServerView, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Status != "" {
		conds = append(conds, "sv.status = "+arg(string(q.Status)))
	}
	if q.Visibility != "" {
		p := arg(string(q.Visibility))
		conds = append(conds, fmt.Sprintf("sv.visibility = %s AND COALESCE(pe.visibility, 'draft') = %s", p, p))
	}
	if q.After != nil {
		n, v := arg(q.After.Name), arg(q.After.Version)
		conds = append(conds, fmt.Sprintf("(sv.name > %s OR (sv.name = %s AND sv.version > %s))", n, n, v))
	}

	var sb strings.Builder
	sb.WriteString(selectViews)
	if len(conds) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString("\n\tORDER BY sv.name, sv.version\n\tLIMIT ")
	sb.WriteString(arg(q.Limit))

	return r.queryViews(ctx, sb.String(), args...)
}

// GetLatest returns the version of name flagged is_latest. When upstream
// flagged more than one, the most recently published wins.
func (r *PostgresRepository) GetLatest(ctx context.Context, name string) (*models.ServerView, error) {
	query := selectViews + `
	WHERE sv.name = $1 AND sv.is_latest
	ORDER BY sv.published_at DESC NULLS LAST, sv.version DESC
	LIMIT 1`
	return r.queryView(ctx, query, name)
}

// GetVersion returns the exact (name, version) row.
func (r *PostgresRepository) GetVersion(ctx context.Context, name, version string) (*models.ServerView, error) {
	query := selectViews + `
	WHERE sv.name = $1 AND sv.version = $2`
	return r.queryView(ctx, query, name, version)
}

// ListVersions returns every version of name, newest published first.
func (r *PostgresRepository) ListVersions(ctx context.Context, name string) ([]models.ServerView, error) {
	query := selectViews + `
	WHERE sv.name = $1
	ORDER BY sv.published_at DESC NULLS LAST, sv.version DESC`
	return r.queryViews(ctx, query, name)
}

// UpdateLocal writes the protected fields of one version. Returns
// common.ErrorNotFound when the row does not exist.
func (r *PostgresRepository) UpdateLocal(ctx context.Context, name, version string, patch LocalPatch, now time.Time) error {
	query := `
		UPDATE server_versions SET
			version_registry_meta = COALESCE($3::jsonb, version_registry_meta),
			visibility = COALESCE($4::text, visibility),
			updated_at = $5
		WHERE name = $1 AND version = $2
	`
	var meta, vis any
	if patch.RegistryMeta != nil {
		meta = patch.RegistryMeta
	}
	if patch.Visibility != nil {
		vis = string(*patch.Visibility)
	}

	res, err := r.db.ExecContext(ctx, query, name, version, meta, vis, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// LatestConflicts lists names that currently have more than one is_latest row.
func (r *PostgresRepository) LatestConflicts(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM server_versions
		WHERE is_latest
		GROUP BY name
		HAVING COUNT(*) > 1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (r *PostgresRepository) queryView(ctx context.Context, query string, args ...any) (*models.ServerView, error) {
	views, err := r.queryViews(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, common.ErrorNotFound
	}
	return &views[0], nil
}

func (r *PostgresRepository) queryViews(ctx context.Context, query string, args ...any) ([]models.ServerView, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ServerView
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanView(s scanner) (*models.ServerView, error) {
	var (
		sv                   models.ServerVersion
		status, visibility   string
		repo                 models.NullRepository
		publishedAt          sql.NullTime
		peName, peVisibility sql.NullString
		peMeta               models.Meta
		peCreated, peUpdated sql.NullTime
	)
	err := s.Scan(
		&sv.Name, &sv.Version, &sv.Description, &status, &sv.IsLatest, &repo,
		&sv.WebsiteURL, &sv.Packages, &sv.Remotes, &sv.PublisherMeta, &sv.ParentRegistryMeta,
		&sv.VersionRegistryMeta, &visibility, &publishedAt, &sv.CreatedAt, &sv.UpdatedAt,
		&peName, &peMeta, &peVisibility, &peCreated, &peUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("scan error: %w", err)
	}

	sv.Status = models.Status(status)
	sv.Visibility = models.Visibility(visibility)
	sv.Repository = repo.Repository
	if publishedAt.Valid {
		t := publishedAt.Time
		sv.PublishedAt = &t
	}

	view := &models.ServerView{Version: sv}
	if peName.Valid {
		view.Enrichment = &models.PackageEnrichment{
			Name:         peName.String,
			RegistryMeta: peMeta,
			Visibility:   models.Visibility(peVisibility.String),
			CreatedAt:    peCreated.Time,
			UpdatedAt:    peUpdated.Time,
		}
	}
	return view, nil
}
