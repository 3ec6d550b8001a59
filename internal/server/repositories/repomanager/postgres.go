// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/migrations"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/syncruns"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Servers returns a servers.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Servers(db dbx.DBTX) servers.Repository {
	return servers.NewPostgresRepository(db)
}

// Enrichments returns an enrichments.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Enrichments(db dbx.DBTX) enrichments.Repository {
	return enrichments.NewPostgresRepository(db)
}

// SyncRuns returns a syncruns.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SyncRuns(db dbx.DBTX) syncruns.Repository {
	return syncruns.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
