package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/syncruns"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Servers(db dbx.DBTX) servers.Repository
	Enrichments(db dbx.DBTX) enrichments.Repository
	SyncRuns(db dbx.DBTX) syncruns.Repository
}
