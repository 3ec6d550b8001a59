package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/compose"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
)

// AdminService is the only writer of locally owned fields: package
// enrichments and the per-version registry metadata and visibility.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	source      string
	now         func() time.Time
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, source string) *AdminService {
	if source == "" {
		source = common.DefaultSyncSource
	}
	return &AdminService{db: db, repomanager: m, source: source, now: time.Now}
}

func checkVisibility(v *models.Visibility) error {
	if v != nil && !v.Valid() {
		return fmt.Errorf("%w: unknown visibility %q", common.ErrInvalidArgument, *v)
	}
	return nil
}

// UpsertPackage creates or patches the enrichment of name.
func (s *AdminService) UpsertPackage(ctx context.Context, name string, patch enrichments.Patch) (*models.PackageEnrichment, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", common.ErrInvalidArgument)
	}
	if err := checkVisibility(patch.Visibility); err != nil {
		return nil, err
	}
	return s.repomanager.Enrichments(s.db).Upsert(ctx, name, patch, s.now().UTC())
}

// PatchVersion writes the protected fields of one version and returns the
// composed result. Missing versions are common.ErrorNotFound.
func (s *AdminService) PatchVersion(ctx context.Context, name, version string, patch servers.LocalPatch) (*compose.ServerJSON, error) {
	if err := checkVisibility(patch.Visibility); err != nil {
		return nil, err
	}
	return dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*compose.ServerJSON, error) {
		repo := s.repomanager.Servers(tx)
		if err := repo.UpdateLocal(ctx, name, version, patch, s.now().UTC()); err != nil {
			return nil, err
		}
		view, err := repo.GetVersion(ctx, name, version)
		if err != nil {
			return nil, err
		}
		out := compose.Server(*view)
		return &out, nil
	})
}

// ListRuns returns the newest ledger rows of the sync source.
func (s *AdminService) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit < common.MinPageLimit || limit > common.MaxPageLimit {
		return nil, fmt.Errorf("%w: limit must be between %d and %d", common.ErrInvalidArgument, common.MinPageLimit, common.MaxPageLimit)
	}
	return s.repomanager.SyncRuns(s.db).ListRecent(ctx, s.source, limit)
}
