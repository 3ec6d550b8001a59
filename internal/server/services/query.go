package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/compose"
	"github.com/dmitrijs2005/regmirror/internal/server/cursor"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
)

// ListParams selects one page of the server listing. Empty filters match
// everything; an empty cursor starts from the beginning.
type ListParams struct {
	Visibility string
	Status     string
	Cursor     string
	Limit      int
}

// ListResult is one page. NextCursor is empty on the last page.
type ListResult struct {
	Servers    []compose.ServerJSON
	NextCursor string
}

// QueryService serves the composed read views.
type QueryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewQueryService(db *sql.DB, m repomanager.RepositoryManager) *QueryService {
	return &QueryService{db: db, repomanager: m}
}

// List returns servers ordered by (name, version), strictly after p.Cursor.
// Invalid limits, filter values and cursors wrap common.ErrInvalidArgument.
func (s *QueryService) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if p.Limit < common.MinPageLimit || p.Limit > common.MaxPageLimit {
		return nil, fmt.Errorf("%w: limit must be between %d and %d", common.ErrInvalidArgument, common.MinPageLimit, common.MaxPageLimit)
	}

	q := servers.ListQuery{Limit: p.Limit + 1}

	if p.Visibility != "" {
		q.Visibility = models.Visibility(p.Visibility)
		if !q.Visibility.Valid() {
			return nil, fmt.Errorf("%w: unknown visibility %q", common.ErrInvalidArgument, p.Visibility)
		}
	}
	if p.Status != "" {
		q.Status = models.Status(p.Status)
		if !q.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", common.ErrInvalidArgument, p.Status)
		}
	}

	after, err := cursor.Decode(p.Cursor)
	if err != nil {
		return nil, err
	}
	q.After = after

	views, err := s.repomanager.Servers(s.db).List(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &ListResult{}
	if len(views) > p.Limit {
		views = views[:p.Limit]
		last := views[p.Limit-1].Version
		res.NextCursor = cursor.Encode(cursor.Position{Name: last.Name, Version: last.Version})
	}
	res.Servers = compose.Servers(views)
	return res, nil
}

// GetLatest returns the latest version of name.
func (s *QueryService) GetLatest(ctx context.Context, name string) (*compose.ServerJSON, error) {
	view, err := s.repomanager.Servers(s.db).GetLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	out := compose.Server(*view)
	return &out, nil
}

// GetVersion returns the exact (name, version).
func (s *QueryService) GetVersion(ctx context.Context, name, version string) (*compose.ServerJSON, error) {
	view, err := s.repomanager.Servers(s.db).GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	out := compose.Server(*view)
	return &out, nil
}

// ListVersions returns every version of name, newest published first.
// A name without versions is common.ErrorNotFound.
func (s *QueryService) ListVersions(ctx context.Context, name string) ([]compose.ServerJSON, error) {
	views, err := s.repomanager.Servers(s.db).ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, common.ErrorNotFound
	}
	return compose.Servers(views), nil
}
