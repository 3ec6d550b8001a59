package servers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/server/cursor"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

// ListQuery selects one page of the (name, version) ordered listing.
// Empty Visibility or Status disables that filter; a nil After starts from
// the beginning. Limit is the number of rows to fetch.
type ListQuery struct {
	Visibility models.Visibility
	Status     models.Status
	After      *cursor.Position
	Limit      int
}

// LocalPatch carries admin writes to the protected fields of one version.
// Nil fields are left unchanged.
type LocalPatch struct {
	RegistryMeta models.Meta
	Visibility   *models.Visibility
}

type Repository interface {
	Upsert(ctx context.Context, sv *models.ServerVersion, now time.Time) error
	List(ctx context.Context, q ListQuery) ([]models.ServerView, error)
	GetLatest(ctx context.Context, name string) (*models.ServerView, error)
	GetVersion(ctx context.Context, name, version string) (*models.ServerView, error)
	ListVersions(ctx context.Context, name string) ([]models.ServerView, error)
	UpdateLocal(ctx context.Context, name, version string, patch LocalPatch, now time.Time) error
	LatestConflicts(ctx context.Context) ([]string, error)
}
