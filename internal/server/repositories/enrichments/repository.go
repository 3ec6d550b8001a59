package enrichments

import (
	"context"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

// Patch carries admin writes to a package enrichment. Nil fields keep the
// stored value, or the default on insert.
type Patch struct {
	RegistryMeta models.Meta
	Visibility   *models.Visibility
}

type Repository interface {
	Get(ctx context.Context, name string) (*models.PackageEnrichment, error)
	Upsert(ctx context.Context, name string, patch Patch, now time.Time) (*models.PackageEnrichment, error)
}
