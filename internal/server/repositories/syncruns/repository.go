package syncruns

import (
	"context"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, run *models.SyncRun) (int64, error)
	LastSuccessfulWatermark(ctx context.Context, source string) (*time.Time, error)
	ListRecent(ctx context.Context, source string, limit int) ([]models.SyncRun, error)
}
