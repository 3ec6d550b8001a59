// Package archive keeps raw upstream pages in S3-compatible object storage
// for later inspection. Archiving is best effort and never fails a sync.
package archive

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/dmitrijs2005/regmirror/internal/server/upstream"
)

// Archiver stores one object.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Archive(context.Context, string, []byte) error { return nil }

// PageKey returns the object key of a page:
// <prefix>/<yyyy>/<mm>/<dd>/<fetch id>/page-00001.json.
func PageKey(prefix string, at time.Time, p upstream.Page) string {
	at = at.UTC()
	return path.Join(prefix,
		fmt.Sprintf("%04d/%02d/%02d", at.Year(), at.Month(), at.Day()),
		p.FetchID,
		fmt.Sprintf("page-%05d.json", p.Index))
}

// Hook adapts a to an upstream page hook. Failures are logged at warn.
func Hook(a Archiver, prefix string, logger logging.Logger) upstream.PageFunc {
	return func(ctx context.Context, p upstream.Page) {
		key := PageKey(prefix, time.Now(), p)
		if err := a.Archive(ctx, key, p.Body); err != nil {
			logger.Warn(ctx, "page archive failed", "key", key, "error", err)
			return
		}
		logger.Debug(ctx, "page archived", "key", key, "bytes", len(p.Body))
	}
}
