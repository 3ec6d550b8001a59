// Package rest exposes the mirror over HTTP: the public read API under /v0,
// the admin surface under /admin and a health probe.
package rest

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/dmitrijs2005/regmirror/internal/server/compose"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/dmitrijs2005/regmirror/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Queries is the read side served under /v0.
type Queries interface {
	List(ctx context.Context, p services.ListParams) (*services.ListResult, error)
	GetLatest(ctx context.Context, name string) (*compose.ServerJSON, error)
	GetVersion(ctx context.Context, name, version string) (*compose.ServerJSON, error)
	ListVersions(ctx context.Context, name string) ([]compose.ServerJSON, error)
}

// Admin is the write side of locally owned fields.
type Admin interface {
	UpsertPackage(ctx context.Context, name string, patch enrichments.Patch) (*models.PackageEnrichment, error)
	PatchVersion(ctx context.Context, name, version string, patch servers.LocalPatch) (*compose.ServerJSON, error)
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// Syncer triggers one sync run.
type Syncer interface {
	Run(ctx context.Context) (*services.RunResult, error)
}

// Pinger reports storage health. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the router. AdminSecret signs admin tokens.
type Deps struct {
	Queries     Queries
	Admin       Admin
	Sync        Syncer
	Health      Pinger
	Logger      logging.Logger
	AdminSecret []byte
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine. Path parameters are matched on the raw
// path and unescaped afterwards, so a name such as a%2Fx reaches the
// handlers as "a/x".
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}

	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.HandleMethodNotAllowed = true

	h := &handlers{Deps: d}

	r.Use(requestLogger(d.Logger), recovery(d.Logger))
	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		abortWithError(c, http.StatusMethodNotAllowed, codeInvalidArgument, "method not allowed")
	})

	r.GET("/healthz", h.healthz)

	v0 := r.Group("/v0")
	v0.GET("/servers", h.listServers)
	v0.GET("/servers/:name", h.getLatest)
	v0.GET("/servers/:name/versions", h.listVersions)
	v0.GET("/servers/:name/versions/:version", h.getVersion)

	admin := r.Group("/admin", requireAdmin(d.AdminSecret, d.Logger))
	admin.POST("/sync", h.triggerSync)
	admin.GET("/sync/runs", h.listRuns)
	admin.PUT("/packages/:name", h.upsertPackage)
	admin.PATCH("/servers/:name/versions/:version", h.patchVersion)

	return r
}

func (h *handlers) healthz(c *gin.Context) {
	if err := h.Health.PingContext(c.Request.Context()); err != nil {
		h.Logger.Error(c.Request.Context(), "health check failed", "error", err)
		abortWithError(c, http.StatusServiceUnavailable, codeUnavailable, "database unreachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
