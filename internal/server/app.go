// Package server wires the mirror together: storage and migrations, the
// sync lease, the upstream client with its optional page archive, the
// services, the HTTP API and the sync scheduler.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/dmitrijs2005/regmirror/internal/server/archive"
	"github.com/dmitrijs2005/regmirror/internal/server/config"
	"github.com/dmitrijs2005/regmirror/internal/server/lease"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/regmirror/internal/server/rest"
	"github.com/dmitrijs2005/regmirror/internal/server/scheduler"
	"github.com/dmitrijs2005/regmirror/internal/server/services"
	"github.com/dmitrijs2005/regmirror/internal/server/upstream"
	"github.com/dmitrijs2005/regmirror/internal/server/validation"
)

const startupTimeout = 30 * time.Second

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	syncService  *services.SyncService
	queryService *services.QueryService
	adminService *services.AdminService
	closers      []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		return err
	}

	opts := []upstream.Option{
		upstream.WithPageSize(c.UpstreamPageSize),
		upstream.WithRequestTimeout(c.RequestTimeout),
		upstream.WithLogger(app.logger.With("module", "upstream")),
	}
	if c.S3Bucket != "" {
		a, err := archive.NewS3(ctx, archive.S3Config{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return fmt.Errorf("archive init error: %w", err)
		}
		opts = append(opts, upstream.WithPageHook(archive.Hook(a, c.S3Prefix, app.logger.With("module", "archive"))))
		app.logger.Info(ctx, "upstream page archive enabled", "bucket", c.S3Bucket, "prefix", c.S3Prefix)
	}
	client := upstream.NewClient(c.UpstreamURL, opts...)

	app.syncService = services.NewSyncService(db, rm, client, validation.New(), locker, app.logger,
		services.SyncOptions{Source: c.SyncSource, LeaseTTL: c.LeaseTTL})
	app.queryService = services.NewQueryService(db, rm)
	app.adminService = services.NewAdminService(db, rm, c.SyncSource)

	return nil
}

// newLocker returns the Redis lease when an address is configured and the
// in-process one otherwise.
func (app *App) newLocker(ctx context.Context) (lease.Locker, error) {
	if app.config.RedisAddr == "" {
		app.logger.Info(ctx, "no redis configured, sync lease is in-process")
		return lease.NewMemory(), nil
	}
	rdb, err := lease.NewRedisClient(ctx, app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, rdb.Close)
	return lease.NewRedis(rdb), nil
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close error", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := rest.NewRouter(rest.Deps{
		Queries:     app.queryService,
		Admin:       app.adminService,
		Sync:        app.syncService,
		Health:      app.db,
		Logger:      app.logger.With("module", "rest"),
		AdminSecret: []byte(app.config.AdminSecret),
	})

	s := rest.NewServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) scheduledSync(ctx context.Context) {
	res, err := app.syncService.Run(ctx)
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		app.logger.Info(ctx, "scheduled sync skipped, another run holds the lease")
	case err != nil:
		app.logger.Error(ctx, "scheduled sync not executed", "error", err)
	default:
		app.logger.Info(ctx, "scheduled sync done", "status", res.Status, "run_id", res.RunID)
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		scheduler.Every(ctx, app.config.SyncInterval, app.scheduledSync)
	}()

	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")
}
