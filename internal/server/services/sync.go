// Package services contains server-side business logic: the sync run that
// reconciles the upstream feed into local storage, the read queries, and the
// admin writes to locally owned fields.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/dmitrijs2005/regmirror/internal/server/lease"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/repomanager"
)

// ErrSyncInProgress is returned by Run when another run of the same source
// holds the lease. Nothing is executed or recorded in that case.
var ErrSyncInProgress = errors.New("sync already in progress")

// Fetcher yields raw upstream entries changed since watermark.
type Fetcher interface {
	FetchSince(ctx context.Context, watermark *time.Time) iter.Seq2[json.RawMessage, error]
}

// RecordValidator turns one raw entry into a server version or rejects it.
type RecordValidator interface {
	Validate(raw json.RawMessage) (*models.ServerVersion, error)
}

// RunResult is the outcome of one executed sync run.
type RunResult struct {
	RunID     int64
	Source    string
	Status    models.RunStatus
	Processed int
	Skipped   int
	Error     string
	// SyncedAt is the run start; it becomes the next watermark on success.
	SyncedAt time.Time
	// Watermark is the lower bound used for this run's fetch, nil on bootstrap.
	Watermark *time.Time
}

// SyncOptions tunes a SyncService. Zero values mean defaults.
type SyncOptions struct {
	Source   string
	LeaseTTL time.Duration
}

// SyncService reconciles the upstream feed into local storage.
//
// A run fetches everything changed since the last successful run, skips
// entries the validator rejects, and commits all upserts together with the
// success ledger row in one transaction. Any fetch or storage error aborts
// the run, and a standalone failure row is recorded instead.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	fetcher     Fetcher
	validator   RecordValidator
	locker      lease.Locker
	logger      logging.Logger
	source      string
	leaseTTL    time.Duration
	now         func() time.Time
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, f Fetcher, v RecordValidator,
	locker lease.Locker, logger logging.Logger, opts SyncOptions) *SyncService {
	if opts.Source == "" {
		opts.Source = common.DefaultSyncSource
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	return &SyncService{
		db:          db,
		repomanager: m,
		fetcher:     f,
		validator:   v,
		locker:      locker,
		logger:      logger.With("module", "sync", "source", opts.Source),
		source:      opts.Source,
		leaseTTL:    opts.LeaseTTL,
		now:         time.Now,
	}
}

// Source is the ledger tag of this service's runs.
func (s *SyncService) Source() string {
	return s.source
}

// Run executes one sync run. Run-level failures are reported through the
// returned RunResult with Status failure; the error return is reserved for
// runs that did not execute (ErrSyncInProgress, lease backend errors).
func (s *SyncService) Run(ctx context.Context) (*RunResult, error) {
	deadline := time.Now().Add(s.leaseTTL)
	l, err := s.locker.Acquire(ctx, lease.SyncKey(s.source), s.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, ErrSyncInProgress
		}
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), l); err != nil {
			s.logger.Warn(ctx, "sync lease release failed", "error", err)
		}
	}()

	// The run must not outlive its lease; once it lapses another run may start.
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	res := &RunResult{Source: s.source, SyncedAt: s.now().UTC()}

	watermark, err := s.repomanager.SyncRuns(s.db).LastSuccessfulWatermark(ctx, s.source)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("read watermark: %w", err)), nil
	}
	res.Watermark = watermark

	s.logger.Info(ctx, "sync started", "watermark", watermark)

	records, skipped, err := s.collect(ctx, watermark)
	res.Skipped = skipped
	if err != nil {
		return s.fail(ctx, res, err), nil
	}

	if dup := duplicateLatest(records); len(dup) > 0 {
		s.logger.Warn(ctx, "upstream batch flags several latest versions", "names", dup)
	}

	run := &models.SyncRun{
		Source:           s.source,
		Status:           models.RunSuccess,
		RecordsProcessed: len(records),
		RecordsSkipped:   skipped,
		SyncedAt:         res.SyncedAt,
	}
	runID, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		now := s.now().UTC()
		repo := s.repomanager.Servers(tx)
		for _, sv := range records {
			if err := repo.Upsert(ctx, sv, now); err != nil {
				return 0, fmt.Errorf("upsert %s@%s: %w", sv.Name, sv.Version, err)
			}
		}
		return s.repomanager.SyncRuns(tx).Insert(ctx, run)
	})
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("commit batch: %w", err)), nil
	}

	res.RunID = runID
	res.Status = models.RunSuccess
	res.Processed = len(records)

	s.logger.Info(ctx, "sync finished", "run_id", runID, "processed", res.Processed, "skipped", res.Skipped)

	s.checkLatestConflicts(ctx)

	return res, nil
}

// collect drains the fetch, validating each entry. Rejected entries are
// counted and logged; the first fetch error aborts.
func (s *SyncService) collect(ctx context.Context, watermark *time.Time) ([]*models.ServerVersion, int, error) {
	var (
		records []*models.ServerVersion
		skipped int
	)
	for raw, err := range s.fetcher.FetchSince(ctx, watermark) {
		if err != nil {
			return nil, skipped, fmt.Errorf("fetch: %w", err)
		}
		sv, err := s.validator.Validate(raw)
		if err != nil {
			skipped++
			s.logger.Warn(ctx, "record skipped", "reason", err.Error())
			continue
		}
		records = append(records, sv)
	}
	if err := ctx.Err(); err != nil {
		return nil, skipped, fmt.Errorf("run aborted: %w", err)
	}
	return records, skipped, nil
}

// fail records a standalone failure row and completes res.
func (s *SyncService) fail(ctx context.Context, res *RunResult, cause error) *RunResult {
	res.Status = models.RunFailure
	res.Processed = 0
	res.Error = cause.Error()

	s.logger.Error(ctx, "sync failed", "error", res.Error, "skipped", res.Skipped)

	msg := res.Error
	id, err := s.repomanager.SyncRuns(s.db).Insert(context.WithoutCancel(ctx), &models.SyncRun{
		Source:         s.source,
		Status:         models.RunFailure,
		RecordsSkipped: res.Skipped,
		ErrorMessage:   &msg,
		SyncedAt:       res.SyncedAt,
	})
	if err != nil {
		s.logger.Error(ctx, "failure ledger insert failed", "error", err)
		return res
	}
	res.RunID = id
	return res
}

func (s *SyncService) checkLatestConflicts(ctx context.Context) {
	names, err := s.repomanager.Servers(s.db).LatestConflicts(ctx)
	if err != nil {
		s.logger.Warn(ctx, "latest conflict check failed", "error", err)
		return
	}
	if len(names) > 0 {
		s.logger.Warn(ctx, "stored versions flag several latest versions", "names", names)
	}
}

// duplicateLatest lists, sorted, every name with more than one isLatest
// record in batch.
func duplicateLatest(batch []*models.ServerVersion) []string {
	latest := make(map[string]map[string]struct{})
	for _, sv := range batch {
		if !sv.IsLatest {
			continue
		}
		if latest[sv.Name] == nil {
			latest[sv.Name] = make(map[string]struct{})
		}
		latest[sv.Name][sv.Version] = struct{}{}
	}
	var names []string
	for name, versions := range latest {
		if len(versions) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
