package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/dbx"
	"github.com/dmitrijs2005/regmirror/internal/server/cursor"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/syncruns"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type versionKey struct{ name, version string }

// memStore mirrors the SQL semantics of the PostgreSQL repositories.
type memStore struct {
	mu          sync.Mutex
	versions    map[versionKey]models.ServerVersion
	enrichments map[string]models.PackageEnrichment
	runs        []models.SyncRun

	upsertErr    error
	insertRunErr error
	watermarkErr error
	listErr      error
}

func newMemStore() *memStore {
	return &memStore{
		versions:    make(map[versionKey]models.ServerVersion),
		enrichments: make(map[string]models.PackageEnrichment),
	}
}

func cloneMeta(m models.Meta) models.Meta {
	if m == nil {
		return nil
	}
	out := make(models.Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) view(sv models.ServerVersion) models.ServerView {
	v := models.ServerView{Version: sv}
	if e, ok := s.enrichments[sv.Name]; ok {
		e := e
		v.Enrichment = &e
	}
	return v
}

func (s *memStore) sortedKeys() []versionKey {
	keys := make([]versionKey, 0, len(s.versions))
	for k := range s.versions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].version < keys[j].version
	})
	return keys
}

type memServers struct{ s *memStore }

func (r memServers) Upsert(_ context.Context, sv *models.ServerVersion, now time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}

	k := versionKey{sv.Name, sv.Version}
	row := *sv
	if old, ok := s.versions[k]; ok {
		row.VersionRegistryMeta = old.VersionRegistryMeta
		row.Visibility = old.Visibility
		row.CreatedAt = old.CreatedAt
	} else {
		row.VersionRegistryMeta = models.Meta{}
		row.Visibility = models.VisibilityDraft
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	s.versions[k] = row
	return nil
}

func (r memServers) List(_ context.Context, q servers.ListQuery) ([]models.ServerView, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []models.ServerView
	for _, k := range s.sortedKeys() {
		sv := s.versions[k]
		if q.Status != "" && sv.Status != q.Status {
			continue
		}
		if q.Visibility != "" {
			pkg := models.VisibilityDraft
			if e, ok := s.enrichments[sv.Name]; ok {
				pkg = e.Visibility
			}
			if sv.Visibility != q.Visibility || pkg != q.Visibility {
				continue
			}
		}
		if q.After != nil && !(cursor.Position{Name: k.name, Version: k.version}).After(*q.After) {
			continue
		}
		out = append(out, s.view(sv))
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (r memServers) GetLatest(_ context.Context, name string) (*models.ServerView, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.sortedKeys() {
		if sv := s.versions[k]; k.name == name && sv.IsLatest {
			v := s.view(sv)
			return &v, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memServers) GetVersion(_ context.Context, name, version string) (*models.ServerView, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.versions[versionKey{name, version}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	v := s.view(sv)
	return &v, nil
}

func (r memServers) ListVersions(_ context.Context, name string) ([]models.ServerView, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ServerView
	for _, k := range s.sortedKeys() {
		if k.name == name {
			out = append(out, s.view(s.versions[k]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Version.PublishedAt, out[j].Version.PublishedAt
		switch {
		case a == nil && b == nil:
			return out[i].Version.Version > out[j].Version.Version
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		default:
			return out[i].Version.Version > out[j].Version.Version
		}
	})
	return out, nil
}

func (r memServers) UpdateLocal(_ context.Context, name, version string, patch servers.LocalPatch, now time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	k := versionKey{name, version}
	sv, ok := s.versions[k]
	if !ok {
		return common.ErrorNotFound
	}
	if patch.RegistryMeta != nil {
		sv.VersionRegistryMeta = cloneMeta(patch.RegistryMeta)
	}
	if patch.Visibility != nil {
		sv.Visibility = *patch.Visibility
	}
	sv.UpdatedAt = now
	s.versions[k] = sv
	return nil
}

func (r memServers) LatestConflicts(context.Context) ([]string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	count := map[string]int{}
	for k, sv := range s.versions {
		if sv.IsLatest {
			count[k.name]++
		}
	}
	var names []string
	for n, c := range count {
		if c > 1 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

type memEnrichments struct{ s *memStore }

func (r memEnrichments) Get(_ context.Context, name string) (*models.PackageEnrichment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrichments[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (r memEnrichments) Upsert(_ context.Context, name string, patch enrichments.Patch, now time.Time) (*models.PackageEnrichment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrichments[name]
	if !ok {
		e = models.PackageEnrichment{Name: name, RegistryMeta: models.Meta{}, Visibility: models.VisibilityDraft, CreatedAt: now}
	}
	if patch.RegistryMeta != nil {
		e.RegistryMeta = cloneMeta(patch.RegistryMeta)
	}
	if patch.Visibility != nil {
		e.Visibility = *patch.Visibility
	}
	e.UpdatedAt = now
	r.s.enrichments[name] = e
	return &e, nil
}

type memRuns struct{ s *memStore }

func (r memRuns) Insert(_ context.Context, run *models.SyncRun) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.insertRunErr != nil {
		return 0, r.s.insertRunErr
	}
	run.ID = int64(len(r.s.runs) + 1)
	r.s.runs = append(r.s.runs, *run)
	return run.ID, nil
}

func (r memRuns) LastSuccessfulWatermark(_ context.Context, source string) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.watermarkErr != nil {
		return nil, r.s.watermarkErr
	}
	var max *time.Time
	for _, run := range r.s.runs {
		if run.Source == source && run.Status == models.RunSuccess && (max == nil || run.SyncedAt.After(*max)) {
			t := run.SyncedAt
			max = &t
		}
	}
	return max, nil
}

func (r memRuns) ListRecent(_ context.Context, source string, limit int) ([]models.SyncRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.SyncRun
	for i := len(r.s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.runs[i].Source == source {
			out = append(out, r.s.runs[i])
		}
	}
	return out, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Servers(dbx.DBTX) servers.Repository          { return memServers{m.s} }
func (m *fakeRepoManager) Enrichments(dbx.DBTX) enrichments.Repository  { return memEnrichments{m.s} }
func (m *fakeRepoManager) SyncRuns(dbx.DBTX) syncruns.Repository        { return memRuns{m.s} }

// fakeFetcher yields entries, then err if set.
type fakeFetcher struct {
	entries    []json.RawMessage
	err        error
	watermarks []*time.Time
}

func (f *fakeFetcher) FetchSince(_ context.Context, watermark *time.Time) iter.Seq2[json.RawMessage, error] {
	f.watermarks = append(f.watermarks, watermark)
	return func(yield func(json.RawMessage, error) bool) {
		for _, e := range f.entries {
			if !yield(e, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

type upstreamEntry struct {
	name, version, status string
	description           string
	isLatest              bool
	publishedAt           string
	meta                  map[string]any
}

func (e upstreamEntry) raw() json.RawMessage {
	official := map[string]any{"isLatest": e.isLatest}
	if e.status != "" {
		official["status"] = e.status
	}
	if e.publishedAt != "" {
		official["publishedAt"] = e.publishedAt
	}
	entryMeta := map[string]any{"io.modelcontextprotocol.registry/official": official}
	for k, v := range e.meta {
		entryMeta[k] = v
	}
	b, _ := json.Marshal(map[string]any{
		"server": map[string]any{
			"name":        e.name,
			"version":     e.version,
			"description": e.description,
			"_meta":       map[string]any{"publisher": e.name},
		},
		"_meta": entryMeta,
	})
	return b
}

func raws(entries ...upstreamEntry) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.raw())
	}
	return out
}

var errBoom = errors.New("boom")

func fmtName(i int) string { return fmt.Sprintf("io.github.org%02d/srv", i) }
