package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/auth"
	"github.com/dmitrijs2005/regmirror/internal/server/compose"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/enrichments"
	"github.com/dmitrijs2005/regmirror/internal/server/repositories/servers"
	"github.com/dmitrijs2005/regmirror/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueries struct {
	listParams []services.ListParams
	listRes    *services.ListResult
	listErr    error

	names    []string
	versions map[string][]compose.ServerJSON
}

func serverJSON(name, version string) compose.ServerJSON {
	return compose.ServerJSON{
		Server: compose.ServerBody{Name: name, Version: version},
		Meta:   models.Meta{},
	}
}

func (f *fakeQueries) List(_ context.Context, p services.ListParams) (*services.ListResult, error) {
	f.listParams = append(f.listParams, p)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listRes, nil
}

func (f *fakeQueries) GetLatest(_ context.Context, name string) (*compose.ServerJSON, error) {
	f.names = append(f.names, name)
	vs := f.versions[name]
	if len(vs) == 0 {
		return nil, common.ErrorNotFound
	}
	return &vs[0], nil
}

func (f *fakeQueries) GetVersion(_ context.Context, name, version string) (*compose.ServerJSON, error) {
	f.names = append(f.names, name)
	for _, s := range f.versions[name] {
		if s.Server.Version == version {
			return &s, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeQueries) ListVersions(_ context.Context, name string) ([]compose.ServerJSON, error) {
	f.names = append(f.names, name)
	vs := f.versions[name]
	if len(vs) == 0 {
		return nil, common.ErrorNotFound
	}
	return vs, nil
}

type fakeAdmin struct {
	packagePatches map[string]enrichments.Patch
	versionPatches []servers.LocalPatch
	runs           []models.SyncRun
	runsLimit      int
	err            error
}

func (f *fakeAdmin) UpsertPackage(_ context.Context, name string, patch enrichments.Patch) (*models.PackageEnrichment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.packagePatches == nil {
		f.packagePatches = map[string]enrichments.Patch{}
	}
	f.packagePatches[name] = patch
	e := &models.PackageEnrichment{Name: name, RegistryMeta: patch.RegistryMeta, Visibility: models.VisibilityDraft}
	if patch.Visibility != nil {
		e.Visibility = *patch.Visibility
	}
	return e, nil
}

func (f *fakeAdmin) PatchVersion(_ context.Context, name, version string, patch servers.LocalPatch) (*compose.ServerJSON, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.versionPatches = append(f.versionPatches, patch)
	s := serverJSON(name, version)
	s.Meta = patch.RegistryMeta
	return &s, nil
}

func (f *fakeAdmin) ListRuns(_ context.Context, limit int) ([]models.SyncRun, error) {
	f.runsLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

type fakeSync struct {
	res   *services.RunResult
	err   error
	calls int
}

func (f *fakeSync) Run(context.Context) (*services.RunResult, error) {
	f.calls++
	return f.res, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type testEnv struct {
	queries *fakeQueries
	admin   *fakeAdmin
	sync    *fakeSync
	router  *gin.Engine
}

func newTestEnv() *testEnv {
	e := &testEnv{
		queries: &fakeQueries{versions: map[string][]compose.ServerJSON{}},
		admin:   &fakeAdmin{},
		sync:    &fakeSync{},
	}
	e.router = NewRouter(Deps{
		Queries:     e.queries,
		Admin:       e.admin,
		Sync:        e.sync,
		Health:      fakePinger{},
		AdminSecret: testSecret,
	})
	return e
}

func (e *testEnv) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func adminHeader(t *testing.T) http.Header {
	t.Helper()
	token, err := auth.GenerateToken("ops", auth.RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Error
}
