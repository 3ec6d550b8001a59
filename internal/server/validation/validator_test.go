package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_FullEntry(t *testing.T) {
	raw := json.RawMessage(`{
		"server": {
			"name": "io.github.a/x",
			"description": "demo server",
			"version": "2.0.0",
			"repository": {"url": "https://github.com/a/x", "source": "github", "id": "42"},
			"websiteUrl": "https://x.dev",
			"packages": [{"registryType": "npm", "identifier": "@a/x"}],
			"remotes": [{"type": "streamable-http", "url": "https://x.dev/mcp"}],
			"_meta": {"io.github.a/build": {"sha": "abc"}}
		},
		"_meta": {
			"io.modelcontextprotocol.registry/official": {
				"status": "deprecated",
				"publishedAt": "2025-09-01T12:00:00Z",
				"updatedAt": "2025-09-02T12:00:00Z",
				"isLatest": true
			}
		}
	}`)

	sv, err := New().Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "io.github.a/x", sv.Name)
	assert.Equal(t, "2.0.0", sv.Version)
	assert.Equal(t, "demo server", sv.Description)
	assert.Equal(t, models.StatusDeprecated, sv.Status)
	assert.True(t, sv.IsLatest)
	require.NotNil(t, sv.PublishedAt)
	assert.True(t, time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC).Equal(*sv.PublishedAt))
	assert.Equal(t, &models.Repository{URL: "https://github.com/a/x", Source: "github", ID: "42"}, sv.Repository)
	assert.Equal(t, "https://x.dev", sv.WebsiteURL)
	require.Len(t, sv.Packages, 1)
	require.Len(t, sv.Remotes, 1)
	assert.JSONEq(t, `{"type": "streamable-http", "url": "https://x.dev/mcp"}`, string(sv.Remotes[0]))
	assert.Equal(t, models.Meta{"io.github.a/build": map[string]any{"sha": "abc"}}, sv.PublisherMeta)
	assert.Contains(t, sv.ParentRegistryMeta, "io.modelcontextprotocol.registry/official")
	assert.Nil(t, sv.VersionRegistryMeta, "locally owned fields are never read from upstream")
	assert.Empty(t, sv.Visibility)
}

func TestValidate_LegacyOfficialKey(t *testing.T) {
	raw := json.RawMessage(`{"server":{"name":"a/x","version":"1.0.0"},"_meta":{"registry/official":{"status":"deleted","isLatest":true}}}`)

	sv, err := New().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, sv.Status)
	assert.True(t, sv.IsLatest)
}

func TestValidate_MinimalDefaults(t *testing.T) {
	sv, err := New().Validate(json.RawMessage(`{"server":{"name":"a/x","version":"1.0.0"}}`))
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, sv.Status, "missing status defaults to active")
	assert.False(t, sv.IsLatest)
	assert.Nil(t, sv.PublishedAt)
	assert.Nil(t, sv.Repository)
	assert.Nil(t, sv.Packages)
	assert.Nil(t, sv.PublisherMeta)
	assert.Nil(t, sv.ParentRegistryMeta)
}

func TestValidate_DropsMalformedOptionalFields(t *testing.T) {
	raw := json.RawMessage(`{
		"server": {
			"name": "a/x",
			"version": "1.0.0",
			"description": 17,
			"repository": "github.com/a/x",
			"websiteUrl": false,
			"packages": {"not": "a list"},
			"remotes": "nope",
			"_meta": [1, 2]
		},
		"_meta": {"registry/official": {"publishedAt": "yesterday", "isLatest": "yes"}}
	}`)

	sv, err := New().Validate(raw)
	require.NoError(t, err)

	assert.Empty(t, sv.Description)
	assert.Nil(t, sv.Repository)
	assert.Empty(t, sv.WebsiteURL)
	assert.Nil(t, sv.Packages)
	assert.Nil(t, sv.Remotes)
	assert.Nil(t, sv.PublisherMeta)
	assert.Nil(t, sv.PublishedAt)
	assert.False(t, sv.IsLatest)
	assert.Equal(t, models.StatusActive, sv.Status)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "not an object", raw: `[1]`, reason: "entry is not a JSON object"},
		{name: "null", raw: `null`, reason: "entry is not a JSON object"},
		{name: "no server", raw: `{"_meta":{}}`, reason: "server is not a JSON object"},
		{name: "missing name", raw: `{"server":{"version":"1"}}`, reason: "missing name"},
		{name: "numeric name", raw: `{"server":{"name":5,"version":"1"}}`, reason: "name is not a string"},
		{name: "missing version", raw: `{"server":{"name":"a/x"}}`, reason: "missing version"},
		{name: "empty name", raw: `{"server":{"name":"","version":"1"}}`, reason: "required"},
		{name: "colon in name", raw: `{"server":{"name":"a:x","version":"1"}}`, reason: "servername"},
		{name: "space in name", raw: `{"server":{"name":"a x","version":"1"}}`, reason: "servername"},
		{name: "bad website", raw: `{"server":{"name":"a/x","version":"1","websiteUrl":"not a url"}}`, reason: "WebsiteURL"},
		{name: "bad repository url", raw: `{"server":{"name":"a/x","version":"1","repository":{"url":"::"}}}`, reason: "RepositoryURL"},
		{name: "remote without url", raw: `{"server":{"name":"a/x","version":"1","remotes":[{"type":"sse"}]}}`, reason: "Remotes[0].URL"},
		{name: "remote not object", raw: `{"server":{"name":"a/x","version":"1","remotes":["https://x"]}}`, reason: "remote 0 is not a JSON object"},
		{name: "unknown status", raw: `{"server":{"name":"a/x","version":"1"},"_meta":{"registry/official":{"status":"retired"}}}`, reason: "oneof"},
		{name: "numeric status", raw: `{"server":{"name":"a/x","version":"1"},"_meta":{"registry/official":{"status":3}}}`, reason: "status is not a string"},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sv, err := v.Validate(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.Nil(t, sv)
			assert.ErrorIs(t, err, common.ErrInvalidRecord)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestValidate_ColonAllowedInVersion(t *testing.T) {
	sv, err := New().Validate(json.RawMessage(`{"server":{"name":"a/x","version":"1.0.0:rc"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0:rc", sv.Version)
}

func TestNew_RegistersCustomRules(t *testing.T) {
	require.NotPanics(t, func() { New() })

	_, err := New().Validate(json.RawMessage(`{"server":{"name":"a:b/x","version":"1.0.0"}}`))
	assert.ErrorIs(t, err, common.ErrInvalidRecord)
}

func TestNewValidator_RegistrationError(t *testing.T) {
	_, err := newValidator(map[string]validator.Func{"": rules["servername"]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register validation")
}
