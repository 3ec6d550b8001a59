package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeta_ValueNilIsEmptyObject(t *testing.T) {
	v, err := Meta(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestMeta_ScanSources(t *testing.T) {
	var m Meta
	require.NoError(t, m.Scan([]byte(`{"a":1,"b":{"c":"d"}}`)))
	assert.Equal(t, float64(1), m["a"])
	assert.Equal(t, map[string]any{"c": "d"}, m["b"])

	require.NoError(t, m.Scan(`{"x":true}`))
	assert.Equal(t, Meta{"x": true}, m)

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(42))
	assert.Error(t, m.Scan([]byte(`[1,2]`)))
}

func TestRawList_ValueKeepsOrder(t *testing.T) {
	l := RawList{json.RawMessage(`{"id":2}`), json.RawMessage(`{"id":1}`)}
	v, err := l.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":2},{"id":1}]`, string(v.([]byte)))

	v, err = RawList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}

func TestRawList_Scan(t *testing.T) {
	var l RawList
	require.NoError(t, l.Scan([]byte(`[{"a":1},"x"]`)))
	require.Len(t, l, 2)
	assert.JSONEq(t, `{"a":1}`, string(l[0]))
	assert.JSONEq(t, `"x"`, string(l[1]))

	assert.Error(t, l.Scan([]byte(`{}`)))
}

func TestRepository_NullRoundTrip(t *testing.T) {
	var r *Repository
	v, err := r.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	r = &Repository{URL: "https://github.com/a/x", Source: "github"}
	v, err = r.Value()
	require.NoError(t, err)

	var n NullRepository
	require.NoError(t, n.Scan(v))
	assert.Equal(t, r, n.Repository)

	require.NoError(t, n.Scan(nil))
	assert.Nil(t, n.Repository)
}

func TestEnums(t *testing.T) {
	assert.True(t, StatusDeprecated.Valid())
	assert.False(t, Status("gone").Valid())
	assert.True(t, VisibilityPublished.Valid())
	assert.False(t, Visibility("").Valid())
}
