package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
)

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    store.ListOptions
		wantErr string
	}{
		{
			name:  "empty",
			query: "",
			want:  store.ListOptions{},
		},
		{
			name:  "all parameters",
			query: "search=rpi&ordering=-name,+,created_at&page=3&page_size=20",
			want: store.ListOptions{
				Search:   "rpi",
				Ordering: []string{"-name", "+", "created_at"},
				Page:     3,
				PageSize: 20,
			},
		},
		{
			name:    "negative page",
			query:   "page=-1",
			wantErr: "page",
		},
		{
			name:    "non numeric page size",
			query:   "page_size=ten",
			wantErr: "page_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := parseListOptions(q)
			if tt.wantErr != "" {
				var verr *store.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Contains(t, verr.Fields, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFilter(t *testing.T) {
	q, err := url.ParseQuery("status=online&is_locked=true&capabilities=3&capabilities=5&name=&search=x")
	require.NoError(t, err)

	var f store.BoardFilter
	require.NoError(t, decodeFilter(q, &f))

	require.NotNil(t, f.Status)
	assert.Equal(t, "online", *f.Status)
	require.NotNil(t, f.IsLocked)
	assert.True(t, *f.IsLocked)
	assert.Equal(t, []uint{3, 5}, f.Capabilities)
	assert.Nil(t, f.Name, "empty values are ignored")

	q, err = url.ParseQuery("capabilities=7")
	require.NoError(t, err)

	var single store.BoardFilter
	require.NoError(t, decodeFilter(q, &single))
	assert.Equal(t, []uint{7}, single.Capabilities)

	q, err = url.ParseQuery("is_locked=maybe")
	require.NoError(t, err)

	err = decodeFilter(q, &store.BoardFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestOptionalUnmarshal(t *testing.T) {
	var in struct {
		A optional[string] `json:"a"`
		B optional[string] `json:"b"`
		C optional[string] `json:"c"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":null}`), &in))

	assert.True(t, in.A.Set)
	require.NotNil(t, in.A.Value)
	assert.Equal(t, "x", *in.A.Value)

	assert.True(t, in.B.Set)
	assert.Nil(t, in.B.Value)

	assert.False(t, in.C.Set)
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "empty", body: "", field: "body"},
		{name: "malformed", body: "{", field: "body"},
		{name: "wrong type", body: `{"name": 5}`, field: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))

			var in labelInput

			err := decodeBody(req, &in)

			var verr *store.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestIDSet(t *testing.T) {
	assert.Nil(t, idSet(nil))

	empty := []uint{}
	assert.NotNil(t, idSet(&empty))
	assert.Empty(t, idSet(&empty))

	ids := []uint{2, 1}
	assert.Equal(t, []uint{2, 1}, idSet(&ids))
}
