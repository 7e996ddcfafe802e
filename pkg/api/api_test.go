package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
)

// testEnv is a router wired to an in-memory store with one user per role.
type testEnv struct {
	t       *testing.T
	srv     *server
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newTestEnv(t *testing.T, mutate func(cfg *config.APIConfig)) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.APIConfig{
		Auth: config.APIAuthConfig{
			SessionTTL: "1h",
			Users: []config.AuthUser{
				{Username: "admin", Password: "admin-pass", Role: config.RoleAdmin},
				{Username: "runner", Password: "runner-pass", Role: config.RoleRunner},
				{Username: "viewer", Password: "viewer-pass", Role: config.RoleReadOnly},
			},
		},
	}

	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))
	require.NoError(t, st.SeedUsers(context.Background(), cfg.Auth.Users))

	srv := &server{log: log, cfg: cfg, store: st}

	t.Cleanup(func() {
		for _, l := range srv.limiters {
			l.stop()
		}

		_ = st.Stop()
	})

	return &testEnv{
		t:       t,
		srv:     srv,
		handler: srv.buildRouter(),
		cookies: make(map[string]*http.Cookie, 3),
	}
}

// as returns the session cookie of username, logging in on first use.
func (e *testEnv) as(username string) *http.Cookie {
	e.t.Helper()

	if c, ok := e.cookies[username]; ok {
		return c
	}

	rec := e.do(http.MethodPost, "/api/v1/auth/login", nil, map[string]string{
		"username": username,
		"password": username + "-pass",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			e.cookies[username] = c

			return c
		}
	}

	e.t.Fatalf("login for %s set no session cookie", username)

	return nil
}

func (e *testEnv) do(method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

// call performs a request as username and decodes the JSON response into
// out when out is not nil.
func (e *testEnv) call(username, method, path string, body, out any, wantStatus int) {
	e.t.Helper()

	rec := e.do(method, path, e.as(username), body)
	require.Equal(e.t, wantStatus, rec.Code, "%s %s: %s", method, path, rec.Body.String())

	if out != nil {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

type idOnly struct {
	ID uint `json:"id"`
}

type uuidOnly struct {
	ID string `json:"id"`
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

func (e *testEnv) createLabel(name string) uint {
	var l idOnly
	e.call("admin", http.MethodPost, "/api/v1/labels/", map[string]any{"name": name}, &l, http.StatusCreated)

	return l.ID
}

func (e *testEnv) createTestCase(title string) uint {
	var tc idOnly
	e.call("admin", http.MethodPost, "/api/v1/test-cases/", map[string]any{"title": title}, &tc, http.StatusCreated)

	return tc.ID
}

func (e *testEnv) createBoard(name string) string {
	var b uuidOnly
	e.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{"name": name}, &b, http.StatusCreated)

	return b.ID
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_BoardCapabilityFilterFollowsMembership(t *testing.T) {
	env := newTestEnv(t, nil)

	var wifi, usb idOnly
	env.call("admin", http.MethodPost, "/api/v1/capabilities/", map[string]any{"name": "wifi"}, &wifi, http.StatusCreated)
	env.call("admin", http.MethodPost, "/api/v1/capabilities/", map[string]any{"name": "usb"}, &usb, http.StatusCreated)

	var board boardResponse
	env.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{
		"name":           "rpi-4",
		"capability_ids": []uint{wifi.ID},
	}, &board, http.StatusCreated)
	require.Len(t, board.Capabilities, 1)
	assert.True(t, board.Capabilities[0].IsActive)

	filter := fmt.Sprintf("/api/v1/boards/?capabilities=%d", wifi.ID)

	var page listResponse[boardResponse]
	env.call("viewer", http.MethodGet, filter, nil, &page, http.StatusOK)
	require.Equal(t, int64(1), page.Count)
	assert.Equal(t, board.ID, page.Results[0].ID)

	env.call("admin", http.MethodPatch, "/api/v1/boards/"+board.ID+"/", map[string]any{
		"capability_ids": []uint{usb.ID},
	}, nil, http.StatusOK)

	env.call("viewer", http.MethodGet, filter, nil, &page, http.StatusOK)
	assert.Equal(t, int64(0), page.Count)
	assert.NotNil(t, page.Results)

	// PATCH without capability_ids keeps the set.
	env.call("admin", http.MethodPatch, "/api/v1/boards/"+board.ID, map[string]any{
		"status": "offline",
	}, &board, http.StatusOK)
	require.Len(t, board.Capabilities, 1)
	assert.Equal(t, "usb", board.Capabilities[0].Name)
	assert.Equal(t, "offline", board.Status)

	env.call("viewer", http.MethodGet, "/api/v1/boards/?capabilities=999", nil, nil, http.StatusBadRequest)
}

func TestAPI_BoardReferences(t *testing.T) {
	env := newTestEnv(t, nil)

	var relay uuidOnly
	env.call("admin", http.MethodPost, "/api/v1/relays/", map[string]any{
		"relay_name": "relay-1",
		"port_count": 8,
	}, &relay, http.StatusCreated)

	var board boardResponse
	env.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{
		"name":     "rpi",
		"relay_id": relay.ID,
	}, &board, http.StatusCreated)
	require.NotNil(t, board.Relay)
	assert.Equal(t, "relay-1", board.Relay.RelayName)
	assert.Nil(t, board.TestPC)
	assert.NotNil(t, board.Capabilities)

	var errResp errorResponse
	env.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{
		"name":       "bad",
		"test_pc_id": "1c1f6b4e-3c1a-4b1f-8d33-6f5c0f0f0f0f",
	}, &errResp, http.StatusBadRequest)
	assert.Contains(t, errResp.Details["test_pc_id"], "object does not exist")

	env.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{
		"name":     "bad",
		"relay_id": "not-a-uuid",
	}, nil, http.StatusBadRequest)

	// Explicit null detaches the relay.
	env.call("admin", http.MethodPatch, "/api/v1/boards/"+board.ID, map[string]any{
		"relay_id": nil,
	}, &board, http.StatusOK)
	assert.Nil(t, board.Relay)
}

func TestAPI_BoardLogs(t *testing.T) {
	env := newTestEnv(t, nil)
	boardID := env.createBoard("rpi")
	logsPath := "/api/v1/boards/" + boardID + "/logs"

	rec := env.do(http.MethodGet, logsPath, env.as("viewer"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for i := 0; i < 75; i++ {
		env.call("runner", http.MethodPost, logsPath, map[string]any{
			"level":   "warn",
			"message": fmt.Sprintf("line %d", i),
		}, nil, http.StatusCreated)
	}

	var logs []store.BoardLog
	env.call("viewer", http.MethodGet, logsPath+"/", nil, &logs, http.StatusOK)
	require.Len(t, logs, 50)
	assert.Equal(t, "line 74", logs[0].Message)
	assert.Equal(t, "line 25", logs[49].Message)
	assert.Equal(t, store.LevelWarn, logs[0].Level)

	env.call("runner", http.MethodPost, logsPath, map[string]any{"message": " "}, nil, http.StatusBadRequest)
	env.call("runner", http.MethodPost, logsPath, map[string]any{"level": "loud", "message": "x"}, nil, http.StatusBadRequest)
	// Unknown boards have no logs; malformed ids are not found.
	rec = env.do(http.MethodGet, "/api/v1/boards/5d7e6f1a-0000-4000-8000-000000000000/logs", env.as("viewer"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	env.call("viewer", http.MethodGet, "/api/v1/boards/not-a-uuid/logs", nil, nil, http.StatusNotFound)

	var page listResponse[store.BoardLog]
	env.call("admin", http.MethodGet, "/api/v1/admin/board-logs?board_id="+boardID+"&page_size=10", nil, &page, http.StatusOK)
	assert.Equal(t, int64(75), page.Count)
	assert.Len(t, page.Results, 10)

	env.call("admin", http.MethodGet, "/api/v1/admin/board-logs?board_id=nope", nil, nil, http.StatusBadRequest)
}

func TestAPI_Permissions(t *testing.T) {
	tests := []struct {
		name       string
		openReads  bool
		user       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "anonymous list", method: http.MethodGet, path: "/api/v1/boards", wantStatus: http.StatusUnauthorized},
		{name: "anonymous runs", method: http.MethodGet, path: "/api/v1/test-runs/", wantStatus: http.StatusUnauthorized},
		{name: "viewer reads boards", user: "viewer", method: http.MethodGet, path: "/api/v1/boards", wantStatus: http.StatusOK},
		{name: "viewer cannot write", user: "viewer", method: http.MethodPost, path: "/api/v1/labels", body: map[string]any{"name": "x"}, wantStatus: http.StatusForbidden},
		{name: "viewer cannot create run", user: "viewer", method: http.MethodPost, path: "/api/v1/test-runs/", body: map[string]any{"name": "x"}, wantStatus: http.StatusForbidden},
		{name: "viewer cannot read runs", user: "viewer", method: http.MethodGet, path: "/api/v1/test-runs/", wantStatus: http.StatusForbidden},
		{name: "viewer reads runs when open", openReads: true, user: "viewer", method: http.MethodGet, path: "/api/v1/test-runs/", wantStatus: http.StatusOK},
		{name: "open reads still gate writes", openReads: true, user: "viewer", method: http.MethodPost, path: "/api/v1/test-scenarios/", body: map[string]any{"name": "x"}, wantStatus: http.StatusForbidden},
		{name: "runner creates run", user: "runner", method: http.MethodPost, path: "/api/v1/test-runs/", body: map[string]any{"name": "x"}, wantStatus: http.StatusCreated},
		{name: "admin reads scenarios", user: "admin", method: http.MethodGet, path: "/api/v1/test-scenarios", wantStatus: http.StatusOK},
		{name: "runner denied admin", user: "runner", method: http.MethodGet, path: "/api/v1/admin/users", wantStatus: http.StatusForbidden},
		{name: "admin lists users", user: "admin", method: http.MethodGet, path: "/api/v1/admin/users", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *config.APIConfig) {
				cfg.Auth.OpenExecutionReads = tt.openReads
			})

			var cookie *http.Cookie
			if tt.user != "" {
				cookie = env.as(tt.user)
			}

			rec := env.do(tt.method, tt.path, cookie, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_APIKeyAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	var created createAPIKeyResponse
	env.call("runner", http.MethodPost, "/api/v1/auth/api-keys", map[string]any{"name": "ci"}, &created, http.StatusCreated)
	require.NotEmpty(t, created.Key)
	assert.Equal(t, created.Key[:apiKeyPrefixLen], created.APIKey.KeyPrefix)

	post := func(key string) int {
		body := bytes.NewBufferString(`{"name":"from ci"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/test-runs/", body)
		req.Header.Set("Authorization", "Bearer "+key)

		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, post(created.Key))
	assert.Equal(t, http.StatusUnauthorized, post("lk_bogus"))
}

func TestAPI_ScenarioUnknownTestCase(t *testing.T) {
	env := newTestEnv(t, nil)
	tcID := env.createTestCase("boot")

	var errResp errorResponse
	env.call("runner", http.MethodPost, "/api/v1/test-scenarios/", map[string]any{
		"name":          "smoke",
		"test_case_ids": []uint{tcID, 9999},
	}, &errResp, http.StatusBadRequest)
	assert.Equal(t, `invalid pk "9999" - object does not exist`, errResp.Details["test_case_ids"])

	var page listResponse[scenarioResponse]
	env.call("runner", http.MethodGet, "/api/v1/test-scenarios/", nil, &page, http.StatusOK)
	assert.Equal(t, int64(0), page.Count)
	assert.Empty(t, page.Results)
}

func TestAPI_TestRunMembershipAndNesting(t *testing.T) {
	env := newTestEnv(t, nil)

	labelID := env.createLabel("release")
	tcID := env.createTestCase("flash firmware")

	var sc scenarioResponse
	env.call("runner", http.MethodPost, "/api/v1/test-scenarios/", map[string]any{
		"name":          "flashing",
		"test_case_ids": []uint{tcID},
		"label_ids":     []uint{labelID},
	}, &sc, http.StatusCreated)
	require.Len(t, sc.TestCases, 1)
	assert.Equal(t, "flash firmware", sc.TestCases[0].Title)

	var run runResponse
	env.call("runner", http.MethodPost, "/api/v1/test-runs/", map[string]any{
		"name":         "nightly",
		"scenario_ids": []uint{sc.ID},
		"label_ids":    []uint{labelID},
	}, &run, http.StatusCreated)
	require.Len(t, run.Scenarios, 1)
	require.Len(t, run.Labels, 1)
	assert.Empty(t, run.Results)
	assert.NotNil(t, run.CreatedBy)

	runPath := fmt.Sprintf("/api/v1/test-runs/%d", run.ID)

	var result store.TestResult
	env.call("runner", http.MethodPost, runPath+"/results", map[string]any{
		"status":  "error",
		"message": "flash failed",
	}, &result, http.StatusCreated)
	assert.Equal(t, store.LevelError, result.Status)

	env.call("runner", http.MethodPost, runPath+"/results", map[string]any{"status": "PASS", "message": "x"}, nil, http.StatusBadRequest)
	env.call("runner", http.MethodPost, "/api/v1/test-runs/424242/results", map[string]any{"message": "x"}, nil, http.StatusNotFound)

	var got runResponse
	env.call("viewer", http.MethodGet, runPath, nil, nil, http.StatusForbidden)
	env.call("runner", http.MethodGet, runPath, nil, &got, http.StatusOK)
	require.Len(t, got.Scenarios, 1)
	assert.Equal(t, sc.ID, got.Scenarios[0].ID)
	require.Len(t, got.Scenarios[0].TestCases, 1)
	require.Len(t, got.Scenarios[0].Labels, 1)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "flash failed", got.Results[0].Message)

	// Empty scenario list clears scenarios; omitted labels stay.
	env.call("runner", http.MethodPatch, runPath, map[string]any{"scenario_ids": []uint{}}, &got, http.StatusOK)
	assert.Empty(t, got.Scenarios)
	assert.NotNil(t, got.Scenarios)
	require.Len(t, got.Labels, 1)
	assert.Equal(t, "release", got.Labels[0].Name)
	assert.Equal(t, "nightly", got.Name)

	// PUT requires the full representation.
	var errResp errorResponse
	env.call("runner", http.MethodPut, runPath, map[string]any{"description": "x"}, &errResp, http.StatusBadRequest)
	assert.Contains(t, errResp.Details, "name")

	var page listResponse[runResponse]
	env.call("runner", http.MethodGet, fmt.Sprintf("/api/v1/test-runs/?label=%d", labelID), nil, &page, http.StatusOK)
	assert.Equal(t, int64(1), page.Count)

	var results listResponse[adminTestResultResponse]
	env.call("admin", http.MethodGet, "/api/v1/admin/test-results?status=error", nil, &results, http.StatusOK)
	assert.Equal(t, int64(1), results.Count)
	require.Len(t, results.Results, 1)
	assert.Equal(t, run.ID, results.Results[0].TestRun)

	// Nested results do not repeat the run id.
	rec := env.do(http.MethodGet, runPath, env.as("runner"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Results, 1)
	assert.NotContains(t, raw.Results[0], "test_run")
	assert.ElementsMatch(t, []string{"id", "status", "message", "created_at"}, keys(raw.Results[0]))

	env.call("runner", http.MethodDelete, runPath, nil, nil, http.StatusNoContent)
	env.call("runner", http.MethodGet, runPath, nil, nil, http.StatusNotFound)
}

func TestAPI_TestCases(t *testing.T) {
	env := newTestEnv(t, nil)

	var tt idOnly
	env.call("admin", http.MethodPost, "/api/v1/test-types/", map[string]any{"name": "integration"}, &tt, http.StatusCreated)
	tagID := env.createLabel("smoke")

	var tc testCaseResponse
	env.call("runner", http.MethodPost, "/api/v1/test-cases/", map[string]any{
		"title":        "boot",
		"test_type_id": tt.ID,
		"tag_ids":      []uint{tagID},
	}, &tc, http.StatusCreated)
	require.NotNil(t, tc.TestType)
	assert.Equal(t, "integration", tc.TestType.Name)
	assert.True(t, tc.IsActive)
	require.Len(t, tc.Tags, 1)
	require.NotNil(t, tc.CreatedBy)

	path := fmt.Sprintf("/api/v1/test-cases/%d", tc.ID)

	env.call("runner", http.MethodPatch, path, map[string]any{"test_type_id": nil, "is_active": false}, &tc, http.StatusOK)
	assert.Nil(t, tc.TestType)
	assert.False(t, tc.IsActive)
	assert.Len(t, tc.Tags, 1)

	var page listResponse[testCaseResponse]
	env.call("viewer", http.MethodGet, "/api/v1/test-cases/?is_active=false", nil, &page, http.StatusOK)
	assert.Equal(t, int64(1), page.Count)

	env.call("viewer", http.MethodGet, "/api/v1/test-cases/?test_type=999", nil, nil, http.StatusBadRequest)
	env.call("runner", http.MethodPost, "/api/v1/test-cases/", map[string]any{"title": ""}, nil, http.StatusBadRequest)
	env.call("runner", http.MethodPost, "/api/v1/test-cases/", map[string]any{"title": "x", "test_type_id": 999}, nil, http.StatusBadRequest)
}

func TestAPI_ListParameters(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		env.createLabel(name)
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantNames  []string
		wantCount  int64
	}{
		{name: "default order", query: "", wantStatus: http.StatusOK, wantNames: []string{"alpha", "bravo", "charlie"}, wantCount: 3},
		{name: "descending", query: "?ordering=-name", wantStatus: http.StatusOK, wantNames: []string{"charlie", "bravo", "alpha"}, wantCount: 3},
		{name: "search", query: "?search=AV", wantStatus: http.StatusOK, wantNames: []string{"bravo"}, wantCount: 1},
		{name: "search underscore is literal", query: "?search=_", wantStatus: http.StatusOK, wantNames: []string{}, wantCount: 0},
		{name: "search percent is literal", query: "?search=%25", wantStatus: http.StatusOK, wantNames: []string{}, wantCount: 0},
		{name: "second page", query: "?page=2&page_size=2", wantStatus: http.StatusOK, wantNames: []string{"charlie"}, wantCount: 3},
		{name: "past last page", query: "?page=3&page_size=2", wantStatus: http.StatusNotFound},
		{name: "empty first page", query: "?search=zulu", wantStatus: http.StatusOK, wantNames: []string{}, wantCount: 0},
		{name: "zero page", query: "?page=0", wantStatus: http.StatusBadRequest},
		{name: "bad page size", query: "?page_size=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/v1/labels/"+tt.query, env.as("viewer"), nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				return
			}

			var page listResponse[store.Label]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, tt.wantCount, page.Count)

			names := make([]string, 0, len(page.Results))
			for _, l := range page.Results {
				names = append(names, l.Name)
			}

			assert.Equal(t, tt.wantNames, names)
		})
	}

	// UUID filters match regardless of case.
	var relay uuidOnly
	env.call("admin", http.MethodPost, "/api/v1/relays/", map[string]any{"relay_name": "relay-1"}, &relay, http.StatusCreated)
	env.call("admin", http.MethodPost, "/api/v1/boards/", map[string]any{
		"name":     "rpi",
		"relay_id": strings.ToUpper(relay.ID),
	}, nil, http.StatusCreated)

	for _, id := range []string{relay.ID, strings.ToUpper(relay.ID)} {
		var boards listResponse[boardResponse]
		env.call("viewer", http.MethodGet, "/api/v1/boards/?relay_id="+id, nil, &boards, http.StatusOK)
		assert.Equal(t, int64(1), boards.Count, id)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createLabel("dup")

	var errResp errorResponse
	env.call("admin", http.MethodPost, "/api/v1/labels/", map[string]any{"name": "dup"}, &errResp, http.StatusBadRequest)
	assert.Contains(t, errResp.Details, "name")

	env.call("admin", http.MethodGet, "/api/v1/labels/abc", nil, nil, http.StatusNotFound)
	env.call("admin", http.MethodGet, "/api/v1/labels/12345", nil, nil, http.StatusNotFound)
	env.call("admin", http.MethodGet, "/api/v1/relays/12345", nil, nil, http.StatusNotFound)
	env.call("admin", http.MethodDelete, "/api/v1/capabilities/77", nil, nil, http.StatusNotFound)
	env.call("admin", http.MethodGet, "/api/v1/relays/?status=online&page=1", nil, nil, http.StatusOK)

	errResp = errorResponse{}
	env.call("admin", http.MethodGet, "/api/v1/labels/?page=2", nil, &errResp, http.StatusNotFound)
	assert.Equal(t, "invalid page", errResp.Error)

	rec := env.do(http.MethodPost, "/api/v1/labels/", env.as("admin"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/nowhere", env.as("admin"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Metrics(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.Server.Metrics = true
	})

	env.do(http.MethodGet, "/api/v1/health", nil, nil)

	rec := env.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `labkeeper_http_requests_total{code="200",method="GET",route="/api/v1/health"} 1`)
}
