package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure.link/config"
	"secure.link/internal/crypto"
	"secure.link/internal/metrics"
	"secure.link/internal/secrets"
	"secure.link/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Metrics) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.BaseURL = "https://secure.example"
	m := metrics.New()
	svc := secrets.NewService(store.NewMemoryStore(), crypto.SHA256Hasher{}, secrets.WithMetrics(m))

	srv := httptest.NewServer(SetupRouter(svc, cfg, nil, m))
	t.Cleanup(srv.Close)
	return srv, m
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createSecret(t *testing.T, srv *httptest.Server, body string) CreateResponse {
	t.Helper()

	resp := do(t, srv, http.MethodPost, "/api/create", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created CreateResponse
	decodeJSON(t, resp, &created)
	return created
}

func TestCreateAndView(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"hello"}`)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.AdminToken)
	assert.Equal(t, "https://secure.example/s/"+created.ID, created.URL)

	resp := do(t, srv, http.MethodPost, "/api/view/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	resp = do(t, srv, http.MethodPost, "/api/view/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreate_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"empty content", `{"content":""}`, "application/json", http.StatusBadRequest},
		{"non-numeric ttl", `{"content":"x","ttl":"soon"}`, "application/json", http.StatusBadRequest},
		{"malformed json", `{"content":`, "application/json", http.StatusBadRequest},
		{"wrong content type", `content=x`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/create", strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tt.contentType)

			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			var e ErrorResponse
			decodeJSON(t, resp, &e)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"x","ttl":3600}`)

	resp := do(t, srv, http.MethodGet, "/api/status/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status StatusResponse
	decodeJSON(t, resp, &status)
	assert.True(t, status.Active)
	require.NotNil(t, status.ExpiresIn)
	assert.Equal(t, 3600, *status.ExpiresIn)
	require.NotNil(t, status.CreatedAt)
	require.NotNil(t, status.ExpiresAt)
	assert.WithinDuration(t, status.CreatedAt.Add(time.Hour), *status.ExpiresAt, 0)

	resp = do(t, srv, http.MethodGet, "/api/status/missing", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gone map[string]any
	decodeJSON(t, resp, &gone)
	assert.Equal(t, map[string]any{"active": false}, gone)
}

func TestCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"x","password":"pin"}`)

	resp := do(t, srv, http.MethodGet, "/api/check/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check CheckResponse
	decodeJSON(t, resp, &check)
	assert.True(t, check.Exists)
	require.NotNil(t, check.RequiresPassword)
	assert.True(t, *check.RequiresPassword)
	require.NotNil(t, check.RemainingAttempts)
	assert.Equal(t, 3, *check.RemainingAttempts)

	resp = do(t, srv, http.MethodGet, "/api/check/missing", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var missing map[string]any
	decodeJSON(t, resp, &missing)
	assert.Equal(t, map[string]any{"exists": false}, missing)
}

func TestView_WrongPasswordUntilExhausted(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"x","password":"pin"}`)
	path := "/api/view/" + created.ID

	for _, want := range []int{2, 1} {
		resp := do(t, srv, http.MethodPost, path, `{"password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var e ErrorResponse
		decodeJSON(t, resp, &e)
		require.NotNil(t, e.RemainingAttempts)
		assert.Equal(t, want, *e.RemainingAttempts)
	}

	resp := do(t, srv, http.MethodPost, path, `{"password":"nope"}`)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, path, `{"password":"pin"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestView_MissingPasswordCostsAnAttempt(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"x","password":"pin"}`)

	resp := do(t, srv, http.MethodPost, "/api/view/"+created.ID, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/view/"+created.ID, `{"password":"pin"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "x", string(body))
}

func TestBurn(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createSecret(t, srv, `{"content":"x"}`)
	path := "/api/burn/" + created.ID

	resp := do(t, srv, http.MethodPost, path, `{"adminToken":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/check/"+created.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, path, `{"adminToken":"`+created.AdminToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var burned map[string]string
	decodeJSON(t, resp, &burned)
	assert.Equal(t, "burned", burned["status"])

	resp = do(t, srv, http.MethodPost, path, `{"adminToken":"`+created.AdminToken+`"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/view/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	createSecret(t, srv, `{"content":"x"}`)

	resp = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "securelink_secrets_created_total 1")
	assert.Contains(t, string(body), `route="/api/create"`)
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/health", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/create", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestFrontend(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/", "/s/some-id"} {
		resp := do(t, srv, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	}

	resp := do(t, srv, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
