package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeflow/scrapeflow/internal/auth"
	"github.com/scrapeflow/scrapeflow/internal/config"
	"github.com/scrapeflow/scrapeflow/internal/coordinator"
	"github.com/scrapeflow/scrapeflow/internal/id/uuid"
	"github.com/scrapeflow/scrapeflow/internal/ratelimit"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/store/memory"
)

type testEnv struct {
	server *Server
	queue  *memory.Queue
	keys   *memory.KeyStore
	rawKey string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := scrape.ClockFunc(time.Now)
	queue := memory.NewQueue(16)
	fast := memory.NewFastStore(clock)
	jobs := memory.NewJobStore()
	keys := memory.NewKeyStore()
	webhooks := memory.NewWebhookStore()
	idGen := uuid.New()

	limiter := ratelimit.New(memory.NewCounter(clock), clock, time.Minute, 10*time.Second)
	authn := auth.New(keys, limiter, nil, nil)
	coord := coordinator.New(queue, fast, jobs, idGen, clock, time.Hour, nil)

	cfg := config.Config{}
	cfg.Logging.Development = true
	cfg.RateLimit.DefaultLimit = 60

	srv := NewServer(coord, authn, keys, webhooks, idGen, clock, cfg, nil)

	// Seed one active key for authenticated requests.
	rawKey, err := auth.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, keys.CreateKey(context.Background(), scrape.APIKey{
		ID:          "key-1",
		Prefix:      auth.KeyPrefix(rawKey),
		Hash:        auth.HashKey(rawKey),
		PrincipalID: "user-1",
		Active:      true,
		RateLimit:   100,
		CreatedAt:   time.Now().UTC(),
	}))

	return &testEnv{server: srv, queue: queue, keys: keys, rawKey: rawKey}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set(auth.APIKeyHeader, e.rawKey)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubmitScrapeAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/scrape", map[string]any{
		"url":       "https://example.com/products",
		"mode":      "guided",
		"selectors": map[string]string{"title": "h1"},
	}, true)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "pending", body["status"])

	task, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scrape.TaskScrape, task.Name)
}

func TestSubmitScrapeRejectsInternalHost(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/scrape", map[string]any{
		"url":       "http://169.254.169.254/latest/meta-data",
		"mode":      "guided",
		"selectors": map[string]string{"x": "h1"},
	}, true)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, scrape.CodeValidation, errObj["code"])
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/scrape", map[string]any{
		"url":  "https://example.com",
		"mode": "guided",
	}, false)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, scrape.CodeAuthentication, errObj["code"])
}

func TestGetScrapeStatusNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/scrape/no-such-job", nil, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, scrape.CodeNotFound, errObj["code"])
}

func TestKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Create: raw key is returned once.
	rec := env.do(t, http.MethodPost, "/v1/keys", map[string]any{"name": "ci key"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	rawKey, _ := created["key"].(string)
	require.NotEmpty(t, rawKey)
	assert.Contains(t, rawKey, "sk_live_")
	keyID := created["id"].(string)

	// List: prefix only, never the raw key or hash.
	rec = env.do(t, http.MethodGet, "/v1/keys", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), rawKey)
	listed := decodeBody(t, rec)
	keys := listed["keys"].([]any)
	require.Len(t, keys, 2) // seeded key plus the new one

	// The new key authenticates.
	req := httptest.NewRequest(http.MethodGet, "/v1/keys", nil)
	req.Header.Set(auth.APIKeyHeader, rawKey)
	probe := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(probe, req)
	require.Equal(t, http.StatusOK, probe.Code)

	// Revoke, then the key stops authenticating.
	rec = env.do(t, http.MethodDelete, "/v1/keys/"+keyID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/keys", nil)
	req.Header.Set(auth.APIKeyHeader, rawKey)
	probe = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(probe, req)
	require.Equal(t, http.StatusUnauthorized, probe.Code)
}

func TestRevokeKeyNotOwnedIs404(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.keys.CreateKey(context.Background(), scrape.APIKey{
		ID:          "other-key",
		Hash:        auth.HashKey("sk_live_other"),
		PrincipalID: "someone-else",
		Active:      true,
		RateLimit:   10,
		CreatedAt:   time.Now().UTC(),
	}))

	rec := env.do(t, http.MethodDelete, "/v1/keys/other-key", nil, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/webhooks", map[string]any{
		"url": "https://hooks.example.com/cb",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	secret, _ := created["secret"].(string)
	require.NotEmpty(t, secret)
	assert.Contains(t, secret, "whsec_")
	assert.Equal(t, []any{scrape.EventJobCompleted}, created["events"])
	webhookID := created["id"].(string)

	// List omits the secret.
	rec = env.do(t, http.MethodGet, "/v1/webhooks", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), secret)

	rec = env.do(t, http.MethodDelete, "/v1/webhooks/"+webhookID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/webhooks", nil, true)
	listed := decodeBody(t, rec)
	assert.Empty(t, listed["webhooks"])
}

func TestWebhookURLValidated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/webhooks", map[string]any{
		"url": "http://127.0.0.1/internal",
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWebhookUnknownEventRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/webhooks", map[string]any{
		"url":    "https://hooks.example.com/cb",
		"events": []string{"job.exploded"},
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpointsOpen(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/stats", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["total_jobs"])
	assert.Equal(t, float64(0), body["success_rate"])
}
