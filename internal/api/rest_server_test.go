package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/knapping/internal/eventbus"
	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/session"
	"github.com/annel0/knapping/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *RestServer
	history *storage.MemoryCompletionRepo
}

func newTestEnv(t *testing.T, allowance int) *testEnv {
	t.Helper()

	patterns := knapping.NewPatternStore()
	patterns.Register("dot", "#")

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })

	history := storage.NewMemoryCompletionRepo()
	reg := prometheus.NewRegistry()
	manager, err := session.NewManager(session.Options{
		Config: knapping.Config{
			MistakeAllowance: allowance,
			PerfectBonus:     0.1,
			Fracture:         knapping.FractureConfig{BaseProbability: 0.9, SpreadRate: 0.5},
		},
		Mode:           knapping.ModeDefault,
		Seed:           7,
		StrictPatterns: true,
		Patterns:       patterns,
		Completions:    history,
		Bus:            bus,
		Metrics:        session.NewMetrics(reg),
	})
	require.NoError(t, err)

	server := NewRestServer(Config{
		Sessions: manager,
		Patterns: patterns,
		History:  history,
		Registry: reg,
	})
	return &testEnv{server: server, history: history}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, GenericResponse, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	raw := rec.Body.Bytes()
	var resp GenericResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &resp))
	}
	return rec.Code, resp, raw
}

func decodeData(t *testing.T, raw []byte, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 3)
	code, _, raw := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), `"status":"ok"`)
}

func TestPatternsEndpoints(t *testing.T) {
	env := newTestEnv(t, 3)

	code, resp, raw := env.do(t, http.MethodGet, "/api/patterns", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Contains(t, string(raw), `"dot"`)

	code, _, raw = env.do(t, http.MethodGet, "/api/patterns/dot", nil)
	require.Equal(t, http.StatusOK, code)
	var pattern PatternDTO
	decodeData(t, raw, &pattern)
	require.Len(t, pattern.Rows, knapping.GridSize)
	assert.Equal(t, "#...............", pattern.Rows[0])

	code, _, _ = env.do(t, http.MethodGet, "/api/patterns/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, 3)

	code, _, raw := env.do(t, http.MethodPost, "/api/sessions", StartRequest{Pattern: "dot", Mode: "default"})
	require.Equal(t, http.StatusCreated, code)
	var info session.Info
	decodeData(t, raw, &info)
	require.NotEmpty(t, info.ID)
	base := "/api/sessions/" + info.ID

	code, _, raw = env.do(t, http.MethodPost, base+"/strike", map[string]int{"x": 4, "z": 4})
	require.Equal(t, http.StatusOK, code)
	var strike StrikeResponse
	decodeData(t, raw, &strike)
	assert.Equal(t, "safe", strike.Kind)
	assert.Equal(t, []CellDTO{{X: 4, Z: 4}}, strike.Removed)

	code, _, raw = env.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, code)
	var completion CompletionResponse
	decodeData(t, raw, &completion)
	assert.False(t, completion.Complete)

	code, _, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _, _ = env.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t, 3)

	code, _, _ := env.do(t, http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = env.do(t, http.MethodPost, "/api/sessions", StartRequest{Pattern: "dot", Mode: "expert"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = env.do(t, http.MethodPost, "/api/sessions", StartRequest{Pattern: "missing"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStrikeValidationAndClosedSession(t *testing.T) {
	env := newTestEnv(t, 1)

	_, _, raw := env.do(t, http.MethodPost, "/api/sessions", StartRequest{Pattern: "dot"})
	var info session.Info
	decodeData(t, raw, &info)
	base := "/api/sessions/" + info.ID

	code, _, _ := env.do(t, http.MethodPost, base+"/strike", map[string]int{"x": 1})
	assert.Equal(t, http.StatusBadRequest, code, "z обязателен")

	code, _, _ = env.do(t, http.MethodPost, "/api/sessions/missing/strike", map[string]int{"x": 1, "z": 1})
	assert.Equal(t, http.StatusNotFound, code)

	// Два удара по защищённой клетке при допуске 1 разрушают заготовку
	env.do(t, http.MethodPost, base+"/strike", map[string]int{"x": 0, "z": 0})
	code, _, raw = env.do(t, http.MethodPost, base+"/strike", map[string]int{"x": 0, "z": 0})
	require.Equal(t, http.StatusOK, code)
	var strike StrikeResponse
	decodeData(t, raw, &strike)
	assert.True(t, strike.Destroyed)

	code, _, _ = env.do(t, http.MethodPost, base+"/strike", map[string]int{"x": 2, "z": 2})
	assert.Equal(t, http.StatusConflict, code)

	code, _, raw = env.do(t, http.MethodGet, "/api/history?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), `"destroyed":true`)

	code, _, _ = env.do(t, http.MethodGet, "/api/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServerInfoAndMetrics(t *testing.T) {
	env := newTestEnv(t, 3)

	code, resp, _ := env.do(t, http.MethodGet, "/api/server", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _, raw := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), "rest_api_http_request_duration_seconds")
}

func TestWebhookEndpoints(t *testing.T) {
	env := newTestEnv(t, 3)

	code, _, raw := env.do(t, http.MethodPost, "/api/webhooks", OutboundWebhook{
		Name:   "host",
		URL:    "http://127.0.0.1:1/hook",
		Events: []string{"*"},
	})
	require.Equal(t, http.StatusCreated, code)
	var created OutboundWebhook
	decodeData(t, raw, &created)
	assert.Equal(t, uint64(1), created.ID)
	assert.True(t, created.Active)

	code, _, raw = env.do(t, http.MethodGet, "/api/webhooks/events", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), eventbus.TypeKnappingCompleted)

	code, _, _ = env.do(t, http.MethodDelete, "/api/webhooks/1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _, _ = env.do(t, http.MethodDelete, "/api/webhooks/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _, _ = env.do(t, http.MethodDelete, "/api/webhooks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebhookDispatchSigned(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	var signatures []string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		signatures = append(signatures, r.Header.Get("X-Webhook-Signature"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	wm := NewWebhookManager()
	wm.retryDelay = time.Millisecond
	wm.AddWebhook(OutboundWebhook{
		Name:   "host",
		URL:    target.URL,
		Secret: "s3cret",
		Events: []string{eventbus.TypeKnappingCompleted},
	})

	ev, err := eventbus.NewEnvelope("test", eventbus.TypeKnappingCompleted, "s-1", eventbus.PriorityTerminal,
		eventbus.KnappingCompletedEvent{SurfaceID: "s-1", QualityMultiplier: 1.1})
	require.NoError(t, err)
	skipped, err := eventbus.NewEnvelope("test", eventbus.TypeStrikeResolved, "s-1", eventbus.PriorityStrike,
		eventbus.StrikeResolvedEvent{SurfaceID: "s-1"})
	require.NoError(t, err)

	wm.Dispatch(ev)
	wm.Dispatch(skipped)
	wm.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1, "Подписка только на завершение")
	assert.Equal(t, generateSignature(bodies[0], "s3cret"), signatures[0])

	var got eventbus.Envelope
	require.NoError(t, json.Unmarshal(bodies[0], &got))
	assert.Equal(t, ev.ID, got.ID)

	hooks := wm.GetWebhooks()
	require.Len(t, hooks, 1)
	assert.NotNil(t, hooks[0].LastUsed)
	assert.Zero(t, hooks[0].FailureCount)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", FormatUptime(5*time.Second))
	assert.Equal(t, "2м 3с", FormatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1ч 0м 0с", FormatUptime(time.Hour))
	assert.Equal(t, "1д 2ч 0м 0с", FormatUptime(26*time.Hour))
}

func TestWebhookDispatchAfterCloseIsDropped(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	wm := NewWebhookManager()
	wm.AddWebhook(OutboundWebhook{Name: "host", URL: target.URL, Events: []string{"*"}})

	ev, err := eventbus.NewEnvelope("test", eventbus.TypeKnappingDestroyed, "s-1", eventbus.PriorityTerminal,
		eventbus.KnappingDestroyedEvent{SurfaceID: "s-1"})
	require.NoError(t, err)

	wm.Close()
	wm.Dispatch(ev)
	wm.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls, "После Close события не отправляются")
	hooks := wm.GetWebhooks()
	require.Len(t, hooks, 1)
	assert.Nil(t, hooks[0].LastUsed)
}
