package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/mailing"
	"github.com/postify/drip-engine/internal/repository/memory"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/postify/drip-engine/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router  http.Handler
	users   *memory.UserStore
	pending *memory.PendingQueue
	gateway *mailing.MockGateway
	now     time.Time
}

func setupTestEnv(t *testing.T, opts RouteOptions) *testEnv {
	t.Helper()
	env := &testEnv{
		users: memory.NewUserStore(
			domain.User{ID: "u1", Email: "anna@example.com", FullName: "Anna K", Plan: "free", Locale: "en"},
			domain.User{ID: "u2", Email: "boris@example.com", FullName: "Boris", Plan: "pro", Locale: "ru"},
		),
		pending: memory.NewPendingQueue(),
		gateway: mailing.NewMockGateway(),
		now:     time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	engine, err := drip.New(drip.DefaultSettings(), drip.Deps{
		Events:     memory.NewEventLog(),
		Sequences:  memory.NewSequenceStore(),
		Pending:    env.pending,
		Deliveries: memory.NewDeliveryLog(),
		Users:      env.users,
		Renderer:   mailing.NewTemplateRenderer("https://app.example.com"),
		Gateway:    env.gateway,
	}, drip.WithClock(func() time.Time { return env.now }))
	require.NoError(t, err)

	runner := worker.NewSweepRunner(engine, nil, worker.RunnerConfig{}, nil)
	env.router = SetupRoutes(NewHandlers(engine, runner), NewHealthChecker(nil, nil), http.NotFoundHandler(), opts)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTrackEvent(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})

	rec := env.do(t, http.MethodPost, "/api/users/u1/events", map[string]any{"event_type": "pricing_viewed", "metadata": map[string]any{"page": "/pricing"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["tracked"])
	assert.NotEmpty(t, body["event_id"])

	checks := env.pending.All()
	require.Len(t, checks, 1)
	assert.Equal(t, env.now.Add(72*time.Hour), checks[0].DueAt)
}

func TestTrackEventErrors(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing type", "/api/users/u1/events", map[string]any{}, http.StatusBadRequest},
		{"unknown type", "/api/users/u1/events", map[string]any{"event_type": "page_scrolled"}, http.StatusBadRequest},
		{"unknown user", "/api/users/ghost/events", map[string]any{"event_type": "pricing_viewed"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/events", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnsubscribeAndStatus(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})

	rec := env.do(t, http.MethodGet, "/api/users/u1/email-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["subscribed"])
	assert.Equal(t, false, body["active_sequence"])

	rec = env.do(t, http.MethodPost, "/api/users/u1/unsubscribe", map[string]any{"reason": "too many emails"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["sequence_cancelled"])

	body = decode(t, env.do(t, http.MethodGet, "/api/users/u1/email-status", nil))
	assert.Equal(t, false, body["subscribed"])
	assert.NotNil(t, body["unsubscribed_at"])

	rec = env.do(t, http.MethodPost, "/api/users/u1/resubscribe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, env.do(t, http.MethodGet, "/api/users/u1/email-status", nil))
	assert.Equal(t, true, body["subscribed"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/users/ghost/unsubscribe", nil).Code)
}

func TestAbandonmentStatus(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})
	env.do(t, http.MethodPost, "/api/users/u1/events", map[string]any{"event_type": "pricing_viewed"})

	body := decode(t, env.do(t, http.MethodGet, "/api/users/u1/abandonment-status", nil))
	assert.Equal(t, true, body["is_abandoned"])
	assert.Equal(t, true, body["has_viewed_pricing"])
	assert.Equal(t, false, body["in_drip_campaign"])
	assert.Equal(t, true, body["show_reminder_banner"])

	body = decode(t, env.do(t, http.MethodGet, "/api/users/u2/abandonment-status", nil))
	assert.Equal(t, false, body["is_abandoned"])
}

func TestAdminSend(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})

	rec := env.do(t, http.MethodPost, "/api/admin/send", map[string]any{"user_id": "u2", "template": "social_proof"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "mock", body["mode"])
	assert.Equal(t, "admin", body["queued_by"])
	require.Len(t, env.gateway.Sent(), 1)
	assert.Equal(t, "boris@example.com", env.gateway.Sent()[0].Recipient)

	status := decode(t, env.do(t, http.MethodGet, "/api/users/u2/email-status", nil))
	recent, ok := status["recent_deliveries"].([]any)
	require.True(t, ok, "recent_deliveries missing: %v", status)
	require.Len(t, recent, 1)
	assert.Equal(t, "social_proof", recent[0].(map[string]any)["template"])

	env.do(t, http.MethodPost, "/api/users/u2/unsubscribe", nil)
	rec = env.do(t, http.MethodPost, "/api/admin/send", map[string]any{"user_id": "u2", "template": "reminder"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "unsubscribed", decode(t, rec)["code"])

	rec = env.do(t, http.MethodPost, "/api/admin/send", map[string]any{"user_id": "u2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSweep(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})
	env.do(t, http.MethodPost, "/api/users/u1/events", map[string]any{"event_type": "pricing_viewed"})
	env.now = env.now.Add(73 * time.Hour)

	rec := env.do(t, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["checks_processed"])
	assert.Equal(t, float64(1), body["sequences_started"])

	body = decode(t, env.do(t, http.MethodGet, "/api/users/u1/email-status", nil))
	assert.Equal(t, true, body["active_sequence"])
	assert.Equal(t, float64(0), body["current_step"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{AdminToken: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/admin/sweep", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/admin/sweep", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/admin/sweep", nil, "Authorization", "Bearer s3cret").Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/u1/email-status", nil).Code, "user routes stay open")
}

type busySweeper struct{ err error }

func (b busySweeper) RunNow(context.Context) (drip.SweepReport, error) {
	return drip.SweepReport{}, b.err
}

func TestAdminSweepConflict(t *testing.T) {
	for _, err := range []error{worker.ErrSweepBusy, worker.ErrLeaseHeld} {
		router := SetupRoutes(NewHandlers(nil, busySweeper{err: err}), nil, nil, RouteOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	}

	router := SetupRoutes(NewHandlers(nil, nil), nil, nil, RouteOptions{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthWithoutDependencies(t *testing.T) {
	env := setupTestEnv(t, RouteOptions{})

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ready"])
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed: refused"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: "ping failed: refused"},
	}))
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: notConfigured},
	}))
}
