package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/cache"
	"github.com/aman-churiwal/governance-api/internal/circuitbreaker"
	"github.com/aman-churiwal/governance-api/internal/logger"
	"github.com/aman-churiwal/governance-api/internal/middleware"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f fakeCounter) CountByLayerSince(context.Context, time.Time) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeTiers struct {
	changed map[string]quota.Tier
}

func (f *fakeTiers) ChangeTier(_ context.Context, userID string, tier quota.Tier) error {
	if userID == "missing" {
		return service.ErrUserNotFound
	}
	f.changed[userID] = tier
	return nil
}

type fakeStore struct {
	sub quota.Subscription
	err error
}

func (f fakeStore) Subscription(context.Context, string) (quota.Subscription, error) {
	return f.sub, f.err
}

type adminFixture struct {
	clk       *testclock.FakeClock
	cache     *cache.Cache
	tracker   *activity.Tracker
	scheduler *activity.Scheduler
	tiers     *fakeTiers
	router    *gin.Engine
}

func newAdminFixture(t *testing.T, breaker *circuitbreaker.CircuitBreaker, counter RejectionCounter) *adminFixture {
	t.Helper()
	clk := testclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &adminFixture{
		clk:       clk,
		cache:     cache.New(cache.NewMemoryBackend(clk), cache.ModeMemory, logger.Discard()),
		tracker:   activity.NewTracker(clk),
		scheduler: activity.NewScheduler(clk),
		tiers:     &fakeTiers{changed: map[string]quota.Tier{}},
	}

	h := NewAdminHandler(AdminDeps{
		Cache:     f.cache,
		Breaker:   breaker,
		Tracker:   f.tracker,
		Scheduler: f.scheduler,
		Counter:   counter,
		Tiers:     f.tiers,
		Clock:     clk,
		Logger:    logger.Discard(),
	})

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, "admin-1") })
	r.GET("/admin/status", h.Status)
	r.POST("/admin/shutdown", h.ScheduleShutdown)
	r.DELETE("/admin/shutdown", h.CancelShutdown)
	r.DELETE("/admin/cache", h.ClearCache)
	r.POST("/admin/cache/breaker/reset", h.ResetBreaker)
	r.PUT("/admin/users/:id/tier", h.ChangeTier)
	f.router = r
	return f
}

func (f *adminFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func TestAdminStatus(t *testing.T) {
	f := newAdminFixture(t, nil, fakeCounter{counts: map[string]int64{"ratelimit": 4, "quota": 1}})
	f.tracker.RecordActivity("u-1")
	f.tracker.RecordActivity("u-2")

	w, body := f.do(t, http.MethodGet, "/admin/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(2), body["active_users"])
	assert.Equal(t, map[string]any{"ratelimit": float64(4), "quota": float64(1)}, body["rejections_24h"])
	assert.Equal(t, map[string]any{"scheduled": false}, body["shutdown"])

	cacheBody := body["cache"].(map[string]any)
	assert.Equal(t, "memory", cacheBody["mode"])
	assert.Equal(t, true, cacheBody["degraded"])
	assert.NotContains(t, cacheBody, "circuit_breaker")
}

func TestAdminStatus_CounterFailureOmitsRejections(t *testing.T) {
	f := newAdminFixture(t, nil, fakeCounter{err: errors.New("db down")})

	w, body := f.do(t, http.MethodGet, "/admin/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "rejections_24h")
}

func TestAdminStatus_ReportsBreaker(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{MaxFailures: 1, Timeout: time.Minute})
	_ = breaker.Call(func() error { return errors.New("timeout") })

	f := newAdminFixture(t, breaker, nil)
	_, body := f.do(t, http.MethodGet, "/admin/status", "")

	cb := body["cache"].(map[string]any)["circuit_breaker"].(map[string]any)
	assert.Equal(t, "open", cb["state"])

	w, _ := f.do(t, http.MethodPost, "/admin/cache/breaker/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestAdminResetBreaker_MemoryMode(t *testing.T) {
	f := newAdminFixture(t, nil, nil)
	w, _ := f.do(t, http.MethodPost, "/admin/cache/breaker/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminShutdownScheduleAndCancel(t *testing.T) {
	f := newAdminFixture(t, nil, nil)

	w, body := f.do(t, http.MethodPost, "/admin/shutdown", `{"delay_seconds": 300}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, body["scheduled"])
	assert.Equal(t, float64(300), body["remaining_seconds"])

	f.clk.Step(100 * time.Second)
	_, body = f.do(t, http.MethodGet, "/admin/status", "")
	shutdown := body["shutdown"].(map[string]any)
	assert.Equal(t, float64(200), shutdown["remaining_seconds"])

	_, body = f.do(t, http.MethodDelete, "/admin/shutdown", "")
	assert.Equal(t, true, body["cancelled"])
	assert.False(t, f.scheduler.IsScheduled())

	_, body = f.do(t, http.MethodDelete, "/admin/shutdown", "")
	assert.Equal(t, false, body["cancelled"])
}

func TestAdminShutdown_RejectsBadDelay(t *testing.T) {
	f := newAdminFixture(t, nil, nil)

	for _, body := range []string{`{}`, `{"delay_seconds": 0}`, `{"delay_seconds": -5}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/admin/shutdown", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.False(t, f.scheduler.IsScheduled())
}

func TestAdminClearCache(t *testing.T) {
	f := newAdminFixture(t, nil, nil)
	ctx := context.Background()
	f.cache.Set(ctx, cache.UserKey("1"), "a", time.Minute)
	f.cache.Set(ctx, cache.UserKey("2"), "b", time.Minute)
	f.cache.Set(ctx, cache.ProjectKey("1"), "c", time.Minute)

	w, _ := f.do(t, http.MethodDelete, "/admin/cache", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodDelete, "/admin/cache?pattern="+cache.NamespacePattern(cache.NamespaceUser), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["removed"])
	assert.True(t, f.cache.Exists(ctx, cache.ProjectKey("1")))
}

func TestAdminChangeTier(t *testing.T) {
	f := newAdminFixture(t, nil, nil)

	w, body := f.do(t, http.MethodPut, "/admin/users/u-1/tier", `{"tier": "pro"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "professional", body["tier"])
	assert.Equal(t, quota.TierProfessional, f.tiers.changed["u-1"])

	w, _ = f.do(t, http.MethodPut, "/admin/users/u-1/tier", `{"tier": "platinum"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPut, "/admin/users/missing/tier", `{"tier": "free"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func sessionRouter(h *SessionHandler) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, "u-1") })
	r.POST("/api/auth/logout", h.Logout)
	r.GET("/api/subscription", h.Subscription)
	r.POST("/api/projects", Admitted)
	return r
}

func TestSessionLogoutForgetsUser(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	tracker := activity.NewTracker(clk)
	tracker.RecordActivity("u-1")

	r := sessionRouter(NewSessionHandler(tracker, fakeStore{}, quota.DefaultMatrix()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	_, ok := tracker.LastActivity("u-1")
	assert.False(t, ok)
}

func TestSessionSubscription(t *testing.T) {
	store := fakeStore{sub: quota.Subscription{
		UserID: "u-1",
		Tier:   quota.TierFree,
		Usage:  quota.Usage{Projects: 1},
	}}
	r := sessionRouter(NewSessionHandler(activity.NewTracker(nil), store, quota.DefaultMatrix()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/subscription", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tier     string         `json:"tier"`
		Limits   map[string]any `json:"limits"`
		Features []string       `json:"features"`
		Usage    quota.Usage    `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "free", body.Tier)
	assert.Equal(t, float64(1), body.Limits["projects"])
	assert.NotContains(t, body.Features, string(quota.FeatureCodeGeneration))
	assert.Equal(t, 1, body.Usage.Projects)
}

func TestSessionSubscription_StoreDown(t *testing.T) {
	r := sessionRouter(NewSessionHandler(activity.NewTracker(nil), fakeStore{err: errors.New("down")}, quota.DefaultMatrix()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/subscription", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdmitted(t *testing.T) {
	r := sessionRouter(NewSessionHandler(activity.NewTracker(nil), fakeStore{}, quota.DefaultMatrix()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/projects", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "admitted")
}
