package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/cache"
	"github.com/aman-churiwal/governance-api/internal/logger"
	"github.com/aman-churiwal/governance-api/internal/models"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/ratelimit"
	"github.com/aman-churiwal/governance-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

const testSecret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type brokenBackend struct {
	cache.Backend
}

func (brokenBackend) Increment(context.Context, string, int64) (int64, error) {
	return 0, errors.New("connection refused")
}

type stubStore struct {
	subs map[string]quota.Subscription
	err  error
}

func (s stubStore) Subscription(_ context.Context, userID string) (quota.Subscription, error) {
	if s.err != nil {
		return quota.Subscription{}, s.err
	}
	sub, ok := s.subs[userID]
	if !ok {
		return quota.Subscription{}, service.ErrUserNotFound
	}
	return sub, nil
}

type recordingWriter struct {
	mu   sync.Mutex
	logs []models.AdmissionLog
}

func (w *recordingWriter) CreateBatch(_ context.Context, logs []models.AdmissionLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, logs...)
	return nil
}

type fixture struct {
	clk     *testclock.FakeClock
	tracker *activity.Tracker
	limits  *ratelimit.Service
	gate    *quota.Gate
	auth    *service.AuthService
}

func newFixture(t *testing.T, backend cache.Backend, store quota.SubscriptionStore) *fixture {
	t.Helper()
	clk := testclock.NewFakeClock(time.Unix(1699999210, 0))
	if backend == nil {
		backend = cache.NewMemoryBackend(clk)
	}
	policy, err := ratelimit.ParsePolicy(map[string][]string{
		"default":        {"100/minute"},
		"authentication": {"5/minute", "50/hour"},
		"tier_free":      {"20/minute"},
		"health":         {},
	})
	require.NoError(t, err)

	log := logger.Discard()
	return &fixture{
		clk:     clk,
		tracker: activity.NewTracker(clk),
		limits:  ratelimit.NewService(ratelimit.NewFixedWindow(backend, clk), policy, clk, log),
		gate:    quota.NewGate(quota.DefaultMatrix(), store, time.Second, log),
		auth:    service.NewAuthService(testSecret),
	}
}

func (f *fixture) router(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(logger.Discard()), RequestID(), Credentials(f.auth), ActivityTracker(f.tracker))
	r.GET("/test", append(handlers, func(c *gin.Context) { c.String(http.StatusOK, "ok") })...)
	return r
}

func do(r http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AuthenticationClass(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.router(RateLimit(f.limits, ratelimit.ClassAuthentication))

	for i := 0; i < 5; i++ {
		w := do(r, http.MethodGet, "/test", "")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(4-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "authentication", w.Header().Get("X-RateLimit-Class"))
	}

	w := do(r, http.MethodGet, "/test", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Equal(t, 50, retry)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Equal(t, float64(50), body["retry_after"])
}

func TestRateLimit_AuthenticatedAndAnonymousCountedSeparately(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.router(RateLimit(f.limits, ratelimit.ClassAuthentication))

	for i := 0; i < 5; i++ {
		do(r, http.MethodGet, "/test", "")
	}
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/test", "").Code)

	tok := token(t, jwt.MapClaims{"user_id": "u-1"})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/test", tok).Code)
}

func TestRateLimit_TierSessionClass(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.router(RateLimit(f.limits, ratelimit.ClassDefault))

	w := do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-1", "tier": "free"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tier_free", w.Header().Get("X-RateLimit-Class"))
	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))

	w = do(r, http.MethodGet, "/test", "")
	assert.Equal(t, "default", w.Header().Get("X-RateLimit-Class"))
}

func TestRateLimit_FailsOpenWithoutHeaders(t *testing.T) {
	f := newFixture(t, brokenBackend{}, nil)
	r := f.router(RateLimit(f.limits, ratelimit.ClassAuthentication))

	for i := 0; i < 20; i++ {
		w := do(r, http.MethodGet, "/test", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_HealthUnlimited(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.router(RateLimit(f.limits, ratelimit.ClassHealth))

	for i := 0; i < 500; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/test", "").Code)
	}
}

func TestCredentialsAreBestEffort(t *testing.T) {
	f := newFixture(t, nil, nil)
	open := f.router()
	closed := f.router(RequireAuth())

	assert.Equal(t, http.StatusOK, do(open, http.MethodGet, "/test", "garbage").Code)
	assert.Empty(t, f.tracker.ActiveUsers(time.Hour), "invalid token is not tracked")

	w := do(closed, http.MethodGet, "/test", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired token")

	w = do(closed, http.MethodGet, "/test", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header required")

	assert.Equal(t, http.StatusOK, do(closed, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-1"})).Code)
	assert.Equal(t, []string{"u-1"}, f.tracker.ActiveUsers(time.Hour))
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.router(RequireAuth(), RequireAdmin())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-1", "role": "member"})).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-1", "role": "admin"})).Code)
}

func TestRequireFeature(t *testing.T) {
	store := stubStore{subs: map[string]quota.Subscription{
		"u-free": {UserID: "u-free", Tier: quota.TierFree},
		"u-pro":  {UserID: "u-pro", Tier: quota.TierProfessional},
	}}
	f := newFixture(t, nil, store)
	r := f.router(RequireAuth(), RequireFeature(f.gate, quota.FeatureCodeGeneration))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-pro"})).Code)

	w := do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-free"}))
	require.Equal(t, http.StatusForbidden, w.Code)

	var rej quota.Rejection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rej))
	assert.Equal(t, quota.CodeFeatureNotAvailable, rej.Code)
	assert.Equal(t, "free", rej.CurrentTier)
	assert.Equal(t, "professional", rej.RequiredTier)
	assert.Equal(t, quota.FeatureCodeGeneration, rej.Feature)
}

func TestRequireQuota(t *testing.T) {
	store := stubStore{subs: map[string]quota.Subscription{
		"u-free": {UserID: "u-free", Tier: quota.TierFree, Usage: quota.Usage{Projects: 1}},
	}}
	f := newFixture(t, nil, store)
	r := f.router(RequireAuth(), RequireQuota(f.gate, quota.ResourceProjects))

	w := do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-free"}))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{
		"error": "quota_exceeded",
		"message": "Project limit (1) reached for free tier",
		"current_tier": "free",
		"resource": "projects",
		"limit": 1,
		"current_count": 1
	}`, w.Body.String())
}

func TestRequireTier_StoreDownIsServiceUnavailable(t *testing.T) {
	f := newFixture(t, nil, stubStore{err: errors.New("connection refused")})
	r := f.router(RequireAuth(), RequireTier(f.gate, quota.TierFree))

	w := do(r, http.MethodGet, "/test", token(t, jwt.MapClaims{"user_id": "u-1"}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "subscription_unavailable")
}

func TestAdmissionLoggerRecordsRejections(t *testing.T) {
	f := newFixture(t, nil, nil)
	writer := &recordingWriter{}
	al := NewAdmissionLogger(writer, 10, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	al.Start(ctx)

	r := gin.New()
	r.Use(RequestID(), al.Middleware(), Credentials(f.auth))
	r.GET("/login", RateLimit(f.limits, ratelimit.ClassAuthentication), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 7; i++ {
		do(r, http.MethodGet, "/login", "")
	}

	cancel()
	al.Wait()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.logs, 2)
	entry := writer.logs[0]
	assert.Equal(t, "ratelimit", entry.Layer)
	assert.Equal(t, "rate_limit_exceeded", entry.Code)
	assert.Equal(t, "/login", entry.Path)
	assert.Equal(t, http.StatusTooManyRequests, entry.StatusCode)
	assert.Equal(t, "ip:10.0.0.1", entry.Identity)
	assert.NotEmpty(t, entry.RequestID)
}

func TestAdmissionLoggerDropsWhenFull(t *testing.T) {
	al := NewAdmissionLogger(&recordingWriter{}, 1, logger.Discard())

	assert.NotPanics(t, func() {
		al.Record(models.AdmissionLog{Layer: "quota"})
		al.Record(models.AdmissionLog{Layer: "quota"})
	})
	assert.Len(t, al.entries, 1)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.Any("/api/projects", func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRecoveryAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logger.Discard()), RequestID())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestLoggerWritesAccessLine(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(logger.Discard()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := do(r, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
