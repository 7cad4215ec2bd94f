package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/scan-rewards/internal/config"
	"github.com/iliyamo/scan-rewards/internal/utils"
)

const secret = "test-secret"

func newServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/p", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": c.Get(CtxUserID), "role": c.Get(CtxRole)})
	}, mw...)
	return e
}

func do(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, id uint64, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, id, role, 5)
	require.NoError(t, err)
	return at.Token
}

func TestJWTAuth(t *testing.T) {
	e := newServer(JWTAuth(secret))

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "garbage").Code)

	rec := do(e, bearer(t, 12, "MEMBER"))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 12, body["user_id"])
	assert.Equal(t, "MEMBER", body["role"])
}

func TestRequireRole(t *testing.T) {
	e := newServer(JWTAuth(secret), RequireRole("SCANNER", "admin"))

	assert.Equal(t, http.StatusForbidden, do(e, bearer(t, 1, "MEMBER")).Code)
	assert.Equal(t, http.StatusOK, do(e, bearer(t, 1, "SCANNER")).Code)
	assert.Equal(t, http.StatusOK, do(e, bearer(t, 1, "ADMIN")).Code)

	// without JWTAuth there is no role at all
	bare := newServer(RequireRole("SCANNER"))
	assert.Equal(t, http.StatusForbidden, do(bare, "").Code)
}

func TestNoStore(t *testing.T) {
	rec := do(newServer(NoStore), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	e := newServer(RequestLogger(log), JWTAuth(secret))
	rec := do(e, bearer(t, 5, "MEMBER"))
	require.Equal(t, http.StatusOK, rec.Code)
	rid := rec.Header().Get("X-Request-ID")
	assert.Len(t, rid, 36)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, rid, line["request_id"])
	assert.Equal(t, "/p", line["path"])
	assert.EqualValues(t, 200, line["status"])
	assert.EqualValues(t, 5, line["user_id"])

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
}

func TestNewTokenBucket_PassThroughWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour}
	e := newServer(NewTokenBucket(cfg, nil, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/qr/scan", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/qr/scan")

	cfg := config.RateLimitConfig{Prefix: "rl:scan", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:scan:user:anon:route:POST /v1/qr/scan", buildRateKey(cfg, c))

	c.Set(CtxUserID, uint64(77))
	assert.Equal(t, "rl:scan:user:77:route:POST /v1/qr/scan", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:scan:ip:10.0.0.1", buildRateKey(cfg, c))
	cfg.KeyStrategy = "IP_User"
	assert.Equal(t, "rl:scan:ip:10.0.0.1:user:77", buildRateKey(cfg, c))
	cfg.KeyStrategy = "whatever"
	assert.Equal(t, "rl:scan:ip:10.0.0.1:user:77:route:POST /v1/qr/scan", buildRateKey(cfg, c))
}

func TestParseBucketResult(t *testing.T) {
	allowed, remaining, retry, ok := parseBucketResult([]interface{}{int64(1), int64(4), int64(0)})
	require.True(t, ok)
	assert.True(t, allowed)
	assert.Equal(t, int64(4), remaining)
	assert.Zero(t, retry)

	allowed, _, retry, ok = parseBucketResult([]interface{}{"0", "0", "7500"})
	require.True(t, ok)
	assert.False(t, allowed)
	assert.Equal(t, int64(7500), retry)

	_, _, _, ok = parseBucketResult("nope")
	assert.False(t, ok)
	_, _, _, ok = parseBucketResult([]any{int64(1)})
	assert.False(t, ok)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(0))
	assert.Equal(t, 0, retryAfterSeconds(-time.Second))
	assert.Equal(t, 1, retryAfterSeconds(time.Millisecond))
	assert.Equal(t, 1, retryAfterSeconds(time.Second))
	assert.Equal(t, 8, retryAfterSeconds(7500*time.Millisecond))
}
