package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/scan-rewards/internal/config"
	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/handler"
	"github.com/iliyamo/scan-rewards/internal/metrics"
	"github.com/iliyamo/scan-rewards/internal/middleware"
	"github.com/iliyamo/scan-rewards/internal/model"
)

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the Prometheus endpoint.
func RegisterRoutes(e *echo.Echo, db *database.DB, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// RegisterAuth registers the session endpoints under /v1/auth.  None of
// them require an access token; logout also accepts one as a bearer header.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)
}

// RegisterProfile registers the member's own endpoints.  Any role may call
// them.  Responses carry the scan barcode and must not be cached.
func RegisterProfile(e *echo.Echo, p *handler.ProfileHandler, jwtSecret string) {
	me := e.Group("/v1/me", middleware.JWTAuth(jwtSecret), middleware.NoStore)
	me.GET("", p.Me)
	me.GET("/transactions", p.Transactions)
}

// RegisterScan registers the redemption endpoint.  Only scanners and
// admins may call it, and each caller is throttled by the Redis token
// bucket (a nil client disables throttling).
func RegisterScan(e *echo.Echo, s *handler.ScanHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/qr",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleScanner, model.RoleAdmin),
		middleware.NewTokenBucket(rl, rdb, s.Metrics, s.Log),
	)
	g.POST("/scan", s.Scan)
}
