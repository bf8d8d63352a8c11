package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutorias-uni/tutorias-api/internal/handler"
	"github.com/tutorias-uni/tutorias-api/internal/middleware"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the login-code endpoints and the caller's own
// session endpoints.
//
// Code and verify live under /v1/auth behind the rate limiter. Logout and me
// require a token and pass through the session guard, which rejects idle
// sessions before the handler runs.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec *token.Codec, guard middleware.Enforcer, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/code", a.RequestCode)
	g.POST("/verify", a.Verify)

	protected := []echo.MiddlewareFunc{
		middleware.JWTAuth(codec),
		middleware.SessionGuard(guard),
	}
	e.POST("/v1/auth/logout", a.Logout, protected...)
	e.GET("/v1/me", a.Me, protected...)
}
