package router

import (
	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/handler"
	"github.com/tutorias-uni/tutorias-api/internal/middleware"
	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// RegisterAdmin registers admin-scoped endpoints under /v1/admin.
// All routes require a valid token, a live session and the admin role.
// cache runs last so a cached read still counts as session activity.
func RegisterAdmin(e *echo.Echo, h *handler.ActivityHandler, codec *token.Codec, guard middleware.Enforcer, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(codec),
		middleware.SessionGuard(guard),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Access log ----
	g.GET("/activity", h.List, cache)
}
