package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

// RequireRole rejects with 403 any request whose claims role is not listed.
// It assumes JWTAuth already stored the claims.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok || !allowed[claims.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
