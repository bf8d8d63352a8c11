package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/session"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// MsgInactivity is returned to clients whose session timed out.
const MsgInactivity = "Sesión cerrada por inactividad"

// MsgSessionClosed is returned for tokens of a session closed earlier.
const MsgSessionClosed = "Sesión cerrada"

// Enforcer is implemented by *session.Guard.
type Enforcer interface {
	EnforceAndTouch(ctx context.Context, claims token.Claims, req session.Request) error
}

// SessionGuard runs the inactivity check and touch for the claims stored by
// JWTAuth. It must be registered after JWTAuth and before any handler.
func SessionGuard(g Enforcer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			req := session.RequestFromHTTP(c.Request(), time.Now())
			err := g.EnforceAndTouch(c.Request().Context(), claims, req)
			switch {
			case errors.Is(err, session.ErrInactivityTimeout):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": MsgInactivity})
			case errors.Is(err, session.ErrSessionClosed):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": MsgSessionClosed})
			case err != nil:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
