package middleware

// identity.go holds the context keys shared across middleware and handlers.
// JWTAuth stores the decoded claims under ClaimsKey; the helpers below read
// them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// ClaimsKey is the echo context key of the decoded token.Claims.
const ClaimsKey = "claims"

// ClaimsFrom returns the claims stored by JWTAuth.
func ClaimsFrom(c echo.Context) (token.Claims, bool) {
	cl, ok := c.Get(ClaimsKey).(token.Claims)
	return cl, ok
}

// userID returns a stable identifier for the authenticated subject, or
// "guest" when the request carries no claims.
func userID(c echo.Context) string {
	cl, ok := ClaimsFrom(c)
	if !ok || cl.UserID <= 0 {
		return "guest"
	}
	return string(cl.UserKind) + ":" + strconv.FormatInt(cl.UserID, 10)
}
