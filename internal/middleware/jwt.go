package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/observability"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// JWTAuth validates the Bearer token and stores its claims under ClaimsKey.
// Every decode failure yields the same 401 body so clients cannot tell which
// check failed.
func JWTAuth(codec *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := token.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				observability.TokenRejections().WithLabelValues("missing").Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims, err := codec.Decode(raw)
			if err != nil {
				observability.TokenRejections().WithLabelValues(rejectionReason(err)).Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, token.ErrInvalidSignature):
		return "signature"
	case errors.Is(err, token.ErrInvalidPayload):
		return "payload"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	}
	return "other"
}
