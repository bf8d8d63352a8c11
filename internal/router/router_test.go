package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tutorias-uni/tutorias-api/internal/handler"
	"github.com/tutorias-uni/tutorias-api/internal/ledger"
	"github.com/tutorias-uni/tutorias-api/internal/ledger/ledgertest"
	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/session"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func TestHealthAndMetrics(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, nil)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAdminRoutesRequireAdminAndTouchSession(t *testing.T) {
	store := &ledgertest.MemoryStore{}
	l := ledger.New(store, nil, nil, zerolog.Nop())
	guard := session.NewGuard(l, nil, zerolog.Nop())
	codec := token.NewCodec("router-secret", time.Hour)

	e := echo.New()
	RegisterAdmin(e, handler.NewActivityHandler(l), codec, guard, passthrough)

	call := func(role model.Role) int {
		raw, err := codec.Encode(token.Claims{UserID: 5, Role: role, UserKind: model.KindSystem, Name: "Ana"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/activity", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call(model.RoleAdmin))
	require.Equal(t, http.StatusForbidden, call(model.RoleVerifier))
	// the guard runs before the role check, so both calls count as activity
	require.Equal(t, 2, store.Count(model.SessionActive))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/activity", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
