package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tutorias-uni/tutorias-api/internal/clientip"
	"github.com/tutorias-uni/tutorias-api/internal/config"
	"github.com/tutorias-uni/tutorias-api/internal/ledger"
	"github.com/tutorias-uni/tutorias-api/internal/middleware"
	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/repository"
	"github.com/tutorias-uni/tutorias-api/internal/session"
	"github.com/tutorias-uni/tutorias-api/internal/token"
	"github.com/tutorias-uni/tutorias-api/internal/utils"
)

const (
	reasonNewCode = "nuevo código de acceso solicitado"
	reasonLogout  = "cierre de sesión por el usuario"
)

// UserDirectory is implemented by *repository.UserRepo.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, kind model.UserKind, id int64) (model.User, error)
}

// CodeStore is implemented by *repository.LoginCodeRepo.
type CodeStore interface {
	Store(ctx context.Context, email, codeHash string, exp time.Time) error
	LatestValid(ctx context.Context, email string) (model.LoginCode, error)
	MarkUsed(ctx context.Context, id uint64) error
	RevokeAllForEmail(ctx context.Context, email string) error
}

// CodeMailer is implemented by *notify.Publisher.
type CodeMailer interface {
	SendLoginCode(ctx context.Context, email, name, code string, expiresAt time.Time) error
}

// SessionCloser is implemented by *session.Guard.
type SessionCloser interface {
	CloseActiveIfExists(ctx context.Context, in session.CloseRequest) (bool, error)
}

// ActivityLog is implemented by *ledger.Ledger.
type ActivityLog interface {
	Append(ctx context.Context, in ledger.AppendInput) (uint64, error)
}

// AuthHandler bundles dependencies for the login-code endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserDirectory
	Codes    CodeStore
	Codec    *token.Codec
	Sessions SessionCloser
	Activity ActivityLog
	Mailer   CodeMailer

	logger   zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewAuthHandler(cfg config.Config, users UserDirectory, codes CodeStore, codec *token.Codec,
	sessions SessionCloser, activity ActivityLog, mailer CodeMailer, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &AuthHandler{
		Cfg:      cfg,
		Users:    users,
		Codes:    codes,
		Codec:    codec,
		Sessions: sessions,
		Activity: activity,
		Mailer:   mailer,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
		validate: validate,
		now:      time.Now,
	}
}

// ----- DTOs -----

type codeReq struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyReq struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type userPart struct {
	ID        int64  `json:"id"`
	Kind      string `json:"user_type"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Semester  string `json:"semester,omitempty"`
	DNI       string `json:"dni,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

type verifyResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	User    userPart  `json:"user"`
}

func userPartOf(u model.User) userPart {
	return userPart{
		ID:        u.ID,
		Kind:      string(u.Kind),
		Role:      string(u.Role),
		Email:     u.Email,
		Name:      u.Name,
		Code:      u.Code,
		Semester:  u.Semester,
		DNI:       u.DNI,
		Specialty: u.Specialty,
	}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// RequestCode mails a fresh login code. Unknown or inactive emails get the
// same 202 as known ones.
func (h *AuthHandler) RequestCode(c echo.Context) error {
	var req codeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = normalizeEmail(req.Email)
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	accepted := echo.Map{"message": "si el correo está registrado recibirá un código de acceso"}

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusAccepted, accepted)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	ip := clientip.FromRequest(c.Request())
	now := h.now()
	if _, err := h.Sessions.CloseActiveIfExists(ctx, session.CloseRequest{
		Subject:     u.Subject(),
		DisplayName: u.Name,
		AccessKind:  u.Subject().AccessKind(),
		Reason:      reasonNewCode,
		OriginIP:    ip,
		Cause:       "new_code",
		At:          now,
	}); err != nil {
		h.logger.Error().Err(err).Str("subject", u.Subject().String()).Msg("closing previous session failed")
	}

	code, err := utils.NewLoginCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate code failed"})
	}
	hash, err := utils.HashCode(code, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash code failed"})
	}
	exp := now.Add(h.Cfg.Session.LoginCodeTTL)
	if err := h.Codes.RevokeAllForEmail(ctx, u.Email); err != nil {
		h.logger.Error().Err(err).Msg("revoking previous codes failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save code failed"})
	}
	if err := h.Codes.Store(ctx, u.Email, hash, exp); err != nil {
		h.logger.Error().Err(err).Msg("storing login code failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save code failed"})
	}

	if err := h.Mailer.SendLoginCode(ctx, u.Email, u.Name, code, exp); err != nil {
		h.logger.Error().Err(err).Str("email", u.Email).Msg("login code notification failed")
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// Verify exchanges a valid login code for a session token and opens the
// session in the access log.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = normalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and 6-digit code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lc, err := h.Codes.LatestValid(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("login code lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyCode(lc.CodeHash, req.Code) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	err = h.Codes.MarkUsed(ctx, lc.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("marking login code used failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save code failed"})
	}

	now := h.now()
	claims := token.ClaimsFor(u)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(h.Codec.TTL()))
	raw, err := h.Codec.Encode(claims)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}

	if _, err := h.Activity.Append(ctx, ledger.AppendInput{
		Subject:     u.Subject(),
		DisplayName: u.Name,
		Email:       u.Email,
		AccessKind:  u.Subject().AccessKind(),
		Action:      model.ActionLogin,
		Description: "inicio de sesión con código de acceso",
		State:       model.SessionActive,
		OriginIP:    clientip.FromRequest(c.Request()),
		OccurredAt:  now,
	}); err != nil {
		h.logger.Error().Err(err).Str("subject", u.Subject().String()).Msg("recording login failed")
	}

	return c.JSON(http.StatusOK, verifyResp{
		Token:   raw,
		Expires: claims.ExpiresAt.Time,
		User:    userPartOf(u),
	})
}

// Logout closes the caller's session. It always answers 204.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	subject := claims.Principal()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Sessions.CloseActiveIfExists(ctx, session.CloseRequest{
		Subject:     subject,
		DisplayName: claims.Name,
		AccessKind:  subject.AccessKind(),
		Reason:      reasonLogout,
		OriginIP:    clientip.FromRequest(c.Request()),
		Cause:       "logout",
		At:          h.now(),
	}); err != nil {
		h.logger.Error().Err(err).Str("subject", subject.String()).Msg("logout close failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's claims and current directory profile.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserKind, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"claims": claims, "user": userPartOf(u)})
}
