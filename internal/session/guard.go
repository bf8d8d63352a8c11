// Package session enforces the inactivity timeout on every authenticated
// request and keeps the access log current.
//
// Each subject is either Active (its newest access-log row is activa and
// younger than the timeout) or Expired. EnforceAndTouch checks the timeout
// first and only then appends the touch row, so a request can never reset
// its own timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorias-uni/tutorias-api/internal/ledger"
	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/observability"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

// DefaultInactivityTimeout closes a session after 30 minutes without a touch.
const DefaultInactivityTimeout = 1800 * time.Second

const notifyTimeout = 5 * time.Second

var (
	// ErrInactivityTimeout means the request arrived after the inactivity
	// window; the session has just been closed.
	ErrInactivityTimeout = errors.New("session closed by inactivity")
	// ErrSessionClosed means the token belongs to a session that was closed
	// after the token was issued.
	ErrSessionClosed = errors.New("session closed")
)

// Ledger is the slice of the activity ledger the guard uses.
type Ledger interface {
	Append(ctx context.Context, in ledger.AppendInput) (uint64, error)
	LatestRecord(ctx context.Context, s model.Subject) (*model.ActivityRecord, error)
	LastActiveRecord(ctx context.Context, s model.Subject) (*model.ActivityRecord, error)
	LastActiveByName(ctx context.Context, name string, ak model.AccessKind) (*model.ActivityRecord, error)
}

// ClosedNotice is sent to the subject when a session is closed for them.
type ClosedNotice struct {
	Email     string
	Name      string
	IP        string
	UserAgent string
	ClosedAt  time.Time
	Reason    string
}

// Notifier delivers session notices. Failures are logged only.
type Notifier interface {
	SendSessionClosed(ctx context.Context, n ClosedNotice) error
}

// Guard decides, per request, whether a session is still alive.
type Guard struct {
	ledger   Ledger
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customises a Guard.
type Option func(*Guard)

// WithTimeout overrides DefaultInactivityTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithClock sets the clock used when Request.Now is zero.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard builds a guard. notifier may be nil.
func NewGuard(l Ledger, n Notifier, logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{
		ledger:   l,
		notifier: n,
		timeout:  DefaultInactivityTimeout,
		now:      time.Now,
		logger:   logger.With().Str("component", "session_guard").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Timeout reports the inactivity window in force.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// EnforceAndTouch must run after token decoding and before any business
// logic. It returns ErrInactivityTimeout or ErrSessionClosed when the request
// has to be rejected; storage trouble is logged and never rejects.
func (g *Guard) EnforceAndTouch(ctx context.Context, claims token.Claims, req Request) error {
	if claims.UserID <= 0 {
		return nil
	}
	subject := claims.Principal()
	now := req.Now
	if now.IsZero() {
		now = g.now()
	}
	log := g.logger.With().Str("subject", subject.String()).Logger()

	latest, err := g.ledger.LatestRecord(ctx, subject)
	if err != nil {
		observability.SideEffectErrors().WithLabelValues("lookup").Inc()
		log.Error().Err(err).Msg("last activity lookup failed; skipping inactivity check")
	}

	if latest != nil && !latest.Active() && closedAfterIssue(latest, claims) {
		return ErrSessionClosed
	}

	if latest != nil && latest.Active() && now.Sub(latest.OccurredAt) > g.timeout {
		g.expire(ctx, claims, subject, req, now, log)
		return ErrInactivityTimeout
	}

	_, err = g.ledger.Append(ctx, ledger.AppendInput{
		Subject:     subject,
		DisplayName: claims.Name,
		AccessKind:  subject.AccessKind(),
		Action:      model.ActionActivity,
		Description: req.describe(),
		State:       model.SessionActive,
		OriginIP:    req.ClientIP(),
		OccurredAt:  now,
	})
	if err != nil {
		observability.SideEffectErrors().WithLabelValues("touch").Inc()
		log.Error().Err(err).Msg("touch failed")
		return nil
	}
	observability.SessionTouches().Inc()
	return nil
}

func closedAfterIssue(rec *model.ActivityRecord, claims token.Claims) bool {
	if claims.IssuedAt == nil {
		return false
	}
	return rec.OccurredAt.Unix() > claims.IssuedAt.Unix()
}

func (g *Guard) expire(ctx context.Context, claims token.Claims, subject model.Subject, req Request, now time.Time, log zerolog.Logger) {
	reason := fmt.Sprintf("Sesión cerrada automáticamente tras %d minutos de inactividad", int(g.timeout.Minutes()))
	ip := req.ClientIP()

	observability.SessionClosures().WithLabelValues("inactivity").Inc()
	_, err := g.ledger.Append(ctx, ledger.AppendInput{
		Subject:     subject,
		DisplayName: claims.Name,
		AccessKind:  subject.AccessKind(),
		Action:      model.ActionLogout,
		Description: reason,
		State:       model.SessionClosed,
		OriginIP:    ip,
		OccurredAt:  now,
	})
	if err != nil {
		observability.SideEffectErrors().WithLabelValues("close").Inc()
		log.Error().Err(err).Msg("could not record inactivity closure")
	}

	if g.notifier == nil || claims.Email == "" {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err = g.notifier.SendSessionClosed(nctx, ClosedNotice{
		Email:     claims.Email,
		Name:      claims.Name,
		IP:        ip,
		UserAgent: req.UserAgent,
		ClosedAt:  now,
		Reason:    reason,
	})
	if err != nil {
		observability.SideEffectErrors().WithLabelValues("notify").Inc()
		log.Warn().Err(err).Msg("session closed notice not sent")
		return
	}
	log.Info().Msg("session closed notice sent")
}

// CloseRequest identifies the session to close. Subject is preferred;
// DisplayName with AccessKind is the fallback for rows never linked to a
// subject, used only while the subject has no linked rows of its own.
type CloseRequest struct {
	Subject     model.Subject
	DisplayName string
	AccessKind  model.AccessKind
	Reason      string
	OriginIP    string
	// Cause labels the closure in metrics, e.g. "logout" or "new_code".
	Cause string
	At    time.Time
}

// CloseActiveIfExists appends a cerrada row when the subject has an open
// session and reports whether it did. Calling it again is a no-op.
func (g *Guard) CloseActiveIfExists(ctx context.Context, in CloseRequest) (bool, error) {
	var (
		rec    *model.ActivityRecord
		linked bool
		err    error
	)
	if in.Subject != nil {
		rec, err = g.ledger.LatestRecord(ctx, in.Subject)
		if err != nil {
			return false, err
		}
		linked = rec != nil
		if rec != nil && !rec.Active() {
			rec = nil
		}
	}
	// Once the subject has a row of its own, including the closure written
	// here for a legacy row, its own history decides.
	if !linked && in.DisplayName != "" && in.AccessKind != "" {
		rec, err = g.ledger.LastActiveByName(ctx, in.DisplayName, in.AccessKind)
		if err != nil {
			return false, err
		}
	}
	if rec == nil {
		return false, nil
	}

	subject := rec.Subject
	if subject == nil {
		subject = in.Subject
	}
	name := in.DisplayName
	if name == "" {
		name = rec.DisplayName
	}
	at := in.At
	if at.IsZero() {
		at = g.now()
	}
	cause := in.Cause
	if cause == "" {
		cause = "manual"
	}

	if _, err := g.ledger.Append(ctx, ledger.AppendInput{
		Subject:     subject,
		DisplayName: name,
		AccessKind:  rec.AccessKind,
		Action:      model.ActionLogout,
		Description: in.Reason,
		State:       model.SessionClosed,
		OriginIP:    in.OriginIP,
		OccurredAt:  at,
	}); err != nil {
		return false, err
	}
	observability.SessionClosures().WithLabelValues(cause).Inc()
	return true, nil
}
