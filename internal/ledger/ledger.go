// Package ledger is the append-only journal of session activity. Every
// authenticated request and every session closure becomes one row; sessions
// themselves are derived from the sequence of rows per subject.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/repository"
)

var (
	ErrValidation  = errors.New("invalid activity record")
	ErrPersistence = errors.New("activity store unavailable")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store is the persistence the ledger needs. Latest and LatestByName return
// repository.ErrNotFound when nothing matches.
type Store interface {
	Insert(ctx context.Context, rec model.ActivityRecord) (uint64, error)
	Latest(ctx context.Context, s model.Subject) (model.ActivityRecord, error)
	LatestByName(ctx context.Context, name string, ak model.AccessKind) (model.ActivityRecord, error)
	List(ctx context.Context, f model.ActivityFilter, limit, offset int) ([]model.ActivityRecord, error)
}

// Directory resolves display names back to users for unlinked rows.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByNameAndRole(ctx context.Context, name string, role model.Role) (model.User, error)
}

// AppendInput describes a row to append. Subject may be nil when only a
// display name is known; the ledger then tries to link it.
type AppendInput struct {
	Subject     model.Subject
	DisplayName string
	Email       string `validate:"omitempty,email"`
	AccessKind  model.AccessKind
	Action      string `validate:"required"`
	Description string
	State       model.SessionState `validate:"required,oneof=activa cerrada"`
	OriginIP    string             `validate:"omitempty,ip"`
	OccurredAt  time.Time
}

// Resolution is the outcome of linking an unlinked row to a user.
type Resolution struct {
	User model.User
	Err  error
}

// Ledger appends and queries activity records.
type Ledger struct {
	store    Store
	dir      Directory
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used when AppendInput.OccurredAt is zero.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New builds a ledger. dir may be nil, in which case unlinked rows stay
// unlinked.
func New(store Store, dir Directory, validate *validator.Validate, logger zerolog.Logger, opts ...Option) *Ledger {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	l := &Ledger{
		store:    store,
		dir:      dir,
		validate: validate,
		logger:   logger.With().Str("component", "activity_ledger").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append validates in and writes it, returning the new row id.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (uint64, error) {
	in.Action = strings.TrimSpace(in.Action)
	in.OriginIP = strings.TrimSpace(in.OriginIP)
	if err := l.validate.Struct(in); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if in.Subject == nil && in.DisplayName != "" && in.AccessKind != "" {
		res := l.resolve(ctx, in)
		if res.Err != nil {
			l.logger.Warn().Err(res.Err).
				Str("display_name", in.DisplayName).
				Str("access_kind", string(in.AccessKind)).
				Msg("could not link activity to a user")
		} else {
			in.Subject = res.User.Subject()
		}
	}

	if in.AccessKind == "" && in.Subject != nil {
		in.AccessKind = in.Subject.AccessKind()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = l.now()
	}

	id, err := l.store.Insert(ctx, model.ActivityRecord{
		Subject:     in.Subject,
		DisplayName: in.DisplayName,
		AccessKind:  in.AccessKind,
		Action:      in.Action,
		Description: in.Description,
		OccurredAt:  in.OccurredAt.UTC(),
		State:       in.State,
		OriginIP:    in.OriginIP,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return id, nil
}

func (l *Ledger) resolve(ctx context.Context, in AppendInput) Resolution {
	if l.dir == nil {
		return Resolution{Err: errors.New("no user directory configured")}
	}
	if in.Email != "" {
		u, err := l.dir.FindByEmail(ctx, in.Email)
		if err == nil {
			return Resolution{User: u}
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Resolution{Err: fmt.Errorf("find by email: %w", err)}
		}
	}
	u, err := l.dir.FindByNameAndRole(ctx, in.DisplayName, model.RoleFor(in.AccessKind))
	if err != nil {
		return Resolution{Err: fmt.Errorf("find by name and role: %w", err)}
	}
	return Resolution{User: u}
}

// LatestRecord returns the subject's newest row of any state, or nil.
func (l *Ledger) LatestRecord(ctx context.Context, s model.Subject) (*model.ActivityRecord, error) {
	rec, err := l.store.Latest(ctx, s)
	return found(rec, err)
}

// LastActiveRecord returns the row keeping the subject's session open, or
// nil if the subject has no open session. A session is open while the
// subject's newest row is in state activa; ties on occurred_at are broken by
// id.
func (l *Ledger) LastActiveRecord(ctx context.Context, s model.Subject) (*model.ActivityRecord, error) {
	rec, err := l.LatestRecord(ctx, s)
	if err != nil || rec == nil || !rec.Active() {
		return nil, err
	}
	return rec, nil
}

// LastActiveByName is LastActiveRecord keyed by display name and access
// kind, for rows that were never linked to a subject. Two subjects sharing
// a display name are indistinguishable here.
func (l *Ledger) LastActiveByName(ctx context.Context, name string, ak model.AccessKind) (*model.ActivityRecord, error) {
	rec, err := l.store.LatestByName(ctx, name, ak)
	r, err := found(rec, err)
	if err != nil || r == nil || !r.Active() {
		return nil, err
	}
	return r, nil
}

// List returns rows matching f newest first. limit is clamped to
// [1, MaxListLimit] with DefaultListLimit for non-positive values.
func (l *Ledger) List(ctx context.Context, f model.ActivityFilter, limit, offset int) ([]model.ActivityRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := l.store.List(ctx, f, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return recs, nil
}

func found(rec model.ActivityRecord, err error) (*model.ActivityRecord, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &rec, nil
}
