package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

// LoginCodeRepo persists hashed one-time login codes.
type LoginCodeRepo struct{ DB *sql.DB }

func NewLoginCodeRepo(db *sql.DB) *LoginCodeRepo { return &LoginCodeRepo{DB: db} }

// Store inserts a code hash row.
func (r *LoginCodeRepo) Store(ctx context.Context, email, codeHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO login_codes (email, code_hash, expires_at) VALUES (?,?,?)",
		normalizeEmail(email), codeHash, exp.UTC())
	return err
}

// LatestValid returns the newest unused, unexpired code for email.
func (r *LoginCodeRepo) LatestValid(ctx context.Context, email string) (model.LoginCode, error) {
	var (
		c      model.LoginCode
		usedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,code_hash,expires_at,used_at,created_at FROM login_codes WHERE email=? AND used_at IS NULL ORDER BY id DESC LIMIT 1",
		normalizeEmail(email)).Scan(&c.ID, &c.Email, &c.CodeHash, &c.ExpiresAt, &usedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoginCode{}, ErrNotFound
	}
	if err != nil {
		return model.LoginCode{}, err
	}
	if time.Now().UTC().After(c.ExpiresAt) {
		return model.LoginCode{}, ErrNotFound
	}
	return c, nil
}

// MarkUsed consumes a code so it cannot be replayed. It returns ErrNotFound
// when the code was already consumed, so only one caller wins a race.
func (r *LoginCodeRepo) MarkUsed(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE login_codes SET used_at=NOW() WHERE id=? AND used_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForEmail consumes every pending code for email.
func (r *LoginCodeRepo) RevokeAllForEmail(ctx context.Context, email string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE login_codes SET used_at=NOW() WHERE email=? AND used_at IS NULL",
		normalizeEmail(email))
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
