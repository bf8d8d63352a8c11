// Package token issues and validates the signed session tokens carried in the
// Authorization header of every protected request.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

// Decode failures. Callers must not reveal which one occurred to clients.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidPayload   = errors.New("invalid token payload")
	ErrExpired          = errors.New("token expired")
	ErrMissingSubject   = errors.New("claims without subject")
)

// DefaultTTL is the lifetime of a login token.
const DefaultTTL = 24 * time.Hour

// Claims is the payload of a session token. iat and exp are serialized as
// seconds since the epoch through the embedded registered claims.
type Claims struct {
	UserID    int64          `json:"id"`
	Role      model.Role     `json:"role"`
	UserKind  model.UserKind `json:"user_type"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Code      string         `json:"code,omitempty"`
	Semester  string         `json:"semester,omitempty"`
	DNI       string         `json:"dni,omitempty"`
	Specialty string         `json:"specialty,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the session subject described by the claims.
func (c Claims) Principal() model.Subject {
	return model.NewSubject(c.UserKind, c.UserID, c.Role)
}

// ClaimsFor builds the claims for a directory user.
func ClaimsFor(u model.User) Claims {
	return Claims{
		UserID:    u.ID,
		Role:      u.Role,
		UserKind:  u.Kind,
		Email:     u.Email,
		Name:      u.Name,
		Code:      u.Code,
		Semester:  u.Semester,
		DNI:       u.DNI,
		Specialty: u.Specialty,
	}
}

// Codec signs and verifies HS256 tokens with a server secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec signing with secret. A non-positive ttl falls
// back to DefaultTTL.
func NewCodec(secret string, ttl time.Duration, opts ...Option) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL reports the lifetime applied to tokens without an explicit exp.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode signs claims. iat defaults to now and exp to iat+TTL.
func (c *Codec) Encode(claims Claims) (string, error) {
	if claims.UserID <= 0 {
		return "", ErrMissingSubject
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(c.now().UTC())
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(claims.IssuedAt.Add(c.ttl))
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Decode verifies raw and returns its claims. The signature is checked
// before the header or payload are interpreted.
func (c *Codec) Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}

	// Strict rejects non-zero trailing bits, so each signature has exactly
	// one textual form.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	// hmac.Equal inside Verify keeps the comparison constant-time.
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return Claims{}, ErrInvalidSignature
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(parts[0], &header); err != nil || header.Alg != jwt.SigningMethodHS256.Alg() {
		return Claims{}, ErrMalformedToken
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return Claims{}, ErrInvalidPayload
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidPayload
	}
	if claims.ExpiresAt.Before(c.now()) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func decodeSegment(seg string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ExtractBearer returns the token from an Authorization header value. The
// "Bearer" keyword is matched case-sensitively.
func ExtractBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if raw == "" {
		return "", false
	}
	return raw, true
}
