package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorias-uni/tutorias-api/internal/config"
	"github.com/tutorias-uni/tutorias-api/internal/ledger"
	"github.com/tutorias-uni/tutorias-api/internal/ledger/ledgertest"
	"github.com/tutorias-uni/tutorias-api/internal/middleware"
	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/repository"
	"github.com/tutorias-uni/tutorias-api/internal/session"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

type fakeUsers struct {
	byEmail map[string]model.User
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, kind model.UserKind, id int64) (model.User, error) {
	for _, u := range f.byEmail {
		if u.Kind == kind && u.ID == id {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

type fakeCodes struct {
	mu    sync.Mutex
	codes []model.LoginCode
	now   func() time.Time
}

func (f *fakeCodes) Store(_ context.Context, email, hash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, model.LoginCode{ID: uint64(len(f.codes) + 1), Email: email, CodeHash: hash, ExpiresAt: exp})
	return nil
}

func (f *fakeCodes) LatestValid(_ context.Context, email string) (model.LoginCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.codes) - 1; i >= 0; i-- {
		lc := f.codes[i]
		if lc.Email == email && lc.UsedAt == nil && lc.ExpiresAt.After(f.now()) {
			return lc, nil
		}
	}
	return model.LoginCode{}, repository.ErrNotFound
}

func (f *fakeCodes) MarkUsed(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[id-1].UsedAt != nil {
		return repository.ErrNotFound
	}
	now := f.now()
	f.codes[id-1].UsedAt = &now
	return nil
}

// racingCodes hands out the same unused code to every LatestValid call, as
// two requests reading before either one writes would see it.
type racingCodes struct {
	*fakeCodes
	snapshot model.LoginCode
}

func (r *racingCodes) LatestValid(context.Context, string) (model.LoginCode, error) {
	return r.snapshot, nil
}

func (f *fakeCodes) RevokeAllForEmail(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for i := range f.codes {
		if f.codes[i].Email == email && f.codes[i].UsedAt == nil {
			f.codes[i].UsedAt = &now
		}
	}
	return nil
}

type sentCode struct {
	email, code string
}

type fakeMailer struct {
	sent []sentCode
}

func (f *fakeMailer) SendLoginCode(_ context.Context, email, _ string, code string, _ time.Time) error {
	f.sent = append(f.sent, sentCode{email: email, code: code})
	return nil
}

type authFixture struct {
	h      *AuthHandler
	store  *ledgertest.MemoryStore
	codes  *fakeCodes
	mailer *fakeMailer
	codec  *token.Codec
	now    time.Time
}

var tutor = model.User{
	ID:       3,
	Kind:     model.KindSystem,
	Role:     model.RoleTutor,
	Email:    "tutor@uni.edu",
	Name:     "Rosa Tutor",
	IsActive: true,
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	clock := func() time.Time { return now }

	store := &ledgertest.MemoryStore{}
	l := ledger.New(store, nil, nil, zerolog.Nop(), ledger.WithClock(clock))
	guard := session.NewGuard(l, nil, zerolog.Nop(), session.WithClock(clock))
	codec := token.NewCodec("handler-secret", time.Hour)

	users := &fakeUsers{byEmail: map[string]model.User{
		tutor.Email:      tutor,
		"former@uni.edu": {ID: 9, Kind: model.KindStudent, Role: model.RoleStudent, Email: "former@uni.edu"},
	}}
	codes := &fakeCodes{now: clock}
	mailer := &fakeMailer{}

	cfg := config.Config{BcryptCost: bcrypt.MinCost, Session: config.SessionConfig{LoginCodeTTL: 10 * time.Minute}}
	h := NewAuthHandler(cfg, users, codes, codec, guard, l, mailer, nil, zerolog.Nop())
	h.now = clock
	return &authFixture{h: h, store: store, codes: codes, mailer: mailer, codec: codec, now: now}
}

func postJSON(handle echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "198.51.100.7:5000"
	rec := httptest.NewRecorder()
	_ = handle(e.NewContext(req, rec))
	return rec
}

func TestRequestCodeClosesOpenSessionAndMailsCode(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.store.Insert(context.Background(), model.ActivityRecord{
		Subject:    tutor.Subject(),
		AccessKind: model.AccessTutor,
		Action:     model.ActionActivity,
		State:      model.SessionActive,
		OccurredAt: f.now.Add(-time.Minute),
	})
	require.NoError(t, err)

	rec := postJSON(f.h.RequestCode, `{"email":" Tutor@Uni.edu "}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, tutor.Email, f.mailer.sent[0].email)
	require.Len(t, f.mailer.sent[0].code, 6)

	rows := f.store.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, model.SessionClosed, rows[1].State)
	require.Equal(t, reasonNewCode, rows[1].Description)
	require.Equal(t, "198.51.100.7", rows[1].OriginIP)
}

func TestRequestCodeDoesNotRevealUnknownEmails(t *testing.T) {
	f := newAuthFixture(t)

	for _, email := range []string{"nobody@uni.edu", "former@uni.edu"} {
		rec := postJSON(f.h.RequestCode, `{"email":"`+email+`"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	require.Empty(t, f.mailer.sent)
	require.Empty(t, f.store.Rows())

	rec := postJSON(f.h.RequestCode, `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyIssuesTokenAndOpensSession(t *testing.T) {
	f := newAuthFixture(t)
	require.Equal(t, http.StatusAccepted, postJSON(f.h.RequestCode, `{"email":"tutor@uni.edu"}`).Code)
	code := f.mailer.sent[0].code

	rec := postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, tutor.ID, resp.User.ID)
	require.True(t, resp.Expires.Equal(f.now.Add(time.Hour)))

	claims, err := f.codec.Decode(resp.Token)
	require.NoError(t, err)
	require.Equal(t, model.RoleTutor, claims.Role)
	require.Equal(t, f.now.Unix(), claims.IssuedAt.Unix())

	rows := f.store.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, model.ActionLogin, rows[0].Action)
	require.Equal(t, model.SessionActive, rows[0].State)

	again := postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"`+code+`"}`)
	require.Equal(t, http.StatusUnauthorized, again.Code)
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	require.Equal(t, http.StatusAccepted, postJSON(f.h.RequestCode, `{"email":"tutor@uni.edu"}`).Code)

	wrong := "000000"
	if f.mailer.sent[0].code == wrong {
		wrong = "111111"
	}
	rec := postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"`+wrong+`"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, f.store.Rows())

	rec = postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"12ab"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewCodeRevokesEarlierCode(t *testing.T) {
	f := newAuthFixture(t)
	require.Equal(t, http.StatusAccepted, postJSON(f.h.RequestCode, `{"email":"tutor@uni.edu"}`).Code)
	require.Equal(t, http.StatusAccepted, postJSON(f.h.RequestCode, `{"email":"tutor@uni.edu"}`).Code)
	first, second := f.mailer.sent[0].code, f.mailer.sent[1].code

	if first != second {
		rec := postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"`+first+`"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := postJSON(f.h.Verify, `{"email":"tutor@uni.edu","code":"`+second+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func withClaims(handle echo.HandlerFunc, claims token.Claims) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.ClaimsKey, claims)
	_ = handle(c)
	return rec
}

func TestLogoutClosesOnce(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.store.Insert(context.Background(), model.ActivityRecord{
		Subject:    tutor.Subject(),
		AccessKind: model.AccessTutor,
		Action:     model.ActionLogin,
		State:      model.SessionActive,
		OccurredAt: f.now.Add(-time.Minute),
	})
	require.NoError(t, err)
	claims := token.ClaimsFor(tutor)

	require.Equal(t, http.StatusNoContent, withClaims(f.h.Logout, claims).Code)
	require.Equal(t, http.StatusNoContent, withClaims(f.h.Logout, claims).Code)

	require.Equal(t, 1, f.store.Count(model.SessionClosed))
	rows := f.store.Rows()
	require.Equal(t, reasonLogout, rows[len(rows)-1].Description)
}

func TestMeReturnsProfile(t *testing.T) {
	f := newAuthFixture(t)

	rec := withClaims(f.h.Me, token.ClaimsFor(tutor))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Rosa Tutor"`)

	ghost := token.ClaimsFor(tutor)
	ghost.UserID = 404
	require.Equal(t, http.StatusNotFound, withClaims(f.h.Me, ghost).Code)
}

func TestVerifyConcurrentReuseIssuesOneToken(t *testing.T) {
	f := newAuthFixture(t)
	require.Equal(t, http.StatusAccepted, postJSON(f.h.RequestCode, `{"email":"tutor@uni.edu"}`).Code)
	code := f.mailer.sent[0].code

	snapshot, err := f.codes.LatestValid(context.Background(), tutor.Email)
	require.NoError(t, err)
	f.h.Codes = &racingCodes{fakeCodes: f.codes, snapshot: snapshot}

	body := `{"email":"tutor@uni.edu","code":"` + code + `"}`
	require.Equal(t, http.StatusOK, postJSON(f.h.Verify, body).Code)

	rec := postJSON(f.h.Verify, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid code")
	require.Equal(t, 1, f.store.Count(model.SessionActive))
}
