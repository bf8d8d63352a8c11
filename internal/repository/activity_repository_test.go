package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var activityCols = []string{"id", "user_id", "student_id", "display_name", "access_kind", "action", "description", "occurred_at", "session_state", "origin_ip"}

func TestActivityRepoInsertStudent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepo(db)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_log")).
		WithArgs(nil, int64(9), "Luis", "Estudiante", model.ActionActivity, "GET /v1/me", at, "activa", "203.0.113.5").
		WillReturnResult(sqlmock.NewResult(31, 1))

	id, err := repo.Insert(context.Background(), model.ActivityRecord{
		Subject:     model.Student{ID: 9},
		DisplayName: "Luis",
		AccessKind:  model.AccessStudent,
		Action:      model.ActionActivity,
		Description: "GET /v1/me",
		OccurredAt:  at,
		State:       model.SessionActive,
		OriginIP:    "203.0.113.5",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(31), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepoLatestSystemUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepo(db)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM access_log WHERE user_id=? ORDER BY occurred_at DESC, id DESC LIMIT 1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(activityCols).
			AddRow(uint64(12), int64(3), nil, "Ana", "Verificador", "actividad", "GET /x", at, "activa", "10.0.0.1"))

	rec, err := repo.Latest(context.Background(), model.SystemUser{ID: 3, Role: model.RoleVerifier})
	require.NoError(t, err)
	require.Equal(t, uint64(12), rec.ID)
	require.Equal(t, model.SystemUser{ID: 3, Role: model.RoleVerifier}, rec.Subject)
	require.True(t, rec.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepoLatestNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id=?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(activityCols))

	_, err := repo.Latest(context.Background(), model.Student{ID: 5})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActivityRepoListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepo(db)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	at := from.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = ? AND session_state = ? AND occurred_at >= ? ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(int64(9), "cerrada", from, 20, 40).
		WillReturnRows(sqlmock.NewRows(activityCols).
			AddRow(uint64(2), nil, int64(9), "Luis", "Estudiante", "cierre de sesión", "inactividad", at, "cerrada", ""))

	recs, err := repo.List(context.Background(), model.ActivityFilter{
		Subject: model.Student{ID: 9},
		State:   model.SessionClosed,
		From:    from,
	}, 20, 40)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.Student{ID: 9}, recs[0].Subject)
	require.Equal(t, model.SessionClosed, recs[0].State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoFindByEmailFallsBackToStudents(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=?")).
		WithArgs("luis@uni.edu").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "specialty", "is_active", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE email=?")).
		WithArgs("luis@uni.edu").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "code", "semester", "dni", "is_active", "created_at"}).
			AddRow(int64(9), "luis@uni.edu", "Luis", "A123", "5", nil, true, created))

	u, err := repo.FindByEmail(context.Background(), "  Luis@Uni.edu ")
	require.NoError(t, err)
	require.Equal(t, model.KindStudent, u.Kind)
	require.Equal(t, model.Student{ID: 9}, u.Subject())
	require.Equal(t, "5", u.Semester)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepoLatestByNameOnlyUnlinked(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepo(db)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE display_name=? AND access_kind=? AND user_id IS NULL AND student_id IS NULL ORDER BY occurred_at DESC, id DESC LIMIT 1")).
		WithArgs("Ana Tutor", "Tutor").
		WillReturnRows(sqlmock.NewRows(activityCols).
			AddRow(uint64(4), nil, nil, "Ana Tutor", "Tutor", "actividad", "GET /x", at, "activa", ""))

	rec, err := repo.LatestByName(context.Background(), "Ana Tutor", model.AccessTutor)
	require.NoError(t, err)
	require.Nil(t, rec.Subject)
	require.True(t, rec.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}
