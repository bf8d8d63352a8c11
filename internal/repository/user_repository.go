package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

const (
	userColumns    = "id,email,name,role,specialty,is_active,created_at"
	studentColumns = "id,email,name,code,semester,dni,is_active,created_at"
)

// UserRepo is the user directory over the `users` (staff) and `students`
// tables.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// FindByEmail looks the email up among staff first, then students.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
	if !errors.Is(err, ErrNotFound) {
		return u, err
	}
	return scanStudent(r.DB.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE email=? LIMIT 1", email))
}

// FindByNameAndRole looks a display name up within one role.
func (r *UserRepo) FindByNameAndRole(ctx context.Context, name string, role model.Role) (model.User, error) {
	name = strings.TrimSpace(name)
	if role == model.RoleStudent {
		return scanStudent(r.DB.QueryRowContext(ctx,
			"SELECT "+studentColumns+" FROM students WHERE name=? LIMIT 1", name))
	}
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE name=? AND role=? LIMIT 1", name, string(role)))
}

// GetByID fetches a user of the given kind by id.
func (r *UserRepo) GetByID(ctx context.Context, kind model.UserKind, id int64) (model.User, error) {
	if kind == model.KindStudent {
		return scanStudent(r.DB.QueryRowContext(ctx,
			"SELECT "+studentColumns+" FROM students WHERE id=? LIMIT 1", id))
	}
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		role      string
		specialty sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &specialty, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Kind = model.KindSystem
	u.Role = model.Role(role)
	u.Specialty = specialty.String
	return u, nil
}

func scanStudent(row *sql.Row) (model.User, error) {
	var (
		u        model.User
		semester sql.NullString
		dni      sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Code, &semester, &dni, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Kind = model.KindStudent
	u.Role = model.RoleStudent
	u.Semester = semester.String
	u.DNI = dni.String
	return u, nil
}
