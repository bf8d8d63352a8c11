package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

const activityColumns = "id,user_id,student_id,display_name,access_kind,action,description,occurred_at,session_state,origin_ip"

// ActivityRepo appends to and reads from the `access_log` table.
type ActivityRepo struct{ DB *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{DB: db} }

// Insert appends a row and returns its id.
func (r *ActivityRepo) Insert(ctx context.Context, rec model.ActivityRecord) (uint64, error) {
	userID, studentID := subjectColumns(rec.Subject)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO access_log (user_id,student_id,display_name,access_kind,action,description,occurred_at,session_state,origin_ip) VALUES (?,?,?,?,?,?,?,?,?)",
		userID, studentID, rec.DisplayName, string(rec.AccessKind), rec.Action, rec.Description,
		rec.OccurredAt.UTC(), string(rec.State), rec.OriginIP)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Latest returns the subject's most recent row of any state, or ErrNotFound.
func (r *ActivityRepo) Latest(ctx context.Context, s model.Subject) (model.ActivityRecord, error) {
	col := "user_id"
	if s.Kind() == model.KindStudent {
		col = "student_id"
	}
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+activityColumns+" FROM access_log WHERE "+col+"=? ORDER BY occurred_at DESC, id DESC LIMIT 1",
		s.SubjectID())
	return scanActivity(row)
}

// LatestByName returns the most recent unlinked row written under a display
// name and access kind, or ErrNotFound. Rows tied to a user or student are
// never matched by name.
func (r *ActivityRepo) LatestByName(ctx context.Context, name string, ak model.AccessKind) (model.ActivityRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+activityColumns+" FROM access_log WHERE display_name=? AND access_kind=? AND user_id IS NULL AND student_id IS NULL ORDER BY occurred_at DESC, id DESC LIMIT 1",
		name, string(ak))
	return scanActivity(row)
}

// List returns rows matching f, newest first.
func (r *ActivityRepo) List(ctx context.Context, f model.ActivityFilter, limit, offset int) ([]model.ActivityRecord, error) {
	where := []string{}
	args := []any{}

	if f.Subject != nil {
		if f.Subject.Kind() == model.KindStudent {
			where = append(where, "student_id = ?")
		} else {
			where = append(where, "user_id = ?")
		}
		args = append(args, f.Subject.SubjectID())
	}
	if f.AccessKind != "" {
		where = append(where, "access_kind = ?")
		args = append(args, string(f.AccessKind))
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.State != "" {
		where = append(where, "session_state = ?")
		args = append(args, string(f.State))
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.To.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+activityColumns+" FROM access_log WHERE "+cond+" ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ActivityRecord{}
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (model.ActivityRecord, error) {
	var (
		rec       model.ActivityRecord
		userID    sql.NullInt64
		studentID sql.NullInt64
		kind      string
		state     string
	)
	err := s.Scan(&rec.ID, &userID, &studentID, &rec.DisplayName, &kind, &rec.Action,
		&rec.Description, &rec.OccurredAt, &state, &rec.OriginIP)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActivityRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ActivityRecord{}, err
	}
	rec.AccessKind = model.AccessKind(kind)
	rec.State = model.SessionState(state)
	switch {
	case studentID.Valid:
		rec.Subject = model.Student{ID: studentID.Int64}
	case userID.Valid:
		rec.Subject = model.SystemUser{ID: userID.Int64, Role: model.RoleFor(rec.AccessKind)}
	}
	return rec, nil
}

// subjectColumns returns the (user_id, student_id) pair; at most one is set.
func subjectColumns(s model.Subject) (any, any) {
	switch v := s.(type) {
	case model.SystemUser:
		return v.ID, nil
	case model.Student:
		return nil, v.ID
	}
	return nil, nil
}
