package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tutorias-uni/tutorias-api/internal/model"
)

// ActivityReader is implemented by *ledger.Ledger.
type ActivityReader interface {
	List(ctx context.Context, f model.ActivityFilter, limit, offset int) ([]model.ActivityRecord, error)
}

// ActivityHandler serves the audit view of the access log.
type ActivityHandler struct {
	Ledger ActivityReader
}

func NewActivityHandler(l ActivityReader) *ActivityHandler {
	return &ActivityHandler{Ledger: l}
}

type activityItem struct {
	ID          uint64    `json:"id"`
	UserID      *int64    `json:"user_id"`
	StudentID   *int64    `json:"student_id"`
	DisplayName string    `json:"name"`
	AccessKind  string    `json:"access_kind"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
	State       string    `json:"state"`
	OriginIP    string    `json:"origin_ip"`
}

func activityItemOf(r model.ActivityRecord) activityItem {
	it := activityItem{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		AccessKind:  string(r.AccessKind),
		Action:      r.Action,
		Description: r.Description,
		OccurredAt:  r.OccurredAt,
		State:       string(r.State),
		OriginIP:    r.OriginIP,
	}
	if r.Subject != nil {
		id := r.Subject.SubjectID()
		if r.Subject.Kind() == model.KindStudent {
			it.StudentID = &id
		} else {
			it.UserID = &id
		}
	}
	return it
}

// List returns access-log rows newest first.
// Query params: user_id | student_id, access_kind, action, state, from, to
// (RFC3339), limit, offset.
func (h *ActivityHandler) List(c echo.Context) error {
	var f model.ActivityFilter

	userID, err := optionalID(c.QueryParam("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
	}
	studentID, err := optionalID(c.QueryParam("student_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid student_id"})
	}
	switch {
	case userID > 0 && studentID > 0:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and student_id are exclusive"})
	case userID > 0:
		f.Subject = model.SystemUser{ID: userID}
	case studentID > 0:
		f.Subject = model.Student{ID: studentID}
	}

	f.AccessKind = model.AccessKind(c.QueryParam("access_kind"))
	f.Action = c.QueryParam("action")
	switch st := model.SessionState(c.QueryParam("state")); st {
	case "", model.SessionActive, model.SessionClosed:
		f.State = st
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "state must be activa or cerrada"})
	}
	if f.From, err = optionalTime(c.QueryParam("from")); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from"})
	}
	if f.To, err = optionalTime(c.QueryParam("to")); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	recs, err := h.Ledger.List(ctx, f, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	items := make([]activityItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, activityItemOf(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

func optionalID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

func optionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
