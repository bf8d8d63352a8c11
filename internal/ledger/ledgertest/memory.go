// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tutorias-uni/tutorias-api/internal/model"
	"github.com/tutorias-uni/tutorias-api/internal/repository"
)

// ErrUnavailable is a canned storage failure.
var ErrUnavailable = errors.New("store unavailable")

// MemoryStore keeps rows in insertion order. Set Err to make every call
// fail.
type MemoryStore struct {
	mu   sync.Mutex
	rows []model.ActivityRecord
	Err  error
}

func (m *MemoryStore) Insert(ctx context.Context, rec model.ActivityRecord) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	rec.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, rec)
	return rec.ID, nil
}

func (m *MemoryStore) Latest(ctx context.Context, s model.Subject) (model.ActivityRecord, error) {
	return m.latest(func(r model.ActivityRecord) bool { return sameSubject(r.Subject, s) })
}

func (m *MemoryStore) LatestByName(ctx context.Context, name string, ak model.AccessKind) (model.ActivityRecord, error) {
	return m.latest(func(r model.ActivityRecord) bool {
		return r.Subject == nil && r.DisplayName == name && r.AccessKind == ak
	})
}

func (m *MemoryStore) List(ctx context.Context, f model.ActivityFilter, limit, offset int) ([]model.ActivityRecord, error) {
	out := m.sorted(func(r model.ActivityRecord) bool {
		switch {
		case f.Subject != nil && !sameSubject(r.Subject, f.Subject):
			return false
		case f.AccessKind != "" && r.AccessKind != f.AccessKind:
			return false
		case f.Action != "" && r.Action != f.Action:
			return false
		case f.State != "" && r.State != f.State:
			return false
		case !f.From.IsZero() && r.OccurredAt.Before(f.From):
			return false
		case !f.To.IsZero() && r.OccurredAt.After(f.To):
			return false
		}
		return true
	})
	if m.Err != nil {
		return nil, m.Err
	}
	if offset >= len(out) {
		return []model.ActivityRecord{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Rows returns a copy of every stored row in insertion order.
func (m *MemoryStore) Rows() []model.ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActivityRecord(nil), m.rows...)
}

// Count returns the number of rows in state.
func (m *MemoryStore) Count(state model.SessionState) int {
	n := 0
	for _, r := range m.Rows() {
		if r.State == state {
			n++
		}
	}
	return n
}

func (m *MemoryStore) latest(match func(model.ActivityRecord) bool) (model.ActivityRecord, error) {
	if m.Err != nil {
		return model.ActivityRecord{}, m.Err
	}
	rows := m.sorted(match)
	if len(rows) == 0 {
		return model.ActivityRecord{}, repository.ErrNotFound
	}
	return rows[0], nil
}

// sorted returns matching rows newest first, ties broken by id.
func (m *MemoryStore) sorted(match func(model.ActivityRecord) bool) []model.ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ActivityRecord{}
	for _, r := range m.rows {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func sameSubject(a, b model.Subject) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind() == b.Kind() && a.SubjectID() == b.SubjectID()
}
