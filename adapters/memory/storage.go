package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"runstreak/core"
	"runstreak/engine"
)

// Store is a concurrent in-memory Storage implementation. Progress is
// keyed by (user, day); users by id.
type Store struct {
	mu       sync.RWMutex
	users    map[core.UserID]core.User
	progress map[core.UserID]map[string]core.DailyProgress
}

func New() *Store {
	return &Store{
		users:    map[core.UserID]core.User{},
		progress: map[core.UserID]map[string]core.DailyProgress{},
	}
}

const dayKeyLayout = "2006-01-02"

func dayKey(t time.Time) string { return core.DayOf(t).Format(dayKeyLayout) }

func (s *Store) UpsertProgress(_ context.Context, rec core.DailyProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Date = core.DayOf(rec.Date)
	days := s.progress[rec.UserID]
	if days == nil {
		days = map[string]core.DailyProgress{}
		s.progress[rec.UserID] = days
	}
	days[dayKey(rec.Date)] = rec
	return nil
}

func (s *Store) GetProgress(_ context.Context, user core.UserID, day time.Time) (core.DailyProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.progress[user][dayKey(day)]
	return rec, ok, nil
}

// descending collects a user's records sorted newest first, filtered by
// keep.
func (s *Store) descending(user core.UserID, keep func(core.DailyProgress) bool) []core.DailyProgress {
	var out []core.DailyProgress
	for _, rec := range s.progress[user] {
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (s *Store) ProgressRange(_ context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	first, last := core.DayOf(start), core.DayOf(end)
	return s.descending(user, func(rec core.DailyProgress) bool {
		return !rec.Date.Before(first) && !rec.Date.After(last)
	}), nil
}

func (s *Store) RecentProgress(_ context.Context, user core.UserID, asOf time.Time, limit int) ([]core.DailyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := core.DayOf(asOf)
	recs := s.descending(user, func(rec core.DailyProgress) bool {
		return !rec.Date.After(cutoff)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Store) History(_ context.Context, user core.UserID) ([]core.DailyProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descending(user, nil), nil
}

func (s *Store) GetUser(_ context.Context, id core.UserID) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, engine.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) PutUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SpendBailoutPass(_ context.Context, id core.UserID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, false, engine.ErrUserNotFound
	}
	if u.BailoutPasses <= 0 {
		return u.BailoutPasses, false, nil
	}
	u.BailoutPasses--
	s.users[id] = u
	return u.BailoutPasses, true, nil
}

func (s *Store) MarkEliminated(_ context.Context, id core.UserID, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return engine.ErrUserNotFound
	}
	at = core.DayOf(at)
	u.EliminatedAt = &at
	u.EliminationReason = reason
	s.users[id] = u
	return nil
}

var _ engine.Storage = (*Store)(nil)
