package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"runstreak/core"
	"runstreak/engine"
)

// Store persists the whole challenge state to a single JSON file.
// Suitable for a family-sized deployment on one machine.
type Store struct {
	path string
	mu   sync.Mutex
	data fileState
}

type fileState struct {
	Users    map[string]core.User                 `json:"users"`
	Progress map[string]map[string]core.DailyProgress `json:"progress"`
}

const dayKeyLayout = "2006-01-02"

func New(path string) (*Store, error) {
	s := &Store{path: path, data: fileState{
		Users:    map[string]core.User{},
		Progress: map[string]map[string]core.DailyProgress{},
	}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Users != nil {
		s.data.Users = raw.Users
	}
	if raw.Progress != nil {
		s.data.Progress = raw.Progress
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) UpsertProgress(_ context.Context, rec core.DailyProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Date = core.DayOf(rec.Date)
	days := s.data.Progress[string(rec.UserID)]
	if days == nil {
		days = map[string]core.DailyProgress{}
		s.data.Progress[string(rec.UserID)] = days
	}
	days[rec.Date.Format(dayKeyLayout)] = rec
	return s.persist()
}

func (s *Store) GetProgress(_ context.Context, user core.UserID, day time.Time) (core.DailyProgress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.Progress[string(user)][core.DayOf(day).Format(dayKeyLayout)]
	return rec, ok, nil
}

func (s *Store) descending(user core.UserID, keep func(core.DailyProgress) bool) []core.DailyProgress {
	var out []core.DailyProgress
	for _, rec := range s.data.Progress[string(user)] {
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (s *Store) ProgressRange(_ context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first, last := core.DayOf(start), core.DayOf(end)
	return s.descending(user, func(rec core.DailyProgress) bool {
		return !rec.Date.Before(first) && !rec.Date.After(last)
	}), nil
}

func (s *Store) RecentProgress(_ context.Context, user core.UserID, asOf time.Time, limit int) ([]core.DailyProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := core.DayOf(asOf)
	recs := s.descending(user, func(rec core.DailyProgress) bool { return !rec.Date.After(cutoff) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Store) History(_ context.Context, user core.UserID) ([]core.DailyProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descending(user, nil), nil
}

func (s *Store) GetUser(_ context.Context, id core.UserID) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[string(id)]
	if !ok {
		return core.User{}, engine.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) PutUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Users[string(u.ID)] = u
	return s.persist()
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SpendBailoutPass(_ context.Context, id core.UserID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[string(id)]
	if !ok {
		return 0, false, engine.ErrUserNotFound
	}
	if u.BailoutPasses <= 0 {
		return u.BailoutPasses, false, nil
	}
	u.BailoutPasses--
	s.data.Users[string(id)] = u
	if err := s.persist(); err != nil {
		return 0, false, err
	}
	return u.BailoutPasses, true, nil
}

func (s *Store) MarkEliminated(_ context.Context, id core.UserID, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.Users[string(id)]
	if !ok {
		return engine.ErrUserNotFound
	}
	day := core.DayOf(at)
	u.EliminatedAt = &day
	u.EliminationReason = reason
	s.data.Users[string(id)] = u
	return s.persist()
}

var _ engine.Storage = (*Store)(nil)
