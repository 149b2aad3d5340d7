package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"runstreak/core"
)

// ErrNoFeed is returned when an evaluation is requested but no activity
// feed was configured.
var ErrNoFeed = errors.New("no activity feed configured")

// ErrInvalidInput marks requests rejected before any state change.
var ErrInvalidInput = errors.New("invalid input")

// ErrBailoutPartial marks the known consistency gap in the two-step
// bailout: the pass decrement succeeded but the day record write failed,
// so a pass has been spent with no bailout day recorded.
var ErrBailoutPartial = errors.New("bailout pass spent but day not recorded")

// ChallengeService wires storage, the activity feed, and the event bus
// into the challenge rules. One logical writer per user; no internal
// locking beyond what the adapters provide.
type ChallengeService struct {
	storage Storage
	feed    ActivityFeed
	bus     *EventBus
	now     func() time.Time
}

// ServiceOption configures a ChallengeService.
type ServiceOption func(*ChallengeService)

// WithNow overrides the clock, used by tests and backfills.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *ChallengeService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewChallengeService(storage Storage, feed ActivityFeed, bus *EventBus, opts ...ServiceOption) *ChallengeService {
	if storage == nil || bus == nil {
		panic("NewChallengeService requires non-nil storage and bus")
	}
	s := &ChallengeService{storage: storage, feed: feed, bus: bus, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *ChallengeService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubscribeAll registers a handler for the whole event stream.
func (s *ChallengeService) SubscribeAll(handler func(context.Context, core.Event)) func() {
	return s.bus.SubscribeAll(handler)
}

func (s *ChallengeService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *ChallengeService) Close() { s.bus.Close() }

// EnsureUser returns the stored user, creating one with the starting
// bailout balance on first sight. Called on first successful
// authentication.
func (s *ChallengeService) EnsureUser(ctx context.Context, id core.UserID, displayName string) (core.User, error) {
	normalized, err := core.NormalizeUserID(id)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u, err := s.storage.GetUser(ctx, normalized)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return core.User{}, err
	}
	u = core.NewUser(normalized, displayName)
	if err := s.storage.PutUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// User fetches a single user record.
func (s *ChallengeService) User(ctx context.Context, id core.UserID) (core.User, error) {
	return s.storage.GetUser(ctx, id)
}

// Users lists everyone in the challenge.
func (s *ChallengeService) Users(ctx context.Context) ([]core.User, error) {
	return s.storage.ListUsers(ctx)
}

// EvaluateDay pulls the day's activities from the feed, evaluates the
// distance goal, and upserts the day's record. The required distance is
// always re-derived from the date; completed distance and status are
// overwritten on re-evaluation, except that an existing bailout is kept
// unless the goal has since been met.
func (s *ChallengeService) EvaluateDay(ctx context.Context, user core.UserID, date time.Time) (core.DailyProgress, error) {
	if s.feed == nil {
		return core.DailyProgress{}, ErrNoFeed
	}
	day := core.DayOf(date)

	activities, err := s.feed.DayActivities(ctx, user, day)
	if err != nil {
		return core.DailyProgress{}, fmt.Errorf("activity feed: %w", err)
	}
	return s.evaluate(ctx, user, day, activities)
}

// evaluate applies the goal rules to already-fetched activities and
// persists the outcome.
func (s *ChallengeService) evaluate(ctx context.Context, user core.UserID, day time.Time, activities []core.Activity) (core.DailyProgress, error) {
	runs := core.QualifyingRuns(activities)
	required := core.RequiredDistance(day)
	result := core.EvaluateGoal(runs, required)

	existing, hadExisting, err := s.storage.GetProgress(ctx, user, day)
	if err != nil {
		return core.DailyProgress{}, err
	}

	rec := core.DailyProgress{
		UserID:    user,
		Date:      day,
		Required:  required,
		Completed: result.Total,
		Status:    s.resolveStatus(result, day, hadExisting, existing),
	}
	if err := s.storage.UpsertProgress(ctx, rec); err != nil {
		return core.DailyProgress{}, err
	}

	s.bus.Publish(ctx, core.NewDayEvaluated(user, rec, result))
	switch rec.Status {
	case core.StatusCompleted:
		s.bus.Publish(ctx, core.NewGoalCompleted(user, rec))
	case core.StatusMissed:
		s.bus.Publish(ctx, core.NewGoalMissed(user, rec, result.Shortfall))
	}
	return rec, nil
}

// resolveStatus decides the day's status from the goal result. Pending is
// never a terminal value for past days: an unmet past day is missed, an
// unmet current day is still pending. A previously spent bailout survives
// re-evaluation until the goal is actually met.
func (s *ChallengeService) resolveStatus(result core.GoalResult, day time.Time, hadExisting bool, existing core.DailyProgress) core.DayStatus {
	if result.Met {
		return core.StatusCompleted
	}
	if hadExisting && existing.Status == core.StatusBailout {
		return core.StatusBailout
	}
	if day.Before(core.DayOf(s.now())) {
		return core.StatusMissed
	}
	return core.StatusPending
}

// EvaluateWindow re-derives every day from start through end inclusive.
// A feed failure degrades that single day to an unpersisted pending
// placeholder rather than aborting the window; storage failures abort.
func (s *ChallengeService) EvaluateWindow(ctx context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error) {
	if s.feed == nil {
		return nil, ErrNoFeed
	}
	first := core.DayOf(start)
	last := core.DayOf(end)
	if last.Before(first) {
		return nil, fmt.Errorf("%w: window end before start", ErrInvalidInput)
	}

	var records []core.DailyProgress
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		activities, err := s.feed.DayActivities(ctx, user, day)
		if err != nil {
			slog.Warn("day evaluation degraded", "user", user, "day", day.Format("2006-01-02"), "error", err)
			records = append(records, core.DailyProgress{
				UserID:   user,
				Date:     day,
				Required: core.RequiredDistance(day),
				Status:   core.StatusPending,
			})
			continue
		}
		rec, err := s.evaluate(ctx, user, day, activities)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Progress returns the records between start and end, newest first.
func (s *ChallengeService) Progress(ctx context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error) {
	return s.storage.ProgressRange(ctx, user, core.DayOf(start), core.DayOf(end))
}

// UseBailout spends one rescue token to excuse the given day. The ledger
// decrement and the day's status write are two sequential, non-atomic
// steps: if the second fails the pass stays spent and the error wraps
// ErrBailoutPartial. A zero balance is a silent no-op (used=false).
func (s *ChallengeService) UseBailout(ctx context.Context, user core.UserID, date time.Time) (remaining int, used bool, err error) {
	if date.IsZero() {
		return 0, false, fmt.Errorf("%w: bailout requires a date", ErrInvalidInput)
	}
	day := core.DayOf(date)

	remaining, spent, err := s.storage.SpendBailoutPass(ctx, user)
	if err != nil {
		return 0, false, err
	}
	if !spent {
		return remaining, false, nil
	}

	rec := core.DailyProgress{
		UserID:   user,
		Date:     day,
		Required: core.RequiredDistance(day),
		Status:   core.StatusBailout,
	}
	if existing, ok, gerr := s.storage.GetProgress(ctx, user, day); gerr == nil && ok {
		rec.Completed = existing.Completed
	}
	if err := s.storage.UpsertProgress(ctx, rec); err != nil {
		return remaining, true, fmt.Errorf("%w: %v", ErrBailoutPartial, err)
	}

	s.bus.Publish(ctx, core.NewBailoutUsed(user, day, remaining))
	return remaining, true, nil
}

// Standing evaluates the consecutive-miss rule as of the given date. An
// eliminated decision writes the elimination date and reason to the user
// record; repeat invocations simply overwrite the same values.
func (s *ChallengeService) Standing(ctx context.Context, user core.UserID, asOf time.Time) (core.Standing, error) {
	recent, err := s.storage.RecentProgress(ctx, user, core.DayOf(asOf), core.MissLookback)
	if err != nil {
		return core.Standing{}, err
	}
	standing := core.DecideStanding(core.ConsecutiveMisses(recent))

	switch standing.Status {
	case core.StandingEliminated:
		at := core.DayOf(s.now())
		if err := s.storage.MarkEliminated(ctx, user, at, standing.Reason); err != nil {
			return core.Standing{}, err
		}
		s.bus.Publish(ctx, core.NewUserEliminated(user, at, standing.Reason))
	case core.StandingAtRisk:
		s.bus.Publish(ctx, core.NewUserAtRisk(user, standing))
	}
	return standing, nil
}

// Streaks recomputes the streak snapshot from the full history.
func (s *ChallengeService) Streaks(ctx context.Context, user core.UserID) (core.StreakSnapshot, error) {
	history, err := s.storage.History(ctx, user)
	if err != nil {
		return core.StreakSnapshot{}, err
	}
	return core.CalculateStreaks(history), nil
}

// Snapshot returns every user with their full histories, the input the
// winner resolver and the standings board both consume.
func (s *ChallengeService) Snapshot(ctx context.Context) ([]core.User, map[core.UserID][]core.DailyProgress, error) {
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	histories := make(map[core.UserID][]core.DailyProgress, len(users))
	for _, u := range users {
		h, err := s.storage.History(ctx, u.ID)
		if err != nil {
			return nil, nil, err
		}
		histories[u.ID] = h
	}
	return users, histories, nil
}

// Winner applies the tie-break policy across all users.
func (s *ChallengeService) Winner(ctx context.Context) (core.User, bool, error) {
	users, histories, err := s.Snapshot(ctx)
	if err != nil {
		return core.User{}, false, err
	}
	winner, ok := core.ResolveWinner(users, histories)
	return winner, ok, nil
}
