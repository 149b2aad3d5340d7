package engine

import (
	"context"
	"errors"
	"time"

	"runstreak/core"
)

// ErrUserNotFound is returned by Storage when a user id is unknown.
var ErrUserNotFound = errors.New("user not found")

// Storage abstracts persistence for users and daily progress. Reads that
// return multiple progress records order them by date descending.
type Storage interface {
	// UpsertProgress inserts or overwrites the unique (user, date) record.
	UpsertProgress(ctx context.Context, rec core.DailyProgress) error
	// GetProgress fetches a single day's record; ok is false when none exists.
	GetProgress(ctx context.Context, user core.UserID, day time.Time) (rec core.DailyProgress, ok bool, err error)
	// ProgressRange returns records with start <= date <= end.
	ProgressRange(ctx context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error)
	// RecentProgress returns at most limit records with date <= asOf.
	RecentProgress(ctx context.Context, user core.UserID, asOf time.Time, limit int) ([]core.DailyProgress, error)
	// History returns a user's full progress history.
	History(ctx context.Context, user core.UserID) ([]core.DailyProgress, error)

	// GetUser returns ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, id core.UserID) (core.User, error)
	// PutUser inserts or overwrites a user record.
	PutUser(ctx context.Context, u core.User) error
	ListUsers(ctx context.Context) ([]core.User, error)
	// SpendBailoutPass decrements the user's balance only if it is above
	// zero. A zero balance is a no-op, not an error: spent is false and
	// remaining stays 0.
	SpendBailoutPass(ctx context.Context, id core.UserID) (remaining int, spent bool, err error)
	// MarkEliminated records the elimination date and reason, overwriting
	// any previous values.
	MarkEliminated(ctx context.Context, id core.UserID, at time.Time, reason string) error
}

// ActivityFeed supplies a user's activities for one calendar day from the
// external provider (or a cache in front of it).
type ActivityFeed interface {
	DayActivities(ctx context.Context, user core.UserID, day time.Time) ([]core.Activity, error)
}
