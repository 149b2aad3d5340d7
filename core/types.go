package core

import (
	"errors"
	"strings"
	"time"
)

// UserID is the opaque identifier assigned by the external activity provider.
type UserID string

// DayStatus is the closed set of states a challenge day can be in.
type DayStatus string

const (
	StatusCompleted DayStatus = "completed"
	StatusMissed    DayStatus = "missed"
	StatusBailout   DayStatus = "bailout"
	StatusPending   DayStatus = "pending"
)

// Valid reports whether s is one of the known day statuses.
func (s DayStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusBailout, StatusPending:
		return true
	}
	return false
}

// CountsTowardStreak reports whether the status keeps a streak alive.
// Bailout days are excused, not skipped.
func (s DayStatus) CountsTowardStreak() bool {
	return s == StatusCompleted || s == StatusBailout
}

// DefaultBailoutPasses is the rescue-token balance every user starts with.
const DefaultBailoutPasses = 4

// MilesPerMeter converts provider distances to miles. Applied exactly once,
// at feed ingestion.
const MilesPerMeter = 0.000621371

// User is one family member in the challenge.
type User struct {
	ID                UserID      `json:"id"`
	DisplayName       string      `json:"display_name"`
	BailoutPasses     int         `json:"bailout_passes"`
	EliminatedAt      *time.Time  `json:"eliminated_at,omitempty"`
	EliminationReason string      `json:"elimination_reason,omitempty"`
	Profile           *AgeProfile `json:"profile,omitempty"`
}

// Eliminated reports whether the user has been knocked out of the challenge.
func (u User) Eliminated() bool { return u.EliminatedAt != nil }

// AgeProfile carries the optional age-grading inputs used by dashboards.
// The core rules never read it.
type AgeProfile struct {
	Age          int           `json:"age"`
	Sex          string        `json:"sex"`
	BaselinePace time.Duration `json:"baseline_pace"`
}

// Activity is a single entry from the external feed, distance already
// converted to miles. Read-only from the rules' perspective.
type Activity struct {
	ExternalID    string        `json:"external_id"`
	Type          string        `json:"type"`
	DistanceMiles float64       `json:"distance_miles"`
	MovingTime    time.Duration `json:"moving_time"`
	ElapsedTime   time.Duration `json:"elapsed_time"`
	StartTime     time.Time     `json:"start_time"`
}

// QualifyingRun reports whether the activity counts toward the daily goal:
// outdoor, trail, and virtual runs do; everything else does not.
func (a Activity) QualifyingRun() bool {
	switch a.Type {
	case "Run", "TrailRun", "VirtualRun":
		return true
	}
	return false
}

// QualifyingRuns filters a day's activities down to the ones that count.
func QualifyingRuns(activities []Activity) []Activity {
	var runs []Activity
	for _, a := range activities {
		if a.QualifyingRun() {
			runs = append(runs, a)
		}
	}
	return runs
}

// DailyProgress is the persisted outcome of one (user, day) evaluation.
// At most one record exists per key; re-evaluation overwrites it.
type DailyProgress struct {
	UserID    UserID    `json:"user_id"`
	Date      time.Time `json:"date"`
	Required  float64   `json:"required"`
	Completed float64   `json:"completed"`
	Status    DayStatus `json:"status"`
}

// StreakSnapshot is derived from history on demand and never persisted.
type StreakSnapshot struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// DayOf normalizes a timestamp to its calendar day (midnight UTC). All
// progress records are keyed this way.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool { return DayOf(a).Equal(DayOf(b)) }

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// NewUser creates a user with the starting bailout balance.
func NewUser(id UserID, displayName string) User {
	return User{ID: id, DisplayName: displayName, BailoutPasses: DefaultBailoutPasses}
}
