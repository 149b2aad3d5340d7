package core

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// RequiredDistance returns the goal in miles for a calendar day: the
// 1-based month number, a decimal point, and the day zero-padded to two
// digits, read back as a decimal. March 7 is 3.07, December 31 is 12.31.
// Day 31 of one month can require more than day 1 of the next; the jump
// at month boundaries is part of the game, not a bug.
func RequiredDistance(day time.Time) float64 {
	day = day.UTC()
	v, _ := strconv.ParseFloat(fmt.Sprintf("%d.%02d", int(day.Month()), day.Day()), 64)
	return v
}

// GoalResult is the outcome of evaluating one day's activities against the
// day's required distance.
type GoalResult struct {
	Required  float64 `json:"required"`
	Total     float64 `json:"total"`
	Met       bool    `json:"met"`
	Shortfall float64 `json:"shortfall"`
}

// EvaluateGoal sums the distances of the given same-day activities and
// compares the total against required. Exact equality counts as met;
// shortfall is never negative. Pure, no side effects.
func EvaluateGoal(activities []Activity, required float64) GoalResult {
	var total float64
	for _, a := range activities {
		total += a.DistanceMiles
	}
	res := GoalResult{Required: required, Total: total, Met: total >= required}
	if !res.Met {
		res.Shortfall = required - total
	}
	return res
}

// MissLookback bounds how far back the consecutive-miss scan looks.
const MissLookback = 10

// ConsecutiveMisses counts leading missed days in a date-descending
// history. A completed or bailout entry ends the scan; any other status
// (pending) neither increments nor terminates, the scan continues past it.
func ConsecutiveMisses(desc []DailyProgress) int {
	misses := 0
	for _, rec := range desc {
		switch rec.Status {
		case StatusMissed:
			misses++
		case StatusCompleted, StatusBailout:
			return misses
		}
	}
	return misses
}

// CalculateStreaks derives the current and longest streaks from a user's
// progress history. Runs are positional in the date-sorted list, not
// calendar-adjacent: completed and bailout entries extend a run, missed
// resets it, and any other status is skipped without resetting.
func CalculateStreaks(records []DailyProgress) StreakSnapshot {
	sorted := make([]DailyProgress, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var snap StreakSnapshot
	run := 0
	for _, rec := range sorted {
		switch rec.Status {
		case StatusCompleted, StatusBailout:
			run++
			if run > snap.Longest {
				snap.Longest = run
			}
		case StatusMissed:
			run = 0
		}
	}

scan:
	for i := len(sorted) - 1; i >= 0; i-- {
		switch sorted[i].Status {
		case StatusCompleted, StatusBailout:
			snap.Current++
		case StatusMissed:
			break scan
		}
	}
	return snap
}

// StandingStatus is a user's position in the challenge as decided by the
// consecutive-miss count.
type StandingStatus string

const (
	StandingActive     StandingStatus = "active"
	StandingAtRisk     StandingStatus = "at_risk"
	StandingEliminated StandingStatus = "eliminated"
)

// EliminationReasonMisses is the recorded reason when three straight
// missed days knock a user out.
const EliminationReasonMisses = "Three consecutive missed days"

// AtRiskWarning is the message shown at exactly two consecutive misses.
const AtRiskWarning = "One more missed day and you're out"

// Standing is the elimination controller's decision for a user.
type Standing struct {
	Status            StandingStatus `json:"status"`
	Reason            string         `json:"reason,omitempty"`
	ConsecutiveMisses int            `json:"consecutive_misses"`
}

// DecideStanding maps a consecutive-miss count to a standing. Three or
// more misses eliminate, exactly two warn, anything less is active. The
// persistent elimination write is the caller's job and is deliberately
// not guarded against repeat invocation; it just overwrites the same
// date and reason.
func DecideStanding(consecutiveMisses int) Standing {
	switch {
	case consecutiveMisses >= 3:
		return Standing{Status: StandingEliminated, Reason: EliminationReasonMisses, ConsecutiveMisses: consecutiveMisses}
	case consecutiveMisses == 2:
		return Standing{Status: StandingAtRisk, Reason: AtRiskWarning, ConsecutiveMisses: consecutiveMisses}
	default:
		return Standing{Status: StandingActive, ConsecutiveMisses: consecutiveMisses}
	}
}

// CompletedDays counts the days a user actually ran the goal. Bailout days
// are excused, not completed, so they do not count here.
func CompletedDays(records []DailyProgress) int {
	n := 0
	for _, rec := range records {
		if rec.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// ResolveWinner picks a single champion. Users still standing always
// outrank eliminated ones; only when nobody is left does the most
// recently eliminated user win. Ties among the pool fall through total
// completed days, then longest streak. The longest-streak comparison is
// a simplification of a fuller pace-improvement tiebreak. All sorts are
// stable so deeper ties resolve deterministically to the earlier entry.
func ResolveWinner(users []User, histories map[UserID][]DailyProgress) (User, bool) {
	if len(users) == 0 {
		return User{}, false
	}

	var candidates []User
	for _, u := range users {
		if !u.Eliminated() {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		candidates = make([]User, len(users))
		copy(candidates, users)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].EliminatedAt.After(*candidates[j].EliminatedAt)
		})
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	completed := func(u User) int { return CompletedDays(histories[u.ID]) }
	longest := func(u User) int { return CalculateStreaks(histories[u.ID]).Longest }
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := completed(candidates[i]), completed(candidates[j])
		if ci != cj {
			return ci > cj
		}
		return longest(candidates[i]) > longest(candidates[j])
	})
	return candidates[0], true
}
