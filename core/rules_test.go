package core

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRequiredDistance(t *testing.T) {
	cases := []struct {
		day  time.Time
		want float64
	}{
		{day(2024, time.March, 7), 3.07},
		{day(2024, time.December, 31), 12.31},
		{day(2024, time.January, 5), 1.05},
		{day(2024, time.April, 3), 4.03},
		{day(2024, time.October, 10), 10.10},
	}
	for _, tc := range cases {
		if got := RequiredDistance(tc.day); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%v: got %v want %v", tc.day, got, tc.want)
		}
	}
}

func TestRequiredDistanceMonthBoundary(t *testing.T) {
	// Day 31 of a month can require more than day 1 of the next month.
	jan31 := RequiredDistance(day(2024, time.January, 31))
	feb1 := RequiredDistance(day(2024, time.February, 1))
	if jan31 <= feb1 {
		t.Fatalf("expected discontinuity: jan31=%v feb1=%v", jan31, feb1)
	}
}

func TestEvaluateGoal(t *testing.T) {
	acts := []Activity{{DistanceMiles: 1.5}, {DistanceMiles: 1.5}}

	res := EvaluateGoal(acts, 3.0)
	if !res.Met {
		t.Fatal("exact equality should count as met")
	}
	if res.Total != 3.0 || res.Shortfall != 0 {
		t.Fatalf("got %+v", res)
	}

	res = EvaluateGoal(acts, 3.07)
	if res.Met {
		t.Fatal("should not be met")
	}
	if res.Shortfall < 0 {
		t.Fatal("shortfall must never be negative")
	}
	if math.Abs(res.Shortfall-0.07) > 1e-9 {
		t.Fatalf("got shortfall %v", res.Shortfall)
	}

	res = EvaluateGoal(nil, 2.01)
	if res.Met || res.Total != 0 || math.Abs(res.Shortfall-2.01) > 1e-9 {
		t.Fatalf("got %+v", res)
	}
}

func descHistory(user UserID, start time.Time, statuses ...DayStatus) []DailyProgress {
	recs := make([]DailyProgress, len(statuses))
	for i, s := range statuses {
		recs[i] = DailyProgress{UserID: user, Date: start.AddDate(0, 0, -i), Status: s}
	}
	return recs
}

func TestConsecutiveMisses(t *testing.T) {
	asOf := day(2024, time.June, 10)

	cases := []struct {
		name     string
		statuses []DayStatus
		want     int
	}{
		{"stops at completed", []DayStatus{StatusMissed, StatusMissed, StatusCompleted, StatusMissed}, 2},
		{"stops at bailout", []DayStatus{StatusMissed, StatusBailout, StatusMissed, StatusMissed}, 1},
		{"pending skipped, not counted", []DayStatus{StatusMissed, StatusPending, StatusMissed, StatusCompleted}, 2},
		{"pending does not terminate", []DayStatus{StatusPending, StatusMissed, StatusMissed, StatusMissed}, 3},
		{"all missed", []DayStatus{StatusMissed, StatusMissed, StatusMissed}, 3},
		{"empty", nil, 0},
		{"leading completed", []DayStatus{StatusCompleted, StatusMissed}, 0},
	}
	for _, tc := range cases {
		got := ConsecutiveMisses(descHistory("u", asOf, tc.statuses...))
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestCalculateStreaks(t *testing.T) {
	asOf := day(2024, time.June, 10)

	// Desc: completed, bailout, missed, completed, completed.
	// Asc:  completed, completed, missed, bailout, completed.
	recs := descHistory("u", asOf, StatusCompleted, StatusBailout, StatusMissed, StatusCompleted, StatusCompleted)
	snap := CalculateStreaks(recs)
	if snap.Current != 2 {
		t.Fatalf("current: got %d want 2", snap.Current)
	}
	if snap.Longest != 2 {
		t.Fatalf("longest: got %d want 2", snap.Longest)
	}
}

func TestCalculateStreaksPendingNeitherExtendsNorResets(t *testing.T) {
	asOf := day(2024, time.June, 10)

	// Asc order: completed, pending, completed. The pending day is skipped
	// positionally, so the run spans it.
	recs := descHistory("u", asOf, StatusCompleted, StatusPending, StatusCompleted)
	snap := CalculateStreaks(recs)
	if snap.Longest != 2 {
		t.Fatalf("longest: got %d want 2", snap.Longest)
	}
	if snap.Current != 2 {
		t.Fatalf("current: got %d want 2", snap.Current)
	}
}

func TestCalculateStreaksIdempotent(t *testing.T) {
	asOf := day(2024, time.June, 10)
	recs := descHistory("u", asOf, StatusMissed, StatusCompleted, StatusBailout, StatusMissed, StatusCompleted)
	first := CalculateStreaks(recs)
	second := CalculateStreaks(recs)
	if first != second {
		t.Fatalf("recomputation differed: %+v vs %+v", first, second)
	}
}

func TestDecideStanding(t *testing.T) {
	cases := []struct {
		misses int
		want   StandingStatus
		reason string
	}{
		{0, StandingActive, ""},
		{1, StandingActive, ""},
		{2, StandingAtRisk, AtRiskWarning},
		{3, StandingEliminated, EliminationReasonMisses},
		{5, StandingEliminated, EliminationReasonMisses},
	}
	for _, tc := range cases {
		st := DecideStanding(tc.misses)
		if st.Status != tc.want || st.Reason != tc.reason {
			t.Fatalf("misses=%d: got %+v", tc.misses, st)
		}
		if st.ConsecutiveMisses != tc.misses {
			t.Fatalf("misses=%d: echoed %d", tc.misses, st.ConsecutiveMisses)
		}
	}
}

func completedDaysHistory(user UserID, completed, missed int) []DailyProgress {
	start := day(2024, time.May, 1)
	var recs []DailyProgress
	for i := 0; i < completed; i++ {
		recs = append(recs, DailyProgress{UserID: user, Date: start.AddDate(0, 0, len(recs)), Status: StatusCompleted})
	}
	for i := 0; i < missed; i++ {
		recs = append(recs, DailyProgress{UserID: user, Date: start.AddDate(0, 0, len(recs)), Status: StatusMissed})
	}
	return recs
}

func TestResolveWinnerByCompletedDays(t *testing.T) {
	users := []User{NewUser("a", "A"), NewUser("b", "B")}
	histories := map[UserID][]DailyProgress{
		"a": completedDaysHistory("a", 10, 2),
		"b": completedDaysHistory("b", 7, 5),
	}
	winner, ok := ResolveWinner(users, histories)
	if !ok || winner.ID != "a" {
		t.Fatalf("got %v %v", winner.ID, ok)
	}
}

func TestResolveWinnerFallsThroughToLongestStreak(t *testing.T) {
	users := []User{NewUser("a", "A"), NewUser("b", "B")}
	// Both complete 4 days, but b's are unbroken.
	histories := map[UserID][]DailyProgress{
		"a": descHistory("a", day(2024, time.May, 10), StatusCompleted, StatusCompleted, StatusMissed, StatusCompleted, StatusCompleted),
		"b": descHistory("b", day(2024, time.May, 10), StatusCompleted, StatusCompleted, StatusCompleted, StatusCompleted, StatusMissed),
	}
	winner, ok := ResolveWinner(users, histories)
	if !ok || winner.ID != "b" {
		t.Fatalf("got %v %v", winner.ID, ok)
	}
}

func TestResolveWinnerActiveOutranksEliminated(t *testing.T) {
	elim := day(2024, time.May, 20)
	loser := NewUser("out", "Out")
	loser.EliminatedAt = &elim
	loser.EliminationReason = EliminationReasonMisses

	users := []User{loser, NewUser("in", "In")}
	histories := map[UserID][]DailyProgress{
		"out": completedDaysHistory("out", 20, 3),
		"in":  completedDaysHistory("in", 1, 0),
	}
	winner, ok := ResolveWinner(users, histories)
	if !ok || winner.ID != "in" {
		t.Fatalf("active user must win, got %v", winner.ID)
	}
}

func TestResolveWinnerAllEliminatedMostRecentFirst(t *testing.T) {
	early := day(2024, time.May, 10)
	late := day(2024, time.May, 20)
	a := NewUser("a", "A")
	a.EliminatedAt = &early
	b := NewUser("b", "B")
	b.EliminatedAt = &late

	winner, ok := ResolveWinner([]User{a, b}, map[UserID][]DailyProgress{})
	if !ok || winner.ID != "b" {
		t.Fatalf("most recently eliminated should win, got %v", winner.ID)
	}
}

func TestResolveWinnerEmpty(t *testing.T) {
	if _, ok := ResolveWinner(nil, nil); ok {
		t.Fatal("no winner expected for empty input")
	}
}
