package leaderboard

import (
	"testing"
	"time"

	"runstreak/core"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func history(user core.UserID, start string, statuses ...core.DayStatus) []core.DailyProgress {
	first := day(start)
	out := make([]core.DailyProgress, 0, len(statuses))
	for i, st := range statuses {
		out = append(out, core.DailyProgress{UserID: user, Date: first.AddDate(0, 0, i), Status: st})
	}
	return out
}

func TestComputeOrdersByCompletedThenStreak(t *testing.T) {
	users := []core.User{core.NewUser("a", "A"), core.NewUser("b", "B"), core.NewUser("c", "C")}
	histories := map[core.UserID][]core.DailyProgress{
		// a: 3 completed
		"a": history("a", "2024-03-01", core.StatusCompleted, core.StatusCompleted, core.StatusCompleted),
		// b: 2 completed
		"b": history("b", "2024-03-01", core.StatusCompleted, core.StatusCompleted, core.StatusMissed),
		// c: 2 completed but longer streak thanks to a bailout bridge
		"c": history("c", "2024-03-01", core.StatusCompleted, core.StatusBailout, core.StatusCompleted),
	}

	rows := Compute(users, histories)
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].User.ID != "a" || rows[1].User.ID != "c" || rows[2].User.ID != "b" {
		t.Fatalf("order: %s %s %s", rows[0].User.ID, rows[1].User.ID, rows[2].User.ID)
	}
	if rows[0].Rank != 1 || rows[2].Rank != 3 {
		t.Fatalf("ranks: %d %d %d", rows[0].Rank, rows[1].Rank, rows[2].Rank)
	}
	if rows[1].BailoutDays != 1 {
		t.Fatalf("bailout days: %d", rows[1].BailoutDays)
	}
}

func TestComputeEliminatedTrail(t *testing.T) {
	early, late := day("2024-03-05"), day("2024-03-09")
	out1 := core.NewUser("out1", "Out1")
	out1.EliminatedAt = &early
	out2 := core.NewUser("out2", "Out2")
	out2.EliminatedAt = &late
	alive := core.NewUser("alive", "Alive")

	rows := Compute([]core.User{out1, out2, alive}, map[core.UserID][]core.DailyProgress{
		// the eliminated user ran more days, but still trails
		"out1": history("out1", "2024-03-01", core.StatusCompleted, core.StatusCompleted),
	})

	if rows[0].User.ID != "alive" {
		t.Fatalf("active user should lead, got %s", rows[0].User.ID)
	}
	if rows[1].User.ID != "out2" || rows[2].User.ID != "out1" {
		t.Fatalf("eliminated order: %s %s", rows[1].User.ID, rows[2].User.ID)
	}
	if !rows[1].Eliminated || !rows[2].Eliminated {
		t.Fatal("eliminated flags not set")
	}
}

func TestComputeEmpty(t *testing.T) {
	rows := Compute(nil, nil)
	if len(rows) != 0 {
		t.Fatalf("got %d", len(rows))
	}
}
