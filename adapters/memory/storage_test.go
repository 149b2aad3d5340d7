package memory

import (
	"context"
	"testing"
	"time"

	"runstreak/core"
	"runstreak/engine"
)

func mustDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUpsertOverwrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := mustDay("2024-03-07")

	rec := core.DailyProgress{UserID: "u", Date: day, Required: 3.07, Completed: 1.0, Status: core.StatusPending}
	if err := s.UpsertProgress(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Completed = 3.2
	rec.Status = core.StatusCompleted
	if err := s.UpsertProgress(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetProgress(ctx, "u", day)
	if err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if got.Completed != 3.2 || got.Status != core.StatusCompleted {
		t.Fatalf("overwrite lost: %+v", got)
	}

	recs, err := s.History(ctx, "u")
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected single record, got %d (%v)", len(recs), err)
	}
}

func TestRangeOrderedDescending(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, d := range []string{"2024-03-01", "2024-03-03", "2024-03-02"} {
		_ = s.UpsertProgress(ctx, core.DailyProgress{UserID: "u", Date: mustDay(d), Status: core.StatusCompleted})
	}
	recs, err := s.ProgressRange(ctx, "u", mustDay("2024-03-01"), mustDay("2024-03-03"))
	if err != nil || len(recs) != 3 {
		t.Fatalf("got %d %v", len(recs), err)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Date.After(recs[i-1].Date) {
			t.Fatal("records not date-descending")
		}
	}
}

func TestRecentProgressLimitAndCutoff(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		d := mustDay("2024-03-01").AddDate(0, 0, i)
		_ = s.UpsertProgress(ctx, core.DailyProgress{UserID: "u", Date: d, Status: core.StatusMissed})
	}
	recs, err := s.RecentProgress(ctx, "u", mustDay("2024-03-05"), 2)
	if err != nil || len(recs) != 2 {
		t.Fatalf("got %d %v", len(recs), err)
	}
	if !recs[0].Date.Equal(mustDay("2024-03-05")) {
		t.Fatalf("cutoff ignored: %v", recs[0].Date)
	}
}

func TestSpendBailoutPass(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := core.NewUser("u", "U")
	u.BailoutPasses = 2
	_ = s.PutUser(ctx, u)

	left, spent, err := s.SpendBailoutPass(ctx, "u")
	if err != nil || !spent || left != 1 {
		t.Fatalf("got %d %v %v", left, spent, err)
	}
	left, spent, err = s.SpendBailoutPass(ctx, "u")
	if err != nil || !spent || left != 0 {
		t.Fatalf("got %d %v %v", left, spent, err)
	}
	// Zero balance: guarded no-op.
	left, spent, err = s.SpendBailoutPass(ctx, "u")
	if err != nil || spent || left != 0 {
		t.Fatalf("expected no-op, got %d %v %v", left, spent, err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetUser(context.Background(), "ghost"); err != engine.ErrUserNotFound {
		t.Fatalf("got %v", err)
	}
}

func TestMarkEliminated(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.PutUser(ctx, core.NewUser("u", "U"))

	at := mustDay("2024-03-09")
	if err := s.MarkEliminated(ctx, "u", at, core.EliminationReasonMisses); err != nil {
		t.Fatal(err)
	}
	u, _ := s.GetUser(ctx, "u")
	if !u.Eliminated() || !u.EliminatedAt.Equal(at) || u.EliminationReason != core.EliminationReasonMisses {
		t.Fatalf("got %+v", u)
	}

	// Repeat invocation overwrites, no guard.
	later := mustDay("2024-03-10")
	if err := s.MarkEliminated(ctx, "u", later, core.EliminationReasonMisses); err != nil {
		t.Fatal(err)
	}
	u, _ = s.GetUser(ctx, "u")
	if !u.EliminatedAt.Equal(later) {
		t.Fatalf("got %v", u.EliminatedAt)
	}
}
