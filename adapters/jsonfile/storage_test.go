package jsonfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"runstreak/core"
)

func mustDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "challenge.json")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutUser(ctx, core.NewUser("u", "Mom")); err != nil {
		t.Fatal(err)
	}
	rec := core.DailyProgress{UserID: "u", Date: mustDay("2024-03-07"), Required: 3.07, Completed: 3.2, Status: core.StatusCompleted}
	if err := s.UpsertProgress(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// A fresh store reads the same state back from disk.
	reloaded, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	u, err := reloaded.GetUser(ctx, "u")
	if err != nil || u.DisplayName != "Mom" || u.BailoutPasses != core.DefaultBailoutPasses {
		t.Fatalf("got %+v %v", u, err)
	}
	got, ok, err := reloaded.GetProgress(ctx, "u", mustDay("2024-03-07"))
	if err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if got.Required != rec.Required || got.Completed != rec.Completed || got.Status != rec.Status {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "challenge.json")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	users, err := s.ListUsers(context.Background())
	if err != nil || len(users) != 0 {
		t.Fatalf("got %d %v", len(users), err)
	}
}

func TestBailoutPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "challenge.json")
	ctx := context.Background()

	s, _ := New(path)
	_ = s.PutUser(ctx, core.NewUser("u", "U"))

	left, spent, err := s.SpendBailoutPass(ctx, "u")
	if err != nil || !spent || left != core.DefaultBailoutPasses-1 {
		t.Fatalf("got %d %v %v", left, spent, err)
	}

	reloaded, _ := New(path)
	u, _ := reloaded.GetUser(ctx, "u")
	if u.BailoutPasses != core.DefaultBailoutPasses-1 {
		t.Fatalf("decrement not persisted: %d", u.BailoutPasses)
	}
}
