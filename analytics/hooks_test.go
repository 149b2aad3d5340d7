package analytics

import (
	"math"
	"testing"
	"time"

	"runstreak/core"
)

func evalEvent(user core.UserID, date string, required, completed float64, status core.DayStatus) core.Event {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	rec := core.DailyProgress{UserID: user, Date: d, Required: required, Completed: completed, Status: status}
	return core.NewDayEvaluated(user, rec, core.GoalResult{Required: required, Total: completed, Met: status == core.StatusCompleted})
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestChallengeMetricsAggregates(t *testing.T) {
	cm := NewChallengeMetrics()

	cm.OnEvent(evalEvent("dad", "2024-03-07", 3.07, 3.2, core.StatusCompleted))
	cm.OnEvent(evalEvent("mom", "2024-03-07", 3.07, 4.0, core.StatusCompleted))
	cm.OnEvent(evalEvent("kid", "2024-03-08", 3.08, 1.0, core.StatusMissed))

	if got := cm.MilesOnDay("2024-03-07"); !closeTo(got, 7.2) {
		t.Fatalf("day miles: %v", got)
	}
	if got := cm.MilesInWeek("2024-W10"); !closeTo(got, 8.2) {
		t.Fatalf("week miles: %v", got)
	}
	if got := cm.MilesInMonth("2024-03"); !closeTo(got, 8.2) {
		t.Fatalf("month miles: %v", got)
	}
	if got := cm.UserMiles("dad"); !closeTo(got, 3.2) {
		t.Fatalf("user miles: %v", got)
	}
}

func TestChallengeMetricsOutcomes(t *testing.T) {
	cm := NewChallengeMetrics()
	d := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	cm.OnEvent(core.NewGoalCompleted("dad", core.DailyProgress{UserID: "dad", Date: d, Status: core.StatusCompleted}))
	cm.OnEvent(core.NewGoalMissed("kid", core.DailyProgress{UserID: "kid", Date: d, Status: core.StatusMissed}, 2.0))
	cm.OnEvent(core.NewBailoutUsed("mom", d, 3))
	cm.OnEvent(core.NewUserEliminated("kid", d.AddDate(0, 0, 3), core.EliminationReasonMisses))

	completed, missed := cm.Outcomes("2024-03-07")
	if completed != 1 || missed != 1 {
		t.Fatalf("outcomes: %d %d", completed, missed)
	}
	if cm.BailoutsUsed("mom") != 1 {
		t.Fatalf("bailouts: %d", cm.BailoutsUsed("mom"))
	}
	elims := cm.Eliminations()
	if len(elims) != 1 || elims[0].UserID != "kid" {
		t.Fatalf("eliminations: %+v", elims)
	}
}

func TestParticipationCountsUniqueUsers(t *testing.T) {
	p := NewParticipation()
	p.OnEvent(evalEvent("dad", "2024-03-07", 3.07, 3.2, core.StatusCompleted))
	p.OnEvent(evalEvent("dad", "2024-03-07", 3.07, 3.2, core.StatusCompleted))
	p.OnEvent(evalEvent("mom", "2024-03-07", 3.07, 0, core.StatusMissed))

	if got := p.Count("2024-03-07"); got != 2 {
		t.Fatalf("count: %d", got)
	}
	if got := p.Count("2024-03-08"); got != 0 {
		t.Fatalf("empty day: %d", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	p := NewParticipation()
	cm := NewChallengeMetrics()
	hooks := Multi{p, cm}

	hooks.OnEvent(evalEvent("dad", "2024-03-07", 3.07, 3.2, core.StatusCompleted))

	if p.Count("2024-03-07") != 1 {
		t.Fatal("participation missed event")
	}
	if cm.MilesOnDay("2024-03-07") != 3.2 {
		t.Fatal("metrics missed event")
	}
}
