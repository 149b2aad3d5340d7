package analytics

import (
	"fmt"
	"sync"
	"time"

	"runstreak/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// Participation tracks which users were evaluated on each day. A user
// shows up on a day when any event carries their ID, whether the goal
// was met, missed, or bailed out.
type Participation struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewParticipation() *Participation {
	return &Participation{days: map[string]map[core.UserID]struct{}{}}
}

func (p *Participation) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	if !e.Date.IsZero() {
		day = e.Date.UTC().Format("2006-01-02")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		p.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (p *Participation) Count(day string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.days[day])
}

// ChallengeMetrics aggregates the family's challenge activity from the
// event stream: miles logged, goal outcomes, bailouts, and eliminations,
// keyed by day, ISO week, and month.
type ChallengeMetrics struct {
	mu sync.RWMutex

	milesByDay   map[string]float64
	milesByWeek  map[string]float64
	milesByMonth map[string]float64
	milesByUser  map[core.UserID]float64

	completedByDay map[string]int
	missedByDay    map[string]int

	bailoutsByUser map[core.UserID]int
	eliminations   []core.Event
}

func NewChallengeMetrics() *ChallengeMetrics {
	return &ChallengeMetrics{
		milesByDay:     make(map[string]float64),
		milesByWeek:    make(map[string]float64),
		milesByMonth:   make(map[string]float64),
		milesByUser:    make(map[core.UserID]float64),
		completedByDay: make(map[string]int),
		missedByDay:    make(map[string]int),
		bailoutsByUser: make(map[core.UserID]int),
	}
}

func (cm *ChallengeMetrics) OnEvent(e core.Event) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	at := e.Date
	if at.IsZero() {
		at = e.Time
	}
	day := at.UTC().Format("2006-01-02")

	switch e.Type {
	case core.EventDayEvaluated:
		cm.milesByDay[day] += e.Completed
		cm.milesByWeek[weekKey(at)] += e.Completed
		cm.milesByMonth[monthKey(at)] += e.Completed
		cm.milesByUser[e.UserID] += e.Completed
	case core.EventGoalCompleted:
		cm.completedByDay[day]++
	case core.EventGoalMissed:
		cm.missedByDay[day]++
	case core.EventBailoutUsed:
		cm.bailoutsByUser[e.UserID]++
	case core.EventUserEliminated:
		cm.eliminations = append(cm.eliminations, e)
	}
}

// MilesOnDay returns the family's total logged miles for a day key
// (yyyy-mm-dd).
func (cm *ChallengeMetrics) MilesOnDay(day string) float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.milesByDay[day]
}

// MilesInWeek returns the total for an ISO week key (e.g. 2024-W10).
func (cm *ChallengeMetrics) MilesInWeek(week string) float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.milesByWeek[week]
}

// MilesInMonth returns the total for a month key (yyyy-mm).
func (cm *ChallengeMetrics) MilesInMonth(month string) float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.milesByMonth[month]
}

// UserMiles returns a user's cumulative logged miles.
func (cm *ChallengeMetrics) UserMiles(user core.UserID) float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.milesByUser[user]
}

// Outcomes returns completed and missed counts for a day key.
func (cm *ChallengeMetrics) Outcomes(day string) (completed, missed int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.completedByDay[day], cm.missedByDay[day]
}

// BailoutsUsed returns how many passes a user has burned.
func (cm *ChallengeMetrics) BailoutsUsed(user core.UserID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.bailoutsByUser[user]
}

// Eliminations returns the elimination events seen so far, oldest first.
func (cm *ChallengeMetrics) Eliminations() []core.Event {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]core.Event, len(cm.eliminations))
	copy(out, cm.eliminations)
	return out
}

// Multi fans one event out to several hooks.
type Multi []Hook

func (m Multi) OnEvent(e core.Event) {
	for _, h := range m {
		h.OnEvent(e)
	}
}

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
