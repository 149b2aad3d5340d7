package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventDayEvaluated   EventType = "day_evaluated"
	EventGoalCompleted  EventType = "goal_completed"
	EventGoalMissed     EventType = "goal_missed"
	EventBailoutUsed    EventType = "bailout_used"
	EventUserAtRisk     EventType = "user_at_risk"
	EventUserEliminated EventType = "user_eliminated"
)

// AllEventTypes lists every domain event, for subscribers that want the
// whole stream.
var AllEventTypes = []EventType{
	EventDayEvaluated,
	EventGoalCompleted,
	EventGoalMissed,
	EventBailoutUsed,
	EventUserAtRisk,
	EventUserEliminated,
}

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id"`
	Date        time.Time      `json:"date,omitempty"`
	Required    float64        `json:"required,omitempty"`
	Completed   float64        `json:"completed,omitempty"`
	Shortfall   float64        `json:"shortfall,omitempty"`
	Status      DayStatus      `json:"status,omitempty"`
	Standing    StandingStatus `json:"standing,omitempty"`
	PassesLeft  int            `json:"passes_left,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewDayEvaluated(user UserID, rec DailyProgress, result GoalResult) Event {
	return Event{
		Type:      EventDayEvaluated,
		Time:      time.Now().UTC(),
		UserID:    user,
		Date:      rec.Date,
		Required:  rec.Required,
		Completed: rec.Completed,
		Shortfall: result.Shortfall,
		Status:    rec.Status,
	}
}

func NewGoalCompleted(user UserID, rec DailyProgress) Event {
	return Event{Type: EventGoalCompleted, Time: time.Now().UTC(), UserID: user, Date: rec.Date, Required: rec.Required, Completed: rec.Completed, Status: rec.Status}
}

func NewGoalMissed(user UserID, rec DailyProgress, shortfall float64) Event {
	return Event{Type: EventGoalMissed, Time: time.Now().UTC(), UserID: user, Date: rec.Date, Required: rec.Required, Completed: rec.Completed, Shortfall: shortfall, Status: rec.Status}
}

func NewBailoutUsed(user UserID, date time.Time, passesLeft int) Event {
	return Event{Type: EventBailoutUsed, Time: time.Now().UTC(), UserID: user, Date: date, Status: StatusBailout, PassesLeft: passesLeft}
}

func NewUserAtRisk(user UserID, standing Standing) Event {
	return Event{Type: EventUserAtRisk, Time: time.Now().UTC(), UserID: user, Standing: standing.Status, Reason: standing.Reason}
}

func NewUserEliminated(user UserID, at time.Time, reason string) Event {
	return Event{Type: EventUserEliminated, Time: time.Now().UTC(), UserID: user, Date: at, Standing: StandingEliminated, Reason: reason}
}
