package leaderboard

import (
	"sort"

	"runstreak/core"
)

// Row is one user's line on the family board.
type Row struct {
	User          core.User           `json:"user"`
	CompletedDays int                 `json:"completed_days"`
	BailoutDays   int                 `json:"bailout_days"`
	Streaks       core.StreakSnapshot `json:"streaks"`
	Eliminated    bool                `json:"eliminated"`
	Rank          int                 `json:"rank"`
}

// Compute builds the board ordered by the same policy that picks the
// champion: active users first, then most completed days, then longest
// streak; eliminated users trail, most recently eliminated first. The
// board is recomputed per request; at family scale an index structure
// would be overkill.
func Compute(users []core.User, histories map[core.UserID][]core.DailyProgress) []Row {
	rows := make([]Row, 0, len(users))
	for _, u := range users {
		hist := histories[u.ID]
		bailouts := 0
		for _, rec := range hist {
			if rec.Status == core.StatusBailout {
				bailouts++
			}
		}
		rows = append(rows, Row{
			User:          u,
			CompletedDays: core.CompletedDays(hist),
			BailoutDays:   bailouts,
			Streaks:       core.CalculateStreaks(hist),
			Eliminated:    u.Eliminated(),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Eliminated != b.Eliminated {
			return !a.Eliminated
		}
		if a.Eliminated {
			return a.User.EliminatedAt.After(*b.User.EliminatedAt)
		}
		if a.CompletedDays != b.CompletedDays {
			return a.CompletedDays > b.CompletedDays
		}
		return a.Streaks.Longest > b.Streaks.Longest
	})

	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
