package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"runstreak/core"
)

// UserSummary mirrors the GET /users/{id} response.
type UserSummary struct {
	User     core.User           `json:"user"`
	Standing core.Standing       `json:"standing"`
	Streaks  core.StreakSnapshot `json:"streaks"`
}

// BailoutResult mirrors the POST /users/{id}/bailout response.
type BailoutResult struct {
	Remaining int  `json:"remaining"`
	Used      bool `json:"used"`
}

// LeaderboardRow mirrors one entry of the GET /leaderboard response.
type LeaderboardRow struct {
	User          core.User           `json:"user"`
	CompletedDays int                 `json:"completed_days"`
	BailoutDays   int                 `json:"bailout_days"`
	Streaks       core.StreakSnapshot `json:"streaks"`
	Eliminated    bool                `json:"eliminated"`
	Rank          int                 `json:"rank"`
}

// WinnerResult mirrors the GET /winner response.
type WinnerResult struct {
	Decided bool       `json:"decided"`
	Winner  *core.User `json:"winner,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is the server's JSON error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unknown"
			apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
