package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"runstreak/core"
)

// ErrProvider marks activity-feed failures: the provider is down,
// the credential is expired or invalid, or we are being rate limited.
// Callers must treat it as "no data", never as "zero activities".
var ErrProvider = errors.New("activity feed provider error")

// ErrNoCredential is returned when no access token is known for a user.
var ErrNoCredential = errors.New("no access token for user")

const defaultPerPage = 100

// Client fetches activity lists from the provider's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	perPage    int
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRateLimit caps outbound requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithPerPage bounds the page size requested from the provider.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// NewClient constructs a feed client targeting the given API base URL
// (e.g., https://www.strava.com/api/v3).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		perPage:    defaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Params narrows an activity fetch.
type Params struct {
	After   time.Time
	Before  time.Time
	PerPage int
}

// wireActivity is the provider's JSON shape; distances arrive in meters.
type wireActivity struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Distance    float64   `json:"distance"`
	MovingTime  int64     `json:"moving_time"`
	ElapsedTime int64     `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
}

func (w wireActivity) toActivity() core.Activity {
	return core.Activity{
		ExternalID:    strconv.FormatInt(w.ID, 10),
		Type:          w.Type,
		DistanceMiles: w.Distance * core.MilesPerMeter,
		MovingTime:    time.Duration(w.MovingTime) * time.Second,
		ElapsedTime:   time.Duration(w.ElapsedTime) * time.Second,
		StartTime:     w.StartDate.UTC(),
	}
}

// Activities fetches the athlete's activity list with the given bearer
// token. Unit conversion to miles happens here, once, at ingestion.
func (c *Client) Activities(ctx context.Context, token string, p Params) ([]core.Activity, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(c.baseURL + "/athlete/activities")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	perPage := c.perPage
	if p.PerPage > 0 {
		perPage = p.PerPage
	}
	q.Set("per_page", strconv.Itoa(perPage))
	if !p.After.IsZero() {
		q.Set("after", strconv.FormatInt(p.After.Unix(), 10))
	}
	if !p.Before.IsZero() {
		q.Set("before", strconv.FormatInt(p.Before.Unix(), 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	// The provider answers auth and rate-limit problems with a JSON
	// object instead of a list. That is a provider error, not an empty
	// day.
	var wire []wireActivity
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: non-list response", ErrProvider)
	}

	out := make([]core.Activity, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toActivity())
	}
	return out, nil
}

// TokenSource maps a user to their provider access token.
type TokenSource interface {
	AccessToken(ctx context.Context, user core.UserID) (string, error)
}

// StaticTokens is a fixed user-to-token map, loaded from configuration.
type StaticTokens map[core.UserID]string

func (s StaticTokens) AccessToken(_ context.Context, user core.UserID) (string, error) {
	token, ok := s[user]
	if !ok || token == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCredential, user)
	}
	return token, nil
}

// UserFeed adapts the raw client to per-user day fetches, the shape the
// challenge engine consumes.
type UserFeed struct {
	client *Client
	tokens TokenSource
}

func NewUserFeed(client *Client, tokens TokenSource) *UserFeed {
	return &UserFeed{client: client, tokens: tokens}
}

// DayActivities returns the user's activities that started on the given
// calendar day (UTC).
func (f *UserFeed) DayActivities(ctx context.Context, user core.UserID, day time.Time) ([]core.Activity, error) {
	token, err := f.tokens.AccessToken(ctx, user)
	if err != nil {
		return nil, err
	}
	start := core.DayOf(day)
	end := start.AddDate(0, 0, 1)

	activities, err := f.client.Activities(ctx, token, Params{After: start, Before: end})
	if err != nil {
		return nil, err
	}
	// Providers treat after/before loosely around day boundaries; keep
	// only what actually started on the requested day.
	var out []core.Activity
	for _, a := range activities {
		if core.SameDay(a.StartTime, start) {
			out = append(out, a)
		}
	}
	return out, nil
}
