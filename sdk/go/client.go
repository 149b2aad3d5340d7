package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"runstreak/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the challenge HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

const dateLayout = "2006-01-02"

// EvaluateDay asks the server to evaluate the user's goal for a calendar
// day; a zero date means today.
func (c *Client) EvaluateDay(ctx context.Context, userID string, date time.Time) (core.DailyProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return core.DailyProgress{}, ErrEmptyUserID
	}
	u, err := url.Parse(fmt.Sprintf("%s/users/%s/evaluate", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return core.DailyProgress{}, err
	}
	if !date.IsZero() {
		q := u.Query()
		q.Set("date", date.UTC().Format(dateLayout))
		u.RawQuery = q.Encode()
	}

	var rec core.DailyProgress
	if err := c.do(ctx, http.MethodPost, u.String(), &rec); err != nil {
		return core.DailyProgress{}, err
	}
	return rec, nil
}

// EvaluateWindow evaluates every day in [start, end].
func (c *Client) EvaluateWindow(ctx context.Context, userID string, start, end time.Time) ([]core.DailyProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	u, err := url.Parse(fmt.Sprintf("%s/users/%s/evaluate-window", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("start", start.UTC().Format(dateLayout))
	q.Set("end", end.UTC().Format(dateLayout))
	u.RawQuery = q.Encode()

	var recs []core.DailyProgress
	if err := c.do(ctx, http.MethodPost, u.String(), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// UseBailout spends one of the user's passes on the given day.
func (c *Client) UseBailout(ctx context.Context, userID string, date time.Time) (BailoutResult, error) {
	if strings.TrimSpace(userID) == "" {
		return BailoutResult{}, ErrEmptyUserID
	}
	u, err := url.Parse(fmt.Sprintf("%s/users/%s/bailout", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return BailoutResult{}, err
	}
	q := u.Query()
	q.Set("date", date.UTC().Format(dateLayout))
	u.RawQuery = q.Encode()

	var res BailoutResult
	if err := c.do(ctx, http.MethodPost, u.String(), &res); err != nil {
		return BailoutResult{}, err
	}
	return res, nil
}

// GetUser fetches a user's profile together with standing and streaks.
func (c *Client) GetUser(ctx context.Context, userID string) (UserSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return UserSummary{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	var summary UserSummary
	if err := c.do(ctx, http.MethodGet, u, &summary); err != nil {
		return UserSummary{}, err
	}
	return summary, nil
}

// Progress fetches the user's daily records in [start, end], newest first.
func (c *Client) Progress(ctx context.Context, userID string, start, end time.Time) ([]core.DailyProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	u, err := url.Parse(fmt.Sprintf("%s/users/%s/progress", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("start", start.UTC().Format(dateLayout))
	q.Set("end", end.UTC().Format(dateLayout))
	u.RawQuery = q.Encode()

	var recs []core.DailyProgress
	if err := c.do(ctx, http.MethodGet, u.String(), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Leaderboard fetches the current family board.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/leaderboard", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Winner fetches the current champion, if one can be decided.
func (c *Client) Winner(ctx context.Context) (WinnerResult, error) {
	var res WinnerResult
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/winner", &res); err != nil {
		return WinnerResult{}, err
	}
	return res, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
