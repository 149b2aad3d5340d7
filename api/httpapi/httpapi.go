package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	wsadapter "runstreak/adapters/websocket"
	"runstreak/core"
	"runstreak/engine"
	"runstreak/leaderboard"
	"runstreak/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the challenge REST API and WebSocket stream.
// Routes:
//   - GET  {prefix}/healthz
//   - GET  {prefix}/users/{id}
//   - GET  {prefix}/users/{id}/progress?start=yyyy-mm-dd&end=yyyy-mm-dd
//   - GET  {prefix}/users/{id}/streaks
//   - POST {prefix}/users/{id}/evaluate?date=yyyy-mm-dd
//   - POST {prefix}/users/{id}/evaluate-window?start=yyyy-mm-dd&end=yyyy-mm-dd
//   - POST {prefix}/users/{id}/bailout?date=yyyy-mm-dd
//   - GET  {prefix}/leaderboard
//   - GET  {prefix}/winner
//   - WS   {prefix}/ws
func NewMux(svc *engine.ChallengeService, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	// WebSocket events
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		users, histories, err := svc.Snapshot(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, leaderboard.Compute(users, histories))
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/winner"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		winner, ok, err := svc.Winner(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if !ok {
			writeJSON(w, map[string]any{"decided": false})
			return
		}
		writeJSON(w, map[string]any{"decided": true, "winner": winner})
	})

	// Users API
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		if path == "" || path[0] != '/' {
			path = "/" + path
		}
		parts := split(path, '/')
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		user, err := core.NormalizeUserID(core.UserID(parts[1]))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if len(parts) >= 3 && parts[2] == "evaluate" {
				handleEvaluate(w, r, svc, user)
				return
			}
			if len(parts) >= 3 && parts[2] == "evaluate-window" {
				handleEvaluateWindow(w, r, svc, user)
				return
			}
			if len(parts) >= 3 && parts[2] == "bailout" {
				handleBailout(w, r, svc, user)
				return
			}
		case http.MethodGet:
			if len(parts) >= 3 && parts[2] == "progress" {
				handleProgress(w, r, svc, user)
				return
			}
			if len(parts) >= 3 && parts[2] == "streaks" {
				handleStreaks(w, r, svc, user)
				return
			}
			if len(parts) == 2 {
				handleUser(w, r, svc, user)
				return
			}
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Handlers

func handleUser(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	ctx := r.Context()
	u, err := svc.User(ctx, user)
	if err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	standing, err := svc.Standing(ctx, user, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	streaks, err := svc.Streaks(ctx, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"user": u, "standing": standing, "streaks": streaks})
}

func handleProgress(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	start, ok := parseDateParam(w, r, "start", true)
	if !ok {
		return
	}
	end, ok := parseDateParam(w, r, "end", true)
	if !ok {
		return
	}
	recs, err := svc.Progress(r.Context(), user, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, recs)
}

func handleStreaks(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	snap, err := svc.Streaks(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, snap)
}

func handleEvaluate(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	// date is optional; default is today
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var ok bool
		date, ok = parseDateParam(w, r, "date", true)
		if !ok {
			return
		}
	}
	rec, err := svc.EvaluateDay(r.Context(), user, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, rec)
}

func handleEvaluateWindow(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	start, ok := parseDateParam(w, r, "start", true)
	if !ok {
		return
	}
	end, ok := parseDateParam(w, r, "end", true)
	if !ok {
		return
	}
	recs, err := svc.EvaluateWindow(r.Context(), user, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, recs)
}

func handleBailout(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService, user core.UserID) {
	// date is required: spending a pass must name the day it excuses
	date, ok := parseDateParam(w, r, "date", true)
	if !ok {
		return
	}
	remaining, used, err := svc.UseBailout(r.Context(), user, date)
	if err != nil {
		if errors.Is(err, engine.ErrBailoutPartial) {
			// The pass is spent but the day record write failed; surface
			// both facts so the caller can retry the evaluation.
			writeError(w, http.StatusInternalServerError, "bailout_partial", err.Error(),
				map[string]any{"remaining": remaining, "used": used})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"remaining": remaining, "used": used})
}

// parseDateParam reads a yyyy-mm-dd query parameter. With required set,
// a missing or malformed value writes a 400 and returns ok=false.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string, required bool) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "invalid_input", name+" is required (yyyy-mm-dd)", nil)
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", name+" must be yyyy-mm-dd", nil)
		return time.Time{}, false
	}
	return d, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, engine.ErrNoFeed):
		writeError(w, http.StatusServiceUnavailable, "no_feed", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// healthCheck verifies the service is working properly
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.ChallengeService) {
	ctx := r.Context()

	// Verify storage works with a lightweight read that touches no real data.
	_, err := svc.Users(ctx)

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

// Helpers

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   int
	burst int
	mu    sync.Mutex
	b     map[string]*rate.Limiter
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   rpm,
		burst: burst,
		b:     make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.b[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)
		l.b[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
