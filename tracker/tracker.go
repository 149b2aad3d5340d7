package tracker

import (
	"context"
	"time"

	mem "runstreak/adapters/memory"
	"runstreak/analytics"
	"runstreak/core"
	"runstreak/engine"
	"runstreak/realtime"
)

// Option configures the challenge service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	feed    engine.ActivityFeed
	mode    engine.DispatchMode
	hub     *realtime.Hub
	hooks   []analytics.Hook
	now     func() time.Time
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithFeed sets the external activity feed.
func WithFeed(f engine.ActivityFeed) Option { return func(c *config) { c.feed = f } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithHook registers an analytics hook on the event stream.
func WithHook(h analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, h) }
}

// WithNow overrides the service clock, mainly for tests.
func WithNow(now func() time.Time) Option { return func(c *config) { c.now = now } }

// New builds a configured ChallengeService. If not provided, defaults
// are used:
//   - storage: in-memory
//   - feed: none (EvaluateDay will return engine.ErrNoFeed)
//   - dispatch: async
func New(opts ...Option) *engine.ChallengeService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}

	bus := engine.NewEventBus(cfg.mode)
	var svcOpts []engine.ServiceOption
	if cfg.now != nil {
		svcOpts = append(svcOpts, engine.WithNow(cfg.now))
	}
	svc := engine.NewChallengeService(cfg.storage, cfg.feed, bus, svcOpts...)

	if cfg.hub != nil {
		svc.SubscribeAll(func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
	}
	for _, hook := range cfg.hooks {
		h := hook
		svc.SubscribeAll(func(_ context.Context, e core.Event) { h.OnEvent(e) })
	}
	return svc
}
