package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"runstreak/core"
	"runstreak/engine"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runstreak",
		Subsystem: "challenge",
		Name:      "evaluations_total",
		Help:      "Day evaluations performed, labeled by resulting status.",
	}, []string{"status"})

	bailoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "runstreak",
		Subsystem: "challenge",
		Name:      "bailouts_total",
		Help:      "Bailout passes spent.",
	})

	eliminationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "runstreak",
		Subsystem: "challenge",
		Name:      "eliminations_total",
		Help:      "Users eliminated from the challenge.",
	})

	feedErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "runstreak",
		Subsystem: "feed",
		Name:      "errors_total",
		Help:      "Activity feed fetches that failed.",
	})

	feedFetchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "runstreak",
		Subsystem: "feed",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of activity feed day fetches.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		evaluationsTotal,
		bailoutsTotal,
		eliminationsTotal,
		feedErrorsTotal,
		feedFetchSeconds,
	)
}

// EventCounter is an analytics hook that bumps Prometheus counters from
// the domain event stream.
type EventCounter struct{}

func (EventCounter) OnEvent(e core.Event) {
	switch e.Type {
	case core.EventDayEvaluated:
		evaluationsTotal.WithLabelValues(string(e.Status)).Inc()
	case core.EventBailoutUsed:
		bailoutsTotal.Inc()
	case core.EventUserEliminated:
		eliminationsTotal.Inc()
	}
}

// InstrumentedFeed wraps an activity feed with latency and error metrics.
type InstrumentedFeed struct {
	inner engine.ActivityFeed
}

func InstrumentFeed(inner engine.ActivityFeed) *InstrumentedFeed {
	return &InstrumentedFeed{inner: inner}
}

func (f *InstrumentedFeed) DayActivities(ctx context.Context, user core.UserID, day time.Time) ([]core.Activity, error) {
	start := time.Now()
	activities, err := f.inner.DayActivities(ctx, user, day)
	feedFetchSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		feedErrorsTotal.Inc()
	}
	return activities, err
}

var _ engine.ActivityFeed = (*InstrumentedFeed)(nil)
