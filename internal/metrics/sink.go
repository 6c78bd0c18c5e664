package metrics

import (
	"math/rand"
	"time"
)

// AnalyticsEvent is one sampled request record (spec §6, §9 OQ-3).
type AnalyticsEvent struct {
	Path      string
	Status    int
	LatencyMs int64
	ClientIP  string
	Timestamp time.Time
}

// Sink is a non-blocking, sampled analytics emitter: a buffered channel with
// a dropping policy, so the request path never awaits emission ("Analytics:
// one MetricsSink interface; all emission non-blocking", spec §9). The
// dashboards/storage that would drain Events are out of this spec's scope
// (spec §1 "analytics dashboards" is an external collaborator).
type Sink struct {
	events chan AnalyticsEvent
}

// NewSink builds a Sink with the given buffer depth.
func NewSink(buffer int) *Sink {
	return &Sink{events: make(chan AnalyticsEvent, buffer)}
}

// Record submits ev if the sampling draw succeeds and the buffer has room;
// otherwise the event is silently dropped. rate is in [0,1].
func (s *Sink) Record(ev AnalyticsEvent, rate float64) {
	if s == nil || rate <= 0 || rand.Float64() > rate {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Buffer full: drop rather than block the request path.
	}
}

// Events exposes the channel for a background drain loop.
func (s *Sink) Events() <-chan AnalyticsEvent {
	return s.events
}
