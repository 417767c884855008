package events

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Sink receives domain events. Publishing is best-effort: callers never fail
// an operation because a sink rejected an event.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

type zapSink struct {
	log     *zap.Logger
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewZapSink logs every event as a structured envelope.
func NewZapSink(log *zap.Logger) Sink {
	return &zapSink{
		log:     log.Named("events"),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *zapSink) Publish(_ context.Context, event Event) {
	if event == nil {
		return
	}
	now := time.Now().UTC()
	s.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	s.mu.Unlock()

	s.log.Info("event published",
		zap.String("event_id", id),
		zap.String("event", event.EventName()),
		zap.Time("occurred_at", now),
		zap.Any("payload", event),
	)
}

// Recorder collects events in memory for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, event Event) {
	if event == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
