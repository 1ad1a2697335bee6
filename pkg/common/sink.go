package common

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event is implemented by every protocol event (see pkg/model/events.go).
type Event interface {
	EventType() string
}

// EventSink receives protocol events. On a chain these would be log events;
// here the sink is the seam off-chain relayers and tests observe through.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, Event) {}

// LoggingSink writes every event to the structured log. This is the sink a
// standalone node runs with.
type LoggingSink struct {
	logger *zap.SugaredLogger
}

func NewLoggingSink(logger *zap.SugaredLogger) *LoggingSink {
	return &LoggingSink{logger: logger.With("component", "event_sink")}
}

func (s *LoggingSink) Publish(_ context.Context, event Event) {
	s.logger.Infow("Protocol event", "type", event.EventType(), "event", event)
}

// CapturingSink retains every published event, in order. Test helper.
type CapturingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCapturingSink() *CapturingSink {
	return &CapturingSink{}
}

func (s *CapturingSink) Publish(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all captured events.
func (s *CapturingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOfType returns captured events matching the given type.
func (s *CapturingSink) EventsOfType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
