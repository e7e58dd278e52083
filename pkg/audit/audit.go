// Package audit defines the safety audit event stream. The supervisor and
// registry report every state transition here; delivery is fire-and-forget
// so a slow or unavailable sink can never block an escalation decision.
package audit

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/sentinel/pkg/logging"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Well-known event names emitted by the supervisor.
const (
	EventCycleStarted    = "cycle_started"
	EventCycleCompleted  = "cycle_completed"
	EventCycleFailed     = "cycle_failed"
	EventHeartbeatMissed = "heartbeat_missed"
	EventAutoRecovery    = "interpreter_auto_recovery"
)

// Event is a structured safety audit event.
type Event struct {
	ID          string                 `json:"id"`
	Event       string                 `json:"event"`
	Severity    Severity               `json:"severity"`
	Details     map[string]interface{} `json:"details,omitempty"`
	EmittedAtMs int64                  `json:"emitted_at_ms"`
}

// Sink receives audit events. Implementations must not block the caller.
type Sink interface {
	Emit(ev Event)
}

// stamp fills in the event id and emission time if the producer left them
// empty.
func stamp(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.EmittedAtMs == 0 {
		ev.EmittedAtMs = time.Now().UnixMilli()
	}
}

// LoggerSink writes audit events through the structured logger.
type LoggerSink struct {
	logger *logging.Logger
}

// NewLoggerSink creates a sink backed by the given logger.
func NewLoggerSink(logger *logging.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Emit logs the event at a level matching its severity.
func (s *LoggerSink) Emit(ev Event) {
	stamp(&ev)

	fields := make(map[string]interface{}, len(ev.Details)+2)
	for k, v := range ev.Details {
		fields[k] = v
	}
	fields["audit_id"] = ev.ID
	fields["emitted_at_ms"] = ev.EmittedAtMs

	switch ev.Severity {
	case SeverityError:
		s.logger.Error(ev.Event, fields)
	case SeverityWarn:
		s.logger.Warn(ev.Event, fields)
	default:
		s.logger.Info(ev.Event, fields)
	}
}

// MultiSink fans an event out to every wrapped sink.
type MultiSink []Sink

// Emit delivers the event to each sink in order.
func (m MultiSink) Emit(ev Event) {
	stamp(&ev)
	for _, s := range m {
		s.Emit(ev)
	}
}

// AsyncSink decouples emission from delivery with a bounded buffer.
// When the buffer is full the event is dropped and counted rather than
// blocking the producer.
type AsyncSink struct {
	wrapped Sink
	ch      chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsyncSink starts a delivery goroutine with the given buffer size.
func NewAsyncSink(wrapped Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		wrapped: wrapped,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go s.deliver()
	return s
}

func (s *AsyncSink) deliver() {
	defer close(s.done)
	for ev := range s.ch {
		s.wrapped.Emit(ev)
	}
}

// Emit enqueues the event without blocking.
func (s *AsyncSink) Emit(ev Event) {
	stamp(&ev)
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded due to a full buffer.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains buffered events and stops the delivery goroutine.
func (s *AsyncSink) Close() {
	close(s.ch)
	<-s.done
}

// NopSink discards all events. Useful in tests.
type NopSink struct{}

func (NopSink) Emit(Event) {}
