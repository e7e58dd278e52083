package audit

import (
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Emit(Event) {
	<-b.release
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := MultiSink{a, b}

	m.Emit(Event{Event: EventCycleStarted, Severity: SeverityInfo})

	for _, sink := range []*captureSink{a, b} {
		events := sink.snapshot()
		if len(events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(events))
		}
		if events[0].ID == "" {
			t.Error("Expected a stamped event id")
		}
		if events[0].EmittedAtMs == 0 {
			t.Error("Expected a stamped emission time")
		}
	}
}

func TestStampPreservesExplicitFields(t *testing.T) {
	c := &captureSink{}
	m := MultiSink{c}

	m.Emit(Event{ID: "fixed-id", EmittedAtMs: 42, Event: EventCycleCompleted})

	events := c.snapshot()
	if events[0].ID != "fixed-id" {
		t.Errorf("Expected explicit id to survive, got %s", events[0].ID)
	}
	if events[0].EmittedAtMs != 42 {
		t.Errorf("Expected explicit timestamp to survive, got %d", events[0].EmittedAtMs)
	}
}

func TestAsyncSinkDeliversInOrder(t *testing.T) {
	c := &captureSink{}
	s := NewAsyncSink(c, 16)

	s.Emit(Event{Event: EventCycleStarted})
	s.Emit(Event{Event: EventCycleCompleted})
	s.Close()

	events := c.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events after Close, got %d", len(events))
	}
	if events[0].Event != EventCycleStarted || events[1].Event != EventCycleCompleted {
		t.Errorf("Expected delivery in emission order, got %s then %s", events[0].Event, events[1].Event)
	}
	if s.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", s.Dropped())
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	blocked := &blockingSink{release: make(chan struct{})}
	s := NewAsyncSink(blocked, 1)

	// First event is picked up by the delivery goroutine and blocks there,
	// the second fills the buffer, everything after is dropped.
	s.Emit(Event{Event: EventCycleStarted})
	deadline := time.After(time.Second)
	for len(s.ch) != 0 {
		select {
		case <-deadline:
			t.Fatal("Delivery goroutine never picked up the first event")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	s.Emit(Event{Event: EventCycleStarted})

	for i := 0; i < 5; i++ {
		s.Emit(Event{Event: EventHeartbeatMissed})
	}
	if s.Dropped() == 0 {
		t.Error("Expected drops once the buffer filled")
	}

	close(blocked.release)
	s.Close()
}
