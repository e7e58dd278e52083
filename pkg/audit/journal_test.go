package audit

import (
	"path/filepath"
	"testing"
)

func TestSQLiteJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	j.Emit(Event{
		Event:       EventHeartbeatMissed,
		Severity:    SeverityWarn,
		Details:     map[string]interface{}{"entity_id": "interpreter-1"},
		EmittedAtMs: 1000,
	})
	j.Emit(Event{Event: EventCycleCompleted, Severity: SeverityInfo, EmittedAtMs: 2000})

	events, err := j.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Event != EventCycleCompleted {
		t.Errorf("Expected newest event first, got %s", events[0].Event)
	}
	if events[1].Details["entity_id"] != "interpreter-1" {
		t.Errorf("Expected details to round-trip, got %v", events[1].Details)
	}
}

func TestSQLiteJournalIgnoresDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	j.Emit(Event{ID: "dup", Event: EventCycleStarted, Severity: SeverityInfo})
	j.Emit(Event{ID: "dup", Event: EventCycleStarted, Severity: SeverityInfo})

	events, err := j.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected duplicate id to be ignored, got %d events", len(events))
	}
}

func TestSQLiteJournalLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Emit(Event{Event: EventCycleCompleted, Severity: SeverityInfo})
	}
	events, err := j.RecentEvents(3)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Expected limit of 3, got %d", len(events))
	}
}
