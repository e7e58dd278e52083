package quarantine

import (
	"testing"

	"github.com/psantana5/sentinel/pkg/clock"
)

func newTestRegistry() *Registry {
	return NewRegistry(clock.New())
}

func TestRegister_DedupeIdempotent(t *testing.T) {
	g := newTestRegistry()

	spec := Spec{
		Kind:            KindWorker,
		Reason:          "heartbeat timeout",
		AutoRecoverable: true,
		DedupeKey:       "heartbeat:worker-1:worker",
		Metadata:        map[string]string{MetaEntityID: "worker-1"},
	}

	first := g.Register(spec)
	second := g.Register(spec)

	if first.ID != second.ID {
		t.Errorf("Expected dedupe to return same record, got %s and %s", first.ID, second.ID)
	}

	if got := len(g.ActiveQuarantines()); got != 1 {
		t.Errorf("Expected 1 active quarantine, got %d", got)
	}
}

func TestRegister_NewRecordAfterRelease(t *testing.T) {
	g := newTestRegistry()

	spec := Spec{
		Kind:      KindWorker,
		Reason:    "heartbeat timeout",
		DedupeKey: "heartbeat:worker-1:worker",
		Metadata:  map[string]string{MetaEntityID: "worker-1"},
	}

	first := g.Register(spec)
	if _, rerr := g.Release(first.ID, ReleaseRequest{Actor: "operator"}); rerr != nil {
		t.Fatalf("Release failed: %v", rerr)
	}

	second := g.Register(spec)
	if first.ID == second.ID {
		t.Error("Expected a fresh record after the dedupe holder was released")
	}
}

func TestRegister_CooldownStamped(t *testing.T) {
	g := newTestRegistry()

	rec := g.Register(Spec{
		Kind:       KindGeneric,
		Reason:     "test",
		CooldownMs: 60_000,
	})

	if rec.CooldownUntilMs <= rec.RegisteredAtMs {
		t.Errorf("Expected cooldown after registration time, got %d <= %d",
			rec.CooldownUntilMs, rec.RegisteredAtMs)
	}
}

func TestRelease_NotFound(t *testing.T) {
	g := newTestRegistry()

	_, rerr := g.Release("quarantine-missing", ReleaseRequest{Actor: "operator"})
	if rerr == nil {
		t.Fatal("Expected denial for unknown id")
	}
	if rerr.Reason != DenialNotFound {
		t.Errorf("Expected not_found, got %s", rerr.Reason)
	}
}

func TestRelease_IntegrityOnlyGate(t *testing.T) {
	g := newTestRegistry()

	rec := g.Register(Spec{Kind: KindWorker, Reason: "not integrity"})

	_, rerr := g.Release(rec.ID, ReleaseRequest{Actor: "operator", IntegrityOnly: true})
	if rerr == nil {
		t.Fatal("Expected denial for integrity-only release of non-integrity record")
	}
	if rerr.Reason != DenialNotIntegrity {
		t.Errorf("Expected not_integrity, got %s", rerr.Reason)
	}

	// The record must remain active.
	if got := len(g.ActiveQuarantines()); got != 1 {
		t.Errorf("Expected record still active, got %d active", got)
	}
}

func TestRelease_IntegrityRecordViaOperatorPath(t *testing.T) {
	g := newTestRegistry()

	rec := g.Register(Spec{
		Kind:             KindPolicy,
		Reason:           "state hash mismatch",
		IntegrityFailure: true,
	})

	released, rerr := g.Release(rec.ID, ReleaseRequest{
		Actor:         "operator:alice",
		ReleaseNote:   "verified and re-seeded",
		IntegrityOnly: true,
	})
	if rerr != nil {
		t.Fatalf("Operator release failed: %v", rerr)
	}
	if released.ReleasedBy != "operator:alice" {
		t.Errorf("Expected releasedBy operator:alice, got %s", released.ReleasedBy)
	}
	if released.Active() {
		t.Error("Expected record to be released")
	}
}

func TestRelease_AlreadyReleased(t *testing.T) {
	g := newTestRegistry()

	rec := g.Register(Spec{Kind: KindGeneric, Reason: "test"})
	if _, rerr := g.Release(rec.ID, ReleaseRequest{Actor: "operator"}); rerr != nil {
		t.Fatalf("First release failed: %v", rerr)
	}

	_, rerr := g.Release(rec.ID, ReleaseRequest{Actor: "operator"})
	if rerr == nil || rerr.Reason != DenialNotReleased {
		t.Errorf("Expected not_released on double release, got %v", rerr)
	}
}

func TestRelease_CooldownNotElapsed(t *testing.T) {
	g := newTestRegistry()

	rec := g.Register(Spec{
		Kind:       KindWorker,
		Reason:     "test",
		CooldownMs: 60_000,
	})

	_, rerr := g.Release(rec.ID, ReleaseRequest{Actor: "operator"})
	if rerr == nil || rerr.Reason != DenialNotReleased {
		t.Errorf("Expected not_released inside cooldown, got %v", rerr)
	}
}

func TestAutoRecoveryCandidates_Filtering(t *testing.T) {
	g := newTestRegistry()

	eligible := g.Register(Spec{
		Kind:            KindWorker,
		Reason:          "heartbeat timeout",
		AutoRecoverable: true,
		Metadata:        map[string]string{MetaEntityID: "worker-1"},
	})
	g.Register(Spec{ // integrity: never a candidate
		Kind:             KindWorker,
		Reason:           "tamper detected",
		IntegrityFailure: true,
		AutoRecoverable:  true,
		Metadata:         map[string]string{MetaEntityID: "worker-1"},
	})
	g.Register(Spec{ // other entity
		Kind:            KindWorker,
		Reason:          "heartbeat timeout",
		AutoRecoverable: true,
		Metadata:        map[string]string{MetaEntityID: "worker-2"},
	})
	g.Register(Spec{ // cooldown still pending
		Kind:            KindWorker,
		Reason:          "heartbeat timeout",
		AutoRecoverable: true,
		CooldownMs:      60_000,
		Metadata:        map[string]string{MetaEntityID: "worker-1"},
	})
	g.Register(Spec{ // not auto-recoverable
		Kind:     KindWorker,
		Reason:   "manual isolation",
		Metadata: map[string]string{MetaEntityID: "worker-1"},
	})

	candidates := g.AutoRecoveryCandidates("worker-1", g.clock.NowMs())
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].ID != eligible.ID {
		t.Errorf("Expected candidate %s, got %s", eligible.ID, candidates[0].ID)
	}
}

func TestIncrementWorkerFailure_Window(t *testing.T) {
	g := newTestRegistry()

	// Three failures inside the window reach the threshold.
	var res CountResult
	for i := 0; i < 3; i++ {
		res = g.IncrementWorkerFailure("worker-1", 3, 60_000)
	}
	if res.Count != 3 || !res.Exceeded {
		t.Errorf("Expected count 3 exceeded, got %+v", res)
	}

	// With a zero-width window every prior failure has aged out, so the
	// count never accumulates.
	for i := 0; i < 5; i++ {
		res = g.IncrementWorkerFailure("worker-2", 3, 1)
	}
	if res.Exceeded {
		t.Errorf("Expected failures outside window not to accumulate, got %+v", res)
	}
}

func TestHealthyStreak_ResetByFailureSignals(t *testing.T) {
	g := newTestRegistry()

	g.IncrementHealthyCycle("worker-1")
	g.IncrementHealthyCycle("worker-1")
	if got := g.HealthyStreak("worker-1"); got != 2 {
		t.Fatalf("Expected streak 2, got %d", got)
	}

	g.IncrementWorkerFailure("worker-1", 3, 60_000)
	if got := g.HealthyStreak("worker-1"); got != 0 {
		t.Errorf("Expected streak reset by failure, got %d", got)
	}

	g.IncrementHealthyCycle("worker-1")
	g.IncrementHeartbeatMiss("worker-1", 3)
	if got := g.HealthyStreak("worker-1"); got != 0 {
		t.Errorf("Expected streak reset by heartbeat miss, got %d", got)
	}
}

func TestResetFailureSignals_ClearsCountersAndConditions(t *testing.T) {
	g := newTestRegistry()

	g.IncrementHeartbeatMiss("worker-1", 3)
	g.IncrementWorkerFailure("worker-1", 3, 60_000)
	g.ActivateCondition(ConditionSpec{
		Code:     CodeHeartbeatLoss,
		Message:  "no heartbeat",
		Metadata: map[string]string{MetaEntityID: "worker-1"},
	})
	g.ActivateCondition(ConditionSpec{
		Code:     CodeHeartbeatLoss,
		Message:  "no heartbeat",
		Metadata: map[string]string{MetaEntityID: "worker-2"},
	})

	g.ResetFailureSignals("worker-1")

	res := g.IncrementHeartbeatMiss("worker-1", 3)
	if res.Count != 1 {
		t.Errorf("Expected miss counter restarted at 1, got %d", res.Count)
	}

	conds := g.ActiveConditions()
	if len(conds) != 1 {
		t.Fatalf("Expected only worker-2 condition to survive, got %d", len(conds))
	}
	if conds[0].Metadata[MetaEntityID] != "worker-2" {
		t.Errorf("Expected surviving condition for worker-2, got %s", conds[0].Metadata[MetaEntityID])
	}
}

func TestActivateCondition_UpsertPerEntity(t *testing.T) {
	g := newTestRegistry()

	g.ActivateCondition(ConditionSpec{
		Code:     CodeWorkerRestartThreshold,
		Message:  "first",
		Metadata: map[string]string{MetaEntityID: "worker-1"},
	})
	g.ActivateCondition(ConditionSpec{
		Code:     CodeWorkerRestartThreshold,
		Message:  "second",
		Metadata: map[string]string{MetaEntityID: "worker-1"},
	})

	conds := g.ActiveConditions()
	if len(conds) != 1 {
		t.Fatalf("Expected condition upsert, got %d conditions", len(conds))
	}
	if conds[0].Message != "second" {
		t.Errorf("Expected refreshed message, got %s", conds[0].Message)
	}
}

func TestActiveQuarantines_ReturnsCopies(t *testing.T) {
	g := newTestRegistry()

	g.Register(Spec{
		Kind:     KindWorker,
		Reason:   "test",
		Metadata: map[string]string{MetaEntityID: "worker-1"},
	})

	snapshot := g.ActiveQuarantines()
	snapshot[0].Metadata[MetaEntityID] = "tampered"
	snapshot[0].Reason = "tampered"

	fresh := g.ActiveQuarantines()
	if fresh[0].Metadata[MetaEntityID] != "worker-1" || fresh[0].Reason != "test" {
		t.Error("Registry state was mutated through a snapshot")
	}
}
