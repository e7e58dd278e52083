// Package quarantine owns quarantine records, unsafe-condition activation,
// and the per-entity failure/heartbeat/healthy-cycle counters the
// supervisor escalates on. All state is entity-scoped and mutex-guarded;
// accessors hand out copies, never live references.
package quarantine

import (
	"sync"

	"github.com/psantana5/sentinel/pkg/clock"
)

// entityCounters tracks failure signals for one entity. The worker-failure
// counter is windowed: it keeps raw timestamps and drops entries older
// than the window before each increment (timestamp list, not a ring
// buffer, since thresholds are small).
type entityCounters struct {
	heartbeatMisses int
	failureTimesMs  []int64
	healthyStreak   int
}

// Registry is the quarantine registry and unsafe-condition tracker.
type Registry struct {
	clock *clock.Clock

	mu         sync.Mutex
	records    map[string]*Record // by quarantine id
	byDedupe   map[string]string  // dedupe key -> record id
	conditions map[string]*Condition
	entities   map[string]*entityCounters
}

// NewRegistry creates an empty registry using the given clock for all
// timestamps and identifiers.
func NewRegistry(c *clock.Clock) *Registry {
	return &Registry{
		clock:      c,
		records:    make(map[string]*Record),
		byDedupe:   make(map[string]string),
		conditions: make(map[string]*Condition),
		entities:   make(map[string]*entityCounters),
	}
}

// Register creates a quarantine record, or returns the existing active
// record when the spec's dedupe key is already held by one. Registration
// is idempotent per root cause: no orphan duplicates.
func (g *Registry) Register(spec Spec) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	if spec.DedupeKey != "" {
		if id, ok := g.byDedupe[spec.DedupeKey]; ok {
			if rec, ok := g.records[id]; ok && rec.Active() {
				return copyRecord(rec)
			}
		}
	}

	id, now := g.clock.VersionStamp("quarantine")
	rec := &Record{
		ID:               id,
		Kind:             spec.Kind,
		Reason:           spec.Reason,
		IntegrityFailure: spec.IntegrityFailure,
		AutoRecoverable:  spec.AutoRecoverable,
		DedupeKey:        spec.DedupeKey,
		Metadata:         copyMetadata(spec.Metadata),
		RegisteredAtMs:   now,
	}
	if spec.CooldownMs > 0 {
		rec.CooldownUntilMs = now + spec.CooldownMs
	}

	g.records[id] = rec
	if spec.DedupeKey != "" {
		g.byDedupe[spec.DedupeKey] = id
	}
	return copyRecord(rec)
}

// Release stamps a record released. It returns a typed denial instead of
// succeeding when the id is unknown (not_found), when IntegrityOnly is set
// but the record is not an integrity failure (not_integrity), or when the
// record is already released or still inside its cooldown (not_released).
func (g *Registry) Release(id string, req ReleaseRequest) (*Record, *ReleaseError) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok {
		return nil, &ReleaseError{QuarantineID: id, Reason: DenialNotFound}
	}
	if req.IntegrityOnly && !rec.IntegrityFailure {
		return nil, &ReleaseError{
			QuarantineID: id,
			Reason:       DenialNotIntegrity,
			Detail:       "integrity-only release against a non-integrity record",
		}
	}
	if !rec.Active() {
		return nil, &ReleaseError{
			QuarantineID: id,
			Reason:       DenialNotReleased,
			Detail:       "record already released",
		}
	}

	now := g.clock.NowMs()
	if rec.CooldownUntilMs > 0 && now < rec.CooldownUntilMs {
		return nil, &ReleaseError{
			QuarantineID: id,
			Reason:       DenialNotReleased,
			Detail:       "cooldown has not elapsed",
		}
	}

	rec.ReleasedAtMs = now
	rec.ReleasedBy = req.Actor
	rec.ReleaseNote = req.ReleaseNote
	if rec.DedupeKey != "" {
		delete(g.byDedupe, rec.DedupeKey)
	}
	return copyRecord(rec), nil
}

// Get returns a copy of a record by id.
func (g *Registry) Get(id string) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok {
		return nil, false
	}
	return copyRecord(rec), true
}

// ActiveQuarantines returns copies of all non-released records.
func (g *Registry) ActiveQuarantines() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Record, 0, len(g.records))
	for _, rec := range g.records {
		if rec.Active() {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

// AutoRecoveryCandidates returns active records eligible for automatic
// release on behalf of entityID at nowMs: never integrity failures, only
// auto-recoverable records whose metadata names the entity, and only once
// any cooldown has elapsed.
func (g *Registry) AutoRecoveryCandidates(entityID string, nowMs int64) []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*Record
	for _, rec := range g.records {
		if !rec.Active() || rec.IntegrityFailure || !rec.AutoRecoverable {
			continue
		}
		if rec.EntityID() != entityID {
			continue
		}
		if rec.CooldownUntilMs > 0 && nowMs < rec.CooldownUntilMs {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	return out
}

// ActivateCondition appends or refreshes an unsafe condition, keyed by
// code plus the entity named in its metadata.
func (g *Registry) ActivateCondition(spec ConditionSpec) *Condition {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := spec.Code + "|" + spec.Metadata[MetaEntityID]
	cond := &Condition{
		Code:          spec.Code,
		Message:       spec.Message,
		Metadata:      copyMetadata(spec.Metadata),
		QuarantineID:  spec.QuarantineID,
		ActivatedAtMs: g.clock.NowMs(),
	}
	g.conditions[key] = cond
	return copyCondition(cond)
}

// ActiveConditions returns copies of all standing unsafe conditions.
func (g *Registry) ActiveConditions() []*Condition {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Condition, 0, len(g.conditions))
	for _, cond := range g.conditions {
		out = append(out, copyCondition(cond))
	}
	return out
}

// IncrementHeartbeatMiss bumps the heartbeat-miss counter for an entity.
// A miss is a failure signal, so the healthy streak resets.
func (g *Registry) IncrementHeartbeatMiss(entityID string, threshold int) CountResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent := g.entity(entityID)
	ent.heartbeatMisses++
	ent.healthyStreak = 0
	return CountResult{
		Count:    ent.heartbeatMisses,
		Exceeded: threshold > 0 && ent.heartbeatMisses >= threshold,
	}
}

// IncrementWorkerFailure bumps the rolling worker-failure counter.
// Failures older than windowMs are dropped before the increment, so the
// count only reflects the recent window.
func (g *Registry) IncrementWorkerFailure(entityID string, threshold int, windowMs int64) CountResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMs()
	ent := g.entity(entityID)

	if windowMs > 0 {
		cutoff := now - windowMs
		kept := ent.failureTimesMs[:0]
		for _, ts := range ent.failureTimesMs {
			if ts >= cutoff {
				kept = append(kept, ts)
			}
		}
		ent.failureTimesMs = kept
	}

	ent.failureTimesMs = append(ent.failureTimesMs, now)
	ent.healthyStreak = 0
	count := len(ent.failureTimesMs)
	return CountResult{
		Count:    count,
		Exceeded: threshold > 0 && count >= threshold,
	}
}

// IncrementHealthyCycle bumps and returns the entity's healthy-cycle streak.
func (g *Registry) IncrementHealthyCycle(entityID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent := g.entity(entityID)
	ent.healthyStreak++
	return ent.healthyStreak
}

// HealthyStreak returns the current streak without modifying it.
func (g *Registry) HealthyStreak(entityID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent, ok := g.entities[entityID]
	if !ok {
		return 0
	}
	return ent.healthyStreak
}

// ResetFailureSignals zeroes all counters for an entity and clears its
// standing unsafe conditions. Called after a successful auto-recovery.
func (g *Registry) ResetFailureSignals(entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entities, entityID)
	for key, cond := range g.conditions {
		if cond.Metadata[MetaEntityID] == entityID {
			delete(g.conditions, key)
		}
	}
}

// entity returns the counter block for entityID, creating it on first use.
// Caller must hold g.mu.
func (g *Registry) entity(entityID string) *entityCounters {
	ent, ok := g.entities[entityID]
	if !ok {
		ent = &entityCounters{}
		g.entities[entityID] = ent
	}
	return ent
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.Metadata = copyMetadata(rec.Metadata)
	return &out
}

func copyCondition(cond *Condition) *Condition {
	out := *cond
	out.Metadata = copyMetadata(cond.Metadata)
	return &out
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
