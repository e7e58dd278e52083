// Package supervisor implements the heartbeat-driven watchdog over
// background execution cycles. A caller begins a cycle, signals heartbeats
// while it runs, and completes or fails it; if the heartbeat timer fires
// first, the supervisor escalates through the quarantine registry and
// removes the cycle. Sustained healthy completions drive auto-recovery of
// eligible quarantines.
//
// Cycle state machine: armed -> (heartbeat)* -> completed | failed |
// missed->quarantined. No cycle leaves a terminal state: a heartbeat,
// completion, or failure for an unknown cycle id is a safe no-op, since
// the timer and caller paths race legitimately.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/sentinel/pkg/audit"
	"github.com/psantana5/sentinel/pkg/clock"
	"github.com/psantana5/sentinel/pkg/quarantine"
)

// AutoRecoveryActor is stamped on quarantines released by the supervisor's
// own recovery path.
const AutoRecoveryActor = "interpreter-supervisor:auto-recovery"

// Category classifies the kind of work a cycle supervises.
type Category string

const (
	CategoryWorker      Category = "worker"
	CategoryPolicy      Category = "policy"
	CategoryInterpreter Category = "interpreter"
)

// CycleOptions configure a new cycle.
type CycleOptions struct {
	Category Category
	Metadata map[string]string
}

// CycleInfo is a point-in-time snapshot of a live cycle.
type CycleInfo struct {
	ID              string            `json:"id"`
	EntityID        string            `json:"entity_id"`
	Category        Category          `json:"category"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	StartedAtMs     int64             `json:"started_at_ms"`
	LastHeartbeatMs int64             `json:"last_heartbeat_ms"`
}

// cycle is an in-flight supervised unit of work. At most one timer is
// armed per cycle; timerGen invalidates stale timer callbacks that lost
// the race against a heartbeat or a terminal transition.
type cycle struct {
	id              string
	entityID        string
	category        Category
	metadata        map[string]string
	startedAtMs     int64
	lastHeartbeatMs int64
	timer           *time.Timer
	timerGen        uint64
}

// Supervisor orchestrates cycle lifecycle and failure escalation. One
// instance holds all cycle state; construct it once per process and share
// it by reference.
type Supervisor struct {
	cfg      Config
	clock    *clock.Clock
	registry *quarantine.Registry
	sink     audit.Sink

	mu     sync.Mutex
	cycles map[string]*cycle
}

// New creates a Supervisor with the given policy, clock, registry, and
// audit sink.
func New(cfg Config, clk *clock.Clock, reg *quarantine.Registry, sink audit.Sink) *Supervisor {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Supervisor{
		cfg:      cfg,
		clock:    clk,
		registry: reg,
		sink:     sink,
		cycles:   make(map[string]*cycle),
	}
}

// Registry exposes the quarantine registry backing this supervisor.
func (s *Supervisor) Registry() *quarantine.Registry {
	return s.registry
}

// BeginCycle creates a cycle for an entity, arms its heartbeat timer, and
// returns the cycle id.
func (s *Supervisor) BeginCycle(entityID string, opts CycleOptions) string {
	if opts.Category == "" {
		opts.Category = CategoryWorker
	}

	id, now := s.clock.VersionStamp("cycle")
	c := &cycle{
		id:              id,
		entityID:        entityID,
		category:        opts.Category,
		metadata:        opts.Metadata,
		startedAtMs:     now,
		lastHeartbeatMs: now,
	}

	s.mu.Lock()
	s.cycles[id] = c
	s.armTimerLocked(c)
	s.mu.Unlock()

	s.sink.Emit(audit.Event{
		Event:    audit.EventCycleStarted,
		Severity: audit.SeverityInfo,
		Details: map[string]interface{}{
			"cycle_id":  id,
			"entity_id": entityID,
			"category":  string(opts.Category),
		},
	})
	return id
}

// Heartbeat records liveness for a cycle and re-arms its timer. It returns
// false when the cycle is unknown or already terminal; a stale heartbeat
// never resurrects a finished cycle.
func (s *Supervisor) Heartbeat(cycleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cycles[cycleID]
	if !ok {
		return false
	}

	c.lastHeartbeatMs = s.clock.NowMs()
	s.armTimerLocked(c)
	return true
}

// CompleteCycle finishes a cycle successfully, cancels its timer, and
// feeds the entity's healthy streak into auto-recovery. Returns false if
// the cycle is unknown.
func (s *Supervisor) CompleteCycle(cycleID string) bool {
	c, ok := s.takeCycle(cycleID)
	if !ok {
		return false
	}

	durationMs := s.clock.NowMs() - c.startedAtMs
	s.sink.Emit(audit.Event{
		Event:    audit.EventCycleCompleted,
		Severity: audit.SeverityInfo,
		Details: map[string]interface{}{
			"cycle_id":    c.id,
			"entity_id":   c.entityID,
			"category":    string(c.category),
			"duration_ms": durationMs,
		},
	})

	s.tryAutoRecover(c.entityID)
	return true
}

// FailCycle finishes a cycle as failed and counts it against the entity's
// rolling failure window. Failures never feed auto-recovery. Returns false
// if the cycle is unknown.
func (s *Supervisor) FailCycle(cycleID, reason string) bool {
	c, ok := s.takeCycle(cycleID)
	if !ok {
		return false
	}

	res := s.registry.IncrementWorkerFailure(
		c.entityID, s.cfg.WorkerRestartThreshold, s.cfg.WorkerRestartWindow.Milliseconds())
	if res.Exceeded {
		s.registry.ActivateCondition(quarantine.ConditionSpec{
			Code:    quarantine.CodeWorkerRestartThreshold,
			Message: fmt.Sprintf("%d failures for %s within %s", res.Count, c.entityID, s.cfg.WorkerRestartWindow),
			Metadata: map[string]string{
				quarantine.MetaEntityID: c.entityID,
				quarantine.MetaCategory: string(c.category),
			},
		})
	}

	s.sink.Emit(audit.Event{
		Event:    audit.EventCycleFailed,
		Severity: audit.SeverityWarn,
		Details: map[string]interface{}{
			"cycle_id":          c.id,
			"entity_id":         c.entityID,
			"category":          string(c.category),
			"reason":            reason,
			"failure_count":     res.Count,
			"restarts_exceeded": res.Exceeded,
		},
	})
	return true
}

// handleMissedHeartbeat is fired only by a cycle's timer. It escalates the
// miss into counters, a dedup'd auto-recoverable quarantine, and unsafe
// conditions, then removes the cycle.
func (s *Supervisor) handleMissedHeartbeat(cycleID string, gen uint64) {
	s.mu.Lock()
	c, ok := s.cycles[cycleID]
	if !ok || c.timerGen != gen {
		// Lost the race against a heartbeat or a terminal transition.
		s.mu.Unlock()
		return
	}
	delete(s.cycles, cycleID)
	s.mu.Unlock()

	missRes := s.registry.IncrementHeartbeatMiss(c.entityID, s.cfg.HeartbeatMissThreshold)
	failRes := s.registry.IncrementWorkerFailure(
		c.entityID, s.cfg.WorkerRestartThreshold, s.cfg.WorkerRestartWindow.Milliseconds())

	rec := s.registry.Register(quarantine.Spec{
		Kind:            kindForCategory(c.category),
		Reason:          fmt.Sprintf("missed heartbeat after %s", s.cfg.HeartbeatTimeout),
		AutoRecoverable: true,
		CooldownMs:      s.cfg.QuarantineCooldown.Milliseconds(),
		DedupeKey:       fmt.Sprintf("heartbeat:%s:%s", c.entityID, c.category),
		Metadata: map[string]string{
			quarantine.MetaEntityID: c.entityID,
			quarantine.MetaCategory: string(c.category),
		},
	})

	s.registry.ActivateCondition(quarantine.ConditionSpec{
		Code:         quarantine.CodeHeartbeatLoss,
		Message:      fmt.Sprintf("no heartbeat from %s for %s", c.entityID, s.cfg.HeartbeatTimeout),
		QuarantineID: rec.ID,
		Metadata: map[string]string{
			quarantine.MetaEntityID: c.entityID,
			quarantine.MetaCategory: string(c.category),
		},
	})

	if failRes.Exceeded {
		s.registry.ActivateCondition(quarantine.ConditionSpec{
			Code:    quarantine.CodeWorkerRestartThreshold,
			Message: fmt.Sprintf("%d failures for %s within %s", failRes.Count, c.entityID, s.cfg.WorkerRestartWindow),
			Metadata: map[string]string{
				quarantine.MetaEntityID: c.entityID,
				quarantine.MetaCategory: string(c.category),
			},
		})
	}

	severity := audit.SeverityWarn
	if missRes.Exceeded {
		severity = audit.SeverityError
	}
	s.sink.Emit(audit.Event{
		Event:    audit.EventHeartbeatMissed,
		Severity: severity,
		Details: map[string]interface{}{
			"cycle_id":      c.id,
			"entity_id":     c.entityID,
			"category":      string(c.category),
			"miss_count":    missRes.Count,
			"failure_count": failRes.Count,
			"quarantine_id": rec.ID,
		},
	})
}

// RunSupervisedCycle wraps an arbitrary unit of work in a cycle. The work
// function receives a heartbeat callback it must invoke at a cadence
// safely below the heartbeat timeout. A heartbeat is signalled immediately
// before and after the work runs; the cycle completes on a nil error and
// fails otherwise. The work's own error is returned unmodified; a panic is
// recorded as a failure and re-raised.
func (s *Supervisor) RunSupervisedCycle(ctx context.Context, entityID string, opts CycleOptions, work func(ctx context.Context, heartbeat func() bool) error) error {
	id := s.BeginCycle(entityID, opts)
	heartbeat := func() bool { return s.Heartbeat(id) }

	defer func() {
		if r := recover(); r != nil {
			s.FailCycle(id, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	heartbeat()
	if err := work(ctx, heartbeat); err != nil {
		s.FailCycle(id, err.Error())
		return err
	}
	heartbeat()
	s.CompleteCycle(id)
	return nil
}

// tryAutoRecover credits a healthy completion and, once the streak reaches
// the configured threshold, releases every eligible quarantine for the
// entity and resets its failure signals. Recovery is gated by a streak
// rather than a single success to avoid flapping, and by cooldown to avoid
// thrashing right after a quarantine is raised. Integrity failures are
// never candidates; those take the operator release path.
func (s *Supervisor) tryAutoRecover(entityID string) {
	streak := s.registry.IncrementHealthyCycle(entityID)
	if streak < s.cfg.HealthyCyclesToRecover {
		return
	}

	now := s.clock.NowMs()
	for _, rec := range s.registry.AutoRecoveryCandidates(entityID, now) {
		released, rerr := s.registry.Release(rec.ID, quarantine.ReleaseRequest{
			Actor:       AutoRecoveryActor,
			ReleaseNote: fmt.Sprintf("%d consecutive healthy cycles", streak),
		})
		if rerr != nil {
			continue
		}
		s.sink.Emit(audit.Event{
			Event:    audit.EventAutoRecovery,
			Severity: audit.SeverityInfo,
			Details: map[string]interface{}{
				"entity_id":     entityID,
				"quarantine_id": released.ID,
				"reason":        released.Reason,
				"streak":        streak,
			},
		})
	}

	s.registry.ResetFailureSignals(entityID)
}

// ActiveCycles returns snapshots of all live cycles.
func (s *Supervisor) ActiveCycles() []CycleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CycleInfo, 0, len(s.cycles))
	for _, c := range s.cycles {
		info := CycleInfo{
			ID:              c.id,
			EntityID:        c.entityID,
			Category:        c.category,
			StartedAtMs:     c.startedAtMs,
			LastHeartbeatMs: c.lastHeartbeatMs,
		}
		if c.metadata != nil {
			info.Metadata = make(map[string]string, len(c.metadata))
			for k, v := range c.metadata {
				info.Metadata[k] = v
			}
		}
		out = append(out, info)
	}
	return out
}

// Shutdown cancels all pending timers and drops live cycles without
// escalation. Used on daemon exit so no timer fires into a torn-down
// process.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.cycles {
		if c.timer != nil {
			c.timer.Stop()
		}
		delete(s.cycles, id)
	}
}

// takeCycle removes and returns a cycle, cancelling its timer first.
// Whichever of the terminal paths gets here first wins; the loser sees
// ok=false.
func (s *Supervisor) takeCycle(cycleID string) (*cycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cycles[cycleID]
	if !ok {
		return nil, false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++ // invalidate a callback that already fired but has not run
	delete(s.cycles, cycleID)
	return c, true
}

func kindForCategory(c Category) quarantine.Kind {
	switch c {
	case CategoryWorker:
		return quarantine.KindWorker
	case CategoryPolicy:
		return quarantine.KindPolicy
	default:
		return quarantine.KindGeneric
	}
}

// armTimerLocked cancels any pending timer for the cycle and schedules a
// fresh one (never double-armed). Caller must hold s.mu.
func (s *Supervisor) armTimerLocked(c *cycle) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	id := c.id
	c.timer = time.AfterFunc(s.cfg.HeartbeatTimeout, func() {
		s.handleMissedHeartbeat(id, gen)
	})
}
