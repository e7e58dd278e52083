package quarantine

import "fmt"

// Kind classifies a quarantine record.
type Kind string

const (
	KindWorker  Kind = "worker"
	KindPolicy  Kind = "policy"
	KindGeneric Kind = "generic"
)

// Well-known unsafe condition codes.
const (
	CodeHeartbeatLoss          = "INTERPRETER_HEARTBEAT_LOSS"
	CodeWorkerRestartThreshold = "WORKER_RESTART_THRESHOLD"
)

// Metadata keys the registry relies on. Using constants here keeps dedupe
// and auto-recovery matching safe from key typos.
const (
	MetaEntityID = "entity_id"
	MetaCategory = "category"
)

// Record is a durable (in-memory) isolation marker for an entity.
type Record struct {
	ID               string            `json:"id"`
	Kind             Kind              `json:"kind"`
	Reason           string            `json:"reason"`
	IntegrityFailure bool              `json:"integrity_failure"`
	AutoRecoverable  bool              `json:"auto_recoverable"`
	CooldownUntilMs  int64             `json:"cooldown_until_ms,omitempty"`
	DedupeKey        string            `json:"dedupe_key,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	RegisteredAtMs   int64             `json:"registered_at_ms"`
	ReleasedAtMs     int64             `json:"released_at_ms,omitempty"`
	ReleasedBy       string            `json:"released_by,omitempty"`
	ReleaseNote      string            `json:"release_note,omitempty"`
}

// Active reports whether the record has not been released.
func (r *Record) Active() bool {
	return r.ReleasedAtMs == 0
}

// EntityID returns the owning entity recorded in metadata, if any.
func (r *Record) EntityID() string {
	return r.Metadata[MetaEntityID]
}

// Spec describes a quarantine to register.
type Spec struct {
	Kind             Kind
	Reason           string
	IntegrityFailure bool
	AutoRecoverable  bool
	CooldownMs       int64
	DedupeKey        string
	Metadata         map[string]string
}

// Condition is a standing alarm flag, optionally linked to a quarantine.
// Conditions accumulate; they are cleared only by ResetFailureSignals for
// the owning entity, never by time alone.
type Condition struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	QuarantineID  string            `json:"quarantine_id,omitempty"`
	ActivatedAtMs int64             `json:"activated_at_ms"`
}

// ConditionSpec describes an unsafe condition to activate.
type ConditionSpec struct {
	Code         string
	Message      string
	Metadata     map[string]string
	QuarantineID string
}

// ReleaseRequest carries the context of a release attempt.
type ReleaseRequest struct {
	Actor       string
	ReleaseNote string
	// IntegrityOnly restricts the release to integrity-flagged records.
	// The operator surface sets this so a generic release path can never
	// clear an integrity failure by accident.
	IntegrityOnly bool
}

// Release denial reasons.
type DenialReason string

const (
	DenialNotFound     DenialReason = "not_found"
	DenialNotIntegrity DenialReason = "not_integrity"
	DenialNotReleased  DenialReason = "not_released"
)

// ReleaseError is a typed release failure. It is a policy outcome, not a
// programming error, so callers are expected to branch on Reason.
type ReleaseError struct {
	QuarantineID string
	Reason       DenialReason
	Detail       string
}

func (e *ReleaseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("release of %s denied (%s): %s", e.QuarantineID, e.Reason, e.Detail)
	}
	return fmt.Sprintf("release of %s denied (%s)", e.QuarantineID, e.Reason)
}

// CountResult reports a counter value and whether its threshold was reached.
type CountResult struct {
	Count    int
	Exceeded bool
}
