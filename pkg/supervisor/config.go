package supervisor

import "time"

// Config carries the escalation policy knobs. They are read once at
// construction; the supervisor does not hot-reload them.
type Config struct {
	// HeartbeatTimeout is how long a cycle may go without a heartbeat
	// before it is treated as missed.
	HeartbeatTimeout time.Duration

	// HeartbeatMissThreshold is the per-entity miss count at which a
	// missed heartbeat is escalated from warn to error severity.
	HeartbeatMissThreshold int

	// HealthyCyclesToRecover is the consecutive-completion streak required
	// before auto-recovery will release eligible quarantines.
	HealthyCyclesToRecover int

	// QuarantineCooldown is the minimum age a heartbeat quarantine must
	// reach before any release is allowed.
	QuarantineCooldown time.Duration

	// WorkerRestartThreshold is the number of failures inside
	// WorkerRestartWindow that raises the WORKER_RESTART_THRESHOLD
	// condition, blocking further automatic restarts.
	WorkerRestartThreshold int
	WorkerRestartWindow    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:       30 * time.Second,
		HeartbeatMissThreshold: 3,
		HealthyCyclesToRecover: 3,
		QuarantineCooldown:     5 * time.Minute,
		WorkerRestartThreshold: 5,
		WorkerRestartWindow:    10 * time.Minute,
	}
}
