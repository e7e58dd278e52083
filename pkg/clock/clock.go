// Package clock provides a process-wide monotonic millisecond clock and
// collision-resistant version identifiers.
//
// The wall clock is only read once, at construction. After that all
// timestamps are derived from Go's monotonic elapsed-time reading, so a
// wall-clock jump (NTP step, manual reset) can never move the clock
// backward. When the computed value would not be strictly greater than the
// last value handed out (coarse timer resolution, rapid calls), the clock
// forces a +1 increment instead.
package clock

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Clock produces strictly increasing millisecond timestamps. Safe for
// concurrent use. A Clock never fails; it only guarantees ordering.
type Clock struct {
	mu       sync.Mutex
	baseMs   int64     // wall clock at construction
	start    time.Time // monotonic reference
	lastMs   int64
	sequence uint64
}

// New creates a Clock anchored to the current wall time.
func New() *Clock {
	now := time.Now()
	return &Clock{
		baseMs: now.UnixMilli(),
		start:  now,
	}
}

// NowMs returns a millisecond timestamp strictly greater than every value
// previously returned by this Clock.
func (c *Clock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

// nowLocked computes the next timestamp. Caller must hold c.mu.
func (c *Clock) nowLocked() int64 {
	// time.Since uses the monotonic reading of c.start, immune to
	// wall-clock adjustments.
	ms := c.baseMs + time.Since(c.start).Milliseconds()
	if ms <= c.lastMs {
		ms = c.lastMs + 1
	}
	c.lastMs = ms
	return ms
}

// VersionID returns a unique identifier of the form
// "<prefix>-<timestampMs>-<sequence>-<entropy>". The sequence counter
// guards against collisions within the same millisecond; the entropy
// suffix guards against collisions across process restarts.
func (c *Clock) VersionID(prefix string) string {
	id, _ := c.VersionStamp(prefix)
	return id
}

// VersionStamp returns a version identifier together with the timestamp it
// embeds. Both are derived from the same tick, so callers never observe
// skew between the id and the timestamp.
func (c *Clock) VersionStamp(prefix string) (string, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.nowLocked()
	c.sequence++
	return fmt.Sprintf("%s-%d-%d-%s", prefix, ms, c.sequence, entropy()), ms
}

// entropy returns a short random hex suffix.
func entropy() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to the nanosecond clock rather than panic.
		return strconv.FormatInt(time.Now().UnixNano()&0xffffffff, 16)
	}
	return hex.EncodeToString(b)
}
