package engine

import (
	"sync"
	"time"

	"github.com/namelens/guildrest/internal/core"
)

// globalLock halts every bucket until resumeAt.
type globalLock struct {
	mu       sync.Mutex
	resumeAt time.Time
}

// lock extends the lock to until; it never shortens an active lock.
func (g *globalLock) lock(until time.Time) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.resumeAt) {
		g.resumeAt = until
	}
	return g.resumeAt
}

// active reports the resume deadline while the lock holds at now. An
// elapsed lock clears itself.
func (g *globalLock) active(now time.Time) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumeAt.IsZero() {
		return time.Time{}, false
	}
	if !now.Before(g.resumeAt) {
		g.resumeAt = time.Time{}
		return time.Time{}, false
	}
	return g.resumeAt, true
}

func (g *globalLock) snapshot(now time.Time) core.GlobalLockSnapshot {
	until, locked := g.active(now)
	if !locked {
		return core.GlobalLockSnapshot{}
	}
	return core.GlobalLockSnapshot{Locked: true, ResumeAt: &until}
}
