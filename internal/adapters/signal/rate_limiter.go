package signal

import (
	"sync"
	"time"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// RoomRateLimiter bounds how many signal messages a room may send per
// sliding window. Excess messages are dropped, not queued.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.RoomKey][]time.Time
	limit    int
	interval time.Duration
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.RoomKey][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RoomRateLimiter) Allow(room domain.RoomKey) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[room]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[room] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[room] = fresh
	return true
}

// Forget drops a room's window, typically on session close.
func (rl *RoomRateLimiter) Forget(room domain.RoomKey) {
	rl.mu.Lock()
	delete(rl.history, room)
	rl.mu.Unlock()
}
