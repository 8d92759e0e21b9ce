package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per chat user
type userLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

func newUserLimiter(r rate.Limit, burst int) *userLimiter {
	return &userLimiter{
		visitors: make(map[int64]*visitor),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the user may send another update now.
// A nil limiter allows everything.
func (l *userLimiter) Allow(userID int64) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Prune forgets users that have been quiet for longer than idle
func (l *userLimiter) Prune(idle time.Duration) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	now := l.now()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, id)
			removed++
		}
	}
	return removed
}
