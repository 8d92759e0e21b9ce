package bot

import "sync"

type userLock struct {
	sync.Mutex
	refs int
}

// userLocks hands out one mutex per user while any update of that user is in flight.
// A lock is dropped when its last holder releases it.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*userLock)
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of users with updates in flight
func (l *userLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
