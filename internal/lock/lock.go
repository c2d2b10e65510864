// Package lock provides short leases that keep a periodic job from running in
// more than one process at a time.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker grants a lease on key for at most ttl. ok is false when someone else holds it.
// release is only set when ok is true and is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]time.Time), now: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, held := l.leases[key]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.leases[key] = until

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// An expired lease may have been taken over; leave the new holder alone.
			if l.leases[key].Equal(until) {
				delete(l.leases, key)
			}
		})
	}
	return release, true, nil
}
