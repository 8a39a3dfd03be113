package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mode is the table-level lock level a statement holds: READ while planning
// and scanning, WRITE once it starts mutating rows (§4.4 steps 1-2).
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "WRITE"
	}
	return "READ"
}

type tableLock struct {
	mutex   sync.Mutex
	readers int
	writer  bool
}

// TableLocks is a registry of table-level locks keyed by table name; zero
// value is ready to use. Escalating from READ to WRITE in place (the same
// statement that holds a READ lock asking for WRITE) succeeds immediately
// when no other reader is present, matching engine/fatlock's "already have
// the object locked at a sufficient level" shortcut.
type TableLocks struct {
	mutex sync.Mutex
	locks map[string]*tableLock
	held  map[string]map[string]Mode // table -> holder -> mode held
}

func (tl *TableLocks) lockFor(table string) *tableLock {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	if tl.locks == nil {
		tl.locks = map[string]*tableLock{}
		tl.held = map[string]map[string]Mode{}
	}
	lk, ok := tl.locks[table]
	if !ok {
		lk = &tableLock{}
		tl.locks[table] = lk
	}
	return lk
}

// Lock acquires mode on table for holder, blocking until ctx is done.
// holder is any string identifying the requesting statement/transaction
// (e.g. a session id); re-locking at a higher mode by the same holder
// escalates rather than deadlocking.
func (tl *TableLocks) Lock(ctx context.Context, holder, table string, mode Mode) error {
	lk := tl.lockFor(table)

	tl.mutex.Lock()
	heldModes := tl.held[table]
	if heldModes == nil {
		heldModes = map[string]Mode{}
		tl.held[table] = heldModes
	}
	cur, already := heldModes[holder]
	tl.mutex.Unlock()

	if already && cur >= mode {
		return nil
	}

	for {
		lk.mutex.Lock()
		switch mode {
		case Read:
			if !lk.writer {
				lk.readers++
				lk.mutex.Unlock()
				tl.record(table, holder, mode)
				return nil
			}
		case Write:
			if !lk.writer && (lk.readers == 0 || (already && lk.readers == 1)) {
				lk.writer = true
				if already {
					lk.readers = 0
				}
				lk.mutex.Unlock()
				tl.record(table, holder, mode)
				return nil
			}
		}
		lk.mutex.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("lock: table %s: %w", table, ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}
}

func (tl *TableLocks) record(table, holder string, mode Mode) {
	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	tl.held[table][holder] = mode
}

// Unlock releases every lock holder has on table.
func (tl *TableLocks) Unlock(holder, table string) {
	tl.mutex.Lock()
	mode, ok := tl.held[table][holder]
	if ok {
		delete(tl.held[table], holder)
	}
	tl.mutex.Unlock()
	if !ok {
		return
	}

	lk := tl.lockFor(table)
	lk.mutex.Lock()
	defer lk.mutex.Unlock()
	if mode == Write {
		lk.writer = false
	} else if lk.readers > 0 {
		lk.readers--
	}
}
