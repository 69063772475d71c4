// Package ddclock implements the Display-Lock table: at most
// one "thread" inside the process may have a given IO-Path open at a time,
// with bounded-wait polling and owner-self-deadlock detection.
//
// Go has no native thread-identity primitive suitable for this (goroutines
// are not threads and expose no stable id), so callers pass an explicit
// Owner token instead — the Go-idiomatic substitute the design calls for
// ("re-architect process-wide thread signalling as an explicit context").
package ddclock

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/iopath"
)

// Owner identifies the logical caller ("thread") taking a lock. Zero is not
// a valid owner; always mint one with NewOwner.
type Owner uint64

var ownerSeq uint64

// NewOwner mints a process-unique owner token. Call once per logical
// worker (goroutine, CLI invocation, detection worker) and reuse it for
// every lock/unlock pair that worker issues.
func NewOwner() Owner {
	return Owner(atomic.AddUint64(&ownerSeq, 1))
}

// Token is returned by a successful Lock and is required to Unlock.
type Token struct {
	Path  iopath.Path
	Owner Owner
}

type record struct {
	excl sync.Mutex // the actual mutual-exclusion primitive

	meta  sync.Mutex // guards owner/held below; independent of excl so a
	owner Owner      // blocked Lock() can still be inspected for error
	held  bool       // messages without deadlocking on excl itself
}

// Table is the process-wide lock table. Records are created lazily and kept
// for the process lifetime (bounded by hardware monitor count).
type Table struct {
	mu      sync.Mutex
	records map[iopath.Path]*record

	maxWait      time.Duration
	pollInterval time.Duration
}

// New constructs a lock table with the given bounded-wait defaults (spec
// section4.2: 4000ms / 100ms unless the caller overrides them).
func New(maxWait, pollInterval time.Duration) *Table {
	if maxWait <= 0 {
		maxWait = 4000 * time.Millisecond
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Table{
		records:      make(map[iopath.Path]*record),
		maxWait:      maxWait,
		pollInterval: pollInterval,
	}
}

func (t *Table) recordFor(path iopath.Path) *record {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[path]
	if !ok {
		rec = &record{}
		t.records[path] = rec
	}
	return rec
}

// Lock acquires the record for path. If wait is true it blocks until
// acquired; otherwise it polls at the table's poll interval up to the
// table's max wait before failing with *ddcerrs.LockedError.
func (t *Table) Lock(path iopath.Path, owner Owner, wait bool) (Token, error) {
	rec := t.recordFor(path)

	rec.meta.Lock()
	if rec.held && rec.owner == owner {
		rec.meta.Unlock()
		return Token{}, &ddcerrs.AlreadyOpenError{IOPath: path.String()}
	}
	currentOwner := rec.owner
	rec.meta.Unlock()

	var acquired bool
	attempts := 1

	if wait {
		rec.excl.Lock()
		acquired = true
	} else {
		acquired = rec.excl.TryLock()
		deadline := time.Now().Add(t.maxWait)
		for !acquired && time.Now().Before(deadline) {
			time.Sleep(t.pollInterval)
			attempts++
			acquired = rec.excl.TryLock()
		}
	}

	if !acquired {
		return Token{}, &ddcerrs.LockedError{
			IOPath:       path.String(),
			OwnerThread:  ownerLabel(currentOwner),
			AttemptCount: attempts,
		}
	}

	rec.meta.Lock()
	rec.owner = owner
	rec.held = true
	rec.meta.Unlock()

	return Token{Path: path, Owner: owner}, nil
}

// Unlock releases a previously acquired lock. It fails with
// *ddcerrs.LockedError if the caller is not the recorded owner, without
// mutating the record.
func (t *Table) Unlock(path iopath.Path, owner Owner) error {
	t.mu.Lock()
	rec, ok := t.records[path]
	t.mu.Unlock()
	if !ok {
		return &ddcerrs.LockedError{IOPath: path.String(), OwnerThread: "none", AttemptCount: 0}
	}

	rec.meta.Lock()
	if !rec.held || rec.owner != owner {
		owner := rec.owner
		rec.meta.Unlock()
		return &ddcerrs.LockedError{IOPath: path.String(), OwnerThread: ownerLabel(owner), AttemptCount: 0}
	}
	rec.held = false
	rec.owner = 0
	rec.meta.Unlock()

	rec.excl.Unlock()
	return nil
}

// UnlockAllForOwner releases every record currently held by owner, for
// recovering a session that didn't pair its opens with closes. It returns
// the number of records released.
func (t *Table) UnlockAllForOwner(owner Owner) int {
	t.mu.Lock()
	paths := make([]iopath.Path, 0, len(t.records))
	for p, rec := range t.records {
		rec.meta.Lock()
		owned := rec.held && rec.owner == owner
		rec.meta.Unlock()
		if owned {
			paths = append(paths, p)
		}
	}
	t.mu.Unlock()

	released := 0
	for _, p := range paths {
		if err := t.Unlock(p, owner); err == nil {
			released++
		}
	}
	return released
}

func ownerLabel(o Owner) string {
	if o == 0 {
		return "none"
	}
	return "thread-" + strconv.FormatUint(uint64(o), 10)
}
