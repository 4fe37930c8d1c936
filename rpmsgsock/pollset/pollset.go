// Package pollset implements a fixed-size poll-fd registration table: a
// bounded set of waiters, each notified of an event mask whenever the
// connection's readiness changes.
package pollset

import (
	"errors"
	"sync"
)

// Event bits, deliberately POSIX-poll-shaped so callers familiar with
// syscall.POLLIN/POLLOUT/POLLHUP can map them directly.
type Events uint32

const (
	In   Events = 1 << iota // data or an accept-queue entry is available
	Out                     // send credit is available
	Hup                     // peer gone or endpoint destroyed; sticky
	Err                     // listener closed
)

// ErrBusy is returned by Register when the table has no free slot.
var ErrBusy = errors.New("pollset: no free slot")

// Waiter receives readiness notifications. Implementations must not block;
// the callback runs with the table's lock released but may run concurrently
// with other notifications, so it should be cheap (e.g. write to a channel,
// wake an fd).
type Waiter func(events Events)

// Table is a fixed-capacity table of registered waiters.
type Table struct {
	mu      sync.Mutex
	waiters []Waiter // nil entries are free slots
}

// New returns a Table that can hold up to capacity simultaneous waiters.
func New(capacity int) *Table {
	return &Table{waiters: make([]Waiter, capacity)}
}

// Register places w into the first free slot and returns its handle, or
// ErrBusy if the table is full.
func (t *Table) Register(w Waiter) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.waiters {
		if slot == nil {
			t.waiters[i] = w
			return i, nil
		}
	}
	return -1, ErrBusy
}

// Unregister clears the slot returned by Register. It is a no-op if slot is
// out of range or already empty.
func (t *Table) Unregister(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot >= 0 && slot < len(t.waiters) {
		t.waiters[slot] = nil
	}
}

// Notify invokes every currently registered waiter with events. Waiters are
// snapshotted under the lock and invoked without it held, so a waiter
// callback may itself call Register/Unregister on this table.
func (t *Table) Notify(events Events) {
	t.mu.Lock()
	snapshot := make([]Waiter, len(t.waiters))
	copy(snapshot, t.waiters)
	t.mu.Unlock()

	for _, w := range snapshot {
		if w != nil {
			w(events)
		}
	}
}
