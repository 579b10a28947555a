// Package typing keeps the ephemeral "is composing" state per room and
// principal. Each entry owns a timer; expiry removes the entry and reports it
// through the expire callback exactly once.
package typing

import (
	"sync"
	"time"

	"pulse/internal/core/domain"
)

// DefaultTTL is the inactivity window after which typing stops on its own.
const DefaultTTL = 4 * time.Second

type Key struct {
	RoomID      domain.RoomID
	PrincipalID domain.PrincipalID
}

// Entry is a copy of a typing state entry handed out to callers.
type Entry struct {
	Key
	ConnectionID domain.ConnectionID
	Username     string
	Deadline     time.Time
}

// ExpireFunc is called without any table lock held.
type ExpireFunc func(Entry)

type entry struct {
	Entry
	gen   uint64
	timer *time.Timer
}

type Table struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[Key]*entry
	onExpire ExpireFunc
	gen      uint64
	closed   bool
}

func NewTable(ttl time.Duration, onExpire ExpireFunc) *Table {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{
		ttl:      ttl,
		entries:  make(map[Key]*entry),
		onExpire: onExpire,
	}
}

// Start creates or refreshes the entry for key. It reports true only when the
// entry was created; refreshes extend the deadline silently.
func (t *Table) Start(key Key, connID domain.ConnectionID, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.gen++
	gen := t.gen
	deadline := time.Now().Add(t.ttl)

	e, ok := t.entries[key]
	if ok {
		e.timer.Stop()
	} else {
		e = &entry{Entry: Entry{Key: key}}
		t.entries[key] = e
	}
	e.ConnectionID = connID
	e.Username = username
	e.Deadline = deadline
	e.gen = gen
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, gen) })
	return !ok
}

func (t *Table) expire(key Key, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[key]
	// A refresh or stop raced the timer; the newer generation wins.
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	out := e.Entry
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(out)
	}
}

// Stop removes the entry. It reports false when there was nothing to stop,
// so each entry is reported as stopped at most once.
func (t *Table) Stop(key Key) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return e.Entry, true
}

// StopConnection removes every entry owned by the connection.
func (t *Table) StopConnection(connID domain.ConnectionID) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for key, e := range t.entries {
		if e.ConnectionID != connID {
			continue
		}
		e.timer.Stop()
		delete(t.entries, key)
		out = append(out, e.Entry)
	}
	return out
}

func (t *Table) Get(key Key) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops all timers without reporting expiry and returns the number of
// dropped entries. Later starts are ignored.
func (t *Table) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	n := len(t.entries)
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
	return n
}
