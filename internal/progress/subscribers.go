package progress

import "sync"

// Subscription identifies one registration on a Tracker. The zero value is
// never issued and is safe to pass to Unsubscribe.
type Subscription struct {
	kind Kind
	id   uint64
}

// signalKind tags signal subscriptions so they cannot collide with a lifecycle kind.
const signalKind Kind = -1

type entry[F any] struct {
	id uint64
	fn F
}

// listeners is an ordered multicast list. Delivery iterates a snapshot so a
// callback may mutate the list while it is being fired.
type listeners[F any] struct {
	mu      sync.Mutex
	entries []entry[F]
}

func (l *listeners[F]) add(id uint64, fn F) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry[F]{id: id, fn: fn})
}

func (l *listeners[F]) remove(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *listeners[F]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *listeners[F]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}
