package progress

import "sync"

// Pool hands out recycled trackers. Put hard-resets a tracker with Recycle, so a
// tracker taken from the pool is always in StateNone with no lifecycle
// subscribers. When KeepSignals is set, signal subscribers survive the round trip.
type Pool struct {
	KeepSignals bool

	pool sync.Pool
}

// Get returns a recycled tracker or a fresh one, configured by opts the same
// way New would configure it.
func (p *Pool) Get(opts ...Option) *Tracker {
	if t, ok := p.pool.Get().(*Tracker); ok {
		t.apply(opts)
		return t
	}
	return New(opts...)
}

// Put recycles t and makes it available to Get.
func (p *Pool) Put(t *Tracker) {
	if t == nil {
		return
	}
	t.Recycle(!p.KeepSignals)
	p.pool.Put(t)
}
