package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer converts a tracker's notifications into Events for an Emitter. Each
// Start opens a new run ID that tags every event up to and including the next
// reset, so sinks can tell runs of a reused tracker apart.
//
// Recycle drops the observer's lifecycle subscriptions along with everyone
// else's; call Attach again to follow the recycled tracker.
type Observer struct {
	emitter Emitter
	now     func() time.Time
	newID   func() uuid.UUID

	mu      sync.Mutex
	tracker *Tracker
	subs    []Subscription
	run     uuid.UUID
	ended   bool
}

// ObserverOption customizes an Observer.
type ObserverOption func(*Observer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ObserverOption {
	return func(o *Observer) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides how run identifiers are generated.
func WithRunIDs(gen func() uuid.UUID) ObserverOption {
	return func(o *Observer) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// NewObserver builds an Observer that emits to emitter. A nil emitter discards
// events.
func NewObserver(emitter Emitter, opts ...ObserverOption) *Observer {
	if emitter == nil {
		emitter = EmitterFunc(func(Event) {})
	}
	o := &Observer{
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Observe is shorthand for NewObserver(emitter, opts...).Attach(t).
func Observe(t *Tracker, emitter Emitter, opts ...ObserverOption) *Observer {
	o := NewObserver(emitter, opts...)
	o.Attach(t)
	return o
}

// Attach subscribes to every notification of t, detaching from any tracker
// observed before. A tracker already in progress gets a run ID immediately.
func (o *Observer) Attach(t *Tracker) {
	o.Detach()
	if t == nil {
		return
	}
	o.mu.Lock()
	o.tracker = t
	o.run = uuid.Nil
	o.ended = false
	if t.State() != StateNone {
		o.run = o.newID()
		o.ended = t.HasEnded()
	}
	o.mu.Unlock()

	subs := make([]Subscription, 0, int(kindCount)+1)
	for k := KindStarted; k < kindCount; k++ {
		kind := k
		subs = append(subs, t.Subscribe(kind, func(p Progress) { o.lifecycle(kind, p) }))
	}
	subs = append(subs, t.SubscribeSignal(o.signal))

	o.mu.Lock()
	o.subs = subs
	o.mu.Unlock()
}

// Detach removes the observer's subscriptions from the current tracker.
func (o *Observer) Detach() {
	o.mu.Lock()
	t, subs := o.tracker, o.subs
	o.tracker, o.subs = nil, nil
	o.mu.Unlock()
	if t == nil {
		return
	}
	for _, sub := range subs {
		t.Unsubscribe(sub)
	}
}

// RunID returns the identifier of the current or most recent run.
func (o *Observer) RunID() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

func (o *Observer) lifecycle(k Kind, p Progress) {
	o.mu.Lock()
	t := o.tracker
	abandoned := false
	switch k {
	case KindStarted:
		o.run = o.newID()
		o.ended = false
	case KindCompleted, KindCancelled:
		o.ended = true
	case KindReset:
		abandoned = !o.ended && o.run != uuid.Nil
	}
	run := o.run
	if k == KindReset {
		o.run = uuid.Nil
		o.ended = false
	}
	o.mu.Unlock()

	evt := o.base(t, p)
	evt.RunID = UUIDToBytes(run)
	evt.Stage = StageForKind(k)
	evt.Abandoned = abandoned
	o.emitter.Emit(evt)
}

func (o *Observer) signal(p Progress, message string, source any) {
	o.mu.Lock()
	t, run := o.tracker, o.run
	o.mu.Unlock()

	evt := o.base(t, p)
	evt.RunID = UUIDToBytes(run)
	evt.Stage = StageSignal
	evt.Message = message
	if source != nil {
		evt.Source = fmt.Sprint(source)
	}
	o.emitter.Emit(evt)
}

func (o *Observer) base(t *Tracker, p Progress) Event {
	evt := Event{
		TS:    o.now(),
		State: p.State(),
		Value: p.Value(),
	}
	if t != nil {
		evt.TrackerID = UUIDToBytes(t.ID())
		evt.Name = t.Name()
	}
	return evt
}
