package progress

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	requireNone       = "none"
	requireInProgress = "in_progress"
	requireUsed       = "in_progress, completed or cancelled"
)

// Tracker is the concrete progress state machine. One goroutine drives it through
// Start, Evaluate and Complete or Cancel; any goroutine may read Value and State
// or register callbacks. Every driving operation has a strict form returning an
// error and a lenient Try form returning false, and neither mutates anything when
// the call is illegal.
type Tracker struct {
	id uuid.UUID

	mu    sync.RWMutex
	name  string
	state State
	value float64

	nextID    atomic.Uint64
	lifecycle [kindCount]listeners[Callback]
	signals   listeners[SignalCallback]
}

var _ Progress = (*Tracker)(nil)

// Option configures a Tracker at construction.
type Option func(*options)

type options struct {
	name      string
	autoStart bool
	subs      []func(*Tracker)
}

// WithName labels the tracker for logs and the run ledger.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithAutoStart starts the tracker as the last construction step.
func WithAutoStart(enabled bool) Option {
	return func(o *options) { o.autoStart = enabled }
}

// WithSubscriber registers fn before any auto-start so it observes the first run.
func WithSubscriber(k Kind, fn Callback) Option {
	return func(o *options) {
		o.subs = append(o.subs, func(t *Tracker) { t.Subscribe(k, fn) })
	}
}

// WithSignalSubscriber registers fn on the signal channel at construction.
func WithSignalSubscriber(fn SignalCallback) Option {
	return func(o *options) {
		o.subs = append(o.subs, func(t *Tracker) { t.SubscribeSignal(fn) })
	}
}

// New constructs a Tracker in StateNone, applying registration options before
// the optional auto-start.
func New(opts ...Option) *Tracker {
	t := &Tracker{id: uuid.New()}
	t.apply(opts)
	return t
}

// apply runs construction options against t. Pool.Get uses it to relabel a
// recycled tracker.
func (t *Tracker) apply(opts []Option) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	t.mu.Lock()
	t.name = o.name
	t.mu.Unlock()
	for _, sub := range o.subs {
		sub(t)
	}
	if o.autoStart {
		_ = t.Start()
	}
}

// ID returns the instance identifier; it survives Reset and Recycle.
func (t *Tracker) ID() uuid.UUID { return t.id }

// Name returns the label given at construction; Recycle clears it.
func (t *Tracker) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// Value returns the normalized value.
func (t *Tracker) Value() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// State returns the current lifecycle position.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// HasEnded reports whether the current run completed or was cancelled.
func (t *Tracker) HasEnded() bool {
	return t.State().Ended()
}

// Start moves the tracker from StateNone to StateInProgress, fires started and
// then evaluates to 0.
func (t *Tracker) Start() error {
	if err := t.transition("start", requireNone, StateInProgress, func(s State) bool {
		return s == StateNone
	}, nil); err != nil {
		return err
	}
	t.fire(KindStarted)
	return t.Evaluate(0)
}

// TryStart is the lenient form of Start.
func (t *Tracker) TryStart() bool { return t.Start() == nil }

// Evaluate clamps v into [0, 1], stores it and fires evaluated. NaN is stored as 0.
func (t *Tracker) Evaluate(v float64) error {
	t.mu.Lock()
	if t.state != StateInProgress {
		actual := t.state
		t.mu.Unlock()
		return &InvalidTransitionError{Op: "evaluate", Required: requireInProgress, Actual: actual}
	}
	t.value = clamp01(v)
	t.mu.Unlock()
	t.fire(KindEvaluated)
	return nil
}

// TryEvaluate is the lenient form of Evaluate.
func (t *Tracker) TryEvaluate(v float64) bool { return t.Evaluate(v) == nil }

// Complete evaluates to 1, moves to StateCompleted and fires completed.
func (t *Tracker) Complete() error {
	if err := t.Evaluate(1); err != nil {
		var ite *InvalidTransitionError
		if errors.As(err, &ite) {
			ite.Op = "complete"
		}
		return err
	}
	// An evaluated callback may have moved the tracker on; re-check under the lock.
	if err := t.transition("complete", requireInProgress, StateCompleted, func(s State) bool {
		return s == StateInProgress
	}, func() { t.value = 1 }); err != nil {
		return err
	}
	t.fire(KindCompleted)
	return nil
}

// TryComplete is the lenient form of Complete.
func (t *Tracker) TryComplete() bool { return t.Complete() == nil }

// Cancel moves the tracker to StateCancelled, keeping the last evaluated value,
// and fires cancelled.
func (t *Tracker) Cancel() error {
	if err := t.transition("cancel", requireInProgress, StateCancelled, func(s State) bool {
		return s == StateInProgress
	}, nil); err != nil {
		return err
	}
	t.fire(KindCancelled)
	return nil
}

// TryCancel is the lenient form of Cancel.
func (t *Tracker) TryCancel() bool { return t.Cancel() == nil }

// Reset returns a used tracker to StateNone with value 0 and fires reset.
// Resetting a run that is still in progress abandons it. Subscriptions are kept.
func (t *Tracker) Reset() error {
	if err := t.transition("reset", requireUsed, StateNone, func(s State) bool {
		return s != StateNone
	}, func() { t.value = 0 }); err != nil {
		return err
	}
	t.fire(KindReset)
	return nil
}

// TryReset is the lenient form of Reset.
func (t *Tracker) TryReset() bool { return t.Reset() == nil }

// FireSignal broadcasts message and source to signal subscribers. It is legal in
// every state and never changes the tracker.
func (t *Tracker) FireSignal(message string, source any) {
	for _, fn := range t.signals.snapshot() {
		fn(t, message, source)
	}
}

// Recycle forces the tracker back to StateNone with value 0, clears its name and
// drops every lifecycle subscription, bypassing the Reset guard. Signal
// subscriptions are dropped only when clearSignalSubscribers is set. Nothing is
// fired.
func (t *Tracker) Recycle(clearSignalSubscribers bool) {
	for i := range t.lifecycle {
		t.lifecycle[i].clear()
	}
	if clearSignalSubscribers {
		t.signals.clear()
	}
	t.mu.Lock()
	t.state = StateNone
	t.value = 0
	t.name = ""
	t.mu.Unlock()
}

// Dispose retires the tracker; it is Recycle(true).
func (t *Tracker) Dispose() {
	t.Recycle(true)
}

// Subscribe registers fn for notification k. An unknown kind yields the zero
// Subscription and registers nothing.
func (t *Tracker) Subscribe(k Kind, fn Callback) Subscription {
	if !k.valid() || fn == nil {
		return Subscription{}
	}
	id := t.nextID.Add(1)
	t.lifecycle[k].add(id, fn)
	return Subscription{kind: k, id: id}
}

// SubscribeSignal registers fn on the signal channel.
func (t *Tracker) SubscribeSignal(fn SignalCallback) Subscription {
	if fn == nil {
		return Subscription{}
	}
	id := t.nextID.Add(1)
	t.signals.add(id, fn)
	return Subscription{kind: signalKind, id: id}
}

// Unsubscribe removes a registration made by Subscribe or SubscribeSignal.
func (t *Tracker) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}
	if sub.kind == signalKind {
		t.signals.remove(sub.id)
		return
	}
	if sub.kind.valid() {
		t.lifecycle[sub.kind].remove(sub.id)
	}
}

// Subscribers returns how many callbacks are registered for k.
func (t *Tracker) Subscribers(k Kind) int {
	if !k.valid() {
		return 0
	}
	return t.lifecycle[k].len()
}

// SignalSubscribers returns how many signal callbacks are registered.
func (t *Tracker) SignalSubscribers() int {
	return t.signals.len()
}

// OnStart registers fn for started and returns t for chaining.
func (t *Tracker) OnStart(fn Callback) *Tracker {
	t.Subscribe(KindStarted, fn)
	return t
}

// OnEvaluate registers fn for evaluated and returns t for chaining.
func (t *Tracker) OnEvaluate(fn Callback) *Tracker {
	t.Subscribe(KindEvaluated, fn)
	return t
}

// OnCompleted registers fn for completed and returns t for chaining.
func (t *Tracker) OnCompleted(fn Callback) *Tracker {
	t.Subscribe(KindCompleted, fn)
	return t
}

// OnCancelled registers fn for cancelled and returns t for chaining.
func (t *Tracker) OnCancelled(fn Callback) *Tracker {
	t.Subscribe(KindCancelled, fn)
	return t
}

// OnEnd registers fn for both completed and cancelled.
func (t *Tracker) OnEnd(fn Callback) *Tracker {
	t.Subscribe(KindCancelled, fn)
	t.Subscribe(KindCompleted, fn)
	return t
}

// OnReset registers fn for reset and returns t for chaining.
func (t *Tracker) OnReset(fn Callback) *Tracker {
	t.Subscribe(KindReset, fn)
	return t
}

// OnSignal registers fn on the signal channel and returns t for chaining.
func (t *Tracker) OnSignal(fn SignalCallback) *Tracker {
	t.SubscribeSignal(fn)
	return t
}

// transition checks legal against the current state and, when it holds, moves to
// next and runs mutate while still holding the lock.
func (t *Tracker) transition(op, required string, next State, legal func(State) bool, mutate func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !legal(t.state) {
		return &InvalidTransitionError{Op: op, Required: required, Actual: t.state}
	}
	t.state = next
	if mutate != nil {
		mutate()
	}
	return nil
}

func (t *Tracker) fire(k Kind) {
	for _, fn := range t.lifecycle[k].snapshot() {
		fn(t)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
