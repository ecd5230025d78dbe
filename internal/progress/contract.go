package progress

// Callback receives lifecycle notifications.
type Callback func(p Progress)

// SignalCallback receives out-of-band signals. Source is whatever handle the
// sender passed and is never inspected.
type SignalCallback func(p Progress, message string, source any)

// Progress is the observable surface of a progress-bearing object. Consumers that
// react to progress without driving it should depend on this interface. All
// callbacks run synchronously on the goroutine performing the transition.
type Progress interface {
	// Value returns the normalized value in [0, 1].
	Value() float64
	// State returns the current lifecycle position.
	State() State
	// Subscribe registers fn for the lifecycle notification k.
	Subscribe(k Kind, fn Callback) Subscription
	// SubscribeSignal registers fn for out-of-band signals.
	SubscribeSignal(fn SignalCallback) Subscription
	// Unsubscribe removes a registration; unknown or stale handles are ignored.
	Unsubscribe(sub Subscription)
}
