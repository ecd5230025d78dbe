// Package progress provides an observable, cancellable unit of progress and the
// plumbing that carries its notifications elsewhere. A Tracker moves a value from
// 0 to 1 through a guarded lifecycle and fires callbacks synchronously; an Observer
// turns those callbacks into Events for the non-blocking Hub, which batches them on
// a background goroutine and fans them out to pluggable sinks such as Prometheus
// metrics or the run ledger.
package progress
