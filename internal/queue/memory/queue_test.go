package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

type job struct {
	ID string
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[job](1)
	result := make(chan job, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), job{ID: "job-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.ID != "job-1" {
			t.Fatalf("expected job-1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue[job](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue[job](1)
	if err := qEnqueue.Enqueue(context.Background(), job{ID: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, job{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsPending(t *testing.T) {
	t.Parallel()

	q := NewQueue[job](2)
	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(context.Background(), job{ID: id}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	q.Close()
	if q.Len() != 2 {
		t.Fatalf("expected 2 pending items, got %d", q.Len())
	}
	for _, want := range []string{"a", "b"} {
		got, err := q.Dequeue(context.Background())
		if err != nil || got.ID != want {
			t.Fatalf("expected %s, got %+v (%v)", want, got, err)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if err := q.Enqueue(context.Background(), job{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected enqueue after close to fail, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}

func TestQueueCloseWakesBlockedDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[job](0)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue stayed blocked after close")
	}
}
