package uuid

import (
	"testing"
	"time"

	goUUID "github.com/google/uuid"
)

func TestGeneratorNext(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	id2, err := gen.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
}

func TestGeneratorRunIDIsTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first := gen.RunID()
	second := gen.RunID()
	if first.Version() != 7 || second.Version() != 7 {
		t.Fatalf("expected version 7 IDs, got %d and %d", first.Version(), second.Version())
	}
	if first.String() >= second.String() {
		t.Fatalf("expected %s to sort before %s", first, second)
	}
}

func TestCreatedAt(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	ts, ok := CreatedAt(New().RunID())
	after := time.Now().Add(time.Second)
	if !ok {
		t.Fatal("expected a timestamp from a v7 id")
	}
	if ts.Before(before) || ts.After(after) {
		t.Fatalf("timestamp %v outside [%v, %v]", ts, before, after)
	}

	if _, ok := CreatedAt(goUUID.New()); ok {
		t.Fatal("expected no timestamp from a v4 id")
	}
}
