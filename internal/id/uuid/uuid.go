// Package uuid generates time-ordered run identifiers.
package uuid

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 values, so run IDs sort by start time in the ledger.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// Next returns a fresh UUIDv7.
func (Generator) Next() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// RunID is Next with a random UUID fallback; it fits progress.WithRunIDs.
func (g Generator) RunID() uuid.UUID {
	id, err := g.Next()
	if err != nil {
		return uuid.New()
	}
	return id
}

// CreatedAt extracts the millisecond timestamp embedded in a UUIDv7.
func CreatedAt(id uuid.UUID) (time.Time, bool) {
	if id.Version() != 7 {
		return time.Time{}, false
	}
	var ms [8]byte
	copy(ms[2:], id[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:]))).UTC(), true
}
