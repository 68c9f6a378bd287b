package types

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// IDGenerator produces identifiers for new entities
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random UUIDs
type UUIDGenerator struct{}

// NewID returns a new random UUID
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}

// SequenceGenerator issues prefix-1, prefix-2, ... and is used where
// identifiers must be reproducible.
type SequenceGenerator struct {
	prefix string
	next   atomic.Uint64
}

// NewSequenceGenerator creates a sequence generator with prefix
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewID returns the next identifier in sequence
func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.next.Inc())
}
