package storage

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"memstore/internal/config"
)

// IDGenerator produces memory ids for creates that did not supply one.
type IDGenerator interface {
	NewID() string
}

// CounterGenerator produces mem_<unix_ms>_<seq> ids where seq cycles
// through [0, 1000). Each generator owns its counter.
//
// More than 1000 ids requested within one millisecond repeat. A single
// BatchCreate of that many id-less rows fails on the duplicate and rolls
// back; configure ids.strategy = "uuid" for bulk loads of that size.
type CounterGenerator struct {
	seq   atomic.Uint64
	clock func() time.Time
}

// NewCounterGenerator creates a counter generator. A nil clock uses time.Now.
func NewCounterGenerator(clock func() time.Time) *CounterGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &CounterGenerator{clock: clock}
}

// NewID implements IDGenerator.
func (g *CounterGenerator) NewID() string {
	seq := (g.seq.Add(1) - 1) % 1000
	return fmt.Sprintf("mem_%d_%d", g.clock().UnixMilli(), seq)
}

// UUIDGenerator produces random v4 UUIDs prefixed with "mem_".
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return "mem_" + uuid.NewString()
}

// NewIDGenerator returns the generator for a config id strategy.
func NewIDGenerator(strategy string, clock func() time.Time) (IDGenerator, error) {
	switch strategy {
	case config.IDStrategyCounter, "":
		return NewCounterGenerator(clock), nil
	case config.IDStrategyUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
