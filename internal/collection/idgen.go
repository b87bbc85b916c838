package collection

import "sync/atomic"

// IDGenerator is the single monotonic counter of spec.md §3: one generator
// per collection, handing out dense, never-reused identifiers. Allocate
// reserves a contiguous block so a batch insert's identifiers are fixed
// before any indexer touches them (spec.md §4.5 index_documents contract).
type IDGenerator struct {
	next uint64
}

// NewIDGenerator starts a generator at start. Collection.Open starts at 0;
// replay then advances it by allocating one identifier per replayed record,
// so it resumes after the last replayed identifier.
func NewIDGenerator(start uint64) *IDGenerator {
	return &IDGenerator{next: start}
}

// Allocate reserves n consecutive identifiers and returns the first.
func (g *IDGenerator) Allocate(n int) uint64 {
	return atomic.AddUint64(&g.next, uint64(n)) - uint64(n)
}

// Current returns the next identifier that would be allocated: the
// id_generator value used as a query-time snapshot bound.
func (g *IDGenerator) Current() uint64 {
	return atomic.LoadUint64(&g.next)
}
