// internal/network/collector.go
package network

// Undo reverses one accumulation. It is a plain value: collectors put in it
// whatever they need to reverse exactly the contribution they recorded.
type Undo struct {
	Ref   any
	Count int64
}

// Container is the live aggregate of one group.
type Container interface {
	// Accumulate adds a tuple's facts and returns the token that reverses it.
	Accumulate(facts Facts) Undo
	// Revert reverses a previous Accumulate. It reports false when the token
	// does not belong to this container's current state.
	Revert(u Undo) bool
	// Result returns the aggregate over everything accumulated and not reverted.
	Result() any
}

// Collector creates one Container per group.
type Collector interface {
	NewContainer() Container
}

// SequencedContainer is a Container whose result depends on arrival order.
// The group node passes every input tuple's arrival sequence, which stays the
// same when the tuple is updated, so ties keep their order across updates.
type SequencedContainer interface {
	Container
	AccumulateAt(seq uint64, facts Facts) Undo
}

// AccumulateAt accumulates facts at seq if c orders by arrival, and plainly
// otherwise.
func AccumulateAt(c Container, seq uint64, facts Facts) Undo {
	if sc, ok := c.(SequencedContainer); ok {
		return sc.AccumulateAt(seq, facts)
	}
	return c.Accumulate(facts)
}
