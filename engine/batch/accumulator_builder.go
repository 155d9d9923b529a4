package batch

// AccumulatorBuilderOption is a functional option applied to an accumulator during construction via
// NewAccumulator.
type AccumulatorBuilderOption func(*accumulator)

// WithInitialCapacity sets the record capacity new nodes start with. The default is 64.
//
// Parameters:
//   - capacity: records per new node
//
// Returns:
//   - AccumulatorBuilderOption: a function that applies the capacity option to an accumulator
func WithInitialCapacity(capacity int) AccumulatorBuilderOption {
	return func(a *accumulator) {
		a.initialCapacity = max(capacity, 1)
	}
}

// WithMaxCapacity caps how many records GetBatch lets a node hold before starting a new one with the same
// key. Zero, the default, leaves nodes unbounded: a full node grows instead.
//
// Parameters:
//   - capacity: the record limit per node
//
// Returns:
//   - AccumulatorBuilderOption: a function that applies the limit to an accumulator
func WithMaxCapacity(capacity int) AccumulatorBuilderOption {
	return func(a *accumulator) {
		a.maxCapacity = capacity
	}
}

// WithInstanceSlot sets the vertex buffer slot the instance buffer is bound to. The default is 0.
//
// Parameters:
//   - slot: the vertex buffer slot
//
// Returns:
//   - AccumulatorBuilderOption: a function that applies the slot option to an accumulator
func WithInstanceSlot(slot uint32) AccumulatorBuilderOption {
	return func(a *accumulator) {
		a.instances.slot = slot
	}
}
