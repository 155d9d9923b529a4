package batch

// SortedAccumulatorBuilderOption is a functional option applied to a sorted accumulator during construction
// via NewSortedAccumulator.
type SortedAccumulatorBuilderOption func(*sortedAccumulator)

// WithSortOrder sets the direction transparent buckets are sorted in. The default is Ascending.
//
// Parameters:
//   - order: Ascending or Descending
//
// Returns:
//   - SortedAccumulatorBuilderOption: a function that applies the order to a sorted accumulator
func WithSortOrder(order SortOrder) SortedAccumulatorBuilderOption {
	return func(s *sortedAccumulator) {
		s.order = order
	}
}

// WithBucketCapacity sets the record capacity every bucket starts with. The default is 64.
//
// Parameters:
//   - capacity: records per bucket
//
// Returns:
//   - SortedAccumulatorBuilderOption: a function that applies the capacity to a sorted accumulator
func WithBucketCapacity(capacity int) SortedAccumulatorBuilderOption {
	return func(s *sortedAccumulator) {
		s.initialCapacity = max(capacity, 1)
	}
}

// WithSortedInstanceSlot sets the vertex buffer slot the instance buffer is bound to. The default is 0.
//
// Parameters:
//   - slot: the vertex buffer slot
//
// Returns:
//   - SortedAccumulatorBuilderOption: a function that applies the slot to a sorted accumulator
func WithSortedInstanceSlot(slot uint32) SortedAccumulatorBuilderOption {
	return func(s *sortedAccumulator) {
		s.instances.slot = slot
	}
}
