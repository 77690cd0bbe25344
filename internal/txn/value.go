package txn

// InitValue memoizes a lazily derived scalar while keeping "not yet
// computed" distinct from "computed as unknown". The zero value is
// uninitialized with T's zero value as default; NewInitValue picks a
// different default.
type InitValue[T any] struct {
	value       T
	initialized bool
}

// NewInitValue returns an uninitialized box whose Get reports def until the
// first Set.
func NewInitValue[T any](def T) InitValue[T] {
	return InitValue[T]{value: def}
}

// Get returns the current value regardless of initialization state.
func (v *InitValue[T]) Get() T {
	return v.value
}

// IsInitialized reports whether an explicit Set has occurred.
func (v *InitValue[T]) IsInitialized() bool {
	return v.initialized
}

// Set stores a value and marks the box initialized, even when the value
// equals the default.
func (v *InitValue[T]) Set(value T) {
	v.value = value
	v.initialized = true
}
