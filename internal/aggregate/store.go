package aggregate

// Store maps dimension keys to aggregates and iterates them in the
// order keys were first inserted. It has no locking of its own; callers
// serialize access.
type Store[K comparable, A any] struct {
	index map[K]int
	keys  []K
	vals  []A
}

// NewStore creates an empty Store with room for sizeHint keys.
func NewStore[K comparable, A any](sizeHint int) *Store[K, A] {
	return &Store[K, A]{
		index: make(map[K]int, sizeHint),
		keys:  make([]K, 0, sizeHint),
		vals:  make([]A, 0, sizeHint),
	}
}

// Get returns the aggregate for key, if present.
func (s *Store[K, A]) Get(key K) (A, bool) {
	i, ok := s.index[key]
	if !ok {
		var zero A

		return zero, false
	}

	return s.vals[i], true
}

// Upsert applies f to the existing aggregate for key, or to the zero
// value when the key is new, and stores the result.
func (s *Store[K, A]) Upsert(key K, f func(A) A) A {
	if i, ok := s.index[key]; ok {
		s.vals[i] = f(s.vals[i])

		return s.vals[i]
	}

	var zero A

	v := f(zero)
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, key)
	s.vals = append(s.vals, v)

	return v
}

// Put stores v under key, replacing any existing aggregate.
func (s *Store[K, A]) Put(key K, v A) {
	s.Upsert(key, func(A) A { return v })
}

// ForEach calls fn for every entry in insertion order.
func (s *Store[K, A]) ForEach(fn func(key K, val A)) {
	for i, k := range s.keys {
		fn(k, s.vals[i])
	}
}

// Len returns the number of keys.
func (s *Store[K, A]) Len() int {
	return len(s.keys)
}

// IsEmpty reports whether the store has no keys.
func (s *Store[K, A]) IsEmpty() bool {
	return len(s.keys) == 0
}

// Clear removes every entry.
func (s *Store[K, A]) Clear() {
	clear(s.index)
	s.keys = s.keys[:0]
	s.vals = s.vals[:0]
}
