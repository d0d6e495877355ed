package cache

// OrderedSet keeps unique keys in insertion order with O(1) membership
// checks. The zero value is not usable; call NewOrderedSet.
//
// OrderedSet is not safe for concurrent use; Store guards its sets with its
// own lock.
type OrderedSet[K comparable] struct {
	items []K
	index map[K]int
}

// NewOrderedSet returns a set holding keys in order, skipping duplicates.
func NewOrderedSet[K comparable](keys ...K) *OrderedSet[K] {
	s := &OrderedSet[K]{index: make(map[K]int, len(keys))}
	for _, k := range keys {
		s.Append(k)
	}
	return s
}

// Len returns the number of keys.
func (s *OrderedSet[K]) Len() int { return len(s.items) }

// Has reports whether k is in the set.
func (s *OrderedSet[K]) Has(k K) bool {
	_, ok := s.index[k]
	return ok
}

// IndexOf returns the position of k, or -1.
func (s *OrderedSet[K]) IndexOf(k K) int {
	if i, ok := s.index[k]; ok {
		return i
	}
	return -1
}

// Append adds k at the end. It returns false if k was already present.
func (s *OrderedSet[K]) Append(k K) bool {
	return s.InsertAt(len(s.items), k)
}

// Prepend adds k at the front. It returns false if k was already present.
func (s *OrderedSet[K]) Prepend(k K) bool {
	return s.InsertAt(0, k)
}

// InsertAt adds k at position i, clamped to the set bounds. It returns false
// if k was already present.
func (s *OrderedSet[K]) InsertAt(i int, k K) bool {
	if s.Has(k) {
		return false
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.items) {
		i = len(s.items)
	}
	var zero K
	s.items = append(s.items, zero)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = k
	s.reindex(i)
	return true
}

// Remove deletes k and returns its former position, or -1.
func (s *OrderedSet[K]) Remove(k K) int {
	i, ok := s.index[k]
	if !ok {
		return -1
	}
	copy(s.items[i:], s.items[i+1:])
	s.items = s.items[:len(s.items)-1]
	delete(s.index, k)
	s.reindex(i)
	return i
}

// Replace swaps from for to in place. It returns false when from is missing
// or to is already present.
func (s *OrderedSet[K]) Replace(from, to K) bool {
	i, ok := s.index[from]
	if !ok || s.Has(to) {
		return false
	}
	s.items[i] = to
	delete(s.index, from)
	s.index[to] = i
	return true
}

// Items returns the keys in order.
func (s *OrderedSet[K]) Items() []K {
	return append([]K(nil), s.items...)
}

func (s *OrderedSet[K]) reindex(from int) {
	for i := from; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
}
