package element

import "github.com/weaveframe/weave/pkg/reactive"

// List is an observable container (spec.md §3, "Observable containers"):
// At records an item-level read and every other query a whole-object read
// into the current build's access log; any mutation marks the owning element's object-change set and
// requires a refresh.
type List[T any] struct {
	owner uint64
	host  Host
	items []T
}

// NewList creates an observable list owned by ownerID (the element whose
// property holds this list).
func NewList[T any](ownerID uint64, host Host, initial []T) *List[T] {
	items := make([]T, len(initial))
	copy(items, initial)
	return &List[T]{owner: ownerID, host: host, items: items}
}

func (l *List[T]) recordRead() {
	if log := reactive.CurrentLog(); log != nil {
		log.RecordObject(l.owner)
	}
}

func (l *List[T]) markChanged() {
	if l.host != nil && l.host.Sink() != nil {
		l.host.Sink().MarkObjectChanged(l.owner)
		l.host.Sink().RequireRefresh()
	}
}

// Len returns the number of items, recording a whole-object read.
func (l *List[T]) Len() int {
	l.recordRead()
	return len(l.items)
}

// At returns the item at i, recording an item-level read.
func (l *List[T]) At(i int) T {
	if log := reactive.CurrentLog(); log != nil {
		log.RecordItem(l.owner, itoa(i))
	}
	return l.items[i]
}

// Snapshot returns a copy of the current contents, recording a whole-object
// read.
func (l *List[T]) Snapshot() []T {
	l.recordRead()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Append adds an item and marks the list changed.
func (l *List[T]) Append(v T) {
	l.items = append(l.items, v)
	l.markChanged()
}

// SetAt replaces the item at i and marks the list changed.
func (l *List[T]) SetAt(i int, v T) {
	l.items[i] = v
	l.markChanged()
}

// RemoveAt deletes the item at i and marks the list changed.
func (l *List[T]) RemoveAt(i int) {
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.markChanged()
}

// Map is the map-shaped counterpart of List.
type Map[K comparable, V any] struct {
	owner uint64
	host  Host
	items map[K]V
}

// NewMap creates an observable map owned by ownerID.
func NewMap[K comparable, V any](ownerID uint64, host Host, initial map[K]V) *Map[K, V] {
	items := make(map[K]V, len(initial))
	for k, v := range initial {
		items[k] = v
	}
	return &Map[K, V]{owner: ownerID, host: host, items: items}
}

func (m *Map[K, V]) markChanged() {
	if m.host != nil && m.host.Sink() != nil {
		m.host.Sink().MarkObjectChanged(m.owner)
		m.host.Sink().RequireRefresh()
	}
}

// Get returns the value at key, recording an item-level read.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if log := reactive.CurrentLog(); log != nil {
		log.RecordItem(m.owner, keyString(key))
	}
	v, ok := m.items[key]
	return v, ok
}

// Keys returns the current key set, recording a whole-object read.
func (m *Map[K, V]) Keys() []K {
	if log := reactive.CurrentLog(); log != nil {
		log.RecordObject(m.owner)
	}
	out := make([]K, 0, len(m.items))
	for k := range m.items {
		out = append(out, k)
	}
	return out
}

// Set stores value at key and marks the map changed.
func (m *Map[K, V]) Set(key K, value V) {
	m.items[key] = value
	m.markChanged()
}

// Delete removes key and marks the map changed.
func (m *Map[K, V]) Delete(key K) {
	delete(m.items, key)
	m.markChanged()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func keyString[K comparable](k K) string {
	if s, ok := any(k).(string); ok {
		return s
	}
	if i, ok := any(k).(int); ok {
		return itoa(i)
	}
	return anyToString(k)
}

func anyToString(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "?"
}
