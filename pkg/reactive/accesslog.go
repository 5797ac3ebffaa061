// Package reactive implements the observable substrate (spec.md §4.1): a
// task-local access log recorded during an active build, and the matching
// change log a Session accumulates between refreshes. It is the lowest
// layer of the reconciliation engine — element, binding, and session
// packages build on it but it depends on none of them.
//
// Grounded in vango-go-vango's pkg/vango/tracking.go (per-goroutine tracking
// context keyed by a parsed goroutine id) and pkg/vango/owner.go (ownership
// tree used here for lifecycle cleanups), generalized from Vango's
// per-signal fine-grained tracking to the coarser per-element access log
// spec.md's Observable substrate describes.
package reactive

import "sync"

// AccessLog records every observable read made during one build. It has
// three facets, matching spec.md §4.1 exactly:
//
//   - Objects: containers/attachments accessed as a whole.
//   - Attributes: owner -> set of attribute names read.
//   - Items: owner -> set of item keys read (observable map/list elements).
type AccessLog struct {
	Objects    map[uint64]struct{}
	Attributes map[uint64]map[string]struct{}
	Items      map[uint64]map[string]struct{}
}

// NewAccessLog returns an empty access log.
func NewAccessLog() *AccessLog {
	return &AccessLog{
		Objects:    make(map[uint64]struct{}),
		Attributes: make(map[uint64]map[string]struct{}),
		Items:      make(map[uint64]map[string]struct{}),
	}
}

// RecordObject registers a whole-object read.
func (l *AccessLog) RecordObject(ownerID uint64) {
	if l == nil {
		return
	}
	l.Objects[ownerID] = struct{}{}
}

// RecordAttribute registers a named-attribute read.
func (l *AccessLog) RecordAttribute(ownerID uint64, name string) {
	if l == nil {
		return
	}
	set, ok := l.Attributes[ownerID]
	if !ok {
		set = make(map[string]struct{})
		l.Attributes[ownerID] = set
	}
	set[name] = struct{}{}
}

// RecordItem registers an item-level read keyed within an owning container.
func (l *AccessLog) RecordItem(ownerID uint64, key string) {
	if l == nil {
		return
	}
	set, ok := l.Items[ownerID]
	if !ok {
		set = make(map[string]struct{})
		l.Items[ownerID] = set
	}
	set[key] = struct{}{}
}

// Clear empties the log in place so it can be reused across builds without
// reallocating the outer maps.
func (l *AccessLog) Clear() {
	if l == nil {
		return
	}
	for k := range l.Objects {
		delete(l.Objects, k)
	}
	for k := range l.Attributes {
		delete(l.Attributes, k)
	}
	for k := range l.Items {
		delete(l.Items, k)
	}
}

// IsEmpty reports whether nothing was recorded.
func (l *AccessLog) IsEmpty() bool {
	return l == nil || (len(l.Objects) == 0 && len(l.Attributes) == 0 && len(l.Items) == 0)
}

// ChangeLog is the change-side counterpart accumulated by a Session between
// refreshes (spec.md §4.4): newly created elements, whole-object changes,
// per-attribute changes, and per-item changes.
type ChangeLog struct {
	mu            sync.Mutex
	NewlyCreated  map[uint64]struct{}
	Objects       map[uint64]struct{}
	Attributes    map[uint64]map[string]struct{}
	Items         map[uint64]map[string]struct{}
}

// NewChangeLog returns an empty change log.
func NewChangeLog() *ChangeLog {
	return &ChangeLog{
		NewlyCreated: make(map[uint64]struct{}),
		Objects:      make(map[uint64]struct{}),
		Attributes:   make(map[uint64]map[string]struct{}),
		Items:        make(map[uint64]map[string]struct{}),
	}
}

// MarkCreated records a newly instantiated element.
func (c *ChangeLog) MarkCreated(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NewlyCreated[id] = struct{}{}
}

// MarkObjectChanged records a whole-object mutation.
func (c *ChangeLog) MarkObjectChanged(ownerID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Objects[ownerID] = struct{}{}
}

// MarkAttributeChanged records a named-attribute mutation.
func (c *ChangeLog) MarkAttributeChanged(ownerID uint64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.Attributes[ownerID]
	if !ok {
		set = make(map[string]struct{})
		c.Attributes[ownerID] = set
	}
	set[name] = struct{}{}
}

// MarkItemChanged records an item-level mutation.
func (c *ChangeLog) MarkItemChanged(ownerID uint64, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.Items[ownerID]
	if !ok {
		set = make(map[string]struct{})
		c.Items[ownerID] = set
	}
	set[key] = struct{}{}
}

// Snapshot returns the current contents and clears the log atomically,
// matching scheduler step 4.5.b ("clear logs").
func (c *ChangeLog) Snapshot() (created, objects map[uint64]struct{}, attrs, items map[uint64]map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	created, c.NewlyCreated = c.NewlyCreated, make(map[uint64]struct{})
	objects, c.Objects = c.Objects, make(map[uint64]struct{})
	attrs, c.Attributes = c.Attributes, make(map[uint64]map[string]struct{})
	items, c.Items = c.Items, make(map[uint64]map[string]struct{})
	return
}

// IsEmpty reports whether the change log currently holds nothing.
func (c *ChangeLog) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.NewlyCreated) == 0 && len(c.Objects) == 0 && len(c.Attributes) == 0 && len(c.Items) == 0
}

// ChangeSink is implemented by a Session (or any change log owner) so that
// element and binding packages can report mutations without importing the
// session package.
type ChangeSink interface {
	MarkObjectChanged(ownerID uint64)
	MarkAttributeChanged(ownerID uint64, name string)
	MarkItemChanged(ownerID uint64, name string)
	RequireRefresh()
}
