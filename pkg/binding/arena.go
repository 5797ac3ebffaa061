// Package binding implements the attribute-binding graph (spec.md §4.2):
// bind().field turns an element property into a child node sharing a
// single logical value with its source. It follows spec.md §9's design
// note verbatim: nodes live in an arena owned by a Session, parent is
// stored as an index, children as a small slice of indices, so rebind and
// unbind are O(degree) and weakness is enforced by dropping arena slots
// when elements are removed rather than by Go-level weak pointers (which
// the standard library does not offer). Grounded in the original
// implementation's AttributeBinding (original_source/rio/observables/
// observable_property.go): parent-pointer-to-root value storage,
// get_value/set_value walking to the root, and a recursive
// mark-children-dirty broadcast on a root write.
package binding

import "sync"

// NodeID indexes a binding node within an Arena. The zero value means "no
// binding" and is never a valid allocated index.
type NodeID uint32

// ChangeNotifier is called once per node whenever a bound value changes,
// so the caller (an element's owning session) can mark that node's owner
// attribute-dirty. It mirrors ObservableProperty._on_value_change in the
// original implementation.
type ChangeNotifier func(node NodeID)

type node struct {
	owner    uint64 // element id that owns this binding slot
	attr     string // attribute name on that element
	parent   NodeID // 0 = this node is a root
	children []NodeID
	value    any // meaningful only when parent == 0 (root)
	live     bool
}

// Arena owns every binding node for one session. It is never shared across
// sessions: bindings do not cross session boundaries.
type Arena struct {
	mu     sync.Mutex
	nodes  []node // index 0 is unused so NodeID 0 can mean "none"
	notify ChangeNotifier
}

// NewArena creates an empty arena. notify is invoked (outside the arena's
// lock) for every node affected by a root value write.
func NewArena(notify ChangeNotifier) *Arena {
	return &Arena{nodes: make([]node, 1), notify: notify}
}

// NewRoot allocates a standalone root node carrying value, owned by the
// given element attribute. Used when bind() is called on an element whose
// attribute is not yet a binding - the plain value is lifted into a root on
// first demand (spec.md §4.2).
func (a *Arena) NewRoot(owner uint64, attr string, value any) NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, node{owner: owner, attr: attr, live: true, value: value})
	return NodeID(len(a.nodes) - 1)
}

// NewChild allocates a node bound to parent, with no value of its own
// (reads/writes delegate to the root). Returns an error via ok=false if
// parent is not a live node in this arena.
func (a *Arena) NewChild(owner uint64, attr string, parent NodeID) (id NodeID, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(parent) <= 0 || int(parent) >= len(a.nodes) || !a.nodes[parent].live {
		return 0, false
	}
	a.nodes = append(a.nodes, node{owner: owner, attr: attr, parent: parent, live: true})
	id = NodeID(len(a.nodes) - 1)
	a.nodes[parent].children = append(a.nodes[parent].children, id)
	return id, true
}

// rootOf walks parent pointers to the root. Caller must hold a.mu.
func (a *Arena) rootOf(id NodeID) NodeID {
	for a.nodes[id].parent != 0 {
		id = a.nodes[id].parent
	}
	return id
}

// GetValue walks to the root and returns its stored value.
func (a *Arena) GetValue(id NodeID) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	root := a.rootOf(id)
	return a.nodes[root].value
}

// SetValue walks to the root, stores value there, then notifies every node
// reachable from the root (including the root itself) that its owning
// attribute changed - matching AttributeBinding.set_value /
// recursively_mark_children_as_dirty in the original implementation.
func (a *Arena) SetValue(id NodeID, value any) {
	a.mu.Lock()
	root := a.rootOf(id)
	a.nodes[root].value = value
	affected := a.collectSubtree(root)
	a.mu.Unlock()

	if a.notify == nil {
		return
	}
	for _, n := range affected {
		a.notify(n)
	}
}

// collectSubtree returns root and every descendant, breadth-first. Caller
// must hold a.mu.
func (a *Arena) collectSubtree(root NodeID) []NodeID {
	out := []NodeID{root}
	queue := []NodeID{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		queue = append(queue, a.nodes[n].children...)
		out = append(out, a.nodes[n].children...)
	}
	return out
}

// Owner returns the element id and attribute name a node belongs to.
func (a *Arena) Owner(id NodeID) (ownerID uint64, attr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.nodes[id]
	return n.owner, n.attr
}

// IsRoot reports whether id has no parent.
func (a *Arena) IsRoot(id NodeID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nodes[id].parent == 0
}

// Reparent moves a node to become a child of newParent, used when
// reconciliation transfers a binding from an old element to its new
// counterpart (spec.md §4.2 "old=binding, new=binding" case).
func (a *Arena) Reparent(id, newParent NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if old := a.nodes[id].parent; old != 0 {
		a.detachChild(old, id)
	}
	a.nodes[id].parent = newParent
	if newParent != 0 {
		a.nodes[newParent].children = append(a.nodes[newParent].children, id)
	}
}

// Promote turns id into a root, preserving its current resolved value and
// re-parenting its children onto it. Used for the "old=binding, new=plain"
// case: "the old node becomes a root; the children stay bound to the now
// rootless node" (spec.md §4.2).
func (a *Arena) Promote(id NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	value := a.nodes[a.rootOf(id)].value
	if old := a.nodes[id].parent; old != 0 {
		a.detachChild(old, id)
	}
	a.nodes[id].parent = 0
	a.nodes[id].value = value
}

func (a *Arena) detachChild(parent, child NodeID) {
	siblings := a.nodes[parent].children
	for i, s := range siblings {
		if s == child {
			a.nodes[parent].children = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}

// Release marks id, and any descendants that become unreachable, as dead.
// Called when an element holding a binding leaves the tree for good
// (spec.md: "Weakness is enforced by dropping arena entries when elements
// are removed").
func (a *Arena) Release(id NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(id) <= 0 || int(id) >= len(a.nodes) {
		return
	}
	if parent := a.nodes[id].parent; parent != 0 {
		a.detachChild(parent, id)
	}
	for _, child := range a.collectSubtree(id) {
		a.nodes[child].live = false
		a.nodes[child].value = nil
	}
}

// Transfer moves ownership metadata of a node to belong to a different
// element id (used when reconciliation transfers the node from the old
// element to the matched new element's slot, per spec.md §4.2
// "old=binding, new=binding → transfer ownership metadata").
func (a *Arena) Transfer(id NodeID, newOwner uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes[id].owner = newOwner
}
