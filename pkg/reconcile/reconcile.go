// Package reconcile implements the Reconciler (spec.md §4.6): it pairs old
// and new elements produced by two consecutive builds of the same
// high-level element, by topology and by key, and transfers identity,
// bindings, and child sets from old to new so the rest of the tree (and
// the client) only ever sees the old, persistent element objects mutated
// in place.
//
// Grounded in vango-go-vango's pkg/vdom/diff.go (keyed vs. unkeyed child
// pairing, diffProps-style "update only what changed" walk) generalized
// from a fixed DOM vocabulary to the element model's dynamic property map,
// and in original_source/rio/observables/observable_property.py for the
// binding-transfer cases. Deep structural comparison uses
// github.com/google/go-cmp, following TroutSoftware-rx's use of the same
// library for value-equality checks.
package reconcile

import (
	"github.com/google/go-cmp/cmp"

	"github.com/weaveframe/weave/pkg/binding"
	"github.com/weaveframe/weave/pkg/element"
)

// Result is the outcome of reconciling one high-level element's build
// output against its previous output.
type Result struct {
	// Root is the reconciled root: the old root element if it matched the
	// new root, or the new root element verbatim if it did not (a type or
	// key mismatch at the root discards the whole previous subtree).
	Root element.Element

	// ChangedAttrs accumulates, per surviving old element id, the set of
	// attribute names whose value changed as part of this reconciliation -
	// the caller folds these into the session's change log so dependents
	// rebuild.
	ChangedAttrs map[uint64]map[string]struct{}

	// Matched maps every new element id that found an old counterpart to
	// that old element - used by the tree-remap pass to replace references.
	Matched map[uint64]element.Element

	// Discarded holds the ids of new elements that were matched (and so
	// must be dropped from the session's newly-created set - they were
	// never truly new).
	Discarded map[uint64]struct{}
}

// Reconcile runs the algorithm described in spec.md §4.6. oldKeyMap is the
// key map recorded against the old build (BuildData.KeyMap); the new
// build's key map is computed here (and a duplicate key is reported as an
// error, per spec.md §8 scenario 4).
func Reconcile(oldRoot element.Element, oldKeyMap map[string]element.Element, newRoot element.Element, arena *binding.Arena) (*Result, error) {
	newKeyMap, err := element.BuildKeyMap(newRoot)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ChangedAttrs: make(map[uint64]map[string]struct{}),
		Matched:      make(map[uint64]element.Element),
		Discarded:    make(map[uint64]struct{}),
	}

	type pair struct{ old, new element.Element }

	queue := []pair{{oldRoot, newRoot}}
	for key, newEl := range newKeyMap {
		if oldEl, ok := oldKeyMap[key]; ok {
			queue = append(queue, pair{oldEl, newEl})
		}
	}

	processed := make(map[uint64]bool)

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if p.old == nil || p.new == nil {
			continue
		}
		if processed[p.new.ID()] {
			continue
		}
		if p.old.ID() == p.new.ID() {
			continue
		}
		if p.old.TypeName() != p.new.TypeName() || p.old.Key() != p.new.Key() {
			continue
		}

		processed[p.new.ID()] = true
		res.Matched[p.new.ID()] = p.old
		res.Discarded[p.new.ID()] = struct{}{}

		reconcilePair(p.old, p.new, arena, res)

		oldFields := indexFields(element.ChildFields(p.old))
		for _, nf := range element.ChildFields(p.new) {
			of, ok := oldFields[nf.Name]
			if !ok {
				continue
			}
			if of.Single != nil && nf.Single != nil {
				queue = append(queue, pair{of.Single, nf.Single})
			}
			n := len(of.List)
			if len(nf.List) < n {
				n = len(nf.List)
			}
			for i := 0; i < n; i++ {
				queue = append(queue, pair{of.List[i], nf.List[i]})
			}
		}
	}

	if root, ok := res.Matched[newRoot.ID()]; ok {
		res.Root = root
	} else {
		res.Root = newRoot
	}

	remap(res.Root, res.Matched)

	return res, nil
}

func indexFields(fields []element.ChildField) map[string]element.ChildField {
	out := make(map[string]element.ChildField, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}

// reconcilePair applies the per-pair reconcile contract of spec.md §4.6 to
// a matched (old, new) pair. The old element survives; its properties are
// updated from the new element according to the set algebra
// `(old.set_by_creator - old.assigned_after_creation) ∪ new.set_by_creator`.
func reconcilePair(old, new element.Element, arena *binding.Arena, res *Result) {
	toUpdate := make(map[string]struct{})
	for n := range old.SetByCreator() {
		if _, assigned := old.AssignedAfterCreation()[n]; !assigned {
			toUpdate[n] = struct{}{}
		}
	}
	for n := range new.SetByCreator() {
		toUpdate[n] = struct{}{}
	}

	for name := range toUpdate {
		newVal := new.Peek(name)
		if isChildValue(newVal) {
			// Child-holding fields are reconciled by the BFS pairing pass,
			// not by value assignment.
			continue
		}

		oldBound, newBound := old.IsBound(name), new.IsBound(name)

		switch {
		case oldBound && newBound:
			reconcileBoundBound(old, new, name, arena, res)

		case oldBound && !newBound:
			oldNode, _ := old.BindingNode(name)
			oldVal := arena.GetValue(oldNode)
			arena.Promote(oldNode)
			if !valuesEqual(oldVal, newVal, res.Matched) {
				arena.SetValue(oldNode, newVal)
				recordChange(res, old.ID(), name)
			}
			old.ClearBinding(name, newVal)

		case !oldBound && newBound:
			newNode, _ := new.BindingNode(name)
			arena.Transfer(newNode, old.ID())
			old.SetBindingNode(name, newNode)
			recordChange(res, old.ID(), name)

		default:
			oldVal := old.Peek(name)
			if !valuesEqual(oldVal, newVal, res.Matched) {
				old.SetInternal(name, newVal)
				recordChange(res, old.ID(), name)
			}
		}
	}

	old.InheritSetByCreator(new.SetByCreator())
	old.SetOnPopulateTriggered(false)
}

// reconcileBoundBound implements "old=binding, new=binding -> transfer
// ownership metadata, children, and value from old to new; children
// re-parent to new": the new binding node (reflecting whatever source this
// build's constructor bound to) survives as the live node, adopting the
// old node's current value and any extra subscribers, while the old
// element's slot is repointed at it.
func reconcileBoundBound(old, new element.Element, name string, arena *binding.Arena, res *Result) {
	oldNode, _ := old.BindingNode(name)
	newNode, _ := new.BindingNode(name)

	oldVal := arena.GetValue(oldNode)
	newVal := arena.GetValue(newNode)

	if arena.IsRoot(newNode) {
		arena.SetValue(newNode, oldVal)
	}

	arena.Transfer(newNode, old.ID())
	old.SetBindingNode(name, newNode)
	arena.Release(oldNode)

	if !valuesEqual(oldVal, newVal, res.Matched) {
		recordChange(res, old.ID(), name)
	}
}

func recordChange(res *Result, ownerID uint64, name string) {
	set, ok := res.ChangedAttrs[ownerID]
	if !ok {
		set = make(map[string]struct{})
		res.ChangedAttrs[ownerID] = set
	}
	set[name] = struct{}{}
}

func isChildValue(v any) bool {
	switch v.(type) {
	case element.Element, []element.Element:
		return true
	default:
		return false
	}
}

// remap walks the reconciled tree and replaces every reference to a
// matched new-element with its old counterpart (spec.md §4.6 "Tree
// remap"). If no replacement is found for an element inside a fundamental
// element, its weak-parent is set to that fundamental's weak-parent so
// late children acquire a builder.
func remap(root element.Element, matched map[uint64]element.Element) {
	visited := make(map[uint64]bool)
	var walk func(e element.Element, parent element.Element)
	walk = func(e element.Element, parent element.Element) {
		if e == nil || visited[e.ID()] {
			return
		}
		visited[e.ID()] = true

		for _, f := range element.ChildFields(e) {
			if f.Single != nil {
				if old, ok := matched[f.Single.ID()]; ok {
					e.SetInternal(f.Name, element.Element(old))
					walk(old, e)
				} else {
					f.Single.SetParent(e)
					walk(f.Single, e)
				}
			}
			if f.List != nil {
				replaced := make([]element.Element, len(f.List))
				changed := false
				for i, c := range f.List {
					if old, ok := matched[c.ID()]; ok {
						replaced[i] = old
						changed = true
						walk(old, e)
					} else {
						c.SetParent(e)
						replaced[i] = c
						walk(c, e)
					}
				}
				if changed {
					e.SetInternal(f.Name, replaced)
				}
			}
		}
	}
	walk(root, nil)
}

// valuesEqual implements the "Reconciliation comparison" design note
// (spec.md §9): scalars and plain data compare structurally; element
// references compare by identity after mapping new -> old through the
// matched table.
func valuesEqual(a, b any, matched map[uint64]element.Element) bool {
	ae, aok := a.(element.Element)
	be, bok := b.(element.Element)
	if aok || bok {
		if !aok || !bok {
			return false
		}
		if resolved, ok := matched[be.ID()]; ok {
			be = resolved
		}
		return ae.ID() == be.ID()
	}
	return cmp.Equal(a, b)
}
