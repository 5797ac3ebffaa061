package element

import "github.com/weaveframe/weave/pkg/weaveerr"

// ChildField describes one property of an element that holds one or more
// child elements - spec.md §4.6 "every field that may contain one or more
// child elements". Single holds a lone child reference (e.g. `Content
// Element`); List holds an ordered slice (e.g. `Children []Element`).
type ChildField struct {
	Name   string
	Single Element
	List   []Element
}

// ChildFields inspects e's declared properties and returns, in a stable
// order, every field whose stored value is an Element or []Element.
// Go has no static reflection over "fields that may contain child
// elements" the way a dataclass transform would - this inspects the
// property map that Base already maintains.
func ChildFields(e Element) []ChildField {
	names := e.PropertyNames()
	out := make([]ChildField, 0, len(names))
	for _, n := range names {
		v := e.Peek(n)
		switch val := v.(type) {
		case Element:
			out = append(out, ChildField{Name: n, Single: val})
		case []Element:
			out = append(out, ChildField{Name: n, List: val})
		}
	}
	return out
}

// WalkChildren visits every direct child element reference of e (both
// single and list fields), in field order then list order.
func WalkChildren(e Element, visit func(field string, index int, child Element)) {
	for _, f := range ChildFields(e) {
		if f.Single != nil {
			visit(f.Name, -1, f.Single)
		}
		for i, c := range f.List {
			visit(f.Name, i, c)
		}
	}
}

// BuildKeyMap walks root's build-output tree (without crossing into a
// nested high-level element's own, separately-built output - there is none
// reachable here, since a referenced high-level element's Data().Root is a
// distinct Element not stored in root's own properties) and returns a
// key -> element map scoped to this build boundary. A duplicate key within
// the same boundary is a hard error naming both elements and the shared
// key (spec.md invariants, §8 scenario 4).
func BuildKeyMap(root Element) (map[string]Element, error) {
	keyMap := make(map[string]Element)
	var walk func(e Element) error
	walk = func(e Element) error {
		if e == nil {
			return nil
		}
		if k := e.Key(); k != "" {
			if prev, dup := keyMap[k]; dup {
				return &DuplicateKeyError{Key: k, First: prev, Second: e}
			}
			keyMap[k] = e
		}
		var err error
		WalkChildren(e, func(_ string, _ int, child Element) {
			if err == nil {
				err = walk(child)
			}
		})
		return err
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return keyMap, nil
}

// DuplicateKeyError names both elements sharing a key, per spec.md §8
// scenario 4 ("raises a single error that names both elements and the
// shared key").
type DuplicateKeyError struct {
	Key    string
	First  Element
	Second Element
}

func (e *DuplicateKeyError) Error() string {
	return "weave: duplicate key " + e.Key + " on elements " + itoa(int(e.First.ID())) + " and " + itoa(int(e.Second.ID()))
}

func (e *DuplicateKeyError) Unwrap() error { return weaveerr.ErrDuplicateKey }

// Descendants returns every element reachable from root within this build
// boundary, root included - used to compute children_in_build_boundary
// (spec.md §4.4, §4.6).
func Descendants(root Element) map[uint64]Element {
	out := make(map[uint64]Element)
	var walk func(Element)
	walk = func(e Element) {
		if e == nil {
			return
		}
		if _, ok := out[e.ID()]; ok {
			return
		}
		out[e.ID()] = e
		WalkChildren(e, func(_ string, _ int, child Element) { walk(child) })
	}
	walk(root)
	return out
}
