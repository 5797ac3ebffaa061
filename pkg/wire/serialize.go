package wire

import "github.com/weaveframe/weave/pkg/element"

// Serialize builds the wire-shape for e. If full is true every property is
// included (spec.md: "full set for newly mounted elements"); otherwise only
// the names in changed are included ("Property: serialize minimality").
// Child element references are flattened to their integer id (single) or a
// list of ids, never a nested object - the client already holds those
// elements from an earlier delta.
func Serialize(e element.Element, full bool, changed map[string]struct{}) ElementState {
	names := e.PropertyNames()
	props := make(map[string]any, len(names))
	raw := make(map[string]any, len(names))

	for _, name := range names {
		v := e.Peek(name)
		raw[name] = v
		if !full {
			if _, ok := changed[name]; !ok {
				continue
			}
		}
		props[name] = toWireValue(v)
	}

	typeName := e.TypeName()
	if e.Kind() == element.KindHighLevel {
		typeName = "Placeholder"
	}

	layout := ResolveLayout(raw)

	return ElementState{
		Type:       typeName,
		Key:        e.Key(),
		Margin:     layout.Margin,
		Size:       layout.Size,
		Align:      layout.Align,
		Grow:       layout.Grow,
		Properties: props,
	}
}

func toWireValue(v any) any {
	switch val := v.(type) {
	case element.Element:
		if val == nil {
			return nil
		}
		return val.ID()
	case []element.Element:
		ids := make([]uint64, len(val))
		for i, c := range val {
			ids[i] = c.ID()
		}
		return ids
	default:
		return v
	}
}

// FullDump serializes every live element, used when the transport
// reinitializes after a disconnect (spec.md §4.7 "Reconnect").
func FullDump(elements map[uint64]element.Element, rootID *uint64) UpdateComponentStates {
	states := make(map[uint64]ElementState, len(elements))
	for id, e := range elements {
		states[id] = Serialize(e, true, nil)
	}
	return UpdateComponentStates{DeltaStates: states, RootComponentID: rootID}
}
