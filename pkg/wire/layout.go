package wire

// Layout is the set of computed layout fields every element carries on the
// wire regardless of type (spec.md §6, "Element state wire shape"):
// _margin_, _size_, _align_, _grow_.
type Layout struct {
	Margin [4]float64 // left, top, right, bottom
	Size   [2]float64 // width, height; "grow" tokens resolve to 0 here
	Align  [2]*float64
	Grow   [2]bool
}

// ResolveLayout computes Layout from an element's raw property map,
// following the precedence rule confirmed by original_source/rio/
// serialization.py and stated in spec.md §6/§8 scenario 6: per-side
// overrides axis overrides the catch-all "margin"/"align"/"size" value.
// Any property not present is treated as unset (falls through to 0 /
// false / nil).
func ResolveLayout(props map[string]any) Layout {
	var l Layout

	all := asFloat(props["margin"])
	x := asFloatOr(props["margin_x"], all)
	y := asFloatOr(props["margin_y"], all)

	l.Margin[0] = asFloatOr(props["margin_left"], x)
	l.Margin[1] = asFloatOr(props["margin_top"], y)
	l.Margin[2] = asFloatOr(props["margin_right"], x)
	l.Margin[3] = asFloatOr(props["margin_bottom"], y)

	w, wGrow := resolveSizeAxis(props["width"])
	h, hGrow := resolveSizeAxis(props["height"])
	l.Size[0], l.Size[1] = w, h
	l.Grow[0], l.Grow[1] = wGrow, hGrow

	if v, ok := props["grow_x"].(bool); ok {
		l.Grow[0] = v
	}
	if v, ok := props["grow_y"].(bool); ok {
		l.Grow[1] = v
	}

	l.Align[0] = asFloatPtr(props["align_x"])
	l.Align[1] = asFloatPtr(props["align_y"])

	return l
}

func resolveSizeAxis(v any) (size float64, grow bool) {
	if s, ok := v.(string); ok && s == "grow" {
		return 0, true
	}
	return asFloat(v), false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asFloatOr(v any, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return asFloat(v)
}

func asFloatPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	f := asFloat(v)
	return &f
}
