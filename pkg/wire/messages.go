// Package wire implements the Serializer & delta emitter (spec.md §4.7)
// and the external message shapes (spec.md §6). Unlike the teacher's
// pkg/protocol (a binary varint framing, grounded in
// vango-go-vango/pkg/protocol/patch.go), this module's transport contract
// is "a bidirectional message channel transporting JSON documents" - the
// core defines shapes, not framing - so this package encodes with
// encoding/json rather than the teacher's varint encoder. The patch-op
// catalog and its depth/size DoS guards are kept as the grounding for
// what belongs in one message, adapted to JSON field names.
package wire

import "encoding/json"

// ElementState is the wire shape for one element (spec.md §6, "Element
// state wire shape"). Remaining, type-specific fields are carried in
// Properties and flattened into the same JSON object at encode time.
type ElementState struct {
	Type       string         `json:"_type_"`
	Key        string         `json:"_key_,omitempty"`
	Margin     [4]float64     `json:"_margin_"`
	Size       [2]float64     `json:"_size_"`
	Align      [2]*float64    `json:"_align_"`
	Grow       [2]bool        `json:"_grow_"`
	Properties map[string]any `json:"-"`
}

// MarshalJSON flattens Properties alongside the always-present metadata
// keys, matching spec.md's "Remaining fields: only those changed since the
// last send" - Properties is expected to already be trimmed to that set by
// the caller.
func (s ElementState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Properties)+5)
	for k, v := range s.Properties {
		out[k] = v
	}
	out["_type_"] = s.Type
	if s.Key != "" {
		out["_key_"] = s.Key
	}
	out["_margin_"] = s.Margin
	out["_size_"] = s.Size
	out["_align_"] = s.Align
	out["_grow_"] = s.Grow
	return json.Marshal(out)
}

// UpdateComponentStates is the core's principal outgoing message: a delta
// of partial element states, plus an optional new root id (spec.md §6).
type UpdateComponentStates struct {
	DeltaStates     map[uint64]ElementState `json:"delta_states"`
	RootComponentID *uint64                 `json:"root_component_id,omitempty"`
}

// EvaluateJavaScript is a fire-and-forget (or request/response, via
// RequestID) instruction to run source on the client.
type EvaluateJavaScript struct {
	Source    string  `json:"source"`
	RequestID *string `json:"request_id,omitempty"`
}

type SetKeyboardFocus struct {
	ID uint64 `json:"id"`
}

type SetTitle struct {
	Title string `json:"title"`
}

type ApplyTheme struct {
	CSSVars map[string]string `json:"css_vars"`
	Variant string            `json:"variant"`
}

type RegisterFont struct {
	Name string      `json:"name"`
	URLs [4]*string `json:"urls"`
}

type CloseSession struct{}

type RequestFileUpload struct {
	URL        string   `json:"url"`
	Extensions []string `json:"extensions"`
	Multiple   bool     `json:"multiple"`
}

type SetUserSettings struct {
	Delta map[string]any `json:"delta"`
}

type SetClipboard struct {
	Text string `json:"text"`
}

type GetClipboard struct {
	RequestID string `json:"request_id"`
}

type GetComponentLayouts struct {
	IDs       []uint64 `json:"ids"`
	RequestID string   `json:"request_id"`
}

// Incoming messages the session must accept (spec.md §6).

type ComponentStateUpdate struct {
	ID      uint64         `json:"id"`
	Partial map[string]any `json:"partial_state"`
}

type ComponentMessage struct {
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type OpenURL struct {
	URL string `json:"url"`
}

type OnURLChange struct {
	URL string `json:"url"`
}

type OnWindowSizeChange struct {
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Envelope is the outer shape every message (in either direction) is
// wrapped in so a single JSON decode can dispatch on Method before
// unmarshaling Params into the concrete type above.
type Envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}
