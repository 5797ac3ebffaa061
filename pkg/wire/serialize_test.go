package wire

import (
	"encoding/json"
	"testing"

	"github.com/weaveframe/weave/pkg/binding"
	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/reactive"
)

type fakeSink struct{}

func (fakeSink) MarkObjectChanged(uint64)           {}
func (fakeSink) MarkAttributeChanged(uint64, string) {}
func (fakeSink) MarkItemChanged(uint64, string)      {}
func (fakeSink) RequireRefresh()                     {}

type fakeHost struct{ arena *binding.Arena }

func newFakeHost() *fakeHost                    { return &fakeHost{arena: binding.NewArena(nil)} }
func (h *fakeHost) Sink() reactive.ChangeSink   { return fakeSink{} }
func (h *fakeHost) Arena() *binding.Arena       { return h.arena }

func newTextElement(host element.Host, text string, width any) *element.Base {
	b := element.NewBase("Text", "", element.KindFundamental, true, host, []string{"text", "width"})
	b.SetInternal("text", text)
	b.SetInternal("width", width)
	b.FinishConstruction()
	return b
}

func TestSerialize_FullIncludesEveryProperty(t *testing.T) {
	host := newFakeHost()
	e := newTextElement(host, "hi", "grow")

	state := Serialize(e, true, nil)

	if state.Type != "Text" {
		t.Errorf("Type = %q, want Text", state.Type)
	}
	if state.Properties["text"] != "hi" {
		t.Errorf("Properties[text] = %v, want hi", state.Properties["text"])
	}
	if !state.Grow[0] {
		t.Errorf("expected width=grow resolved into Grow[0]")
	}
}

func TestSerialize_PartialOnlyIncludesChangedNames(t *testing.T) {
	host := newFakeHost()
	e := newTextElement(host, "hi", 10.0)

	changed := map[string]struct{}{"text": {}}
	state := Serialize(e, false, changed)

	if _, ok := state.Properties["text"]; !ok {
		t.Errorf("expected changed property \"text\" included")
	}
	if _, ok := state.Properties["width"]; ok {
		t.Errorf("expected unchanged property \"width\" excluded, got %v", state.Properties)
	}
	// layout is always recomputed from the full raw property set regardless
	// of what is included in the delta's Properties.
	if state.Size[0] != 10 {
		t.Errorf("Size[0] = %v, want 10 (computed from raw width even though omitted from delta)", state.Size[0])
	}
}

func TestSerialize_HighLevelElementBecomesPlaceholder(t *testing.T) {
	host := newFakeHost()
	b := element.NewBase("MyComponent", "", element.KindHighLevel, false, host, nil)
	b.FinishConstruction()

	state := Serialize(b, true, nil)
	if state.Type != "Placeholder" {
		t.Errorf("Type = %q, want Placeholder for a high-level element", state.Type)
	}
}

func TestSerialize_ChildElementFlattensToID(t *testing.T) {
	host := newFakeHost()
	child := newTextElement(host, "child", nil)
	parent := element.NewBase("Container", "", element.KindFundamental, true, host, []string{"content"})
	parent.SetInternal("content", element.Element(child))
	parent.FinishConstruction()

	state := Serialize(parent, true, nil)
	if got, ok := state.Properties["content"].(uint64); !ok || got != child.ID() {
		t.Fatalf("Properties[content] = %v, want child id %d", state.Properties["content"], child.ID())
	}
}

func TestElementState_MarshalJSON_OmitsEmptyKey(t *testing.T) {
	state := ElementState{Type: "Text", Properties: map[string]any{"text": "hi"}}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := out["_key_"]; ok {
		t.Errorf("expected _key_ omitted when empty, got %v", out)
	}
	if out["_type_"] != "Text" {
		t.Errorf("_type_ = %v, want Text", out["_type_"])
	}
	if out["text"] != "hi" {
		t.Errorf("text = %v, want hi", out["text"])
	}
}

func TestFullDump_SerializesEveryElementFully(t *testing.T) {
	host := newFakeHost()
	a := newTextElement(host, "a", nil)
	b := newTextElement(host, "b", nil)
	root := a.ID()

	dump := FullDump(map[uint64]element.Element{a.ID(): a, b.ID(): b}, &root)

	if len(dump.DeltaStates) != 2 {
		t.Fatalf("DeltaStates has %d entries, want 2", len(dump.DeltaStates))
	}
	if dump.RootComponentID == nil || *dump.RootComponentID != a.ID() {
		t.Fatalf("RootComponentID = %v, want %d", dump.RootComponentID, a.ID())
	}
}
