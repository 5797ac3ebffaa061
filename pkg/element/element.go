// Package element implements the dataclass/element model (spec.md §4.3)
// and the Element data model (spec.md §3): a declarative UI node whose
// declared fields are observable properties, with default-factory
// rewriting replaced (per spec.md §9's design note) by a struct of typed
// slots - here, a per-element property map with a small header per slot
// recording whether it is plain or bound, rather than Python's descriptor
// protocol.
//
// Grounded in vango-go-vango's pkg/vdom/vnode.go (Props map[string]any as
// the generic per-field storage - the same shape this package generalizes
// from a fixed DOM vocabulary to arbitrary declared element fields) and
// original_source/rio/observables/observable_property.go (the read/write
// semantics: record access on get, delegate-to-binding-or-store-and-mark-
// dirty on set).
package element

import (
	"sync/atomic"

	"github.com/weaveframe/weave/pkg/binding"
	"github.com/weaveframe/weave/pkg/reactive"
	"github.com/weaveframe/weave/pkg/weaveerr"
)

var idCounter atomic.Uint64

// NextID atomically assigns the next session-unique element id. Spec.md
// §3 requires "id assignment is atomic within a session" - a single
// process-wide counter satisfies that (and more).
func NextID() uint64 { return idCounter.Add(1) }

// Kind distinguishes fundamental elements (leaves understood directly by
// the client) from high-level elements (defined by a Build method).
type Kind int

const (
	// KindFundamental elements have no Build step; they go directly to the
	// serializer.
	KindFundamental Kind = iota
	// KindHighLevel elements are built into a tree of other elements.
	KindHighLevel
)

// BuildData holds a high-level element's last build output (spec.md §3).
type BuildData struct {
	Root                  Element
	ChildrenInBuildBoundary map[uint64]Element
	KeyMap                  map[string]Element
}

// Builder is implemented by high-level elements: user code that defines UI
// as a pure function of the element's observable properties.
type Builder interface {
	Build() Element
}

// Element is the common interface every concrete element type satisfies by
// embedding *Base (whose methods are promoted) and implementing Build when
// it is a high-level element.
type Element interface {
	ID() uint64
	Key() string
	Kind() Kind
	TypeName() string
	Parent() Element
	SetParent(Element)
	Data() *BuildData
	SetData(*BuildData)

	Peek(name string) any
	SetInternal(name string, value any)
	PropertyNames() []string

	SetByCreator() map[string]struct{}
	AssignedAfterCreation() map[string]struct{}
	InheritSetByCreator(map[string]struct{})

	OnPopulateTriggered() bool
	SetOnPopulateTriggered(bool)

	NeedsRebuildOnMount() bool
	SetNeedsRebuildOnMount(bool)

	IsBound(name string) bool
	BindingNode(name string) (binding.NodeID, bool)
	SetBindingNode(name string, node binding.NodeID)
	ClearBinding(name string, plainValue any)

	Handlers(tag string) []Handler
}

// Host is implemented by a Session (or test double) so that Base can
// report mutations and reach the session's binding arena without importing
// the session package.
type Host interface {
	Sink() reactive.ChangeSink
	Arena() *binding.Arena
}

// Base is embedded in every concrete element type. It carries the fields
// spec.md §3 lists for "Element": id, key, declared fields (here, a
// property map), weak parent reference, BuildData, the init/populate/
// rebuild flags, the two property-provenance sets, and a builtin-vs-user
// flag.
type Base struct {
	id      uint64
	key     string
	kind    Kind
	builtin bool
	typeName string

	parent Element
	data   *BuildData

	host Host

	constructing bool
	initCalled   bool

	onPopulateTriggered  bool
	needsRebuildOnMount  bool

	props                 map[string]any
	bindings              map[string]binding.NodeID
	setByCreator          map[string]struct{}
	assignedAfterCreation map[string]struct{}

	readonly map[string]struct{}

	eventHandlers map[string][]Handler
}

// Handler pairs a callback with per-tag configuration, matching spec.md
// §4.8 ("kept as a pair (callable, arg)").
type Handler struct {
	Fn  func(any)
	Arg any
}

// NewBase constructs the embedded element state. host is nil only for
// elements not yet attached to a session (e.g. during tests); setByCreator
// must list the field names the caller explicitly supplied, since Go has no runtime-inspectable call signature the way
// Python's generated __init__ does - this is the Go-idiomatic replacement
// for rio's bound-signature introspection (see DESIGN.md).
func NewBase(typeName string, key string, kind Kind, builtin bool, host Host, setByCreator []string) *Base {
	b := &Base{
		id:                    NextID(),
		key:                   key,
		kind:                  kind,
		builtin:               builtin,
		typeName:              typeName,
		host:                  host,
		constructing:          true,
		props:                 make(map[string]any),
		bindings:              make(map[string]binding.NodeID),
		setByCreator:          make(map[string]struct{}, len(setByCreator)),
		assignedAfterCreation: make(map[string]struct{}),
		readonly:              make(map[string]struct{}),
		eventHandlers:         make(map[string][]Handler),
	}
	for _, n := range setByCreator {
		b.setByCreator[n] = struct{}{}
	}
	if host != nil && host.Sink() != nil {
		host.Sink().RequireRefresh()
	}
	return b
}

// FinishConstruction must be called once, after the concrete constructor
// has assigned every field, before the element is reachable from anywhere
// else. It flips off the "constructing" flag that gates bind() and fires
// the post-init hook contract described in spec.md §4.3.
func (b *Base) FinishConstruction() {
	b.constructing = false
	b.initCalled = true
	b.MarkCreated()
}

// MarkCreated is a convenience forwarding to the host's change log; exposed
// separately from FinishConstruction so an element can be re-stamped as
// newly-created without re-running its constructor. It is a no-op when the
// host's sink has no MarkCreated method.
func (b *Base) MarkCreated() {
	if b.host == nil || b.host.Sink() == nil {
		return
	}
	if c, ok := b.host.Sink().(interface{ MarkCreated(id uint64) }); ok {
		c.MarkCreated(b.id)
	}
}

func (b *Base) ID() uint64   { return b.id }
func (b *Base) Key() string  { return b.key }
func (b *Base) Kind() Kind   { return b.kind }
func (b *Base) TypeName() string { return b.typeName }
func (b *Base) IsBuiltin() bool  { return b.builtin }

func (b *Base) Parent() Element      { return b.parent }
func (b *Base) SetParent(p Element)  { b.parent = p }

func (b *Base) Data() *BuildData     { return b.data }
func (b *Base) SetData(d *BuildData) { b.data = d }

// Constructing reports whether this element's constructor is still
// running - bind() is only legal while true (spec.md §4.2 failure modes).
func (b *Base) Constructing() bool { return b.constructing }

// SetByCreator returns the set of property names the caller explicitly
// supplied to the constructor.
func (b *Base) SetByCreator() map[string]struct{} { return b.setByCreator }

// AssignedAfterCreation returns the set of property names written by user
// code after construction completed (as opposed to by reconciliation).
func (b *Base) AssignedAfterCreation() map[string]struct{} { return b.assignedAfterCreation }

// InheritSetByCreator replaces this element's set-by-creator set, used by
// the reconciler: "the old element inherits new.set_by_creator" (spec.md
// §4.6).
func (b *Base) InheritSetByCreator(names map[string]struct{}) {
	b.setByCreator = names
}

// OnPopulateTriggered / SetOnPopulateTriggered track whether the
// on_populate lifecycle hook has already fired for this logical
// creation/reconciliation (spec.md §4.8).
func (b *Base) OnPopulateTriggered() bool   { return b.onPopulateTriggered }
func (b *Base) SetOnPopulateTriggered(v bool) { b.onPopulateTriggered = v }

// NeedsRebuildOnMount marks an element whose parent was not found in the
// live tree during ordering (spec.md §4.5.c).
func (b *Base) NeedsRebuildOnMount() bool      { return b.needsRebuildOnMount }
func (b *Base) SetNeedsRebuildOnMount(v bool)  { b.needsRebuildOnMount = v }

// MarkReadOnly declares name as a read-only property; subsequent Set or
// Bind calls against it fail.
func (b *Base) MarkReadOnly(name string) { b.readonly[name] = struct{}{} }

func (b *Base) isReadOnly(name string) bool {
	_, ro := b.readonly[name]
	return ro
}

// RegisterHandler appends a lifecycle/event handler under tag (e.g.
// "on_mount", "on_populate", "periodic").
func (b *Base) RegisterHandler(tag string, h Handler) {
	b.eventHandlers[tag] = append(b.eventHandlers[tag], h)
}

// Handlers returns the handlers registered under tag.
func (b *Base) Handlers(tag string) []Handler { return b.eventHandlers[tag] }

// Get reads a declared property, recording the access into the current
// build's access log (if any is active) - the core contract of
// ObservableProperty.__get__.
func (b *Base) Get(name string) any {
	if node, bound := b.bindings[name]; bound {
		if log := reactive.CurrentLog(); log != nil {
			log.RecordAttribute(b.id, name)
		}
		return b.host.Arena().GetValue(node)
	}
	if log := reactive.CurrentLog(); log != nil {
		log.RecordAttribute(b.id, name)
	}
	return b.props[name]
}

// Peek reads a property without recording access, used by the reconciler
// and serializer which must not participate in dependency tracking.
func (b *Base) Peek(name string) any {
	if node, bound := b.bindings[name]; bound {
		return b.host.Arena().GetValue(node)
	}
	return b.props[name]
}

// Set writes a declared property. If it is already a binding, the write is
// delegated to the binding root and rebroadcast to every sibling node
// (spec.md §4.2). Otherwise the value is stored directly and the owner is
// marked attribute-changed (spec.md §3, ObservableProperty). Writes made
// while this element itself is building are rejected (spec.md §4.5.d /
// §5).
func (b *Base) Set(name string, value any) error {
	if reactive.CheckSelfMutation(b.id) {
		return weaveerr.ErrSelfMutation
	}
	if b.isReadOnly(name) {
		return weaveerr.ErrReadOnlyProperty
	}

	if !b.constructing {
		b.assignedAfterCreation[name] = struct{}{}
	}

	if node, bound := b.bindings[name]; bound {
		b.host.Arena().SetValue(node, value)
		return nil
	}

	b.props[name] = value
	b.notifyChanged(name)
	return nil
}

// SetInternal is Set without the self-mutation guard and without recording
// assigned-after-creation - used by the reconciler when it transfers a
// property value from a new element onto its matched old element.
func (b *Base) SetInternal(name string, value any) {
	if node, bound := b.bindings[name]; bound {
		b.host.Arena().SetValue(node, value)
		return
	}
	b.props[name] = value
	b.notifyChanged(name)
}

func (b *Base) notifyChanged(name string) {
	if b.host == nil || b.host.Sink() == nil {
		return
	}
	b.host.Sink().MarkAttributeChanged(b.id, name)
	b.host.Sink().RequireRefresh()
}

// Bind turns property `name` on this element into a child binding node
// whose root is `source`'s corresponding property. It is the Go-idiomatic
// stand-in for `prop = bind().field`: Go has no attribute-assignment
// interception, so binding is established by an explicit call rather than
// by assigning a pending sentinel (see DESIGN.md). Must be called while
// this element is still under construction.
func (b *Base) Bind(name string, source *Base, sourceName string) error {
	if !b.constructing {
		return weaveerr.ErrBindingOutsideInit
	}
	if b.isReadOnly(name) || source.isReadOnly(sourceName) {
		return weaveerr.ErrReadOnlyProperty
	}
	if b.host == nil {
		return weaveerr.ErrBindingOutsideInit
	}

	arena := b.host.Arena()

	srcNode, already := source.bindings[sourceName]
	if !already {
		srcNode = arena.NewRoot(source.id, sourceName, source.props[sourceName])
		source.bindings[sourceName] = srcNode
	}

	child, ok := arena.NewChild(b.id, name, srcNode)
	if !ok {
		return weaveerr.ErrBindingOutsideInit
	}
	b.bindings[name] = child
	delete(b.props, name)
	return nil
}

// IsBound reports whether name is currently a binding node rather than a
// plain value.
func (b *Base) IsBound(name string) bool {
	_, ok := b.bindings[name]
	return ok
}

// BindingNode returns the arena node id backing name, if bound.
func (b *Base) BindingNode(name string) (binding.NodeID, bool) {
	n, ok := b.bindings[name]
	return n, ok
}

// SetBindingNode installs node as the binding backing name directly -
// used by the reconciler when transferring/recreating bindings across a
// reconcile pair.
func (b *Base) SetBindingNode(name string, node binding.NodeID) {
	b.bindings[name] = node
	delete(b.props, name)
}

// ClearBinding removes the binding on name, leaving whatever plain value is
// passed in its place (used for the "old=binding, new=plain" reconciliation
// case, spec.md §4.2).
func (b *Base) ClearBinding(name string, plainValue any) {
	delete(b.bindings, name)
	b.props[name] = plainValue
}

// PropertyNames returns every declared property name currently stored,
// bound or not - used by the serializer and reconciler to iterate an
// element's fields without static reflection.
func (b *Base) PropertyNames() []string {
	seen := make(map[string]struct{}, len(b.props)+len(b.bindings))
	names := make([]string, 0, len(b.props)+len(b.bindings))
	for n := range b.props {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	for n := range b.bindings {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	return names
}
