// Package scheduler implements the Build scheduler (spec.md §4.5): it
// fires whenever a session's refresh-required event is set, collects the
// components-to-build set, orders rebuilds parent-first, builds each
// element under the per-build access log, reconciles each high-level
// element's output against its previous one, and finally derives
// mount/unmount sets and emits one delta per cycle.
//
// Grounded in vango-go-vango's pkg/server/session.go flush()/renderDirty()
// (the "loop until nothing pending, with a cycle cap" shape this package's
// RunPass follows almost verbatim) and pkg/vango/owner.go's
// RunPendingEffects recursion pattern.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/weaveframe/weave/pkg/dispatch"
	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/reactive"
	"github.com/weaveframe/weave/pkg/reconcile"
	"github.com/weaveframe/weave/pkg/session"
	"github.com/weaveframe/weave/pkg/weaveerr"
	"github.com/weaveframe/weave/pkg/wire"
)

// maxBuildsPerElement is the recursion guard of spec.md §4.5.e: "If the
// same element is built five times in one pass, raise an error."
const maxBuildsPerElement = 5

// maxCyclesPerPass bounds the outer collect-build-emit-handlers loop so a
// misbehaving on_mount/on_unmount handler that keeps dirtying state cannot
// spin the session forever; grounded in vango-go-vango's session.go
// flush(), which uses the identical const maxCycles = 10 safety valve.
const maxCyclesPerPass = 10

// layoutAttrNames are the built-in attributes that must always cause their
// owning element to be (re)visited even if nothing observes them, so the
// serializer can ship updated _margin_/_size_/_align_/_grow_ (spec.md
// §4.5.a "any element whose own built-in layout attributes changed").
var layoutAttrNames = map[string]struct{}{
	"margin": {}, "margin_x": {}, "margin_y": {},
	"margin_left": {}, "margin_top": {}, "margin_right": {}, "margin_bottom": {},
	"width": {}, "height": {}, "align_x": {}, "align_y": {}, "grow_x": {}, "grow_y": {},
}

// Metrics is implemented by pkg/observability to instrument build passes;
// nil-safe, so tests and minimal setups can omit it.
type Metrics interface {
	ObserveBuild(d time.Duration)
	IncRecursionErrors()
}

// Tracer is implemented by pkg/observability to wrap each refresh pass and
// build in a span; nil-safe.
type Tracer interface {
	StartRefresh(ctx context.Context) (context.Context, func())
	StartBuild(ctx context.Context, elementID uint64) (context.Context, func())
}

// Scheduler runs refresh passes for one Session.
type Scheduler struct {
	Session *session.Session
	Log     *slog.Logger
	Metrics Metrics
	Tracer  Tracer

	// RootID, once the session's root has its first fundamental
	// descendant, is announced as the wire root (spec.md §4.7: "The
	// high-level root element is never sent; its first fundamental child
	// is announced as root instead.").
	RootID func() *uint64
}

// RunPass executes one full refresh: the outer loop of spec.md §4.5/§5,
// holding the session's refresh lock for its entire duration.
func (sc *Scheduler) RunPass(ctx context.Context) error {
	sc.Session.RefreshLock().Lock()
	defer sc.Session.RefreshLock().Unlock()

	if sc.Tracer != nil {
		var end func()
		ctx, end = sc.Tracer.StartRefresh(ctx)
		defer end()
	}

	buildCounts := make(map[uint64]int)

	for cycle := 0; cycle < maxCyclesPerPass; cycle++ {
		built, mounted, unmounted, changedAttrs, err := sc.runCycle(ctx, buildCounts)
		if err != nil {
			return err
		}
		if len(built) == 0 && len(mounted) == 0 && len(unmounted) == 0 {
			break
		}

		if err := sc.emit(built, mounted, changedAttrs); err != nil {
			return err
		}

		dispatch.FireUnmountThenMount(sc.Log, unmounted, mounted)

		if sc.Session.ChangeLog().IsEmpty() {
			break
		}
		if cycle == maxCyclesPerPass-1 && sc.Log != nil {
			sc.Log.Warn("weave: refresh pass hit cycle cap, state may still be dirty")
		}
	}

	return nil
}

// runCycle runs spec.md §4.5 step 2 to completion (build until the
// components-to-build set is empty) and then derives the mount/unmount
// sets for everything built this cycle (step 3's first half).
func (sc *Scheduler) runCycle(ctx context.Context, buildCounts map[uint64]int) (built, mounted, unmounted []element.Element, changedAttrs map[uint64]map[string]struct{}, err error) {
	// The registry, not a property-graph walk, is the authoritative live
	// set: a high-level element's build output lives in its BuildData, not
	// in any property slot reachable from the session root, so only
	// Session.Register (called per build-boundary descendant in buildOne)
	// keeps track of what is actually live.
	before := sc.Session.Elements()
	changedAttrs = make(map[uint64]map[string]struct{})

	for {
		toVisit, toBuild := sc.collect(changedAttrs)
		for _, e := range toVisit {
			if e.Kind() == element.KindFundamental {
				built = append(built, e)
			}
		}
		if len(toBuild) == 0 {
			break
		}

		ordered, deferred := sc.order(toBuild)
		for _, e := range deferred {
			e.SetNeedsRebuildOnMount(true)
		}

		for _, e := range ordered {
			buildCounts[e.ID()]++
			if buildCounts[e.ID()] >= maxBuildsPerElement {
				if sc.Metrics != nil {
					sc.Metrics.IncRecursionErrors()
				}
				return nil, nil, nil, nil, fmt.Errorf("element %d: %w", e.ID(), weaveerr.ErrRecursionLimit)
			}

			if buildErr := sc.buildOne(ctx, e, changedAttrs); buildErr != nil {
				if sc.Log != nil {
					sc.Log.Error("weave: build failed, keeping previous output", "element", e.ID(), "error", buildErr)
				}
				continue
			}
			built = append(built, e)
			// e itself is a high-level element and is never shipped over the
			// wire; what the client needs is the fundamental tree its build
			// boundary just produced.
			if data := e.Data(); data != nil {
				for _, child := range data.ChildrenInBuildBoundary {
					built = append(built, child)
				}
			}
		}
	}

	after := sc.Session.Elements()
	for id, e := range after {
		if _, existed := before[id]; !existed {
			mounted = append(mounted, e)
		}
	}
	for id, e := range before {
		if _, still := after[id]; !still {
			unmounted = append(unmounted, e)
		}
	}
	return built, mounted, unmounted, changedAttrs, nil
}

func mergeChanged(dst map[uint64]map[string]struct{}, ownerID uint64, name string) {
	set, ok := dst[ownerID]
	if !ok {
		set = make(map[string]struct{})
		dst[ownerID] = set
	}
	set[name] = struct{}{}
}

// collect implements spec.md §4.5.a/b: union the newly-created set with
// every element observing a changed object/attribute/item, plus any
// element whose own attribute change must be shipped directly (fundamental
// elements, and built-in layout attributes on any element), then clears
// the logs. It returns both the full visit set and the subset of it that
// is buildable (high-level elements).
func (sc *Scheduler) collect(changedAttrs map[uint64]map[string]struct{}) (toVisit map[uint64]element.Element, toBuild []element.Element) {
	created, objects, attrs, items := sc.Session.ChangeLog().Snapshot()

	toVisit = make(map[uint64]element.Element)
	add := func(id uint64) {
		if e, ok := sc.Session.Lookup(id); ok {
			toVisit[id] = e
		}
	}

	for id := range created {
		add(id)
	}
	for objID := range objects {
		for obsID := range sc.Session.ObserversOfObject(objID) {
			add(obsID)
		}
	}
	for ownerID, names := range attrs {
		for name := range names {
			mergeChanged(changedAttrs, ownerID, name)
			for obsID := range sc.Session.ObserversOfAttribute(ownerID, name) {
				add(obsID)
			}
		}
		if e, ok := sc.Session.Lookup(ownerID); ok {
			if e.Kind() == element.KindFundamental {
				toVisit[ownerID] = e
			} else {
				for name := range names {
					if _, isLayout := layoutAttrNames[name]; isLayout {
						toVisit[ownerID] = e
					}
				}
			}
		}
	}
	for ownerID, keys := range items {
		for key := range keys {
			for obsID := range sc.Session.ObserversOfItem(ownerID, key) {
				add(obsID)
			}
		}
	}

	for _, e := range toVisit {
		if e.Kind() == element.KindHighLevel {
			toBuild = append(toBuild, e)
		}
	}
	return toVisit, toBuild
}

// order sorts toBuild parent-first by distance from the session root.
// Elements whose parent chain does not reach the root (not currently in
// the live tree) are returned separately, marked needs_rebuild_on_mount
// and skipped this pass (spec.md §4.5.c).
func (sc *Scheduler) order(toBuild []element.Element) (ordered, deferred []element.Element) {
	levels := make(map[uint64]int)
	root := sc.Session.Root()
	if root != nil {
		levels[root.ID()] = 0
	}

	level := func(e element.Element) (int, bool) {
		depth := 0
		cur := e
		for cur != nil {
			if l, ok := levels[cur.ID()]; ok {
				return l + depth, true
			}
			cur = cur.Parent()
			depth++
			if depth > 100000 {
				return 0, false
			}
		}
		return 0, false
	}

	type leveled struct {
		e element.Element
		l int
	}
	var known []leveled
	for _, e := range toBuild {
		if l, ok := level(e); ok {
			known = append(known, leveled{e, l})
		} else {
			deferred = append(deferred, e)
		}
	}
	sort.SliceStable(known, func(i, j int) bool { return known[i].l < known[j].l })
	for _, k := range known {
		ordered = append(ordered, k.e)
	}
	return ordered, deferred
}

// buildOne implements spec.md §4.5.d for a single element: fire pending
// on_populate, clear and activate the access log, call build(), record
// the log, reconcile against the previous output, and recompute
// children_in_build_boundary.
func (sc *Scheduler) buildOne(ctx context.Context, e element.Element, changedAttrs map[uint64]map[string]struct{}) error {
	builder, ok := e.(element.Builder)
	if !ok {
		return nil
	}

	dispatch.FirePopulate(sc.Log, e)

	if sc.Tracer != nil {
		var end func()
		ctx, end = sc.Tracer.StartBuild(ctx, e.ID())
		defer end()
	}
	_ = ctx

	start := time.Now()
	log := reactive.NewAccessLog()
	restore := reactive.BeginBuild(e.ID(), log)
	newTree := builder.Build()
	restore()
	if sc.Metrics != nil {
		sc.Metrics.ObserveBuild(time.Since(start))
	}

	sc.Session.RecordAccess(e.ID(), log)

	prev := e.Data()
	var reconciled element.Element
	var keyMap map[string]element.Element

	if prev == nil || prev.Root == nil {
		var err error
		keyMap, err = element.BuildKeyMap(newTree)
		if err != nil {
			return err
		}
		assignParents(newTree, e)
		reconciled = newTree
	} else {
		res, err := reconcile.Reconcile(prev.Root, prev.KeyMap, newTree, sc.Session.Arena())
		if err != nil {
			return err
		}
		for ownerID, names := range res.ChangedAttrs {
			for name := range names {
				mergeChanged(changedAttrs, ownerID, name)
				sc.Session.MarkAttributeChanged(ownerID, name)
			}
		}
		reconciled = res.Root
		var err2 error
		keyMap, err2 = element.BuildKeyMap(reconciled)
		if err2 != nil {
			return err2
		}
	}

	for id, child := range element.Descendants(reconciled) {
		sc.Session.Register(child)
		_ = id
	}

	e.SetData(&element.BuildData{
		Root:                    reconciled,
		ChildrenInBuildBoundary: element.Descendants(reconciled),
		KeyMap:                  keyMap,
	})

	return nil
}

func assignParents(root, parent element.Element) {
	element.WalkChildren(root, func(_ string, _ int, child element.Element) {
		child.SetParent(root)
		assignParents(child, root)
	})
	if parent != nil {
		root.SetParent(parent)
	}
}

// emit serializes and sends the delta for this cycle (spec.md §4.7): every
// element in the union of {built} ∪ {mounted} is visited; mounted elements
// get a full property set, built-but-not-newly-mounted elements get only
// their changed properties.
func (sc *Scheduler) emit(built, mounted []element.Element, changedSets map[uint64]map[string]struct{}) error {
	mountedSet := make(map[uint64]struct{}, len(mounted))
	for _, e := range mounted {
		mountedSet[e.ID()] = struct{}{}
	}

	states := make(map[uint64]wire.ElementState)
	for _, e := range built {
		if e == nil || e.ID() == sc.rootID() {
			continue
		}
		_, isMounted := mountedSet[e.ID()]
		states[e.ID()] = wire.Serialize(e, isMounted, changedSets[e.ID()])
	}
	for _, e := range mounted {
		if e.ID() == sc.rootID() {
			continue
		}
		if _, already := states[e.ID()]; already {
			continue
		}
		states[e.ID()] = wire.Serialize(e, true, nil)
	}

	if len(states) == 0 {
		return nil
	}

	var rootID *uint64
	if sc.RootID != nil {
		rootID = sc.RootID()
	}

	return sc.Session.Send(wire.UpdateComponentStates{DeltaStates: states, RootComponentID: rootID})
}

func (sc *Scheduler) rootID() uint64 {
	if root := sc.Session.Root(); root != nil {
		return root.ID()
	}
	return 0
}
