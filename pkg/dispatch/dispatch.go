// Package dispatch implements the Event & lifecycle dispatcher (spec.md
// §4.8): on_populate, on_mount/on_unmount, on_page_change/
// on_window_size_change, and periodic handlers. Grounded in
// vango-go-vango's pkg/vango/owner.go (RunPendingEffects/OnCleanup as the
// model for "a task that exits when its owner is disposed") and
// pkg/server/session.go's mount/unmount bookkeeping, generalized from
// Vango's per-signal effects to the coarse per-element handler tuples
// spec.md describes.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/reactive"
)

const (
	TagOnPopulate        = "on_populate"
	TagOnMount           = "on_mount"
	TagOnUnmount         = "on_unmount"
	TagOnPageChange      = "on_page_change"
	TagOnWindowSizeChange = "on_window_size_change"
	TagPeriodic          = "periodic"
)

// safeCall invokes fn, recovering any panic so that "handlers never crash
// the session" (spec.md §4.8 and §7 propagation rules).
func safeCall(log *slog.Logger, tag string, elementID uint64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("weave: lifecycle handler panicked", "tag", tag, "element", elementID, "panic", r)
			}
		}
	}()
	fn()
}

// FirePopulate runs e's on_populate handlers once per logical creation or
// successful reconciliation. Run synchronously and inline during the build
// step (spec.md §4.8), so it can mutate state read by build() - the
// caller is responsible for calling this before e.Build() and for
// dropping e's own resulting change-log entries afterward, per spec.md
// §4.8: "resulting self-mutations are dropped from the change log to
// avoid rebuilding the just-building element."
func FirePopulate(log *slog.Logger, e element.Element) {
	if e.OnPopulateTriggered() {
		return
	}
	e.SetOnPopulateTriggered(true)
	for _, h := range e.Handlers(TagOnPopulate) {
		safeCall(log, TagOnPopulate, e.ID(), func() { h.Fn(h.Arg) })
	}
}

// FireUnmountThenMount fires every on_unmount handler across unmounted,
// then every on_mount handler across mounted - unmount-before-mount
// ordering is mandated by spec.md §4.5.3 and §5 ("Handler order within a
// pass: on-unmount handlers precede on-mount handlers").
func FireUnmountThenMount(log *slog.Logger, unmounted, mounted []element.Element) {
	for _, e := range unmounted {
		for _, h := range e.Handlers(TagOnUnmount) {
			safeCall(log, TagOnUnmount, e.ID(), func() { h.Fn(h.Arg) })
		}
	}
	for _, e := range mounted {
		for _, h := range e.Handlers(TagOnMount) {
			safeCall(log, TagOnMount, e.ID(), func() { h.Fn(h.Arg) })
		}
	}
}

// FirePageChange dispatches on_page_change handlers across every live
// element that registered one.
func FirePageChange(log *slog.Logger, elements map[uint64]element.Element, url string) {
	for _, e := range elements {
		for _, h := range e.Handlers(TagOnPageChange) {
			arg, fn := h.Arg, h.Fn
			safeCall(log, TagOnPageChange, e.ID(), func() { fn(arg) })
			_ = url
		}
	}
}

// FireWindowSizeChange dispatches on_window_size_change handlers across
// every live element that registered one.
func FireWindowSizeChange(log *slog.Logger, elements map[uint64]element.Element, w, h float64) {
	for _, e := range elements {
		for _, handler := range e.Handlers(TagOnWindowSizeChange) {
			arg, fn := handler.Arg, handler.Fn
			safeCall(log, TagOnWindowSizeChange, e.ID(), func() { fn(arg) })
		}
	}
	_ = w
	_ = h
}

// PeriodicArg configures a periodic handler's interval.
type PeriodicArg struct {
	Interval time.Duration
}

// Connector lets a periodic worker wait until the session's transport is
// connected before firing, and trigger a refresh afterward.
type Connector interface {
	AwaitConnected(ctx context.Context) error
	RequireRefresh()
}

// StartPeriodic launches the background task backing a "periodic" handler
// (spec.md §4.8): it sleeps the configured interval, awaits the session's
// connected state, fires the handler, then requires a refresh. A handler
// never runs twice in parallel (enforced with a mutex); the task exits
// when owner is disposed (the element was garbage-collected / unmounted).
func StartPeriodic(log *slog.Logger, owner *reactive.Owner, elementID uint64, conn Connector, h element.Handler) {
	arg, _ := h.Arg.(PeriodicArg)
	if arg.Interval <= 0 {
		arg.Interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	owner.OnCleanup(cancel)

	var mu sync.Mutex

	go func() {
		defer reactive.CleanupGoroutine()
		ticker := time.NewTicker(arg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if err := conn.AwaitConnected(ctx); err != nil {
				return
			}

			if !mu.TryLock() {
				continue
			}
			safeCall(log, TagPeriodic, elementID, func() { h.Fn(h.Arg) })
			mu.Unlock()

			conn.RequireRefresh()
		}
	}()
}
