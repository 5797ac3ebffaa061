package reactive

import (
	"runtime"
	"sync"
)

// buildContext is the task-local state tracked while a single element's
// build() is executing. Grounded in vango-go-vango's TrackingContext
// (pkg/vango/tracking.go), trimmed to what the coarser element-level access
// log needs: the log itself, and the id of the element currently building
// (so a write to that same element's own property can be rejected per
// spec.md §4.5.d "forbid writes to the building element during its own
// build()").
type buildContext struct {
	log        *AccessLog
	buildingID uint64
	building   bool
}

var contexts sync.Map // goroutine id -> *buildContext

// goroutineID extracts the numeric goroutine id from the runtime stack
// header, exactly as vango-go-vango's getGoroutineID does. It is an
// implementation detail: Go has no public goroutine-local storage, and this
// is the idiom the teacher uses to fake it.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := 10; i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func current() *buildContext {
	gid := goroutineID()
	if v, ok := contexts.Load(gid); ok {
		return v.(*buildContext)
	}
	ctx := &buildContext{}
	contexts.Store(gid, ctx)
	return ctx
}

// BeginBuild activates an access log for the current goroutine and marks
// ownerID as the element currently under construction. It returns a
// restore function that must be deferred to pop the previous state -
// builds can nest when a high-level element's build() recurses into
// reconciliation of a nested high-level element.
func BeginBuild(ownerID uint64, log *AccessLog) (restore func()) {
	ctx := current()
	prevLog, prevID, prevBuilding := ctx.log, ctx.buildingID, ctx.building
	ctx.log, ctx.buildingID, ctx.building = log, ownerID, true
	return func() {
		ctx.log, ctx.buildingID, ctx.building = prevLog, prevID, prevBuilding
	}
}

// CurrentLog returns the access log active for this goroutine, or nil if no
// build is in progress (reads outside a build are no-ops on the logs, per
// spec.md §4.1).
func CurrentLog() *AccessLog {
	return current().log
}

// IsBuilding reports whether a build is currently active for this
// goroutine, and if so, which element is building.
func IsBuilding() (ownerID uint64, building bool) {
	ctx := current()
	return ctx.buildingID, ctx.building
}

// CheckSelfMutation returns true if ownerID is the element currently
// building - i.e. a write that should be rejected under spec.md §4.5.d /
// §5 ("No element mutation is permitted from within the same element's
// build()").
func CheckSelfMutation(ownerID uint64) bool {
	ctx := current()
	return ctx.building && ctx.buildingID == ownerID
}

// cleanupGoroutine removes the tracking context for the current goroutine.
// Exposed for worker pools that recycle goroutines across sessions.
func cleanupGoroutine() {
	contexts.Delete(goroutineID())
}

// CleanupGoroutine is the exported form of cleanupGoroutine, used by
// schedulers that run each build on a fresh worker and want to avoid
// leaking per-goroutine tracking state.
func CleanupGoroutine() { cleanupGoroutine() }
