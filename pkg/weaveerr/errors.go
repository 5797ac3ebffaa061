// Package weaveerr defines the typed error taxonomy shared by the
// reconciliation core. Every package wraps one of these sentinels with
// fmt.Errorf("...: %w", ...) rather than inventing ad hoc error strings, so
// callers can use errors.Is/errors.As against a stable set of values.
package weaveerr

import "errors"

// Construction errors: raised while an element is being built or assembled,
// before it ever reaches the scheduler.
var (
	// ErrDuplicateKey is raised when two elements in the same build
	// boundary share a non-empty key.
	ErrDuplicateKey = errors.New("weave: duplicate key within build boundary")

	// ErrReadDuringInit is raised when a declared property is read from
	// inside an element's constructor, before values are committed.
	ErrReadDuringInit = errors.New("weave: property read during construction")

	// ErrTypeMismatch is raised in debug mode when an assigned value does
	// not match a property's declared type.
	ErrTypeMismatch = errors.New("weave: value does not match declared type")

	// ErrMissingRequired is raised when a required field (one with no
	// default) is not supplied at construction.
	ErrMissingRequired = errors.New("weave: required field not supplied")
)

// Binding errors.
var (
	// ErrBindingOutsideInit is raised when bind().field is assigned to a
	// property outside of an element's constructor.
	ErrBindingOutsideInit = errors.New("weave: attribute binding created outside constructor")

	// ErrReadOnlyProperty is raised when a binding or assignment targets a
	// read-only property.
	ErrReadOnlyProperty = errors.New("weave: property is read-only")
)

// Build/scheduling errors.
var (
	// ErrRecursionLimit is raised when the same element is built five
	// times within a single refresh pass.
	ErrRecursionLimit = errors.New("weave: element rebuilt too many times in one pass")

	// ErrSelfMutation is raised when an element's build() writes to one of
	// its own observable properties.
	ErrSelfMutation = errors.New("weave: element mutated its own state during build")

	// ErrBuildPanic wraps a recovered panic from a user build() function.
	ErrBuildPanic = errors.New("weave: build() panicked")
)

// Wire-contract errors.
var (
	// ErrUnknownElement is raised when an incoming message references an
	// element id the session does not know about.
	ErrUnknownElement = errors.New("weave: unknown element id")

	// ErrInvalidStateUpdate is raised when a componentStateUpdate message
	// names unexpected keys or targets a read-only property.
	ErrInvalidStateUpdate = errors.New("weave: invalid component state update")
)

// Transport/session errors.
var (
	// ErrSessionClosed names an operation attempted on a session that has
	// already been closed. Session.Send on a closed session does not return
	// it: that send is a quiet no-op returning nil.
	ErrSessionClosed = errors.New("weave: session closed")

	// ErrTransportInterrupted is returned when the transport's send/receive
	// loop fails; the session moves to disconnected but is preserved.
	ErrTransportInterrupted = errors.New("weave: transport interrupted")
)
