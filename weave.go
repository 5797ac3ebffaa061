// Package weave provides the public API for the reconciliation engine.
//
// This is the recommended import for most applications:
//
//	import "github.com/weaveframe/weave"
//
// Usage:
//
//	sess := weave.NewSession(nil)
//	sess.SetRoot(myRootElement)
//	sess.RequireRefresh()
//
//	sched := &weave.Scheduler{Session: sess}
//	if err := sched.RunPass(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := weave.Router("/ws", weave.DefaultConfig(), newSession, logger)
//	http.ListenAndServe(":8080", mux)
package weave

import (
	"github.com/weaveframe/weave/pkg/dispatch"
	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/observability"
	"github.com/weaveframe/weave/pkg/persist"
	"github.com/weaveframe/weave/pkg/reactive"
	"github.com/weaveframe/weave/pkg/scheduler"
	"github.com/weaveframe/weave/pkg/session"
	"github.com/weaveframe/weave/pkg/transport"
	"github.com/weaveframe/weave/pkg/weaveerr"
	"github.com/weaveframe/weave/pkg/wire"
)

// =============================================================================
// Session (re-export from pkg/session)
// =============================================================================

// Session is one client's live element registry, reactive change log, and
// wire channel. Construct with NewSession and attach a root element with
// SetRoot before the first RunPass.
type Session = session.Session

// MessageChannel is the outbound half of a session's transport; Channel
// (pkg/transport) is the production implementation over a websocket.
type MessageChannel = session.MessageChannel

// NewSession creates a Session bound to channel. channel may be nil for
// tests or for sessions that are being built server-side before a client
// connects; attach one later with Session.SetChannel.
func NewSession(channel MessageChannel) *Session {
	return session.New(channel)
}

// =============================================================================
// Element model (re-export from pkg/element)
// =============================================================================

// Element is the common interface every concrete element type satisfies by
// embedding Base.
type Element = element.Element

// Base is embedded in every concrete element type; it carries the id, key,
// declared property map, parent reference, and build output.
type Base = element.Base

// Kind distinguishes fundamental elements (leaves the client understands
// directly) from high-level elements (defined by a Build method).
type Kind = element.Kind

const (
	KindFundamental = element.KindFundamental
	KindHighLevel   = element.KindHighLevel
)

// Host is implemented by a Session so that Base can report mutations and
// reach the session's binding arena without importing the session package.
type Host = element.Host

// Handler pairs a lifecycle callback with its per-tag configuration.
type Handler = element.Handler

// Builder is implemented by high-level elements: user code that defines a
// tree of other elements as a pure function of the element's properties.
type Builder = element.Builder

// BuildData holds a high-level element's last build output.
type BuildData = element.BuildData

// NewBase constructs the embedded element state for a new concrete element
// type. setByCreator must list the field names the constructor was
// explicitly passed, since Go has no runtime-inspectable call signature to
// derive that from automatically.
func NewBase(typeName, key string, kind Kind, builtin bool, host Host, setByCreator []string) *Base {
	return element.NewBase(typeName, key, kind, builtin, host, setByCreator)
}

// NextID atomically assigns the next session-unique element id.
func NextID() uint64 { return element.NextID() }

// =============================================================================
// Scheduler (re-export from pkg/scheduler)
// =============================================================================

// Scheduler runs refresh passes for one Session: collect dirty elements,
// order them parent-first, build, reconcile, derive mount/unmount sets, and
// emit one wire delta per cycle.
type Scheduler = scheduler.Scheduler

// =============================================================================
// Lifecycle dispatch (re-export from pkg/dispatch)
// =============================================================================

const (
	TagOnPopulate         = dispatch.TagOnPopulate
	TagOnMount            = dispatch.TagOnMount
	TagOnUnmount          = dispatch.TagOnUnmount
	TagOnPageChange       = dispatch.TagOnPageChange
	TagOnWindowSizeChange = dispatch.TagOnWindowSizeChange
	TagPeriodic           = dispatch.TagPeriodic
)

// PeriodicArg is the Handler.Arg payload for a TagPeriodic handler.
type PeriodicArg = dispatch.PeriodicArg

// Connector is implemented by a transport so StartPeriodic can push
// unsolicited messages outside of a refresh pass.
type Connector = dispatch.Connector

var (
	FirePopulate         = dispatch.FirePopulate
	FireUnmountThenMount = dispatch.FireUnmountThenMount
	FirePageChange       = dispatch.FirePageChange
	FireWindowSizeChange = dispatch.FireWindowSizeChange
	StartPeriodic        = dispatch.StartPeriodic
)

// =============================================================================
// Reactive primitives (re-export from pkg/reactive)
// =============================================================================

// Owner tracks a tree of cleanup callbacks; disposing a parent disposes its
// children first. Sessions and long-lived subscriptions anchor to one.
type Owner = reactive.Owner

// NewOwner creates an owner as a child of parent (nil for a root owner).
func NewOwner(parent *Owner) *Owner { return reactive.NewOwner(parent) }

// =============================================================================
// Wire protocol (re-export from pkg/wire)
// =============================================================================

// Envelope is the outer shape of every message exchanged over the
// transport, client-to-server and server-to-client alike.
type Envelope = wire.Envelope

// UpdateComponentStates is the delta message a Scheduler emits at the end
// of a refresh pass: one ElementState per built or mounted element.
type UpdateComponentStates = wire.UpdateComponentStates

// ElementState is a single element's wire-serialized property snapshot.
type ElementState = wire.ElementState

// ComponentStateUpdate is the client-to-server message for a user-driven
// property write (e.g. a bound text input).
type ComponentStateUpdate = wire.ComponentStateUpdate

// ComponentMessage is the client-to-server envelope for an element event
// handler invocation (e.g. on_click).
type ComponentMessage = wire.ComponentMessage

// =============================================================================
// Transport (re-export from pkg/transport)
// =============================================================================

// Config tunes a websocket transport: timeouts, heartbeat interval, and
// message size/compression limits.
type Config = transport.Config

// DefaultConfig returns production-sane Config values.
func DefaultConfig() Config { return transport.DefaultConfig() }

// Channel is the production MessageChannel: one session's outbound
// websocket connection.
type Channel = transport.Channel

// NewChannel wraps an upgraded websocket connection as a Channel.
var NewChannel = transport.NewChannel

// Dispatcher receives decoded client-to-server envelopes from ReadLoop.
type Dispatcher = transport.Dispatcher

var (
	Upgrader      = transport.Upgrader
	ReadLoop      = transport.ReadLoop
	HeartbeatLoop = transport.HeartbeatLoop
	RefreshLoop   = transport.RefreshLoop
	Serve         = transport.Serve
	Router        = transport.Router
)

// ServerConfig tunes the HTTP server hosting the websocket route.
type ServerConfig = transport.ServerConfig

// DefaultServerConfig returns production-sane ServerConfig values for the
// given listen address.
func DefaultServerConfig(addr string) ServerConfig { return transport.DefaultServerConfig(addr) }

// Server wraps an *http.Server with graceful shutdown on OS signal.
type Server = transport.Server

// NewServer constructs a Server that is not yet listening; call Run.
var NewServer = transport.NewServer

// =============================================================================
// Session persistence (re-export from pkg/persist)
// =============================================================================

// SessionStore persists and restores serialized session state across
// server restarts or horizontal scaling.
type SessionStore = persist.SessionStore

// SessionData is serialized session state plus its expiry.
type SessionData = persist.SessionData

// S3Store is a SessionStore backed by an S3-compatible object store, with
// expiry carried as object metadata.
type S3Store = persist.S3Store

// NewS3Store constructs an S3Store. prefix is prepended to every session
// id when forming an object key (e.g. "sess/").
var NewS3Store = persist.NewS3Store

// BindSessionStore wires a Session's Close to save its attachments into
// store under sessionID, and is the counterpart to ResumeSession.
var BindSessionStore = persist.Bind

// ResumeSession loads sessionID's last saved attachments from store, if
// any, and re-attaches them onto sess.
var ResumeSession = persist.Resume

// =============================================================================
// Observability (re-export from pkg/observability)
// =============================================================================

// MetricsConfig configures the Prometheus namespace/subsystem/labels a
// Metrics instance registers under.
type MetricsConfig = observability.MetricsConfig

// DefaultMetricsConfig returns the default "weave" namespace (no subsystem)
// registered against the global Prometheus registry.
func DefaultMetricsConfig() MetricsConfig { return observability.DefaultMetricsConfig() }

// Metrics implements scheduler.Metrics and transport error/session
// counters backed by Prometheus collectors.
type Metrics = observability.Metrics

// NewMetrics registers and returns a Metrics instance against config's
// registry (or the default global registry if config.Registry is nil).
func NewMetrics(config MetricsConfig) *Metrics { return observability.NewMetrics(config) }

// Tracer implements scheduler.Tracer, wrapping each refresh pass and build
// in an OpenTelemetry span.
type Tracer = observability.Tracer

// NewTracer returns a Tracer using the named OpenTelemetry tracer (falling
// back to a default name if empty).
func NewTracer(name string) *Tracer { return observability.NewTracer(name) }

// =============================================================================
// Errors (re-export from pkg/weaveerr)
// =============================================================================

var (
	ErrDuplicateKey         = weaveerr.ErrDuplicateKey
	ErrReadDuringInit       = weaveerr.ErrReadDuringInit
	ErrTypeMismatch         = weaveerr.ErrTypeMismatch
	ErrMissingRequired      = weaveerr.ErrMissingRequired
	ErrBindingOutsideInit   = weaveerr.ErrBindingOutsideInit
	ErrReadOnlyProperty     = weaveerr.ErrReadOnlyProperty
	ErrRecursionLimit       = weaveerr.ErrRecursionLimit
	ErrSelfMutation         = weaveerr.ErrSelfMutation
	ErrBuildPanic           = weaveerr.ErrBuildPanic
	ErrUnknownElement       = weaveerr.ErrUnknownElement
	ErrInvalidStateUpdate   = weaveerr.ErrInvalidStateUpdate
	ErrSessionClosed        = weaveerr.ErrSessionClosed
	ErrTransportInterrupted = weaveerr.ErrTransportInterrupted
)
