// Package session implements the Session component (spec.md §3, §4.4):
// the per-client container owning the element registry, the derived dirty
// sets that feed the build scheduler, the binding arena, and the message
// I/O pair to the transport.
//
// Grounded in vango-go-vango's pkg/server/session.go (the session as the
// owner of an element/component registry plus a refresh lock guarding one
// full build-reconcile-serialize pass) and pkg/server/component.go (the
// per-element dirty flag feeding scheduleRender). The fine-grained
// per-signal dirtying vango-go-vango uses is replaced here by the coarser,
// per-element access-log/change-log scheme spec.md's Observable substrate
// describes (pkg/reactive).
package session

import (
	"sync"
	"time"

	"github.com/weaveframe/weave/pkg/binding"
	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/reactive"
)

// MessageChannel abstracts the bidirectional JSON message channel spec.md
// §6 requires without mandating a framing. The reference implementation is
// pkg/transport's websocket adapter; tests use an in-memory fake.
type MessageChannel interface {
	Send(msg any) error
	Close() error
}

// Session is the server-side state backing one connected client.
type Session struct {
	mu sync.RWMutex

	root     element.Element
	elements map[uint64]element.Element

	// subscriptions maps a changed-object/attribute/item key to the set of
	// element ids whose last access log recorded reading it - the reverse
	// index the scheduler's collect step walks to compute "elements observing any
	// changed object/attribute/item" (spec.md §4.5.a).
	objectSubs    map[uint64]map[uint64]struct{}
	attributeSubs map[string]map[uint64]struct{}
	itemSubs      map[string]map[uint64]struct{}

	changeLog *reactive.ChangeLog
	arena     *binding.Arena

	refreshMu      sync.Mutex
	refreshPending chan struct{}

	attachments map[string]any

	lastInteraction time.Time

	channel MessageChannel
	closed  bool

	onClose []func()
}

// New creates a Session with no root yet (set via SetRoot once the root
// element's constructor has run with this session as its host).
func New(channel MessageChannel) *Session {
	s := &Session{
		elements:        make(map[uint64]element.Element),
		objectSubs:      make(map[uint64]map[uint64]struct{}),
		attributeSubs:   make(map[string]map[uint64]struct{}),
		itemSubs:        make(map[string]map[uint64]struct{}),
		changeLog:       reactive.NewChangeLog(),
		refreshPending:  make(chan struct{}, 1),
		attachments:     make(map[string]any),
		lastInteraction: time.Now(),
		channel:         channel,
	}
	s.arena = binding.NewArena(s.onBindingChanged)
	return s
}

func (s *Session) onBindingChanged(node binding.NodeID) {
	ownerID, attr := s.arena.Owner(node)
	s.changeLog.MarkAttributeChanged(ownerID, attr)
	s.RequireRefresh()
}

// Sink implements element.Host: elements report mutations here.
func (s *Session) Sink() reactive.ChangeSink { return s }

// Arena implements element.Host.
func (s *Session) Arena() *binding.Arena { return s.arena }

// --- reactive.ChangeSink ---

func (s *Session) MarkObjectChanged(ownerID uint64) {
	s.changeLog.MarkObjectChanged(ownerID)
	s.RequireRefresh()
}

func (s *Session) MarkAttributeChanged(ownerID uint64, name string) {
	s.changeLog.MarkAttributeChanged(ownerID, name)
	s.RequireRefresh()
}

func (s *Session) MarkItemChanged(ownerID uint64, key string) {
	s.changeLog.MarkItemChanged(ownerID, key)
	s.RequireRefresh()
}

// MarkCreated records id as newly created in the change log; elements reach
// it through Sink when their construction finishes.
func (s *Session) MarkCreated(id uint64) {
	s.changeLog.MarkCreated(id)
}

// RequireRefresh sets the refresh-required event (spec.md §4.1). It is
// non-blocking: if a refresh is already pending, this is a no-op.
func (s *Session) RequireRefresh() {
	select {
	case s.refreshPending <- struct{}{}:
	default:
	}
}

// RefreshRequired returns the channel the build scheduler awaits.
func (s *Session) RefreshRequired() <-chan struct{} { return s.refreshPending }

// ChangeLog exposes the session's change log to the build scheduler.
func (s *Session) ChangeLog() *reactive.ChangeLog { return s.changeLog }

// --- element registry ---

// Register adds e to the session's element-by-id map. Called once per
// element, right after its constructor finishes.
func (s *Session) Register(e element.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[e.ID()] = e
}

// Unregister removes e from the registry (called when an element is
// unmounted and has no remaining live reference).
func (s *Session) Unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, id)
	for _, subs := range s.objectSubs {
		delete(subs, id)
	}
	for _, subs := range s.attributeSubs {
		delete(subs, id)
	}
	for _, subs := range s.itemSubs {
		delete(subs, id)
	}
}

// Lookup returns the live element for id, if any.
func (s *Session) Lookup(id uint64) (element.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elements[id]
	return e, ok
}

// Elements returns a snapshot of every live element, used for full resync.
func (s *Session) Elements() map[uint64]element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64]element.Element, len(s.elements))
	for k, v := range s.elements {
		out[k] = v
	}
	return out
}

// Root / SetRoot manage the session's permanent root element (spec.md
// §3 invariant: "The root element of a session exists for the session's
// entire lifetime.").
func (s *Session) Root() element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

func (s *Session) SetRoot(e element.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = e
	s.elements[e.ID()] = e
}

// --- subscription index used by the build scheduler's Collect step ---

func objKey(id uint64) uint64 { return id }
func attrKey(id uint64, name string) string {
	return itoaUint(id) + "\x00" + name
}
func itemKey(id uint64, key string) string {
	return itoaUint(id) + "\x01" + key
}

func itoaUint(id uint64) string {
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for id > 0 {
		pos--
		buf[pos] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[pos:])
}

// RecordAccess folds an element's just-completed build's access log into
// the subscription index, first clearing whatever it previously
// subscribed to (spec.md §4.5.d: "Record the access log against the
// element so subsequent changes to those observables mark this element
// dirty").
func (s *Session) RecordAccess(elementID uint64, log *reactive.AccessLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subs := range s.objectSubs {
		delete(subs, elementID)
	}
	for _, subs := range s.attributeSubs {
		delete(subs, elementID)
	}
	for _, subs := range s.itemSubs {
		delete(subs, elementID)
	}

	if log == nil {
		return
	}
	for objID := range log.Objects {
		k := objKey(objID)
		set, ok := s.objectSubs[k]
		if !ok {
			set = make(map[uint64]struct{})
			s.objectSubs[k] = set
		}
		set[elementID] = struct{}{}
	}
	for ownerID, names := range log.Attributes {
		for name := range names {
			k := attrKey(ownerID, name)
			set, ok := s.attributeSubs[k]
			if !ok {
				set = make(map[uint64]struct{})
				s.attributeSubs[k] = set
			}
			set[elementID] = struct{}{}
		}
	}
	for ownerID, keys := range log.Items {
		for key := range keys {
			k := itemKey(ownerID, key)
			set, ok := s.itemSubs[k]
			if !ok {
				set = make(map[uint64]struct{})
				s.itemSubs[k] = set
			}
			set[elementID] = struct{}{}
		}
	}
}

// ObserversOfObject returns the elements whose last build read objID as a
// whole object.
func (s *Session) ObserversOfObject(objID uint64) map[uint64]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySet(s.objectSubs[objKey(objID)])
}

// ObserversOfAttribute returns the elements whose last build read
// ownerID.name.
func (s *Session) ObserversOfAttribute(ownerID uint64, name string) map[uint64]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySet(s.attributeSubs[attrKey(ownerID, name)])
}

// ObserversOfItem returns the elements whose last build read item key on
// ownerID.
func (s *Session) ObserversOfItem(ownerID uint64, key string) map[uint64]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySet(s.itemSubs[itemKey(ownerID, key)])
}

func copySet(in map[uint64]struct{}) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// --- attachments (strong, keyed by concrete type name) ---

func (s *Session) Attach(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[key] = value
}

func (s *Session) Attachment(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attachments[key]
	return v, ok
}

// Attachments returns a shallow copy of every value stashed via Attach, for
// a caller that needs to snapshot the whole set (e.g. pkg/persist, on
// Close - see OnClose).
func (s *Session) Attachments() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.attachments))
	for k, v := range s.attachments {
		out[k] = v
	}
	return out
}

// --- interaction / transport ---

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInteraction = time.Now()
}

func (s *Session) LastInteraction() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInteraction
}

// Send delivers msg to the client over the session's message channel.
func (s *Session) Send(msg any) error {
	s.mu.RLock()
	ch := s.channel
	closed := s.closed
	s.mu.RUnlock()
	if closed || ch == nil {
		return nil
	}
	return ch.Send(msg)
}

// SetChannel swaps in a new transport after reconnection.
func (s *Session) SetChannel(ch MessageChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
	s.closed = false
}

// OnClose registers a cleanup to run when the session is closed, in
// addition to element disposal - used for e.g. flushing persisted state.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Close tears down the session: the close event fires, registered cleanups
// run, then the transport is closed. Elements are left in place (spec.md
// §7: "Transport interrupted... elements are preserved").
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.onClose
	ch := s.channel
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	if ch != nil {
		return ch.Close()
	}
	return nil
}

// IsClosed reports whether Close has run.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// RefreshLock must be held for the duration of one full build/reconcile/
// serialize/emit pass (spec.md §5 "Refresh atomicity").
func (s *Session) RefreshLock() *sync.Mutex { return &s.refreshMu }
