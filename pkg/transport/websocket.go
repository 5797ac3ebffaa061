// Package transport implements a reference websocket bridge between a
// browser client and a Session (spec.md §6: "a bidirectional message
// channel transporting JSON documents... this spec does not mandate a
// concrete framing"). Grounded in vango-go-vango's pkg/server/
// websocket.go (the read-loop/write-loop/heartbeat shape, and Resume's
// connection-swap-on-reconnect pattern) with vango's binary protocol
// frames and sequence-numbered patch replay dropped in favor of
// encoding/json and spec.md's full-resync reconnect story.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/weaveframe/weave/pkg/scheduler"
	"github.com/weaveframe/weave/pkg/session"
	"github.com/weaveframe/weave/pkg/wire"
)

// Channel adapts a *websocket.Conn to session.MessageChannel, JSON-encoding
// every outgoing message. Grounded in vango-go-vango's Session.SendPatches/
// SendClose write path (lock, set write deadline, write, track errors).
type Channel struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	config Config
	log    *slog.Logger
}

// NewChannel wraps conn.
func NewChannel(conn *websocket.Conn, config Config, log *slog.Logger) *Channel {
	return &Channel{conn: conn, config: config, log: log}
}

// Send implements session.MessageChannel.
func (c *Channel) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(msg)
}

// Close implements session.MessageChannel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// ping sends a native websocket ping control frame - kept out of Send
// since a ping is not a session-level JSON document.
func (c *Channel) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

var _ session.MessageChannel = (*Channel)(nil)

// Dispatcher routes a decoded inbound Envelope to whatever session/element
// mutation it names (ComponentStateUpdate, ComponentMessage, OnURLChange,
// OnWindowSizeChange, GetClipboard responses, ...). Kept as a narrow
// interface so this package stays independent of pkg/dispatch's handler
// catalog; the application wiring layer supplies the concrete routing.
type Dispatcher interface {
	Dispatch(method string, params json.RawMessage)
}

// Upgrader configures the websocket upgrade, grounded in
// vango-go-vango's handshake configuration (HandshakeTimeout, message size
// cap, optional compression).
func Upgrader(config Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout:  config.HandshakeTimeout,
		EnableCompression: config.EnableCompression,
		CheckOrigin:       func(r *http.Request) bool { return true },
	}
}

// ReadLoop reads JSON envelopes from conn until it errors or closes,
// touching sess's last-interaction clock on every message and forwarding
// each decoded envelope to disp. Mirrors vango-go-vango's Session.ReadLoop
// (set deadline, read, update activity, decode, dispatch by type).
func ReadLoop(conn *websocket.Conn, config Config, sess *session.Session, disp Dispatcher, log *slog.Logger) {
	conn.SetReadLimit(config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
		return nil
	})

	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && log != nil {
				log.Error("weave: transport read error", "error", err)
			}
			return
		}
		sess.Touch()
		disp.Dispatch(env.Method, env.Params)
	}
}

// HeartbeatLoop pings the client at config.HeartbeatInterval until ctx is
// canceled or a ping fails (which implies the connection is dead).
func HeartbeatLoop(ctx context.Context, ch *Channel, config Config) {
	ticker := time.NewTicker(config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ch.ping(); err != nil {
				return
			}
		}
	}
}

// RefreshLoop awaits sess's refresh-required signal and runs one scheduler
// pass each time it fires, until ctx is canceled. This is the server-side
// half of spec.md §4.1's "refresh required" event: RequireRefresh only
// marks the flag, something must be listening to actually run a pass.
func RefreshLoop(ctx context.Context, sess *session.Session, sched *scheduler.Scheduler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.RefreshRequired():
			if err := sched.RunPass(ctx); err != nil && sched.Log != nil {
				sched.Log.Error("weave: refresh pass failed", "error", err)
			}
		}
	}
}

// Serve upgrades r into a websocket connection, wires it to sess via a new
// Channel, and runs the read, heartbeat, and refresh loops until the
// connection closes. It blocks; callers run it in its own goroutine per
// connection (the standard net/http-per-connection-goroutine model).
func Serve(w http.ResponseWriter, r *http.Request, config Config, sess *session.Session, sched *scheduler.Scheduler, disp Dispatcher, log *slog.Logger) error {
	upgrader := Upgrader(config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	ch := NewChannel(conn, config, log)
	sess.SetChannel(ch)
	sess.OnClose(func() { ch.Close() })

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); HeartbeatLoop(ctx, ch, config) }()
	go func() { defer wg.Done(); RefreshLoop(ctx, sess, sched) }()

	ReadLoop(conn, config, sess, disp, log)
	cancel()
	wg.Wait()
	return sess.Close()
}

// Router mounts Serve at pattern on a chi.Mux, handing each new connection
// a fresh Session and Scheduler from newSession. Grounded in
// vango-go-vango's doc-comment reference to chi for route registration
// (pkg/server/doc.go), wired here for real since the teacher's own
// server.go registers routes directly on net/http instead.
func Router(pattern string, config Config, newSession func(*http.Request) (*session.Session, *scheduler.Scheduler, Dispatcher), log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Get(pattern, func(w http.ResponseWriter, req *http.Request) {
		sess, sched, disp := newSession(req)
		if err := Serve(w, req, config, sess, sched, disp, log); err != nil && log != nil {
			log.Error("weave: transport session ended with error", "error", err)
		}
	})
	return r
}
