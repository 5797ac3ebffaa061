package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/scheduler"
	"github.com/weaveframe/weave/pkg/session"
	"github.com/weaveframe/weave/pkg/wire"
)

func wsURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// appRoot is a minimal high-level element whose build boundary produces a
// single fundamental Text element.
type appRoot struct {
	*element.Base
	host element.Host
}

func newTextElement(host element.Host, content string) *element.Base {
	b := element.NewBase("Text", "", element.KindFundamental, true, host, []string{"content"})
	b.SetInternal("content", content)
	b.FinishConstruction()
	return b
}

func newAppRoot(host element.Host, label string) *appRoot {
	b := element.NewBase("App", "", element.KindHighLevel, false, host, []string{"label"})
	b.SetInternal("label", label)
	b.FinishConstruction()
	return &appRoot{Base: b, host: host}
}

func (a *appRoot) Build() element.Element {
	return newTextElement(a.host, a.Get("label").(string))
}

type fakeDispatcher struct {
	mu      sync.Mutex
	methods []string
}

func (d *fakeDispatcher) Dispatch(method string, _ json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods = append(d.methods, method)
}

func (d *fakeDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.methods))
	copy(out, d.methods)
	return out
}

func TestChannel_SendWritesJSONOverConnection(t *testing.T) {
	config := DefaultConfig()
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader(config).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		ch := NewChannel(conn, config, nil)
		if err := ch.Send(wire.Envelope{Method: "hello"}); err != nil {
			t.Errorf("Send: %v", err)
		}
		close(done)
	}))
	t.Cleanup(srv.Close)

	conn := dialWS(t, wsURL(t, srv.URL, "/"))
	var env wire.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if env.Method != "hello" {
		t.Fatalf("Method = %q, want %q", env.Method, "hello")
	}
	<-done
}

func TestRouter_SendsDeltaAfterConnect(t *testing.T) {
	config := DefaultConfig()
	config.HeartbeatInterval = time.Hour // don't let pings interleave with the assertions below

	newSession := func(*http.Request) (*session.Session, *scheduler.Scheduler, Dispatcher) {
		sess := session.New(nil)
		root := newAppRoot(sess, "hello")
		sess.SetRoot(root)
		sess.RequireRefresh() // kick off the first build; nothing does this implicitly
		sc := &scheduler.Scheduler{Session: sess}
		return sess, sc, &fakeDispatcher{}
	}

	router := Router("/ws", config, newSession, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn := dialWS(t, wsURL(t, srv.URL, "/ws"))

	var msg wire.UpdateComponentStates
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if err := conn.ReadJSON(&msg); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		t.Fatalf("never received a delta: %v", lastErr)
	}
	if len(msg.DeltaStates) == 0 {
		t.Fatalf("expected at least one element state in the initial delta")
	}
}

func TestReadLoop_DispatchesEnvelopeAndTouchesSession(t *testing.T) {
	config := DefaultConfig()
	sess := session.New(nil)
	before := sess.LastInteraction()
	disp := &fakeDispatcher{}

	srvConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader(config).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		srvConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	client := dialWS(t, wsURL(t, srv.URL, "/"))
	serverConn := <-srvConnCh

	done := make(chan struct{})
	go func() {
		ReadLoop(serverConn, config, sess, disp, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let LastInteraction tick forward from New()'s timestamp
	if err := client.WriteJSON(wire.Envelope{Method: "on_click"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(disp.calls()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if calls := disp.calls(); len(calls) != 1 || calls[0] != "on_click" {
		t.Fatalf("dispatched methods = %v, want [on_click]", calls)
	}
	if !sess.LastInteraction().After(before) {
		t.Fatalf("expected LastInteraction to advance after a message")
	}

	client.Close()
	<-done
}

func TestHeartbeatLoop_StopsOnContextCancel(t *testing.T) {
	config := DefaultConfig()
	config.HeartbeatInterval = 5 * time.Millisecond

	result := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader(config).Upgrade(w, r, nil)
		if err != nil {
			result <- err
			return
		}
		ch := NewChannel(conn, config, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			HeartbeatLoop(ctx, ch, config)
			close(done)
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()
		select {
		case <-done:
			result <- nil
		case <-time.After(time.Second):
			result <- errHeartbeatDidNotStop
		}
	}))
	t.Cleanup(srv.Close)

	conn := dialWS(t, wsURL(t, srv.URL, "/"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.SetPingHandler(func(string) error { return nil })
	go func() { _, _, _ = conn.ReadMessage() }() // drain at least one ping so the server side progresses

	if err := <-result; err != nil {
		t.Fatal(err)
	}
}

var errHeartbeatDidNotStop = errors.New("HeartbeatLoop did not stop after ctx cancel")
