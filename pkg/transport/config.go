package transport

import "time"

// Config holds the tunables for one websocket connection. Trimmed from
// vango-go-vango's pkg/server SessionConfig down to what a JSON-message
// transport needs: no patch-history/storm-budget fields, since this
// module's wire protocol has no sequence numbers to replay (spec.md §4.7's
// reconnect story is "send a full resync", not "retransmit missed
// patches").
type Config struct {
	// ReadTimeout is the maximum time to wait for a message (or pong) from
	// the client before the connection is considered dead.
	ReadTimeout time.Duration

	// WriteTimeout bounds each outgoing frame write.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the initial HTTP upgrade.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the period between server-initiated pings.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps an incoming frame; larger frames close the
	// connection with websocket.CloseMessageTooBig.
	MaxMessageSize int64

	// EnableCompression turns on permessage-deflate.
	EnableCompression bool
}

// DefaultConfig returns the same defaults vango-go-vango ships for its
// websocket sessions.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		EnableCompression: true,
	}
}
