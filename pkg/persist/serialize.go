package persist

import (
	"encoding/json"
	"time"
)

// SerializableSession is the JSON-serializable snapshot of a session's
// persistable state (spec.md §6 "Persisted state layout"). The element
// tree itself is never persisted - only a reconnecting client rebuilds
// it, via a full resync (wire.FullDump) - so this carries everything a
// session needs to resume being "the same session" across a transport
// interruption: its attachments (the values user code stashed with
// Session.Attach, e.g. authenticated user id, theme) and its last-known
// client-visible settings and route.
type SerializableSession struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastInteraction is the session's last observed client activity
	// (session.Session.LastInteraction).
	LastInteraction time.Time `json:"last_interaction"`

	// Attachments holds Session.Attach values, keyed by the same string
	// key they were attached under. Entries the caller marked transient
	// (Bind's transientKeys argument) are excluded before Serialize is called.
	Attachments map[string]json.RawMessage `json:"attachments,omitempty"`

	// UserSettings mirrors the last SetUserSettings delta applied to the
	// client (spec.md §6), so a resumed session can replay it without the
	// client needing to have cached it itself.
	UserSettings map[string]json.RawMessage `json:"user_settings,omitempty"`

	// Route is the current page route, if the application tracks one.
	Route string `json:"route,omitempty"`

	// Version is the serialization format version.
	Version int `json:"version"`
}

// CurrentSerializationVersion is the current version of the serialization format.
// Increment when making breaking changes to the format.
const CurrentSerializationVersion = 1

// Serialize converts a SerializableSession to bytes.
func Serialize(ss *SerializableSession) ([]byte, error) {
	ss.Version = CurrentSerializationVersion
	return json.Marshal(ss)
}

// Deserialize converts bytes back to a SerializableSession.
func Deserialize(data []byte) (*SerializableSession, error) {
	var ss SerializableSession
	if err := json.Unmarshal(data, &ss); err != nil {
		return nil, err
	}
	return &ss, nil
}

// AttachmentConfig controls whether an individual attachment key is
// included when a session is serialized for persistence.
type AttachmentConfig struct {
	// Transient attachments are kept in memory but never written to a
	// Store - useful for large or purely derived values.
	Transient bool
}

// NewAttachmentConfig returns the default (persisted) configuration.
func NewAttachmentConfig() *AttachmentConfig {
	return &AttachmentConfig{}
}
