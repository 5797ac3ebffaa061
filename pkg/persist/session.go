package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weaveframe/weave/pkg/session"
)

// Bind wires sess's teardown to store: it registers an OnClose cleanup
// that snapshots the session's current attachments (Session.Attachments)
// and saves them under sessionID with the given ttl, so a later Resume can
// restore them. This is the teardown half of spec.md §6's "settings
// persistence is attempted" requirement - previously pkg/persist held a
// Store implementation nothing in the engine ever called; Bind is what
// exercises it.
//
// transientKeys names attachment keys to leave out of the snapshot (see
// AttachmentConfig.Transient) - for values that are large, derived, or
// otherwise not worth carrying across a resume.
//
// Bind registers exactly one cleanup per call; binding the same Session to
// two stores queues two saves on Close.
func Bind(sess *session.Session, sessionID string, store SessionStore, ttl time.Duration, transientKeys ...string) {
	skip := make(map[string]struct{}, len(transientKeys))
	for _, k := range transientKeys {
		skip[k] = struct{}{}
	}

	sess.OnClose(func() {
		ss := snapshot(sess, sessionID, skip)
		data, err := Serialize(ss)
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Save(ctx, sessionID, data, time.Now().Add(ttl))
	})
}

// snapshot builds the SerializableSession for sess's current attachments,
// encoding each with encoding/json and skipping both unmarshalable values
// and keys named in skip.
func snapshot(sess *session.Session, sessionID string, skip map[string]struct{}) *SerializableSession {
	attachments := sess.Attachments()
	encoded := make(map[string]json.RawMessage, len(attachments))
	for k, v := range attachments {
		if _, ok := skip[k]; ok {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		encoded[k] = b
	}

	return &SerializableSession{
		ID:              sessionID,
		LastInteraction: sess.LastInteraction(),
		Attachments:     encoded,
	}
}

// Resume loads sessionID's last snapshot from store, if any, and replays
// its attachments onto sess via Session.Attach - the counterpart to Bind,
// called when a reconnecting client presents a session ID the server no
// longer holds in memory (spec.md §4.7's reconnect story). found reports
// whether a snapshot existed to resume from; (false, nil) is the ordinary
// "nothing to resume" case, matching SessionStore.Load's own (nil, nil)
// convention for a missing or expired entry.
func Resume(ctx context.Context, sess *session.Session, sessionID string, store SessionStore) (found bool, err error) {
	data, err := store.Load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}

	ss, err := Deserialize(data)
	if err != nil {
		return false, err
	}

	for key, raw := range ss.Attachments {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		sess.Attach(key, v)
	}
	return true, nil
}
