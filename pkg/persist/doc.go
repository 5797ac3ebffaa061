// Package persist implements the persisted state layout spec.md §6
// describes: a session's attachments and user-settings survive a
// transport interruption (and, with a durable backend, a process
// restart) keyed by session id.
//
// # Session Storage
//
// The SessionStore interface defines the contract every backend satisfies:
//
//	store := persist.NewRedisStore(redisClient)
//	// or
//	store := persist.NewSQLStore(db)
//	// or (default)
//	store := persist.NewMemoryStore()
//
// # Session Serialization
//
// A session's persistable state is flattened to bytes before handing it
// to a Store:
//
//	data, err := persist.Serialize(snapshot)
//	// Later...
//	snapshot, err := persist.Deserialize(data)
//
// # Session Lifecycle
//
// Bind and Resume connect a session.Session's own lifecycle to a Store, so
// the backends above are not just parallel infrastructure: Bind registers
// an OnClose cleanup that snapshots and saves a session's attachments,
// and Resume loads and replays them onto a session reconnecting after the
// server no longer holds it in memory:
//
//	persist.Bind(sess, sessionID, store, 30*time.Minute)
//	// Later, on reconnect with the same sessionID:
//	found, err := persist.Resume(ctx, sess, sessionID, store)
package persist
