package persist

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSerialize_SetsVersionAndRoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	ss := &SerializableSession{
		ID:              "sess-1",
		CreatedAt:       now.Add(-time.Minute),
		LastInteraction: now,
		Route:           "/dashboard",
		Attachments: map[string]json.RawMessage{
			"theme": json.RawMessage(`"dark"`),
		},
		UserSettings: map[string]json.RawMessage{
			"locale": json.RawMessage(`"en-US"`),
		},
		Version: 999, // should be overwritten
	}

	data, err := Serialize(ss)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if ss.Version != CurrentSerializationVersion {
		t.Fatalf("Serialize() did not set Version: got %d want %d", ss.Version, CurrentSerializationVersion)
	}

	roundTripped, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if roundTripped.ID != ss.ID {
		t.Fatalf("round-trip mismatch: got %+v want %+v", roundTripped, ss)
	}
	if roundTripped.Route != ss.Route {
		t.Fatalf("Route mismatch: got %q want %q", roundTripped.Route, ss.Route)
	}
	if string(roundTripped.Attachments["theme"]) != `"dark"` {
		t.Fatalf("Attachments mismatch: got %s", roundTripped.Attachments["theme"])
	}
	if string(roundTripped.UserSettings["locale"]) != `"en-US"` {
		t.Fatalf("UserSettings mismatch: got %s", roundTripped.UserSettings["locale"])
	}
	if roundTripped.Version != CurrentSerializationVersion {
		t.Fatalf("Version mismatch: got %d want %d", roundTripped.Version, CurrentSerializationVersion)
	}
}

func TestDeserialize_InvalidJSONErrors(t *testing.T) {
	_, err := Deserialize([]byte("{not-json"))
	if err == nil {
		t.Fatal("Deserialize() expected error, got nil")
	}
}

func TestNewAttachmentConfig_Defaults(t *testing.T) {
	cfg := NewAttachmentConfig()
	if cfg == nil {
		t.Fatal("NewAttachmentConfig() returned nil")
	}
	if cfg.Transient {
		t.Fatalf("default Transient=true, want false")
	}
}
