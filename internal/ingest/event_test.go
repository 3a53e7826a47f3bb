package ingest

import (
	"encoding/json"
	"testing"
)

func TestSubjectURI(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		wantURI string
		wantOK  bool
	}{
		{"valid", `{"subject":{"uri":"at://did:plc:a/app.bsky.feed.post/r1"},"createdAt":"2024-01-01T00:00:00Z"}`, "at://did:plc:a/app.bsky.feed.post/r1", true},
		{"missing subject", `{"createdAt":"2024-01-01T00:00:00Z"}`, "", false},
		{"empty uri", `{"subject":{"uri":""}}`, "", false},
		{"malformed", `not json`, "", false},
		{"empty", ``, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, ok := SubjectURI(json.RawMessage(tt.record))
			if ok != tt.wantOK || uri != tt.wantURI {
				t.Errorf("SubjectURI(%q) = %q, %v, want %q, %v", tt.record, uri, ok, tt.wantURI, tt.wantOK)
			}
		})
	}
}

func TestRefKey(t *testing.T) {
	if got := RefKey("did:plc:a", "r1"); got != "did:plc:a/r1" {
		t.Errorf("RefKey() = %q", got)
	}
}

func TestEventUnmarshal(t *testing.T) {
	data := []byte(`{
		"did": "did:plc:a",
		"time_us": 1700000000000000,
		"kind": "commit",
		"commit": {
			"rev": "abc",
			"operation": "create",
			"collection": "app.bsky.feed.like",
			"rkey": "r1",
			"record": {"subject":{"uri":"at://did:plc:b/app.bsky.feed.post/r2"}}
		}
	}`)
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if evt.Kind != KindCommit || evt.Commit == nil {
		t.Fatalf("got kind=%v commit=%v", evt.Kind, evt.Commit)
	}
	if evt.Commit.Collection != CollectionLike || evt.Commit.Operation != OpCreate {
		t.Errorf("commit = %+v", evt.Commit)
	}
	uri, ok := SubjectURI(evt.Commit.Record)
	if !ok || uri != "at://did:plc:b/app.bsky.feed.post/r2" {
		t.Errorf("SubjectURI() = %q, %v", uri, ok)
	}
}

func TestEventIdentityHasNoCommit(t *testing.T) {
	data := []byte(`{"did":"did:plc:a","time_us":1,"kind":"identity"}`)
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if evt.Commit != nil {
		t.Errorf("expected nil commit for identity event")
	}
}
