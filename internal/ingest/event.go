// Package ingest implements the WebSocket ingestor (§4.1) and the
// tagged-variant event/record model it parses Jetstream frames into
// (§9: "parse each event into a tagged variant").
package ingest

import "encoding/json"

// Kind identifies the top-level shape of a Jetstream frame.
type Kind string

const (
	KindCommit   Kind = "commit"
	KindIdentity Kind = "identity"
	KindAccount  Kind = "account"
)

// Operation identifies the write that produced a commit.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Collection identifies the two record types the aggregator cares about;
// every other collection is ignored at dispatch (§4.1).
const (
	CollectionLike   = "app.bsky.feed.like"
	CollectionRepost = "app.bsky.feed.repost"
)

// Event is the outermost Jetstream frame: {did, time_us, kind, commit?}.
// Identity and account frames carry no commit and are discarded.
type Event struct {
	Did    string          `json:"did"`
	TimeUS int64           `json:"time_us"`
	Kind   Kind            `json:"kind"`
	Commit *Commit         `json:"commit,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Commit is the commit payload of a "commit" event.
type Commit struct {
	Rev        string          `json:"rev"`
	Operation  Operation       `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid,omitempty"`
}

// subjectRecord is the shape shared by like and repost records: a single
// `subject.uri` field. Everything else in the record is ignored.
type subjectRecord struct {
	Subject struct {
		URI string `json:"uri"`
	} `json:"subject"`
}

// SubjectURI extracts record.subject.uri from a like or repost create
// commit's raw record. Returns ok=false if absent or malformed — callers
// drop the event silently per §4.2 ("if missing, drop").
func SubjectURI(record json.RawMessage) (string, bool) {
	if len(record) == 0 {
		return "", false
	}
	var rec subjectRecord
	if err := json.Unmarshal(record, &rec); err != nil {
		return "", false
	}
	if rec.Subject.URI == "" {
		return "", false
	}
	return rec.Subject.URI, true
}

// RefKey builds the R = actor_did + "/" + rkey reference key used by the
// active-reference caches and the like:/repost: KV rows (§4.2).
func RefKey(did, rkey string) string {
	return did + "/" + rkey
}
