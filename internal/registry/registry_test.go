package registry

import "testing"

type memWriter struct {
	puts    map[string][]byte
	deletes map[string]bool
}

func newMemWriter() *memWriter {
	return &memWriter{puts: make(map[string][]byte), deletes: make(map[string]bool)}
}

func (w *memWriter) Put(key, value []byte) error {
	w.puts[string(key)] = append([]byte(nil), value...)
	delete(w.deletes, string(key))
	return nil
}

func (w *memWriter) Delete(key []byte) error {
	w.deletes[string(key)] = true
	delete(w.puts, string(key))
	return nil
}

func TestAllocateIsIdempotent(t *testing.T) {
	r := New()
	w := newMemWriter()

	uri := "at://did:plc:p/app.bsky.feed.post/r1"
	id1, err := r.Allocate(uri, w)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if id1 != 1 {
		t.Errorf("first id = %d, want 1", id1)
	}

	id2, err := r.Allocate(uri, w)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if id2 != id1 {
		t.Errorf("second Allocate() = %d, want same id %d", id2, id1)
	}

	if got, ok := r.LookupID(uri); !ok || got != id1 {
		t.Errorf("LookupID() = %v, %v, want %v, true", got, ok, id1)
	}
	if got, ok := r.LookupURI(id1); !ok || got != uri {
		t.Errorf("LookupURI() = %v, %v, want %v, true", got, ok, uri)
	}
	if url, ok := r.LookupURL(id1); !ok || url != "https://bsky.app/profile/did:plc:p/post/r1" {
		t.Errorf("LookupURL() = %v, %v", url, ok)
	}
	if r.NextID() != 2 {
		t.Errorf("NextID() = %d, want 2", r.NextID())
	}
}

func TestAllocateAssignsSequentialIDs(t *testing.T) {
	r := New()
	w := newMemWriter()

	id1, _ := r.Allocate("at://did:plc:p/app.bsky.feed.post/r1", w)
	id2, _ := r.Allocate("at://did:plc:p/app.bsky.feed.post/r2", w)
	if id2 != id1+1 {
		t.Errorf("ids not sequential: %d then %d", id1, id2)
	}
}

func TestRemoveDeletesMapping(t *testing.T) {
	r := New()
	w := newMemWriter()

	uri := "at://did:plc:p/app.bsky.feed.post/r1"
	id, _ := r.Allocate(uri, w)

	if err := r.Remove(id, w); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := r.LookupID(uri); ok {
		t.Errorf("expected uri to be unregistered")
	}
	if _, ok := r.LookupURI(id); ok {
		t.Errorf("expected id to be unregistered")
	}
}

func TestRestoreMappingAdvancesNextID(t *testing.T) {
	r := New()
	r.RestoreMapping("at://did:plc:p/app.bsky.feed.post/r7", 7, "https://bsky.app/profile/did:plc:p/post/r7", true)
	if r.NextID() != 8 {
		t.Errorf("NextID() = %d, want 8", r.NextID())
	}
}

func TestDecodePostURIValueAcceptsLegacyString(t *testing.T) {
	uri, url, hasURL, err := DecodePostURIValue([]byte(`"at://did:plc:p/app.bsky.feed.post/r1"`))
	if err != nil {
		t.Fatalf("DecodePostURIValue() error = %v", err)
	}
	if uri != "at://did:plc:p/app.bsky.feed.post/r1" || hasURL || url != "" {
		t.Errorf("got uri=%q url=%q hasURL=%v", uri, url, hasURL)
	}
}

func TestDecodePostURIValueAcceptsCanonicalObject(t *testing.T) {
	uri, url, hasURL, err := DecodePostURIValue([]byte(`{"uri":"at://did:plc:p/app.bsky.feed.post/r1","url":"https://bsky.app/profile/did:plc:p/post/r1"}`))
	if err != nil {
		t.Fatalf("DecodePostURIValue() error = %v", err)
	}
	if !hasURL || uri == "" || url == "" {
		t.Errorf("got uri=%q url=%q hasURL=%v", uri, url, hasURL)
	}
}
