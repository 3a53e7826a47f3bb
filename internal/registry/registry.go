// Package registry implements the post-id registry (§4.3): the
// bidirectional map between post URIs and the compact numeric ids
// stored in the active-reference caches, plus the in-memory display-URL
// cache derived from each URI.
package registry

import (
	"encoding/json"
	"strconv"

	"github.com/kozko2001/bsky-aggregator/internal/bluesky"
	"github.com/kozko2001/bsky-aggregator/internal/keys"
	"github.com/kozko2001/bsky-aggregator/internal/store"
)

// Registry is the in-memory postIdByUri / uriByPostId map, kept in sync
// with the postid:/posturi:/posturl: KV rows. Like tally.Table, its maps
// carry no internal lock; callers must serialize access (§5) — in
// practice aggregator.Aggregator's mutex, held across every handler and
// timer callback that reaches into a Registry.
type Registry struct {
	uriToID map[string]uint64
	idToURI map[uint64]string
	idToURL map[uint64]string
	hasURL  map[uint64]bool
	nextID  uint64
}

// New creates an empty registry with ids starting at 1.
func New() *Registry {
	return &Registry{
		uriToID: make(map[string]uint64),
		idToURI: make(map[uint64]string),
		idToURL: make(map[uint64]string),
		hasURL:  make(map[uint64]bool),
		nextID:  1,
	}
}

// posturiValue is the canonical on-disk shape of a posturi: row.
type posturiValue struct {
	URI string `json:"uri"`
	URL string `json:"url,omitempty"`
}

// LookupID returns the id registered for uri, if any.
func (r *Registry) LookupID(uri string) (uint64, bool) {
	id, ok := r.uriToID[uri]
	return id, ok
}

// LookupURI returns the uri registered for id, if any.
func (r *Registry) LookupURI(id uint64) (string, bool) {
	uri, ok := r.idToURI[id]
	return uri, ok
}

// LookupURL returns the cached display URL for id, if one was derived.
func (r *Registry) LookupURL(id uint64) (string, bool) {
	if !r.hasURL[id] {
		return "", false
	}
	return r.idToURL[id], true
}

// NextID reports the next id that would be allocated.
func (r *Registry) NextID() uint64 { return r.nextID }

// Allocate returns the existing id for uri, or mints a fresh one and
// persists the three rows plus the advanced meta:nextPostId (§4.3). It
// is the only path that increases nextID during normal operation.
func (r *Registry) Allocate(uri string, w store.Writer) (uint64, error) {
	if id, ok := r.uriToID[uri]; ok {
		return id, nil
	}

	id := r.nextID
	r.nextID++

	url, hasURL := bluesky.DisplayURL(uri)
	r.install(uri, id, url, hasURL)

	if err := r.persist(uri, id, url, hasURL, w); err != nil {
		return 0, err
	}
	if err := w.Put([]byte(keys.NextPostID), encodeUint(r.nextID)); err != nil {
		return 0, err
	}
	return id, nil
}

// Remove deletes the three rows for id/uri and drops the in-memory
// mapping (§4.2: "destroyed when both counters reach 0").
func (r *Registry) Remove(id uint64, w store.Writer) error {
	uri, ok := r.idToURI[id]
	if !ok {
		return nil
	}
	delete(r.uriToID, uri)
	delete(r.idToURI, id)
	delete(r.idToURL, id)
	delete(r.hasURL, id)

	if err := w.Delete(keys.PostID(uri)); err != nil {
		return err
	}
	if err := w.Delete(keys.PostURI(id)); err != nil {
		return err
	}
	return w.Delete(keys.PostURL(id))
}

// RestoreMapping installs a uri/id/url mapping read back from the KV
// store during recovery, without writing anything (the caller decides
// separately whether the row needs rewriting).
func (r *Registry) RestoreMapping(uri string, id uint64, url string, hasURL bool) {
	r.install(uri, id, url, hasURL)
	if id >= r.nextID {
		r.nextID = id + 1
	}
}

// SetNextID raises the next-id counter to n if n is larger; it never
// lowers it (recovery step 5: next_post_id
// = max(stored_next, max_id+1, 1)).
func (r *Registry) SetNextID(n uint64) {
	if n > r.nextID {
		r.nextID = n
	}
}

func (r *Registry) install(uri string, id uint64, url string, hasURL bool) {
	r.uriToID[uri] = id
	r.idToURI[id] = uri
	if hasURL {
		r.idToURL[id] = url
		r.hasURL[id] = true
	} else {
		delete(r.idToURL, id)
		r.hasURL[id] = false
	}
}

func (r *Registry) persist(uri string, id uint64, url string, hasURL bool, w store.Writer) error {
	if err := w.Put(keys.PostID(uri), encodeUint(id)); err != nil {
		return err
	}
	pv := posturiValue{URI: uri}
	if hasURL {
		pv.URL = url
	}
	pvData, err := json.Marshal(pv)
	if err != nil {
		return err
	}
	if err := w.Put(keys.PostURI(id), pvData); err != nil {
		return err
	}
	urlData, err := encodeURL(url, hasURL)
	if err != nil {
		return err
	}
	return w.Put(keys.PostURL(id), urlData)
}

func encodeUint(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10))
}

func encodeURL(url string, hasURL bool) ([]byte, error) {
	if !hasURL {
		return json.Marshal(nil)
	}
	return json.Marshal(url)
}
