// Package tally holds the in-memory PostStats table (§3, §4.2): per-post
// like/repost counters, last-updated timestamp, and the post's numeric
// id.
package tally

// Stats is a post's tally entry. It exists iff Likes+Reposts > 0
// (transient violations during a single handler call are tolerated, but
// the invariant is restored before the handler returns, per §3).
type Stats struct {
	Likes       int64
	Reposts     int64
	LastUpdated int64 // ms epoch
	ID          uint64
}

// Closed reports whether both counters have reached zero, i.e. this
// entry should be deleted.
func (s *Stats) Closed() bool {
	return s.Likes <= 0 && s.Reposts <= 0
}

// Table is the in-memory URI -> Stats map. It is a plain map with no
// internal lock: callers must serialize access themselves (§5's
// single-threaded cooperative model — aggregator.Aggregator does this
// with a mutex held across every handler and timer callback that
// touches a Table).
type Table struct {
	byURI map[string]*Stats
}

// NewTable creates an empty tally table.
func NewTable() *Table {
	return &Table{byURI: make(map[string]*Stats)}
}

// Get returns the stats for uri, if present.
func (t *Table) Get(uri string) (*Stats, bool) {
	s, ok := t.byURI[uri]
	return s, ok
}

// Set inserts or replaces the stats for uri.
func (t *Table) Set(uri string, s *Stats) {
	t.byURI[uri] = s
}

// Delete removes uri from the table.
func (t *Table) Delete(uri string) {
	delete(t.byURI, uri)
}

// Len reports the number of tracked posts.
func (t *Table) Len() int {
	return len(t.byURI)
}

// Range calls fn for every tracked post, in unspecified order. fn
// returning false stops the iteration early.
func (t *Table) Range(fn func(uri string, s *Stats) bool) {
	for uri, s := range t.byURI {
		if !fn(uri, s) {
			return
		}
	}
}

// clampNonNegative floors a counter at 0, absorbing duplicate or
// out-of-order delete events (§3, §9 open question (b)).
func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// AdjustLikes applies delta to the like counter, flooring at zero, and
// updates LastUpdated. Callers check Closed afterwards to decide whether
// to delete the entry.
func (s *Stats) AdjustLikes(delta int64, now int64) {
	s.Likes = clampNonNegative(s.Likes + delta)
	s.LastUpdated = now
}

// AdjustReposts is the repost-counter analogue of AdjustLikes.
func (s *Stats) AdjustReposts(delta int64, now int64) {
	s.Reposts = clampNonNegative(s.Reposts + delta)
	s.LastUpdated = now
}
