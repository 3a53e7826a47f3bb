// Package store defines the embedded ordered KV store contract (§6) and
// a pebble-backed implementation. Callers never reach for *pebble.DB
// directly outside this package, so swapping the embedded engine later
// touches only pebble_store.go.
package store

// Batch stages a group of put/delete operations for a single atomic
// write (§6: "batch([...]) atomic").
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Len reports the number of staged operations.
	Len() int
}

// Iterator walks an ordered key range (§6: "iterator({gte, lt}) yielding
// [k,v] in key order").
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Close() error
}

// KV is the embedded ordered key-value store contract required by the
// aggregator. An implementation must be durable across restarts.
type KV interface {
	Get(key []byte) (value []byte, found bool, err error)
	Put(key, value []byte) error
	Delete(key []byte) error

	NewBatch() Batch
	ApplyBatch(b Batch) error

	// NewIter returns an iterator over [gte, lt). A nil lt means "no
	// upper bound".
	NewIter(gte, lt []byte) (Iterator, error)

	// CompactRange asks the store to reclaim space occupied by
	// tombstones/superseded versions in [start, end). A nil/nil range
	// compacts the whole keyspace. Optional: implementations may treat
	// this as a no-op, but the pebble-backed store performs it for
	// real (§4.6, §4.10).
	CompactRange(start, end []byte) error

	Close() error
}
