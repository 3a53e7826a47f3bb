package store

import (
	"github.com/cockroachdb/pebble"
)

// PebbleStore implements KV on top of cockroachdb/pebble, an embedded
// ordered LSM store: durable, range-iterable, and fast enough to keep
// up with a firehose consumer writing on every commit.
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// pebble only guarantees v is valid until closer.Close(), so copy it.
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *PebbleStore) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

func (s *PebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

func (s *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *PebbleStore) ApplyBatch(b Batch) error {
	pb, ok := b.(*pebbleBatch)
	if !ok {
		return errNotPebbleBatch
	}
	return s.db.Apply(pb.b, pebble.NoSync)
}

func (s *PebbleStore) NewIter(gte, lt []byte) (Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: gte, UpperBound: lt})
	if err != nil {
		return nil, err
	}
	return &pebbleIter{it: it}, nil
}

func (s *PebbleStore) CompactRange(start, end []byte) error {
	return s.db.Compact(start, end, true)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

type pebbleBatch struct {
	b   *pebble.Batch
	ops int
}

func (pb *pebbleBatch) Put(key, value []byte) {
	_ = pb.b.Set(key, value, nil)
	pb.ops++
}

func (pb *pebbleBatch) Delete(key []byte) {
	_ = pb.b.Delete(key, nil)
	pb.ops++
}

func (pb *pebbleBatch) Len() int { return pb.ops }

type pebbleIter struct {
	it *pebble.Iterator
}

func (pi *pebbleIter) First() bool    { return pi.it.First() }
func (pi *pebbleIter) Next() bool     { return pi.it.Next() }
func (pi *pebbleIter) Valid() bool    { return pi.it.Valid() }
func (pi *pebbleIter) Key() []byte    { return pi.it.Key() }
func (pi *pebbleIter) Value() []byte  { return pi.it.Value() }
func (pi *pebbleIter) Close() error   { return pi.it.Close() }

var errNotPebbleBatch = errString("batch was not created by this store")

type errString string

func (e errString) Error() string { return string(e) }
