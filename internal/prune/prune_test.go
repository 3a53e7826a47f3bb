package prune

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/activeref"
	"github.com/kozko2001/bsky-aggregator/internal/store"
	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

// memKV is a tiny in-memory store.KV good enough to drive prune tests
// without pebble.
type memKV struct {
	rows map[string][]byte
}

func newMemKV() *memKV { return &memKV{rows: make(map[string][]byte)} }

func (m *memKV) Get(key []byte) ([]byte, bool, error) {
	v, ok := m.rows[string(key)]
	return v, ok, nil
}
func (m *memKV) Put(key, value []byte) error { m.rows[string(key)] = append([]byte(nil), value...); return nil }
func (m *memKV) Delete(key []byte) error     { delete(m.rows, string(key)); return nil }
func (m *memKV) NewBatch() store.Batch       { return &memBatch{} }
func (m *memKV) ApplyBatch(b store.Batch) error {
	mb := b.(*memBatch)
	for _, op := range mb.ops {
		if op.del {
			delete(m.rows, op.key)
		} else {
			m.rows[op.key] = op.val
		}
	}
	return nil
}
func (m *memKV) CompactRange(start, end []byte) error { return nil }
func (m *memKV) Close() error                         { return nil }

func (m *memKV) NewIter(gte, lt []byte) (store.Iterator, error) {
	var keys []string
	for k := range m.rows {
		if k >= string(gte) && (lt == nil || k < string(lt)) {
			keys = append(keys, k)
		}
	}
	return &memIter{kv: m, keys: keys, pos: -1}, nil
}

type memOp struct {
	key string
	val []byte
	del bool
}
type memBatch struct{ ops []memOp }

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), val: append([]byte(nil), value...)})
}
func (b *memBatch) Delete(key []byte) { b.ops = append(b.ops, memOp{key: string(key), del: true}) }
func (b *memBatch) Len() int          { return len(b.ops) }

type memIter struct {
	kv   *memKV
	keys []string
	pos  int
}

func (it *memIter) First() bool { it.pos = 0; return it.Valid() }
func (it *memIter) Next() bool  { it.pos++; return it.Valid() }
func (it *memIter) Valid() bool { return it.pos >= 0 && it.pos < len(it.keys) }
func (it *memIter) Key() []byte { return []byte(it.keys[it.pos]) }
func (it *memIter) Value() []byte {
	return it.kv.rows[it.keys[it.pos]]
}
func (it *memIter) Close() error { return nil }

func TestRunRemovesStaleEntriesAndCascades(t *testing.T) {
	table := tally.NewTable()
	table.Set("at://p1", &tally.Stats{Likes: 1, LastUpdated: 0, ID: 1})

	kv := newMemKV()
	kv.rows["like:did:q/k"] = []byte("1")

	likes, _ := activeref.New(10)
	reposts, _ := activeref.New(10)
	w := kv

	result, err := Run(table, likes, reposts, kv, w, 1000, 24*3_600_000, 25*3_600_000, zap.NewNop())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RetentionRemoved != 1 {
		t.Errorf("RetentionRemoved = %d, want 1", result.RetentionRemoved)
	}
	if _, ok := table.Get("at://p1"); ok {
		t.Errorf("expected stale entry removed from tally")
	}
	if _, found, _ := kv.Get([]byte("like:did:q/k")); found {
		t.Errorf("expected like: row to be swept by id-based cascade")
	}
	if _, found, _ := kv.Get([]byte("post:at://p1")); found {
		t.Errorf("expected post: row deleted")
	}
}

func TestRunOverflowRemovesOldestFirst(t *testing.T) {
	table := tally.NewTable()
	table.Set("at://old", &tally.Stats{Likes: 1, LastUpdated: 1, ID: 1})
	table.Set("at://new", &tally.Stats{Likes: 1, LastUpdated: 100, ID: 2})

	kv := newMemKV()
	likes, _ := activeref.New(10)
	reposts, _ := activeref.New(10)

	result, err := Run(table, likes, reposts, kv, kv, 1, 1_000_000_000, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.OverflowRemoved != 1 {
		t.Fatalf("OverflowRemoved = %d, want 1", result.OverflowRemoved)
	}
	if _, ok := table.Get("at://old"); ok {
		t.Errorf("expected oldest entry removed")
	}
	if _, ok := table.Get("at://new"); !ok {
		t.Errorf("expected newest entry to survive")
	}
}

func TestRunNoChangesWhenNothingStale(t *testing.T) {
	table := tally.NewTable()
	table.Set("at://fresh", &tally.Stats{Likes: 1, LastUpdated: 100, ID: 1})
	kv := newMemKV()
	likes, _ := activeref.New(10)
	reposts, _ := activeref.New(10)

	result, err := Run(table, likes, reposts, kv, kv, 1000, 1_000_000, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Removed() {
		t.Errorf("expected no removals, got %+v", result)
	}
}
