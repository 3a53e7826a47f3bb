package store

// Writer is the minimal surface callers mutate the store through: a put
// or a delete, either staged into the ambient scope or flushed as its
// own write.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batcher coalesces Put/Delete calls into the KV store's atomic batch
// primitive (§4.9). Outside any Scope, each Put/Delete is its own
// independent write. Inside a Scope, operations accumulate and flush as
// one atomic batch once the scope's threshold is reached, or when the
// scope ends.
//
// Batcher is not safe for concurrent use: it assumes the single-threaded
// cooperative scheduling model of §5, where at most one handler or timer
// callback ever touches it at a time. It is the caller's responsibility
// to enforce that — aggregator.Aggregator does so with a mutex held
// across every Put/Delete/BeginScope/End — since a BeginScope from one
// caller racing a bare Put from another would stage the latter into the
// wrong atomic region, or hand the same non-thread-safe batch object to
// two goroutines at once.
type Batcher struct {
	kv    KV
	scope *Scope
}

// NewBatcher wraps kv with coalescing behavior.
func NewBatcher(kv KV) *Batcher {
	return &Batcher{kv: kv}
}

// Put stages a put into the active scope, or flushes it immediately as
// its own write if no scope is open.
func (b *Batcher) Put(key, value []byte) error {
	if b.scope != nil {
		return b.scope.Put(key, value)
	}
	batch := b.kv.NewBatch()
	batch.Put(key, value)
	return b.kv.ApplyBatch(batch)
}

// Delete stages a delete into the active scope, or flushes it
// immediately if no scope is open.
func (b *Batcher) Delete(key []byte) error {
	if b.scope != nil {
		return b.scope.Delete(key)
	}
	batch := b.kv.NewBatch()
	batch.Delete(key)
	return b.kv.ApplyBatch(batch)
}

// Scope is a scoped atomic region: a helper installs it as the
// "current" batch for the duration of a critical section (recovery,
// prune), and operations performed through the Batcher during that
// window stage into it instead of flushing independently. Ending the
// scope restores whatever scope (possibly none) was active before it,
// and flushes any remaining staged ops — the nestable-replacement
// contract described in §9.
type Scope struct {
	batcher   *Batcher
	prev      *Scope
	batch     Batch
	threshold int
}

// BeginScope installs a new scope as current on b, flushing automatically
// every time staged ops reach threshold. The returned Scope must be
// ended with End (typically via defer).
func (b *Batcher) BeginScope(threshold int) *Scope {
	s := &Scope{
		batcher:   b,
		prev:      b.scope,
		batch:     b.kv.NewBatch(),
		threshold: threshold,
	}
	b.scope = s
	return s
}

// Put stages a put in this scope, flushing if the threshold is reached.
func (s *Scope) Put(key, value []byte) error {
	s.batch.Put(key, value)
	return s.maybeFlush()
}

// Delete stages a delete in this scope, flushing if the threshold is reached.
func (s *Scope) Delete(key []byte) error {
	s.batch.Delete(key)
	return s.maybeFlush()
}

func (s *Scope) maybeFlush() error {
	if s.batch.Len() < s.threshold {
		return nil
	}
	return s.flush()
}

func (s *Scope) flush() error {
	if s.batch.Len() == 0 {
		return nil
	}
	if err := s.batcher.kv.ApplyBatch(s.batch); err != nil {
		return err
	}
	s.batch = s.batcher.kv.NewBatch()
	return nil
}

// Flush forces any pending ops in this scope to commit now, without
// ending the scope.
func (s *Scope) Flush() error {
	return s.flush()
}

// End flushes any remaining staged ops and restores the previous scope
// (nil if this was the outermost one).
func (s *Scope) End() error {
	err := s.flush()
	s.batcher.scope = s.prev
	return err
}
