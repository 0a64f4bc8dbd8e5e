package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/tribunal/pkg/db"
	"github.com/eigerco/tribunal/pkg/log"
)

// Batch stages writes in a pebble batch. Commit holds the store's read lock
// so a concurrent Close cannot race the write.
type Batch struct {
	store *KVStore
	batch *pebble.Batch
	done  bool
}

func (p *KVStore) NewBatch() db.Batch {
	return &Batch{
		store: p,
		batch: p.db.NewBatch(),
	}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done {
		return ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done {
		return ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

// Commit writes the staged operations with a synced WAL. A failed commit
// leaves the batch open so the caller can Close it.
func (b *Batch) Commit() error {
	if b.done {
		return ErrBatchDone
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return ErrClosed
	}

	ops, size := b.batch.Count(), b.batch.Len()
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf(ErrBatchCommit, err)
	}
	b.done = true
	log.Store.Trace().Uint32("ops", ops).Int("bytes", size).Msg("pebble batch committed")
	return b.batch.Close()
}

func (b *Batch) Close() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.batch.Close()
}
