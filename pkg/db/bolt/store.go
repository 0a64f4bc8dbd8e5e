// Package bolt implements db.KVStore on a single bbolt bucket.
package bolt

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eigerco/tribunal/pkg/db"
)

var bucketName = []byte("tribunal")

var _ db.KVStore = (*KVStore)(nil)

type KVStore struct {
	db     *bolt.DB
	closed bool
	mu     sync.RWMutex
}

// Open opens (or creates) a bbolt file at path.
func Open(path string) (*KVStore, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &KVStore{db: bdb}, nil
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	var result []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return db.ErrNotFound
		}
		// values are only valid for the life of the transaction
		result = append([]byte{}, v...)
		return nil
	})
	return result, err
}

func (s *KVStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (s *KVStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type op struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch buffers writes and applies them in one bbolt read-write transaction.
type Batch struct {
	store *KVStore
	ops   []op
	done  bool
}

func (s *KVStore) NewBatch() db.Batch {
	return &Batch{store: s}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: append([]byte{}, key...), value: append([]byte{}, value...)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: append([]byte{}, key...), delete: true})
	return nil
}

func (b *Batch) Commit() error {
	if b.done {
		return db.ErrBatchDone
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if b.store.closed {
		return db.ErrClosed
	}
	err := b.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, o := range b.ops {
			var err error
			if o.delete {
				err = bucket.Delete(o.key)
			} else {
				err = bucket.Put(o.key, o.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.done = true
	b.ops = nil
	return nil
}

func (b *Batch) Close() error {
	b.done = true
	b.ops = nil
	return nil
}

// Iterator walks a read-only transaction that stays open until Close.
type Iterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	start   []byte
	end     []byte
	key     []byte
	value   []byte
	started bool
}

func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	return &Iterator{
		tx:     tx,
		cursor: tx.Bucket(bucketName).Cursor(),
		start:  start,
		end:    end,
	}, nil
}

func (it *Iterator) Next() bool {
	var k, v []byte
	if !it.started {
		it.started = true
		if it.start == nil {
			k, v = it.cursor.First()
		} else {
			k, v = it.cursor.Seek(it.start)
		}
	} else {
		if it.key == nil {
			return false
		}
		k, v = it.cursor.Next()
	}
	if k == nil || (it.end != nil && bytes.Compare(k, it.end) >= 0) {
		it.key, it.value = nil, nil
		return false
	}
	it.key, it.value = k, v
	return true
}

func (it *Iterator) Key() []byte {
	return append([]byte{}, it.key...)
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, db.ErrIteratorInvalid
	}
	return append([]byte{}, it.value...), nil
}

func (it *Iterator) Valid() bool {
	return it.key != nil
}

func (it *Iterator) Close() error {
	err := it.tx.Rollback()
	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}
	return err
}
