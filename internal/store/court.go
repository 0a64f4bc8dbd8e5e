package store

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/tribunal/internal/court"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/staking"
	"github.com/eigerco/tribunal/pkg/db"
	"github.com/eigerco/tribunal/pkg/log"
)

var (
	ErrCourtNotFound       = errors.New("court not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

var _ court.Store = (*Court)(nil)

// Court persists the court module state: one record per court, one per
// participant and a single meta record.
type Court struct {
	db.KVStore
}

// NewCourt creates a new court store using KVStore
func NewCourt(db db.KVStore) *Court {
	return &Court{KVStore: db}
}

// Commit writes the changes of one court operation in a single batch.
func (s *Court) Commit(changes court.Changes) error {
	batch := s.NewBatch()
	defer func() {
		if err := batch.Close(); err != nil && !errors.Is(err, db.ErrBatchDone) {
			log.Store.Warn().Err(err).Msg("error closing batch")
		}
	}()

	meta, err := scale.Marshal(changes.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := batch.Put(makeKey(prefixMeta, nil), meta); err != nil {
		return fmt.Errorf("put meta: %w", err)
	}

	for _, c := range changes.Courts {
		bytes, err := scale.Marshal(*c)
		if err != nil {
			return fmt.Errorf("marshal court %d: %w", c.ID(), err)
		}
		if err := batch.Put(makeCourtKey(uint64(c.ID())), bytes); err != nil {
			return fmt.Errorf("put court %d: %w", c.ID(), err)
		}
	}
	for _, id := range changes.Cleared {
		if err := batch.Delete(makeCourtKey(uint64(id))); err != nil {
			return fmt.Errorf("delete court %d: %w", id, err)
		}
	}

	for _, p := range changes.Participants {
		bytes, err := scale.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal participant %s: %w", p.Account.Short(), err)
		}
		if err := batch.Put(makeKey(prefixParticipant, p.Account[:]), bytes); err != nil {
			return fmt.Errorf("put participant %s: %w", p.Account.Short(), err)
		}
	}
	for _, account := range changes.RemovedParticipants {
		if err := batch.Delete(makeKey(prefixParticipant, account[:])); err != nil {
			return fmt.Errorf("delete participant %s: %w", account.Short(), err)
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	log.Store.Debug().Int("courts", len(changes.Courts)).Int("cleared", len(changes.Cleared)).
		Int("participants", len(changes.Participants)+len(changes.RemovedParticipants)).Msg("court changes committed")
	return nil
}

// GetCourt retrieves the court of a market.
func (s *Court) GetCourt(id primitives.MarketID) (*court.Court, error) {
	bytes, err := s.Get(makeCourtKey(uint64(id)))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrCourtNotFound
		}
		return nil, fmt.Errorf("get court: %w", err)
	}
	c := new(court.Court)
	if err := scale.Unmarshal(bytes, c); err != nil {
		return nil, fmt.Errorf("unmarshal court: %w", err)
	}
	return c, nil
}

// GetParticipant retrieves the stake record of an account.
func (s *Court) GetParticipant(account primitives.AccountID) (staking.Participant, error) {
	bytes, err := s.Get(makeKey(prefixParticipant, account[:]))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return staking.Participant{}, ErrParticipantNotFound
		}
		return staking.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	var p staking.Participant
	if err := scale.Unmarshal(bytes, &p); err != nil {
		return staking.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	return p, nil
}

// Load reads the whole persisted state. An empty store yields an empty snapshot.
func (s *Court) Load() (court.Snapshot, error) {
	var snap court.Snapshot

	bytes, err := s.Get(makeKey(prefixMeta, nil))
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return court.Snapshot{}, fmt.Errorf("get meta: %w", err)
	default:
		if err := scale.Unmarshal(bytes, &snap.Meta); err != nil {
			return court.Snapshot{}, fmt.Errorf("unmarshal meta: %w", err)
		}
	}

	err = s.scan(prefixCourt, func(value []byte) error {
		c := new(court.Court)
		if err := scale.Unmarshal(value, c); err != nil {
			return fmt.Errorf("unmarshal court: %w", err)
		}
		snap.Courts = append(snap.Courts, c)
		return nil
	})
	if err != nil {
		return court.Snapshot{}, err
	}

	err = s.scan(prefixParticipant, func(value []byte) error {
		var p staking.Participant
		if err := scale.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("unmarshal participant: %w", err)
		}
		snap.Participants = append(snap.Participants, p)
		return nil
	})
	if err != nil {
		return court.Snapshot{}, err
	}

	log.Store.Info().Int("courts", len(snap.Courts)).Int("participants", len(snap.Participants)).
		Uint64("block", uint64(snap.Meta.Now)).Msg("court state loaded")
	return snap, nil
}

// scan calls fn for every value stored under prefix, in key order.
func (s *Court) scan(prefix byte, fn func(value []byte) error) error {
	start := []byte{prefix}
	iter, err := s.NewIterator(start, db.PrefixEnd(start))
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.Store.Warn().Err(err).Msg("error closing iterator")
		}
	}()

	for iter.Next() {
		if !iter.Valid() {
			break
		}
		value, err := iter.Value()
		if err != nil {
			return fmt.Errorf("get iterator value: %w", err)
		}
		if err := fn(value); err != nil {
			return err
		}
	}
	return nil
}
