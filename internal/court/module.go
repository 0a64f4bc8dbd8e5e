package court

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/draw"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/staking"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// Meta is the module-wide scalar state.
type Meta struct {
	Now          primitives.BlockNumber
	RequestBlock primitives.BlockNumber
	// Nonce strictly increases with every jury selection.
	Nonce uint64
}

// Changes is everything one committed operation modified.
type Changes struct {
	Meta                Meta
	Courts              []*Court
	Cleared             []primitives.MarketID
	Participants        []staking.Participant
	RemovedParticipants []primitives.AccountID
}

// Store persists committed changes. Commit must be atomic.
type Store interface {
	Commit(Changes) error
}

// Snapshot is the persisted state a module is restored from.
type Snapshot struct {
	Meta         Meta
	Courts       []*Court
	Participants []staking.Participant
}

type state struct {
	Meta
	registry    *staking.Registry
	courts      map[primitives.MarketID]*Court
	autoResolve map[primitives.BlockNumber][]primitives.MarketID
}

func (s *state) fork() *state {
	f := &state{
		Meta:        s.Meta,
		registry:    s.registry.Clone(),
		courts:      maps.Clone(s.courts),
		autoResolve: make(map[primitives.BlockNumber][]primitives.MarketID, len(s.autoResolve)),
	}
	for block, ids := range s.autoResolve {
		f.autoResolve[block] = slices.Clone(ids)
	}
	return f
}

func (s *state) addAutoResolve(block primitives.BlockNumber, id primitives.MarketID) {
	s.autoResolve[block] = append(s.autoResolve[block], id)
}

func (s *state) removeAutoResolve(block primitives.BlockNumber, id primitives.MarketID) {
	ids := slices.DeleteFunc(s.autoResolve[block], func(m primitives.MarketID) bool {
		return m == id
	})
	if len(ids) == 0 {
		delete(s.autoResolve, block)
		return
	}
	s.autoResolve[block] = ids
}

// Module is the court. Every exported mutation runs against a fork of the
// state and is committed atomically, together with its currency effects,
// storage writes and events, or discarded on error.
type Module struct {
	mu       sync.Mutex
	params   Params
	currency Currency
	random   draw.RandomSource
	store    Store
	sink     events.Sink
	state    *state
	potSeed  []byte
}

type Option func(*Module)

func WithStore(s Store) Option {
	return func(m *Module) { m.store = s }
}

func WithEventSink(s events.Sink) Option {
	return func(m *Module) { m.sink = s }
}

// WithSnapshot restores previously persisted state.
func WithSnapshot(snap Snapshot) Option {
	return func(m *Module) {
		m.state.Meta = snap.Meta
		m.state.registry = staking.Restore(m.params.stakingParams(), snap.Participants)
		for _, c := range snap.Courts {
			m.state.courts[c.ID()] = c.clone()
			if c.Status == StatusOpen {
				m.state.addAutoResolve(c.RoundEnds.Appeal, c.ID())
			}
		}
	}
}

func New(params Params, currency Currency, random draw.RandomSource, opts ...Option) (*Module, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Module{
		params:   params,
		currency: currency,
		random:   random,
		potSeed:  append([]byte("modl"), params.PalletID...),
		state: &state{
			registry:    staking.NewRegistry(params.stakingParams()),
			courts:      make(map[primitives.MarketID]*Court),
			autoResolve: make(map[primitives.BlockNumber][]primitives.MarketID),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) Params() Params {
	return m.params
}

// RewardPot is the account that collects slashes and forfeited bonds of a market.
func (m *Module) RewardPot(id primitives.MarketID) primitives.AccountID {
	seed := make([]byte, len(m.potSeed)+8)
	copy(seed, m.potSeed)
	for i := 0; i < 8; i++ {
		seed[len(m.potSeed)+i] = byte(uint64(id) >> (8 * i))
	}
	return crypto.AccountFromSeed(seed)
}

// Now is the block of the last OnInitialize call.
func (m *Module) Now() primitives.BlockNumber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Now
}

// Court returns a copy of the court of a market.
func (m *Module) Court(id primitives.MarketID) (*Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.courts[id]
	if !ok {
		return nil, ErrCourtNotFound
	}
	return c.clone(), nil
}

func (m *Module) Participant(account primitives.AccountID) (staking.Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.registry.Participant(account)
}

// Pool returns the current weighted court pool.
func (m *Module) Pool() staking.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.registry.Pool()
}

// Snapshot returns a copy of the whole state.
func (m *Module) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Meta:         m.state.Meta,
		Participants: m.state.registry.Participants(),
	}
	for _, id := range slices.Sorted(maps.Keys(m.state.courts)) {
		snap.Courts = append(snap.Courts, m.state.courts[id].clone())
	}
	return snap
}

// txn is one in-flight operation.
type txn struct {
	*state
	m       *Module
	written map[primitives.MarketID]struct{}
	cleared map[primitives.MarketID]struct{}
	effects []effect
	events  []events.Event
}

func (t *txn) params() Params {
	return t.m.params
}

// court returns a court for reading.
func (t *txn) court(id primitives.MarketID) (*Court, error) {
	c, ok := t.courts[id]
	if !ok {
		return nil, ErrCourtNotFound
	}
	return c, nil
}

// mutCourt returns a court that may be modified, copying it on first access.
func (t *txn) mutCourt(id primitives.MarketID) (*Court, error) {
	c, ok := t.courts[id]
	if !ok {
		return nil, ErrCourtNotFound
	}
	if _, ok := t.written[id]; ok {
		return c, nil
	}
	c = c.clone()
	t.courts[id] = c
	t.written[id] = struct{}{}
	return c, nil
}

func (t *txn) insertCourt(c *Court) {
	t.courts[c.ID()] = c
	t.written[c.ID()] = struct{}{}
	delete(t.cleared, c.ID())
}

func (t *txn) deleteCourt(id primitives.MarketID) {
	delete(t.courts, id)
	delete(t.written, id)
	t.cleared[id] = struct{}{}
}

func (t *txn) reserve(account primitives.AccountID, amount primitives.Balance) {
	t.effects = append(t.effects, reserveEffect{account: account, amount: amount})
}

func (t *txn) unreserve(account primitives.AccountID, amount primitives.Balance) {
	t.effects = append(t.effects, unreserveEffect{account: account, amount: amount})
}

func (t *txn) emit(kind events.Kind, market *primitives.MarketID, account *primitives.AccountID, amount primitives.Balance, detail string) {
	e := events.Event{Kind: kind, Block: uint64(t.Now), Amount: uint64(amount), Detail: detail}
	if market != nil {
		id := uint64(*market)
		e.Market = &id
	}
	if account != nil {
		e.Account = account.String()
	}
	t.events = append(t.events, e)
}

// update runs fn on a fork of the state and commits it when fn succeeds.
func (m *Module) update(fn func(t *txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &txn{
		state:   m.state.fork(),
		m:       m,
		written: make(map[primitives.MarketID]struct{}),
		cleared: make(map[primitives.MarketID]struct{}),
	}
	if err := fn(t); err != nil {
		return err
	}
	return m.commit(t)
}

func (m *Module) commit(t *txn) error {
	updated, removed := t.registry.TakeDirty()
	effects := append(t.effects, m.lockEffects(updated, removed)...)

	if err := applyEffects(m.currency, effects); err != nil {
		return fmt.Errorf("apply currency effects: %w", err)
	}

	if m.store != nil {
		changes := Changes{
			Meta:                t.Meta,
			Participants:        updated,
			RemovedParticipants: removed,
		}
		for _, id := range slices.Sorted(maps.Keys(t.written)) {
			changes.Courts = append(changes.Courts, t.courts[id])
		}
		changes.Cleared = slices.Sorted(maps.Keys(t.cleared))
		if err := m.store.Commit(changes); err != nil {
			revertEffects(m.currency, effects)
			return fmt.Errorf("persist court state: %w", err)
		}
	}

	m.state = t.state
	if m.sink != nil {
		for _, e := range t.events {
			if err := m.sink.Publish(e); err != nil {
				log.Court.Warn().Err(err).Str("event", string(e.Kind)).Msg("failed to publish event")
			}
		}
	}
	return nil
}

// lockEffects brings every touched participant's court lock in line with its stake.
func (m *Module) lockEffects(updated []staking.Participant, removed []primitives.AccountID) []effect {
	var effects []effect
	for _, p := range updated {
		old, _ := m.state.registry.Participant(p.Account)
		if old.Stake != p.Stake {
			effects = append(effects, lockEffect{account: p.Account, amount: p.Stake, prev: old.Stake})
		}
	}
	for _, account := range removed {
		if old, ok := m.state.registry.Participant(account); ok && old.Stake > 0 {
			effects = append(effects, lockEffect{account: account, amount: 0, prev: old.Stake})
		}
	}
	return effects
}
