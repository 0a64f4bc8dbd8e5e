package court

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/randomness"
	"github.com/eigerco/tribunal/pkg/events"
)

var errInjected = errors.New("injected failure")

// fakeCurrency models free balance with a single court lock and a reserve per account.
type fakeCurrency struct {
	free     map[primitives.AccountID]primitives.Balance
	locks    map[primitives.AccountID]primitives.Balance
	reserved map[primitives.AccountID]primitives.Balance

	failReserve error
}

func newFakeCurrency() *fakeCurrency {
	return &fakeCurrency{
		free:     make(map[primitives.AccountID]primitives.Balance),
		locks:    make(map[primitives.AccountID]primitives.Balance),
		reserved: make(map[primitives.AccountID]primitives.Balance),
	}
}

func (c *fakeCurrency) FreeBalance(account primitives.AccountID) primitives.Balance {
	return c.free[account]
}

func (c *fakeCurrency) SetLock(account primitives.AccountID, amount primitives.Balance) error {
	c.locks[account] = amount
	return nil
}

func (c *fakeCurrency) RemoveLock(account primitives.AccountID) error {
	delete(c.locks, account)
	return nil
}

func (c *fakeCurrency) usable(account primitives.AccountID) primitives.Balance {
	free, lock := c.free[account], c.locks[account]
	if lock >= free {
		return 0
	}
	return free - lock
}

func (c *fakeCurrency) CanReserve(account primitives.AccountID, amount primitives.Balance) bool {
	return c.usable(account) >= amount
}

func (c *fakeCurrency) Reserve(account primitives.AccountID, amount primitives.Balance) error {
	if c.failReserve != nil {
		return c.failReserve
	}
	if !c.CanReserve(account, amount) {
		return errors.New("insufficient usable balance")
	}
	c.free[account] -= amount
	c.reserved[account] += amount
	return nil
}

func (c *fakeCurrency) Unreserve(account primitives.AccountID, amount primitives.Balance) error {
	amount = min(amount, c.reserved[account])
	c.reserved[account] -= amount
	c.free[account] += amount
	return nil
}

type fakeStore struct {
	commits []Changes
	err     error
}

func (s *fakeStore) Commit(changes Changes) error {
	if s.err != nil {
		return s.err
	}
	s.commits = append(s.commits, changes)
	return nil
}

type failingRandom struct{}

func (failingRandom) Seed(primitives.BlockNumber) (crypto.Hash, error) {
	return crypto.Hash{}, errors.New("no block hash")
}

func account(b byte) primitives.AccountID {
	var a primitives.AccountID
	a[0] = b
	a[31] = 0x01
	return a
}

func salt(b byte) crypto.Salt {
	var s crypto.Salt
	s[0] = b
	s[1] = 0x5a
	return s
}

func testParams() Params {
	p := DefaultParams()
	p.InflationPeriod = 0
	return p
}

func categoricalMarket(id primitives.MarketID) primitives.Market {
	return primitives.Market{
		ID:       id,
		Type:     primitives.NewCategoricalMarket(3),
		Report:   primitives.CategoricalReport(0),
		ItemType: primitives.VoteItemOutcome,
	}
}

func category(i uint16) primitives.VoteItem {
	return primitives.OutcomeItem(primitives.CategoricalReport(i))
}

type harness struct {
	t        *testing.T
	m        *Module
	currency *fakeCurrency
	events   *events.Recorder
}

func newHarness(t *testing.T, params Params, opts ...Option) *harness {
	t.Helper()
	currency := newFakeCurrency()
	rec := &events.Recorder{}
	opts = append([]Option{WithEventSink(rec)}, opts...)
	m, err := New(params, currency, randomness.Fixed{0x42}, opts...)
	require.NoError(t, err)
	return &harness{t: t, m: m, currency: currency, events: rec}
}

func (h *harness) fund(a primitives.AccountID, amount primitives.Balance) {
	h.currency.free[a] += amount
}

func (h *harness) join(a primitives.AccountID, stake primitives.Balance) {
	h.t.Helper()
	h.fund(a, stake*10)
	require.NoError(h.t, h.m.JoinCourt(a, stake))
}

func (h *harness) advance(now primitives.BlockNumber) Tick {
	h.t.Helper()
	tick, err := h.m.OnInitialize(now)
	require.NoError(h.t, err)
	return tick
}

// open starts a court at block 1. With default periods its rounds end at
// 51, 71, 91 and 111.
func (h *harness) open(market primitives.Market) {
	h.t.Helper()
	h.advance(1)
	_, err := h.m.OnDispute(market, 1)
	require.NoError(h.t, err)
}

func (h *harness) court(id primitives.MarketID) *Court {
	h.t.Helper()
	c, err := h.m.Court(id)
	require.NoError(h.t, err)
	return c
}

func (h *harness) vote(id primitives.MarketID, juror primitives.AccountID, item primitives.VoteItem, s crypto.Salt) {
	h.t.Helper()
	commitment, err := crypto.Commitment(juror, item, s)
	require.NoError(h.t, err)
	require.NoError(h.t, h.m.Vote(id, juror, commitment))
}

func (h *harness) voteAndReveal(id primitives.MarketID, votes map[primitives.AccountID]primitives.VoteItem) {
	h.t.Helper()
	rounds := h.court(id).RoundEnds
	h.advance(rounds.PreVote)
	for juror, item := range votes {
		h.vote(id, juror, item, salt(juror[0]))
	}
	h.advance(rounds.Vote + 1)
	for juror, item := range votes {
		require.NoError(h.t, h.m.RevealVote(id, juror, item, salt(juror[0])))
	}
}

// transfersBy sums transfers of kind per receiving account, or per sender for slashes and forfeits.
func transfersBy(transfers []primitives.Transfer, kind primitives.TransferKind) map[primitives.AccountID]primitives.Balance {
	out := make(map[primitives.AccountID]primitives.Balance)
	for _, tr := range transfers {
		if tr.Kind != kind {
			continue
		}
		switch kind {
		case primitives.TransferSlash, primitives.TransferBondForfeit:
			out[tr.From] += tr.Amount
		default:
			out[tr.To] += tr.Amount
		}
	}
	return out
}
