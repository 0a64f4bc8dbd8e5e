package court

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/tribunal/internal/ledger"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/randomness"
	"github.com/eigerco/tribunal/pkg/events"
)

func TestSettlementSixJurors(t *testing.T) {
	params := testParams()
	params.BaseJurors = 6
	h := newHarness(t, params)

	stakes := []primitives.Balance{1_000, 1_700, 2_300, 3_100, 4_000, 5_300}
	jurors := make([]primitives.AccountID, len(stakes))
	for i, s := range stakes {
		jurors[i] = account(byte(i + 1))
		h.join(jurors[i], s)
	}
	const id = primitives.MarketID(7)
	h.open(categoricalMarket(id))
	require.Len(t, h.court(id).Draws, 6)

	right, wrong := category(1), category(2)
	h.advance(51)
	h.vote(id, jurors[0], right, salt(1))
	h.vote(id, jurors[1], wrong, salt(2))
	h.vote(id, jurors[2], right, salt(3))
	h.vote(id, jurors[3], right, salt(4))
	h.vote(id, jurors[5], right, salt(6))
	require.NoError(t, h.m.DenounceVote(id, jurors[0], jurors[3], right, salt(4)))

	h.advance(72)
	require.NoError(t, h.m.RevealVote(id, jurors[0], right, salt(1)))
	require.NoError(t, h.m.RevealVote(id, jurors[1], wrong, salt(2)))
	require.NoError(t, h.m.RevealVote(id, jurors[2], right, salt(3)))

	h.advance(92)
	winner, err := h.m.OnResolution(id)
	require.NoError(t, err)
	assert.Equal(t, right, winner)

	transfers, err := h.m.Exchange(id)
	require.NoError(t, err)

	slashed := transfersBy(transfers, primitives.TransferSlash)
	assert.Equal(t, map[primitives.AccountID]primitives.Balance{
		jurors[1]: stakes[1],
		jurors[3]: stakes[3],
		jurors[4]: stakes[4],
		jurors[5]: stakes[5],
	}, slashed)

	total := stakes[1] + stakes[3] + stakes[4] + stakes[5]
	rewards := transfersBy(transfers, primitives.TransferReward)
	assert.Equal(t, map[primitives.AccountID]primitives.Balance{
		jurors[0]: total * stakes[0] / (stakes[0] + stakes[2]),
		jurors[2]: total * stakes[2] / (stakes[0] + stakes[2]),
	}, rewards)
	assert.Empty(t, transfersBy(transfers, primitives.TransferTreasury))

	pot := h.m.RewardPot(id)
	for _, tr := range transfers {
		switch tr.Kind {
		case primitives.TransferSlash:
			assert.Equal(t, pot, tr.To)
		case primitives.TransferReward:
			assert.Equal(t, pot, tr.From)
		}
	}

	for _, i := range []int{1, 3, 4, 5} {
		_, ok := h.m.Participant(jurors[i])
		assert.False(t, ok, "juror %d should be removed after losing its whole stake", i)
		assert.NotContains(t, h.currency.locks, jurors[i])
	}
	for _, i := range []int{0, 2} {
		p, ok := h.m.Participant(jurors[i])
		require.True(t, ok)
		assert.Equal(t, stakes[i], p.Stake)
		assert.Zero(t, p.ActiveCourts)
		assert.Equal(t, stakes[i], h.currency.locks[jurors[i]])
	}
	assert.Contains(t, h.events.Kinds(), events.StakesReassigned)
}

func TestSettlementConservation(t *testing.T) {
	params := testParams()
	params.BaseJurors = 5
	h := newHarness(t, params)

	stakes := []primitives.Balance{1_001, 1_333, 2_777, 3_001, 1_999}
	jurors := make([]primitives.AccountID, len(stakes))
	for i, s := range stakes {
		jurors[i] = account(byte(i + 1))
		h.join(jurors[i], s)
	}
	const id = primitives.MarketID(1)
	h.open(categoricalMarket(id))
	h.voteAndReveal(id, map[primitives.AccountID]primitives.VoteItem{
		jurors[0]: category(1),
		jurors[1]: category(1),
		jurors[2]: category(2),
		jurors[3]: category(1),
	})

	h.advance(92)
	_, err := h.m.OnResolution(id)
	require.NoError(t, err)
	transfers, err := h.m.Exchange(id)
	require.NoError(t, err)

	var in, out primitives.Balance
	for _, tr := range transfers {
		switch tr.Kind {
		case primitives.TransferSlash, primitives.TransferBondForfeit:
			in += tr.Amount
		case primitives.TransferReward, primitives.TransferTreasury:
			out += tr.Amount
		}
	}
	assert.Equal(t, stakes[2]+stakes[4], in)
	assert.LessOrEqual(t, out, in)
	// floor division loses at most one unit per recipient
	assert.GreaterOrEqual(t, out+3, in)
}

func TestSettlementNoCoherentJurorsGoesToTreasury(t *testing.T) {
	params := testParams()
	params.BaseJurors = 3
	h := newHarness(t, params)
	for i := byte(1); i <= 3; i++ {
		h.join(account(i), 1_000)
	}
	const id = primitives.MarketID(2)
	h.open(categoricalMarket(id))

	h.advance(92)
	winner, err := h.m.OnResolution(id)
	require.NoError(t, err)
	assert.Equal(t, category(0), winner)

	transfers, err := h.m.Exchange(id)
	require.NoError(t, err)
	assert.Empty(t, transfersBy(transfers, primitives.TransferReward))
	assert.Equal(t, map[primitives.AccountID]primitives.Balance{
		params.TreasuryAccount: 3_000,
	}, transfersBy(transfers, primitives.TransferTreasury))
}

func TestSettlementDelegatedStake(t *testing.T) {
	a, b, c := account(1), account(2), account(3)

	tests := []struct {
		name     string
		votes    map[primitives.AccountID]primitives.VoteItem
		slashed  map[primitives.AccountID]primitives.Balance
		rewarded map[primitives.AccountID]primitives.Balance
	}{
		{
			name: "delegate loses with juror",
			votes: map[primitives.AccountID]primitives.VoteItem{
				c: category(1),
			},
			slashed:  map[primitives.AccountID]primitives.Balance{a: 2_000, b: 2_000},
			rewarded: map[primitives.AccountID]primitives.Balance{c: 4_000},
		},
		{
			name: "delegate shares reward",
			votes: map[primitives.AccountID]primitives.VoteItem{
				a: category(1),
				b: category(1),
				c: category(2),
			},
			slashed: map[primitives.AccountID]primitives.Balance{c: 2_000},
			// a's draw earns 2000×3000/4000 = 1500 of which b gets a third,
			// b's own draw earns 2000×1000/4000 = 500
			rewarded: map[primitives.AccountID]primitives.Balance{a: 1_000, b: 1_000},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			params.BaseJurors = 3
			h := newHarness(t, params)
			h.join(a, 2_000)
			h.join(b, 2_000)
			h.join(c, 2_000)
			require.NoError(t, h.m.Delegate(b, a, 1_000))

			const id = primitives.MarketID(3)
			h.open(categoricalMarket(id))

			draws := h.court(id).Draws
			require.Len(t, draws, 3)
			for _, d := range draws {
				switch d.Juror {
				case a:
					assert.Equal(t, primitives.Balance(3_000), d.Slashable)
					assert.Equal(t, primitives.Balance(2_000), d.Own)
					require.Len(t, d.Delegations, 1)
					assert.Equal(t, b, d.Delegations[0].Delegator)
				case b:
					assert.Equal(t, primitives.Balance(1_000), d.Slashable)
				}
			}
			p, _ := h.m.Participant(b)
			assert.Equal(t, uint32(2), p.ActiveCourts)

			h.voteAndReveal(id, tc.votes)
			h.advance(92)
			_, err := h.m.OnResolution(id)
			require.NoError(t, err)

			transfers, err := h.m.Exchange(id)
			require.NoError(t, err)
			assert.Equal(t, tc.slashed, transfersBy(transfers, primitives.TransferSlash))
			assert.Equal(t, tc.rewarded, transfersBy(transfers, primitives.TransferReward))
		})
	}
}

func TestSettlementAfterAppeal(t *testing.T) {
	jurors := []primitives.AccountID{account(1), account(2), account(3), account(4)}
	backer := account(20)

	tests := []struct {
		name      string
		final     primitives.VoteItem
		forfeited map[primitives.AccountID]primitives.Balance
		rewarded  map[primitives.AccountID]primitives.Balance
	}{
		{
			name:      "justified appeal leaves juror rewards untouched",
			final:     category(2),
			forfeited: map[primitives.AccountID]primitives.Balance{},
			// 1000 slashed over 3000 coherent stake
			rewarded: map[primitives.AccountID]primitives.Balance{
				jurors[0]: 333,
				jurors[1]: 333,
				jurors[2]: 333,
			},
		},
		{
			name:      "unjustified bond joins the juror pool",
			final:     category(1),
			forfeited: map[primitives.AccountID]primitives.Balance{backer: 2_200},
			// 1000 slashed plus the 2200 bond over 3000 coherent stake
			rewarded: map[primitives.AccountID]primitives.Balance{
				jurors[0]: 1_066,
				jurors[1]: 1_066,
				jurors[2]: 1_066,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			params.BaseJurors = 4
			params.JurorIncrement = 0
			params.MaxAppeals = 1
			h := newHarness(t, params)
			for _, j := range jurors {
				h.join(j, 1_000)
			}
			h.fund(backer, 10_000)
			const id = primitives.MarketID(6)
			h.open(categoricalMarket(id))

			votes := make(map[primitives.AccountID]primitives.VoteItem, len(jurors))
			for _, j := range jurors {
				votes[j] = category(1)
			}
			h.voteAndReveal(id, votes)
			h.advance(92)
			require.NoError(t, h.m.Appeal(id, backer))
			assert.Equal(t, params.AppealBondFor(1), h.currency.reserved[backer])
			assert.Equal(t, category(1), h.court(id).Appeals[0].AppealedItem)
			require.Len(t, h.court(id).Draws, len(jurors))

			votes = map[primitives.AccountID]primitives.VoteItem{
				jurors[0]: tc.final,
				jurors[1]: tc.final,
				jurors[2]: tc.final,
				jurors[3]: category(0),
			}
			h.voteAndReveal(id, votes)
			h.advance(h.court(id).RoundEnds.Aggregation + 1)
			winner, err := h.m.OnResolution(id)
			require.NoError(t, err)
			assert.Equal(t, tc.final, winner)

			transfers, err := h.m.Exchange(id)
			require.NoError(t, err)
			assert.Equal(t, map[primitives.AccountID]primitives.Balance{
				jurors[3]: 1_000,
			}, transfersBy(transfers, primitives.TransferSlash))
			assert.Equal(t, tc.forfeited, transfersBy(transfers, primitives.TransferBondForfeit))
			assert.Equal(t, tc.rewarded, transfersBy(transfers, primitives.TransferReward))
			assert.Empty(t, transfersBy(transfers, primitives.TransferTreasury))

			// the bond is released either way, a forfeit is one of the transfers
			assert.Zero(t, h.currency.reserved[backer])
			assert.Equal(t, primitives.Balance(10_000), h.currency.free[backer])
		})
	}
}

func TestExchangeAppliedAfterSettlement(t *testing.T) {
	params := testParams()
	params.BaseJurors = 3
	bank := ledger.New()
	m, err := New(params, bank, randomness.Fixed{0x42})
	require.NoError(t, err)
	h := &harness{t: t, m: m}
	for i := byte(1); i <= 3; i++ {
		require.NoError(t, bank.Deposit(account(i), 1_500))
		require.NoError(t, m.JoinCourt(account(i), 1_000))
	}
	const id = primitives.MarketID(8)
	h.open(categoricalMarket(id))
	h.voteAndReveal(id, map[primitives.AccountID]primitives.VoteItem{
		account(1): category(1),
		account(2): category(1),
		account(3): category(2),
	})
	h.advance(92)
	_, err = m.OnResolution(id)
	require.NoError(t, err)

	// the slashed stake is unlocked but still held until the transfers run
	assert.Equal(t, ledger.Account{Free: 1_500}, bank.Account(account(3)))

	transfers, err := m.Exchange(id)
	require.NoError(t, err)
	require.NoError(t, bank.Apply(transfers))
	assert.Equal(t, ledger.Account{Free: 500}, bank.Account(account(3)))
	for i := byte(1); i <= 2; i++ {
		assert.Equal(t, ledger.Account{Free: 2_000, Locked: 1_000}, bank.Account(account(i)))
	}
	assert.Equal(t, primitives.Balance(4_500), bank.TotalIssuance())
}

func TestReassignCourtStakes(t *testing.T) {
	params := testParams()
	params.BaseJurors = 3
	h := newHarness(t, params)
	for i := byte(1); i <= 3; i++ {
		h.join(account(i), 1_000)
	}
	const id = primitives.MarketID(4)
	h.open(categoricalMarket(id))

	err := h.m.ReassignCourtStakes(id)
	require.ErrorIs(t, err, ErrCourtNotClosed)
	err = h.m.ReassignCourtStakes(99)
	require.ErrorIs(t, err, ErrCourtNotFound)

	h.advance(92)
	_, err = h.m.OnResolution(id)
	require.NoError(t, err)
	err = h.m.ReassignCourtStakes(id)
	require.ErrorIs(t, err, ErrAlreadySettled)
}

func TestClearInBatches(t *testing.T) {
	params := testParams()
	params.BaseJurors = 5
	h := newHarness(t, params)
	for i := byte(1); i <= 5; i++ {
		h.join(account(i), 1_000)
	}
	const id = primitives.MarketID(5)
	h.open(categoricalMarket(id))

	_, err := h.m.Clear(id, 2)
	require.ErrorIs(t, err, ErrCourtNotClosed)

	h.advance(92)
	_, err = h.m.OnResolution(id)
	require.NoError(t, err)

	done, err := h.m.Clear(id, 2)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, h.court(id).Draws, 3)

	done, err = h.m.Clear(id, 2)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = h.m.Clear(id, 2)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = h.m.Court(id)
	require.ErrorIs(t, err, ErrCourtNotFound)
	assert.Contains(t, h.events.Kinds(), events.CourtCleared)
}
