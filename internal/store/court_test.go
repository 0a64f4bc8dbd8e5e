package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/tribunal/internal/court"
	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/ledger"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/randomness"
	"github.com/eigerco/tribunal/pkg/db"
	"github.com/eigerco/tribunal/pkg/db/bolt"
	"github.com/eigerco/tribunal/pkg/db/pebble"
)

func backends() map[string]func(t *testing.T) db.KVStore {
	return map[string]func(t *testing.T) db.KVStore{
		"pebble": func(t *testing.T) db.KVStore {
			kv, err := pebble.NewKVStore()
			require.NoError(t, err)
			return kv
		},
		"bolt": func(t *testing.T) db.KVStore {
			kv, err := bolt.Open(filepath.Join(t.TempDir(), "court.db"))
			require.NoError(t, err)
			return kv
		},
	}
}

func account(b byte) primitives.AccountID {
	var a primitives.AccountID
	a[0] = b
	return a
}

func market(id primitives.MarketID) primitives.Market {
	return primitives.Market{
		ID:       id,
		Type:     primitives.NewCategoricalMarket(4),
		Report:   primitives.CategoricalReport(1),
		ItemType: primitives.VoteItemOutcome,
	}
}

func TestCourtStoreRoundTrip(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer func() {
				require.NoError(t, kv.Close(), "failed to close db")
			}()
			courtStore := NewCourt(kv)

			empty, err := courtStore.Load()
			require.NoError(t, err)
			assert.Equal(t, court.Snapshot{}, empty)

			params := court.DefaultParams()
			params.BaseJurors = 3
			bank := ledger.New()
			m, err := court.New(params, bank, randomness.Fixed{7}, court.WithStore(courtStore))
			require.NoError(t, err)

			for i := byte(1); i <= 4; i++ {
				require.NoError(t, bank.Deposit(account(i), 10_000))
				require.NoError(t, m.JoinCourt(account(i), primitives.Balance(1_000*int(i))))
			}
			require.NoError(t, m.Delegate(account(1), account(4), 500))
			_, err = m.OnInitialize(1)
			require.NoError(t, err)
			for id := primitives.MarketID(1); id <= 2; id++ {
				_, err = m.OnDispute(market(id), 1)
				require.NoError(t, err)
			}

			// commit a vote so a secret is persisted
			c, err := m.Court(1)
			require.NoError(t, err)
			_, err = m.OnInitialize(c.RoundEnds.PreVote)
			require.NoError(t, err)
			juror := c.Draws[0].Juror
			commitment, err := crypto.Commitment(juror, primitives.OutcomeItem(primitives.CategoricalReport(2)), crypto.Salt{1})
			require.NoError(t, err)
			require.NoError(t, m.Vote(1, juror, commitment))

			loaded, err := courtStore.Load()
			require.NoError(t, err)
			assert.Equal(t, m.Snapshot(), loaded)

			stored, err := courtStore.GetCourt(1)
			require.NoError(t, err)
			i := 0
			for stored.Draws[i].Juror != juror {
				i++
			}
			assert.Equal(t, court.Vote{Inner: court.Secret{Commitment: commitment}}, stored.Draws[i].Vote)

			p, err := courtStore.GetParticipant(account(1))
			require.NoError(t, err)
			require.NotNil(t, p.DelegatedTo)
			assert.Equal(t, account(4), *p.DelegatedTo)

			_, err = courtStore.GetCourt(3)
			require.ErrorIs(t, err, ErrCourtNotFound)
			_, err = courtStore.GetParticipant(account(9))
			require.ErrorIs(t, err, ErrParticipantNotFound)

			restored, err := court.New(params, bank, randomness.Fixed{7}, court.WithSnapshot(loaded))
			require.NoError(t, err)
			resolveAt, err := restored.GetAutoResolve(2)
			require.NoError(t, err)
			assert.Equal(t, c.RoundEnds.Appeal, resolveAt)
		})
	}
}

func TestCourtStoreRemovesClearedState(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			kv := open(t)
			defer func() {
				require.NoError(t, kv.Close(), "failed to close db")
			}()
			courtStore := NewCourt(kv)

			params := court.DefaultParams()
			params.BaseJurors = 2
			params.ExitCooldown = 0
			bank := ledger.New()
			m, err := court.New(params, bank, randomness.Fixed{3}, court.WithStore(courtStore))
			require.NoError(t, err)
			for i := byte(1); i <= 2; i++ {
				require.NoError(t, bank.Deposit(account(i), 10_000))
				require.NoError(t, m.JoinCourt(account(i), 2_000))
			}
			require.NoError(t, bank.Deposit(account(3), 10_000))
			require.NoError(t, m.JoinCourt(account(3), 2_000))
			require.NoError(t, m.PrepareExitCourt(account(3)))
			require.NoError(t, m.ExitCourt(account(3)))
			_, err = courtStore.GetParticipant(account(3))
			require.ErrorIs(t, err, ErrParticipantNotFound)

			_, err = m.OnInitialize(1)
			require.NoError(t, err)
			resolveAt, err := m.OnDispute(market(5), 1)
			require.NoError(t, err)
			_, err = m.OnInitialize(resolveAt)
			require.NoError(t, err)
			_, err = m.OnResolution(5)
			require.NoError(t, err)

			stored, err := courtStore.GetCourt(5)
			require.NoError(t, err)
			assert.Equal(t, court.StatusClosed, stored.Status)
			assert.True(t, stored.Settled)

			done, err := m.Clear(5, 0)
			require.NoError(t, err)
			assert.True(t, done)
			_, err = courtStore.GetCourt(5)
			require.ErrorIs(t, err, ErrCourtNotFound)

			loaded, err := courtStore.Load()
			require.NoError(t, err)
			assert.Equal(t, m.Snapshot(), loaded)
		})
	}
}
