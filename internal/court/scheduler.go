package court

import (
	"slices"

	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// Tick is the outcome of block initialization.
type Tick struct {
	// Due are the markets whose court is scheduled to resolve at this block.
	Due []primitives.MarketID
	// Inflation holds the rewards minted for pool members at this block.
	Inflation []primitives.Transfer
}

// OnInitialize advances the court clock to now. It moves the request block
// forward once it is reached and mints staking inflation every
// InflationPeriod blocks.
func (m *Module) OnInitialize(now primitives.BlockNumber) (Tick, error) {
	var tick Tick
	err := m.update(func(t *txn) error {
		t.Now = now
		if now >= t.RequestBlock {
			t.RequestBlock = now + t.params().RequestInterval
		}

		if period := t.params().InflationPeriod; period > 0 && now > 0 && now%period == 0 {
			var minted primitives.Balance
			for _, p := range t.registry.Inflation(t.params().InflationRate) {
				tick.Inflation = append(tick.Inflation, primitives.Transfer{
					Kind:   primitives.TransferInflation,
					To:     p.Account,
					Amount: p.Amount,
				})
				minted += p.Amount
			}
			if len(tick.Inflation) > 0 {
				log.Court.Debug().Uint64("block", uint64(now)).Int("members", len(tick.Inflation)).
					Uint64("minted", uint64(minted)).Msg("inflation minted")
				t.emit(events.InflationMinted, nil, nil, minted, "")
			}
		}

		tick.Due = slices.Clone(t.autoResolve[now])
		return nil
	})
	return tick, err
}
