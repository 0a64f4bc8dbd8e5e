package court

import (
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// Appeal challenges the current winner during the appeal window. The backer
// reserves an escalating bond and a larger panel is drawn for a new cycle.
func (m *Module) Appeal(id primitives.MarketID, backer primitives.AccountID) error {
	return m.update(func(t *txn) error {
		c, err := t.openCourt(id)
		if err != nil {
			return err
		}
		if uint32(len(c.Appeals)) >= t.params().MaxAppeals {
			return ErrMaxAppealsReached
		}
		if c.Phase(t.Now) != PhaseAppealable {
			return ErrNotInAppealWindow
		}
		appealNumber := len(c.Appeals) + 1
		bond := t.params().AppealBondFor(appealNumber)
		if !m.currency.CanReserve(backer, bond) {
			return ErrInsufficientBond
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		appealed := tally(c).Winner
		c.Appeals = append(c.Appeals, AppealInfo{
			Backer:       backer,
			Bond:         bond,
			AppealedItem: appealed,
			Cycle:        c.Cycle,
		})
		t.reserve(backer, bond)

		t.releaseDraws(c.Draws)
		c.PriorDraws = append(c.PriorDraws, c.Draws...)
		c.Draws = nil
		c.Cycle++
		t.selectJurors(c)

		t.removeAutoResolve(c.RoundEnds.Appeal, id)
		c.RoundEnds = newRoundEnds(t.nextRequestBlock(), t.params())
		t.addAutoResolve(c.RoundEnds.Appeal, id)

		log.Court.Info().Uint64("market", uint64(id)).Int("appeal", appealNumber).
			Str("appealed", appealed.String()).Uint64("resolve_at", uint64(c.RoundEnds.Appeal)).Msg("market appealed")
		t.emit(events.MarketAppealed, &id, &backer, bond, appealed.String())
		return nil
	})
}

// nextRequestBlock is the block at which the next cycle starts voting.
func (t *txn) nextRequestBlock() primitives.BlockNumber {
	if t.RequestBlock > t.Now {
		return t.RequestBlock
	}
	return t.Now + t.params().RequestInterval
}
