package court

import (
	"fmt"

	"github.com/eigerco/tribunal/internal/draw"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// selectJurors draws the panel for the court's current cycle. An unavailable
// randomness source yields an empty panel instead of an error.
func (t *txn) selectJurors(c *Court) {
	required := t.params().drawParams().RequiredJurors(len(c.Appeals))
	seed, err := t.m.random.Seed(t.Now)
	if err != nil {
		log.Court.Warn().Err(err).Uint64("market", uint64(c.ID())).Uint64("block", uint64(t.Now)).
			Msg("randomness unavailable, court proceeds without jurors")
		c.Draws = nil
		return
	}

	nonce := t.Nonce
	t.Nonce++
	selected := draw.Select(seed, nonce, t.registry.Pool(), required)

	draws := make([]Draw, 0, len(selected))
	for _, s := range selected {
		p, _ := t.registry.Participant(s.Account)
		d := Draw{
			Juror:       s.Account,
			Weight:      s.Weight,
			Own:         p.Stake - p.DelegatedAmount,
			Delegations: t.registry.Delegators(s.Account),
			Vote:        Vote{Inner: Drawn{}},
			Slashable:   s.Weight,
		}
		t.registry.Engage(d.accounts()...)
		draws = append(draws, d)
	}
	c.Draws = draws

	if len(draws) < required {
		log.Court.Info().Uint64("market", uint64(c.ID())).Int("required", required).Int("drawn", len(draws)).
			Msg("pool smaller than required panel")
	}
	id := c.ID()
	t.emit(events.JurorsDrawn, &id, nil, 0, panelDetail(len(draws), required))
}

// releaseDraws drops the draw references of every juror and delegator.
func (t *txn) releaseDraws(draws []Draw) {
	for i := range draws {
		t.registry.Release(draws[i].accounts()...)
	}
}

func panelDetail(drawn, required int) string {
	return fmt.Sprintf("%d/%d", drawn, required)
}
