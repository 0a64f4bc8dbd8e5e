package court

import (
	"fmt"

	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// DisputeAPI is the seam between the market resolution pipeline and the court.
type DisputeAPI interface {
	OnDispute(market primitives.Market, now primitives.BlockNumber) (primitives.BlockNumber, error)
	OnResolution(id primitives.MarketID) (primitives.VoteItem, error)
	GetAutoResolve(id primitives.MarketID) (primitives.BlockNumber, error)
	HasFailed(id primitives.MarketID) (bool, error)
	OnGlobalDispute(id primitives.MarketID) ([]GlobalDisputeItem, error)
	AcceptGlobalDisputeWinner(id primitives.MarketID, winner primitives.VoteItem) error
	Exchange(id primitives.MarketID) ([]primitives.Transfer, error)
	Clear(id primitives.MarketID, limit int) (bool, error)
}

var _ DisputeAPI = (*Module)(nil)

// OnDispute opens a court for market, draws the base panel and returns the
// block at which the court is expected to resolve.
func (m *Module) OnDispute(market primitives.Market, now primitives.BlockNumber) (primitives.BlockNumber, error) {
	var resolveAt primitives.BlockNumber
	err := m.update(func(t *txn) error {
		if err := market.Type.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMarket, err)
		}
		if err := market.Type.Accepts(market.Report); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMarket, err)
		}
		if _, exists := t.courts[market.ID]; exists {
			return ErrCourtAlreadyExists
		}
		if now > t.Now {
			t.Now = now
		}

		c := &Court{Market: market, Status: StatusOpen}
		t.selectJurors(c)
		c.RoundEnds = newRoundEnds(t.nextRequestBlock(), t.params())
		t.insertCourt(c)
		t.addAutoResolve(c.RoundEnds.Appeal, market.ID)
		resolveAt = c.RoundEnds.Appeal

		log.Court.Info().Uint64("market", uint64(market.ID)).Int("jurors", len(c.Draws)).
			Uint64("resolve_at", uint64(resolveAt)).Msg("court opened")
		t.emit(events.CourtOpened, &market.ID, nil, 0, fmt.Sprintf("resolve_at=%d", resolveAt))
		return nil
	})
	return resolveAt, err
}

// OnResolution closes the court with the plurality winner and settles it.
// Calling it again on a closed court returns the same winner.
func (m *Module) OnResolution(id primitives.MarketID) (primitives.VoteItem, error) {
	var winner primitives.VoteItem
	err := m.update(func(t *txn) error {
		c, err := t.court(id)
		if err != nil {
			return err
		}
		switch c.Status {
		case StatusClosed:
			winner = *c.Winner
			return nil
		case StatusGlobalDispute:
			return ErrCourtNotOpen
		}
		if t.Now <= c.RoundEnds.Aggregation {
			return ErrCourtStillVoting
		}
		if t.hasFailed(c) {
			return ErrCourtFailed
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		result := tally(c)
		winner = result.Winner
		c.Status = StatusClosed
		c.Winner = &winner
		t.removeAutoResolve(c.RoundEnds.Appeal, id)

		log.Court.Info().Uint64("market", uint64(id)).Str("winner", winner.String()).
			Uint64("winner_weight", uint64(result.WinnerWeight)).Uint64("panel_weight", uint64(result.PanelWeight)).
			Msg("court closed")
		t.emit(events.CourtClosed, &id, nil, result.WinnerWeight, winner.String())
		return t.settle(c)
	})
	return winner, err
}

// GetAutoResolve returns the block at which an open court should be resolved.
func (m *Module) GetAutoResolve(id primitives.MarketID) (primitives.BlockNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.courts[id]
	if !ok {
		return 0, ErrCourtNotFound
	}
	if c.Status != StatusOpen {
		return 0, ErrCourtNotOpen
	}
	return c.RoundEnds.Appeal, nil
}

// HasFailed reports whether the court exhausted its appeals without a
// resolving majority, so the global dispute has to take over.
func (m *Module) HasFailed(id primitives.MarketID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.courts[id]
	if !ok {
		return false, ErrCourtNotFound
	}
	switch c.Status {
	case StatusClosed:
		return false, nil
	case StatusGlobalDispute:
		return true, nil
	}
	t := &txn{state: m.state, m: m}
	return t.hasFailed(c), nil
}

func (t *txn) hasFailed(c *Court) bool {
	if uint32(len(c.Appeals)) < t.params().MaxAppeals {
		return false
	}
	if t.Now <= c.RoundEnds.Aggregation {
		return false
	}
	if len(c.Draws) < t.params().drawParams().RequiredJurors(len(c.Appeals)) {
		return true
	}
	result := tally(c)
	return result.WinnerWeight <= t.params().ResolutionThreshold.Of(result.PanelWeight)
}

// OnGlobalDispute hands a failed court over to the global dispute and returns
// the candidate items with the support they carry from the court.
func (m *Module) OnGlobalDispute(id primitives.MarketID) ([]GlobalDisputeItem, error) {
	var items []GlobalDisputeItem
	err := m.update(func(t *txn) error {
		c, err := t.openCourt(id)
		if err != nil {
			return err
		}
		if !t.hasFailed(c) {
			return ErrCourtNotFailed
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		items = globalDisputeItems(c, t.m.RewardPot(id))
		c.Status = StatusGlobalDispute
		t.removeAutoResolve(c.RoundEnds.Appeal, id)
		t.emit(events.GlobalDisputeStarted, &id, nil, 0, fmt.Sprintf("candidates=%d", len(items)))
		return nil
	})
	return items, err
}

func globalDisputeItems(c *Court, pot primitives.AccountID) []GlobalDisputeItem {
	var items []GlobalDisputeItem
	add := func(item primitives.VoteItem, owner primitives.AccountID, amount primitives.Balance) {
		for i := range items {
			if items[i].Item == item {
				items[i].Amount += amount
				return
			}
		}
		items = append(items, GlobalDisputeItem{Item: item, Owner: owner, Amount: amount})
	}
	for _, a := range c.Appeals {
		add(a.AppealedItem, a.Backer, a.Bond)
	}
	result := tally(c)
	add(result.Winner, pot, result.WinnerWeight)
	add(c.Market.DefaultItem(), pot, 0)
	return items
}

// AcceptGlobalDisputeWinner closes a court with the externally decided winner.
// Stakes are reassigned by a separate ReassignCourtStakes call.
func (m *Module) AcceptGlobalDisputeWinner(id primitives.MarketID, winner primitives.VoteItem) error {
	return m.update(func(t *txn) error {
		c, err := t.court(id)
		if err != nil {
			return err
		}
		if c.Status != StatusGlobalDispute {
			return ErrNotInGlobalDispute
		}
		if err := c.Market.ValidateItem(winner); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidVoteItem, err)
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		c.Status = StatusClosed
		c.Winner = &winner
		t.emit(events.GlobalDisputeWinnerAccepted, &id, nil, 0, winner.String())
		return nil
	})
}

// Exchange returns the balance movements produced by settlement for the
// external currency system. Settlement already shrank or removed the locks of
// slashed accounts, so the host must apply these transfers in the same block
// as OnResolution or ReassignCourtStakes, before any other balance change of
// the accounts involved.
func (m *Module) Exchange(id primitives.MarketID) ([]primitives.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.courts[id]
	if !ok {
		return nil, ErrCourtNotFound
	}
	if !c.Settled {
		return nil, ErrCourtNotSettled
	}
	return append([]primitives.Transfer(nil), c.Transfers...), nil
}

// Clear removes up to limit draws of a settled court per call and deletes the
// court once none are left. A limit of zero or less clears everything.
func (m *Module) Clear(id primitives.MarketID, limit int) (bool, error) {
	var done bool
	err := m.update(func(t *txn) error {
		c, err := t.court(id)
		if err != nil {
			return err
		}
		if c.Status != StatusClosed {
			return ErrCourtNotClosed
		}
		if !c.Settled {
			return ErrCourtNotSettled
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = len(c.Draws) + len(c.PriorDraws)
		}
		n := min(limit, len(c.Draws))
		c.Draws = c.Draws[n:]
		limit -= n
		n = min(limit, len(c.PriorDraws))
		c.PriorDraws = c.PriorDraws[n:]

		if len(c.Draws) == 0 && len(c.PriorDraws) == 0 {
			t.deleteCourt(id)
			done = true
			t.emit(events.CourtCleared, &id, nil, 0, "")
		}
		return nil
	})
	return done, err
}
