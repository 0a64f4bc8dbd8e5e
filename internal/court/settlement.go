package court

import (
	"fmt"

	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/safemath"
	"github.com/eigerco/tribunal/pkg/events"
	"github.com/eigerco/tribunal/pkg/log"
)

// ReassignCourtStakes settles a closed court that was not settled on
// resolution, which is the case after a global dispute decided the winner.
func (m *Module) ReassignCourtStakes(id primitives.MarketID) error {
	return m.update(func(t *txn) error {
		c, err := t.court(id)
		if err != nil {
			return err
		}
		if c.Status != StatusClosed {
			return ErrCourtNotClosed
		}
		if c.Settled {
			return ErrAlreadySettled
		}
		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		return t.settle(c)
	})
}

// settle slashes every draw that did not reveal the winner and pays the
// slashed stake to the coherent jurors in proportion to their slashable
// amount. Unjustified appeal bonds are forfeited and split among the
// justified backers by bond, or join the juror pool when no appeal was
// justified. Justified bonds are returned. Rounding dust stays in the reward
// pot; a pool nobody can claim goes to the treasury.
func (t *txn) settle(c *Court) error {
	if c.Winner == nil {
		return ErrCourtNotClosed
	}
	var (
		winner    = *c.Winner
		pot       = t.m.RewardPot(c.ID())
		transfers []primitives.Transfer
		slashed   primitives.Balance
		forfeited primitives.Balance
		stakes    primitives.Balance
		bonds     primitives.Balance
		coherent  []int
		justified []int
	)
	move := func(kind primitives.TransferKind, from, to primitives.AccountID, amount primitives.Balance) {
		if amount > 0 {
			transfers = append(transfers, primitives.Transfer{Kind: kind, From: from, To: to, Amount: amount})
		}
	}
	add := func(dst *primitives.Balance, v primitives.Balance) error {
		sum, ok := safemath.Add64(uint64(*dst), uint64(v))
		if !ok {
			return fmt.Errorf("settle market %d: %w", c.ID(), safemath.ErrOverflow)
		}
		*dst = primitives.Balance(sum)
		return nil
	}
	share := func(pool, weight, total primitives.Balance) (primitives.Balance, error) {
		amount, err := safemath.MulDiv64(uint64(pool), uint64(weight), uint64(total))
		if err != nil {
			return 0, fmt.Errorf("settle market %d: %w", c.ID(), err)
		}
		return primitives.Balance(amount), nil
	}

	for i := range c.Draws {
		d := &c.Draws[i]
		if v, ok := d.Vote.Inner.(Revealed); ok && v.Item == winner {
			coherent = append(coherent, i)
			if err := add(&stakes, d.Slashable); err != nil {
				return err
			}
			continue
		}
		taken := t.registry.Slash(d.Juror, d.Own, false, t.Now)
		move(primitives.TransferSlash, d.Juror, pot, taken)
		if err := add(&slashed, taken); err != nil {
			return err
		}
		for _, del := range d.Delegations {
			taken := t.registry.Slash(del.Delegator, del.Amount, true, t.Now)
			move(primitives.TransferSlash, del.Delegator, pot, taken)
			if err := add(&slashed, taken); err != nil {
				return err
			}
		}
	}

	for i, a := range c.Appeals {
		t.unreserve(a.Backer, a.Bond)
		if a.AppealedItem == winner {
			move(primitives.TransferBondForfeit, a.Backer, pot, a.Bond)
			if err := add(&forfeited, a.Bond); err != nil {
				return err
			}
			continue
		}
		justified = append(justified, i)
		if err := add(&bonds, a.Bond); err != nil {
			return err
		}
	}

	jurorPool := slashed
	if len(justified) == 0 {
		if err := add(&jurorPool, forfeited); err != nil {
			return err
		}
	}

	var paid, unclaimed primitives.Balance
	if stakes == 0 {
		unclaimed = jurorPool
	} else if jurorPool > 0 {
		for _, i := range coherent {
			d := &c.Draws[i]
			amount, err := share(jurorPool, d.Slashable, stakes)
			if err != nil {
				return err
			}
			paid += amount
			// delegators get their pro rata part, the juror keeps the rounding rest
			own := amount
			for _, del := range d.Delegations {
				part, err := share(amount, del.Amount, d.Slashable)
				if err != nil {
					return err
				}
				own -= part
				move(primitives.TransferReward, pot, del.Delegator, part)
			}
			move(primitives.TransferReward, pot, d.Juror, own)
		}
	}
	if len(justified) > 0 && forfeited > 0 {
		for _, i := range justified {
			a := c.Appeals[i]
			amount, err := share(forfeited, a.Bond, bonds)
			if err != nil {
				return err
			}
			paid += amount
			move(primitives.TransferReward, pot, a.Backer, amount)
		}
	}
	move(primitives.TransferTreasury, pot, t.params().TreasuryAccount, unclaimed)

	t.releaseDraws(c.Draws)
	c.Settled = true
	c.Transfers = append(c.Transfers, transfers...)

	id := c.ID()
	log.Court.Info().Uint64("market", uint64(id)).Int("coherent", len(coherent)).Int("justified", len(justified)).
		Uint64("slashed", uint64(slashed)).Uint64("forfeited", uint64(forfeited)).Uint64("paid", uint64(paid)).
		Uint64("unclaimed", uint64(unclaimed)).Msg("court stakes reassigned")
	t.emit(events.StakesReassigned, &id, nil, slashed+forfeited, winner.String())
	return nil
}
