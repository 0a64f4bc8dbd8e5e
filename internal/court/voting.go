package court

import (
	"fmt"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/events"
)

// Vote stores the commitment of a drawn juror. Allowed in [PreVote, Vote].
// A commitment cannot be replaced.
func (m *Module) Vote(id primitives.MarketID, juror primitives.AccountID, commitment crypto.Hash) error {
	return m.update(func(t *txn) error {
		c, err := t.openCourt(id)
		if err != nil {
			return err
		}
		if t.Now < c.RoundEnds.PreVote || t.Now > c.RoundEnds.Vote {
			return ErrNotInVotingWindow
		}
		i, ok := c.drawIndex(juror)
		if !ok {
			return ErrNotDrawnJuror
		}
		switch c.Draws[i].Vote.Inner.(type) {
		case Secret, Revealed:
			return ErrAlreadyVoted
		case Denounced:
			return ErrVoteAlreadyDenounced
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		c.Draws[i].Vote = Vote{Inner: Secret{Commitment: commitment}}
		t.emit(events.JurorVoted, &id, &juror, 0, "")
		return nil
	})
}

// DenounceVote opens someone else's commitment before the reveal window
// closes. The target loses its whole slashable amount at settlement.
func (m *Module) DenounceVote(
	id primitives.MarketID,
	denouncer, target primitives.AccountID,
	item primitives.VoteItem,
	salt crypto.Salt,
) error {
	return m.update(func(t *txn) error {
		c, err := t.openCourt(id)
		if err != nil {
			return err
		}
		if t.Now < c.RoundEnds.PreVote || t.Now > c.RoundEnds.Aggregation {
			return ErrNotInDenounceWindow
		}
		if denouncer == target {
			return ErrSelfDenounceDisallowed
		}
		i, ok := c.drawIndex(target)
		if !ok {
			return ErrNotDrawnJuror
		}
		commitment, err := openCommitment(c, i, item, salt)
		if err != nil {
			return err
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		c.Draws[i].Vote = Vote{Inner: Denounced{Commitment: commitment, Item: item, Salt: salt}}
		t.emit(events.VoteDenounced, &id, &target, c.Draws[i].Slashable, denouncer.String())
		return nil
	})
}

// RevealVote opens the juror's own commitment. Allowed in [Vote+1, Aggregation].
func (m *Module) RevealVote(id primitives.MarketID, juror primitives.AccountID, item primitives.VoteItem, salt crypto.Salt) error {
	return m.update(func(t *txn) error {
		c, err := t.openCourt(id)
		if err != nil {
			return err
		}
		if t.Now <= c.RoundEnds.Vote || t.Now > c.RoundEnds.Aggregation {
			return ErrNotInRevealWindow
		}
		i, ok := c.drawIndex(juror)
		if !ok {
			return ErrNotDrawnJuror
		}
		commitment, err := openCommitment(c, i, item, salt)
		if err != nil {
			return err
		}

		c, err = t.mutCourt(id)
		if err != nil {
			return err
		}
		c.Draws[i].Vote = Vote{Inner: Revealed{Commitment: commitment, Item: item, Salt: salt}}
		t.emit(events.VoteRevealed, &id, &juror, 0, item.String())
		return nil
	})
}

// openCommitment checks that draw i holds a secret matching item and salt.
// Vote state is checked before the item, so a denounced draw always reports
// ErrVoteAlreadyDenounced.
func openCommitment(c *Court, i int, item primitives.VoteItem, salt crypto.Salt) (crypto.Hash, error) {
	d := &c.Draws[i]
	var secret crypto.Hash
	switch v := d.Vote.Inner.(type) {
	case Secret:
		secret = v.Commitment
	case Revealed:
		return crypto.Hash{}, ErrVoteAlreadyRevealed
	case Denounced:
		return crypto.Hash{}, ErrVoteAlreadyDenounced
	default:
		return crypto.Hash{}, ErrJurorDidNotVote
	}

	if err := c.Market.ValidateItem(item); err != nil {
		return crypto.Hash{}, fmt.Errorf("%w: %w", ErrInvalidVoteItem, err)
	}
	commitment, err := crypto.Commitment(d.Juror, item, salt)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("%w: %w", ErrInvalidVoteItem, err)
	}
	if commitment != secret {
		return crypto.Hash{}, ErrCommitmentHashMismatch
	}
	return commitment, nil
}

func (t *txn) openCourt(id primitives.MarketID) (*Court, error) {
	c, err := t.court(id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusOpen {
		return nil, ErrCourtNotOpen
	}
	return c, nil
}
