package court

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/staking"
)

type Status uint8

const (
	StatusOpen Status = iota
	StatusClosed
	StatusGlobalDispute
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusGlobalDispute:
		return "global_dispute"
	}
	return "unknown"
}

// Phase is the sub-state of a court derived from its round ends and the current block.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseVoting
	PhaseAggregation
	PhaseAppealable
	// PhaseExpired means the appeal window passed and the court awaits resolution.
	PhaseExpired
	PhaseClosed
	PhaseGlobalDispute
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseVoting:
		return "voting"
	case PhaseAggregation:
		return "aggregation"
	case PhaseAppealable:
		return "appealable"
	case PhaseExpired:
		return "expired"
	case PhaseClosed:
		return "closed"
	case PhaseGlobalDispute:
		return "global_dispute"
	}
	return "unknown"
}

// RoundEnds are the last blocks of each period of the current cycle.
type RoundEnds struct {
	PreVote     primitives.BlockNumber
	Vote        primitives.BlockNumber
	Aggregation primitives.BlockNumber
	Appeal      primitives.BlockNumber
}

func newRoundEnds(requestBlock primitives.BlockNumber, params Params) RoundEnds {
	r := RoundEnds{PreVote: requestBlock}
	r.Vote = r.PreVote + params.VotePeriod
	r.Aggregation = r.Vote + params.AggregationPeriod
	r.Appeal = r.Aggregation + params.AppealPeriod
	return r
}

// Drawn is the vote state of a juror that has not committed.
type Drawn struct{}

// Secret holds the commitment of a juror that voted.
type Secret struct {
	Commitment crypto.Hash
}

// Revealed holds an opened commitment.
type Revealed struct {
	Commitment crypto.Hash
	Item       primitives.VoteItem
	Salt       crypto.Salt
}

// Denounced holds a commitment opened by someone other than the juror.
type Denounced struct {
	Commitment crypto.Hash
	Item       primitives.VoteItem
	Salt       crypto.Salt
}

// Vote is an enum over Drawn, Secret, Revealed and Denounced.
type Vote struct {
	Inner any
}

func (v *Vote) SetValue(value any) error {
	switch val := value.(type) {
	case Drawn, Secret, Revealed, Denounced:
		v.Inner = val
	default:
		return fmt.Errorf("%w: %T", primitives.ErrUnsupportedVariant, value)
	}
	return nil
}

// IndexValue treats a zero Vote as Drawn.
func (v Vote) IndexValue() (uint, any, error) {
	switch v.Inner.(type) {
	case nil, Drawn:
		return 0, Drawn{}, nil
	case Secret:
		return 1, v.Inner, nil
	case Revealed:
		return 2, v.Inner, nil
	case Denounced:
		return 3, v.Inner, nil
	}
	return 0, nil, primitives.ErrUnsupportedVariant
}

func (v Vote) Value() (any, error) {
	_, value, err := v.IndexValue()
	return value, err
}

func (v Vote) ValueAt(index uint) (any, error) {
	switch index {
	case 0:
		return Drawn{}, nil
	case 1:
		return Secret{}, nil
	case 2:
		return Revealed{}, nil
	case 3:
		return Denounced{}, nil
	}
	return nil, scale.ErrUnknownVaryingDataTypeValue
}

func (v Vote) String() string {
	switch v.Inner.(type) {
	case nil, Drawn:
		return "drawn"
	case Secret:
		return "secret"
	case Revealed:
		return "revealed"
	case Denounced:
		return "denounced"
	}
	return "unknown"
}

// Draw is a juror's assignment and vote record for one cycle.
type Draw struct {
	Juror primitives.AccountID
	// Weight is the pool weight captured when drawn.
	Weight primitives.Balance
	// Own and Delegations split Slashable between the juror and its delegators.
	Own         primitives.Balance
	Delegations []staking.Delegation
	Vote        Vote
	Slashable   primitives.Balance
}

// accounts returns the juror followed by its delegators.
func (d *Draw) accounts() []primitives.AccountID {
	out := make([]primitives.AccountID, 0, 1+len(d.Delegations))
	out = append(out, d.Juror)
	for _, del := range d.Delegations {
		out = append(out, del.Delegator)
	}
	return out
}

type AppealInfo struct {
	Backer       primitives.AccountID
	Bond         primitives.Balance
	AppealedItem primitives.VoteItem
	// Cycle is the cycle whose winner was appealed.
	Cycle uint32
}

// Court is the per-market dispute record.
type Court struct {
	Market     primitives.Market
	RoundEnds  RoundEnds
	Status     Status
	Winner     *primitives.VoteItem
	Appeals    []AppealInfo
	Cycle      uint32
	Draws      []Draw
	PriorDraws []Draw
	Settled    bool
	Transfers  []primitives.Transfer
}

func (c *Court) ID() primitives.MarketID {
	return c.Market.ID
}

func (c *Court) Phase(now primitives.BlockNumber) Phase {
	switch c.Status {
	case StatusClosed:
		return PhaseClosed
	case StatusGlobalDispute:
		return PhaseGlobalDispute
	}
	switch {
	case now < c.RoundEnds.PreVote:
		return PhasePending
	case now <= c.RoundEnds.Vote:
		return PhaseVoting
	case now <= c.RoundEnds.Aggregation:
		return PhaseAggregation
	case now <= c.RoundEnds.Appeal:
		return PhaseAppealable
	}
	return PhaseExpired
}

func (c *Court) drawIndex(juror primitives.AccountID) (int, bool) {
	for i := range c.Draws {
		if c.Draws[i].Juror == juror {
			return i, true
		}
	}
	return 0, false
}

func (c *Court) clone() *Court {
	out := *c
	if c.Winner != nil {
		w := *c.Winner
		out.Winner = &w
	}
	out.Appeals = append([]AppealInfo(nil), c.Appeals...)
	out.Draws = cloneDraws(c.Draws)
	out.PriorDraws = cloneDraws(c.PriorDraws)
	out.Transfers = append([]primitives.Transfer(nil), c.Transfers...)
	return &out
}

func cloneDraws(draws []Draw) []Draw {
	if draws == nil {
		return nil
	}
	out := make([]Draw, len(draws))
	for i, d := range draws {
		out[i] = d
		out[i].Delegations = append([]staking.Delegation(nil), d.Delegations...)
	}
	return out
}

// GlobalDisputeItem is a candidate handed to the global dispute together with
// the initial support it brings from the court.
type GlobalDisputeItem struct {
	Item   primitives.VoteItem
	Owner  primitives.AccountID
	Amount primitives.Balance
}
