package court

import (
	"fmt"
	"math"

	"github.com/eigerco/tribunal/internal/draw"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/safemath"
	"github.com/eigerco/tribunal/internal/staking"
)

// Params are the runtime constants of the court.
type Params struct {
	MinJurorStake        primitives.Balance     `toml:"min_juror_stake"`
	MaxCourtParticipants uint32                 `toml:"max_court_participants"`
	ExitCooldown         primitives.BlockNumber `toml:"exit_cooldown"`

	BaseJurors       uint32 `toml:"base_jurors"`
	JurorIncrement   uint32 `toml:"juror_increment"`
	MaxSelectedDraws uint32 `toml:"max_selected_draws"`

	MaxAppeals       uint32             `toml:"max_appeals"`
	AppealBond       primitives.Balance `toml:"appeal_bond"`
	AppealBondFactor primitives.Balance `toml:"appeal_bond_factor"`

	// RequestInterval aligns the start of voting for all courts.
	RequestInterval   primitives.BlockNumber `toml:"request_interval"`
	VotePeriod        primitives.BlockNumber `toml:"vote_period"`
	AggregationPeriod primitives.BlockNumber `toml:"aggregation_period"`
	AppealPeriod      primitives.BlockNumber `toml:"appeal_period"`

	// ResolutionThreshold is the share of panel weight the winner must exceed
	// for the last round to resolve on its own.
	ResolutionThreshold primitives.Percent `toml:"resolution_threshold"`

	InflationRate   primitives.Perbill     `toml:"inflation_rate"`
	InflationPeriod primitives.BlockNumber `toml:"inflation_period"`

	PalletID        string               `toml:"pallet_id"`
	TreasuryAccount primitives.AccountID `toml:"-"`
}

func DefaultParams() Params {
	return Params{
		MinJurorStake:        1_000,
		MaxCourtParticipants: 1_000,
		ExitCooldown:         100,
		BaseJurors:           5,
		JurorIncrement:       4,
		MaxSelectedDraws:     31,
		MaxAppeals:           4,
		AppealBond:           2_000,
		AppealBondFactor:     200,
		RequestInterval:      50,
		VotePeriod:           20,
		AggregationPeriod:    20,
		AppealPeriod:         20,
		ResolutionThreshold:  50,
		InflationRate:        2_000_000,
		InflationPeriod:      1_000,
		PalletID:             "zge/court",
		TreasuryAccount:      primitives.AccountID{0xff},
	}
}

func (p Params) Validate() error {
	switch {
	case p.MinJurorStake == 0:
		return fmt.Errorf("%w: min juror stake must be positive", ErrInvalidParams)
	case p.MaxCourtParticipants == 0:
		return fmt.Errorf("%w: max court participants must be positive", ErrInvalidParams)
	case p.BaseJurors == 0:
		return fmt.Errorf("%w: base jurors must be positive", ErrInvalidParams)
	case p.MaxSelectedDraws < p.BaseJurors:
		return fmt.Errorf("%w: max selected draws below base jurors", ErrInvalidParams)
	case p.RequestInterval == 0:
		return fmt.Errorf("%w: request interval must be positive", ErrInvalidParams)
	case p.VotePeriod == 0 || p.AggregationPeriod == 0 || p.AppealPeriod == 0:
		return fmt.Errorf("%w: round periods must be positive", ErrInvalidParams)
	case p.ResolutionThreshold > 100:
		return fmt.Errorf("%w: resolution threshold above 100 percent", ErrInvalidParams)
	case p.InflationRate > primitives.PerbillOne:
		return fmt.Errorf("%w: inflation rate above one", ErrInvalidParams)
	}
	return nil
}

func (p Params) stakingParams() staking.Params {
	return staking.Params{
		MinJurorStake:        p.MinJurorStake,
		MaxCourtParticipants: p.MaxCourtParticipants,
		ExitCooldown:         p.ExitCooldown,
	}
}

func (p Params) drawParams() draw.Params {
	return draw.Params{
		BaseJurors:       p.BaseJurors,
		JurorIncrement:   p.JurorIncrement,
		MaxSelectedDraws: p.MaxSelectedDraws,
	}
}

// AppealBondFor returns the bond of the appeal with the given 1-based number.
func (p Params) AppealBondFor(appealNumber int) primitives.Balance {
	extra, ok := safemath.Mul64(uint64(p.AppealBondFactor), uint64(appealNumber))
	if !ok {
		return math.MaxUint64
	}
	return primitives.Balance(safemath.SaturatingAdd64(uint64(p.AppealBond), extra))
}
