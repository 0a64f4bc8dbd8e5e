package staking

import "errors"

var (
	ErrInsufficientStake       = errors.New("stake below minimum juror stake")
	ErrAlreadyPoolMember       = errors.New("account is already a pool member, use increase stake")
	ErrMaxParticipantsReached  = errors.New("court pool is full")
	ErrNotPoolMember           = errors.New("account is not an active pool member")
	ErrParticipantNotFound     = errors.New("participant not found")
	ErrZeroAmount              = errors.New("amount must be positive")
	ErrSelfDelegation          = errors.New("cannot delegate to self")
	ErrDelegateNotActive       = errors.New("delegate is not an active pool member")
	ErrDelegationChain         = errors.New("delegations cannot be chained")
	ErrAlreadyDelegating       = errors.New("account already delegates, undelegate first")
	ErrNotDelegating           = errors.New("account does not delegate")
	ErrInvalidDelegationAmount = errors.New("delegation amount must be positive and at most the stake")
	ErrNotPreparedToExit       = errors.New("participant has not prepared to exit")
	ErrStillDrawn              = errors.New("participant is still drawn in an unsettled court")
	ErrCooldownNotElapsed      = errors.New("exit cool-down has not elapsed")
	ErrStakeOverflow           = errors.New("stake overflow")
)
