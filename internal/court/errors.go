package court

import (
	"errors"

	"github.com/eigerco/tribunal/internal/staking"
)

// Stake errors are raised by the registry and surfaced unchanged.
var (
	ErrInsufficientStake      = staking.ErrInsufficientStake
	ErrAlreadyPoolMember      = staking.ErrAlreadyPoolMember
	ErrMaxParticipantsReached = staking.ErrMaxParticipantsReached
	ErrNotPoolMember          = staking.ErrNotPoolMember
	ErrDelegateNotActive      = staking.ErrDelegateNotActive
	ErrNotPreparedToExit      = staking.ErrNotPreparedToExit
	ErrStillDrawn             = staking.ErrStillDrawn
	ErrCooldownNotElapsed     = staking.ErrCooldownNotElapsed
)

var (
	ErrInsufficientBalance = errors.New("free balance does not cover the stake")

	ErrCourtNotFound      = errors.New("court not found")
	ErrCourtAlreadyExists = errors.New("court already exists for market")
	ErrCourtNotOpen       = errors.New("court is not open")
	ErrInvalidMarket      = errors.New("market type or report is invalid")

	ErrNotInVotingWindow      = errors.New("not in voting window")
	ErrNotInRevealWindow      = errors.New("not in reveal window")
	ErrNotInDenounceWindow    = errors.New("not in denounce window")
	ErrNotDrawnJuror          = errors.New("caller is not a drawn juror")
	ErrAlreadyVoted           = errors.New("juror already voted")
	ErrVoteAlreadyDenounced   = errors.New("vote already denounced")
	ErrVoteAlreadyRevealed    = errors.New("vote already revealed")
	ErrJurorDidNotVote        = errors.New("juror did not vote")
	ErrCommitmentHashMismatch = errors.New("commitment hash mismatch")
	ErrSelfDenounceDisallowed = errors.New("jurors cannot denounce themselves")
	ErrInvalidVoteItem        = errors.New("invalid vote item")

	ErrMaxAppealsReached  = errors.New("maximum number of appeals reached")
	ErrNotInAppealWindow  = errors.New("not in appeal window")
	ErrInsufficientBond   = errors.New("appeal bond cannot be reserved")
	ErrCourtFailed        = errors.New("court failed to resolve, global dispute required")
	ErrCourtStillVoting   = errors.New("court has not finished aggregating votes")
	ErrCourtNotClosed     = errors.New("court is not closed")
	ErrAlreadySettled     = errors.New("court stakes already reassigned")
	ErrCourtNotSettled    = errors.New("court stakes not yet reassigned")
	ErrNotInGlobalDispute = errors.New("court is not in global dispute")
	ErrCourtNotFailed     = errors.New("court has not failed, global dispute not allowed")

	ErrInvalidParams = errors.New("invalid court parameters")
)
