package events

import (
	"sync"
)

type Kind string

const (
	JurorJoined                 Kind = "juror.joined"
	StakeIncreased              Kind = "juror.stake_increased"
	JurorDelegated              Kind = "juror.delegated"
	JurorUndelegated            Kind = "juror.undelegated"
	ExitPrepared                Kind = "juror.exit_prepared"
	JurorExited                 Kind = "juror.exited"
	CourtOpened                 Kind = "court.opened"
	JurorsDrawn                 Kind = "court.jurors_drawn"
	JurorVoted                  Kind = "court.voted"
	VoteDenounced               Kind = "court.denounced"
	VoteRevealed                Kind = "court.revealed"
	MarketAppealed              Kind = "court.appealed"
	CourtClosed                 Kind = "court.closed"
	StakesReassigned            Kind = "court.stakes_reassigned"
	GlobalDisputeStarted        Kind = "court.global_dispute_started"
	GlobalDisputeWinnerAccepted Kind = "court.global_dispute_winner_accepted"
	CourtCleared                Kind = "court.cleared"
	InflationMinted             Kind = "pool.inflation_minted"
)

// Event is emitted once per successful court operation, after its state
// change has been committed.
type Event struct {
	Kind    Kind    `json:"kind"`
	Block   uint64  `json:"block"`
	Market  *uint64 `json:"market_id,omitempty"`
	Account string  `json:"account,omitempty"`
	Amount  uint64  `json:"amount,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Sink receives committed events.
type Sink interface {
	Publish(Event) error
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type multiSink []Sink

// Multi fans events out to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Publish(e Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
