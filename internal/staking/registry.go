package staking

import (
	"sort"

	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/safemath"
	"github.com/eigerco/tribunal/pkg/log"
)

type Params struct {
	MinJurorStake        primitives.Balance
	MaxCourtParticipants uint32
	// ExitCooldown is the number of blocks between PrepareExit and Exit.
	ExitCooldown primitives.BlockNumber
}

// Participant is the stake bookkeeping of one account.
type Participant struct {
	Account primitives.AccountID
	Stake   primitives.Balance
	// DelegatedTo is set when part of Stake backs another juror's draws.
	DelegatedTo     *primitives.AccountID
	DelegatedAmount primitives.Balance
	// ReceivedDelegations is the stake other participants delegated to this one.
	ReceivedDelegations primitives.Balance
	// ActiveCourts counts unsettled draws that reference the account,
	// either as juror or as delegator.
	ActiveCourts    uint32
	ExitRequestedAt *primitives.BlockNumber
}

// IsActive reports pool membership.
func (p *Participant) IsActive() bool {
	return p.ExitRequestedAt == nil
}

// Weight is the stake the participant represents in the pool.
func (p *Participant) Weight() primitives.Balance {
	if !p.IsActive() {
		return 0
	}
	return p.Stake - p.DelegatedAmount + p.ReceivedDelegations
}

func (p *Participant) clone() *Participant {
	c := *p
	if p.DelegatedTo != nil {
		to := *p.DelegatedTo
		c.DelegatedTo = &to
	}
	if p.ExitRequestedAt != nil {
		at := *p.ExitRequestedAt
		c.ExitRequestedAt = &at
	}
	return &c
}

// Payout is an amount owed to an account outside of its stake.
type Payout struct {
	Account primitives.AccountID
	Amount  primitives.Balance
}

// Registry owns participants and the court pool. It is not safe for
// concurrent use; callers serialize mutations.
type Registry struct {
	params       Params
	participants map[primitives.AccountID]*Participant
	// members holds active participants sorted by account id.
	members []primitives.AccountID
	pool    Pool
	dirty   map[primitives.AccountID]struct{}
}

func NewRegistry(params Params) *Registry {
	return &Registry{
		params:       params,
		participants: make(map[primitives.AccountID]*Participant),
		dirty:        make(map[primitives.AccountID]struct{}),
	}
}

// Restore rebuilds a registry from persisted participants.
func Restore(params Params, participants []Participant) *Registry {
	r := NewRegistry(params)
	for i := range participants {
		p := participants[i].clone()
		r.participants[p.Account] = p
		if p.IsActive() {
			r.members = append(r.members, p.Account)
		}
	}
	sort.Slice(r.members, func(i, j int) bool {
		return r.members[i].Less(r.members[j])
	})
	r.rebuildPool()
	return r
}

func (r *Registry) Params() Params {
	return r.params
}

// Clone returns a deep copy that can be mutated without touching r.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		params:       r.params,
		participants: make(map[primitives.AccountID]*Participant, len(r.participants)),
		members:      append([]primitives.AccountID(nil), r.members...),
		pool:         r.pool,
		dirty:        make(map[primitives.AccountID]struct{}, len(r.dirty)),
	}
	for k, v := range r.participants {
		c.participants[k] = v.clone()
	}
	for k := range r.dirty {
		c.dirty[k] = struct{}{}
	}
	return c
}

func (r *Registry) Pool() Pool {
	return r.pool
}

// Participant returns a copy of the participant record.
func (r *Registry) Participant(account primitives.AccountID) (Participant, bool) {
	p, ok := r.participants[account]
	if !ok {
		return Participant{}, false
	}
	return *p.clone(), true
}

// Participants returns copies of all participants sorted by account id.
func (r *Registry) Participants() []Participant {
	var out []Participant
	for _, p := range r.participants {
		out = append(out, *p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Less(out[j].Account)
	})
	return out
}

// TakeDirty returns participants changed since the previous call, split into
// updated records and removed accounts.
func (r *Registry) TakeDirty() (updated []Participant, removed []primitives.AccountID) {
	for account := range r.dirty {
		if p, ok := r.participants[account]; ok {
			updated = append(updated, *p.clone())
		} else {
			removed = append(removed, account)
		}
	}
	sort.Slice(updated, func(i, j int) bool {
		return updated[i].Account.Less(updated[j].Account)
	})
	sort.Slice(removed, func(i, j int) bool {
		return removed[i].Less(removed[j])
	})
	r.dirty = make(map[primitives.AccountID]struct{})
	return updated, removed
}

// Join adds amount to a new or exiting participant and makes it a pool member.
// A full pool admits the joiner only when its stake exceeds the lowest member
// weight; that member is then removed from the pool as if it prepared to exit
// at now, and returned as evicted.
func (r *Registry) Join(account primitives.AccountID, amount primitives.Balance, now primitives.BlockNumber) (primitives.Balance, *primitives.AccountID, error) {
	if amount < r.params.MinJurorStake {
		return 0, nil, ErrInsufficientStake
	}
	p, exists := r.participants[account]
	if exists && p.IsActive() {
		return 0, nil, ErrAlreadyPoolMember
	}
	var current primitives.Balance
	if exists {
		current = p.Stake
	}
	stake, ok := safemath.Add64(uint64(current), uint64(amount))
	if !ok {
		return 0, nil, ErrStakeOverflow
	}

	var evicted *primitives.AccountID
	if uint32(len(r.members)) >= r.params.MaxCourtParticipants {
		lowest := r.lowestMember()
		if lowest == nil || lowest.Weight() >= primitives.Balance(stake) {
			return 0, nil, ErrMaxParticipantsReached
		}
		log.Staking.Info().Str("account", lowest.Account.Short()).Str("by", account.Short()).
			Uint64("weight", uint64(lowest.Weight())).Msg("evicted from full pool")
		out := lowest.Account
		evicted = &out
		r.deactivate(lowest, now)
	}

	if !exists {
		p = &Participant{Account: account}
		r.participants[account] = p
	}
	p.Stake = primitives.Balance(stake)
	p.ExitRequestedAt = nil
	r.addMember(account)
	r.touch(account)
	r.rebuildPool()

	log.Staking.Debug().Str("account", account.Short()).Uint64("stake", uint64(p.Stake)).Msg("joined court")
	return p.Stake, evicted, nil
}

// lowestMember is the active member with the smallest weight, the lowest
// account id on ties.
func (r *Registry) lowestMember() *Participant {
	var lowest *Participant
	for _, account := range r.members {
		p := r.participants[account]
		if lowest == nil || p.Weight() < lowest.Weight() {
			lowest = p
		}
	}
	return lowest
}

// IncreaseStake adds amount to an active member's stake.
func (r *Registry) IncreaseStake(account primitives.AccountID, amount primitives.Balance) (primitives.Balance, error) {
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	p, err := r.activeMember(account)
	if err != nil {
		return 0, err
	}
	stake, ok := safemath.Add64(uint64(p.Stake), uint64(amount))
	if !ok {
		return 0, ErrStakeOverflow
	}
	p.Stake = primitives.Balance(stake)
	r.touch(account)
	r.rebuildPool()
	return p.Stake, nil
}

// Delegate moves amount of account's weight onto the pool entry of to.
func (r *Registry) Delegate(account, to primitives.AccountID, amount primitives.Balance) error {
	p, err := r.activeMember(account)
	if err != nil {
		return err
	}
	if account == to {
		return ErrSelfDelegation
	}
	target, ok := r.participants[to]
	if !ok || !target.IsActive() {
		return ErrDelegateNotActive
	}
	if p.DelegatedTo != nil {
		return ErrAlreadyDelegating
	}
	if target.DelegatedTo != nil || p.ReceivedDelegations > 0 {
		return ErrDelegationChain
	}
	if amount == 0 || amount > p.Stake {
		return ErrInvalidDelegationAmount
	}

	p.DelegatedTo = &to
	p.DelegatedAmount = amount
	target.ReceivedDelegations += amount
	r.touch(account)
	r.touch(to)
	r.rebuildPool()

	log.Staking.Debug().Str("account", account.Short()).Str("to", to.Short()).Uint64("amount", uint64(amount)).Msg("delegated")
	return nil
}

// Undelegate returns the delegated weight to account's own entry.
func (r *Registry) Undelegate(account primitives.AccountID) error {
	p, err := r.activeMember(account)
	if err != nil {
		return err
	}
	if p.DelegatedTo == nil {
		return ErrNotDelegating
	}
	r.clearDelegation(p)
	r.rebuildPool()
	return nil
}

// PrepareExit removes account from the pool and starts the exit cool-down.
// Delegations from and to the account are reverted.
func (r *Registry) PrepareExit(account primitives.AccountID, now primitives.BlockNumber) error {
	p, err := r.activeMember(account)
	if err != nil {
		return err
	}
	r.deactivate(p, now)
	r.rebuildPool()
	log.Staking.Debug().Str("account", account.Short()).Uint64("at", uint64(now)).Msg("prepared exit")
	return nil
}

// Exit deletes a participant that prepared to exit and returns the stake to unlock.
func (r *Registry) Exit(account primitives.AccountID, now primitives.BlockNumber) (primitives.Balance, error) {
	p, ok := r.participants[account]
	if !ok {
		return 0, ErrParticipantNotFound
	}
	if p.ExitRequestedAt == nil {
		return 0, ErrNotPreparedToExit
	}
	if p.ActiveCourts > 0 {
		return 0, ErrStillDrawn
	}
	if now < *p.ExitRequestedAt+r.params.ExitCooldown {
		return 0, ErrCooldownNotElapsed
	}
	stake := p.Stake
	delete(r.participants, account)
	r.touch(account)
	return stake, nil
}

// Engage marks accounts as referenced by one more unsettled draw.
func (r *Registry) Engage(accounts ...primitives.AccountID) {
	for _, account := range accounts {
		if p, ok := r.participants[account]; ok {
			p.ActiveCourts++
			r.touch(account)
		}
	}
}

// Release drops one draw reference per account. Participants left without
// stake and duties are removed.
func (r *Registry) Release(accounts ...primitives.AccountID) {
	for _, account := range accounts {
		p, ok := r.participants[account]
		if !ok {
			continue
		}
		if p.ActiveCourts > 0 {
			p.ActiveCourts--
		}
		r.touch(account)
		r.maybeRemove(p)
	}
}

// Slash takes up to amount from account's stake and returns what was taken.
// When delegated is set the loss is charged against the delegated portion.
// A member whose stake falls below the minimum leaves the pool.
func (r *Registry) Slash(account primitives.AccountID, amount primitives.Balance, delegated bool, now primitives.BlockNumber) primitives.Balance {
	p, ok := r.participants[account]
	if !ok || amount == 0 {
		return 0
	}
	actual := min(amount, p.Stake)
	p.Stake -= actual

	cut := primitives.Balance(0)
	if delegated {
		cut = min(actual, p.DelegatedAmount)
	}
	if p.DelegatedAmount-cut > p.Stake {
		cut = p.DelegatedAmount - p.Stake
	}
	if cut > 0 {
		p.DelegatedAmount -= cut
		if target, ok := r.participants[*p.DelegatedTo]; ok {
			target.ReceivedDelegations -= min(cut, target.ReceivedDelegations)
			r.touch(target.Account)
		}
		if p.DelegatedAmount == 0 {
			p.DelegatedTo = nil
		}
	}
	r.touch(account)

	if p.IsActive() && p.Stake < r.params.MinJurorStake {
		r.deactivate(p, now)
		log.Staking.Info().Str("account", account.Short()).Uint64("stake", uint64(p.Stake)).Msg("removed from pool after slash")
	}
	r.maybeRemove(p)
	r.rebuildPool()
	return actual
}

// Inflation computes stake × rate for every active member.
func (r *Registry) Inflation(rate primitives.Perbill) []Payout {
	var payouts []Payout
	for _, account := range r.members {
		p := r.participants[account]
		if amount := rate.MulFloor(p.Stake); amount > 0 {
			payouts = append(payouts, Payout{Account: account, Amount: amount})
		}
	}
	return payouts
}

// Delegation is stake one participant lends to another's pool entry.
type Delegation struct {
	Delegator primitives.AccountID
	Amount    primitives.Balance
}

// Delegators lists the delegations received by account in account order.
func (r *Registry) Delegators(account primitives.AccountID) []Delegation {
	p, ok := r.participants[account]
	if !ok || p.ReceivedDelegations == 0 {
		return nil
	}
	var out []Delegation
	for _, member := range r.members {
		d := r.participants[member]
		if d.DelegatedTo != nil && *d.DelegatedTo == account {
			out = append(out, Delegation{Delegator: member, Amount: d.DelegatedAmount})
		}
	}
	return out
}

// ActiveCount is the number of pool members.
func (r *Registry) ActiveCount() int {
	return len(r.members)
}

func (r *Registry) activeMember(account primitives.AccountID) (*Participant, error) {
	p, ok := r.participants[account]
	if !ok || !p.IsActive() {
		return nil, ErrNotPoolMember
	}
	return p, nil
}

func (r *Registry) deactivate(p *Participant, now primitives.BlockNumber) {
	if p.DelegatedTo != nil {
		r.clearDelegation(p)
	}
	if p.ReceivedDelegations > 0 {
		for _, account := range r.members {
			d := r.participants[account]
			if d.DelegatedTo != nil && *d.DelegatedTo == p.Account {
				r.clearDelegation(d)
			}
		}
	}
	at := now
	p.ExitRequestedAt = &at
	r.removeMember(p.Account)
	r.touch(p.Account)
}

func (r *Registry) clearDelegation(p *Participant) {
	if target, ok := r.participants[*p.DelegatedTo]; ok {
		target.ReceivedDelegations -= min(p.DelegatedAmount, target.ReceivedDelegations)
		r.touch(target.Account)
	}
	p.DelegatedTo = nil
	p.DelegatedAmount = 0
	r.touch(p.Account)
}

func (r *Registry) maybeRemove(p *Participant) {
	if p.Stake == 0 && p.ActiveCourts == 0 && p.ReceivedDelegations == 0 {
		if p.IsActive() {
			r.removeMember(p.Account)
		}
		delete(r.participants, p.Account)
		r.touch(p.Account)
	}
}

func (r *Registry) addMember(account primitives.AccountID) {
	i := sort.Search(len(r.members), func(i int) bool {
		return !r.members[i].Less(account)
	})
	if i < len(r.members) && r.members[i] == account {
		return
	}
	r.members = append(r.members, primitives.AccountID{})
	copy(r.members[i+1:], r.members[i:])
	r.members[i] = account
}

func (r *Registry) removeMember(account primitives.AccountID) {
	i := sort.Search(len(r.members), func(i int) bool {
		return !r.members[i].Less(account)
	})
	if i < len(r.members) && r.members[i] == account {
		r.members = append(r.members[:i], r.members[i+1:]...)
	}
}

func (r *Registry) rebuildPool() {
	entries := make([]PoolEntry, 0, len(r.members))
	for _, account := range r.members {
		if w := r.participants[account].Weight(); w > 0 {
			entries = append(entries, PoolEntry{Account: account, Weight: w})
		}
	}
	r.pool = newPool(entries)
}

func (r *Registry) touch(account primitives.AccountID) {
	r.dirty[account] = struct{}{}
}
