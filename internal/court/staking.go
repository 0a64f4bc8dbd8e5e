package court

import (
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/events"
)

// JoinCourt locks amount and makes account a pool member. A participant that
// prepared to exit rejoins with its remaining stake plus amount. Joining a full
// pool evicts its lowest member when the new stake outweighs it.
func (m *Module) JoinCourt(account primitives.AccountID, amount primitives.Balance) error {
	return m.update(func(t *txn) error {
		stake, evicted, err := t.registry.Join(account, amount, t.Now)
		if err != nil {
			return err
		}
		if m.currency.FreeBalance(account) < stake {
			return ErrInsufficientBalance
		}
		if evicted != nil {
			t.emit(events.ExitPrepared, nil, evicted, 0, "evicted")
		}
		t.emit(events.JurorJoined, nil, &account, stake, "")
		return nil
	})
}

// IncreaseStake adds amount to the locked stake of an active member.
func (m *Module) IncreaseStake(account primitives.AccountID, amount primitives.Balance) error {
	return m.update(func(t *txn) error {
		stake, err := t.registry.IncreaseStake(account, amount)
		if err != nil {
			return err
		}
		if m.currency.FreeBalance(account) < stake {
			return ErrInsufficientBalance
		}
		t.emit(events.StakeIncreased, nil, &account, stake, "")
		return nil
	})
}

// Delegate lends amount of account's stake to the pool entry of to. Draws of
// to then carry the delegated stake into slashing and rewards.
func (m *Module) Delegate(account, to primitives.AccountID, amount primitives.Balance) error {
	return m.update(func(t *txn) error {
		if err := t.registry.Delegate(account, to, amount); err != nil {
			return err
		}
		t.emit(events.JurorDelegated, nil, &account, amount, to.String())
		return nil
	})
}

func (m *Module) Undelegate(account primitives.AccountID) error {
	return m.update(func(t *txn) error {
		if err := t.registry.Undelegate(account); err != nil {
			return err
		}
		t.emit(events.JurorUndelegated, nil, &account, 0, "")
		return nil
	})
}

// PrepareExitCourt removes account from the pool and starts the cool-down.
func (m *Module) PrepareExitCourt(account primitives.AccountID) error {
	return m.update(func(t *txn) error {
		if err := t.registry.PrepareExit(account, t.Now); err != nil {
			return err
		}
		t.emit(events.ExitPrepared, nil, &account, 0, "")
		return nil
	})
}

// ExitCourt unlocks the stake of a participant whose cool-down elapsed and
// who is no longer referenced by any unsettled draw.
func (m *Module) ExitCourt(account primitives.AccountID) error {
	return m.update(func(t *txn) error {
		stake, err := t.registry.Exit(account, t.Now)
		if err != nil {
			return err
		}
		t.emit(events.JurorExited, nil, &account, stake, "")
		return nil
	})
}
