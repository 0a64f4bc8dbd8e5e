package court

import (
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/log"
)

// Currency is the balance system the court holds funds on. Court stakes are
// locked, appeal bonds are reserved. Value movements are returned as
// transfers instead of being executed here; see Module.Exchange for when the
// host has to apply them.
type Currency interface {
	FreeBalance(account primitives.AccountID) primitives.Balance
	SetLock(account primitives.AccountID, amount primitives.Balance) error
	RemoveLock(account primitives.AccountID) error
	CanReserve(account primitives.AccountID, amount primitives.Balance) bool
	Reserve(account primitives.AccountID, amount primitives.Balance) error
	Unreserve(account primitives.AccountID, amount primitives.Balance) error
}

// effect is a buffered currency call with its inverse, applied on commit.
type effect interface {
	apply(Currency) error
	revert(Currency) error
}

type reserveEffect struct {
	account primitives.AccountID
	amount  primitives.Balance
}

func (e reserveEffect) apply(c Currency) error  { return c.Reserve(e.account, e.amount) }
func (e reserveEffect) revert(c Currency) error { return c.Unreserve(e.account, e.amount) }

type unreserveEffect struct {
	account primitives.AccountID
	amount  primitives.Balance
}

func (e unreserveEffect) apply(c Currency) error  { return c.Unreserve(e.account, e.amount) }
func (e unreserveEffect) revert(c Currency) error { return c.Reserve(e.account, e.amount) }

// lockEffect moves the court lock of account from prev to amount. A zero
// amount removes the lock.
type lockEffect struct {
	account primitives.AccountID
	amount  primitives.Balance
	prev    primitives.Balance
}

func (e lockEffect) apply(c Currency) error {
	return setLock(c, e.account, e.amount)
}

func (e lockEffect) revert(c Currency) error {
	return setLock(c, e.account, e.prev)
}

func setLock(c Currency, account primitives.AccountID, amount primitives.Balance) error {
	if amount == 0 {
		return c.RemoveLock(account)
	}
	return c.SetLock(account, amount)
}

// applyEffects runs effects in order. On failure the applied prefix is
// reverted in reverse order and the original error returned.
func applyEffects(c Currency, effects []effect) error {
	for i, e := range effects {
		if err := e.apply(c); err != nil {
			revertEffects(c, effects[:i])
			return err
		}
	}
	return nil
}

func revertEffects(c Currency, effects []effect) {
	for i := len(effects) - 1; i >= 0; i-- {
		if err := effects[i].revert(c); err != nil {
			log.Court.Error().Err(err).Msg("failed to revert currency effect")
		}
	}
}
