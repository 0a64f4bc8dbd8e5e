// Package ledger is an in-memory balance system. It holds court locks and
// appeal reserves and executes the transfers the court hands out.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/safemath"
	"github.com/eigerco/tribunal/pkg/log"
)

var (
	ErrInsufficientBalance  = errors.New("insufficient usable balance")
	ErrInsufficientReserved = errors.New("insufficient reserved balance")
	ErrLockExceedsBalance   = errors.New("lock exceeds free balance")
	ErrBalanceOverflow      = errors.New("balance overflow")
)

// Account is the balance record of one account. Locked funds stay in Free
// but cannot be reserved or transferred.
type Account struct {
	Free     primitives.Balance
	Reserved primitives.Balance
	Locked   primitives.Balance
}

// Usable is the part of Free that is neither locked nor reserved.
func (a Account) Usable() primitives.Balance {
	return primitives.Balance(safemath.SaturatingSub64(uint64(a.Free), uint64(a.Locked)))
}

type Ledger struct {
	mu       sync.Mutex
	accounts map[primitives.AccountID]Account
	issuance primitives.Balance
}

func New() *Ledger {
	return &Ledger{accounts: make(map[primitives.AccountID]Account)}
}

// Deposit mints amount into the free balance of account.
func (l *Ledger) Deposit(account primitives.AccountID, amount primitives.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mint(account, amount)
}

func (l *Ledger) mint(account primitives.AccountID, amount primitives.Balance) error {
	a := l.accounts[account]
	free, ok := safemath.Add64(uint64(a.Free), uint64(amount))
	if !ok {
		return ErrBalanceOverflow
	}
	issuance, ok := safemath.Add64(uint64(l.issuance), uint64(amount))
	if !ok {
		return ErrBalanceOverflow
	}
	a.Free = primitives.Balance(free)
	l.accounts[account] = a
	l.issuance = primitives.Balance(issuance)
	return nil
}

func (l *Ledger) Account(account primitives.AccountID) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account]
}

// TotalIssuance is the sum of every free and reserved balance.
func (l *Ledger) TotalIssuance() primitives.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issuance
}

func (l *Ledger) FreeBalance(account primitives.AccountID) primitives.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account].Free
}

func (l *Ledger) SetLock(account primitives.AccountID, amount primitives.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.accounts[account]
	if amount > a.Free {
		return fmt.Errorf("%w: lock %d, free %d", ErrLockExceedsBalance, amount, a.Free)
	}
	a.Locked = amount
	l.accounts[account] = a
	return nil
}

func (l *Ledger) RemoveLock(account primitives.AccountID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[account]
	if !ok {
		return nil
	}
	a.Locked = 0
	l.accounts[account] = a
	return nil
}

func (l *Ledger) CanReserve(account primitives.AccountID, amount primitives.Balance) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account].Usable() >= amount
}

func (l *Ledger) Reserve(account primitives.AccountID, amount primitives.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.accounts[account]
	if a.Usable() < amount {
		return ErrInsufficientBalance
	}
	a.Free -= amount
	a.Reserved += amount
	l.accounts[account] = a
	return nil
}

func (l *Ledger) Unreserve(account primitives.AccountID, amount primitives.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.accounts[account]
	if a.Reserved < amount {
		return ErrInsufficientReserved
	}
	a.Reserved -= amount
	a.Free += amount
	l.accounts[account] = a
	return nil
}

// Apply executes transfers in order. Either all of them succeed or the
// ledger is left unchanged.
func (l *Ledger) Apply(transfers []primitives.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := make(map[primitives.AccountID]Account, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	saved, savedIssuance := l.accounts, l.issuance
	l.accounts = accounts

	for i, tr := range transfers {
		if err := l.apply(tr); err != nil {
			l.accounts, l.issuance = saved, savedIssuance
			return fmt.Errorf("transfer %d (%s of %d): %w", i, tr.Kind, tr.Amount, err)
		}
	}
	log.Root.Debug().Int("transfers", len(transfers)).Msg("ledger transfers applied")
	return nil
}

func (l *Ledger) apply(tr primitives.Transfer) error {
	if tr.Kind == primitives.TransferInflation {
		return l.mint(tr.To, tr.Amount)
	}
	from := l.accounts[tr.From]
	if from.Usable() < tr.Amount {
		return ErrInsufficientBalance
	}
	from.Free -= tr.Amount
	l.accounts[tr.From] = from

	to := l.accounts[tr.To]
	free, ok := safemath.Add64(uint64(to.Free), uint64(tr.Amount))
	if !ok {
		return ErrBalanceOverflow
	}
	to.Free = primitives.Balance(free)
	l.accounts[tr.To] = to
	return nil
}
