package staking

import (
	"sort"

	"github.com/eigerco/tribunal/internal/primitives"
)

// PoolEntry is one weighted slot of the court pool.
type PoolEntry struct {
	Account primitives.AccountID
	Weight  primitives.Balance
}

// Pool is the weighted view of active participants, sorted by account id.
// ends[i] is the cumulative weight of entries[0..i], so entry i owns the
// half-open range [ends[i-1], ends[i]).
type Pool struct {
	entries []PoolEntry
	ends    []primitives.Balance
}

func newPool(entries []PoolEntry) Pool {
	p := Pool{entries: entries, ends: make([]primitives.Balance, len(entries))}
	var total primitives.Balance
	for i, e := range entries {
		total += e.Weight
		p.ends[i] = total
	}
	return p
}

func (p Pool) Len() int {
	return len(p.entries)
}

func (p Pool) Total() primitives.Balance {
	if len(p.ends) == 0 {
		return 0
	}
	return p.ends[len(p.ends)-1]
}

func (p Pool) Entry(i int) PoolEntry {
	return p.entries[i]
}

// Entries returns a copy of the entries in account order.
func (p Pool) Entries() []PoolEntry {
	out := make([]PoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Find returns the index of the entry whose cumulative range contains point.
func (p Pool) Find(point primitives.Balance) (int, bool) {
	if point >= p.Total() {
		return 0, false
	}
	i := sort.Search(len(p.ends), func(i int) bool {
		return p.ends[i] > point
	})
	return i, true
}

// Index returns the position of account in the pool.
func (p Pool) Index(account primitives.AccountID) (int, bool) {
	i := sort.Search(len(p.entries), func(i int) bool {
		return !p.entries[i].Account.Less(account)
	})
	if i < len(p.entries) && p.entries[i].Account == account {
		return i, true
	}
	return 0, false
}
