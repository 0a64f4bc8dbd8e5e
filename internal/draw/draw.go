package draw

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/blake2b"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/internal/staking"
	"github.com/eigerco/tribunal/pkg/log"
)

// MaxDrawAttempts bounds resampling per slot before falling back to a linear probe.
const MaxDrawAttempts = 16

// RandomSource supplies one seed per block.
type RandomSource interface {
	Seed(block primitives.BlockNumber) (crypto.Hash, error)
}

// Selected is one accepted draw and the pool weight it captured.
type Selected struct {
	Account primitives.AccountID
	Weight  primitives.Balance
}

// Params controls the panel size per appeal round.
type Params struct {
	BaseJurors       uint32
	JurorIncrement   uint32
	MaxSelectedDraws uint32
}

// RequiredJurors is the panel size for a court that has been appealed
// appeals times, before capping by pool size.
func (p Params) RequiredJurors(appeals int) int {
	n := uint64(p.BaseJurors) + uint64(p.JurorIncrement)*uint64(appeals)
	return int(min(n, uint64(p.MaxSelectedDraws)))
}

// Select samples up to n distinct pool entries weighted by their stake.
// The result is in selection order and depends only on the arguments.
func Select(seed crypto.Hash, nonce uint64, pool staking.Pool, n int) []Selected {
	n = min(n, pool.Len())
	total := pool.Total()
	if n <= 0 || total == 0 {
		return nil
	}

	taken := make(map[int]struct{}, n)
	selected := make([]Selected, 0, n)
	var sample uint32
	for len(selected) < n {
		index, ok := -1, false
		for attempt := 0; attempt < MaxDrawAttempts && !ok; attempt++ {
			index, _ = pool.Find(point(seed, nonce, sample, total))
			sample++
			_, collided := taken[index]
			ok = !collided
		}
		if !ok {
			index = probe(taken, index, pool.Len())
			log.Draw.Debug().Int("slot", len(selected)).Int("index", index).Msg("resample budget exhausted, probed next entry")
		}
		taken[index] = struct{}{}
		entry := pool.Entry(index)
		selected = append(selected, Selected{Account: entry.Account, Weight: entry.Weight})
	}
	return selected
}

// point maps blake2b(seed ‖ nonce ‖ sample) onto [0, total). The first 16
// bytes of the digest are read as a little-endian 128-bit integer.
func point(seed crypto.Hash, nonce uint64, sample uint32, total primitives.Balance) primitives.Balance {
	var buf [crypto.HashSize + 8 + 4]byte
	copy(buf[:], seed[:])
	binary.LittleEndian.PutUint64(buf[crypto.HashSize:], nonce)
	binary.LittleEndian.PutUint32(buf[crypto.HashSize+8:], sample)
	digest := blake2b.Sum256(buf[:])

	lo := binary.LittleEndian.Uint64(digest[0:8])
	hi := binary.LittleEndian.Uint64(digest[8:16])
	return primitives.Balance(bits.Rem64(hi, lo, uint64(total)))
}

// probe returns the first free index after from, wrapping around.
func probe(taken map[int]struct{}, from, size int) int {
	for step := 1; step <= size; step++ {
		i := (from + step) % size
		if _, ok := taken[i]; !ok {
			return i
		}
	}
	// unreachable while len(taken) < size
	return from
}
