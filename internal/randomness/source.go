package randomness

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/eigerco/tribunal/internal/crypto"
	"github.com/eigerco/tribunal/internal/primitives"
)

var ErrNoBlockHash = errors.New("no block hash recorded for seed window")

var seedContext = []byte("tribunal/draw-seed")

// BlockHashes derives per-block seeds from recently imported block hashes.
// The seed for block n mixes the hashes of blocks n-window..n-1, so it is
// fixed before block n executes.
type BlockHashes struct {
	mu     sync.RWMutex
	window primitives.BlockNumber
	hashes map[primitives.BlockNumber]crypto.Hash
}

func NewBlockHashes(window primitives.BlockNumber) *BlockHashes {
	if window == 0 {
		window = 1
	}
	return &BlockHashes{
		window: window,
		hashes: make(map[primitives.BlockNumber]crypto.Hash),
	}
}

// Record stores the hash of an imported block and prunes hashes that can no
// longer contribute to a seed.
func (b *BlockHashes) Record(block primitives.BlockNumber, hash crypto.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hashes[block] = hash
	if block > b.window {
		for n := range b.hashes {
			if n < block-b.window {
				delete(b.hashes, n)
			}
		}
	}
}

func (b *BlockHashes) Seed(block primitives.BlockNumber) (crypto.Hash, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	parts := [][]byte{seedContext}
	var start primitives.BlockNumber
	if block > b.window {
		start = block - b.window
	}
	for n := start; n < block; n++ {
		h, ok := b.hashes[n]
		if !ok {
			continue
		}
		var num [8]byte
		binary.LittleEndian.PutUint64(num[:], uint64(n))
		parts = append(parts, num[:], h[:])
	}
	if len(parts) == 1 {
		return crypto.Hash{}, ErrNoBlockHash
	}
	return crypto.HashConcat(parts...), nil
}

// Fixed returns the same seed for every block. Used for replays and tests.
type Fixed crypto.Hash

func (f Fixed) Seed(primitives.BlockNumber) (crypto.Hash, error) {
	return crypto.Hash(f), nil
}
