package crypto

import (
	"encoding/hex"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"golang.org/x/crypto/blake2b"

	"github.com/eigerco/tribunal/internal/primitives"
)

const (
	HashSize = 32
	SaltSize = 32
)

type (
	Hash [HashSize]byte
	Salt [SaltSize]byte
)

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func HashData(data []byte) Hash {
	hash := blake2b.Sum256(data)
	return hash
}

// HashConcat hashes the concatenation of parts without allocating a joined buffer.
func HashConcat(parts ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Commitment is blake2b-256(account ‖ encoded vote item ‖ salt).
func Commitment(account primitives.AccountID, item primitives.VoteItem, salt Salt) (Hash, error) {
	encoded, err := scale.Marshal(item)
	if err != nil {
		return Hash{}, err
	}
	return HashConcat(account[:], encoded, salt[:]), nil
}

// AccountFromSeed derives a deterministic account id, used for module-owned
// accounts and in tooling.
func AccountFromSeed(seed []byte) primitives.AccountID {
	return primitives.AccountID(HashData(seed))
}
