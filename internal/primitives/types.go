package primitives

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/bits"
)

const AccountIDSize = 32

type (
	Balance     uint64
	BlockNumber uint64
	MarketID    uint64
)

// AccountID identifies a juror, backer or any other account.
type AccountID [AccountIDSize]byte

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns the first four bytes in hex, used in log lines.
func (a AccountID) Short() string {
	return hex.EncodeToString(a[:4])
}

func (a AccountID) Less(other AccountID) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

var ErrInvalidAccountID = errors.New("invalid account id")

// ParseAccountID decodes a 0x prefixed or bare hex string of 32 bytes.
func ParseAccountID(s string) (AccountID, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != AccountIDSize {
		return AccountID{}, ErrInvalidAccountID
	}
	var a AccountID
	copy(a[:], raw)
	return a, nil
}

// Perbill is a ratio in parts per billion.
type Perbill uint32

const PerbillOne Perbill = 1_000_000_000

// MulFloor returns floor(b * p / 10^9). Ratios above one are clamped to one.
func (p Perbill) MulFloor(b Balance) Balance {
	if p > PerbillOne {
		p = PerbillOne
	}
	hi, lo := bits.Mul64(uint64(b), uint64(p))
	q, _ := bits.Div64(hi, lo, uint64(PerbillOne))
	return Balance(q)
}

// Percent is a ratio in hundredths, 0..100.
type Percent uint8

// Of returns floor(b * p / 100).
func (p Percent) Of(b Balance) Balance {
	if p > 100 {
		p = 100
	}
	hi, lo := bits.Mul64(uint64(b), uint64(p))
	q, _ := bits.Div64(hi, lo, 100)
	return Balance(q)
}
