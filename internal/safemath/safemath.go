package safemath

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrOverflow     = errors.New("number overflow")
	ErrDivideByZero = errors.New("division by zero")
)

func Add32(a, b uint32) (uint32, bool) {
	v, carry := bits.Add32(a, b, 0)
	return v, carry == 0
}

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

func Sub32(a, b uint32) (uint32, bool) {
	v, carry := bits.Sub32(a, b, 0)
	return v, carry == 0
}

func Sub64(a, b uint64) (uint64, bool) {
	v, carry := bits.Sub64(a, b, 0)
	return v, carry == 0
}

func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

func SaturatingAdd64(a, b uint64) uint64 {
	if v, ok := Add64(a, b); ok {
		return v
	}
	return math.MaxUint64
}

func SaturatingSub64(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// MulDiv64 returns floor(a * b / c) using a 128-bit intermediate product.
func MulDiv64(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}

// Sum64 adds all values, failing on overflow.
func Sum64(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var ok bool
		if total, ok = Add64(total, v); !ok {
			return 0, ErrOverflow
		}
	}
	return total, nil
}
