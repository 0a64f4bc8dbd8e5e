package primitives

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"
)

var (
	ErrCategoryOutOfRange = errors.New("category index out of range")
	ErrScalarOutOfRange   = errors.New("scalar value outside market range")
	ErrReportTypeMismatch = errors.New("report does not match market type")
	ErrInvalidMarketType  = errors.New("invalid market type")
)

// U128 is an unsigned 128-bit integer, encoded as 16 little-endian bytes.
type U128 struct {
	Lo uint64
	Hi uint64
}

func U128From64(v uint64) U128 {
	return U128{Lo: v}
}

func (u U128) Cmp(other U128) int {
	switch {
	case u.Hi < other.Hi:
		return -1
	case u.Hi > other.Hi:
		return 1
	case u.Lo < other.Lo:
		return -1
	case u.Lo > other.Lo:
		return 1
	}
	return 0
}

func (u U128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%d", u.Lo)
	}
	return fmt.Sprintf("0x%016x%016x", u.Hi, u.Lo)
}

// Categorical is the index of the winning category.
type Categorical uint16

// Scalar is a point in the market's scalar range.
type Scalar U128

// OutcomeReport is an enum: Categorical (index 0) or Scalar (index 1).
type OutcomeReport struct {
	Inner any
}

func CategoricalReport(index uint16) OutcomeReport {
	return OutcomeReport{Inner: Categorical(index)}
}

func ScalarReport(v U128) OutcomeReport {
	return OutcomeReport{Inner: Scalar(v)}
}

func (o *OutcomeReport) SetValue(value any) error {
	switch v := value.(type) {
	case Categorical:
		o.Inner = v
	case Scalar:
		o.Inner = v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedVariant, value)
	}
	return nil
}

func (o OutcomeReport) IndexValue() (uint, any, error) {
	switch o.Inner.(type) {
	case Categorical:
		return 0, o.Inner, nil
	case Scalar:
		return 1, o.Inner, nil
	}
	return 0, nil, ErrUnsupportedVariant
}

func (o OutcomeReport) Value() (any, error) {
	_, value, err := o.IndexValue()
	return value, err
}

func (o OutcomeReport) ValueAt(index uint) (any, error) {
	switch index {
	case 0:
		return Categorical(0), nil
	case 1:
		return Scalar{}, nil
	}
	return nil, scale.ErrUnknownVaryingDataTypeValue
}

func (o OutcomeReport) String() string {
	switch v := o.Inner.(type) {
	case Categorical:
		return fmt.Sprintf("categorical(%d)", uint16(v))
	case Scalar:
		return fmt.Sprintf("scalar(%s)", U128(v))
	}
	return "invalid"
}

// CategoricalMarket carries the number of categories.
type CategoricalMarket uint16

// ScalarMarket is the inclusive range of valid scalar reports.
type ScalarMarket struct {
	Low  U128
	High U128
}

// MarketType is an enum: CategoricalMarket (index 0) or ScalarMarket (index 1).
type MarketType struct {
	Inner any
}

func NewCategoricalMarket(categories uint16) MarketType {
	return MarketType{Inner: CategoricalMarket(categories)}
}

func NewScalarMarket(low, high U128) MarketType {
	return MarketType{Inner: ScalarMarket{Low: low, High: high}}
}

func (m *MarketType) SetValue(value any) error {
	switch v := value.(type) {
	case CategoricalMarket:
		m.Inner = v
	case ScalarMarket:
		m.Inner = v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedVariant, value)
	}
	return nil
}

func (m MarketType) IndexValue() (uint, any, error) {
	switch m.Inner.(type) {
	case CategoricalMarket:
		return 0, m.Inner, nil
	case ScalarMarket:
		return 1, m.Inner, nil
	}
	return 0, nil, ErrUnsupportedVariant
}

func (m MarketType) Value() (any, error) {
	_, value, err := m.IndexValue()
	return value, err
}

func (m MarketType) ValueAt(index uint) (any, error) {
	switch index {
	case 0:
		return CategoricalMarket(0), nil
	case 1:
		return ScalarMarket{}, nil
	}
	return nil, scale.ErrUnknownVaryingDataTypeValue
}

// Validate checks that the market type itself is well formed.
func (m MarketType) Validate() error {
	switch v := m.Inner.(type) {
	case CategoricalMarket:
		if v < 2 {
			return ErrInvalidMarketType
		}
		return nil
	case ScalarMarket:
		if v.Low.Cmp(v.High) >= 0 {
			return ErrInvalidMarketType
		}
		return nil
	}
	return ErrInvalidMarketType
}

// Accepts checks that report is a valid answer for this market type.
func (m MarketType) Accepts(report OutcomeReport) error {
	switch mt := m.Inner.(type) {
	case CategoricalMarket:
		c, ok := report.Inner.(Categorical)
		if !ok {
			return ErrReportTypeMismatch
		}
		if uint16(c) >= uint16(mt) {
			return ErrCategoryOutOfRange
		}
		return nil
	case ScalarMarket:
		s, ok := report.Inner.(Scalar)
		if !ok {
			return ErrReportTypeMismatch
		}
		if U128(s).Cmp(mt.Low) < 0 || U128(s).Cmp(mt.High) > 0 {
			return ErrScalarOutOfRange
		}
		return nil
	}
	return ErrInvalidMarketType
}

// Market is the slice of a prediction market the court needs to know about.
type Market struct {
	ID       MarketID
	Type     MarketType
	Report   OutcomeReport
	ItemType VoteItemType
}
