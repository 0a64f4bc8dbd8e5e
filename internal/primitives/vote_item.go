package primitives

import (
	"errors"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"
)

var (
	ErrVoteItemTypeMismatch = errors.New("vote item does not match court item type")
	// ErrUnsupportedVariant is returned for enum values holding no known variant.
	ErrUnsupportedVariant = errors.New("unsupported enum variant")
)

// VoteItemType selects which VoteItem variant a court accepts.
type VoteItemType uint8

const (
	VoteItemOutcome VoteItemType = iota
	VoteItemBinary
)

func (t VoteItemType) String() string {
	switch t {
	case VoteItemOutcome:
		return "outcome"
	case VoteItemBinary:
		return "binary"
	}
	return "unknown"
}

// Binary accepts (true) or rejects (false) the previous winner.
type Binary bool

// VoteItem is an enum: OutcomeReport (index 0) or Binary (index 1).
// Both variants are comparable so VoteItem values can be compared with ==.
type VoteItem struct {
	Inner any
}

func OutcomeItem(report OutcomeReport) VoteItem {
	return VoteItem{Inner: report}
}

func BinaryItem(accept bool) VoteItem {
	return VoteItem{Inner: Binary(accept)}
}

func (v *VoteItem) SetValue(value any) error {
	switch val := value.(type) {
	case OutcomeReport:
		v.Inner = val
	case Binary:
		v.Inner = val
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedVariant, value)
	}
	return nil
}

func (v VoteItem) IndexValue() (uint, any, error) {
	switch v.Inner.(type) {
	case OutcomeReport:
		return 0, v.Inner, nil
	case Binary:
		return 1, v.Inner, nil
	}
	return 0, nil, ErrUnsupportedVariant
}

func (v VoteItem) Value() (any, error) {
	_, value, err := v.IndexValue()
	return value, err
}

func (v VoteItem) ValueAt(index uint) (any, error) {
	switch index {
	case 0:
		return OutcomeReport{}, nil
	case 1:
		return Binary(false), nil
	}
	return nil, scale.ErrUnknownVaryingDataTypeValue
}

// Outcome returns the wrapped report when the item is an outcome.
func (v VoteItem) Outcome() (OutcomeReport, bool) {
	o, ok := v.Inner.(OutcomeReport)
	return o, ok
}

func (v VoteItem) Type() VoteItemType {
	if _, ok := v.Inner.(Binary); ok {
		return VoteItemBinary
	}
	return VoteItemOutcome
}

func (v VoteItem) String() string {
	switch val := v.Inner.(type) {
	case OutcomeReport:
		return val.String()
	case Binary:
		return fmt.Sprintf("binary(%t)", bool(val))
	}
	return "invalid"
}

// ValidateItem checks that item is admissible for a court over market.
func (m Market) ValidateItem(item VoteItem) error {
	switch val := item.Inner.(type) {
	case OutcomeReport:
		if m.ItemType != VoteItemOutcome {
			return ErrVoteItemTypeMismatch
		}
		return m.Type.Accepts(val)
	case Binary:
		if m.ItemType != VoteItemBinary {
			return ErrVoteItemTypeMismatch
		}
		return nil
	}
	return ErrVoteItemTypeMismatch
}

// DefaultItem is the item a court settles on when nobody reveals in its first cycle.
func (m Market) DefaultItem() VoteItem {
	if m.ItemType == VoteItemBinary {
		return BinaryItem(true)
	}
	return OutcomeItem(m.Report)
}
