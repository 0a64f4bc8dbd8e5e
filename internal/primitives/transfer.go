package primitives

// TransferKind tells the currency system why value moves.
type TransferKind uint8

const (
	// TransferSlash moves slashed stake from a juror or delegator to a reward pot.
	TransferSlash TransferKind = iota
	// TransferReward pays a winning juror, delegator or justified backer from a reward pot.
	TransferReward
	// TransferBondForfeit moves an unreserved appeal bond to a reward pot.
	TransferBondForfeit
	// TransferTreasury sends an unclaimed reward pool to the treasury.
	TransferTreasury
	// TransferInflation mints new balance, From is unset.
	TransferInflation
)

func (k TransferKind) String() string {
	switch k {
	case TransferSlash:
		return "slash"
	case TransferReward:
		return "reward"
	case TransferBondForfeit:
		return "bond_forfeit"
	case TransferTreasury:
		return "treasury"
	case TransferInflation:
		return "inflation"
	}
	return "unknown"
}

// Transfer is a balance movement the court hands to the currency system.
type Transfer struct {
	Kind   TransferKind
	From   AccountID
	To     AccountID
	Amount Balance
}
