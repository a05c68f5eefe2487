package invariants

// Regime selects which balance semantics the connected runtime uses.
type Regime int

const (
	// PreUpgrade: ED applies to free+reserved, locks apply to free only.
	PreUpgrade Regime = iota
	// AtLeastUpgrade: ED applies to free alone, locks apply to free+reserved.
	AtLeastUpgrade
)

// LastPreUpgradeSpecVersion is the newest runtime spec version still running
// the old balances pallet.
const LastPreUpgradeSpecVersion = 65

func RegimeFromSpecVersion(specVersion uint32) Regime {
	if specVersion <= LastPreUpgradeSpecVersion {
		return PreUpgrade
	}
	return AtLeastUpgrade
}

func (r Regime) String() string {
	switch r {
	case PreUpgrade:
		return "PRE_UPGRADE"
	case AtLeastUpgrade:
		return "AT_LEAST_UPGRADE"
	default:
		return "UNKNOWN"
	}
}
