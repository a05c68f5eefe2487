package invariants

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/types"
)

// WouldBeDust reports whether an account that is valid before the upgrade
// keeps less than ED in free balance, which the new regime rejects.
//
// It panics when called on the wrong regime or on an account that already
// fails the pre-upgrade invariants: both are caller bugs.
func WouldBeDust(acc types.AccountInfo, regime Regime, ed *uint256.Int) bool {
	if regime != PreUpgrade {
		panic(fmt.Sprintf("invariants: dust check requires %s regime, got %s", PreUpgrade, regime))
	}
	if !(PreUpgradeChecker{ExistentialDeposit: ed}).Check(acc) {
		panic(fmt.Sprintf("invariants: account (providers=%d consumers=%d free=%s reserved=%s) does not meet %s invariants",
			acc.Providers, acc.Consumers, acc.Data.FreeBalance().Dec(), acc.Data.ReservedBalance().Dec(), PreUpgrade))
	}
	return acc.Data.FreeBalance().Lt(ed)
}

// NotDust is the scan predicate for finding dust accounts.
func NotDust(regime Regime, ed *uint256.Int) Predicate {
	return func(acc types.AccountInfo) bool {
		return !WouldBeDust(acc, regime, ed)
	}
}

// CollectAll fails every account, so a scan with it lists the whole chain.
func CollectAll(types.AccountInfo) bool {
	return false
}
