package dispatcher

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/types"
)

// Batch is one chunk's composite call and the events it should emit.
type Batch struct {
	Call           *client.Call
	ExpectedEvents int
	Description    string
}

// CallBuilder turns a chunk of target accounts into a call.
type CallBuilder func(chunk []types.Address) (*Batch, error)

// TransferBuilder sends amount to every account of the chunk, all inside
// one Utility.batch. from and format only shape the log description.
func TransferBuilder(f client.CallFactory, amount *uint256.Int, from types.Address, format func(*uint256.Int) string) CallBuilder {
	return func(chunk []types.Address) (*Batch, error) {
		calls := make([]*client.Call, 0, len(chunk))
		for _, dest := range chunk {
			call, err := f.BuildCall(client.ModuleBalances, client.FunctionTransfer, map[string]interface{}{
				"dest":  dest,
				"value": amount.Dec(),
			})
			if err != nil {
				return nil, fmt.Errorf("build transfer to %s: %w", dest, err)
			}
			calls = append(calls, call)
		}
		batch, err := f.BuildBatchCall(calls)
		if err != nil {
			return nil, fmt.Errorf("build transfer batch: %w", err)
		}
		return &Batch{
			Call:           batch,
			ExpectedEvents: len(calls),
			Description: fmt.Sprintf("About to send %d transfers, each with %s from %s to below accounts: %v",
				len(calls), format(amount), from, chunk),
		}, nil
	}
}

// UpgradeBuilder upgrades every account of the chunk with a single
// Balances.upgrade_accounts call.
func UpgradeBuilder(f client.CallFactory) CallBuilder {
	return func(chunk []types.Address) (*Batch, error) {
		who := append([]types.Address(nil), chunk...)
		call, err := f.BuildCall(client.ModuleBalances, client.FunctionUpgradeAccounts, map[string]interface{}{
			"who": who,
		})
		if err != nil {
			return nil, fmt.Errorf("build upgrade_accounts: %w", err)
		}
		return &Batch{
			Call:           call,
			ExpectedEvents: len(chunk),
			Description:    fmt.Sprintf("About to upgrade %d accounts", len(chunk)),
		}, nil
	}
}
