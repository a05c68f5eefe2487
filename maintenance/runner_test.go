package maintenance

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/artifact"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/client/memchain"
	"github.com/mezonai/balances-maintenance/config"
	"github.com/mezonai/balances-maintenance/errors"
	"github.com/mezonai/balances-maintenance/invariants"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ed = 500

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func address(i int) types.Address {
	pub := make([]byte, types.PublicKeySize)
	pub[0], pub[1] = 0xaa, byte(i)
	return types.AddressFromPublicKey(pub)
}

func healthy(free uint64) types.AccountInfo {
	return types.AccountInfo{Providers: 1, Data: types.AccountData{Free: u(free), Reserved: u(0)}}
}

type fixture struct {
	chain  *memchain.Chain
	sender *client.Keypair
	cfg    *config.Config
	out    *bytes.Buffer
	log    *logx.Logger
}

func newFixture(t *testing.T, specVersion uint32) *fixture {
	t.Helper()
	chain := memchain.New(specVersion, u(ed))
	sender, err := client.KeypairFromSeed("0x" + strings.Repeat("07", 32))
	require.NoError(t, err)
	chain.SetAccount(sender.Address, healthy(1_000_000_000))

	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.PageSize = 4
	out := &bytes.Buffer{}
	return &fixture{chain: chain, sender: sender, cfg: cfg, out: out, log: logx.NewWriter(out, logx.LevelDebug)}
}

func (f *fixture) run(t *testing.T) (*Report, error) {
	t.Helper()
	return NewRunner(f.cfg, Deps{Chain: f.chain, Sender: f.sender, Log: f.log}).Run(context.Background())
}

func TestRun_AuditOnlyAllValid(t *testing.T) {
	f := newFixture(t, 68)
	for i := 0; i < 10; i++ {
		f.chain.SetAccount(address(i), healthy(ed+uint64(i)))
	}

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, invariants.AtLeastUpgrade, report.Regime)
	assert.Equal(t, 11, report.AccountsChecked)
	assert.Zero(t, report.InvariantFailures)
	assert.Empty(t, report.Artifacts)
	assert.NoFileExists(t, filepath.Join(f.cfg.OutputDir, artifact.FailedInvariantsFile))
	assert.Empty(t, f.chain.Submitted())

	logs := f.out.String()
	assert.Contains(t, logs, "Connected to memchain: Development 0.0.0")
	assert.Contains(t, logs, "Major version of chain connected to is AT_LEAST_UPGRADE")
	assert.Contains(t, logs, "Existential deposit is 0.0000000005 UNIT")
	assert.Contains(t, logs, "All accounts on chain Development meet balances invariants.")
}

func TestRun_ZeroDecimalsFallBackToDefault(t *testing.T) {
	f := newFixture(t, 68)
	f.chain.SetChainInfo(client.ChainInfo{Name: "memchain", Chain: "Development", Version: "0.0.0", TokenSymbol: "MZN"})

	_, err := f.run(t)
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "Existential deposit is 0.0000000005 MZN")
}

func TestRun_AuditWritesViolations(t *testing.T) {
	f := newFixture(t, 66)
	f.chain.SetAccount(address(1), healthy(ed-1))
	f.chain.SetAccount(address(2), types.AccountInfo{Providers: 2, Data: types.AccountData{Free: u(ed)}})
	f.chain.SetAccount(address(3), healthy(ed))

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 2, report.InvariantFailures)
	require.Len(t, report.Artifacts, 1)

	got, err := artifact.Read(report.Artifacts[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Address{address(1), address(2)}, types.Addresses(got))
	assert.Contains(t, f.out.String(), "Found 2 accounts that do not meet balances invariants!")
}

func TestRun_Preconditions(t *testing.T) {
	tests := []struct {
		name        string
		specVersion uint32
		mutate      func(*fixture)
		want        errors.ExitCode
	}{
		{"fix free balance after upgrade", 66, func(f *fixture) { f.cfg.FixFreeBalance = true }, errors.ExitFixFreeBalanceWrongRegime},
		{"upgrade accounts before upgrade", 65, func(f *fixture) { f.cfg.UpgradeAccounts = true }, errors.ExitUpgradeAccountsWrongRegime},
		{"missing sender", 65, func(f *fixture) { f.cfg.FixFreeBalance = true; f.sender = nil }, errors.ExitMissingSenderAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.specVersion)
			f.chain.SetAccount(address(1), healthy(ed-1))
			tt.mutate(f)

			_, err := f.run(t)
			require.Error(t, err)
			assert.True(t, errors.IsPrecondition(err))
			assert.Equal(t, tt.want, errors.CodeOf(err))
			assert.Zero(t, f.chain.PageCalls(), "no account may be read")
			assert.Empty(t, f.chain.Signed())
		})
	}
}

func dustChain(t *testing.T, dust int) *fixture {
	f := newFixture(t, 65)
	for i := 0; i < dust; i++ {
		f.chain.SetAccount(address(i), types.AccountInfo{
			Providers: 1,
			Data:      types.AccountData{Free: u(ed - 1), Reserved: u(1)},
		})
	}
	f.chain.SetAccount(address(200), healthy(ed*3))
	f.cfg.FixFreeBalance = true
	f.cfg.TransferCallsInBatch = 2
	return f
}

func TestRun_FixFreeBalance(t *testing.T) {
	f := dustChain(t, 5)

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 5, report.DustAccounts)
	require.NotNil(t, report.Transfers)
	assert.Equal(t, 3, report.Transfers.Chunks)
	assert.Equal(t, 3, report.Transfers.Submitted)
	for i := 0; i < 5; i++ {
		acc, _ := f.chain.Account(address(i))
		assert.Equal(t, uint64(2*ed-1), acc.Data.FreeBalance().Uint64())
		assert.False(t, invariants.WouldBeDust(acc, invariants.PreUpgrade, u(ed)))
	}

	dust, err := artifact.Read(filepath.Join(f.cfg.OutputDir, artifact.DustAccountsFile))
	require.NoError(t, err)
	assert.Len(t, dust, 5)
	assert.Zero(t, report.InvariantFailures)
	assert.Contains(t, f.out.String(), "Transfers done.")
}

func TestRun_FixFreeBalanceNothingToDo(t *testing.T) {
	f := dustChain(t, 0)

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Nil(t, report.Transfers)
	assert.Contains(t, f.out.String(), "No dust accounts found, skipping transfers.")
	assert.NoFileExists(t, filepath.Join(f.cfg.OutputDir, artifact.DustAccountsFile))
}

func TestRun_FixFreeBalanceDryRun(t *testing.T) {
	f := dustChain(t, 5)
	f.cfg.DryRun = true

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Transfers.Chunks)
	assert.Len(t, f.chain.Signed(), 3)
	assert.Empty(t, f.chain.Submitted())
	assert.Equal(t, 3, strings.Count(f.out.String(), "Not sending extrinsic, --dry-run is enabled."))

	acc, _ := f.chain.Account(address(0))
	assert.Equal(t, uint64(ed-1), acc.Data.FreeBalance().Uint64())
}

func TestRun_FixFreeBalanceTransportFailure(t *testing.T) {
	f := dustChain(t, 5)
	f.chain.SetSubmitHook(func(n int, _ *client.SignedExtrinsic) (*client.Receipt, error) {
		if n == 1 {
			return nil, context.DeadlineExceeded
		}
		return nil, nil
	})

	report, err := f.run(t)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, errors.ExitFailure, errors.CodeOf(err))
	assert.Len(t, f.chain.Signed(), 1)
	assert.Zero(t, report.AccountsChecked, "sanity check does not run after an abort")
}

func TestRun_UpgradeAccounts(t *testing.T) {
	f := newFixture(t, 66)
	for i := 0; i < 6; i++ {
		f.chain.SetAccount(address(i), healthy(ed))
	}
	// Reserved funds without a consumer reference break the invariants once upgraded.
	f.chain.SetAccount(address(9), types.AccountInfo{Providers: 1, Data: types.AccountData{Free: u(ed), Reserved: u(10)}})
	f.cfg.UpgradeAccounts = true
	f.cfg.UpgradeAccountsInBatch = 3

	report, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 8, report.UpgradeTargets)
	require.NotNil(t, report.Upgrades)
	assert.Equal(t, 3, report.Upgrades.Chunks)
	for i := 0; i < 6; i++ {
		acc, _ := f.chain.Account(address(i))
		assert.Equal(t, 128, acc.Data.FlagBits().BitLen())
	}

	assert.Equal(t, 1, report.InvariantFailures)
	failed, err := artifact.Read(filepath.Join(f.cfg.OutputDir, artifact.FailedInvariantsFile))
	require.NoError(t, err)
	assert.Equal(t, []types.Address{address(9)}, types.Addresses(failed))
}
