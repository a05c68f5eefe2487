package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/artifact"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/client/memchain"
	"github.com/mezonai/balances-maintenance/errors"
	"github.com/mezonai/balances-maintenance/journal"
	"github.com/mezonai/balances-maintenance/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const senderSeed = "0x0505050505050505050505050505050505050505050505050505050505050505"

type harness struct {
	app    *App
	chain  *memchain.Chain
	stderr *bytes.Buffer
	env    map[string]string
	dialed int
	dir    string
}

func newHarness(t *testing.T, specVersion uint32) *harness {
	t.Helper()
	h := &harness{
		chain:  memchain.New(specVersion, uint256.NewInt(500)),
		stderr: &bytes.Buffer{},
		env:    map[string]string{},
		dir:    t.TempDir(),
	}
	h.app = &App{
		Stderr: h.stderr,
		LookupEnv: func(k string) (string, bool) {
			v, ok := h.env[k]
			return v, ok
		},
		Dial: func(context.Context, string) (client.ChainClient, error) {
			h.dialed++
			return h.chain, nil
		},
		Now: func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) },
	}

	kp, err := client.KeypairFromSeed(senderSeed)
	require.NoError(t, err)
	h.chain.SetAccount(kp.Address, types.AccountInfo{Providers: 1, Data: types.AccountData{Free: uint256.NewInt(1 << 30)}})
	return h
}

func (h *harness) execute(t *testing.T, args ...string) (errors.ExitCode, error) {
	t.Helper()
	root := NewRootCmd(h.app)
	root.SetArgs(append([]string{"--log-dir", h.dir, "--output-dir", h.dir}, args...))
	root.SetOut(h.stderr)
	root.SetErr(h.stderr)
	err := root.ExecuteContext(context.Background())
	return h.app.ExitCode(), err
}

func dustAccount(i byte) (types.Address, types.AccountInfo) {
	pub := make([]byte, types.PublicKeySize)
	pub[0], pub[31] = 0x11, i
	return types.AddressFromPublicKey(pub), types.AccountInfo{
		Providers: 1,
		Data:      types.AccountData{Free: uint256.NewInt(499), Reserved: uint256.NewInt(1)},
	}
}

func TestExecute_AuditOnly(t *testing.T) {
	h := newHarness(t, 68)

	code, err := h.execute(t)
	require.NoError(t, err)
	assert.Equal(t, errors.ExitOK, code)
	assert.Equal(t, 1, h.dialed)
	assert.Contains(t, h.stderr.String(), "All accounts on chain Development meet balances invariants.")

	logs, err := filepath.Glob(filepath.Join(h.dir, "balances-maintenance-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	raw, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[INFO][MAINTENANCE]: DONE")
}

func TestExecute_MissingSenderAccount(t *testing.T) {
	for _, mode := range []string{"--fix-free-balance", "--upgrade-accounts"} {
		h := newHarness(t, 65)
		code, err := h.execute(t, mode)
		require.NoError(t, err)
		assert.Equal(t, errors.ExitCode(1), code, mode)
		assert.Zero(t, h.dialed, "must fail before connecting")
		assert.Contains(t, h.stderr.String(), "env SENDER_ACCOUNT must exists")
	}
}

func TestExecute_EmptySenderAccountIsInvalid(t *testing.T) {
	h := newHarness(t, 65)
	h.env["SENDER_ACCOUNT"] = ""
	code, err := h.execute(t, "--fix-free-balance")
	require.NoError(t, err)
	assert.Equal(t, errors.ExitFailure, code)
	assert.Zero(t, h.dialed)
	assert.Contains(t, h.stderr.String(), "Invalid SENDER_ACCOUNT")
	assert.NotContains(t, h.stderr.String(), "must exists")
}

func TestReportCrash(t *testing.T) {
	var buf bytes.Buffer
	ReportCrash(&buf, "boom")
	assert.Contains(t, buf.String(), "[ERROR][ERROR]: MAINTENANCE CRASHED: boom")
	assert.Contains(t, buf.String(), "runtime/debug.Stack")
}

func TestExecute_WrongRegime(t *testing.T) {
	h := newHarness(t, 66)
	h.env["SENDER_ACCOUNT"] = senderSeed
	code, err := h.execute(t, "--fix-free-balance")
	require.NoError(t, err)
	assert.Equal(t, errors.ExitCode(2), code)

	h = newHarness(t, 65)
	h.env["SENDER_ACCOUNT"] = senderSeed
	code, err = h.execute(t, "--upgrade-accounts")
	require.NoError(t, err)
	assert.Equal(t, errors.ExitCode(3), code)
	assert.Zero(t, h.chain.PageCalls())
}

func TestExecute_ModesAreExclusive(t *testing.T) {
	h := newHarness(t, 65)
	_, err := h.execute(t, "--fix-free-balance", "--upgrade-accounts")
	assert.Error(t, err)
	assert.Zero(t, h.dialed)
}

func TestExecute_FixFreeBalanceWithJournal(t *testing.T) {
	h := newHarness(t, 65)
	h.env["SENDER_ACCOUNT"] = senderSeed
	for i := byte(0); i < 3; i++ {
		addr, info := dustAccount(i)
		h.chain.SetAccount(addr, info)
	}
	journalPath := filepath.Join(h.dir, "journal.db")

	code, err := h.execute(t, "--fix-free-balance", "--transfer-calls-in-batch", "2", "--journal", journalPath)
	require.NoError(t, err)
	assert.Equal(t, errors.ExitOK, code)
	assert.Len(t, h.chain.Submitted(), 2)

	dust, err := artifact.Read(filepath.Join(h.dir, artifact.DustAccountsFile))
	require.NoError(t, err)
	assert.Len(t, dust, 3)

	j, err := journal.Open(journalPath, journal.RunMeta{RunID: "reader"})
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Runs()
	require.NoError(t, err)
	var run journal.RunMeta
	for _, r := range runs {
		if r.Mode == "fix-free-balance" {
			run = r
		}
	}
	require.NotEmpty(t, run.RunID)
	entries, err := j.Entries(run.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Addresses, 2)
	assert.Len(t, entries[1].Addresses, 1)
	assert.True(t, entries[1].Success)
}

func TestExecute_DryRunFromEnvironment(t *testing.T) {
	h := newHarness(t, 66)
	h.env["SENDER_ACCOUNT"] = senderSeed
	t.Setenv("BALANCES_DRY_RUN", "true")

	code, err := h.execute(t, "--upgrade-accounts")
	require.NoError(t, err)
	assert.Equal(t, errors.ExitOK, code)
	assert.Len(t, h.chain.Signed(), 1)
	assert.Empty(t, h.chain.Submitted())
	assert.Equal(t, 1, strings.Count(h.stderr.String(), "Not sending extrinsic, --dry-run is enabled."))
}

func TestExecute_ContractViolationPanics(t *testing.T) {
	h := newHarness(t, 65)
	h.env["SENDER_ACCOUNT"] = senderSeed
	pub := make([]byte, types.PublicKeySize)
	pub[0] = 0x22
	// Already invalid before the upgrade: the dust check refuses it.
	h.chain.SetAccount(types.AddressFromPublicKey(pub), types.AccountInfo{Providers: 1, Data: types.AccountData{Free: uint256.NewInt(1)}})

	assert.Panics(t, func() { _, _ = h.execute(t, "--fix-free-balance") })
	assert.Contains(t, h.stderr.String(), "Panic in: maintenance run")
}
