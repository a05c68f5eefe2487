// Package maintenance sequences a run: version check, optional remediation
// and the final sanity check.
package maintenance

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/artifact"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/config"
	"github.com/mezonai/balances-maintenance/dispatcher"
	"github.com/mezonai/balances-maintenance/errors"
	"github.com/mezonai/balances-maintenance/invariants"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/monitoring"
	"github.com/mezonai/balances-maintenance/scanner"
	"github.com/mezonai/balances-maintenance/types"
)

const (
	ActionTransfer = "transfer"
	ActionUpgrade  = "upgrade_accounts"

	scanDust        = "'would be dust'"
	scanAllAccounts = "'all accounts'"
	scanSanity      = "'balances invariants'"
)

// Deps are the collaborators of a run. Sender may be nil when no
// remediation is requested; Recorder and Metrics are optional.
type Deps struct {
	Chain    client.ChainClient
	Sender   *client.Keypair
	Log      *logx.Logger
	Metrics  *monitoring.Metrics
	Recorder dispatcher.Recorder
}

// Report summarizes a completed run.
type Report struct {
	SpecVersion        uint32
	Regime             invariants.Regime
	ExistentialDeposit *uint256.Int

	DustAccounts   int
	Transfers      *dispatcher.Summary
	UpgradeTargets int
	Upgrades       *dispatcher.Summary

	AccountsChecked   int
	InvariantFailures int
	Artifacts         []string
}

type Runner struct {
	cfg  *config.Config
	deps Deps

	scanner   *scanner.Scanner
	artifacts *artifact.Writer
	info      client.ChainInfo
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	s := scanner.New(deps.Chain, deps.Log, deps.Metrics)
	s.PageSize = cfg.PageSize
	s.ProgressInterval = cfg.ProgressInterval
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		scanner:   s,
		artifacts: artifact.NewWriter(cfg.OutputDir, deps.Log),
	}
}

func (r *Runner) format(v *uint256.Int) string {
	return client.FormatBalance(v, r.info.TokenDecimals, r.info.TokenSymbol)
}

// Run executes the configured run. Precondition failures are returned as
// *errors.PreconditionError before any account is read.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	log := r.deps.Log
	if r.cfg.RemediationRequested() && r.deps.Sender == nil {
		return nil, errors.NewPrecondition(errors.ExitMissingSenderAccount,
			"When specifying --fix-free-balance or --upgrade-accounts, env %s must exists. Exiting.", config.SenderAccountEnv)
	}
	if r.cfg.DryRun {
		log.Info("MAINTENANCE", "Dry-run mode is enabled.")
	}

	info, err := r.deps.Chain.ChainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain info: %w", err)
	}
	if info.TokenDecimals == 0 {
		info.TokenDecimals = client.DefaultTokenDecimals
	}
	r.info = info
	log.Infof("MAINTENANCE", "Connected to %s: %s %s", info.Name, info.Chain, info.Version)

	specVersion, err := r.deps.Chain.RuntimeSpecVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runtime version: %w", err)
	}
	regime := invariants.RegimeFromSpecVersion(specVersion)
	r.deps.Metrics.MarkRunStart(specVersion)
	log.Infof("MAINTENANCE", "Major version of chain connected to is %s (spec version %d)", regime, specVersion)

	if r.cfg.FixFreeBalance && regime != invariants.PreUpgrade {
		return nil, errors.NewPrecondition(errors.ExitFixFreeBalanceWrongRegime,
			"--fix-free-balance can be used only on chains with pre-upgrade version. Exiting.")
	}
	if r.cfg.UpgradeAccounts && regime != invariants.AtLeastUpgrade {
		return nil, errors.NewPrecondition(errors.ExitUpgradeAccountsWrongRegime,
			"--upgrade-accounts can be used only on chains with at least upgrade version. Exiting.")
	}

	ed, err := r.deps.Chain.Constant(ctx, "Balances", "ExistentialDeposit")
	if err != nil {
		return nil, fmt.Errorf("query existential deposit: %w", err)
	}
	log.Infof("MAINTENANCE", "Existential deposit is %s", r.format(ed))

	report := &Report{SpecVersion: specVersion, Regime: regime, ExistentialDeposit: ed}

	if r.cfg.FixFreeBalance {
		if err := r.fixFreeBalance(ctx, regime, ed, report); err != nil {
			return report, err
		}
	}
	if r.cfg.UpgradeAccounts {
		if err := r.upgradeAccounts(ctx, report); err != nil {
			return report, err
		}
	}

	if err := r.sanityCheck(ctx, regime, ed, report); err != nil {
		return report, err
	}
	log.Info("MAINTENANCE", "DONE")
	return report, nil
}

func (r *Runner) dispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(r.deps.Chain, r.deps.Sender, r.deps.Log, dispatcher.Options{
		DryRun:    r.cfg.DryRun,
		Recorder:  r.deps.Recorder,
		Metrics:   r.deps.Metrics,
		FormatFee: r.format,
	})
}

func (r *Runner) fixFreeBalance(ctx context.Context, regime invariants.Regime, ed *uint256.Int, report *Report) error {
	log := r.deps.Log
	log.Infof("MAINTENANCE", "Using following account for transfers: %s", r.deps.Sender.Address)
	log.Infof("MAINTENANCE", "Will send at most %d transfers in a batch.", r.cfg.TransferCallsInBatch)
	log.Info("MAINTENANCE", "Looking for accounts that would be dust after the upgrade.")

	res, err := r.scanner.Scan(ctx, scanDust, invariants.NotDust(regime, ed))
	if err != nil {
		return err
	}
	report.DustAccounts = len(res.Failed)
	if len(res.Failed) == 0 {
		log.Info("MAINTENANCE", "No dust accounts found, skipping transfers.")
		return nil
	}

	log.Infof("MAINTENANCE", "Found %d accounts that will be invalid after the upgrade.", len(res.Failed))
	path, err := r.artifacts.Write(artifact.DustAccountsFile, res.Failed)
	if err != nil {
		return err
	}
	report.Artifacts = append(report.Artifacts, path)

	log.Info("MAINTENANCE", "Adjusting balances by sending transfers.")
	build := dispatcher.TransferBuilder(r.deps.Chain, ed, r.deps.Sender.Address, r.format)
	sum, err := r.dispatcher().Run(ctx, ActionTransfer, types.Addresses(res.Failed), r.cfg.TransferCallsInBatch, build)
	report.Transfers = &sum
	if err != nil {
		return err
	}
	log.Info("MAINTENANCE", "Transfers done.")
	return nil
}

func (r *Runner) upgradeAccounts(ctx context.Context, report *Report) error {
	log := r.deps.Log
	log.Infof("MAINTENANCE", "Using following account for upgrade_accounts: %s", r.deps.Sender.Address)
	log.Infof("MAINTENANCE", "Will upgrade at most %d accounts in a batch.", r.cfg.UpgradeAccountsInBatch)
	log.Info("MAINTENANCE", "Querying all accounts.")

	res, err := r.scanner.Scan(ctx, scanAllAccounts, invariants.CollectAll)
	if err != nil {
		return err
	}
	report.UpgradeTargets = len(res.Failed)

	sum, err := r.dispatcher().Run(ctx, ActionUpgrade, types.Addresses(res.Failed), r.cfg.UpgradeAccountsInBatch,
		dispatcher.UpgradeBuilder(r.deps.Chain))
	report.Upgrades = &sum
	if err != nil {
		return err
	}
	log.Info("MAINTENANCE", "Upgrade accounts done.")
	return nil
}

func (r *Runner) sanityCheck(ctx context.Context, regime invariants.Regime, ed *uint256.Int, report *Report) error {
	log := r.deps.Log
	log.Info("MAINTENANCE", "Performing pallet balances sanity checks.")

	checker := invariants.CheckerFor(regime, ed)
	res, err := r.scanner.Scan(ctx, scanSanity, invariants.AsPredicate(checker))
	if err != nil {
		return err
	}
	report.AccountsChecked = res.Total
	report.InvariantFailures = len(res.Failed)

	if len(res.Failed) == 0 {
		log.Infof("MAINTENANCE", "All accounts on chain %s meet balances invariants.", r.info.Chain)
		return nil
	}
	log.Warnf("MAINTENANCE", "Found %d accounts that do not meet balances invariants!", len(res.Failed))
	path, err := r.artifacts.Write(artifact.FailedInvariantsFile, res.Failed)
	if err != nil {
		return err
	}
	report.Artifacts = append(report.Artifacts, path)
	return nil
}
