package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/config"
	"github.com/mezonai/balances-maintenance/errors"
	"github.com/mezonai/balances-maintenance/exception"
	"github.com/mezonai/balances-maintenance/journal"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/maintenance"
	"github.com/mezonai/balances-maintenance/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const toolName = "balances-maintenance"

// Dialer connects to a node.
type Dialer func(ctx context.Context, endpoint string) (client.ChainClient, error)

// App holds the process-level collaborators so tests can replace them.
type App struct {
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	Dial      Dialer
	Now       func() time.Time

	code errors.ExitCode
}

func DefaultApp() *App {
	return &App{
		Stderr:    os.Stderr,
		LookupEnv: os.LookupEnv,
		Dial: func(_ context.Context, endpoint string) (client.ChainClient, error) {
			return client.NewClient(client.Config{Endpoint: endpoint})
		},
		Now: time.Now,
	}
}

// ExitCode is the status of the last executed command.
func (a *App) ExitCode() errors.ExitCode {
	return a.code
}

// NewRootCmd creates the root command
func NewRootCmd(app *App) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   toolName,
		Short: "Check and repair pallet balances invariants",
		Long: `Scans every account on chain and checks the balances and reference counter
invariants of the runtime's balances regime. Optionally tops up accounts that
would become dust after the upgrade, or upgrades every account.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := config.Default()
			if configFile != "" {
				loaded, err := config.Load(configFile)
				if err != nil {
					return err
				}
				base = loaded
			}
			v := config.NewViper()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg := config.FromViper(base, v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			app.code = app.run(cmd.Context(), cfg)
			return nil
		},
	}

	d := config.Default()
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, config.KeyConfig, "", "YAML or INI config file; flags and BALANCES_* env override it")
	flags.String(config.KeyWSURL, d.WSURL, "node RPC endpoint")
	flags.String(config.KeyLogLevel, d.LogLevel, "log level (debug, info, warning, error)")
	flags.String(config.KeyLogDir, d.LogDir, "directory of the run log file (default current directory)")
	flags.Bool(config.KeyDryRun, false, "build and sign extrinsics but never submit them")
	flags.Bool(config.KeyFixFreeBalance, false, "top up accounts that would be dust after the upgrade; needs env "+config.SenderAccountEnv)
	flags.Bool(config.KeyUpgradeAccounts, false, "upgrade every account on chain; needs env "+config.SenderAccountEnv)
	flags.Int(config.KeyTransferCallsInBatch, d.TransferCallsInBatch, "transfers per Utility.batch extrinsic")
	flags.Int(config.KeyUpgradeAccountsInBatch, d.UpgradeAccountsInBatch, "accounts per upgrade_accounts extrinsic")
	flags.Int(config.KeyPageSize, d.PageSize, "accounts fetched per storage page")
	flags.Int(config.KeyProgressInterval, d.ProgressInterval, "log scan progress every N accounts")
	flags.String(config.KeyOutputDir, d.OutputDir, "directory for the JSON artifacts (default current directory)")
	flags.String(config.KeyJournal, d.JournalPath, "bbolt file recording every dispatched chunk")
	flags.String(config.KeyMetricsAddr, d.MetricsAddr, "serve prometheus /metrics on this address")
	rootCmd.MarkFlagsMutuallyExclusive(config.KeyFixFreeBalance, config.KeyUpgradeAccounts)

	return rootCmd
}

func (a *App) run(ctx context.Context, cfg *config.Config) (code errors.ExitCode) {
	now := a.Now()
	log := logx.New(logx.Config{
		Level:    cfg.Level(),
		Console:  a.Stderr,
		Dir:      cfg.LogDir,
		FileName: logx.DefaultFileName(toolName, now),
	})
	defer log.Close()

	defer func() {
		if r := recover(); r != nil {
			exception.Report(log, "maintenance run", r)
			panic(r)
		}
	}()

	var sender *client.Keypair
	if cfg.RemediationRequested() {
		secret, ok := a.LookupEnv(config.SenderAccountEnv)
		if !ok {
			log.Error("CMD", "When specifying --fix-free-balance or --upgrade-accounts, env ", config.SenderAccountEnv, " must exists. Exiting.")
			return errors.ExitMissingSenderAccount
		}
		kp, err := client.KeypairFromSeed(secret)
		if err != nil {
			log.Error("CMD", "Invalid ", config.SenderAccountEnv, ": ", err)
			return errors.ExitFailure
		}
		sender = kp
	}

	var metrics *monitoring.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = monitoring.NewMetrics(reg)
		exception.SafeGo(log, metrics, "metrics server", func() {
			if err := monitoring.Serve(ctx, log, cfg.MetricsAddr, reg); err != nil {
				log.Warn("METRICS", "Metrics server stopped: ", err)
			}
		})
	}

	deps := maintenance.Deps{Sender: sender, Log: log, Metrics: metrics}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.RunMeta{
			RunID:     now.UTC().Format("20060102T150405.000000000Z"),
			StartedAt: now.UTC(),
			Endpoint:  cfg.WSURL,
			Mode:      cfg.Mode(),
			DryRun:    cfg.DryRun,
		})
		if err != nil {
			log.Error("CMD", err)
			return errors.ExitFailure
		}
		defer j.Close()
		log.Infof("CMD", "Journaling chunk outcomes to %s as run %s", cfg.JournalPath, j.RunID())
		deps.Recorder = j
	}

	chain, err := a.Dial(ctx, cfg.WSURL)
	if err != nil {
		log.Error("CMD", "Failed to connect to ", cfg.WSURL, ": ", err)
		return errors.ExitFailure
	}
	defer chain.Close()
	deps.Chain = chain

	report, err := maintenance.NewRunner(cfg, deps).Run(ctx)
	if err != nil {
		log.Error("CMD", err)
		return errors.CodeOf(err)
	}
	log.Infof("CMD", "Checked %d accounts, %d failed invariants", report.AccountsChecked, report.InvariantFailures)
	return errors.ExitOK
}

// Execute runs the CLI and exits the process with the run's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := DefaultApp()
	err := NewRootCmd(app).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(app.Stderr, "Error:", err)
		os.Exit(int(errors.ExitFailure))
	}
	os.Exit(int(app.ExitCode()))
}

// ReportCrash logs a panic that escaped Execute together with its stack.
func ReportCrash(w io.Writer, r interface{}) {
	_ = logx.NewWriter(w, logx.LevelError).Errorf("MAINTENANCE CRASHED: %v\n%s", r, debug.Stack())
}
