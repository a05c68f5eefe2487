package config

// Config is the run configuration. It is built once at startup and never
// mutated afterwards.
type Config struct {
	WSURL    string `yaml:"ws-url" ini:"ws_url"`
	LogLevel string `yaml:"log-level" ini:"log_level"`
	LogDir   string `yaml:"log-dir" ini:"log_dir"`

	DryRun          bool `yaml:"dry-run" ini:"dry_run"`
	FixFreeBalance  bool `yaml:"fix-free-balance" ini:"fix_free_balance"`
	UpgradeAccounts bool `yaml:"upgrade-accounts" ini:"upgrade_accounts"`

	TransferCallsInBatch   int `yaml:"transfer-calls-in-batch" ini:"transfer_calls_in_batch"`
	UpgradeAccountsInBatch int `yaml:"upgrade-accounts-in-batch" ini:"upgrade_accounts_in_batch"`
	PageSize               int `yaml:"page-size" ini:"page_size"`
	ProgressInterval       int `yaml:"progress-interval" ini:"progress_interval"`

	OutputDir   string `yaml:"output-dir" ini:"output_dir"`
	JournalPath string `yaml:"journal" ini:"journal"`
	MetricsAddr string `yaml:"metrics-addr" ini:"metrics_addr"`
}

// RemediationRequested reports whether the run will submit extrinsics and so
// needs a sender account.
func (c *Config) RemediationRequested() bool {
	return c.FixFreeBalance || c.UpgradeAccounts
}

// Mode names the selected run mode.
func (c *Config) Mode() string {
	switch {
	case c.FixFreeBalance:
		return KeyFixFreeBalance
	case c.UpgradeAccounts:
		return KeyUpgradeAccounts
	}
	return "audit"
}
