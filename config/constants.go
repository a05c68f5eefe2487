package config

// Flag names, also used as viper keys.
const (
	KeyConfig                 = "config"
	KeyWSURL                  = "ws-url"
	KeyLogLevel               = "log-level"
	KeyLogDir                 = "log-dir"
	KeyDryRun                 = "dry-run"
	KeyFixFreeBalance         = "fix-free-balance"
	KeyUpgradeAccounts        = "upgrade-accounts"
	KeyTransferCallsInBatch   = "transfer-calls-in-batch"
	KeyUpgradeAccountsInBatch = "upgrade-accounts-in-batch"
	KeyPageSize               = "page-size"
	KeyProgressInterval       = "progress-interval"
	KeyOutputDir              = "output-dir"
	KeyJournal                = "journal"
	KeyMetricsAddr            = "metrics-addr"
)

const (
	EnvPrefix        = "BALANCES"
	SenderAccountEnv = "SENDER_ACCOUNT"

	DefaultWSURL                  = "localhost:9944"
	DefaultLogLevel               = "info"
	DefaultTransferCallsInBatch   = 64
	DefaultUpgradeAccountsInBatch = 128
	DefaultPageSize               = 1000
	DefaultProgressInterval       = 5000
)
