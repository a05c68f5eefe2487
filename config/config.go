package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mezonai/balances-maintenance/logx"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var ErrConflictingModes = errors.New("--fix-free-balance and --upgrade-accounts are mutually exclusive")

func Default() *Config {
	return &Config{
		WSURL:                  DefaultWSURL,
		LogLevel:               DefaultLogLevel,
		TransferCallsInBatch:   DefaultTransferCallsInBatch,
		UpgradeAccountsInBatch: DefaultUpgradeAccountsInBatch,
		PageSize:               DefaultPageSize,
		ProgressInterval:       DefaultProgressInterval,
	}
}

// Load reads a config file over the defaults. Files ending in .ini are read
// from their [maintenance] section, anything else is YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		file, err := ini.Load(path)
		if err != nil {
			return nil, err
		}
		if err := file.Section("maintenance").MapTo(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// NewViper returns a viper instance reading BALANCES_* environment
// variables, with dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper overlays every key set on v (changed flag or environment) onto
// base. base is left untouched.
func FromViper(base *Config, v *viper.Viper) *Config {
	cfg := *base
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str(KeyWSURL, &cfg.WSURL)
	str(KeyLogLevel, &cfg.LogLevel)
	str(KeyLogDir, &cfg.LogDir)
	flag(KeyDryRun, &cfg.DryRun)
	flag(KeyFixFreeBalance, &cfg.FixFreeBalance)
	flag(KeyUpgradeAccounts, &cfg.UpgradeAccounts)
	num(KeyTransferCallsInBatch, &cfg.TransferCallsInBatch)
	num(KeyUpgradeAccountsInBatch, &cfg.UpgradeAccountsInBatch)
	num(KeyPageSize, &cfg.PageSize)
	num(KeyProgressInterval, &cfg.ProgressInterval)
	str(KeyOutputDir, &cfg.OutputDir)
	str(KeyJournal, &cfg.JournalPath)
	str(KeyMetricsAddr, &cfg.MetricsAddr)
	return &cfg
}

func (c *Config) Validate() error {
	if c.FixFreeBalance && c.UpgradeAccounts {
		return ErrConflictingModes
	}
	if c.WSURL == "" {
		return fmt.Errorf("--%s must not be empty", KeyWSURL)
	}
	if _, err := logx.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	positive := []struct {
		key string
		val int
	}{
		{KeyTransferCallsInBatch, c.TransferCallsInBatch},
		{KeyUpgradeAccountsInBatch, c.UpgradeAccountsInBatch},
		{KeyPageSize, c.PageSize},
		{KeyProgressInterval, c.ProgressInterval},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("--%s must be positive, got %d", p.key, p.val)
		}
	}
	return nil
}

// Level is the parsed log level; call after Validate.
func (c *Config) Level() logx.Level {
	level, _ := logx.ParseLevel(c.LogLevel)
	return level
}
