// Package config loads node configuration from a YAML file, STAKEPOOL_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. STAKEPOOL_RPC_ADDR.
const EnvPrefix = "STAKEPOOL"

// Config is the full node configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Log      LogConfig      `mapstructure:"log"`
	Genesis  GenesisConfig  `mapstructure:"genesis"`
	Pool     PoolConfig     `mapstructure:"pool"`
}

// AccountsConfig selects the accounts storage backend.
type AccountsConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Addr        string   `mapstructure:"addr"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	Burst       int      `mapstructure:"burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// Airdrop caps requestAirdrop in lamports; zero disables the faucet.
	Airdrop uint64 `mapstructure:"airdrop"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// JournalConfig selects the transaction history store.
type JournalConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	Env   string `mapstructure:"env"`
}

// GenesisConfig points at the genesis spec used by `init`.
type GenesisConfig struct {
	File string `mapstructure:"file"`
}

// PoolConfig holds pool parameters used when bootstrapping a ledger.
type PoolConfig struct {
	RewardRate      uint64 `mapstructure:"reward_rate"`
	ReceiptDecimals uint8  `mapstructure:"receipt_decimals"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		Accounts: AccountsConfig{
			Backend: "badger",
		},
		RPC: RPCConfig{
			Addr:        ":8899",
			RateLimit:   100,
			Burst:       200,
			CORSOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Journal: JournalConfig{
			Driver: "sqlite",
		},
		Log: LogConfig{
			Level: "info",
			Env:   "dev",
		},
		Pool: PoolConfig{
			RewardRate:      5,
			ReceiptDecimals: 9,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("accounts.backend", d.Accounts.Backend)
	v.SetDefault("accounts.path", d.Accounts.Path)
	v.SetDefault("rpc.addr", d.RPC.Addr)
	v.SetDefault("rpc.rate_limit", d.RPC.RateLimit)
	v.SetDefault("rpc.burst", d.RPC.Burst)
	v.SetDefault("rpc.cors_origins", d.RPC.CORSOrigins)
	v.SetDefault("rpc.airdrop", d.RPC.Airdrop)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("journal.driver", d.Journal.Driver)
	v.SetDefault("journal.dsn", d.Journal.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.env", d.Log.Env)
	v.SetDefault("genesis.file", d.Genesis.File)
	v.SetDefault("pool.reward_rate", d.Pool.RewardRate)
	v.SetDefault("pool.receipt_decimals", d.Pool.ReceiptDecimals)
}

// Load reads configuration. An empty path skips the config file; a missing
// file at an explicit path is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Fill()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fill derives paths that default relative to the data directory.
func (c *Config) Fill() {
	if c.Accounts.Path == "" && c.Accounts.Backend != "memory" {
		c.Accounts.Path = filepath.Join(c.DataDir, "accounts")
	}
	if c.Journal.Driver == "sqlite" && c.Journal.DSN == "" {
		c.Journal.DSN = filepath.Join(c.DataDir, "journal.db")
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Accounts.Backend {
	case "memory", "badger", "leveldb":
	default:
		return fmt.Errorf("accounts.backend: unknown backend %q", c.Accounts.Backend)
	}
	switch c.Journal.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver)
	}
	if c.Journal.Driver == "postgres" && c.Journal.DSN == "" {
		return errors.New("journal.dsn is required for postgres")
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return errors.New("rpc.rate_limit and rpc.burst must not be negative")
	}
	if c.Pool.ReceiptDecimals > 18 {
		return fmt.Errorf("pool.receipt_decimals: %d exceeds 18", c.Pool.ReceiptDecimals)
	}
	return nil
}
