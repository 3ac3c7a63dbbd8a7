package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Accounts.Backend)
	assert.Equal(t, filepath.Join("./data", "accounts"), cfg.Accounts.Path)
	assert.Equal(t, filepath.Join("./data", "journal.db"), cfg.Journal.DSN)
	assert.Equal(t, ":8899", cfg.RPC.Addr)
	assert.Equal(t, uint64(5), cfg.Pool.RewardRate)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/stakepool
accounts:
  backend: leveldb
rpc:
  addr: 127.0.0.1:9000
  burst: 10
pool:
  reward_rate: 7
`), 0o644))

	t.Setenv("STAKEPOOL_RPC_ADDR", "0.0.0.0:8899")
	t.Setenv("STAKEPOOL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "leveldb", cfg.Accounts.Backend)
	assert.Equal(t, "/var/lib/stakepool/accounts", cfg.Accounts.Path)
	assert.Equal(t, "0.0.0.0:8899", cfg.RPC.Addr)
	assert.Equal(t, 10, cfg.RPC.Burst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint64(7), cfg.Pool.RewardRate)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"backend":  func(c *Config) { c.Accounts.Backend = "rocksdb" },
		"driver":   func(c *Config) { c.Journal.Driver = "mysql" },
		"postgres": func(c *Config) { c.Journal.Driver = "postgres"; c.Journal.DSN = "" },
		"burst":    func(c *Config) { c.RPC.Burst = -1 },
		"decimals": func(c *Config) { c.Pool.ReceiptDecimals = 19 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}
