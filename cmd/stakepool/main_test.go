package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/snapshot"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().Run(append([]string{"stakepool"}, args...))
}

func writeGenesis(t *testing.T, dir string) (string, *crypto.Keypair) {
	t.Helper()
	keyPath := filepath.Join(dir, "authority.json")
	require.NoError(t, run(t, "keygen", "--out", keyPath))
	authority, err := crypto.LoadKeypair(keyPath)
	require.NoError(t, err)

	body := fmt.Sprintf(`authority: authority.json
mint: mint.json
reward_rate: 7
accounts:
  - pubkey: %s
    balance: "25.5"
`, authority.Pubkey())
	path := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, authority
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, run(t, "keygen", "--out", path))
	assert.Error(t, run(t, "keygen", "--out", path))
	require.NoError(t, run(t, "keygen", "--out", path, "--force"))
}

func TestInitExportImport(t *testing.T) {
	dir := t.TempDir()
	genesisPath, authority := writeGenesis(t, dir)
	dataDir := filepath.Join(dir, "data")

	require.NoError(t, run(t, "init", "--data-dir", dataDir, "--genesis", genesisPath))
	assert.FileExists(t, filepath.Join(dir, "mint.json"))

	state, ok, err := snapshot.LoadState(filepath.Join(dataDir, "state.json"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.Slot(2), state.Slot)

	// A second init must not touch the bootstrapped ledger.
	assert.Error(t, run(t, "init", "--data-dir", dataDir, "--genesis", genesisPath))

	snap := filepath.Join(dir, "ledger.tar.zst")
	require.NoError(t, run(t, "snapshot", "export", "--data-dir", dataDir, "--out", snap))
	require.NoError(t, run(t, "snapshot", "verify", "--in", snap))

	restoredDir := filepath.Join(dir, "restored")
	require.NoError(t, run(t, "snapshot", "import", "--data-dir", restoredDir, "--in", snap))

	restoredState, ok, err := snapshot.LoadState(filepath.Join(restoredDir, "state.json"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, restoredState)

	db, err := accounts.Open(accounts.BackendBadger, filepath.Join(restoredDir, "accounts"))
	require.NoError(t, err)
	defer db.Close()

	client := stakepool.NewClient(types.StakePoolProgramID)
	acc, err := db.GetAccount(client.Pool)
	require.NoError(t, err)
	require.NotNil(t, acc)
	record, err := stakepool.DecodePoolRecord(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), record.RewardRate)
	assert.Equal(t, authority.Pubkey(), record.Authority)
}

func TestImportRequiresInput(t *testing.T) {
	assert.Error(t, run(t, "snapshot", "import", "--data-dir", t.TempDir()))
	assert.Error(t, run(t, "snapshot", "verify"))
}
