package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/genesis"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func newLedger(t *testing.T) (accounts.AccountsDB, *runtime.Executor) {
	t.Helper()
	authority, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	mint, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	alice, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	db := accounts.NewMemoryDB()
	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	exec := runtime.NewExecutor(db, registry, runtime.NewManualClock(time.Unix(1_700_000_000, 0)))

	g := &genesis.Genesis{
		Authority:       authority,
		Mint:            mint,
		RewardRate:      5,
		ReceiptDecimals: 9,
		Allocations: []genesis.Allocation{
			{Pubkey: authority.Pubkey(), Lamports: 10 * types.LamportsPerSOL},
			{Pubkey: alice.Pubkey(), Lamports: 3 * types.LamportsPerSOL},
		},
	}
	_, err = g.Apply(db, exec)
	require.NoError(t, err)
	return db, exec
}

func stateOf(exec *runtime.Executor) State {
	return State{Slot: exec.Slot(), LastTimestamp: exec.LastTimestamp()}
}

// writeArchive builds an archive by hand so tests can corrupt it.
func writeArchive(t *testing.T, path string, manifest *Manifest, db accounts.AccountsDB) {
	t.Helper()
	var records bytes.Buffer
	aw := NewAccountsWriter(&records)
	require.NoError(t, db.ForEach(aw.Write))
	require.NoError(t, aw.Flush())
	manifestJSON, err := json.Marshal(manifest)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{manifestEntry, manifestJSON},
		{accountsEntry, records.Bytes()},
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.data))}))
		_, err := tw.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
}

func TestExportAndLoad(t *testing.T) {
	db, exec := newLedger(t)
	path := filepath.Join(t.TempDir(), "snapshots", "ledger.tar.zst")

	manifest, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, manifest.Version)
	assert.Equal(t, uint64(2), manifest.Slot)
	assert.Equal(t, int64(1_700_000_000), manifest.LastTimestamp)
	assert.Equal(t, db.GetAccountsCount(), manifest.AccountsCount)

	want, err := accounts.ComputeStateHash(db)
	require.NoError(t, err)
	assert.Equal(t, want, manifest.StateHash)

	restored := accounts.NewMemoryDB()
	var stages []string
	result, err := NewLoader(restored, LoadConfig{
		VerifyBeforeLoad: true,
		ProgressInterval: 1,
		ProgressCallback: func(p LoadProgress) { stages = append(stages, p.Stage) },
	}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, result.StateHash)
	assert.Equal(t, manifest.AccountsCount, result.AccountsLoaded)
	assert.Equal(t, manifest.LamportsTotal, result.LamportsTotal)
	assert.Equal(t, stateOf(exec), result.Manifest.State())
	assert.Equal(t, "verifying", stages[0])
	assert.Equal(t, "done", stages[len(stages)-1])

	err = db.ForEach(func(pk types.Pubkey, acc *types.Account) error {
		got, err := restored.GetAccount(pk)
		require.NoError(t, err)
		require.NotNil(t, got, pk.String())
		assert.Equal(t, acc.Lamports, got.Lamports)
		assert.Equal(t, acc.Owner, got.Owner)
		assert.True(t, bytes.Equal(acc.Data, got.Data), pk.String())
		return nil
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging files are removed")
}

func TestLoadIntoBadger(t *testing.T) {
	db, exec := newLedger(t)
	path := filepath.Join(t.TempDir(), "ledger.tar.zst")
	manifest, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	restored, err := accounts.Open(accounts.BackendBadger, filepath.Join(t.TempDir(), "accounts"))
	require.NoError(t, err)
	defer restored.Close()

	result, err := Load(path, restored)
	require.NoError(t, err)
	assert.Equal(t, manifest.StateHash, result.StateHash)
}

func TestLoadRejectsPopulatedLedger(t *testing.T) {
	db, exec := newLedger(t)
	path := filepath.Join(t.TempDir(), "ledger.tar.zst")
	_, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	_, err = Load(path, db)
	assert.ErrorIs(t, err, ErrLedgerNotEmpty)
}

func TestLoadHashMismatchRollsBack(t *testing.T) {
	db, exec := newLedger(t)
	path := filepath.Join(t.TempDir(), "ledger.tar.zst")
	manifest, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	bad := *manifest
	bad.StateHash = types.SHA256([]byte("tampered"))
	writeArchive(t, path, &bad, db)

	_, err = Verify(path)
	assert.ErrorIs(t, err, ErrHashMismatch)

	restored := accounts.NewMemoryDB()
	_, err = Load(path, restored)
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.Zero(t, restored.GetAccountsCount())
}

func TestVerifyCountMismatch(t *testing.T) {
	db, exec := newLedger(t)
	path := filepath.Join(t.TempDir(), "ledger.tar.zst")
	manifest, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	result, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, manifest.StateHash, result.StateHash)

	bad := *manifest
	bad.AccountsCount++
	writeArchive(t, path, &bad, db)
	_, err = Verify(path)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestQuickVerify(t *testing.T) {
	db, exec := newLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.tar.zst")
	_, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	manifest, err := QuickVerify(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), manifest.Slot)

	garbage := filepath.Join(dir, "garbage.tar.zst")
	require.NoError(t, os.WriteFile(garbage, []byte("not a snapshot"), 0o644))
	_, err = QuickVerify(garbage)
	assert.Error(t, err)

	bad := *manifest
	bad.Version = 99
	writeArchive(t, path, &bad, db)
	_, err = QuickVerify(path)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestAccountsReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	aw := NewAccountsWriter(&buf)
	pk := types.SHA256([]byte("key"))
	require.NoError(t, aw.Write(types.Pubkey(pk), types.NewAccountWithData(42, []byte{1, 2, 3}, types.SystemProgramID)))
	require.NoError(t, aw.Flush())

	data := buf.Bytes()
	r := NewAccountsReader(bytes.NewReader(data[:len(data)-1]))
	_, err := r.ReadNext()
	assert.ErrorIs(t, err, ErrInvalidRecord)

	r = NewAccountsReader(bytes.NewReader(data))
	entry, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(42), entry.Account.Lamports)
	assert.Equal(t, uint64(1), r.Count())
}

func TestStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node", "state.json")

	_, ok, err := LoadState(path)
	require.NoError(t, err)
	assert.False(t, ok)

	want := State{Slot: 42, LastTimestamp: 1_700_000_123}
	require.NoError(t, SaveState(path, want))
	got, ok, err := LoadState(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = LoadState(path)
	assert.Error(t, err)
}

func TestFileDigest(t *testing.T) {
	db, exec := newLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.tar.zst")
	_, err := Export(db, stateOf(exec), path)
	require.NoError(t, err)

	first, err := FileDigest(path)
	require.NoError(t, err)
	again, err := FileDigest(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.False(t, first.IsZero())

	other := filepath.Join(dir, "other.bin")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	digest, err := FileDigest(other)
	require.NoError(t, err)
	assert.NotEqual(t, first, digest)

	_, err = FileDigest(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
