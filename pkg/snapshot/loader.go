package snapshot

import (
	"errors"
	"fmt"
	"io"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// LoadResult contains the result of loading a snapshot.
type LoadResult struct {
	Manifest       *Manifest
	AccountsLoaded uint64
	LamportsTotal  uint64
	// StateHash is recomputed from the loaded ledger.
	StateHash types.Hash
}

// LoadProgress represents the progress of loading a snapshot.
type LoadProgress struct {
	Stage             string
	AccountsProcessed uint64
	AccountsTotal     uint64
}

// ProgressCallback is called with load progress updates.
type ProgressCallback func(progress LoadProgress)

// LoadConfig contains configuration for loading a snapshot.
type LoadConfig struct {
	// VerifyBeforeLoad reads the archive once to check its hash before
	// touching the ledger.
	VerifyBeforeLoad bool
	// ProgressCallback is called with progress updates.
	ProgressCallback ProgressCallback
	// ProgressInterval is the number of accounts between callbacks.
	ProgressInterval uint64
}

// DefaultLoadConfig returns a default load configuration.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{ProgressInterval: 10_000}
}

// Loader loads snapshots into an AccountsDB.
type Loader struct {
	config LoadConfig
	db     accounts.AccountsDB
}

// NewLoader creates a new snapshot loader.
func NewLoader(db accounts.AccountsDB, config LoadConfig) *Loader {
	if config.ProgressInterval == 0 {
		config.ProgressInterval = DefaultLoadConfig().ProgressInterval
	}
	return &Loader{config: config, db: db}
}

// Load imports the snapshot at path into db with the default configuration.
func Load(path string, db accounts.AccountsDB) (*LoadResult, error) {
	return NewLoader(db, DefaultLoadConfig()).Load(path)
}

// Load imports the archive at path. The ledger must be empty. If the
// recomputed state hash differs from the manifest's, the imported accounts
// are removed again and ErrHashMismatch is returned.
func (l *Loader) Load(path string) (*LoadResult, error) {
	if n := l.db.GetAccountsCount(); n != 0 {
		return nil, fmt.Errorf("%w: %d accounts present", ErrLedgerNotEmpty, n)
	}

	if l.config.VerifyBeforeLoad {
		l.report("verifying", 0, 0)
		if _, err := Verify(path); err != nil {
			return nil, fmt.Errorf("snapshot verification failed: %w", err)
		}
	}

	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	manifest := archive.Manifest()

	reader, err := archive.Accounts()
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Manifest: manifest}
	var loaded []types.Pubkey
	rollback := func(cause error) error {
		for _, pk := range loaded {
			if err := l.db.DeleteAccount(pk); err != nil {
				return errors.Join(cause, fmt.Errorf("rollback %s: %w", pk, err))
			}
		}
		return cause
	}

	for {
		entry, err := reader.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, rollback(err)
		}
		if err := l.db.SetAccount(entry.Pubkey, entry.Account); err != nil {
			return nil, rollback(fmt.Errorf("store %s: %w", entry.Pubkey, err))
		}
		loaded = append(loaded, entry.Pubkey)
		result.AccountsLoaded++
		result.LamportsTotal += uint64(entry.Account.Lamports)
		if result.AccountsLoaded%l.config.ProgressInterval == 0 {
			l.report("loading", result.AccountsLoaded, manifest.AccountsCount)
		}
	}

	if result.AccountsLoaded != manifest.AccountsCount {
		return nil, rollback(fmt.Errorf("%w: manifest lists %d accounts, archive holds %d",
			ErrInvalidArchive, manifest.AccountsCount, result.AccountsLoaded))
	}

	l.report("hashing", result.AccountsLoaded, manifest.AccountsCount)
	hash, err := accounts.ComputeStateHash(l.db)
	if err != nil {
		return nil, rollback(err)
	}
	if hash != manifest.StateHash {
		return nil, rollback(fmt.Errorf("%w: state hash %s, manifest %s", ErrHashMismatch, hash, manifest.StateHash))
	}
	result.StateHash = hash
	l.report("done", result.AccountsLoaded, manifest.AccountsCount)
	return result, nil
}

func (l *Loader) report(stage string, processed, total uint64) {
	if l.config.ProgressCallback != nil {
		l.config.ProgressCallback(LoadProgress{
			Stage:             stage,
			AccountsProcessed: processed,
			AccountsTotal:     total,
		})
	}
}
