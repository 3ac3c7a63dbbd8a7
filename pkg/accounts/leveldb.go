package accounts

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

var (
	levelWriteOpt = opt.WriteOptions{Sync: true}
	levelReadOpt  = opt.ReadOptions{}
	levelScanOpt  = opt.ReadOptions{DontFillCache: true}
)

// LevelDB is a persistent implementation of AccountsDB using goleveldb.
type LevelDB struct {
	db    *leveldb.DB
	count atomic.Uint64
	// writeMu keeps the existence check and the write of Set/Delete together
	// so the account count stays exact.
	writeMu sync.Mutex
}

// NewLevelDB opens (or creates) a LevelDB account database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 64,
		BlockCacheCapacity:     8 * opt.MiB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	ldb := &LevelDB{db: db}
	var count uint64
	it := db.NewIterator(util.BytesPrefix([]byte(accountKeyPrefix)), &levelScanOpt)
	for it.Next() {
		count++
	}
	it.Release()
	if err := it.Error(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	ldb.count.Store(count)

	return ldb, nil
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *LevelDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	val, err := db.db.Get(makeAccountKey(pubkey), &levelReadOpt)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return DeserializeAccount(val)
}

// SetAccount stores an account.
func (db *LevelDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	data, err := SerializeAccount(account)
	if err != nil {
		return fmt.Errorf("failed to serialize account: %w", err)
	}
	key := makeAccountKey(pubkey)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	exists, err := db.db.Has(key, &levelReadOpt)
	if err != nil {
		return fmt.Errorf("failed to set account: %w", err)
	}
	if err := db.db.Put(key, data, &levelWriteOpt); err != nil {
		return fmt.Errorf("failed to set account: %w", err)
	}
	if !exists {
		db.count.Add(1)
	}
	return nil
}

// DeleteAccount removes an account.
func (db *LevelDB) DeleteAccount(pubkey types.Pubkey) error {
	key := makeAccountKey(pubkey)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	exists, err := db.db.Has(key, &levelReadOpt)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if !exists {
		return nil
	}
	if err := db.db.Delete(key, &levelWriteOpt); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	db.count.Add(^uint64(0))
	return nil
}

// HasAccount returns true if the account exists.
func (db *LevelDB) HasAccount(pubkey types.Pubkey) bool {
	exists, err := db.db.Has(makeAccountKey(pubkey), &levelReadOpt)
	return err == nil && exists
}

// GetAccountsCount returns the total number of accounts.
func (db *LevelDB) GetAccountsCount() uint64 {
	return db.count.Load()
}

// ForEach visits accounts in ascending pubkey order from a consistent snapshot.
func (db *LevelDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	snap, err := db.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	it := snap.NewIterator(util.BytesPrefix([]byte(accountKeyPrefix)), &levelScanOpt)
	defer it.Release()

	for it.Next() {
		pubkey, err := pubkeyFromKey(it.Key())
		if err != nil {
			return err
		}
		account, err := DeserializeAccount(it.Value())
		if err != nil {
			return fmt.Errorf("account %s: %w", pubkey, err)
		}
		if err := fn(pubkey, account); err != nil {
			return err
		}
	}
	return it.Error()
}

// Close closes the database.
func (db *LevelDB) Close() error {
	return db.db.Close()
}

var _ AccountsDB = (*LevelDB)(nil)
