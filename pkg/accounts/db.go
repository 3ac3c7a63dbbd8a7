// Package accounts provides the ledger's account storage backends.
package accounts

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Supported storage backends.
const (
	BackendMemory  = "memory"
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
)

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	DeleteAccount(pubkey types.Pubkey) error

	HasAccount(pubkey types.Pubkey) bool

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// ForEach calls fn for every stored account in ascending pubkey order.
	// Iteration stops at the first error, which is returned.
	ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error

	Close() error
}

// Open opens an accounts database for the named backend. The path is ignored
// by the memory backend.
func Open(backend, path string) (AccountsDB, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryDB(), nil
	case BackendBadger:
		return NewBadgerDB(path)
	case BackendLevelDB:
		return NewLevelDB(path)
	default:
		return nil, fmt.Errorf("unknown accounts backend %q", backend)
	}
}
