package stakepool

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// PDA seeds
const (
	PoolSeed      = "stake_pool"
	UserStakeSeed = "user_stake"
	ReceiptSeed   = "receipt"
)

// FindPoolAddress derives the pool account address and its bump.
func FindPoolAddress(programID types.Pubkey) (types.Pubkey, uint8) {
	pda, bump, _ := syscall.FindProgramAddressSync([][]byte{[]byte(PoolSeed)}, programID)
	return pda, bump
}

// FindUserStakeAddress derives owner's user stake account in pool.
func FindUserStakeAddress(programID, pool, owner types.Pubkey) (types.Pubkey, uint8) {
	pda, bump, _ := syscall.FindProgramAddressSync(userStakeSeeds(pool, owner), programID)
	return pda, bump
}

// FindReceiptAddress derives the receipt token account the program creates
// for owner on first stake.
func FindReceiptAddress(programID, pool, owner types.Pubkey) (types.Pubkey, uint8) {
	pda, bump, _ := syscall.FindProgramAddressSync(receiptSeeds(pool, owner), programID)
	return pda, bump
}

func userStakeSeeds(pool, owner types.Pubkey) [][]byte {
	return [][]byte{[]byte(UserStakeSeed), pool[:], owner[:]}
}

func receiptSeeds(pool, owner types.Pubkey) [][]byte {
	return [][]byte{[]byte(ReceiptSeed), pool[:], owner[:]}
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	return append(append([][]byte{}, seeds...), []byte{bump})
}

// VerifyPoolAccount checks acc is the pool PDA and is owned by programID.
func VerifyPoolAccount(acc *syscall.AccountInfo, programID types.Pubkey) error {
	expected, _ := FindPoolAddress(programID)
	if acc.Pubkey != expected {
		return fmt.Errorf("%w: pool %s, expected %s", ErrAddressMismatch, acc.Pubkey, expected)
	}
	return VerifyOwner(acc, programID)
}

// VerifyUserStakeAccount checks acc is owner's user stake PDA. Ownership is
// checked separately because the account may not exist yet.
func VerifyUserStakeAccount(acc *syscall.AccountInfo, programID, pool, owner types.Pubkey) error {
	expected, _ := FindUserStakeAddress(programID, pool, owner)
	if acc.Pubkey != expected {
		return fmt.Errorf("%w: user stake %s, expected %s", ErrAddressMismatch, acc.Pubkey, expected)
	}
	return nil
}

// VerifyOwner checks acc is owned by programID.
func VerifyOwner(acc *syscall.AccountInfo, programID types.Pubkey) error {
	if acc.Owner != programID {
		return fmt.Errorf("%w: %s owned by %s", ErrOwnershipMismatch, acc.Pubkey, acc.Owner)
	}
	return nil
}

// VerifySigner checks acc signed the transaction.
func VerifySigner(acc *syscall.AccountInfo) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, acc.Pubkey)
	}
	return nil
}

// VerifyWritable checks acc was passed writable.
func VerifyWritable(acc *syscall.AccountInfo) error {
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, acc.Pubkey)
	}
	return nil
}

// VerifyProgramAccount checks acc is the given program.
func VerifyProgramAccount(acc *syscall.AccountInfo, programID types.Pubkey) error {
	if acc.Pubkey != programID {
		return fmt.Errorf("%w: program %s, expected %s", ErrAddressMismatch, acc.Pubkey, programID)
	}
	return nil
}

// isUnallocated reports whether acc has never been created.
func isUnallocated(acc *syscall.AccountInfo) bool {
	return acc.Owner == types.SystemProgramID && len(acc.Data) == 0
}
