package token

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// tokenOwned fetches the account at index and checks it belongs to this program.
func tokenOwned(ctx *syscall.ExecutionContext, index int, name string, writable bool) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(index)
	if err != nil {
		return nil, err
	}
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrInvalidAccountOwner, name, acc.Owner)
	}
	if writable && !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, name)
	}
	return acc, nil
}

func requireAccounts(ctx *syscall.ExecutionContext, name string, n int) error {
	if ctx.AccountCount() < n {
		return fmt.Errorf("%w: %s requires %d accounts, got %d",
			ErrInvalidNumberOfAccounts, name, n, ctx.AccountCount())
	}
	return nil
}

// handleInitializeMint handles the InitializeMint instruction.
// Account layout:
//
//	[0] mint (writable)
func handleInitializeMint(ctx *syscall.ExecutionContext, inst *InitializeMintInstruction) error {
	if err := requireAccounts(ctx, "InitializeMint", 1); err != nil {
		return err
	}

	mintAcc, err := tokenOwned(ctx, 0, "mint", true)
	if err != nil {
		return err
	}
	if len(mintAcc.Data) < MintSize {
		return fmt.Errorf("%w: mint account data too small, expected %d bytes",
			ErrInvalidAccountData, MintSize)
	}
	if existing, err := DeserializeMint(mintAcc.Data); err == nil && existing.IsInitialized {
		return ErrAlreadyInitialized
	}

	mint := NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority)
	copy(mintAcc.Data, mint.Serialize())

	ctx.Logf("InitializeMint %s decimals=%d", mintAcc.Pubkey, inst.Decimals)
	return nil
}

// handleInitializeAccount handles the InitializeAccount instruction.
// Account layout:
//
//	[0] account (writable)
//	[1] mint
//	[2] owner
func handleInitializeAccount(ctx *syscall.ExecutionContext) error {
	if err := requireAccounts(ctx, "InitializeAccount", 3); err != nil {
		return err
	}

	tokenAcc, err := tokenOwned(ctx, 0, "token account", true)
	if err != nil {
		return err
	}
	mintAcc, err := tokenOwned(ctx, 1, "mint", false)
	if err != nil {
		return err
	}
	ownerAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return err
	}

	if len(tokenAcc.Data) < TokenAccountSize {
		return fmt.Errorf("%w: token account data too small, expected %d bytes",
			ErrInvalidAccountData, TokenAccountSize)
	}
	if existing, err := DeserializeTokenAccount(tokenAcc.Data); err == nil && existing.IsInitialized() {
		return ErrAlreadyInitialized
	}

	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: mint not initialized", ErrInvalidMint)
	}

	account := NewTokenAccount(mintAcc.Pubkey, ownerAcc.Pubkey)
	copy(tokenAcc.Data, account.Serialize())
	return nil
}

// loadTokenAccount decodes an initialized, unfrozen token account.
func loadTokenAccount(acc *syscall.AccountInfo, name string) (*TokenAccount, error) {
	account, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !account.IsInitialized() {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInitialized)
	}
	if account.IsFrozen() {
		return nil, fmt.Errorf("%s: %w", name, ErrAccountFrozen)
	}
	return account, nil
}

// loadMint decodes an initialized mint.
func loadMint(acc *syscall.AccountInfo) (*Mint, error) {
	mint, err := DeserializeMint(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	return mint, nil
}

func signer(ctx *syscall.ExecutionContext, index int, name string) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(index)
	if err != nil {
		return nil, err
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, name)
	}
	return acc, nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] owner (signer)
func handleTransfer(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	if err := requireAccounts(ctx, "Transfer", 3); err != nil {
		return err
	}

	sourceAcc, err := tokenOwned(ctx, 0, "source", true)
	if err != nil {
		return err
	}
	destAcc, err := tokenOwned(ctx, 1, "destination", true)
	if err != nil {
		return err
	}
	authorityAcc, err := signer(ctx, 2, "owner")
	if err != nil {
		return err
	}

	source, err := loadTokenAccount(sourceAcc, "source")
	if err != nil {
		return err
	}
	dest, err := loadTokenAccount(destAcc, "destination")
	if err != nil {
		return err
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}
	if source.Owner != authorityAcc.Pubkey {
		return ErrOwnerMismatch
	}
	if inst.Amount > source.Amount {
		return ErrInsufficientFunds
	}

	// Self-transfer is a no-op once validated.
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}
	if dest.Amount > ^uint64(0)-inst.Amount {
		return ErrOverflow
	}

	source.Amount -= inst.Amount
	dest.Amount += inst.Amount

	copy(sourceAcc.Data, source.Serialize())
	copy(destAcc.Data, dest.Serialize())
	return nil
}

// handleMintTo handles the MintTo instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint_authority (signer)
func handleMintTo(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	if err := requireAccounts(ctx, "MintTo", 3); err != nil {
		return err
	}

	mintAcc, err := tokenOwned(ctx, 0, "mint", true)
	if err != nil {
		return err
	}
	destAcc, err := tokenOwned(ctx, 1, "destination", true)
	if err != nil {
		return err
	}
	authorityAcc, err := signer(ctx, 2, "mint authority")
	if err != nil {
		return err
	}

	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	dest, err := loadTokenAccount(destAcc, "destination")
	if err != nil {
		return err
	}
	if dest.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authorityAcc.Pubkey {
		return ErrAuthorityMismatch
	}
	if mint.Supply > ^uint64(0)-inst.Amount || dest.Amount > ^uint64(0)-inst.Amount {
		return ErrOverflow
	}

	mint.Supply += inst.Amount
	dest.Amount += inst.Amount

	copy(mintAcc.Data, mint.Serialize())
	copy(destAcc.Data, dest.Serialize())

	ctx.Logf("MintTo %d to %s", inst.Amount, destAcc.Pubkey)
	return nil
}

// handleBurn handles the Burn instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] mint (writable)
//	[2] owner (signer)
func handleBurn(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	if err := requireAccounts(ctx, "Burn", 3); err != nil {
		return err
	}

	sourceAcc, err := tokenOwned(ctx, 0, "source", true)
	if err != nil {
		return err
	}
	mintAcc, err := tokenOwned(ctx, 1, "mint", true)
	if err != nil {
		return err
	}
	authorityAcc, err := signer(ctx, 2, "owner")
	if err != nil {
		return err
	}

	source, err := loadTokenAccount(sourceAcc, "source")
	if err != nil {
		return err
	}
	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	if source.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	if source.Owner != authorityAcc.Pubkey {
		return ErrOwnerMismatch
	}
	if inst.Amount > source.Amount || inst.Amount > mint.Supply {
		return ErrInsufficientFunds
	}

	source.Amount -= inst.Amount
	mint.Supply -= inst.Amount

	copy(sourceAcc.Data, source.Serialize())
	copy(mintAcc.Data, mint.Serialize())

	ctx.Logf("Burn %d from %s", inst.Amount, sourceAcc.Pubkey)
	return nil
}
