package token

import "errors"

// Token Program errors
var (
	// ErrInsufficientFunds indicates insufficient token balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrInvalidMint = errors.New("invalid mint")

	// ErrMintMismatch indicates a token account's mint doesn't match the expected mint.
	ErrMintMismatch = errors.New("mint mismatch")

	ErrOwnerMismatch = errors.New("owner mismatch")

	ErrAccountFrozen = errors.New("account is frozen")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")

	// ErrInvalidAccountData indicates the account data is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")

	ErrInvalidInstruction     = errors.New("invalid instruction")
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidAccountOwner indicates the account is not owned by the Token Program.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	ErrAccountNotSigner   = errors.New("account is not a signer")
	ErrAccountNotWritable = errors.New("account is not writable")

	// ErrAuthorityMismatch indicates the authority doesn't match.
	ErrAuthorityMismatch = errors.New("authority mismatch")

	// ErrFixedSupply indicates the mint has a fixed supply (no mint authority).
	ErrFixedSupply = errors.New("fixed supply")

	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")

	ErrOverflow = errors.New("overflow")
)
