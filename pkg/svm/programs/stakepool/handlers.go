package stakepool

import (
	"fmt"
	"math/bits"

	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/token"
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// loadPool verifies the pool account and decodes its record.
func loadPool(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo) (*PoolRecord, error) {
	if err := VerifyPoolAccount(acc, ctx.ProgramID); err != nil {
		return nil, err
	}
	if err := VerifyWritable(acc); err != nil {
		return nil, err
	}
	record, err := DecodePoolRecord(acc.Data)
	if err != nil {
		return nil, err
	}
	if !record.IsInitialized {
		return nil, ErrNotInitialized
	}
	return record, nil
}

// loadUserStake decodes the user stake record at acc. The returned flag is
// false when the account has not been created yet.
func loadUserStake(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo, owner types.Pubkey) (*UserStakeRecord, bool, error) {
	if isUnallocated(acc) {
		return &UserStakeRecord{}, false, nil
	}
	if err := VerifyOwner(acc, ctx.ProgramID); err != nil {
		return nil, false, err
	}
	user, err := DecodeUserStake(acc.Data)
	if err != nil {
		return nil, false, err
	}
	if user.IsInitialized && user.Owner != owner {
		return nil, false, fmt.Errorf("%w: user stake belongs to %s", ErrOwnershipMismatch, user.Owner)
	}
	return user, true, nil
}

// requireStake loads an existing, non-empty user stake record.
func requireStake(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo, owner types.Pubkey) (*UserStakeRecord, error) {
	user, exists, err := loadUserStake(ctx, acc, owner)
	if err != nil {
		return nil, err
	}
	if !exists || !user.IsInitialized || user.Amount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStakeFound, owner)
	}
	return user, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrArithmeticUnderflow, a, b)
	}
	return diff, nil
}

// createPDAAccount allocates a rent-exempt account at a PDA of the executing
// program via the system program, funded by payer.
//
// Anyone can send lamports to a PDA before it is created. A prefunded
// account is topped up to the rent-exempt minimum, then allocated and
// assigned in place.
func createPDAAccount(ctx *syscall.ExecutionContext, payer types.Pubkey, acc *syscall.AccountInfo, space uint64, owner types.Pubkey, seeds [][]byte) error {
	rent := uint64(types.RentExemptMinimum(space))
	account := acc.Pubkey
	if *acc.Lamports == 0 {
		return hostError(ctx.Invoke(system.CreateAccount(payer, account, rent, space, owner), seeds))
	}

	if *acc.Lamports < rent {
		if err := hostError(ctx.Invoke(system.Transfer(payer, account, rent-*acc.Lamports))); err != nil {
			return err
		}
	}
	if err := hostError(ctx.Invoke(system.Allocate(account, space), seeds)); err != nil {
		return err
	}
	return hostError(ctx.Invoke(system.Assign(account, owner), seeds))
}

// handleInitialize creates the pool record. The pool account is allocated
// at its PDA if it does not exist yet, funded by the authority.
func handleInitialize(ctx *syscall.ExecutionContext, req *InitializeRequest) error {
	accs, err := initializeAccounts(ctx)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.Authority); err != nil {
		return err
	}
	if err := VerifyWritable(accs.Pool); err != nil {
		return err
	}

	poolAddr, bump := FindPoolAddress(ctx.ProgramID)
	if accs.Pool.Pubkey != poolAddr {
		return fmt.Errorf("%w: pool %s, expected %s", ErrAddressMismatch, accs.Pool.Pubkey, poolAddr)
	}
	if isUnallocated(accs.Pool) {
		if err := VerifyWritable(accs.Authority); err != nil {
			return err
		}
		seeds := withBump([][]byte{[]byte(PoolSeed)}, bump)
		if err := createPDAAccount(ctx, accs.Authority.Pubkey, accs.Pool, PoolAccountSize, ctx.ProgramID, seeds); err != nil {
			return err
		}
	}
	if err := VerifyOwner(accs.Pool, ctx.ProgramID); err != nil {
		return err
	}

	existing, err := DecodePoolRecord(accs.Pool.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized {
		return ErrAlreadyInitialized
	}

	if err := verifyReceiptMint(accs.ReceiptMint, req.ReceiptMint, poolAddr); err != nil {
		return err
	}

	record := &PoolRecord{
		RewardRate:      req.RewardRate,
		LastAccrualTime: ctx.UnixTimestamp,
		Authority:       accs.Authority.Pubkey,
		ReceiptMint:     req.ReceiptMint,
		IsInitialized:   true,
	}
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("pool initialized: authority=%s mint=%s rate=%d%%", record.Authority, record.ReceiptMint, record.RewardRate)
	return nil
}

// verifyReceiptMint checks the mint passed to Initialize is an empty token
// mint whose authority is the pool.
func verifyReceiptMint(acc *syscall.AccountInfo, expected, pool types.Pubkey) error {
	if acc.Pubkey != expected {
		return fmt.Errorf("%w: account %s, payload %s", ErrInvalidReceiptMint, acc.Pubkey, expected)
	}
	if acc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: owned by %s", ErrInvalidReceiptMint, acc.Owner)
	}
	mint, err := token.DeserializeMint(acc.Data)
	if err != nil || !mint.IsInitialized {
		return fmt.Errorf("%w: not an initialized mint", ErrInvalidReceiptMint)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != pool {
		return fmt.Errorf("%w: mint authority is not the pool", ErrInvalidReceiptMint)
	}
	if mint.Supply != 0 {
		return fmt.Errorf("%w: supply %d", ErrInvalidReceiptMint, mint.Supply)
	}
	return nil
}

// handleStake moves lamports into the pool and mints the same amount of
// receipt tokens to the depositor.
func handleStake(ctx *syscall.ExecutionContext, req *StakeRequest) error {
	accs, err := stakeAccounts(ctx)
	if err != nil {
		return err
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}

	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.Depositor); err != nil {
		return err
	}
	for _, acc := range []*syscall.AccountInfo{accs.Depositor, accs.UserStake, accs.ReceiptMint, accs.ReceiptAccount} {
		if err := VerifyWritable(acc); err != nil {
			return err
		}
	}
	if err := VerifyProgramAccount(accs.TokenProgram, types.TokenProgramID); err != nil {
		return err
	}
	if err := VerifyProgramAccount(accs.SystemProgram, types.SystemProgramID); err != nil {
		return err
	}
	if accs.ReceiptMint.Pubkey != record.ReceiptMint {
		return fmt.Errorf("%w: %s", ErrInvalidReceiptMint, accs.ReceiptMint.Pubkey)
	}

	pool := accs.Pool.Pubkey
	depositor := accs.Depositor.Pubkey
	if err := VerifyUserStakeAccount(accs.UserStake, ctx.ProgramID, pool, depositor); err != nil {
		return err
	}
	user, exists, err := loadUserStake(ctx, accs.UserStake, depositor)
	if err != nil {
		return err
	}

	totalStaked, err := checkedAdd(record.TotalStaked, req.Amount)
	if err != nil {
		return err
	}
	totalReceipt, err := checkedAdd(record.TotalReceipt, req.Amount)
	if err != nil {
		return err
	}
	userAmount, err := checkedAdd(user.Amount, req.Amount)
	if err != nil {
		return err
	}

	if !exists {
		_, bump := FindUserStakeAddress(ctx.ProgramID, pool, depositor)
		seeds := withBump(userStakeSeeds(pool, depositor), bump)
		if err := createPDAAccount(ctx, depositor, accs.UserStake, UserStakeSize, ctx.ProgramID, seeds); err != nil {
			return err
		}
	}

	if err := hostError(ctx.TransferLamports(depositor, pool, req.Amount)); err != nil {
		return err
	}

	if err := ensureReceiptAccount(ctx, accs, pool, depositor); err != nil {
		return err
	}

	_, poolBump := FindPoolAddress(ctx.ProgramID)
	mintTo := token.MintTo(record.ReceiptMint, accs.ReceiptAccount.Pubkey, pool, req.Amount)
	if err := hostError(ctx.Invoke(mintTo, withBump([][]byte{[]byte(PoolSeed)}, poolBump))); err != nil {
		return err
	}

	user.IsInitialized = true
	user.Owner = depositor
	user.Amount = userAmount
	if err := user.Encode(accs.UserStake.Data); err != nil {
		return err
	}
	record.TotalStaked = totalStaked
	record.TotalReceipt = totalReceipt
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("staked %d lamports for %s", req.Amount, depositor)
	return nil
}

// ensureReceiptAccount creates and initializes the depositor's canonical
// receipt token account on first use. Any other token account is left to
// the token program to validate.
func ensureReceiptAccount(ctx *syscall.ExecutionContext, accs *StakeAccounts, pool, depositor types.Pubkey) error {
	canonical, bump := FindReceiptAddress(ctx.ProgramID, pool, depositor)
	if accs.ReceiptAccount.Pubkey != canonical || !isUnallocated(accs.ReceiptAccount) {
		return nil
	}
	seeds := withBump(receiptSeeds(pool, depositor), bump)
	if err := createPDAAccount(ctx, depositor, accs.ReceiptAccount, token.TokenAccountSize, types.TokenProgramID, seeds); err != nil {
		return err
	}
	return hostError(ctx.Invoke(token.InitializeAccount(canonical, accs.ReceiptMint.Pubkey, depositor)))
}

// handleUnstake burns receipt tokens and returns the same amount of lamports.
func handleUnstake(ctx *syscall.ExecutionContext, req *UnstakeRequest) error {
	accs, err := unstakeAccounts(ctx)
	if err != nil {
		return err
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}

	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.Depositor); err != nil {
		return err
	}
	for _, acc := range []*syscall.AccountInfo{accs.Depositor, accs.UserStake, accs.ReceiptMint, accs.ReceiptAccount} {
		if err := VerifyWritable(acc); err != nil {
			return err
		}
	}
	if err := VerifyProgramAccount(accs.TokenProgram, types.TokenProgramID); err != nil {
		return err
	}
	if accs.ReceiptMint.Pubkey != record.ReceiptMint {
		return fmt.Errorf("%w: %s", ErrInvalidReceiptMint, accs.ReceiptMint.Pubkey)
	}

	pool := accs.Pool.Pubkey
	depositor := accs.Depositor.Pubkey
	if err := VerifyUserStakeAccount(accs.UserStake, ctx.ProgramID, pool, depositor); err != nil {
		return err
	}

	if req.Amount > record.TotalStaked {
		return fmt.Errorf("%w: pool holds %d, requested %d", ErrInsufficientFunds, record.TotalStaked, req.Amount)
	}
	user, exists, err := loadUserStake(ctx, accs.UserStake, depositor)
	if err != nil {
		return err
	}
	if !exists || !user.IsInitialized {
		return fmt.Errorf("%w: %s", ErrNoStakeFound, depositor)
	}
	if req.Amount > user.Amount {
		return fmt.Errorf("%w: staked %d, requested %d", ErrInsufficientFunds, user.Amount, req.Amount)
	}
	if user.Amount-req.Amount < user.Debt {
		return fmt.Errorf("%w: %d lamports locked against BNPL debt", ErrInsufficientFunds, user.Debt)
	}

	burn := token.Burn(accs.ReceiptAccount.Pubkey, record.ReceiptMint, depositor, req.Amount)
	if err := hostError(ctx.Invoke(burn)); err != nil {
		return err
	}
	if err := hostError(ctx.TransferLamports(pool, depositor, req.Amount)); err != nil {
		return err
	}

	if record.TotalStaked, err = checkedSub(record.TotalStaked, req.Amount); err != nil {
		return err
	}
	if record.TotalReceipt, err = checkedSub(record.TotalReceipt, req.Amount); err != nil {
		return err
	}
	if user.Amount, err = checkedSub(user.Amount, req.Amount); err != nil {
		return err
	}

	if err := user.Encode(accs.UserStake.Data); err != nil {
		return err
	}
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("unstaked %d lamports for %s", req.Amount, depositor)
	return nil
}

// handleClaimRewards pays rewards accrued since the last claim to the signer
// and resets the accrual clock.
func handleClaimRewards(ctx *syscall.ExecutionContext, _ *ClaimRewardsRequest) error {
	accs, err := claimRewardsAccounts(ctx)
	if err != nil {
		return err
	}
	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.Claimant); err != nil {
		return err
	}
	if err := VerifyWritable(accs.Claimant); err != nil {
		return err
	}

	now := ctx.UnixTimestamp
	reward, err := Accrue(record.TotalStaked, now-record.LastAccrualTime, record.RewardRate)
	if err != nil {
		return err
	}

	if reward > 0 {
		if reward > *accs.Pool.Lamports {
			return fmt.Errorf("%w: reward %d exceeds pool balance %d", ErrInsufficientFunds, reward, *accs.Pool.Lamports)
		}
		if err := hostError(ctx.TransferLamports(accs.Pool.Pubkey, accs.Claimant.Pubkey, reward)); err != nil {
			return err
		}
	}

	record.LastAccrualTime = now
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("claimed %d lamports for %s", reward, accs.Claimant.Pubkey)
	return nil
}
