package stakepool

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
)

// accountsN returns the first n instruction accounts.
func accountsN(ctx *syscall.ExecutionContext, op Op, n int) ([]*syscall.AccountInfo, error) {
	if ctx.AccountCount() < n {
		return nil, fmt.Errorf("%w: %s needs %d accounts, got %d",
			ErrNotEnoughAccounts, op, n, ctx.AccountCount())
	}
	return ctx.Accounts[:n], nil
}

// InitializeAccounts: pool(w), authority(s,w), receipt mint.
type InitializeAccounts struct {
	Pool        *syscall.AccountInfo
	Authority   *syscall.AccountInfo
	ReceiptMint *syscall.AccountInfo
}

func initializeAccounts(ctx *syscall.ExecutionContext) (*InitializeAccounts, error) {
	a, err := accountsN(ctx, OpInitialize, 3)
	if err != nil {
		return nil, err
	}
	return &InitializeAccounts{Pool: a[0], Authority: a[1], ReceiptMint: a[2]}, nil
}

// StakeAccounts: pool(w), depositor(s,w), user stake(w), receipt mint(w),
// depositor receipt account(w), token program, system program.
type StakeAccounts struct {
	Pool           *syscall.AccountInfo
	Depositor      *syscall.AccountInfo
	UserStake      *syscall.AccountInfo
	ReceiptMint    *syscall.AccountInfo
	ReceiptAccount *syscall.AccountInfo
	TokenProgram   *syscall.AccountInfo
	SystemProgram  *syscall.AccountInfo
}

func stakeAccounts(ctx *syscall.ExecutionContext) (*StakeAccounts, error) {
	a, err := accountsN(ctx, OpStake, 7)
	if err != nil {
		return nil, err
	}
	return &StakeAccounts{
		Pool:           a[0],
		Depositor:      a[1],
		UserStake:      a[2],
		ReceiptMint:    a[3],
		ReceiptAccount: a[4],
		TokenProgram:   a[5],
		SystemProgram:  a[6],
	}, nil
}

// UnstakeAccounts: pool(w), depositor(s,w), user stake(w), receipt mint(w),
// depositor receipt account(w), token program.
type UnstakeAccounts struct {
	Pool           *syscall.AccountInfo
	Depositor      *syscall.AccountInfo
	UserStake      *syscall.AccountInfo
	ReceiptMint    *syscall.AccountInfo
	ReceiptAccount *syscall.AccountInfo
	TokenProgram   *syscall.AccountInfo
}

func unstakeAccounts(ctx *syscall.ExecutionContext) (*UnstakeAccounts, error) {
	a, err := accountsN(ctx, OpUnstake, 6)
	if err != nil {
		return nil, err
	}
	return &UnstakeAccounts{
		Pool:           a[0],
		Depositor:      a[1],
		UserStake:      a[2],
		ReceiptMint:    a[3],
		ReceiptAccount: a[4],
		TokenProgram:   a[5],
	}, nil
}

// ClaimRewardsAccounts: pool(w), claimant(s,w).
type ClaimRewardsAccounts struct {
	Pool     *syscall.AccountInfo
	Claimant *syscall.AccountInfo
}

func claimRewardsAccounts(ctx *syscall.ExecutionContext) (*ClaimRewardsAccounts, error) {
	a, err := accountsN(ctx, OpClaimRewards, 2)
	if err != nil {
		return nil, err
	}
	return &ClaimRewardsAccounts{Pool: a[0], Claimant: a[1]}, nil
}

// LinkCardAccounts: pool(w), user(s), user stake.
type LinkCardAccounts struct {
	Pool      *syscall.AccountInfo
	User      *syscall.AccountInfo
	UserStake *syscall.AccountInfo
}

func linkCardAccounts(ctx *syscall.ExecutionContext) (*LinkCardAccounts, error) {
	a, err := accountsN(ctx, OpLinkCard, 3)
	if err != nil {
		return nil, err
	}
	return &LinkCardAccounts{Pool: a[0], User: a[1], UserStake: a[2]}, nil
}

// UnlinkCardAccounts: pool(w), user(s).
type UnlinkCardAccounts struct {
	Pool *syscall.AccountInfo
	User *syscall.AccountInfo
}

func unlinkCardAccounts(ctx *syscall.ExecutionContext) (*UnlinkCardAccounts, error) {
	a, err := accountsN(ctx, OpUnlinkCard, 2)
	if err != nil {
		return nil, err
	}
	return &UnlinkCardAccounts{Pool: a[0], User: a[1]}, nil
}

// BNPLAccounts: pool(w), user(s), user stake(w). RepayBNPL also needs the
// user writable since it pays lamports.
type BNPLAccounts struct {
	Pool      *syscall.AccountInfo
	User      *syscall.AccountInfo
	UserStake *syscall.AccountInfo
}

func bnplAccounts(ctx *syscall.ExecutionContext, op Op) (*BNPLAccounts, error) {
	a, err := accountsN(ctx, op, 3)
	if err != nil {
		return nil, err
	}
	return &BNPLAccounts{Pool: a[0], User: a[1], UserStake: a[2]}, nil
}
