package stakepool

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
)

// handleLinkCard links a card to the signer. Only depositors with a stake
// may link, and re-linking overwrites the previous entry.
func handleLinkCard(ctx *syscall.ExecutionContext, req *LinkCardRequest) error {
	accs, err := linkCardAccounts(ctx)
	if err != nil {
		return err
	}
	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.User); err != nil {
		return err
	}
	owner := accs.User.Pubkey
	if err := VerifyUserStakeAccount(accs.UserStake, ctx.ProgramID, accs.Pool.Pubkey, owner); err != nil {
		return err
	}
	if _, err := requireStake(ctx, accs.UserStake, owner); err != nil {
		return err
	}

	info := CardInfo{CardID: req.CardID, Status: CardLinked, LinkedAt: ctx.UnixTimestamp}
	if err := record.SetCard(owner, info); err != nil {
		return err
	}
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("card linked for %s", owner)
	return nil
}

// handleUnlinkCard tombstones the signer's card entry.
func handleUnlinkCard(ctx *syscall.ExecutionContext, _ *UnlinkCardRequest) error {
	accs, err := unlinkCardAccounts(ctx)
	if err != nil {
		return err
	}
	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return err
	}
	if err := VerifySigner(accs.User); err != nil {
		return err
	}

	owner := accs.User.Pubkey
	card, ok := record.Card(owner)
	if !ok || card.Status != CardLinked {
		return fmt.Errorf("%w: %s", ErrNoLinkedCard, owner)
	}
	card.Status = CardUnlinked
	card.LinkedAt = ctx.UnixTimestamp
	if err := record.SetCard(owner, card); err != nil {
		return err
	}
	if err := record.Encode(accs.Pool.Data); err != nil {
		return err
	}

	ctx.Logf("card unlinked for %s", owner)
	return nil
}

// bnplUser runs the checks shared by ProcessBNPL and RepayBNPL and returns
// the signer's accounts.
func bnplUser(ctx *syscall.ExecutionContext, op Op) (*BNPLAccounts, *PoolRecord, error) {
	accs, err := bnplAccounts(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	record, err := loadPool(ctx, accs.Pool)
	if err != nil {
		return nil, nil, err
	}
	if err := VerifySigner(accs.User); err != nil {
		return nil, nil, err
	}
	if err := VerifyWritable(accs.UserStake); err != nil {
		return nil, nil, err
	}
	if err := VerifyUserStakeAccount(accs.UserStake, ctx.ProgramID, accs.Pool.Pubkey, accs.User.Pubkey); err != nil {
		return nil, nil, err
	}
	return accs, record, nil
}

// handleProcessBNPL authorizes a purchase against the signer's credit limit
// and records it as debt.
func handleProcessBNPL(ctx *syscall.ExecutionContext, req *ProcessBNPLRequest) error {
	accs, record, err := bnplUser(ctx, OpProcessBNPL)
	if err != nil {
		return err
	}
	owner := accs.User.Pubkey

	card, ok := record.Card(owner)
	if !ok || card.Status != CardLinked {
		return fmt.Errorf("%w: %s", ErrNoLinkedCard, owner)
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}
	user, err := requireStake(ctx, accs.UserStake, owner)
	if err != nil {
		return err
	}

	limit := user.CreditLimit()
	debt, err := checkedAdd(user.Debt, req.Amount)
	if err != nil || debt > limit {
		return fmt.Errorf("%w: debt %d + %d, limit %d", ErrExceedsCreditLimit, user.Debt, req.Amount, limit)
	}
	user.Debt = debt
	if err := user.Encode(accs.UserStake.Data); err != nil {
		return err
	}

	ctx.Logf("bnpl %d authorized for card %s, debt %d of %d", req.Amount, card.CardID, user.Debt, limit)
	return nil
}

// handleRepayBNPL pays down debt from the signer's lamports into the pool.
// Overpayment is capped at the outstanding debt.
func handleRepayBNPL(ctx *syscall.ExecutionContext, req *RepayBNPLRequest) error {
	accs, _, err := bnplUser(ctx, OpRepayBNPL)
	if err != nil {
		return err
	}
	if err := VerifyWritable(accs.User); err != nil {
		return err
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}
	owner := accs.User.Pubkey

	user, exists, err := loadUserStake(ctx, accs.UserStake, owner)
	if err != nil {
		return err
	}
	if !exists || !user.IsInitialized {
		return fmt.Errorf("%w: %s", ErrNoStakeFound, owner)
	}
	if user.Debt == 0 {
		return ErrNoOutstandingDebt
	}

	repaid := min(req.Amount, user.Debt)
	if err := hostError(ctx.TransferLamports(owner, accs.Pool.Pubkey, repaid)); err != nil {
		return err
	}
	user.Debt -= repaid
	if err := user.Encode(accs.UserStake.Data); err != nil {
		return err
	}

	ctx.Logf("repaid %d, debt %d", repaid, user.Debt)
	return nil
}
