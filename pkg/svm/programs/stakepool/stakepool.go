// Package stakepool implements the staking pool program: lamport deposits
// backed 1:1 by a receipt token, simple-interest rewards paid from pool
// reserves, and card-linked buy-now-pay-later credit secured by the stake.
//
// All state lives in two kinds of program-derived accounts: the singleton
// pool record at PDA("stake_pool") and one user stake record per depositor
// at PDA("user_stake", pool, owner).
package stakepool

import (
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// StakePoolProgram implements the stake pool program.
type StakePoolProgram struct {
	ProgramID types.Pubkey
}

// New creates the program at its deployed address.
func New() *StakePoolProgram {
	return &StakePoolProgram{
		ProgramID: types.StakePoolProgramID,
	}
}

// Execute decodes one instruction and runs it against ctx.
func (p *StakePoolProgram) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	req, err := DecodeInstruction(instruction)
	if err != nil {
		return err
	}
	ctx.Logf("Instruction: %s", req.Op())

	switch req := req.(type) {
	case *InitializeRequest:
		return handleInitialize(ctx, req)
	case *StakeRequest:
		return handleStake(ctx, req)
	case *UnstakeRequest:
		return handleUnstake(ctx, req)
	case *ClaimRewardsRequest:
		return handleClaimRewards(ctx, req)
	case *LinkCardRequest:
		return handleLinkCard(ctx, req)
	case *UnlinkCardRequest:
		return handleUnlinkCard(ctx, req)
	case *ProcessBNPLRequest:
		return handleProcessBNPL(ctx, req)
	case *RepayBNPLRequest:
		return handleRepayBNPL(ctx, req)
	}
	return ErrInvalidInstructionData
}

// GetProgramID returns the program's public key.
func (p *StakePoolProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}
