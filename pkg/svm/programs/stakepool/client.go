package stakepool

import (
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Client builds stake pool instructions for one deployment.
type Client struct {
	ProgramID types.Pubkey
	Pool      types.Pubkey
}

// NewClient returns a client for the pool of programID.
func NewClient(programID types.Pubkey) *Client {
	pool, _ := FindPoolAddress(programID)
	return &Client{ProgramID: programID, Pool: pool}
}

// UserStakeAddress returns owner's user stake account.
func (c *Client) UserStakeAddress(owner types.Pubkey) types.Pubkey {
	addr, _ := FindUserStakeAddress(c.ProgramID, c.Pool, owner)
	return addr
}

// ReceiptAddress returns owner's canonical receipt token account.
func (c *Client) ReceiptAddress(owner types.Pubkey) types.Pubkey {
	addr, _ := FindReceiptAddress(c.ProgramID, c.Pool, owner)
	return addr
}

func (c *Client) instruction(req Request, accounts ...types.AccountMeta) types.Instruction {
	return types.Instruction{ProgramID: c.ProgramID, Accounts: accounts, Data: req.Encode()}
}

// Initialize creates the pool with the given receipt mint and rate.
func (c *Client) Initialize(authority, receiptMint types.Pubkey, rewardRate uint64) types.Instruction {
	return c.instruction(&InitializeRequest{ReceiptMint: receiptMint, RewardRate: rewardRate},
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(authority, true, true),
		types.NewAccountMeta(receiptMint, false, false),
	)
}

// Stake deposits amount lamports from depositor, minting receipt tokens into
// the depositor's canonical receipt account.
func (c *Client) Stake(depositor, receiptMint types.Pubkey, amount uint64) types.Instruction {
	return c.StakeTo(depositor, receiptMint, c.ReceiptAddress(depositor), amount)
}

// StakeTo is Stake with an explicit receipt token account.
func (c *Client) StakeTo(depositor, receiptMint, receiptAccount types.Pubkey, amount uint64) types.Instruction {
	req := &StakeRequest{AmountRequest{Amount: amount}}
	return c.instruction(req,
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(depositor, true, true),
		types.NewAccountMeta(c.UserStakeAddress(depositor), false, true),
		types.NewAccountMeta(receiptMint, false, true),
		types.NewAccountMeta(receiptAccount, false, true),
		types.NewAccountMeta(types.TokenProgramID, false, false),
		types.NewAccountMeta(types.SystemProgramID, false, false),
	)
}

// Unstake burns amount receipt tokens from the canonical receipt account.
func (c *Client) Unstake(depositor, receiptMint types.Pubkey, amount uint64) types.Instruction {
	return c.UnstakeFrom(depositor, receiptMint, c.ReceiptAddress(depositor), amount)
}

// UnstakeFrom is Unstake with an explicit receipt token account.
func (c *Client) UnstakeFrom(depositor, receiptMint, receiptAccount types.Pubkey, amount uint64) types.Instruction {
	req := &UnstakeRequest{AmountRequest{Amount: amount}}
	return c.instruction(req,
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(depositor, true, true),
		types.NewAccountMeta(c.UserStakeAddress(depositor), false, true),
		types.NewAccountMeta(receiptMint, false, true),
		types.NewAccountMeta(receiptAccount, false, true),
		types.NewAccountMeta(types.TokenProgramID, false, false),
	)
}

// ClaimRewards pays accrued rewards to claimant.
func (c *Client) ClaimRewards(claimant types.Pubkey) types.Instruction {
	return c.instruction(&ClaimRewardsRequest{},
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(claimant, true, true),
	)
}

// LinkCard links cardID to user.
func (c *Client) LinkCard(user types.Pubkey, cardID string) types.Instruction {
	return c.instruction(&LinkCardRequest{CardID: cardID},
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(user, true, false),
		types.NewAccountMeta(c.UserStakeAddress(user), false, false),
	)
}

// UnlinkCard unlinks user's card.
func (c *Client) UnlinkCard(user types.Pubkey) types.Instruction {
	return c.instruction(&UnlinkCardRequest{},
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(user, true, false),
	)
}

// ProcessBNPL draws amount of credit for user.
func (c *Client) ProcessBNPL(user types.Pubkey, amount uint64) types.Instruction {
	req := &ProcessBNPLRequest{AmountRequest{Amount: amount}}
	return c.instruction(req,
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(user, true, false),
		types.NewAccountMeta(c.UserStakeAddress(user), false, true),
	)
}

// RepayBNPL repays up to amount of user's debt.
func (c *Client) RepayBNPL(user types.Pubkey, amount uint64) types.Instruction {
	req := &RepayBNPLRequest{AmountRequest{Amount: amount}}
	return c.instruction(req,
		types.NewAccountMeta(c.Pool, false, true),
		types.NewAccountMeta(user, true, true),
		types.NewAccountMeta(c.UserStakeAddress(user), false, true),
	)
}
