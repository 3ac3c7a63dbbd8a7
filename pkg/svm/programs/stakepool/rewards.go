package stakepool

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// SecondsPerYear is the accrual year (365 days).
	SecondsPerYear = 31_536_000

	// DefaultRewardRate is the annual rate in percent used when Initialize omits one.
	DefaultRewardRate = 5

	// CreditLimitBps is the BNPL limit as basis points of the staked amount.
	CreditLimitBps = 10_000
)

// Accrue returns the simple interest earned by totalStaked over elapsed
// seconds at ratePercent per year:
//
//	totalStaked * ratePercent * elapsed / (100 * SecondsPerYear)
//
// The product is formed in 256 bits; only a quotient above 64 bits overflows.
func Accrue(totalStaked uint64, elapsed int64, ratePercent uint64) (uint64, error) {
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: elapsed %d", ErrClockRegression, elapsed)
	}

	reward := uint256.NewInt(totalStaked)
	reward.Mul(reward, uint256.NewInt(ratePercent))
	reward.Mul(reward, uint256.NewInt(uint64(elapsed)))
	reward.Div(reward, uint256.NewInt(100*SecondsPerYear))

	if !reward.IsUint64() {
		return 0, fmt.Errorf("%w: reward %s", ErrArithmeticOverflow, reward.Dec())
	}
	return reward.Uint64(), nil
}

// CreditLimit returns the BNPL limit for a staked amount.
func CreditLimit(staked uint64) uint64 {
	limit := uint256.NewInt(staked)
	limit.Mul(limit, uint256.NewInt(CreditLimitBps))
	limit.Div(limit, uint256.NewInt(10_000))
	return limit.Uint64()
}
