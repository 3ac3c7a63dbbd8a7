package stakepool

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/token"
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
)

// Stake pool errors
var (
	ErrAddressMismatch   = errors.New("account address does not match derived address")
	ErrOwnershipMismatch = errors.New("account not owned by program")
	ErrMissingSignature  = errors.New("missing required signature")

	// ErrInvalidInstructionData covers unknown op-codes and short payloads.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")

	// ErrBufferTooSmall is returned when the pool record cannot hold its card entries.
	ErrBufferTooSmall = errors.New("account buffer too small")

	ErrNoStakeFound       = errors.New("no stake found")
	ErrNoLinkedCard       = errors.New("no linked card")
	ErrExceedsCreditLimit = errors.New("amount exceeds credit limit")
	ErrClockRegression    = errors.New("clock moved backwards")

	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrNotInitialized     = errors.New("pool not initialized")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrNotEnoughAccounts  = errors.New("not enough accounts")
	ErrInvalidReceiptMint = errors.New("invalid receipt mint")
	ErrNoOutstandingDebt  = errors.New("no outstanding debt")
	ErrAccountNotWritable = errors.New("account is not writable")
)

// CustomErrorBase is the first custom program error code.
const CustomErrorBase uint32 = 6000

// errorCodes is the stable numbering of the error set. Append only.
var errorCodes = []error{
	ErrAddressMismatch,
	ErrOwnershipMismatch,
	ErrMissingSignature,
	ErrInvalidInstructionData,
	ErrInsufficientFunds,
	ErrArithmeticOverflow,
	ErrArithmeticUnderflow,
	ErrBufferTooSmall,
	ErrNoStakeFound,
	ErrNoLinkedCard,
	ErrExceedsCreditLimit,
	ErrClockRegression,
	ErrAlreadyInitialized,
	ErrNotInitialized,
	ErrZeroAmount,
	ErrNotEnoughAccounts,
	ErrInvalidReceiptMint,
	ErrNoOutstandingDebt,
	ErrAccountNotWritable,
}

// ErrorCode returns the custom program error code for err, or 0 if err is
// not a stake pool error.
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}
	for i, target := range errorCodes {
		if errors.Is(err, target) {
			return CustomErrorBase + uint32(i)
		}
	}
	return 0
}

// ErrorFromCode is the inverse of ErrorCode.
func ErrorFromCode(code uint32) error {
	if code < CustomErrorBase || code >= CustomErrorBase+uint32(len(errorCodes)) {
		return nil
	}
	return errorCodes[code-CustomErrorBase]
}

// hostError translates host and token program failures into the stake pool
// error set where a counterpart exists. The original error stays in the chain.
func hostError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, syscall.ErrInsufficientFunds), errors.Is(err, system.ErrInsufficientFunds),
		errors.Is(err, token.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, syscall.ErrLamportsOverflow), errors.Is(err, token.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrArithmeticOverflow, err)
	case errors.Is(err, syscall.ErrAccountNotWritable), errors.Is(err, token.ErrAccountNotWritable):
		return fmt.Errorf("%w: %w", ErrAccountNotWritable, err)
	case errors.Is(err, syscall.ErrAccountNotSigner), errors.Is(err, token.ErrAccountNotSigner),
		errors.Is(err, syscall.ErrUnauthorizedDebit):
		return fmt.Errorf("%w: %w", ErrMissingSignature, err)
	case errors.Is(err, system.ErrAccountAlreadyExists):
		return fmt.Errorf("%w: %w", ErrAlreadyInitialized, err)
	}
	return err
}
