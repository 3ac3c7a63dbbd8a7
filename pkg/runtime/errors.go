package runtime

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Runtime errors
var (
	// ErrProgramNotFound indicates the program is not registered.
	ErrProgramNotFound = errors.New("program not found")

	ErrNilTransaction = errors.New("nil transaction")
	ErrNoInstructions = errors.New("transaction has no instructions")

	// ErrDuplicateAccount indicates an account key appears twice in a message.
	ErrDuplicateAccount = errors.New("duplicate account key")

	// ErrLamportsNotConserved indicates an instruction created or destroyed lamports.
	ErrLamportsNotConserved = errors.New("lamports not conserved")

	// ErrReadOnlyModified indicates an instruction changed an account it was
	// not given write access to.
	ErrReadOnlyModified = errors.New("read-only account modified")

	ErrCommitFailed = errors.New("commit failed")
)

// InstructionExecutionError contains details about an instruction execution failure.
type InstructionExecutionError struct {
	InstructionIndex int
	ProgramID        types.Pubkey
	Err              error
}

// Error implements the error interface.
func (e *InstructionExecutionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v",
		e.InstructionIndex, e.ProgramID.String(), e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionExecutionError) Unwrap() error {
	return e.Err
}
