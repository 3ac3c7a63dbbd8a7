package syscall

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// CPI limits
const (
	// MaxCPIDepth is the maximum CPI call depth below the top-level instruction.
	MaxCPIDepth = 4

	// MaxCPIAccounts is the maximum number of accounts in a CPI instruction.
	MaxCPIAccounts = 64

	// MaxCPISignerSeeds is the maximum number of PDA signers.
	MaxCPISignerSeeds = 16
)

// CPI compute unit costs
const (
	CUCPIBase        uint64 = 1000
	CUCPIPerAccount  uint64 = 100
	CUCPIPerDataByte uint64 = 1
)

// CPI errors
var (
	ErrCPIDepthExceeded      = errors.New("CPI depth exceeded")
	ErrCPIAccountNotFound    = errors.New("account not found in transaction")
	ErrCPIWritablePrivilege  = errors.New("writable privilege escalation")
	ErrCPISignerPrivilege    = errors.New("signer privilege escalation")
	ErrCPIPDASignerMismatch  = errors.New("PDA signer does not match derived address")
	ErrCPIInvalidSignerSeeds = errors.New("invalid signer seeds")
	ErrCPIReentrancy         = errors.New("program reentrancy not allowed")
	ErrCPINoInvoker          = errors.New("no program executor registered for CPI")
	ErrCPIDataTooLarge       = errors.New("instruction data too large")
)

// Invoke performs a cross-program invocation of ix on behalf of the executing
// program. Each entry of signerSeeds derives a PDA of the calling program that
// is treated as a signer of ix.
//
// The callee runs against copies of the caller's accounts. Writable accounts
// are copied back only if the callee succeeds, so a failed invocation leaves
// the caller's view untouched.
func (ctx *ExecutionContext) Invoke(ix types.Instruction, signerSeeds ...[][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ctx.invoker == nil {
		return ErrCPINoInvoker
	}
	if len(ix.Data) > MaxInstructionData {
		return fmt.Errorf("%w: %d bytes", ErrCPIDataTooLarge, len(ix.Data))
	}
	if len(ix.Accounts) > MaxCPIAccounts {
		return fmt.Errorf("too many CPI accounts: %d", len(ix.Accounts))
	}
	if ix.ProgramID != ctx.ProgramID && ctx.IsCalledBy(ix.ProgramID) {
		return fmt.Errorf("%w: %s", ErrCPIReentrancy, ix.ProgramID)
	}

	cost := CUCPIBase + CUCPIPerAccount*uint64(len(ix.Accounts)) + CUCPIPerDataByte*uint64(len(ix.Data))
	if err := ctx.ConsumeComputeUnits(cost); err != nil {
		return err
	}

	pdaSigners, err := ctx.verifyPDASigners(ix, signerSeeds)
	if err != nil {
		return err
	}
	calleeAccounts, err := ctx.resolveCalleeAccounts(ix, pdaSigners)
	if err != nil {
		return err
	}

	child := ctx.createChildContext(ix.ProgramID, calleeAccounts, ix.Data)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, child.Depth+1))
	err = ctx.invoker.ExecuteProgram(child)
	ctx.syncComputeUnits(child)
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))

	return ctx.propagateAccountChanges(calleeAccounts)
}

// verifyPDASigners derives the PDA for each seed set under the calling program
// and checks it is used as a signer of ix.
func (ctx *ExecutionContext) verifyPDASigners(ix types.Instruction, signerSeeds [][][]byte) (map[types.Pubkey]bool, error) {
	if len(signerSeeds) > MaxCPISignerSeeds {
		return nil, fmt.Errorf("%w: %d signer seed sets", ErrCPIInvalidSignerSeeds, len(signerSeeds))
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, valid := CreateProgramAddress(seeds, ctx.ProgramID)
		if !valid {
			return nil, fmt.Errorf("%w: seeds do not produce valid PDA", ErrCPIInvalidSignerSeeds)
		}

		found := false
		for _, meta := range ix.Accounts {
			if meta.Pubkey == pda && meta.IsSigner {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: PDA %s not found as signer in instruction", ErrCPIPDASignerMismatch, pda)
		}

		pdaSigners[pda] = true
	}
	return pdaSigners, nil
}

// resolveCalleeAccounts checks that the callee's accounts are a subset of the
// caller's with no privilege escalation, and returns copies for the callee.
// Repeated pubkeys share one copy.
func (ctx *ExecutionContext) resolveCalleeAccounts(ix types.Instruction, pdaSigners map[types.Pubkey]bool) ([]*AccountInfo, error) {
	callee := make([]*AccountInfo, len(ix.Accounts))
	byPubkey := make(map[types.Pubkey]*AccountInfo, len(ix.Accounts))

	for i, meta := range ix.Accounts {
		callerAcc, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCPIAccountNotFound, meta.Pubkey)
		}
		if meta.IsWritable && !callerAcc.IsWritable {
			return nil, fmt.Errorf("%w: account %s", ErrCPIWritablePrivilege, meta.Pubkey)
		}
		if meta.IsSigner && !callerAcc.IsSigner && !pdaSigners[meta.Pubkey] {
			return nil, fmt.Errorf("%w: account %s", ErrCPISignerPrivilege, meta.Pubkey)
		}

		info, ok := byPubkey[meta.Pubkey]
		if !ok {
			info = callerAcc.Clone()
			info.IsSigner = false
			info.IsWritable = false
			byPubkey[meta.Pubkey] = info
		}
		info.IsSigner = info.IsSigner || meta.IsSigner
		info.IsWritable = info.IsWritable || meta.IsWritable
		callee[i] = info
	}
	return callee, nil
}

// createChildContext builds the callee context. It shares the log buffer and
// clock with the caller and starts from the caller's remaining compute budget.
func (ctx *ExecutionContext) createChildContext(programID types.Pubkey, accounts []*AccountInfo, data []byte) *ExecutionContext {
	ctx.mu.RLock()
	remaining := ctx.computeUnits
	ctx.mu.RUnlock()

	child := NewExecutionContext(programID, accounts, data, remaining)
	child.logs = ctx.logs
	child.Depth = ctx.Depth + 1
	child.CallerStack = append(append(child.CallerStack, ctx.CallerStack...), ctx.ProgramID)
	child.Slot = ctx.Slot
	child.UnixTimestamp = ctx.UnixTimestamp
	child.invoker = ctx.invoker
	return child
}

func (ctx *ExecutionContext) syncComputeUnits(child *ExecutionContext) {
	remaining := child.GetComputeUnitsRemaining()
	ctx.mu.Lock()
	ctx.computeUnits = remaining
	ctx.mu.Unlock()
}

// propagateAccountChanges copies writable callee accounts back to the caller.
func (ctx *ExecutionContext) propagateAccountChanges(calleeAccounts []*AccountInfo) error {
	seen := make(map[types.Pubkey]bool, len(calleeAccounts))
	for _, calleeAcc := range calleeAccounts {
		if seen[calleeAcc.Pubkey] {
			continue
		}
		seen[calleeAcc.Pubkey] = true

		callerAcc, err := ctx.GetAccount(calleeAcc.Pubkey)
		if err != nil {
			return err
		}
		if !calleeAcc.IsWritable {
			if *calleeAcc.Lamports != *callerAcc.Lamports || string(calleeAcc.Data) != string(callerAcc.Data) {
				return fmt.Errorf("%w: account %s", ErrReadOnlyModified, calleeAcc.Pubkey)
			}
			continue
		}
		callerAcc.CopyStateFrom(calleeAcc)
	}
	return nil
}
