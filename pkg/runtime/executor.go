// Package runtime executes signed transactions against the accounts
// database: it loads the referenced accounts, runs each instruction through
// the program registry and commits the result only if every instruction
// succeeded.
package runtime

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Execution limits
const (
	// DefaultComputeUnits is the default compute unit limit per transaction.
	DefaultComputeUnits = 400_000
)

// Executor handles transaction and instruction execution. It is not safe
// for concurrent use; callers serialize transactions.
type Executor struct {
	accountsDB accounts.AccountsDB
	registry   *ProgramRegistry
	clock      Clock

	computeUnitsLimit types.ComputeUnits
	verifySignatures  bool

	// slot counts committed transactions.
	slot          types.Slot
	lastTimestamp int64
}

// NewExecutor creates a new transaction executor.
func NewExecutor(db accounts.AccountsDB, registry *ProgramRegistry, clock Clock) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Executor{
		accountsDB:        db,
		registry:          registry,
		clock:             clock,
		computeUnitsLimit: DefaultComputeUnits,
		verifySignatures:  true,
	}
}

// SetComputeUnitsLimit sets the compute units limit for transactions.
func (e *Executor) SetComputeUnitsLimit(limit types.ComputeUnits) {
	e.computeUnitsLimit = limit
}

// SetVerifySignatures toggles signature verification.
func (e *Executor) SetVerifySignatures(verify bool) {
	e.verifySignatures = verify
}

// SetSlot sets the current slot, e.g. after restoring a snapshot.
func (e *Executor) SetSlot(slot types.Slot) {
	e.slot = slot
}

// Slot returns the slot of the last committed transaction.
func (e *Executor) Slot() types.Slot {
	return e.slot
}

// LastTimestamp returns the unix time of the last committed transaction.
func (e *Executor) LastTimestamp() int64 {
	return e.lastTimestamp
}

// SetLastTimestamp restores the timestamp floor, e.g. after a snapshot import.
func (e *Executor) SetLastTimestamp(ts int64) {
	e.lastTimestamp = ts
}

// timestamp returns the clock in unix seconds, never earlier than the last
// committed transaction.
func (e *Executor) timestamp() int64 {
	now := e.clock.Now().Unix()
	if now < e.lastTimestamp {
		return e.lastTimestamp
	}
	return now
}

// ExecuteTransaction executes a complete transaction. A failing transaction
// is reported through the result and leaves the database untouched; the
// returned error is reserved for storage failures.
func (e *Executor) ExecuteTransaction(tx *types.Transaction) (*types.TransactionResult, error) {
	result := &types.TransactionResult{
		Logs: make([]string, 0),
	}

	if tx == nil {
		result.Error = ErrNilTransaction
		return result, nil
	}
	result.Signature = tx.ID()

	if len(tx.Message.Instructions) == 0 {
		result.Error = ErrNoInstructions
		return result, nil
	}
	if e.verifySignatures {
		if err := crypto.VerifyTransaction(tx); err != nil {
			result.Error = err
			return result, nil
		}
	}

	if err := checkUniqueKeys(tx.Message.AccountKeys); err != nil {
		result.Error = err
		return result, nil
	}

	infos, snapshots, err := e.loadTransactionAccounts(&tx.Message)
	if err != nil {
		return result, err
	}

	slot := e.slot + 1
	timestamp := e.timestamp()
	remaining := uint64(e.computeUnitsLimit)

	for i := range tx.Message.Instructions {
		ix, err := tx.Message.Decompile(&tx.Message.Instructions[i])
		if err != nil {
			result.Error = &InstructionExecutionError{InstructionIndex: i, Err: err}
			return result, nil
		}

		ctx := e.createExecutionContext(ix, infos, remaining)
		ctx.SetClock(uint64(slot), timestamp)

		err = e.executeInstruction(ctx, ix, result)
		consumed := ctx.GetComputeUnitsConsumed()
		result.ComputeUnits += types.ComputeUnits(consumed)
		remaining -= min(consumed, remaining)

		if err != nil {
			result.Error = &InstructionExecutionError{InstructionIndex: i, ProgramID: ix.ProgramID, Err: err}
			return result, nil
		}
	}

	if err := e.commit(tx.Message.AccountKeys, infos, snapshots, result); err != nil {
		return result, err
	}

	e.slot = slot
	e.lastTimestamp = timestamp
	result.Success = true
	return result, nil
}

// executeInstruction runs one top-level instruction and checks the ledger
// rules the programs cannot be trusted with.
func (e *Executor) executeInstruction(ctx *syscall.ExecutionContext, ix *types.Instruction, result *types.TransactionResult) error {
	if !e.registry.HasProgram(ix.ProgramID) {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}

	before := make([]*types.Account, len(ctx.Accounts))
	for i, info := range ctx.Accounts {
		before[i] = info.ToAccount()
	}

	result.Logs = append(result.Logs, fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))
	err := e.registry.ExecuteProgram(ctx)
	result.Logs = append(result.Logs, ctx.GetLogs()...)
	if err != nil {
		result.Logs = append(result.Logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	result.Logs = append(result.Logs, fmt.Sprintf("Program %s success", ix.ProgramID))

	return checkInstructionEffects(ctx.Accounts, before)
}

// checkInstructionEffects verifies that read-only accounts are unchanged and
// that total lamports are conserved. Repeated accounts are counted once.
func checkInstructionEffects(infos []*syscall.AccountInfo, before []*types.Account) error {
	seen := make(map[types.Pubkey]bool, len(infos))
	sumBefore, sumAfter := new(uint256.Int), new(uint256.Int)

	for i, info := range infos {
		if seen[info.Pubkey] {
			continue
		}
		seen[info.Pubkey] = true

		after := info.ToAccount()
		if !info.IsWritable && !after.Equal(before[i]) {
			return fmt.Errorf("%w: %s", ErrReadOnlyModified, info.Pubkey)
		}
		sumBefore.Add(sumBefore, uint256.NewInt(uint64(before[i].Lamports)))
		sumAfter.Add(sumAfter, uint256.NewInt(uint64(after.Lamports)))
	}

	if !sumBefore.Eq(sumAfter) {
		return fmt.Errorf("%w: %s before, %s after", ErrLamportsNotConserved, sumBefore.Dec(), sumAfter.Dec())
	}
	return nil
}

func checkUniqueKeys(keys []types.Pubkey) error {
	seen := make(map[types.Pubkey]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, key)
		}
		seen[key] = true
	}
	return nil
}

// loadTransactionAccounts builds one shared view per account key. Every
// instruction of the transaction operates on these views, so later
// instructions observe earlier writes.
func (e *Executor) loadTransactionAccounts(msg *types.Message) (map[types.Pubkey]*syscall.AccountInfo, map[types.Pubkey]*types.Account, error) {
	infos := make(map[types.Pubkey]*syscall.AccountInfo, len(msg.AccountKeys))
	snapshots := make(map[types.Pubkey]*types.Account, len(msg.AccountKeys))

	for i, pubkey := range msg.AccountKeys {
		account, err := e.accountsDB.GetAccount(pubkey)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", pubkey, err)
		}
		snapshots[pubkey] = account.Clone()
		infos[pubkey] = syscall.NewAccountInfo(pubkey, account, msg.IsSigner(i), msg.IsWritable(i))
	}
	return infos, snapshots, nil
}

// createExecutionContext creates an execution context for an instruction.
// Repeated accounts resolve to the same view.
func (e *Executor) createExecutionContext(ix *types.Instruction, infos map[types.Pubkey]*syscall.AccountInfo, computeUnits uint64) *syscall.ExecutionContext {
	instructionAccounts := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		instructionAccounts[i] = infos[meta.Pubkey]
	}

	ctx := syscall.NewExecutionContext(ix.ProgramID, instructionAccounts, ix.Data, computeUnits)
	ctx.SetInvoker(e.registry)
	return ctx
}

// commit writes every changed account and records the deltas.
func (e *Executor) commit(keys []types.Pubkey, infos map[types.Pubkey]*syscall.AccountInfo, snapshots map[types.Pubkey]*types.Account, result *types.TransactionResult) error {
	changed := make([]types.AccountRef, 0, len(keys))

	for _, pubkey := range keys {
		newAccount := infos[pubkey].ToAccount()
		oldAccount := snapshots[pubkey]
		if oldAccount == nil && newAccount.IsEmpty() && newAccount.Owner == types.SystemProgramID {
			continue
		}
		if newAccount.Equal(oldAccount) {
			continue
		}

		var err error
		if newAccount.IsEmpty() {
			err = e.accountsDB.DeleteAccount(pubkey)
		} else {
			err = e.accountsDB.SetAccount(pubkey, newAccount)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCommitFailed, pubkey, err)
		}

		result.AccountDeltas = append(result.AccountDeltas, types.AccountDelta{
			Pubkey:     pubkey,
			OldAccount: oldAccount,
			NewAccount: newAccount,
		})
		changed = append(changed, types.AccountRef{Pubkey: pubkey, Account: newAccount})
	}

	result.DeltaHash = accounts.ComputeAccountsDeltaHash(changed)
	return nil
}
