// Package syscall implements the host services a native program sees while
// it executes: account access, lamport transfers, logs, the clock, compute
// metering and cross-program invocation.
package syscall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrLogTooLong          = errors.New("log message too long")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrReadOnlyModified    = errors.New("read-only account was modified")
	// ErrUnauthorizedDebit is returned when a transfer debits an account that
	// neither signed nor is owned by the executing program.
	ErrUnauthorizedDebit = errors.New("debit from account not authorized")
	ErrLamportsOverflow  = errors.New("lamports overflow")
)

// Limits for execution
const (
	MaxLogMessages      = 128
	MaxLogMessageLength = 10000
	MaxInstructionData  = 1232
	MaxAccountDataSize  = 10 * 1024 * 1024
)

// AccountInfo is the view of an account a program operates on.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds a program view of acc. A nil account yields an empty,
// system-owned view so programs can create it.
func NewAccountInfo(pubkey types.Pubkey, acc *types.Account, isSigner, isWritable bool) *AccountInfo {
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   new(uint64),
		Owner:      types.SystemProgramID,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if acc != nil {
		*info.Lamports = uint64(acc.Lamports)
		info.Owner = acc.Owner
		info.Executable = acc.Executable
		if acc.Data != nil {
			info.Data = make([]byte, len(acc.Data))
			copy(info.Data, acc.Data)
		}
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// ToAccount converts the view back into a ledger account.
func (a *AccountInfo) ToAccount() *types.Account {
	acc := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
	}
	if len(a.Data) > 0 {
		acc.Data = make([]byte, len(a.Data))
		copy(acc.Data, a.Data)
	}
	return acc
}

// CopyStateFrom overwrites lamports, data and owner with those of src.
func (a *AccountInfo) CopyStateFrom(src *AccountInfo) {
	*a.Lamports = *src.Lamports
	if len(a.Data) != len(src.Data) {
		a.Data = make([]byte, len(src.Data))
	}
	copy(a.Data, src.Data)
	a.Owner = src.Owner
	a.Executable = src.Executable
}

// Invoker executes a native program against an execution context. The
// runtime installs one so programs can perform cross-program invocations
// without this package depending on the program registry.
type Invoker interface {
	ExecuteProgram(ctx *ExecutionContext) error
}

// ExecutionContext holds the execution state of one instruction.
type ExecutionContext struct {
	mu sync.RWMutex

	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction
	Accounts []*AccountInfo

	accountIndex map[types.Pubkey]int

	InstructionData []byte

	computeUnits    uint64
	maxComputeUnits uint64

	// logs is shared between a context and the children it invokes.
	logs *[]string

	// Depth of CPI calls
	Depth int

	// Stack of callers for CPI
	CallerStack []types.Pubkey

	// Clock values supplied by the host.
	Slot          uint64
	UnixTimestamp int64

	invoker Invoker
}

// NewExecutionContext creates a new execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	logs := make([]string, 0, 16)
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		computeUnits:    computeUnits,
		maxComputeUnits: computeUnits,
		accountIndex:    make(map[types.Pubkey]int, len(accounts)),
		logs:            &logs,
		CallerStack:     make([]types.Pubkey, 0, MaxCPIDepth),
	}

	for i, acc := range accounts {
		if _, seen := ctx.accountIndex[acc.Pubkey]; !seen {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}

	return ctx
}

// SetInvoker installs the program executor used for cross-program invocations.
func (ctx *ExecutionContext) SetInvoker(invoker Invoker) {
	ctx.invoker = invoker
}

// SetClock sets the slot and unix timestamp visible to the program.
func (ctx *ExecutionContext) SetClock(slot uint64, unixTimestamp int64) {
	ctx.Slot = slot
	ctx.UnixTimestamp = unixTimestamp
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if units > ctx.computeUnits {
		ctx.computeUnits = 0
		return ErrComputeExhausted
	}
	ctx.computeUnits -= units
	return nil
}

// GetComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.computeUnits
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.maxComputeUnits - ctx.computeUnits
}

// AddLog adds a log message.
func (ctx *ExecutionContext) AddLog(message string) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if len(*ctx.logs) >= MaxLogMessages {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}

	*ctx.logs = append(*ctx.logs, message)
	return nil
}

// Logf adds a formatted "Program log:" message. Log overflow is ignored.
func (ctx *ExecutionContext) Logf(format string, args ...any) {
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	logs := make([]string, len(*ctx.logs))
	copy(logs, *ctx.logs)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// GetWritableAccount returns a writable account by pubkey.
func (ctx *ExecutionContext) GetWritableAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return nil, err
	}
	if !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, pubkey.String())
	}
	return acc, nil
}

// GetSignerAccount returns a signer account by pubkey.
func (ctx *ExecutionContext) GetSignerAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return nil, err
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, pubkey.String())
	}
	return acc, nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return len(ctx.Accounts)
}

// TransferLamports moves lamports between two accounts of the instruction.
// Both must be writable, and the source must either have signed or be owned
// by the executing program.
func (ctx *ExecutionContext) TransferLamports(from, to types.Pubkey, amount uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	fromIdx, ok := ctx.accountIndex[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from.String())
	}
	toIdx, ok := ctx.accountIndex[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, to.String())
	}

	fromAcc := ctx.Accounts[fromIdx]
	toAcc := ctx.Accounts[toIdx]

	if !fromAcc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, from.String())
	}
	if !toAcc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, to.String())
	}
	if !fromAcc.IsSigner && fromAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: %s", ErrUnauthorizedDebit, from.String())
	}
	if *fromAcc.Lamports < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from.String(), *fromAcc.Lamports, amount)
	}
	if from == to {
		return nil
	}
	if *toAcc.Lamports+amount < *toAcc.Lamports {
		return ErrLamportsOverflow
	}

	*fromAcc.Lamports -= amount
	*toAcc.Lamports += amount
	return nil
}

// ResizeAccountData resizes an account's data buffer.
func (ctx *ExecutionContext) ResizeAccountData(pubkey types.Pubkey, newSize int) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}

	acc := ctx.Accounts[idx]
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, pubkey.String())
	}
	if newSize > MaxAccountDataSize {
		return fmt.Errorf("data size %d exceeds maximum %d", newSize, MaxAccountDataSize)
	}

	oldData := acc.Data
	acc.Data = make([]byte, newSize)
	copy(acc.Data, oldData)
	return nil
}

// IsProgramOwned checks if an account is owned by the executing program.
func (ctx *ExecutionContext) IsProgramOwned(pubkey types.Pubkey) bool {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return false
	}
	return acc.Owner == ctx.ProgramID
}

// GetDepth returns the current CPI depth.
func (ctx *ExecutionContext) GetDepth() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.Depth
}

// IsTopLevel returns true if this is the top-level execution (not a CPI call).
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}

// GetCallerStack returns a copy of the caller stack.
func (ctx *ExecutionContext) GetCallerStack() []types.Pubkey {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	stack := make([]types.Pubkey, len(ctx.CallerStack))
	copy(stack, ctx.CallerStack)
	return stack
}

// IsCalledBy checks if the current program was called by the specified program.
func (ctx *ExecutionContext) IsCalledBy(programID types.Pubkey) bool {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	for _, caller := range ctx.CallerStack {
		if caller == programID {
			return true
		}
	}
	return false
}
