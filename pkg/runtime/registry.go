package runtime

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/token"
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// ProgramExecutor defines the interface for program execution.
type ProgramExecutor interface {
	// Execute runs one instruction's data within ctx.
	Execute(ctx *syscall.ExecutionContext, instruction []byte) error
}

// ProgramExecutorFunc is a function adapter for ProgramExecutor.
type ProgramExecutorFunc func(ctx *syscall.ExecutionContext, instruction []byte) error

// Execute implements ProgramExecutor.
func (f ProgramExecutorFunc) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	return f(ctx, instruction)
}

// ProgramRegistry manages the mapping of program IDs to their executors.
// It is also the syscall.Invoker used for cross-program invocation.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]ProgramExecutor
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates a new program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]ProgramExecutor),
		names:    make(map[types.Pubkey]string),
	}
}

// RegisterProgram registers a program executor for the given program ID.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, name string, executor ProgramExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = executor
	r.names[id] = name
}

// GetProgram returns the executor for the given program ID.
func (r *ProgramRegistry) GetProgram(id types.Pubkey) (ProgramExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.programs[id]
	return executor, ok
}

// GetProgramName returns the name for the given program ID.
func (r *ProgramRegistry) GetProgramName(id types.Pubkey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// HasProgram checks if a program is registered.
func (r *ProgramRegistry) HasProgram(id types.Pubkey) bool {
	_, ok := r.GetProgram(id)
	return ok
}

// ListPrograms returns all registered program IDs in ascending order.
func (r *ProgramRegistry) ListPrograms() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// ExecuteProgram implements syscall.Invoker.
func (r *ProgramRegistry) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	program, ok := r.GetProgram(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ctx.ProgramID)
	}
	return program.Execute(ctx, ctx.InstructionData)
}

// RegisterNativePrograms registers the built-in programs: System, Token and
// the stake pool.
func RegisterNativePrograms(registry *ProgramRegistry) {
	registry.RegisterProgram(types.SystemProgramID, "System Program", system.New())
	registry.RegisterProgram(types.TokenProgramID, "Token Program", token.New())
	registry.RegisterProgram(types.StakePoolProgramID, "Stake Pool Program", stakepool.New())
}
