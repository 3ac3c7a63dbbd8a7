package runtime

import (
	"bytes"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/svm/syscall"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func mustKeypair(t *testing.T, seedByte byte) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.KeypairFromSeed(bytes.Repeat([]byte{seedByte}, ed25519.SeedSize))
	require.NoError(t, err)
	return kp
}

func newTestExecutor(t *testing.T) (*Executor, accounts.AccountsDB, *ProgramRegistry) {
	t.Helper()
	db := accounts.NewMemoryDB()
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)
	exec := NewExecutor(db, registry, NewManualClock(time.Unix(1_700_000_000, 0)))
	return exec, db, registry
}

func fund(t *testing.T, db accounts.AccountsDB, pubkey types.Pubkey, lamports types.Lamports) {
	t.Helper()
	require.NoError(t, db.SetAccount(pubkey, types.NewAccount(lamports, types.SystemProgramID)))
}

func lamportsOf(t *testing.T, db accounts.AccountsDB, pubkey types.Pubkey) types.Lamports {
	t.Helper()
	acc, err := db.GetAccount(pubkey)
	require.NoError(t, err)
	if acc == nil {
		return 0
	}
	return acc.Lamports
}

func TestExecuteTransfer(t *testing.T) {
	exec, db, _ := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	bob := mustKeypair(t, 2)
	fund(t, db, alice.Pubkey(), 1_000)

	tx, err := crypto.NewSignedTransaction(types.ZeroHash,
		[]types.Instruction{system.Transfer(alice.Pubkey(), bob.Pubkey(), 400)}, alice)
	require.NoError(t, err)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	require.True(t, result.Success, "error: %v", result.Error)

	assert.Equal(t, types.Lamports(600), lamportsOf(t, db, alice.Pubkey()))
	assert.Equal(t, types.Lamports(400), lamportsOf(t, db, bob.Pubkey()))
	assert.Len(t, result.AccountDeltas, 2)
	assert.False(t, result.DeltaHash.IsZero())
	assert.Equal(t, types.Slot(1), exec.Slot())
	assert.Equal(t, tx.ID(), result.Signature)
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	exec, db, _ := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	bob := mustKeypair(t, 2)
	fund(t, db, alice.Pubkey(), 1_000)

	before, err := accounts.ComputeStateHash(db)
	require.NoError(t, err)

	// The first transfer succeeds inside the transaction, the second fails.
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, []types.Instruction{
		system.Transfer(alice.Pubkey(), bob.Pubkey(), 400),
		system.Transfer(alice.Pubkey(), bob.Pubkey(), 700),
	}, alice)
	require.NoError(t, err)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, system.ErrInsufficientFunds)

	var ixErr *InstructionExecutionError
	require.ErrorAs(t, result.Error, &ixErr)
	assert.Equal(t, 1, ixErr.InstructionIndex)

	after, err := accounts.ComputeStateHash(db)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, types.Slot(0), exec.Slot())
}

func TestRejectsBadSignature(t *testing.T) {
	exec, db, _ := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	fund(t, db, alice.Pubkey(), 1_000)

	tx, err := crypto.NewSignedTransaction(types.ZeroHash,
		[]types.Instruction{system.Transfer(alice.Pubkey(), mustKeypair(t, 2).Pubkey(), 1)}, alice)
	require.NoError(t, err)
	tx.Signatures[0][0] ^= 0xff

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Error(t, result.Error)
	assert.Equal(t, types.Lamports(1_000), lamportsOf(t, db, alice.Pubkey()))
}

func TestUnknownProgram(t *testing.T) {
	exec, db, _ := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	fund(t, db, alice.Pubkey(), 1_000)

	ix := types.Instruction{ProgramID: types.Pubkey(types.SHA256([]byte("nope"))), Data: []byte{1}}
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, []types.Instruction{ix}, alice)
	require.NoError(t, err)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrProgramNotFound)
}

func TestLamportConservation(t *testing.T) {
	exec, db, registry := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	fund(t, db, alice.Pubkey(), 1_000)

	rogue := types.Pubkey(types.SHA256([]byte("rogue")))
	registry.RegisterProgram(rogue, "rogue", ProgramExecutorFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		*ctx.Accounts[0].Lamports += 1_000_000
		return nil
	}))

	ix := types.Instruction{
		ProgramID: rogue,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(alice.Pubkey(), true, true)},
	}
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, []types.Instruction{ix}, alice)
	require.NoError(t, err)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrLamportsNotConserved)
	assert.Equal(t, types.Lamports(1_000), lamportsOf(t, db, alice.Pubkey()))
}

func TestReadOnlyModification(t *testing.T) {
	exec, db, registry := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	victim := types.Pubkey(types.SHA256([]byte("victim")))
	fund(t, db, alice.Pubkey(), 1_000)
	require.NoError(t, db.SetAccount(victim, types.NewAccountWithData(10, []byte{1, 2, 3}, types.SystemProgramID)))

	rogue := types.Pubkey(types.SHA256([]byte("rogue")))
	registry.RegisterProgram(rogue, "rogue", ProgramExecutorFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		ctx.Accounts[1].Data[0] = 9
		return nil
	}))

	ix := types.Instruction{
		ProgramID: rogue,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(alice.Pubkey(), true, true),
			types.NewAccountMeta(victim, false, false),
		},
	}
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, []types.Instruction{ix}, alice)
	require.NoError(t, err)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrReadOnlyModified)
}

func TestDuplicateAccountKeys(t *testing.T) {
	exec, db, _ := newTestExecutor(t)
	alice := mustKeypair(t, 1)
	fund(t, db, alice.Pubkey(), 1_000)

	tx, err := crypto.NewSignedTransaction(types.ZeroHash,
		[]types.Instruction{system.Transfer(alice.Pubkey(), mustKeypair(t, 2).Pubkey(), 1)}, alice)
	require.NoError(t, err)
	tx.Message.AccountKeys = append(tx.Message.AccountKeys, alice.Pubkey())
	exec.SetVerifySignatures(false)

	result, err := exec.ExecuteTransaction(tx)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, ErrDuplicateAccount)
}

func TestTimestampIsMonotonic(t *testing.T) {
	db := accounts.NewMemoryDB()
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)
	clock := NewManualClock(time.Unix(2_000, 0))
	exec := NewExecutor(db, registry, clock)

	var seen []int64
	probe := types.Pubkey(types.SHA256([]byte("probe")))
	registry.RegisterProgram(probe, "probe", ProgramExecutorFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		seen = append(seen, ctx.UnixTimestamp)
		return nil
	}))

	alice := mustKeypair(t, 1)
	fund(t, db, alice.Pubkey(), 1_000)
	run := func() {
		tx, err := crypto.NewSignedTransaction(types.ZeroHash, []types.Instruction{{ProgramID: probe}}, alice)
		require.NoError(t, err)
		result, err := exec.ExecuteTransaction(tx)
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	run()
	clock.Set(time.Unix(1_000, 0))
	run()
	assert.Equal(t, []int64{2_000, 2_000}, seen)
}

func TestRegistry(t *testing.T) {
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)

	assert.True(t, registry.HasProgram(types.StakePoolProgramID))
	name, ok := registry.GetProgramName(types.TokenProgramID)
	assert.True(t, ok)
	assert.Equal(t, "Token Program", name)
	assert.Len(t, registry.ListPrograms(), 3)

	ctx := syscall.NewExecutionContext(types.Pubkey(types.SHA256([]byte("missing"))), nil, nil, 100)
	assert.ErrorIs(t, registry.ExecuteProgram(ctx), ErrProgramNotFound)
}
