package journal

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func signedTx(t *testing.T, kp *crypto.Keypair, ixs ...types.Instruction) *types.Transaction {
	t.Helper()
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, ixs, kp)
	require.NoError(t, err)
	return tx
}

func TestRecordAndHistory(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	alice, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	bob, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	client := stakepool.NewClient(types.StakePoolProgramID)
	mint := types.Pubkey{7}

	stake := signedTx(t, alice, client.Stake(alice.Pubkey(), mint, 2*types.LamportsPerSOL))
	entry, err := j.Record(ctx, stake, &types.TransactionResult{
		Signature: stake.ID(),
		Success:   true,
		Logs:      []string{"Program log: Instruction: stake", "Program log: staked"},
	}, 1, 1_700_000_000)
	require.NoError(t, err)
	assert.Equal(t, "stake", entry.Ops)
	assert.Equal(t, uint64(2*types.LamportsPerSOL), entry.Amount)
	assert.Equal(t, "2", entry.AmountSOL().String())
	assert.Len(t, entry.LogLines(), 2)

	bnpl := signedTx(t, alice, client.LinkCard(alice.Pubkey(), "c"), client.ProcessBNPL(alice.Pubkey(), 500))
	_, err = j.Record(ctx, bnpl, &types.TransactionResult{
		Signature: bnpl.ID(),
		Error:     fmt.Errorf("instruction 1: %w", stakepool.ErrExceedsCreditLimit),
	}, 2, 1_700_000_001)
	require.NoError(t, err)

	other := signedTx(t, bob, system.Transfer(bob.Pubkey(), alice.Pubkey(), 10))
	_, err = j.Record(ctx, other, &types.TransactionResult{Signature: other.ID(), Success: true}, 3, 1_700_000_002)
	require.NoError(t, err)

	history, err := j.History(ctx, alice.Pubkey(), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].Slot)
	assert.Equal(t, "link_card,process_bnpl", history[0].Ops)
	assert.False(t, history[0].Success)
	assert.Equal(t, stakepool.ErrorCode(stakepool.ErrExceedsCreditLimit), history[0].ErrorCode)
	assert.Equal(t, uint64(1), history[1].Slot)

	bobHistory, err := j.History(ctx, bob.Pubkey(), 10)
	require.NoError(t, err)
	require.Len(t, bobHistory, 1)
	assert.Empty(t, bobHistory[0].Ops)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRecordIsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTx(t, kp, system.Transfer(kp.Pubkey(), types.Pubkey{9}, 1))
	result := &types.TransactionResult{Signature: tx.ID(), Success: true}

	first, err := j.Record(ctx, tx, result, 1, 0)
	require.NoError(t, err)
	second, err := j.Record(ctx, tx, result, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGet(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	tx := signedTx(t, kp, system.Transfer(kp.Pubkey(), types.Pubkey{9}, 1))
	_, err = j.Record(ctx, tx, &types.TransactionResult{Signature: tx.ID(), Success: true}, 4, 0)
	require.NoError(t, err)

	entry, err := j.Get(ctx, tx.ID().String())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), entry.Slot)
	assert.Equal(t, kp.Pubkey().String(), entry.Signer)
	assert.NoError(t, j.Ping())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}
