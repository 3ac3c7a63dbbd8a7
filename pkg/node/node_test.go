package node

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/genesis"
	"github.com/fortiblox/x1-stakepool/pkg/journal"
	"github.com/fortiblox/x1-stakepool/pkg/metrics"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

type fixture struct {
	node    *Node
	metrics *metrics.Metrics
	genesis *genesis.Genesis
	alice   *crypto.Keypair
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	authority, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	mint, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	alice, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	g := &genesis.Genesis{
		Authority:       authority,
		Mint:            mint,
		RewardRate:      5,
		ReceiptDecimals: 9,
		Allocations: []genesis.Allocation{
			{Pubkey: authority.Pubkey(), Lamports: 10 * types.LamportsPerSOL},
			{Pubkey: alice.Pubkey(), Lamports: 100 * types.LamportsPerSOL},
		},
	}

	db := accounts.NewMemoryDB()
	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	exec := runtime.NewExecutor(db, registry, runtime.NewManualClock(time.Unix(1_700_000_000, 0)))
	_, err = g.Apply(db, exec)
	require.NoError(t, err)

	j, err := journal.Open(journal.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	m := metrics.NewMetrics()
	opts = append([]Option{WithJournal(j), WithMetrics(m)}, opts...)
	return &fixture{
		node:    New(db, exec, opts...),
		metrics: m,
		genesis: g,
		alice:   alice,
	}
}

func (f *fixture) submit(t *testing.T, signer *crypto.Keypair, ixs ...types.Instruction) *types.TransactionResult {
	t.Helper()
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, ixs, signer)
	require.NoError(t, err)
	result, err := f.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	return result
}

func TestSubmitStake(t *testing.T) {
	f := newFixture(t)
	client := f.node.Client()
	mint := f.genesis.Mint.Pubkey()

	slot := f.node.Slot()
	result := f.submit(t, f.alice, client.Stake(f.alice.Pubkey(), mint, 3*types.LamportsPerSOL))
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, slot+1, f.node.Slot())

	record, reserve, err := f.node.PoolState()
	require.NoError(t, err)
	assert.Equal(t, uint64(3*types.LamportsPerSOL), record.TotalStaked)
	assert.Greater(t, reserve, record.TotalStaked)

	user, err := f.node.UserStake(f.alice.Pubkey())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint64(3*types.LamportsPerSOL), user.Amount)

	balance, err := f.node.ReceiptBalance(f.alice.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(3*types.LamportsPerSOL), balance)

	stats, err := f.node.PoolStats()
	require.NoError(t, err)
	assert.Equal(t, record.TotalStaked, stats.TotalStaked)
	assert.Equal(t, reserve, stats.Reserve)

	history, err := f.node.History(context.Background(), f.alice.Pubkey(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "stake", history[0].Ops)
	assert.True(t, history[0].Success)
}

func TestSubmitFailureIsObserved(t *testing.T) {
	f := newFixture(t)
	client := f.node.Client()

	result := f.submit(t, f.alice, client.ProcessBNPL(f.alice.Pubkey(), 1))
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, stakepool.ErrNoLinkedCard)

	history, err := f.node.History(context.Background(), f.alice.Pubkey(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, stakepool.ErrorCode(stakepool.ErrNoLinkedCard), history[0].ErrorCode)

	expected := `
# HELP stakepool_transactions_total Transactions submitted, by outcome.
# TYPE stakepool_transactions_total counter
stakepool_transactions_total{status="failed"} 1
# HELP stakepool_instructions_total Stake pool instructions executed, by op and result.
# TYPE stakepool_instructions_total counter
stakepool_instructions_total{op="process_bnpl",result="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected),
		"stakepool_transactions_total", "stakepool_instructions_total"))
}

func TestSubmitRejected(t *testing.T) {
	f := newFixture(t)
	tx, err := crypto.NewSignedTransaction(types.ZeroHash,
		[]types.Instruction{f.node.Client().ClaimRewards(f.alice.Pubkey())}, f.alice)
	require.NoError(t, err)
	tx.Signatures[0][0] ^= 0xff

	result, err := f.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.False(t, result.Success)

	expected := `
# HELP stakepool_transactions_total Transactions submitted, by outcome.
# TYPE stakepool_transactions_total counter
stakepool_transactions_total{status="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected),
		"stakepool_transactions_total"))
}

func TestAirdrop(t *testing.T) {
	f := newFixture(t)
	bob := types.Pubkey{42}
	assert.ErrorIs(t, f.node.Airdrop(bob, 1), ErrAirdropDisabled)

	f = newFixture(t, WithAirdrop(types.LamportsPerSOL))
	require.NoError(t, f.node.Airdrop(bob, types.LamportsPerSOL))
	require.NoError(t, f.node.Airdrop(bob, 5))
	acc, err := f.node.Account(bob)
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(types.LamportsPerSOL+5), acc.Lamports)

	assert.ErrorIs(t, f.node.Airdrop(bob, types.LamportsPerSOL+1), ErrAirdropTooLarge)
	assert.ErrorIs(t, f.node.Airdrop(bob, 0), ErrAirdropTooLarge)
	assert.Error(t, f.node.Airdrop(f.node.Client().Pool, 1))
}

func TestHistoryWithoutJournal(t *testing.T) {
	db := accounts.NewMemoryDB()
	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	n := New(db, runtime.NewExecutor(db, registry, runtime.SystemClock{}))

	_, err := n.History(context.Background(), types.Pubkey{1}, 1)
	assert.ErrorIs(t, err, ErrNoJournal)

	_, _, err = n.PoolState()
	assert.ErrorIs(t, err, ErrPoolNotFound)

	stats, err := n.PoolStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalStaked)
	assert.NoError(t, n.Ping())
}
