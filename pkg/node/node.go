// Package node serializes transaction submission against one ledger and
// fans results out to the journal and metrics.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/journal"
	"github.com/fortiblox/x1-stakepool/pkg/metrics"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/token"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

var (
	// ErrPoolNotFound is returned before genesis has been applied.
	ErrPoolNotFound = errors.New("stake pool account not found")
	// ErrAirdropDisabled is returned when no faucet limit is configured.
	ErrAirdropDisabled = errors.New("airdrop disabled")
	// ErrAirdropTooLarge is returned for requests above the faucet limit.
	ErrAirdropTooLarge = errors.New("airdrop exceeds faucet limit")
	// ErrNoJournal is returned by History when no journal is configured.
	ErrNoJournal = errors.New("transaction journal disabled")
)

// Node owns the executor. All ledger writes go through Submit or Airdrop.
type Node struct {
	mu      sync.Mutex
	db      accounts.AccountsDB
	exec    *runtime.Executor
	client  *stakepool.Client
	journal *journal.Journal
	metrics *metrics.Metrics
	logger  *slog.Logger
	airdrop uint64
}

// Option configures a Node.
type Option func(*Node)

// WithJournal records every submitted transaction in j.
func WithJournal(j *journal.Journal) Option {
	return func(n *Node) { n.journal = j }
}

// WithMetrics reports transaction outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithAirdrop enables the faucet up to limit lamports per request.
func WithAirdrop(limit uint64) Option {
	return func(n *Node) { n.airdrop = limit }
}

// New creates a node over db executed by exec.
func New(db accounts.AccountsDB, exec *runtime.Executor, opts ...Option) *Node {
	n := &Node{
		db:     db,
		exec:   exec,
		client: stakepool.NewClient(types.StakePoolProgramID),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Client returns the stake pool instruction builder for this ledger.
func (n *Node) Client() *stakepool.Client {
	return n.client
}

// Submit executes tx. Execution failures are reported in the result; the
// error is reserved for storage failures.
func (n *Node) Submit(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	n.mu.Lock()
	start := time.Now()
	result, err := n.exec.ExecuteTransaction(tx)
	elapsed := time.Since(start)
	slot := n.exec.Slot()
	blockTime := n.exec.LastTimestamp()
	n.mu.Unlock()
	if err != nil {
		n.logger.Error("transaction commit failed", "error", err)
		return nil, fmt.Errorf("execute transaction: %w", err)
	}

	n.observe(tx, result, elapsed)

	if n.journal != nil && tx != nil {
		if _, err := n.journal.Record(ctx, tx, result, slot, blockTime); err != nil {
			// The ledger already committed; history is best effort.
			n.logger.Warn("journal write failed", "signature", result.Signature.String(), "error", err)
		}
	}
	return result, nil
}

// observe logs the outcome and updates metrics.
func (n *Node) observe(tx *types.Transaction, result *types.TransactionResult, elapsed time.Duration) {
	var execErr *runtime.InstructionExecutionError
	status := metrics.StatusSuccess
	switch {
	case result.Success:
	case errors.As(result.Error, &execErr):
		status = metrics.StatusFailed
	default:
		status = metrics.StatusRejected
	}
	n.metrics.RecordTransaction(status, elapsed)

	if tx != nil && status != metrics.StatusRejected {
		for i := range tx.Message.Instructions {
			ix := &tx.Message.Instructions[i]
			if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) ||
				tx.Message.AccountKeys[ix.ProgramIDIndex] != types.StakePoolProgramID {
				continue
			}
			op := "invalid"
			if len(ix.Data) > 0 {
				op = stakepool.Op(ix.Data[0]).String()
			}
			ok := result.Success || (execErr != nil && i < execErr.InstructionIndex)
			n.metrics.RecordInstruction(op, ok)
		}
	}

	attrs := []any{
		"signature", result.Signature.String(),
		"status", status,
		"compute_units", uint64(result.ComputeUnits),
		"duration", elapsed,
	}
	if result.Error != nil {
		attrs = append(attrs, "error", result.Error, "code", stakepool.ErrorCode(result.Error))
		n.logger.Info("transaction failed", attrs...)
		return
	}
	n.logger.Debug("transaction committed", attrs...)
}

// Airdrop credits lamports to a system account outside of any transaction.
// It exists for development ledgers and is off unless configured.
func (n *Node) Airdrop(to types.Pubkey, lamports uint64) error {
	if n.airdrop == 0 {
		return ErrAirdropDisabled
	}
	if lamports == 0 || lamports > n.airdrop {
		return fmt.Errorf("%w: %d > %d", ErrAirdropTooLarge, lamports, n.airdrop)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.db.GetAccount(to)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("airdrop target %s is not a system account", to)
	}
	if uint64(acc.Lamports)+lamports < uint64(acc.Lamports) {
		return fmt.Errorf("airdrop to %s overflows balance", to)
	}
	acc.Lamports += types.Lamports(lamports)
	n.logger.Info("airdrop", "to", to, "lamports", lamports)
	return n.db.SetAccount(to, acc)
}

// Account returns the stored account or nil.
func (n *Node) Account(pubkey types.Pubkey) (*types.Account, error) {
	return n.db.GetAccount(pubkey)
}

// Slot returns the slot of the last committed transaction.
func (n *Node) Slot() types.Slot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exec.Slot()
}

// PoolState returns the decoded pool record and the pool's lamport balance.
func (n *Node) PoolState() (*stakepool.PoolRecord, uint64, error) {
	acc, err := n.db.GetAccount(n.client.Pool)
	if err != nil {
		return nil, 0, err
	}
	if acc == nil {
		return nil, 0, ErrPoolNotFound
	}
	record, err := stakepool.DecodePoolRecord(acc.Data)
	if err != nil {
		return nil, 0, err
	}
	return record, uint64(acc.Lamports), nil
}

// UserStake returns owner's stake record, or nil if none exists.
func (n *Node) UserStake(owner types.Pubkey) (*stakepool.UserStakeRecord, error) {
	acc, err := n.db.GetAccount(n.client.UserStakeAddress(owner))
	if err != nil || acc == nil {
		return nil, err
	}
	return stakepool.DecodeUserStake(acc.Data)
}

// ReceiptBalance returns the balance of owner's canonical receipt account.
func (n *Node) ReceiptBalance(owner types.Pubkey) (uint64, error) {
	return n.TokenBalance(n.client.ReceiptAddress(owner))
}

// TokenBalance returns the amount held by a token account; zero if it does
// not exist.
func (n *Node) TokenBalance(account types.Pubkey) (uint64, error) {
	acc, err := n.db.GetAccount(account)
	if err != nil || acc == nil {
		return 0, err
	}
	if acc.Owner != types.TokenProgramID {
		return 0, fmt.Errorf("%s is not a token account", account)
	}
	return token.BalanceOf(acc.Data)
}

// History returns owner's recent transactions from the journal.
func (n *Node) History(ctx context.Context, owner types.Pubkey, limit int) ([]journal.Entry, error) {
	if n.journal == nil {
		return nil, ErrNoJournal
	}
	return n.journal.History(ctx, owner, limit)
}

// PoolStats implements metrics.StatsSource.
func (n *Node) PoolStats() (metrics.PoolStats, error) {
	stats := metrics.PoolStats{
		Slot:     uint64(n.Slot()),
		Accounts: n.db.GetAccountsCount(),
	}
	record, reserve, err := n.PoolState()
	if errors.Is(err, ErrPoolNotFound) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	stats.TotalStaked = record.TotalStaked
	stats.TotalReceipt = record.TotalReceipt
	stats.Reserve = reserve
	stats.LinkedCards = record.LinkedCards()
	return stats, nil
}

// Ping implements metrics.Pinger by reading the pool account.
func (n *Node) Ping() error {
	_, err := n.db.GetAccount(n.client.Pool)
	return err
}
