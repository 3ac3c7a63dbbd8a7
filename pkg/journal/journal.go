// Package journal records submitted transactions for history queries.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 100

// ErrNotFound is returned when no entry matches a signature.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one executed transaction.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Signature string    `gorm:"size:88;uniqueIndex"`
	Slot      uint64    `gorm:"index"`
	Signer    string    `gorm:"size:44;index"`
	// Ops lists the stake pool operations in instruction order, comma separated.
	Ops       string `gorm:"size:256"`
	Amount    uint64
	Success   bool
	ErrorCode uint32
	Error     string `gorm:"type:text"`
	Logs      string `gorm:"type:text"`
	BlockTime int64
	CreatedAt time.Time
}

// AmountSOL is Amount in SOL.
func (e *Entry) AmountSOL() decimal.Decimal {
	return types.Lamports(e.Amount).SOL()
}

// LogLines splits the stored program logs.
func (e *Entry) LogLines() []string {
	if e.Logs == "" {
		return nil
	}
	return strings.Split(e.Logs, "\n")
}

// Journal is a gorm-backed transaction history store.
type Journal struct {
	db *gorm.DB
}

// Open connects to the named driver and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return New(db)
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores the outcome of tx. A signature already present is ignored.
func (j *Journal) Record(ctx context.Context, tx *types.Transaction, result *types.TransactionResult, slot types.Slot, blockTime int64) (*Entry, error) {
	entry := &Entry{
		ID:        uuid.New(),
		Signature: result.Signature.String(),
		Slot:      uint64(slot),
		Signer:    tx.FeePayer().String(),
		Success:   result.Success,
		Logs:      strings.Join(result.Logs, "\n"),
		BlockTime: blockTime,
	}
	entry.Ops, entry.Amount = describe(tx)
	if result.Error != nil {
		entry.Error = result.Error.Error()
		entry.ErrorCode = stakepool.ErrorCode(result.Error)
	}

	err := j.db.WithContext(ctx).
		Where(Entry{Signature: entry.Signature}).
		FirstOrCreate(entry).Error
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", entry.Signature, err)
	}
	return entry, nil
}

// Get returns the entry for a transaction signature.
func (j *Journal) Get(ctx context.Context, signature string) (*Entry, error) {
	var entry Entry
	err := j.db.WithContext(ctx).Where("signature = ?", signature).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// History returns the newest entries signed by owner, up to limit.
func (j *Journal) History(ctx context.Context, owner types.Pubkey, limit int) ([]Entry, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var entries []Entry
	err := j.db.WithContext(ctx).
		Where("signer = ?", owner.String()).
		Order("slot desc, created_at desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of recorded transactions.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error
	return n, err
}

// Ping checks the underlying connection.
func (j *Journal) Ping() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// describe summarizes the stake pool instructions in tx. Amount sums the
// lamport amounts the requests carry.
func describe(tx *types.Transaction) (string, uint64) {
	var (
		ops    []string
		amount uint64
	)
	for i := range tx.Message.Instructions {
		ix := &tx.Message.Instructions[i]
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) ||
			tx.Message.AccountKeys[ix.ProgramIDIndex] != types.StakePoolProgramID {
			continue
		}
		req, err := stakepool.DecodeInstruction(ix.Data)
		if err != nil {
			ops = append(ops, "invalid")
			continue
		}
		ops = append(ops, req.Op().String())
		amount += requestAmount(req)
	}
	return strings.Join(ops, ","), amount
}

func requestAmount(req stakepool.Request) uint64 {
	switch r := req.(type) {
	case *stakepool.StakeRequest:
		return r.Amount
	case *stakepool.UnstakeRequest:
		return r.Amount
	case *stakepool.ProcessBNPLRequest:
		return r.Amount
	case *stakepool.RepayBNPLRequest:
		return r.Amount
	}
	return 0
}
