// Package genesis bootstraps a fresh ledger: prefunded accounts, the receipt
// mint and an initialized stake pool.
package genesis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/system"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/token"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// ErrLedgerNotEmpty is returned when genesis is applied to a used ledger.
var ErrLedgerNotEmpty = errors.New("ledger already contains accounts")

// Spec is the YAML genesis file.
type Spec struct {
	// Authority and Mint are keypair file paths, relative to the spec file.
	// A missing mint keypair file is generated.
	Authority       string        `yaml:"authority"`
	Mint            string        `yaml:"mint"`
	RewardRate      uint64        `yaml:"reward_rate"`
	ReceiptDecimals *uint8        `yaml:"receipt_decimals"`
	Accounts        []AccountSpec `yaml:"accounts"`
}

// AccountSpec prefunds one system account. Balance is in SOL.
type AccountSpec struct {
	Pubkey  string `yaml:"pubkey"`
	Balance string `yaml:"balance"`
}

// Allocation is a parsed AccountSpec.
type Allocation struct {
	Pubkey   types.Pubkey
	Lamports types.Lamports
}

// Genesis is a resolved spec, ready to apply.
type Genesis struct {
	Authority       *crypto.Keypair
	Mint            *crypto.Keypair
	RewardRate      uint64
	ReceiptDecimals uint8
	Allocations     []Allocation
}

// Result describes the bootstrapped ledger.
type Result struct {
	Pool      types.Pubkey
	Mint      types.Pubkey
	Authority types.Pubkey
	StateHash types.Hash
}

// LoadSpec reads a YAML spec and resolves its keypairs.
func LoadSpec(path string) (*Genesis, error) {
	spec, err := ReadSpec(path)
	if err != nil {
		return nil, err
	}
	return spec.Resolve(filepath.Dir(path))
}

// ReadSpec parses a YAML spec without resolving it.
func ReadSpec(path string) (*Spec, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(body, &spec); err != nil {
		return nil, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	return &spec, nil
}

// Resolve loads keypairs relative to baseDir and parses balances.
func (s *Spec) Resolve(baseDir string) (*Genesis, error) {
	if s.Authority == "" {
		return nil, errors.New("genesis: authority keypair is required")
	}
	authority, err := crypto.LoadKeypair(resolvePath(baseDir, s.Authority))
	if err != nil {
		return nil, fmt.Errorf("genesis authority: %w", err)
	}
	mint, err := loadOrCreate(resolvePath(baseDir, s.Mint))
	if err != nil {
		return nil, fmt.Errorf("genesis mint: %w", err)
	}

	g := &Genesis{
		Authority:       authority,
		Mint:            mint,
		RewardRate:      s.RewardRate,
		ReceiptDecimals: 9,
	}
	if g.RewardRate == 0 {
		g.RewardRate = stakepool.DefaultRewardRate
	}
	if s.ReceiptDecimals != nil {
		g.ReceiptDecimals = *s.ReceiptDecimals
	}

	seen := make(map[types.Pubkey]bool, len(s.Accounts))
	for i, acc := range s.Accounts {
		pubkey, err := types.PubkeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
		if seen[pubkey] {
			return nil, fmt.Errorf("genesis account %d: duplicate pubkey %s", i, pubkey)
		}
		seen[pubkey] = true
		balance, err := decimal.NewFromString(acc.Balance)
		if err != nil {
			return nil, fmt.Errorf("genesis account %s: balance %q: %w", pubkey, acc.Balance, err)
		}
		lamports, err := types.LamportsFromSOL(balance)
		if err != nil {
			return nil, fmt.Errorf("genesis account %s: %w", pubkey, err)
		}
		g.Allocations = append(g.Allocations, Allocation{Pubkey: pubkey, Lamports: lamports})
	}
	return g, nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// loadOrCreate loads a keypair file, generating and saving one when the file
// does not exist. An empty path yields an unsaved random keypair.
func loadOrCreate(path string) (*crypto.Keypair, error) {
	if path == "" {
		return crypto.GenerateKeypair()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		kp, err := crypto.GenerateKeypair()
		if err != nil {
			return nil, err
		}
		return kp, kp.Save(path)
	}
	return crypto.LoadKeypair(path)
}

// Apply writes the allocations and runs the mint and pool setup through
// exec. The ledger must be empty.
func (g *Genesis) Apply(db accounts.AccountsDB, exec *runtime.Executor) (*Result, error) {
	if db.GetAccountsCount() != 0 {
		return nil, ErrLedgerNotEmpty
	}
	for _, alloc := range g.Allocations {
		if err := db.SetAccount(alloc.Pubkey, types.NewAccount(alloc.Lamports, types.SystemProgramID)); err != nil {
			return nil, fmt.Errorf("prefund %s: %w", alloc.Pubkey, err)
		}
	}

	client := stakepool.NewClient(types.StakePoolProgramID)
	authority := g.Authority.Pubkey()
	mint := g.Mint.Pubkey()
	rent := uint64(types.RentExemptMinimum(token.MintSize))

	steps := []struct {
		name    string
		signers []*crypto.Keypair
		ixs     []types.Instruction
	}{
		{
			name:    "create receipt mint",
			signers: []*crypto.Keypair{g.Authority, g.Mint},
			ixs: []types.Instruction{
				system.CreateAccount(authority, mint, rent, token.MintSize, types.TokenProgramID),
				token.InitializeMint(mint, g.ReceiptDecimals, client.Pool),
			},
		},
		{
			name:    "initialize pool",
			signers: []*crypto.Keypair{g.Authority},
			ixs:     []types.Instruction{client.Initialize(authority, mint, g.RewardRate)},
		},
	}
	for _, step := range steps {
		tx, err := crypto.NewSignedTransaction(types.ZeroHash, step.ixs, step.signers...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		result, err := exec.ExecuteTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		if !result.Success {
			return nil, fmt.Errorf("%s: %w", step.name, result.Error)
		}
	}

	hash, err := accounts.ComputeStateHash(db)
	if err != nil {
		return nil, err
	}
	return &Result{
		Pool:      client.Pool,
		Mint:      mint,
		Authority: authority,
		StateHash: hash,
	}, nil
}
