package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Account state sizes
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Token account states.
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey: a 4 byte tag followed by 32 bytes.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// Mint is a token mint.
// Layout (82 bytes):
//
//	mint_authority   COption<Pubkey> 36
//	supply           u64             8
//	decimals         u8              1
//	is_initialized   bool            1
//	freeze_authority COption<Pubkey> 36
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount holds a balance of one mint.
// Layout (165 bytes):
//
//	mint             Pubkey          32
//	owner            Pubkey          32
//	amount           u64             8
//	delegate         COption<Pubkey> 36
//	state            u8              1
//	is_native        COption<u64>    12
//	delegated_amount u64             8
//	close_authority  COption<Pubkey> 36
//
// Delegation and native wrapping are not supported; those fields are
// always written as None/zero.
type TokenAccount struct {
	Mint   types.Pubkey
	Owner  types.Pubkey
	Amount uint64
	State  uint8
}

// Field offsets within a token account.
const (
	tokenMintOffset   = 0
	tokenOwnerOffset  = 32
	tokenAmountOffset = 64
	tokenStateOffset  = 108
)

// NewMint creates an initialized mint with zero supply.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	mint := &Mint{Decimals: decimals, IsInitialized: true}
	if mintAuthority != nil {
		mint.MintAuthority = COption{IsSome: true, Value: *mintAuthority}
	}
	if freezeAuthority != nil {
		mint.FreezeAuthority = COption{IsSome: true, Value: *freezeAuthority}
	}
	return mint
}

// NewTokenAccount creates an initialized, empty token account.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{Mint: mint, Owner: owner, State: AccountStateInitialized}
}

// DeserializeMint decodes a mint.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint data is %d bytes, need %d",
			ErrInvalidAccountData, len(data), MintSize)
	}
	return &Mint{
		MintAuthority:   readCOption(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] != 0,
		FreezeAuthority: readCOption(data[46:82]),
	}, nil
}

// Serialize encodes the mint into MintSize bytes.
func (m *Mint) Serialize() []byte {
	data := make([]byte, MintSize)
	writeCOption(data[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(data[36:44], m.Supply)
	data[44] = m.Decimals
	if m.IsInitialized {
		data[45] = 1
	}
	writeCOption(data[46:82], m.FreezeAuthority)
	return data
}

// DeserializeTokenAccount decodes a token account.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data is %d bytes, need %d",
			ErrInvalidAccountData, len(data), TokenAccountSize)
	}
	account := &TokenAccount{
		Amount: binary.LittleEndian.Uint64(data[tokenAmountOffset : tokenAmountOffset+8]),
		State:  data[tokenStateOffset],
	}
	copy(account.Mint[:], data[tokenMintOffset:tokenMintOffset+32])
	copy(account.Owner[:], data[tokenOwnerOffset:tokenOwnerOffset+32])
	return account, nil
}

// Serialize encodes the token account into TokenAccountSize bytes.
func (a *TokenAccount) Serialize() []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[tokenMintOffset:], a.Mint[:])
	copy(data[tokenOwnerOffset:], a.Owner[:])
	binary.LittleEndian.PutUint64(data[tokenAmountOffset:tokenAmountOffset+8], a.Amount)
	data[tokenStateOffset] = a.State
	return data
}

// IsInitialized reports whether the account has been initialized.
func (a *TokenAccount) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// BalanceOf reads the token amount straight out of raw account data.
func BalanceOf(data []byte) (uint64, error) {
	account, err := DeserializeTokenAccount(data)
	if err != nil {
		return 0, err
	}
	if !account.IsInitialized() {
		return 0, ErrNotInitialized
	}
	return account.Amount, nil
}

func readCOption(b []byte) COption {
	var opt COption
	if binary.LittleEndian.Uint32(b[0:4]) == 1 {
		opt.IsSome = true
		copy(opt.Value[:], b[4:36])
	}
	return opt
}

func writeCOption(b []byte, opt COption) {
	if !opt.IsSome {
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], opt.Value[:])
}
