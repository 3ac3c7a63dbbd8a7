package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Token Program instruction discriminators (first byte of instruction data)
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
	InstructionBurn              uint8 = 8
)

// ParseInstructionDiscriminator reads the leading discriminator byte.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	return data[0], nil
}

// InitializeMintInstruction represents an InitializeMint instruction.
// Accounts:
//
//	[0] mint (writable)
type InitializeMintInstruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority *types.Pubkey
}

// Decode decodes an InitializeMint instruction from bytes.
func (inst *InitializeMintInstruction) Decode(data []byte) error {
	// decimals (1) + mint_authority (32) + freeze flag (1) [+ freeze_authority (32)]
	if len(data) < 34 {
		return fmt.Errorf("%w: InitializeMint requires at least 34 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}

	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])

	if data[33] == 1 {
		if len(data) < 66 {
			return fmt.Errorf("%w: InitializeMint with freeze authority requires 66 bytes",
				ErrInvalidInstructionData)
		}
		freezeAuth := types.Pubkey{}
		copy(freezeAuth[:], data[34:66])
		inst.FreezeAuthority = &freezeAuth
	}

	return nil
}

// Encode encodes an InitializeMint instruction to bytes.
func (inst *InitializeMintInstruction) Encode() []byte {
	size := 1 + 34
	if inst.FreezeAuthority != nil {
		size += 32
	}
	data := make([]byte, size)
	data[0] = InstructionInitializeMint
	data[1] = inst.Decimals
	copy(data[2:34], inst.MintAuthority[:])
	if inst.FreezeAuthority != nil {
		data[34] = 1
		copy(data[35:67], inst.FreezeAuthority[:])
	}
	return data
}

// AmountInstruction is the payload shared by Transfer, MintTo and Burn.
type AmountInstruction struct {
	Amount uint64
}

// Decode decodes the amount payload.
func (inst *AmountInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: amount requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes the payload behind the given discriminator.
func (inst *AmountInstruction) Encode(discriminator uint8) []byte {
	data := make([]byte, 1+8)
	data[0] = discriminator
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	return data
}

// InitializeMint builds an InitializeMint instruction with no freeze authority.
func InitializeMint(mint types.Pubkey, decimals uint8, authority types.Pubkey) types.Instruction {
	inst := InitializeMintInstruction{Decimals: decimals, MintAuthority: authority}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, false, true)},
		Data:      inst.Encode(),
	}
}

// InitializeAccount builds an InitializeAccount instruction.
func InitializeAccount(account, mint, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, false, true),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(owner, false, false),
		},
		Data: []byte{InstructionInitializeAccount},
	}
}

// Transfer builds a Transfer instruction signed by the source owner.
func Transfer(source, destination, owner types.Pubkey, amount uint64) types.Instruction {
	inst := AmountInstruction{Amount: amount}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false, true),
			types.NewAccountMeta(destination, false, true),
			types.NewAccountMeta(owner, true, false),
		},
		Data: inst.Encode(InstructionTransfer),
	}
}

// MintTo builds a MintTo instruction signed by the mint authority.
func MintTo(mint, destination, authority types.Pubkey, amount uint64) types.Instruction {
	inst := AmountInstruction{Amount: amount}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(mint, false, true),
			types.NewAccountMeta(destination, false, true),
			types.NewAccountMeta(authority, true, false),
		},
		Data: inst.Encode(InstructionMintTo),
	}
}

// Burn builds a Burn instruction signed by the source owner.
func Burn(source, mint, owner types.Pubkey, amount uint64) types.Instruction {
	inst := AmountInstruction{Amount: amount}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false, true),
			types.NewAccountMeta(mint, false, true),
			types.NewAccountMeta(owner, true, false),
		},
		Data: inst.Encode(InstructionBurn),
	}
}
