package stakepool

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// UserStakeSize is the data size of a user stake account.
const UserStakeSize = 49

// UserStakeRecord tracks one depositor's principal and BNPL debt.
//
// Layout: is_initialized u8 | owner [32] | amount u64 | debt u64
type UserStakeRecord struct {
	IsInitialized bool
	Owner         types.Pubkey
	Amount        uint64
	Debt          uint64
}

// UnmarshalWithDecoder implements bin.BinaryUnmarshaler.
func (u *UserStakeRecord) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	flag, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	u.IsInitialized = flag != 0

	owner, err := decoder.ReadBytes(32)
	if err != nil {
		return err
	}
	copy(u.Owner[:], owner)

	u.Amount, err = decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	u.Debt, err = decoder.ReadUint64(bin.LE)
	return err
}

// MarshalWithEncoder implements bin.BinaryMarshaler.
func (u *UserStakeRecord) MarshalWithEncoder(encoder *bin.Encoder) error {
	var flag uint8
	if u.IsInitialized {
		flag = 1
	}
	if err := encoder.WriteUint8(flag); err != nil {
		return err
	}
	if err := encoder.WriteBytes(u.Owner[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(u.Amount, bin.LE); err != nil {
		return err
	}
	return encoder.WriteUint64(u.Debt, bin.LE)
}

// DecodeUserStake decodes a user stake account.
func DecodeUserStake(data []byte) (*UserStakeRecord, error) {
	if len(data) < UserStakeSize {
		return nil, fmt.Errorf("%w: user stake is %d bytes, need %d",
			ErrBufferTooSmall, len(data), UserStakeSize)
	}
	u := &UserStakeRecord{}
	if err := u.UnmarshalWithDecoder(bin.NewBinDecoder(data[:UserStakeSize])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	return u, nil
}

// Encode writes the record into dst.
func (u *UserStakeRecord) Encode(dst []byte) error {
	if len(dst) < UserStakeSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, UserStakeSize, len(dst))
	}
	buf := bytes.NewBuffer(make([]byte, 0, UserStakeSize))
	if err := u.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return err
	}
	copy(dst, buf.Bytes())
	return nil
}

// CreditLimit is the BNPL limit backed by this position.
func (u *UserStakeRecord) CreditLimit() uint64 {
	return CreditLimit(u.Amount)
}

// AvailableCredit is the unused part of the credit limit.
func (u *UserStakeRecord) AvailableCredit() uint64 {
	limit := u.CreditLimit()
	if u.Debt >= limit {
		return 0
	}
	return limit - u.Debt
}
