package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Stored account layout:
//
//	lamports    u64 LE   [0..8)
//	owner       [32]     [8..40)
//	executable  u8       [40]
//	data_len    u32 LE   [41..45)
//	data        data_len [45..)
const storedHeaderSize = 8 + 32 + 1 + 4

var (
	// ErrInvalidAccountData is returned when a stored account is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")
)

// SerializeAccount encodes an account for storage.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}

	buf := make([]byte, storedHeaderSize+len(account.Data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(account.Lamports))
	copy(buf[8:40], account.Owner[:])
	if account.Executable {
		buf[40] = 1
	}
	binary.LittleEndian.PutUint32(buf[41:45], uint32(len(account.Data)))
	copy(buf[storedHeaderSize:], account.Data)
	return buf, nil
}

// DeserializeAccount decodes an account written by SerializeAccount.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < storedHeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidAccountData, storedHeaderSize, len(data))
	}

	dataLen := int(binary.LittleEndian.Uint32(data[41:45]))
	if len(data) != storedHeaderSize+dataLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidAccountData, storedHeaderSize+dataLen, len(data))
	}

	account := &types.Account{
		Lamports:   types.Lamports(binary.LittleEndian.Uint64(data[0:8])),
		Executable: data[40] != 0,
	}
	copy(account.Owner[:], data[8:40])
	if dataLen > 0 {
		account.Data = make([]byte, dataLen)
		copy(account.Data, data[storedHeaderSize:])
	}
	return account, nil
}
