package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Encoding names accepted by the RPC.
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
)

// maxBase58Data bounds account data returned as base58.
const maxBase58Data = 128

var zstdEncoder, _ = zstd.NewWriter(nil)

// EncodeBase64 encodes bytes to base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePubkey decodes a base58 string to pubkey.
func DecodePubkey(s string) (types.Pubkey, error) {
	return types.PubkeyFromBase58(s)
}

// EncodeAccountData encodes account data as a [data, encoding] pair.
func EncodeAccountData(data []byte, encoding string) ([]interface{}, error) {
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58Data {
			return nil, fmt.Errorf("data too large for base58 encoding, use base64")
		}
		return []interface{}{base58.Encode(data), EncodingBase58}, nil
	case EncodingBase64, "":
		return []interface{}{EncodeBase64(data), EncodingBase64}, nil
	case EncodingBase64Zstd:
		return []interface{}{EncodeBase64(zstdEncoder.EncodeAll(data, nil)), EncodingBase64Zstd}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// DecodeTransaction decodes a wire transaction in base58 or base64.
func DecodeTransaction(encoded, encoding string) (*types.Transaction, error) {
	var (
		raw []byte
		err error
	)
	switch encoding {
	case EncodingBase64, "":
		raw, err = base64.StdEncoding.DecodeString(encoded)
	case EncodingBase58:
		raw, err = base58.Decode(encoded)
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", encoding, err)
	}
	return types.DeserializeTransaction(raw)
}

// SliceData returns a slice of data based on offset and length.
// Returns the full data if slice is nil.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	dataLen := uint64(len(data))
	if slice.Offset >= dataLen {
		return []byte{}
	}
	end := slice.Offset + slice.Length
	if end > dataLen || end < slice.Offset {
		end = dataLen
	}
	return data[slice.Offset:end]
}
