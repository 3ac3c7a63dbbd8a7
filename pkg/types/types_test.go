package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubkey(seed string) Pubkey {
	return Pubkey(SHA256([]byte(seed)))
}

func TestPubkeyBase58(t *testing.T) {
	pk := testPubkey("alice")
	decoded, err := PubkeyFromBase58(pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, decoded)

	_, err = PubkeyFromBase58("0OIl")
	assert.Error(t, err)
	_, err = PubkeyFromBytes([]byte{1, 2})
	assert.Error(t, err)

	text, err := pk.MarshalText()
	require.NoError(t, err)
	var back Pubkey
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, pk, back)
}

func TestNativePrograms(t *testing.T) {
	assert.True(t, SystemProgramID.IsNativeProgram())
	assert.True(t, TokenProgramID.IsNativeProgram())
	assert.True(t, StakePoolProgramID.IsNativeProgram())
	assert.False(t, testPubkey("random").IsNativeProgram())
	assert.True(t, SystemProgramID.IsZero())
}

func TestLamportsSOL(t *testing.T) {
	assert.Equal(t, "1.5", Lamports(1_500_000_000).SOL().String())
	assert.Equal(t, "0.000000001", Lamports(1).SOL().String())

	l, err := LamportsFromSOL(decimal.RequireFromString("2.25"))
	require.NoError(t, err)
	assert.Equal(t, Lamports(2_250_000_000), l)

	_, err = LamportsFromSOL(decimal.RequireFromString("-1"))
	assert.Error(t, err)
	_, err = LamportsFromSOL(decimal.RequireFromString("100000000000"))
	assert.Error(t, err)
}

func TestAccountCloneIsDeep(t *testing.T) {
	acc := NewAccountWithData(10, []byte{1, 2, 3}, testPubkey("owner"))
	clone := acc.Clone()
	require.True(t, acc.Equal(clone))

	clone.Data[0] = 9
	assert.Equal(t, byte(1), acc.Data[0])
	assert.False(t, acc.Equal(clone))
	assert.NotEqual(t, acc.Hash(testPubkey("a")), clone.Hash(testPubkey("a")))
}

func TestCompactU16(t *testing.T) {
	for _, v := range []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0xffff} {
		buf := appendCompactU16(nil, v)
		got, n, err := ParseCompactU16(buf)
		require.NoError(t, err)
		assert.Equal(t, uint16(v), got)
		assert.Equal(t, len(buf), n)
	}
	_, _, err := ParseCompactU16([]byte{0x80})
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestNewMessageOrdersKeys(t *testing.T) {
	payer := testPubkey("payer")
	signer := testPubkey("signer")
	writable := testPubkey("writable")
	readonly := testPubkey("readonly")
	program := testPubkey("program")

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			NewAccountMeta(readonly, false, false),
			NewAccountMeta(writable, false, true),
			NewAccountMeta(signer, true, false),
			NewAccountMeta(payer, true, true),
		},
		Data: []byte{42},
	}
	msg, err := NewMessage(payer, ZeroHash, ix)
	require.NoError(t, err)

	assert.Equal(t, []Pubkey{payer, signer, writable, readonly, program}, msg.AccountKeys)
	assert.Equal(t, MessageHeader{
		NumRequiredSignatures:       2,
		NumReadonlySignedAccounts:   1,
		NumReadonlyUnsignedAccounts: 2,
	}, msg.Header)

	assert.True(t, msg.IsWritable(0))
	assert.False(t, msg.IsWritable(1))
	assert.True(t, msg.IsWritable(2))
	assert.False(t, msg.IsWritable(3))
	assert.False(t, msg.IsWritable(4))

	decompiled, err := msg.Decompile(&msg.Instructions[0])
	require.NoError(t, err)
	assert.Equal(t, ix.ProgramID, decompiled.ProgramID)
	assert.Equal(t, ix.Accounts, decompiled.Accounts)
	assert.Equal(t, ix.Data, decompiled.Data)
}

func TestTransactionWireRoundTrip(t *testing.T) {
	payer := testPubkey("payer")
	msg, err := NewMessage(payer, SHA256([]byte("bh")), Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{NewAccountMeta(payer, true, true), NewAccountMeta(testPubkey("to"), false, true)},
		Data:      make([]byte, 200),
	})
	require.NoError(t, err)

	tx := &Transaction{Signatures: []Signature{{1, 2, 3}}, Message: *msg}
	wire, err := tx.Serialize()
	require.NoError(t, err)

	decoded, err := DeserializeTransaction(wire)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
	assert.Equal(t, tx.Message.AccountKeys, decoded.Message.AccountKeys)
	assert.Equal(t, tx.Message.Instructions, decoded.Message.Instructions)
	assert.Equal(t, tx.ID(), decoded.ID())

	_, err = DeserializeTransaction(wire[:len(wire)-5])
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}
