package crypto

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

func mustKeypair(t *testing.T, seedByte byte) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{seedByte}, ed25519.SeedSize))
	require.NoError(t, err)
	return kp
}

func transferInstruction(from, to types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true, true),
			types.NewAccountMeta(to, false, true),
		},
		Data: []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestVerifySignature(t *testing.T) {
	kp := mustKeypair(t, 1)
	pk := kp.Pubkey()
	msg := []byte("test message")
	sig := kp.Sign(msg)

	assert.True(t, VerifySignature(pk[:], msg, sig[:]))
	assert.False(t, VerifySignature(pk[:], []byte("wrong message"), sig[:]))

	other := mustKeypair(t, 2).Pubkey()
	assert.False(t, VerifySignature(other[:], msg, sig[:]))
	assert.False(t, VerifySignature(pk[:16], msg, sig[:]))
	assert.False(t, VerifySignature(pk[:], msg, sig[:10]))
}

func TestVerifySignatureStrict(t *testing.T) {
	kp := mustKeypair(t, 1)
	pk := kp.Pubkey()
	msg := []byte("hello")
	sig := kp.Sign(msg)

	require.NoError(t, VerifySignatureStrict(pk[:], msg, sig[:]))
	assert.ErrorIs(t, VerifySignatureStrict(pk[:3], msg, sig[:]), ErrInvalidPublicKey)
	assert.ErrorIs(t, VerifySignatureStrict(pk[:], msg, sig[:3]), ErrInvalidSignature)

	sig[0] ^= 0xff
	assert.ErrorIs(t, VerifySignatureStrict(pk[:], msg, sig[:]), ErrVerificationFailed)
}

func TestSignAndVerifyTransaction(t *testing.T) {
	payer := mustKeypair(t, 1)
	dest := mustKeypair(t, 2).Pubkey()

	tx, err := NewSignedTransaction(types.SHA256([]byte("blockhash")),
		[]types.Instruction{transferInstruction(payer.Pubkey(), dest)}, payer)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, payer.Pubkey(), tx.FeePayer())
	require.NoError(t, VerifyTransaction(tx))

	tx.Message.RecentBlockhash[0] ^= 0xff
	err = VerifyTransaction(tx)
	require.Error(t, err)
	var verr *TransactionVerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, verr.SignatureIndex)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestSignTransactionMissingSigner(t *testing.T) {
	payer := mustKeypair(t, 1)
	cosigner := mustKeypair(t, 2)

	ix := transferInstruction(cosigner.Pubkey(), mustKeypair(t, 3).Pubkey())
	_, err := NewSignedTransaction(types.ZeroHash, []types.Instruction{ix}, payer)
	assert.ErrorIs(t, err, ErrMissingSigner)

	tx, err := NewSignedTransaction(types.ZeroHash, []types.Instruction{ix}, payer, cosigner)
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 2)
	require.NoError(t, VerifyTransaction(tx))
}

func TestVerifyTransactionSignatureCount(t *testing.T) {
	assert.ErrorIs(t, VerifyTransaction(nil), ErrMissingMessage)

	payer := mustKeypair(t, 1)
	tx, err := NewSignedTransaction(types.ZeroHash,
		[]types.Instruction{transferInstruction(payer.Pubkey(), mustKeypair(t, 2).Pubkey())}, payer)
	require.NoError(t, err)

	noSigs := *tx
	noSigs.Signatures = nil
	assert.ErrorIs(t, VerifyTransaction(&noSigs), ErrNoSignatures)

	extra := *tx
	extra.Signatures = append([]types.Signature{}, tx.Signatures[0], tx.Signatures[0])
	assert.ErrorIs(t, VerifyTransaction(&extra), ErrSignatureCountMismatch)
}

func TestVerifyTransactionAfterWireRoundTrip(t *testing.T) {
	payer := mustKeypair(t, 7)
	tx, err := NewSignedTransaction(types.SHA256([]byte("bh")),
		[]types.Instruction{transferInstruction(payer.Pubkey(), mustKeypair(t, 8).Pubkey())}, payer)
	require.NoError(t, err)

	wire, err := tx.Serialize()
	require.NoError(t, err)
	decoded, err := types.DeserializeTransaction(wire)
	require.NoError(t, err)
	require.NoError(t, VerifyTransaction(decoded))
}

func TestKeypairSaveLoad(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "authority.json")
	require.NoError(t, kp.Save(path))

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), loaded.Pubkey())
	assert.Equal(t, kp.Secret(), loaded.Secret())
}

func TestKeypairValidation(t *testing.T) {
	_, err := KeypairFromSeed([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = KeypairFromSecret(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = LoadKeypair(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
