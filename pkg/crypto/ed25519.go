package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifySignatureStrict is like VerifySignature but returns an error
// with details about why verification failed.
func VerifySignatureStrict(pubkey, message, signature []byte) error {
	if len(pubkey) != PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}
	if !ed25519.Verify(pubkey, message, signature) {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyTransaction verifies all signatures on a transaction.
// It serializes the message and verifies each signature against the
// corresponding signer's public key.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}

	numSignatures := len(tx.Signatures)
	if numSignatures == 0 {
		return ErrNoSignatures
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if numSignatures != numRequired {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, numRequired, numSignatures)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}

	accountKeys := tx.Message.AccountKeys
	if len(accountKeys) < numSignatures {
		return fmt.Errorf("%w: not enough account keys for signatures",
			ErrInvalidSignerIndex)
	}

	for i := 0; i < numSignatures; i++ {
		pubkey := accountKeys[i]
		signature := tx.Signatures[i]

		if !ed25519.Verify(pubkey[:], messageBytes, signature[:]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pubkey.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}

	return nil
}

// SignTransaction fills in tx.Signatures using the given keypairs. Every
// required signer of the message must have a matching keypair; extra keypairs
// are ignored.
func SignTransaction(tx *types.Transaction, signers ...*Keypair) error {
	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}

	byPubkey := make(map[types.Pubkey]*Keypair, len(signers))
	for _, kp := range signers {
		byPubkey[kp.Pubkey()] = kp
	}

	required := tx.Message.Signers()
	sigs := make([]types.Signature, len(required))
	for i, pk := range required {
		kp, ok := byPubkey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		sigs[i] = kp.Sign(messageBytes)
	}
	tx.Signatures = sigs
	return nil
}

// NewSignedTransaction compiles instructions into a message paid for by the
// first signer and signs it.
func NewSignedTransaction(blockhash types.Hash, instructions []types.Instruction, signers ...*Keypair) (*types.Transaction, error) {
	if len(signers) == 0 {
		return nil, ErrMissingSigner
	}
	msg, err := types.NewMessage(signers[0].Pubkey(), blockhash, instructions...)
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{Message: *msg}
	if err := SignTransaction(tx, signers...); err != nil {
		return nil, err
	}
	return tx, nil
}
