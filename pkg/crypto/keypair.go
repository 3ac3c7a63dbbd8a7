package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Keypair is an Ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// keypairFile is the on-disk representation of a keypair.
type keypairFile struct {
	Pubkey string `json:"pubkey"`
	Secret string `json:"secret"`
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair deterministically from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeypair, ed25519.SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromSecret builds a keypair from a 64-byte secret key.
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	if len(secret) != PrivateKeySize {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrInvalidKeypair, PrivateKeySize, len(secret))
	}
	priv := make(ed25519.PrivateKey, PrivateKeySize)
	copy(priv, secret)
	return &Keypair{private: priv}, nil
}

// Pubkey returns the public half of the keypair.
func (kp *Keypair) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], kp.private.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message with the private key.
func (kp *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(kp.private, message))
	return sig
}

// Secret returns a copy of the 64-byte secret key.
func (kp *Keypair) Secret() []byte {
	out := make([]byte, len(kp.private))
	copy(out, kp.private)
	return out
}

// Save writes the keypair to path as JSON with base58 fields, mode 0600.
func (kp *Keypair) Save(path string) error {
	body, err := json.MarshalIndent(keypairFile{
		Pubkey: kp.Pubkey().String(),
		Secret: base58.Encode(kp.private),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create keypair dir: %w", err)
	}
	return os.WriteFile(path, body, 0o600)
}

// LoadKeypair reads a keypair written by Save and checks that the stored
// pubkey matches the secret.
func LoadKeypair(path string) (*Keypair, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var f keypairFile
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	secret, err := base58.Decode(f.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	kp, err := KeypairFromSecret(secret)
	if err != nil {
		return nil, err
	}
	if f.Pubkey != "" && f.Pubkey != kp.Pubkey().String() {
		return nil, fmt.Errorf("%w: pubkey does not match secret", ErrInvalidKeypair)
	}
	return kp, nil
}
