package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// VerifyResult contains the result of verifying a snapshot.
type VerifyResult struct {
	Manifest      *Manifest
	AccountsCount uint64
	LamportsTotal uint64
	StateHash     types.Hash
}

// Verify reads the whole archive without a ledger and checks the account
// count, lamport total, ordering and state hash against the manifest.
func Verify(path string) (*VerifyResult, error) {
	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	manifest := archive.Manifest()

	reader, err := archive.Accounts()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Manifest: manifest}
	var (
		refs []types.AccountRef
		prev *types.Pubkey
	)
	for {
		entry, err := reader.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if prev != nil && bytes.Compare(prev[:], entry.Pubkey[:]) >= 0 {
			return nil, fmt.Errorf("%w: account %s out of order", ErrInvalidArchive, entry.Pubkey)
		}
		pk := entry.Pubkey
		prev = &pk
		refs = append(refs, types.AccountRef{Pubkey: entry.Pubkey, Account: entry.Account})
		result.AccountsCount++
		result.LamportsTotal += uint64(entry.Account.Lamports)
	}

	if result.AccountsCount != manifest.AccountsCount {
		return nil, fmt.Errorf("%w: manifest lists %d accounts, archive holds %d",
			ErrInvalidArchive, manifest.AccountsCount, result.AccountsCount)
	}
	if result.LamportsTotal != manifest.LamportsTotal {
		return nil, fmt.Errorf("%w: manifest lists %d lamports, archive holds %d",
			ErrInvalidArchive, manifest.LamportsTotal, result.LamportsTotal)
	}
	result.StateHash = accounts.ComputeAccountsDeltaHash(refs)
	if result.StateHash != manifest.StateHash {
		return nil, fmt.Errorf("%w: state hash %s, manifest %s", ErrHashMismatch, result.StateHash, manifest.StateHash)
	}
	return result, nil
}

// QuickVerify checks only that the archive opens and its manifest parses.
func QuickVerify(path string) (*Manifest, error) {
	archive, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	return archive.Manifest(), nil
}

// FileDigest returns the BLAKE2b-256 digest of the archive file, for
// comparing copies out of band.
func FileDigest(path string) (types.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ZeroHash, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return types.ZeroHash, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return types.ZeroHash, fmt.Errorf("digest %s: %w", path, err)
	}
	var digest types.Hash
	copy(digest[:], h.Sum(nil))
	return digest, nil
}
