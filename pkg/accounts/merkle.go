package accounts

import (
	"bytes"
	"sort"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// merkleArity is the number of children per node in the Merkle tree.
const merkleArity = 16

// ComputeAccountsDeltaHash computes a 16-ary Merkle root over the given
// accounts, sorted by pubkey. The runtime uses it to fingerprint the set of
// accounts a transaction modified.
func ComputeAccountsDeltaHash(accounts []types.AccountRef) types.Hash {
	if len(accounts) == 0 {
		return types.ZeroHash
	}

	sorted := make([]types.AccountRef, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Pubkey[:], sorted[j].Pubkey[:]) < 0
	})

	level := make([]types.Hash, len(sorted))
	for i, ref := range sorted {
		level[i] = ref.Account.Hash(ref.Pubkey)
	}
	for len(level) > 1 {
		level = nextMerkleLevel(level)
	}
	return level[0]
}

// ComputeStateHash hashes every account in db. Snapshots record it so an
// import can be checked against the exporting node.
func ComputeStateHash(db AccountsDB) (types.Hash, error) {
	var refs []types.AccountRef
	err := db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account})
		return nil
	})
	if err != nil {
		return types.ZeroHash, err
	}
	return ComputeAccountsDeltaHash(refs), nil
}

func nextMerkleLevel(hashes []types.Hash) []types.Hash {
	parents := make([]types.Hash, 0, (len(hashes)+merkleArity-1)/merkleArity)
	for start := 0; start < len(hashes); start += merkleArity {
		end := start + merkleArity
		if end > len(hashes) {
			end = len(hashes)
		}
		parents = append(parents, hashChildren(hashes[start:end]))
	}
	return parents
}

func hashChildren(children []types.Hash) types.Hash {
	if len(children) == 1 {
		return children[0]
	}
	data := make([]byte, 0, len(children)*32)
	for _, child := range children {
		data = append(data, child[:]...)
	}
	return types.SHA256(data)
}
