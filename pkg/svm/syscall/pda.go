package syscall

import (
	"crypto/sha256"

	"filippo.io/edwards25519"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// PDA constants
const (
	// MaxSeeds is the maximum number of seeds for PDA derivation
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed
	MaxSeedLen = 32
	// PDAMarker is the string appended during PDA derivation
	PDAMarker = "ProgramDerivedAddress"
)

// Compute unit costs for PDA derivation.
const (
	CUCreatePDA      uint64 = 1500
	CUFindPDAPerIter uint64 = 50
)

// CreateProgramAddress creates a PDA from seeds and program ID.
// Returns the PDA and a boolean indicating if it's valid (not on curve).
//
// PDA formula: SHA256(seeds... || program_id || "ProgramDerivedAddress")
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, bool) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, false
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, false
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(PDAMarker))

	var pda types.Pubkey
	copy(pda[:], hasher.Sum(nil))
	if IsOnCurve(pda[:]) {
		return types.ZeroPubkey, false
	}
	return pda, true
}

// FindProgramAddress finds a valid PDA by trying bump seeds from 255 to 0.
// When ctx is non-nil each attempt is metered against its compute budget.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey, ctx *ExecutionContext) (types.Pubkey, uint8, bool) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, false
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)
	bumpSeed := []byte{0}
	seedsWithBump[len(seeds)] = bumpSeed

	for bump := 255; bump >= 0; bump-- {
		if ctx != nil {
			if err := ctx.ConsumeComputeUnits(CUFindPDAPerIter); err != nil {
				return types.ZeroPubkey, 0, false
			}
		}

		bumpSeed[0] = uint8(bump)
		pda, valid := CreateProgramAddress(seedsWithBump, programID)
		if valid {
			return pda, uint8(bump), true
		}
	}

	return types.ZeroPubkey, 0, false
}

// FindProgramAddressSync is FindProgramAddress without compute metering.
func FindProgramAddressSync(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, bool) {
	return FindProgramAddress(seeds, programID, nil)
}

// IsOnCurve reports whether b is the compressed encoding of a point on the
// ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// DerivePDA is a helper to derive a PDA with string seeds.
func DerivePDA(programID types.Pubkey, seeds ...string) (types.Pubkey, uint8, bool) {
	byteSeeds := make([][]byte, len(seeds))
	for i, s := range seeds {
		byteSeeds[i] = []byte(s)
	}
	return FindProgramAddressSync(byteSeeds, programID)
}
