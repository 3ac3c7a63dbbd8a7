// Package snapshot exports and imports the account ledger.
//
// A snapshot is a zstd-compressed tar archive holding two entries, written in
// this order:
//
//	manifest.json   ledger metadata and the state hash
//	accounts.bin    one record per account, ascending by pubkey
//
// Import recomputes the state hash and rejects the archive on mismatch.
package snapshot

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when a hash verification fails.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrLedgerNotEmpty is returned when importing into a populated ledger.
	ErrLedgerNotEmpty = errors.New("ledger is not empty")
)

// FormatVersion is the archive layout version.
const FormatVersion uint32 = 1

const (
	manifestEntry = "manifest.json"
	accountsEntry = "accounts.bin"
)

// State is the executor state carried alongside the accounts.
type State struct {
	Slot          types.Slot
	LastTimestamp int64
}

// Manifest contains metadata about a snapshot.
type Manifest struct {
	Version       uint32     `json:"version"`
	Slot          uint64     `json:"slot"`
	LastTimestamp int64      `json:"last_timestamp"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	StateHash     types.Hash `json:"state_hash"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MarshalJSON encodes the state hash in base58.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.Marshal(&struct {
		StateHash string `json:"state_hash"`
		*Alias
	}{
		StateHash: m.StateHash.String(),
		Alias:     (*Alias)(m),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Manifest.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type Alias Manifest
	aux := &struct {
		StateHash string `json:"state_hash"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	hash, err := types.HashFromBase58(aux.StateHash)
	if err != nil {
		return fmt.Errorf("%w: state_hash: %v", ErrInvalidManifest, err)
	}
	m.StateHash = hash
	return nil
}

// State returns the executor state recorded in the manifest.
func (m *Manifest) State() State {
	return State{Slot: types.Slot(m.Slot), LastTimestamp: m.LastTimestamp}
}

// Archive is an open snapshot for reading.
type Archive struct {
	path      string
	file      *os.File
	decoder   *zstd.Decoder
	tarReader *tar.Reader
	manifest  *Manifest
}

// OpenArchive opens a snapshot and reads its manifest.
func OpenArchive(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	a := &Archive{
		path:      path,
		file:      file,
		decoder:   decoder,
		tarReader: tar.NewReader(decoder),
	}
	if err := a.readManifest(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Path returns the archive path.
func (a *Archive) Path() string {
	return a.path
}

// Manifest returns the parsed manifest.
func (a *Archive) Manifest() *Manifest {
	return a.manifest
}

func (a *Archive) readManifest() error {
	header, err := a.tarReader.Next()
	if err != nil {
		return fmt.Errorf("%w: reading manifest header: %v", ErrInvalidArchive, err)
	}
	if header.Name != manifestEntry {
		return fmt.Errorf("%w: first entry is %q, want %q", ErrInvalidArchive, header.Name, manifestEntry)
	}
	data, err := io.ReadAll(a.tarReader)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	manifest := &Manifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if manifest.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, manifest.Version)
	}
	a.manifest = manifest
	return nil
}

// Accounts returns a reader over the account records. It must be called
// once, after OpenArchive.
func (a *Archive) Accounts() (*AccountsReader, error) {
	header, err := a.tarReader.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: reading accounts header: %v", ErrInvalidArchive, err)
	}
	if header.Name != accountsEntry {
		return nil, fmt.Errorf("%w: second entry is %q, want %q", ErrInvalidArchive, header.Name, accountsEntry)
	}
	return NewAccountsReader(a.tarReader), nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.decoder != nil {
		a.decoder.Close()
	}
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
