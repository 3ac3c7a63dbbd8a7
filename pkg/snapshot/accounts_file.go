package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Account record layout:
//
//	pubkey      [32]byte
//	record_len  u32
//	record      accounts.SerializeAccount output

const recordHeaderSize = 32 + 4

// maxRecordSize bounds a single account record when reading untrusted input.
const maxRecordSize = 10*1024*1024 + 64

// ErrInvalidRecord is returned when an account record is malformed.
var ErrInvalidRecord = errors.New("invalid account record")

// AccountEntry is one account read from a snapshot.
type AccountEntry struct {
	Pubkey  types.Pubkey
	Account *types.Account
}

// AccountsWriter writes account records.
type AccountsWriter struct {
	w        *bufio.Writer
	count    uint64
	lamports uint64
	refs     []types.AccountRef
}

// NewAccountsWriter creates a writer over w.
func NewAccountsWriter(w io.Writer) *AccountsWriter {
	return &AccountsWriter{w: bufio.NewWriter(w)}
}

// Write appends one account.
func (aw *AccountsWriter) Write(pubkey types.Pubkey, account *types.Account) error {
	record, err := accounts.SerializeAccount(account)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", pubkey, err)
	}
	var header [recordHeaderSize]byte
	copy(header[:32], pubkey[:])
	binary.LittleEndian.PutUint32(header[32:], uint32(len(record)))
	if _, err := aw.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := aw.w.Write(record); err != nil {
		return err
	}

	if aw.lamports+uint64(account.Lamports) < aw.lamports {
		return fmt.Errorf("lamport total overflows at %s", pubkey)
	}
	aw.lamports += uint64(account.Lamports)
	aw.count++
	aw.refs = append(aw.refs, types.AccountRef{Pubkey: pubkey, Account: account})
	return nil
}

// Flush flushes buffered records.
func (aw *AccountsWriter) Flush() error {
	return aw.w.Flush()
}

// Count returns the number of accounts written.
func (aw *AccountsWriter) Count() uint64 {
	return aw.count
}

// LamportsTotal returns the sum of written balances.
func (aw *AccountsWriter) LamportsTotal() uint64 {
	return aw.lamports
}

// StateHash returns the state hash over the written accounts.
func (aw *AccountsWriter) StateHash() types.Hash {
	return accounts.ComputeAccountsDeltaHash(aw.refs)
}

// AccountsReader reads account records.
type AccountsReader struct {
	r    *bufio.Reader
	read uint64
}

// NewAccountsReader creates a reader over r.
func NewAccountsReader(r io.Reader) *AccountsReader {
	return &AccountsReader{r: bufio.NewReader(r)}
}

// ReadNext returns the next account, or io.EOF after the last one.
func (ar *AccountsReader) ReadNext() (*AccountEntry, error) {
	var header [recordHeaderSize]byte
	n, err := io.ReadFull(ar.r, header[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: record %d header (%d bytes): %v", ErrInvalidRecord, ar.read, n, err)
	}

	size := binary.LittleEndian.Uint32(header[32:])
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: record %d is %d bytes", ErrInvalidRecord, ar.read, size)
	}
	record := make([]byte, size)
	if _, err := io.ReadFull(ar.r, record); err != nil {
		return nil, fmt.Errorf("%w: record %d body: %v", ErrInvalidRecord, ar.read, err)
	}
	account, err := accounts.DeserializeAccount(record)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, ar.read, err)
	}

	entry := &AccountEntry{Account: account}
	copy(entry.Pubkey[:], header[:32])
	ar.read++
	return entry, nil
}

// Count returns the number of records read so far.
func (ar *AccountsReader) Count() uint64 {
	return ar.read
}
