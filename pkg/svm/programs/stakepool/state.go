package stakepool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Pool record layout
const (
	// PoolHeaderSize is the fixed part of the pool record.
	PoolHeaderSize = 101

	// CardEntrySize is the width of one linked card entry.
	CardEntrySize = 74

	// MaxLinkedCards is the capacity of the card arena.
	MaxLinkedCards = 64

	// PoolAccountSize is the data size allocated for the pool account.
	PoolAccountSize = PoolHeaderSize + MaxLinkedCards*CardEntrySize

	// MaxCardIDLen bounds the card identifier.
	MaxCardIDLen = 32
)

// CardStatus is the state of a linked card.
type CardStatus uint8

const (
	CardLinked   CardStatus = 1
	CardUnlinked CardStatus = 2
)

// String implements fmt.Stringer.
func (s CardStatus) String() string {
	switch s {
	case CardLinked:
		return "linked"
	case CardUnlinked:
		return "unlinked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// CardInfo is the card linked to one depositor.
type CardInfo struct {
	CardID   string
	Status   CardStatus
	LinkedAt int64
}

// CardEntry is one row of the card arena.
type CardEntry struct {
	Owner types.Pubkey
	CardInfo
}

// PoolRecord is the persistent state of the pool account.
//
// Layout (little endian):
//
//	total_staked      u64       0
//	reward_rate       u64       8
//	last_accrual_time i64       16
//	authority         [32]byte  24
//	total_receipt     u64       56
//	receipt_mint      [32]byte  64
//	is_initialized    u8        96
//	card_count        u32       97
//	cards             74*count  101
//
// Card entry: owner [32] | status u8 | linked_at i64 | card_id_len u8 | card_id [32].
// Entries are kept sorted by owner.
type PoolRecord struct {
	TotalStaked     uint64
	RewardRate      uint64
	LastAccrualTime int64
	Authority       types.Pubkey
	TotalReceipt    uint64
	ReceiptMint     types.Pubkey
	IsInitialized   bool
	Cards           []CardEntry
}

// DecodePoolRecord decodes a pool record. It never reads past card_count
// entries or the end of data.
func DecodePoolRecord(data []byte) (*PoolRecord, error) {
	if len(data) < PoolHeaderSize {
		return nil, fmt.Errorf("%w: pool record is %d bytes, header needs %d",
			ErrBufferTooSmall, len(data), PoolHeaderSize)
	}

	r := &PoolRecord{}
	r.TotalStaked = binary.LittleEndian.Uint64(data[0:8])
	r.RewardRate = binary.LittleEndian.Uint64(data[8:16])
	r.LastAccrualTime = int64(binary.LittleEndian.Uint64(data[16:24]))
	copy(r.Authority[:], data[24:56])
	r.TotalReceipt = binary.LittleEndian.Uint64(data[56:64])
	copy(r.ReceiptMint[:], data[64:96])
	r.IsInitialized = data[96] != 0

	count := binary.LittleEndian.Uint32(data[97:101])
	if uint64(count)*CardEntrySize > uint64(len(data)-PoolHeaderSize) {
		return nil, fmt.Errorf("%w: %d card entries do not fit in %d bytes",
			ErrBufferTooSmall, count, len(data))
	}

	if count > 0 {
		r.Cards = make([]CardEntry, count)
	}
	offset := PoolHeaderSize
	for i := range r.Cards {
		entry, err := decodeCardEntry(data[offset : offset+CardEntrySize])
		if err != nil {
			return nil, fmt.Errorf("card entry %d: %w", i, err)
		}
		r.Cards[i] = entry
		offset += CardEntrySize
	}
	r.sortCards()
	return r, nil
}

func decodeCardEntry(b []byte) (CardEntry, error) {
	var e CardEntry
	copy(e.Owner[:], b[0:32])
	e.Status = CardStatus(b[32])
	if e.Status != CardLinked && e.Status != CardUnlinked {
		return CardEntry{}, fmt.Errorf("%w: card status %d", ErrInvalidInstructionData, b[32])
	}
	e.LinkedAt = int64(binary.LittleEndian.Uint64(b[33:41]))
	n := int(b[41])
	if n > MaxCardIDLen {
		return CardEntry{}, fmt.Errorf("%w: card id length %d", ErrInvalidInstructionData, n)
	}
	e.CardID = string(b[42 : 42+n])
	return e, nil
}

// EncodedSize is the number of bytes Encode writes.
func (r *PoolRecord) EncodedSize() int {
	return PoolHeaderSize + len(r.Cards)*CardEntrySize
}

// Encode writes the record into dst. Bytes past the last entry are zeroed.
func (r *PoolRecord) Encode(dst []byte) error {
	if len(dst) < r.EncodedSize() {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, r.EncodedSize(), len(dst))
	}

	binary.LittleEndian.PutUint64(dst[0:8], r.TotalStaked)
	binary.LittleEndian.PutUint64(dst[8:16], r.RewardRate)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.LastAccrualTime))
	copy(dst[24:56], r.Authority[:])
	binary.LittleEndian.PutUint64(dst[56:64], r.TotalReceipt)
	copy(dst[64:96], r.ReceiptMint[:])
	dst[96] = 0
	if r.IsInitialized {
		dst[96] = 1
	}
	binary.LittleEndian.PutUint32(dst[97:101], uint32(len(r.Cards)))

	r.sortCards()
	offset := PoolHeaderSize
	for _, e := range r.Cards {
		b := dst[offset : offset+CardEntrySize]
		copy(b[0:32], e.Owner[:])
		b[32] = uint8(e.Status)
		binary.LittleEndian.PutUint64(b[33:41], uint64(e.LinkedAt))
		clear(b[41:])
		b[41] = uint8(copy(b[42:42+MaxCardIDLen], e.CardID))
		offset += CardEntrySize
	}
	clear(dst[offset:])
	return nil
}

// Serialize encodes the record into a PoolAccountSize buffer.
func (r *PoolRecord) Serialize() ([]byte, error) {
	data := make([]byte, PoolAccountSize)
	if err := r.Encode(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *PoolRecord) sortCards() {
	sort.Slice(r.Cards, func(i, j int) bool {
		return bytes.Compare(r.Cards[i].Owner[:], r.Cards[j].Owner[:]) < 0
	})
}

// findCard returns the index of owner's entry.
func (r *PoolRecord) findCard(owner types.Pubkey) (int, bool) {
	i := sort.Search(len(r.Cards), func(i int) bool {
		return bytes.Compare(r.Cards[i].Owner[:], owner[:]) >= 0
	})
	return i, i < len(r.Cards) && r.Cards[i].Owner == owner
}

// Card returns the card linked to owner, if any entry exists.
func (r *PoolRecord) Card(owner types.Pubkey) (CardInfo, bool) {
	i, ok := r.findCard(owner)
	if !ok {
		return CardInfo{}, false
	}
	return r.Cards[i].CardInfo, true
}

// SetCard inserts or replaces owner's entry, keeping the arena sorted.
func (r *PoolRecord) SetCard(owner types.Pubkey, info CardInfo) error {
	i, ok := r.findCard(owner)
	if ok {
		r.Cards[i].CardInfo = info
		return nil
	}
	if len(r.Cards) >= MaxLinkedCards {
		return fmt.Errorf("%w: card arena holds %d entries", ErrBufferTooSmall, MaxLinkedCards)
	}
	r.Cards = append(r.Cards, CardEntry{})
	copy(r.Cards[i+1:], r.Cards[i:])
	r.Cards[i] = CardEntry{Owner: owner, CardInfo: info}
	return nil
}

// LinkedCards counts entries in the Linked state.
func (r *PoolRecord) LinkedCards() int {
	n := 0
	for _, e := range r.Cards {
		if e.Status == CardLinked {
			n++
		}
	}
	return n
}
