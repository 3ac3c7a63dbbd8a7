package stakepool

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Op is the leading byte of every stake pool instruction.
type Op uint8

// Stake pool op-codes
const (
	OpInitialize   Op = 0
	OpStake        Op = 1
	OpUnstake      Op = 2
	OpClaimRewards Op = 3
	OpLinkCard     Op = 4
	OpUnlinkCard   Op = 5
	OpProcessBNPL  Op = 6
	OpRepayBNPL    Op = 7
)

var opNames = map[Op]string{
	OpInitialize:   "initialize",
	OpStake:        "stake",
	OpUnstake:      "unstake",
	OpClaimRewards: "claim_rewards",
	OpLinkCard:     "link_card",
	OpUnlinkCard:   "unlink_card",
	OpProcessBNPL:  "process_bnpl",
	OpRepayBNPL:    "repay_bnpl",
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Request is a decoded stake pool instruction.
type Request interface {
	Op() Op
	Encode() []byte
}

// AmountRequest is the payload of every op that carries a single amount.
type AmountRequest struct {
	Amount uint64
}

func (r *AmountRequest) decode(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("%w: amount needs 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	amount, err := bin.NewBinDecoder(data).ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	r.Amount = amount
	return nil
}

func (r *AmountRequest) encode(op Op) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(uint8(op))
	_ = enc.WriteUint64(r.Amount, bin.LE)
	return buf.Bytes()
}

// InitializeRequest creates the pool.
type InitializeRequest struct {
	ReceiptMint types.Pubkey
	RewardRate  uint64
}

func (r *InitializeRequest) Op() Op { return OpInitialize }

func (r *InitializeRequest) Encode() []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(uint8(OpInitialize))
	_ = enc.WriteBytes(r.ReceiptMint[:], false)
	_ = enc.WriteUint64(r.RewardRate, bin.LE)
	return buf.Bytes()
}

func (r *InitializeRequest) decode(data []byte) error {
	if len(data) < 32 {
		return fmt.Errorf("%w: receipt mint needs 32 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	dec := bin.NewBinDecoder(data)
	mint, err := dec.ReadBytes(32)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	copy(r.ReceiptMint[:], mint)

	r.RewardRate = DefaultRewardRate
	switch {
	case len(data) == 32:
	case len(data) == 40:
		if r.RewardRate, err = dec.ReadUint64(bin.LE); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
	default:
		return fmt.Errorf("%w: initialize payload is %d bytes", ErrInvalidInstructionData, len(data))
	}
	return nil
}

// StakeRequest deposits lamports and mints receipt tokens.
type StakeRequest struct{ AmountRequest }

func (r *StakeRequest) Op() Op         { return OpStake }
func (r *StakeRequest) Encode() []byte { return r.encode(OpStake) }

// UnstakeRequest burns receipt tokens and returns lamports.
type UnstakeRequest struct{ AmountRequest }

func (r *UnstakeRequest) Op() Op         { return OpUnstake }
func (r *UnstakeRequest) Encode() []byte { return r.encode(OpUnstake) }

// ClaimRewardsRequest pays accrued rewards to the signer.
type ClaimRewardsRequest struct{}

func (r *ClaimRewardsRequest) Op() Op         { return OpClaimRewards }
func (r *ClaimRewardsRequest) Encode() []byte { return []byte{byte(OpClaimRewards)} }

// LinkCardRequest links a payment card to the signer's position.
type LinkCardRequest struct {
	CardID string
}

func (r *LinkCardRequest) Op() Op { return OpLinkCard }

func (r *LinkCardRequest) Encode() []byte {
	return append([]byte{byte(OpLinkCard)}, r.CardID...)
}

func (r *LinkCardRequest) decode(data []byte) error {
	if len(data) == 0 || len(data) > MaxCardIDLen {
		return fmt.Errorf("%w: card id must be 1..%d bytes, got %d",
			ErrInvalidInstructionData, MaxCardIDLen, len(data))
	}
	r.CardID = string(data)
	return nil
}

// UnlinkCardRequest tombstones the signer's card.
type UnlinkCardRequest struct{}

func (r *UnlinkCardRequest) Op() Op         { return OpUnlinkCard }
func (r *UnlinkCardRequest) Encode() []byte { return []byte{byte(OpUnlinkCard)} }

// ProcessBNPLRequest draws credit against the signer's stake.
type ProcessBNPLRequest struct{ AmountRequest }

func (r *ProcessBNPLRequest) Op() Op         { return OpProcessBNPL }
func (r *ProcessBNPLRequest) Encode() []byte { return r.encode(OpProcessBNPL) }

// RepayBNPLRequest pays down the signer's BNPL debt.
type RepayBNPLRequest struct{ AmountRequest }

func (r *RepayBNPLRequest) Op() Op         { return OpRepayBNPL }
func (r *RepayBNPLRequest) Encode() []byte { return r.encode(OpRepayBNPL) }

// DecodeInstruction decodes raw instruction bytes into a request. Payloads
// have a fixed width per op-code; trailing bytes are rejected.
func DecodeInstruction(data []byte) (Request, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrInvalidInstructionData)
	}
	payload := data[1:]

	var (
		req Request
		err error
	)
	switch op := Op(data[0]); op {
	case OpInitialize:
		r := &InitializeRequest{}
		req, err = r, r.decode(payload)
	case OpStake:
		r := &StakeRequest{}
		req, err = r, r.decode(payload)
	case OpUnstake:
		r := &UnstakeRequest{}
		req, err = r, r.decode(payload)
	case OpClaimRewards:
		req, err = &ClaimRewardsRequest{}, noPayload(op, payload)
	case OpLinkCard:
		r := &LinkCardRequest{}
		req, err = r, r.decode(payload)
	case OpUnlinkCard:
		req, err = &UnlinkCardRequest{}, noPayload(op, payload)
	case OpProcessBNPL:
		r := &ProcessBNPLRequest{}
		req, err = r, r.decode(payload)
	case OpRepayBNPL:
		r := &RepayBNPLRequest{}
		req, err = r, r.decode(payload)
	default:
		return nil, fmt.Errorf("%w: unknown op-code %d", ErrInvalidInstructionData, uint8(op))
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func noPayload(op Op, payload []byte) error {
	if len(payload) != 0 {
		return fmt.Errorf("%w: %s takes no payload, got %d bytes", ErrInvalidInstructionData, op, len(payload))
	}
	return nil
}
