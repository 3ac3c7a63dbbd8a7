package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/x1-stakepool/pkg/journal"
	"github.com/fortiblox/x1-stakepool/pkg/node"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// Backend is the node surface the RPC serves.
type Backend interface {
	Client() *stakepool.Client
	Slot() types.Slot
	Submit(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error)
	Airdrop(to types.Pubkey, lamports uint64) error
	Account(pubkey types.Pubkey) (*types.Account, error)
	PoolState() (*stakepool.PoolRecord, uint64, error)
	UserStake(owner types.Pubkey) (*stakepool.UserStakeRecord, error)
	ReceiptBalance(owner types.Pubkey) (uint64, error)
	TokenBalance(account types.Pubkey) (uint64, error)
	History(ctx context.Context, owner types.Pubkey, limit int) ([]journal.Entry, error)
}

// Handler handles one JSON-RPC method.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// Handlers holds the method table.
type Handlers struct {
	backend  Backend
	version  string
	handlers map[string]Handler
}

// NewHandlers creates the method table for backend.
func NewHandlers(backend Backend, version string) *Handlers {
	h := &Handlers{
		backend:  backend,
		version:  version,
		handlers: make(map[string]Handler),
	}
	h.registerHandlers()
	return h
}

func (h *Handlers) registerHandlers() {
	h.handlers["getHealth"] = h.getHealth
	h.handlers["getVersion"] = h.getVersion
	h.handlers["getSlot"] = h.getSlot
	h.handlers["getAccountInfo"] = h.getAccountInfo
	h.handlers["getBalance"] = h.getBalance
	h.handlers["getTokenBalance"] = h.getTokenBalance
	h.handlers["getPoolState"] = h.getPoolState
	h.handlers["getUserStake"] = h.getUserStake
	h.handlers["getTransactionHistory"] = h.getTransactionHistory
	h.handlers["sendTransaction"] = h.sendTransaction
	h.handlers["requestAirdrop"] = h.requestAirdrop
}

// GetHandler returns the handler for method, or nil.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// parseParams decodes a positional params array into dst. The first
// required entries must be present.
func parseParams(params json.RawMessage, required int, dst ...interface{}) *RPCError {
	var list []json.RawMessage
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &list); err != nil {
			return NewRPCError(InvalidParams, "params must be an array")
		}
	}
	if len(list) < required {
		return NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", required, len(list)))
	}
	if len(list) > len(dst) {
		return NewRPCError(InvalidParams, fmt.Sprintf("expected at most %d params, got %d", len(dst), len(list)))
	}
	for i, raw := range list {
		if string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return NewRPCError(InvalidParams, fmt.Sprintf("param %d: %v", i, err))
		}
	}
	return nil
}

func parsePubkey(s string) (types.Pubkey, *RPCError) {
	pk, err := DecodePubkey(s)
	if err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey %q: %v", s, err))
	}
	return pk, nil
}

func internalError(err error) *RPCError {
	return NewRPCError(InternalError, err.Error())
}

func (h *Handlers) contextual(value interface{}) ContextualResult {
	return ContextualResult{
		Context: Context{Slot: uint64(h.backend.Slot())},
		Value:   value,
	}
}

func (h *Handlers) getHealth(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return "ok", nil
}

func (h *Handlers) getVersion(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{
		Version: h.version,
		Program: h.backend.Client().ProgramID.String(),
	}, nil
}

func (h *Handlers) getSlot(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return uint64(h.backend.Slot()), nil
}

// getAccountInfo params: [pubkey, {encoding, dataSlice}]
func (h *Handlers) getAccountInfo(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var (
		address string
		opts    AccountInfoOptions
	)
	if rpcErr := parseParams(params, 1, &address, &opts); rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	acc, err := h.backend.Account(pubkey)
	if err != nil {
		return nil, internalError(err)
	}
	if acc == nil {
		return h.contextual(nil), nil
	}

	data, err := EncodeAccountData(SliceData(acc.Data, opts.DataSlice), opts.Encoding)
	if err != nil {
		return nil, NewRPCError(UnsupportedEncoding, err.Error())
	}
	return h.contextual(AccountInfoResult{
		Lamports:   uint64(acc.Lamports),
		Data:       data,
		Owner:      acc.Owner.String(),
		Executable: acc.Executable,
		Space:      uint64(len(acc.Data)),
	}), nil
}

// getBalance params: [pubkey]
func (h *Handlers) getBalance(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var address string
	if rpcErr := parseParams(params, 1, &address); rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, err := h.backend.Account(pubkey)
	if err != nil {
		return nil, internalError(err)
	}
	var lamports uint64
	if acc != nil {
		lamports = uint64(acc.Lamports)
	}
	return h.contextual(lamports), nil
}

// getTokenBalance params: [tokenAccount]
func (h *Handlers) getTokenBalance(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var address string
	if rpcErr := parseParams(params, 1, &address); rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := h.backend.TokenBalance(pubkey)
	if err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}
	return h.contextual(balance), nil
}

func (h *Handlers) getPoolState(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	record, reserve, err := h.backend.PoolState()
	if errors.Is(err, node.ErrPoolNotFound) {
		return nil, NewRPCError(PoolNotInitialized, err.Error())
	}
	if err != nil {
		return nil, internalError(err)
	}

	cards := make([]CardResult, 0, len(record.Cards))
	for _, c := range record.Cards {
		cards = append(cards, cardResult(c.Owner, c.CardInfo))
	}
	return h.contextual(PoolStateResult{
		Address:         h.backend.Client().Pool.String(),
		Authority:       record.Authority.String(),
		ReceiptMint:     record.ReceiptMint.String(),
		TotalStaked:     record.TotalStaked,
		TotalStakedSOL:  types.Lamports(record.TotalStaked).SOL(),
		TotalReceipt:    record.TotalReceipt,
		RewardRate:      record.RewardRate,
		LastAccrualTime: record.LastAccrualTime,
		Reserve:         reserve,
		ReserveSOL:      types.Lamports(reserve).SOL(),
		Cards:           cards,
	}), nil
}

func cardResult(owner types.Pubkey, info stakepool.CardInfo) CardResult {
	return CardResult{
		Owner:    owner.String(),
		CardID:   info.CardID,
		Status:   info.Status.String(),
		LinkedAt: info.LinkedAt,
	}
}

// getUserStake params: [owner]
func (h *Handlers) getUserStake(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var address string
	if rpcErr := parseParams(params, 1, &address); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	user, err := h.backend.UserStake(owner)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return h.contextual(nil), nil
	}
	receipt, err := h.backend.ReceiptBalance(owner)
	if err != nil {
		return nil, internalError(err)
	}

	result := UserStakeResult{
		Address:         h.backend.Client().UserStakeAddress(owner).String(),
		Owner:           owner.String(),
		Amount:          user.Amount,
		AmountSOL:       types.Lamports(user.Amount).SOL(),
		ReceiptBalance:  receipt,
		CreditLimit:     user.CreditLimit(),
		Debt:            user.Debt,
		AvailableCredit: user.AvailableCredit(),
	}

	record, _, err := h.backend.PoolState()
	if err != nil && !errors.Is(err, node.ErrPoolNotFound) {
		return nil, internalError(err)
	}
	if record != nil {
		if info, ok := record.Card(owner); ok {
			card := cardResult(owner, info)
			result.Card = &card
		}
	}
	return h.contextual(result), nil
}

// getTransactionHistory params: [owner, {limit}]
func (h *Handlers) getTransactionHistory(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var (
		address string
		opts    HistoryOptions
	)
	if rpcErr := parseParams(params, 1, &address, &opts); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	entries, err := h.backend.History(ctx, owner, opts.Limit)
	if errors.Is(err, node.ErrNoJournal) {
		return nil, NewRPCError(HistoryUnavailable, err.Error())
	}
	if err != nil {
		return nil, internalError(err)
	}

	out := make([]HistoryEntryResult, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		var ops []string
		if e.Ops != "" {
			ops = strings.Split(e.Ops, ",")
		}
		out = append(out, HistoryEntryResult{
			Signature: e.Signature,
			Slot:      e.Slot,
			BlockTime: e.BlockTime,
			Ops:       ops,
			Amount:    e.Amount,
			AmountSOL: e.AmountSOL(),
			Success:   e.Success,
			ErrorCode: e.ErrorCode,
			Error:     e.Error,
		})
	}
	return out, nil
}

// sendTransaction params: [encodedTx, {encoding}]
//
// Returns the signature once the transaction has committed. Execution
// failures come back as SendTransactionError with the program logs.
func (h *Handlers) sendTransaction(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var (
		encoded string
		opts    SendTransactionOptions
	)
	if rpcErr := parseParams(params, 1, &encoded, &opts); rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := DecodeTransaction(encoded, opts.Encoding)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid transaction: %v", err))
	}

	result, err := h.backend.Submit(ctx, tx)
	if err != nil {
		return nil, internalError(err)
	}
	if !result.Success {
		return nil, NewRPCErrorWithData(SendTransactionError,
			fmt.Sprintf("Transaction failed: %v", result.Error),
			SendTransactionErrorData{
				Signature: result.Signature.String(),
				Code:      stakepool.ErrorCode(result.Error),
				Err:       result.Error.Error(),
				Logs:      result.Logs,
			})
	}
	return result.Signature.String(), nil
}

// requestAirdrop params: [pubkey, lamports]
//
// Returns the recipient's new balance.
func (h *Handlers) requestAirdrop(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var (
		address  string
		lamports uint64
	)
	if rpcErr := parseParams(params, 2, &address, &lamports); rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parsePubkey(address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := h.backend.Airdrop(to, lamports); err != nil {
		return nil, NewRPCError(AirdropError, err.Error())
	}
	acc, err := h.backend.Account(to)
	if err != nil || acc == nil {
		return nil, internalError(fmt.Errorf("read %s after airdrop: %v", to, err))
	}
	return uint64(acc.Lamports), nil
}
