// Package rpc provides the node's JSON-RPC 2.0 server.
package rpc

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Server error codes
	SendTransactionError = -32002
	TransactionNotFound  = -32003
	PoolNotInitialized   = -32004
	AirdropError         = -32005
	HistoryUnavailable   = -32008
	UnsupportedEncoding  = -32011
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Context carries the slot a result was read at.
type Context struct {
	Slot uint64 `json:"slot"`
}

// ContextualResult wraps a result with context.
type ContextualResult struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfoResult represents the result of getAccountInfo.
type AccountInfoResult struct {
	Lamports   uint64        `json:"lamports"`
	Data       []interface{} `json:"data"` // [data, encoding]
	Owner      string        `json:"owner"`
	Executable bool          `json:"executable"`
	Space      uint64        `json:"space"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo.
type AccountInfoOptions struct {
	Encoding  string     `json:"encoding,omitempty"` // base58, base64, base64+zstd
	DataSlice *DataSlice `json:"dataSlice,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// VersionResult represents the result of getVersion.
type VersionResult struct {
	Version string `json:"version"`
	Program string `json:"program"`
}

// CardResult is one card map entry.
type CardResult struct {
	Owner    string `json:"owner"`
	CardID   string `json:"cardId"`
	Status   string `json:"status"`
	LinkedAt int64  `json:"linkedAt"`
}

// PoolStateResult represents the result of getPoolState.
type PoolStateResult struct {
	Address         string          `json:"address"`
	Authority       string          `json:"authority"`
	ReceiptMint     string          `json:"receiptMint"`
	TotalStaked     uint64          `json:"totalStaked"`
	TotalStakedSOL  decimal.Decimal `json:"totalStakedSol"`
	TotalReceipt    uint64          `json:"totalReceipt"`
	RewardRate      uint64          `json:"rewardRate"`
	LastAccrualTime int64           `json:"lastAccrualTime"`
	Reserve         uint64          `json:"reserve"`
	ReserveSOL      decimal.Decimal `json:"reserveSol"`
	Cards           []CardResult    `json:"cards"`
}

// UserStakeResult represents the result of getUserStake.
type UserStakeResult struct {
	Address         string          `json:"address"`
	Owner           string          `json:"owner"`
	Amount          uint64          `json:"amount"`
	AmountSOL       decimal.Decimal `json:"amountSol"`
	ReceiptBalance  uint64          `json:"receiptBalance"`
	CreditLimit     uint64          `json:"creditLimit"`
	Debt            uint64          `json:"debt"`
	AvailableCredit uint64          `json:"availableCredit"`
	Card            *CardResult     `json:"card,omitempty"`
}

// HistoryEntryResult is one getTransactionHistory entry.
type HistoryEntryResult struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime int64           `json:"blockTime"`
	Ops       []string        `json:"ops"`
	Amount    uint64          `json:"amount"`
	AmountSOL decimal.Decimal `json:"amountSol"`
	Success   bool            `json:"success"`
	ErrorCode uint32          `json:"errorCode,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SendTransactionErrorData accompanies a failed sendTransaction.
type SendTransactionErrorData struct {
	Signature string   `json:"signature"`
	Code      uint32   `json:"code,omitempty"`
	Err       string   `json:"err"`
	Logs      []string `json:"logs"`
}

// HistoryOptions represents optional parameters for getTransactionHistory.
type HistoryOptions struct {
	Limit int `json:"limit,omitempty"`
}

// SendTransactionOptions represents optional parameters for sendTransaction.
type SendTransactionOptions struct {
	Encoding string `json:"encoding,omitempty"` // base58 or base64
}
