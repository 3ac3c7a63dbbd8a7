package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/genesis"
	"github.com/fortiblox/x1-stakepool/pkg/node"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/svm/programs/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/types"
)

type testServer struct {
	node    *node.Node
	handler http.Handler
	genesis *genesis.Genesis
	alice   *crypto.Keypair
}

func newTestServer(t *testing.T, config *ServerConfig) *testServer {
	t.Helper()
	authority, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	mint, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	alice, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	g := &genesis.Genesis{
		Authority:       authority,
		Mint:            mint,
		RewardRate:      stakepool.DefaultRewardRate,
		ReceiptDecimals: 9,
		Allocations: []genesis.Allocation{
			{Pubkey: authority.Pubkey(), Lamports: 10 * types.LamportsPerSOL},
			{Pubkey: alice.Pubkey(), Lamports: 100 * types.LamportsPerSOL},
		},
	}
	db := accounts.NewMemoryDB()
	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	exec := runtime.NewExecutor(db, registry, runtime.NewManualClock(time.Unix(1_700_000_000, 0)))
	_, err = g.Apply(db, exec)
	require.NoError(t, err)

	n := node.New(db, exec, node.WithAirdrop(5*types.LamportsPerSOL))
	if config == nil {
		config = DefaultServerConfig()
		config.RateLimitRPS = 0
	}
	return &testServer{
		node:    n,
		handler: NewServer(config, n).Handler(),
		genesis: g,
		alice:   alice,
	}
}

func (ts *testServer) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

type rawResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     interface{}     `json:"id"`
}

func (ts *testServer) call(t *testing.T, method string, params ...interface{}) rawResponse {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	rec := ts.post(t, string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (ts *testServer) send(t *testing.T, signer *crypto.Keypair, ixs ...types.Instruction) rawResponse {
	t.Helper()
	tx, err := crypto.NewSignedTransaction(types.ZeroHash, ixs, signer)
	require.NoError(t, err)
	raw, err := tx.Serialize()
	require.NoError(t, err)
	return ts.call(t, "sendTransaction", base64.StdEncoding.EncodeToString(raw), map[string]string{"encoding": "base64"})
}

func TestGetHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.call(t, "getHealth")
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"ok"`, string(resp.Result))

	resp = ts.call(t, "getVersion")
	require.Nil(t, resp.Error)
	var version VersionResult
	require.NoError(t, json.Unmarshal(resp.Result, &version))
	assert.Equal(t, "dev", version.Version)
	assert.Equal(t, types.StakePoolProgramID.String(), version.Program)
}

func TestSendTransactionStake(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.node.Client()
	mint := ts.genesis.Mint.Pubkey()

	resp := ts.send(t, ts.alice, client.Stake(ts.alice.Pubkey(), mint, 2*types.LamportsPerSOL))
	require.Nil(t, resp.Error)
	var sig string
	require.NoError(t, json.Unmarshal(resp.Result, &sig))
	assert.NotEmpty(t, sig)

	resp = ts.call(t, "getPoolState")
	require.Nil(t, resp.Error)
	var pool struct {
		Value PoolStateResult `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &pool))
	assert.Equal(t, uint64(2*types.LamportsPerSOL), pool.Value.TotalStaked)
	assert.Equal(t, "2", pool.Value.TotalStakedSOL.String())
	assert.Equal(t, mint.String(), pool.Value.ReceiptMint)

	resp = ts.call(t, "getUserStake", ts.alice.Pubkey().String())
	require.Nil(t, resp.Error)
	var user struct {
		Value *UserStakeResult `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &user))
	require.NotNil(t, user.Value)
	assert.Equal(t, uint64(2*types.LamportsPerSOL), user.Value.Amount)
	assert.Equal(t, uint64(2*types.LamportsPerSOL), user.Value.ReceiptBalance)
	assert.Equal(t, user.Value.CreditLimit, user.Value.AvailableCredit)
	assert.Nil(t, user.Value.Card)

	resp = ts.call(t, "getTokenBalance", client.ReceiptAddress(ts.alice.Pubkey()).String())
	require.Nil(t, resp.Error)
	var balance struct {
		Value uint64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	assert.Equal(t, uint64(2*types.LamportsPerSOL), balance.Value)
}

func TestSendTransactionFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.node.Client()

	resp := ts.send(t, ts.alice, client.Stake(ts.alice.Pubkey(), ts.genesis.Mint.Pubkey(), 0))
	require.NotNil(t, resp.Error)
	assert.Equal(t, SendTransactionError, resp.Error.Code)

	data, err := json.Marshal(resp.Error.Data)
	require.NoError(t, err)
	var detail SendTransactionErrorData
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, stakepool.ErrorCode(stakepool.ErrZeroAmount), detail.Code)
	assert.NotEmpty(t, detail.Signature)
}

func TestSendTransactionBadEncoding(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.call(t, "sendTransaction", "!!!", map[string]string{"encoding": "base64"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)

	resp = ts.call(t, "sendTransaction", "AAAA", map[string]string{"encoding": "hex"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestGetAccountInfo(t *testing.T) {
	ts := newTestServer(t, nil)
	pool := ts.node.Client().Pool

	resp := ts.call(t, "getAccountInfo", pool.String(), map[string]interface{}{
		"encoding":  "base64",
		"dataSlice": map[string]int{"offset": 8, "length": 8},
	})
	require.Nil(t, resp.Error)
	var info struct {
		Value AccountInfoResult `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &info))
	assert.Equal(t, types.StakePoolProgramID.String(), info.Value.Owner)
	require.Len(t, info.Value.Data, 2)
	raw, err := base64.StdEncoding.DecodeString(info.Value.Data[0].(string))
	require.NoError(t, err)
	// reward_rate
	assert.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, raw)

	missing, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	resp = ts.call(t, "getAccountInfo", missing.Pubkey().String())
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":2},"value":null}`, string(resp.Result))

	resp = ts.call(t, "getAccountInfo", "not-a-key")
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestRequestAirdrop(t *testing.T) {
	ts := newTestServer(t, nil)
	bob, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	resp := ts.call(t, "requestAirdrop", bob.Pubkey().String(), types.LamportsPerSOL)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `1000000000`, string(resp.Result))

	resp = ts.call(t, "getBalance", bob.Pubkey().String())
	require.Nil(t, resp.Error)
	var balance struct {
		Value uint64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	assert.Equal(t, uint64(types.LamportsPerSOL), balance.Value)

	resp = ts.call(t, "requestAirdrop", bob.Pubkey().String(), 50*types.LamportsPerSOL)
	require.NotNil(t, resp.Error)
	assert.Equal(t, AirdropError, resp.Error.Code)
}

func TestHistoryWithoutJournal(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.call(t, "getTransactionHistory", ts.alice.Pubkey().String())
	require.NotNil(t, resp.Error)
	assert.Equal(t, HistoryUnavailable, resp.Error.Code)
}

func TestProtocolErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.call(t, "noSuchMethod")
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)

	rec := ts.post(t, `{"jsonrpc":"1.0","id":7,"method":"getSlot"}`)
	var r rawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	require.NotNil(t, r.Error)
	assert.Equal(t, InvalidRequest, r.Error.Code)

	rec = ts.post(t, `{not json`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	require.NotNil(t, r.Error)
	assert.Equal(t, ParseError, r.Error.Code)

	resp = ts.call(t, "getBalance")
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestBatchRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.post(t, `[
		{"jsonrpc":"2.0","id":1,"method":"getSlot"},
		{"jsonrpc":"2.0","method":"getHealth"},
		{"jsonrpc":"2.0","id":2,"method":"getHealth"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var responses []rawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &responses))
	require.Len(t, responses, 2)
	assert.JSONEq(t, `2`, string(responses[0].Result))
	assert.JSONEq(t, `"ok"`, string(responses[1].Result))
}

func TestRateLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.RateLimitRPS = 1
	config.RateLimitBurst = 2
	ts := newTestServer(t, config)

	body := `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`
	assert.Equal(t, http.StatusOK, ts.post(t, body).Code)
	assert.Equal(t, http.StatusOK, ts.post(t, body).Code)
	rec := ts.post(t, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(time.Hour)
	rl.Allow("c")
	assert.Len(t, rl.visitors, 1)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientID(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientID(req))

	req.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", clientID(req))
}

func TestMiddlewareHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestEncodeAccountData(t *testing.T) {
	data := []byte("stake pool")

	out, err := EncodeAccountData(data, EncodingBase58)
	require.NoError(t, err)
	assert.Equal(t, EncodingBase58, out[1])

	out, err = EncodeAccountData(data, EncodingBase64Zstd)
	require.NoError(t, err)
	assert.Equal(t, EncodingBase64Zstd, out[1])

	_, err = EncodeAccountData(make([]byte, maxBase58Data+1), EncodingBase58)
	assert.Error(t, err)
	_, err = EncodeAccountData(data, "jsonParsed")
	assert.Error(t, err)

	assert.Equal(t, []byte("pool"), SliceData(data, &DataSlice{Offset: 6, Length: 100}))
	assert.Empty(t, SliceData(data, &DataSlice{Offset: 50, Length: 1}))
}
