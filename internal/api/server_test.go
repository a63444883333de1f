package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/events"
	"file-nft-market/internal/rpc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func addr(b byte) domain.Address {
	return domain.AddressFromBytes(bytes.Repeat([]byte{b}, domain.AddressLength))
}

var (
	deployer = addr(1)
	user     = addr(2)
)

type fixture struct {
	srv    *Server
	eng    *engine.Engine
	bus    *events.Bus
	nextID int
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	bus := events.NewBus(nil)
	rec := events.NewRecorder(64)
	_, err := rec.Attach(bus)
	require.NoError(t, err)

	opts = append([]engine.Option{engine.WithPublisher(bus)}, opts...)
	eng, err := engine.New(engine.Config{Descriptor: domain.Descriptor{Name: "FileNFT", URI: "ipfs://d"}}, opts...)
	require.NoError(t, err)

	srv, err := NewServer(Config{}, eng, bus, rec, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, eng: eng, bus: bus}
}

// call posts one JSON-RPC request and decodes the response.
func (f *fixture) call(t *testing.T, caller domain.Address, method string, params any) rpc.Response {
	t.Helper()
	f.nextID++
	body := map[string]any{"jsonrpc": "2.0", "id": f.nextID, "method": method}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return f.post(t, caller, raw)
}

func (f *fixture) post(t *testing.T, caller domain.Address, raw []byte) rpc.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(rpc.CallerHeader, caller.String())
	}
	w := httptest.NewRecorder()
	f.srv.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp rpc.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (f *fixture) ok(t *testing.T, caller domain.Address, method string, params, out any) {
	t.Helper()
	resp := f.call(t, caller, method, params)
	require.Nil(t, resp.Error, "%s: %v", method, resp.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
}

func TestRPC_MintListBuyWithdraw(t *testing.T) {
	f := newFixture(t)

	var minted rpc.MintResult
	f.ok(t, deployer, rpc.MethodMint, rpc.MintParams{ContentPointer: "QmCid", Secret: "456", TotalSupply: 3}, &minted)
	assert.Equal(t, domain.RecordID(0), minted.RecordID)

	var market rpc.AddressResult
	f.ok(t, "", rpc.MethodGetMarketAddress, nil, &market)
	f.ok(t, deployer, rpc.MethodSetApprovalForAll, rpc.SetApprovalForAllParams{Operator: market.Address, Approved: true}, nil)

	var listing domain.Listing
	f.ok(t, deployer, rpc.MethodListItem, rpc.ListingParams{RecordID: 0, Price: 10, Amount: 3}, &listing)
	assert.Equal(t, uint64(3), listing.Amount)

	var after domain.Listing
	f.ok(t, user, rpc.MethodBuyItem, rpc.BuyItemParams{Seller: deployer, RecordID: 0, Value: 10}, &after)
	assert.Equal(t, uint64(2), after.Amount)

	var content domain.Content
	f.ok(t, user, rpc.MethodReadContent, rpc.RecordParams{RecordID: 0}, &content)
	assert.Equal(t, domain.Content{ContentPointer: "QmCid", Secret: "456"}, content)

	var balance uint64
	f.ok(t, "", rpc.MethodBalanceOf, rpc.BalanceOfParams{Holder: user, RecordID: 0}, &balance)
	assert.Equal(t, uint64(1), balance)

	var proceeds uint64
	f.ok(t, "", rpc.MethodGetProceeds, rpc.SellerParams{Seller: deployer}, &proceeds)
	assert.Equal(t, uint64(10), proceeds)

	var paid rpc.WithdrawResult
	f.ok(t, deployer, rpc.MethodWithdrawProceeds, nil, &paid)
	assert.Equal(t, uint64(10), paid.Amount)

	var evs []domain.Event
	f.ok(t, "", rpc.MethodGetEvents, rpc.EventsParams{FromSeq: 1}, &evs)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventItemListed, evs[0].Kind)
	assert.Equal(t, domain.EventItemBought, evs[1].Kind)

	var uri rpc.URIResult
	f.ok(t, "", rpc.MethodURI, rpc.RecordParams{RecordID: 42}, &uri)
	assert.Equal(t, "ipfs://d", uri.URI)
}

func TestRPC_LedgerErrorCarriesKindAndContext(t *testing.T) {
	f := newFixture(t)
	f.ok(t, deployer, rpc.MethodMint, rpc.MintParams{ContentPointer: "QmCid", TotalSupply: 1}, nil)
	f.ok(t, deployer, rpc.MethodSetApprovalForAll, rpc.SetApprovalForAllParams{Operator: f.eng.MarketAddress(), Approved: true}, nil)
	f.ok(t, deployer, rpc.MethodListItem, rpc.ListingParams{RecordID: 0, Price: 10, Amount: 1}, nil)

	resp := f.call(t, user, rpc.MethodBuyItem, rpc.BuyItemParams{Seller: deployer, RecordID: 0, Value: 9})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeForKind(domain.ErrPriceNotMet), resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, "price not met", resp.Error.Data.Kind)
	assert.Equal(t, "precondition", resp.Error.Data.Class)
	assert.Equal(t, user, resp.Error.Data.Caller)
	assert.Equal(t, deployer, resp.Error.Data.Seller)
	require.NotNil(t, resp.Error.Data.RecordID)
	assert.Equal(t, domain.RecordID(0), *resp.Error.Data.RecordID)
	assert.ErrorIs(t, resp.Error, domain.ErrPriceNotMet)

	resp = f.call(t, user, rpc.MethodReadContent, rpc.RecordParams{RecordID: 0})
	require.NotNil(t, resp.Error)
	assert.ErrorIs(t, resp.Error, domain.ErrAccessDenied)
}

func TestRPC_ProtocolErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		caller domain.Address
		body   string
		code   int
	}{
		{"parse error", deployer, `{not json`, rpc.CodeParseError},
		{"wrong version", deployer, `{"jsonrpc":"1.0","id":1,"method":"descriptor"}`, rpc.CodeInvalidRequest},
		{"unknown method", deployer, `{"jsonrpc":"2.0","id":1,"method":"selfDestruct"}`, rpc.CodeMethodNotFound},
		{"missing caller", "", `{"jsonrpc":"2.0","id":1,"method":"withdrawProceeds"}`, rpc.CodeInvalidParams},
		{"unknown field", deployer, `{"jsonrpc":"2.0","id":1,"method":"mint","params":{"cid":"x"}}`, rpc.CodeInvalidParams},
		{"bad address param", "", `{"jsonrpc":"2.0","id":1,"method":"balanceOf","params":{"holder":"0OIl","recordId":0}}`, rpc.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.caller, []byte(tt.body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestRPC_BadCallerHeader(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc",
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"withdrawProceeds"}`))
	req.Header.Set(rpc.CallerHeader, "not-an-address")
	w := httptest.NewRecorder()
	f.srv.Router.ServeHTTP(w, req)

	var resp rpc.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
	assert.JSONEq(t, `7`, string(resp.ID))
}

type brokenStore struct{}

func (brokenStore) Apply(context.Context, *domain.ChangeSet) error {
	return errors.New("connection refused")
}

func (brokenStore) Load(context.Context) (*domain.Snapshot, error) {
	return &domain.Snapshot{}, nil
}

func TestRPC_StorageFailureHidesDetail(t *testing.T) {
	f := newFixture(t, engine.WithStore(brokenStore{}))

	resp := f.call(t, deployer, rpc.MethodMint, rpc.MintParams{ContentPointer: "QmCid", TotalSupply: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeStorageUnavailable, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "connection refused")
	assert.ErrorIs(t, resp.Error, rpc.ErrStorageUnavailable)
}

func TestHTTP_HealthStatusMetrics(t *testing.T) {
	f := newFixture(t)
	f.ok(t, deployer, rpc.MethodMint, rpc.MintParams{ContentPointer: "QmCid", TotalSupply: 1}, nil)

	for _, path := range []string{"/health", "/status", "/metrics"} {
		w := httptest.NewRecorder()
		f.srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		if path == "/status" {
			var body struct {
				Ledger engine.Status `json:"ledger"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, uint64(1), body.Ledger.Records)
			assert.Equal(t, uint64(1), body.Ledger.LastEventSeq)
		}
	}
}

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.srv.Router)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestWS_SubscribeFiltersByKind(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": rpc.MethodEventsSubscribe,
		"params": rpc.SubscribeParams{Kinds: []domain.EventKind{domain.EventItemListed}},
	}))
	var subResp rpc.Response
	readJSON(t, conn, &subResp)
	require.Nil(t, subResp.Error)
	var subID uint64
	require.NoError(t, json.Unmarshal(subResp.Result, &subID))

	f.ok(t, deployer, rpc.MethodMint, rpc.MintParams{ContentPointer: "QmCid", TotalSupply: 2}, nil)
	f.ok(t, deployer, rpc.MethodSetApprovalForAll, rpc.SetApprovalForAllParams{Operator: f.eng.MarketAddress(), Approved: true}, nil)
	f.ok(t, deployer, rpc.MethodListItem, rpc.ListingParams{RecordID: 0, Price: 5, Amount: 2}, nil)

	var n rpc.Notification
	readJSON(t, conn, &n)
	assert.Equal(t, rpc.MethodEventNotification, n.Method)
	require.NotNil(t, n.Params)
	assert.Equal(t, subID, n.Params.Subscription)
	assert.Equal(t, domain.EventItemListed, n.Params.Result.Kind, "RecordCreated filtered out")
	assert.Equal(t, uint64(2), n.Params.Result.Seq)
	assert.Equal(t, uint64(5), n.Params.Result.Price)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": rpc.MethodEventsUnsubscribe,
		"params": rpc.UnsubscribeParams{Subscription: subID},
	}))
	var unsubResp rpc.Response
	readJSON(t, conn, &unsubResp)
	assert.JSONEq(t, `true`, string(unsubResp.Result))
}

func TestWS_UnknownMethod(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "logsSubscribe"}))
	var resp rpc.Response
	readJSON(t, conn, &resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f)

	require.Eventually(t, func() bool { return f.srv.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.srv.Close()
	assert.Equal(t, 0, f.srv.Hub().Clients())
	assert.Equal(t, 1, f.bus.Subscribers(events.TopicAll), "only the recorder remains subscribed")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
