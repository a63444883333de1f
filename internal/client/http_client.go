// Package client is a Go client for the ledger API: a JSON-RPC HTTP client
// with typed methods and a websocket event subscriber.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/rpc"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrNoCaller is returned by mutating calls on a client without a caller identity.
var ErrNoCaller = errors.New("client has no caller identity")

// HTTPClient calls the ledger's JSON-RPC endpoint.
type HTTPClient struct {
	endpoint    string
	caller      domain.Address
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   *atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read calls.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCaller sets the identity sent with every request.
func WithCaller(caller domain.Address) ClientOption {
	return func(c *HTTPClient) {
		c.caller = caller
	}
}

// NewHTTPClient creates a client for the /rpc endpoint at endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		requestID:   new(atomic.Uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// As returns a client sharing c's connection pool that acts as caller.
func (c *HTTPClient) As(caller domain.Address) *HTTPClient {
	cp := *c
	cp.caller = caller
	return &cp
}

// Caller returns the identity requests are sent as.
func (c *HTTPClient) Caller() domain.Address {
	return c.caller
}

// query performs a read call, retrying transport failures with backoff.
func (c *HTTPClient) query(ctx context.Context, method string, params, result any) error {
	return c.call(ctx, method, params, result, c.maxRetries)
}

// mutate performs a state-changing call exactly once. A transport failure may
// leave the outcome unknown; the caller decides whether to re-check and retry.
func (c *HTTPClient) mutate(ctx context.Context, method string, params, result any) error {
	if c.caller == "" {
		return fmt.Errorf("%s: %w", method, ErrNoCaller)
	}
	return c.call(ctx, method, params, result, 0)
}

// call performs a JSON-RPC call with up to retries retries and exponential backoff.
// Error responses are never retried; they are returned as *rpc.Error, which
// errors.Is matches against the domain sentinels.
func (c *HTTPClient) call(ctx context.Context, method string, params, result any, retries int) error {
	reqID := c.requestID.Add(1)
	reqBody := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{rpc.Version, reqID, method, params}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.caller != "" {
			req.Header.Set(rpc.CallerHeader, c.caller.String())
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpc.Response
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Mint creates a record and returns its id.
func (c *HTTPClient) Mint(ctx context.Context, contentPointer, secret string, totalSupply uint64) (domain.RecordID, error) {
	var out rpc.MintResult
	err := c.mutate(ctx, rpc.MethodMint, rpc.MintParams{
		ContentPointer: contentPointer,
		Secret:         secret,
		TotalSupply:    totalSupply,
	}, &out)
	return out.RecordID, err
}

// ReadContent returns the gated payload of id for the caller.
func (c *HTTPClient) ReadContent(ctx context.Context, id domain.RecordID) (domain.Content, error) {
	var out domain.Content
	err := c.query(ctx, rpc.MethodReadContent, rpc.RecordParams{RecordID: id}, &out)
	return out, err
}

func (c *HTTPClient) BalanceOf(ctx context.Context, holder domain.Address, id domain.RecordID) (uint64, error) {
	var out uint64
	err := c.query(ctx, rpc.MethodBalanceOf, rpc.BalanceOfParams{Holder: holder, RecordID: id}, &out)
	return out, err
}

func (c *HTTPClient) BalanceOfBatch(ctx context.Context, holders []domain.Address, ids []domain.RecordID) ([]uint64, error) {
	var out []uint64
	err := c.query(ctx, rpc.MethodBalanceOfBatch, rpc.BalanceOfBatchParams{Holders: holders, RecordIDs: ids}, &out)
	return out, err
}

func (c *HTTPClient) SetApprovalForAll(ctx context.Context, operator domain.Address, approved bool) error {
	return c.mutate(ctx, rpc.MethodSetApprovalForAll, rpc.SetApprovalForAllParams{Operator: operator, Approved: approved}, nil)
}

func (c *HTTPClient) IsApprovedForAll(ctx context.Context, holder, operator domain.Address) (bool, error) {
	var out bool
	err := c.query(ctx, rpc.MethodIsApprovedForAll, rpc.IsApprovedForAllParams{Holder: holder, Operator: operator}, &out)
	return out, err
}

func (c *HTTPClient) SafeTransferFrom(ctx context.Context, from, to domain.Address, id domain.RecordID, amount uint64) error {
	return c.mutate(ctx, rpc.MethodSafeTransferFrom, rpc.SafeTransferFromParams{
		From:     from,
		To:       to,
		RecordID: id,
		Amount:   amount,
	}, nil)
}

func (c *HTTPClient) Descriptor(ctx context.Context) (domain.Descriptor, error) {
	var out domain.Descriptor
	err := c.query(ctx, rpc.MethodDescriptor, nil, &out)
	return out, err
}

func (c *HTTPClient) URI(ctx context.Context, id domain.RecordID) (string, error) {
	var out rpc.URIResult
	err := c.query(ctx, rpc.MethodURI, rpc.RecordParams{RecordID: id}, &out)
	return out.URI, err
}

func (c *HTTPClient) GetRecord(ctx context.Context, id domain.RecordID) (domain.RecordInfo, error) {
	var out domain.RecordInfo
	err := c.query(ctx, rpc.MethodGetRecord, rpc.RecordParams{RecordID: id}, &out)
	return out, err
}

// ListItem lists amount units of id at price each.
func (c *HTTPClient) ListItem(ctx context.Context, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	var out domain.Listing
	err := c.mutate(ctx, rpc.MethodListItem, rpc.ListingParams{RecordID: id, Price: price, Amount: amount}, &out)
	return out, err
}

func (c *HTTPClient) CancelListing(ctx context.Context, id domain.RecordID) error {
	return c.mutate(ctx, rpc.MethodCancelListing, rpc.RecordParams{RecordID: id}, nil)
}

func (c *HTTPClient) UpdateListing(ctx context.Context, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	var out domain.Listing
	err := c.mutate(ctx, rpc.MethodUpdateListing, rpc.ListingParams{RecordID: id, Price: price, Amount: amount}, &out)
	return out, err
}

// BuyItem buys one unit of seller's listing for id, attaching value.
func (c *HTTPClient) BuyItem(ctx context.Context, seller domain.Address, id domain.RecordID, value uint64) (domain.Listing, error) {
	var out domain.Listing
	err := c.mutate(ctx, rpc.MethodBuyItem, rpc.BuyItemParams{Seller: seller, RecordID: id, Value: value}, &out)
	return out, err
}

func (c *HTTPClient) WithdrawProceeds(ctx context.Context) (uint64, error) {
	var out rpc.WithdrawResult
	err := c.mutate(ctx, rpc.MethodWithdrawProceeds, nil, &out)
	return out.Amount, err
}

func (c *HTTPClient) GetListing(ctx context.Context, seller domain.Address, id domain.RecordID) (domain.Listing, error) {
	var out domain.Listing
	err := c.query(ctx, rpc.MethodGetListing, rpc.GetListingParams{Seller: seller, RecordID: id}, &out)
	return out, err
}

// GetListings returns seller's active listings, or every listing for "".
func (c *HTTPClient) GetListings(ctx context.Context, seller domain.Address) ([]domain.Listing, error) {
	var out []domain.Listing
	err := c.query(ctx, rpc.MethodGetListings, rpc.SellerParams{Seller: seller}, &out)
	return out, err
}

func (c *HTTPClient) GetProceeds(ctx context.Context, seller domain.Address) (uint64, error) {
	var out uint64
	err := c.query(ctx, rpc.MethodGetProceeds, rpc.SellerParams{Seller: seller}, &out)
	return out, err
}

func (c *HTTPClient) GetNftAddress(ctx context.Context) (domain.Address, error) {
	var out rpc.AddressResult
	err := c.query(ctx, rpc.MethodGetNftAddress, nil, &out)
	return out.Address, err
}

func (c *HTTPClient) GetMarketAddress(ctx context.Context) (domain.Address, error) {
	var out rpc.AddressResult
	err := c.query(ctx, rpc.MethodGetMarketAddress, nil, &out)
	return out.Address, err
}

func (c *HTTPClient) GetStatus(ctx context.Context) (engine.Status, error) {
	var out engine.Status
	err := c.query(ctx, rpc.MethodGetStatus, nil, &out)
	return out, err
}

// GetEvents returns the server's retained events with Seq above fromSeq.
func (c *HTTPClient) GetEvents(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	var out []domain.Event
	err := c.query(ctx, rpc.MethodGetEvents, rpc.EventsParams{FromSeq: fromSeq}, &out)
	return out, err
}
