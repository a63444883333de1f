package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/rpc"
)

// ErrClosed is returned by calls on a closed WSClient.
var ErrClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	// Buffer is the per-subscription channel capacity.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		Buffer:            1024,
	}
}

// WSClient subscribes to the ledger event stream. It reconnects with
// exponential backoff and re-issues every subscription after a reconnect.
// Events committed while disconnected are not replayed; use
// HTTPClient.GetEvents to catch up.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	log      *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription id to the subscriber channel
	subs  map[uint64]chan domain.Event
	kinds map[uint64][]domain.EventKind
	// stranded holds channels whose resubscription failed; Close closes them
	stranded []chan domain.Event
	subsMu   sync.RWMutex

	// pending maps request id to the subscription waiting for its id
	pending   map[uint64]*pendingSub
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
	// life is cancelled by Close to abort dials in flight
	life context.Context
	stop context.CancelFunc

	reconnecting atomic.Bool
}

// NewWSClient connects to the /ws endpoint. config may be nil for defaults.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, log *zap.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		log:      log.Named("ws-client"),
		subs:     make(map[uint64]chan domain.Event),
		kinds:    make(map[uint64][]domain.EventKind),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}
	c.life, c.stop = context.WithCancel(context.Background())

	if err := c.connect(ctx); err != nil {
		c.stop()
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	return nil
}

// Subscribe streams committed events of the given kinds (every kind when
// none are given). The channel is closed when the client closes.
func (c *WSClient) Subscribe(ctx context.Context, kinds ...domain.EventKind) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, c.config.Buffer)
	if _, err := c.subscribe(ctx, kinds, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// pendingSub is a subscription awaiting its server id. The delivery channel
// is registered before confirmed fires, so no notification is missed.
type pendingSub struct {
	confirmed chan uint64
	events    chan domain.Event
	kinds     []domain.EventKind
}

// subscribe sends eventsSubscribe and waits for the subscription id.
func (c *WSClient) subscribe(ctx context.Context, kinds []domain.EventKind, events chan domain.Event) (uint64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	reqID := c.requestID.Add(1)
	req := struct {
		JSONRPC string              `json:"jsonrpc"`
		ID      uint64              `json:"id"`
		Method  string              `json:"method"`
		Params  rpc.SubscribeParams `json:"params"`
	}{rpc.Version, reqID, rpc.MethodEventsSubscribe, rpc.SubscribeParams{Kinds: kinds}}

	p := &pendingSub{confirmed: make(chan uint64, 1), events: events, kinds: kinds}
	c.pendingMu.Lock()
	c.pending[reqID] = p
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-p.confirmed:
		if !ok {
			return 0, ErrClosed
		}
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClosed
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

// Close closes the connection and every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.stop()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	for _, ch := range c.stranded {
		close(ch)
	}
	c.stranded = nil
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, p := range c.pending {
		close(p.confirmed)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnecting.Swap(true) {
				c.wg.Add(1)
				go c.reconnect()
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Debug("connection lost", zap.Error(err))
			c.connMu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect dials with exponential backoff until it succeeds or the client
// closes, then re-issues the subscriptions.
func (c *WSClient) reconnect() {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	delay := c.config.ReconnectDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(c.life, 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			c.log.Info("reconnected", zap.String("endpoint", c.endpoint), zap.Int("attempt", attempt))
			c.resubscribeAll()
			return
		}
		if c.closed.Load() {
			return
		}
		delay *= 2
		if c.config.MaxReconnectDelay > 0 && delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
		c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
	}
}

// resubscribeAll re-issues every subscription. Ids from the previous
// connection are dropped first since the server may hand them out again.
func (c *WSClient) resubscribeAll() {
	type sub struct {
		kinds  []domain.EventKind
		events chan domain.Event
	}
	c.subsMu.Lock()
	old := make(map[uint64]sub, len(c.subs))
	for id, ch := range c.subs {
		old[id] = sub{kinds: c.kinds[id], events: ch}
	}
	clear(c.subs)
	clear(c.kinds)
	c.subsMu.Unlock()

	for oldID, s := range old {
		ctx, cancel := context.WithTimeout(c.life, c.config.SubscribeTimeout)
		_, err := c.subscribe(ctx, s.kinds, s.events)
		cancel()
		if err != nil {
			c.log.Warn("resubscribe failed", zap.Uint64("subscription", oldID), zap.Error(err))
			c.subsMu.Lock()
			c.stranded = append(c.stranded, s.events)
			c.subsMu.Unlock()
		}
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var env struct {
		ID     *uint64                 `json:"id"`
		Method string                  `json:"method"`
		Result json.RawMessage         `json:"result"`
		Error  *rpc.Error              `json:"error"`
		Params *rpc.NotificationParams `json:"params"`
	}
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Warn("unparseable message", zap.Error(err))
		return
	}

	switch {
	case env.Method == rpc.MethodEventNotification && env.Params != nil:
		c.handleNotification(env.Params)
	case env.Error != nil:
		c.log.Warn("error response", zap.Int("code", env.Error.Code), zap.String("message", env.Error.Message))
	case env.ID != nil:
		var subID uint64
		if err := json.Unmarshal(env.Result, &subID); err == nil && subID > 0 {
			c.handleSubscribeResponse(*env.ID, subID)
		}
	}
}

func (c *WSClient) handleSubscribeResponse(reqID, subID uint64) {
	c.pendingMu.Lock()
	p, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	c.subsMu.Lock()
	c.subs[subID] = p.events
	c.kinds[subID] = p.kinds
	c.subsMu.Unlock()

	select {
	case p.confirmed <- subID:
	default:
	}
}

// handleNotification delivers to the subscriber, blocking until there is room.
func (c *WSClient) handleNotification(p *rpc.NotificationParams) {
	c.subsMu.RLock()
	ch, ok := c.subs[p.Subscription]
	c.subsMu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- p.Result:
	case <-c.done:
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}
