package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/events"
	"file-nft-market/internal/observability"
	"file-nft-market/internal/rpc"
)

// Event stream tuning.
const (
	clientSendBuffer = 256
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
	maxMessageBytes  = 64 << 10
)

// Hub fans committed events out to websocket clients. Each client has a
// bounded send queue; a client whose queue is full is disconnected rather
// than allowed to stall the ledger.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	nextSub     atomic.Uint64
	unsubscribe func()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[uint64]map[domain.EventKind]bool // nil filter means every kind
}

// NewHub creates a hub subscribed to every event on bus.
func NewHub(bus *events.Bus, log *zap.Logger) (*Hub, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log: log.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*wsClient]struct{}),
	}
	if bus != nil {
		unsub, err := bus.Subscribe(events.TopicAll, h.broadcast)
		if err != nil {
			return nil, err
		}
		h.unsubscribe = unsub
	}
	return h, nil
}

// HandleWebSocket upgrades the connection and serves it until it closes.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	cl := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
		subs: make(map[uint64]map[domain.EventKind]bool),
	}
	if !h.register(cl) {
		conn.Close()
		return
	}
	h.log.Debug("client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops receiving events and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	for _, cl := range clients {
		h.drop(cl)
	}
}

func (h *Hub) register(cl *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	observability.UpdateSubscribers(len(h.clients))
	return true
}

// drop removes cl and closes its connection. Safe to call more than once.
func (h *Hub) drop(cl *wsClient) {
	cl.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, cl)
		observability.UpdateSubscribers(len(h.clients))
		h.mu.Unlock()

		close(cl.done)
		cl.conn.Close()
	})
}

// broadcast runs on the publishing goroutine and must never block.
func (h *Hub) broadcast(e domain.Event) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		for _, sub := range cl.matching(e.Kind) {
			msg, err := json.Marshal(rpc.Notification{
				JSONRPC: rpc.Version,
				Method:  rpc.MethodEventNotification,
				Params:  &rpc.NotificationParams{Subscription: sub, Result: e},
			})
			if err != nil {
				h.log.Error("marshal notification", zap.Error(err))
				return
			}
			if !cl.enqueue(msg) {
				h.log.Warn("client too slow, disconnecting",
					zap.String("remote_addr", cl.conn.RemoteAddr().String()))
				observability.RecordDroppedClient()
				h.drop(cl)
				break
			}
		}
	}
}

func (h *Hub) readLoop(cl *wsClient) {
	defer h.drop(cl)

	cl.conn.SetReadLimit(maxMessageBytes)
	cl.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		messageType, message, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if resp := h.handleMessage(cl, message); resp != nil {
			raw, err := json.Marshal(resp)
			if err != nil {
				h.log.Error("marshal response", zap.Error(err))
				continue
			}
			if !cl.enqueue(raw) {
				return
			}
		}
	}
}

func (h *Hub) writeLoop(cl *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer h.drop(cl)

	for {
		select {
		case <-cl.done:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			cl.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(cl *wsClient, message []byte) *rpc.Response {
	var req rpc.Request
	if err := json.Unmarshal(message, &req); err != nil {
		return rpc.NewErrorResponse(nil, &rpc.Error{Code: rpc.CodeParseError, Message: "parse error"})
	}

	switch req.Method {
	case rpc.MethodEventsSubscribe:
		p, err := decode[rpc.SubscribeParams](req.Params)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, err.(*rpc.Error))
		}
		id := h.nextSub.Add(1)
		cl.subscribe(id, p.Kinds)
		h.log.Debug("subscription created", zap.Uint64("subscription", id), zap.Any("kinds", p.Kinds))
		return mustResponse(req.ID, id)

	case rpc.MethodEventsUnsubscribe:
		p, err := decode[rpc.UnsubscribeParams](req.Params)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, err.(*rpc.Error))
		}
		return mustResponse(req.ID, cl.unsubscribe(p.Subscription))

	default:
		return rpc.NewErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeMethodNotFound, Message: "method not found"})
	}
}

func mustResponse(id json.RawMessage, result any) *rpc.Response {
	resp, err := rpc.NewResponse(id, result)
	if err != nil {
		return rpc.NewErrorResponse(id, &rpc.Error{Code: rpc.CodeInternalError, Message: "internal error"})
	}
	return resp
}

func (cl *wsClient) enqueue(msg []byte) bool {
	select {
	case <-cl.done:
		return false
	default:
	}
	select {
	case cl.send <- msg:
		return true
	default:
		return false
	}
}

func (cl *wsClient) subscribe(id uint64, kinds []domain.EventKind) {
	var filter map[domain.EventKind]bool
	if len(kinds) > 0 {
		filter = make(map[domain.EventKind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}
	cl.mu.Lock()
	cl.subs[id] = filter
	cl.mu.Unlock()
}

func (cl *wsClient) unsubscribe(id uint64) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, ok := cl.subs[id]; !ok {
		return false
	}
	delete(cl.subs, id)
	return true
}

// matching returns the subscription ids interested in kind, ascending.
func (cl *wsClient) matching(kind domain.EventKind) []uint64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	var ids []uint64
	for id, filter := range cl.subs {
		if filter == nil || filter[kind] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
