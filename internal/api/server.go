// Package api exposes the ledger over HTTP: a JSON-RPC 2.0 endpoint for every
// registry and marketplace operation, a websocket event stream, and health,
// status and metrics endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/events"
	"file-nft-market/internal/observability"
)

// Ledger is the engine surface the API serves.
type Ledger interface {
	Mint(ctx context.Context, caller domain.Address, contentPointer, secret string, totalSupply uint64) (domain.RecordID, error)
	SetApprovalForAll(ctx context.Context, caller, operator domain.Address, approved bool) error
	SafeTransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.RecordID, n uint64) error
	ListItem(ctx context.Context, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error)
	CancelListing(ctx context.Context, caller domain.Address, id domain.RecordID) error
	UpdateListing(ctx context.Context, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error)
	BuyItem(ctx context.Context, buyer, seller domain.Address, id domain.RecordID, paid uint64) (domain.Listing, error)
	WithdrawProceeds(ctx context.Context, caller domain.Address) (uint64, error)

	ReadContent(caller domain.Address, id domain.RecordID) (domain.Content, error)
	BalanceOf(holder domain.Address, id domain.RecordID) uint64
	BalanceOfBatch(holders []domain.Address, ids []domain.RecordID) ([]uint64, error)
	IsApprovedForAll(holder, operator domain.Address) bool
	Descriptor() domain.Descriptor
	URI(id domain.RecordID) string
	GetRecord(id domain.RecordID) (domain.RecordInfo, error)
	GetListing(seller domain.Address, id domain.RecordID) domain.Listing
	Listings(seller domain.Address) []domain.Listing
	GetProceeds(seller domain.Address) uint64
	GetNftAddress() domain.Address
	MarketAddress() domain.Address
	Status() engine.Status
}

var _ Ledger = (*engine.Engine)(nil)

// Config configures the server.
type Config struct {
	Environment string // "production" switches gin to release mode
}

// Server owns the router and the event stream hub.
type Server struct {
	Router *gin.Engine

	ledger   Ledger
	recorder *events.Recorder
	hub      *Hub
	methods  map[string]methodHandler
	log      *zap.Logger
}

// NewServer builds the router. recorder may be nil, which disables getEvents.
func NewServer(cfg Config, ledger Ledger, bus *events.Bus, recorder *events.Recorder, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub, err := NewHub(bus, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Router:   gin.New(),
		ledger:   ledger,
		recorder: recorder,
		hub:      hub,
		log:      log.Named("api"),
	}
	s.registerMethods()
	s.MountMiddlewares()
	s.MountHandlers()
	return s, nil
}

func (s *Server) MountMiddlewares() {
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(RequestLogger(s.log))
}

func (s *Server) MountHandlers() {
	s.Router.POST("/rpc", s.HandleRPC)
	s.Router.GET("/ws", s.hub.HandleWebSocket)
	s.Router.GET("/health", s.HandleHealth)
	s.Router.GET("/status", s.HandleStatus)
	s.Router.GET("/metrics", gin.WrapH(observability.Handler()))
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus reports a ledger summary plus event stream stats.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ledger":      s.ledger.Status(),
		"subscribers": s.hub.Clients(),
	})
}

// Hub returns the event stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects every event stream client.
func (s *Server) Close() {
	s.hub.Close()
}
