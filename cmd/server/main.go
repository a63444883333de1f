// Package main runs the marketplace ledger service: the JSON-RPC endpoint,
// the event WebSocket, health, status and Prometheus metrics on one listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"file-nft-market/internal/api"
	"file-nft-market/internal/config"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/events"
	"file-nft-market/internal/frontend"
	"file-nft-market/internal/logger"
	"file-nft-market/internal/payment"
	"file-nft-market/internal/storage"
	"file-nft-market/internal/storage/memory"
	"file-nft-market/internal/storage/migrations"
	pgstore "file-nft-market/internal/storage/postgres"
)

// recentEvents bounds the in-memory history served by getEvents.
const recentEvents = 4096

func main() {
	os.Exit(serve(flag.CommandLine, os.Args[1:]))
}

// serve returns the process exit code so deferred cleanup runs before exit.
func serve(fs *flag.FlagSet, args []string) int {
	cfg, err := config.LoadWithFlags(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	log, undo, err := logger.Init(cfg.Server.Environment, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer undo()
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		return 1
	}
	log.Info("shutdown complete")
	return 0
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, cleanup, err := createStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer cleanup()

	bus := events.NewBus(log)
	recorder := events.NewRecorder(recentEvents)
	if _, err := recorder.Attach(bus); err != nil {
		return fmt.Errorf("attach recorder: %w", err)
	}

	eng, err := engine.New(
		engine.Config{Authority: cfg.AuthorityAddress(), Descriptor: cfg.Ledger.Descriptor},
		engine.WithStore(store),
		engine.WithPayments(payment.NewMemoryChannel()),
		engine.WithPublisher(bus),
		engine.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Restore(ctx); err != nil {
		return err
	}
	log.Info("ledger ready",
		zap.String("registry", eng.GetNftAddress().String()),
		zap.String("market", eng.MarketAddress().String()),
		zap.String("storage", cfg.Storage.Driver),
	)

	if cfg.Export.UpdateFrontEnd {
		d := frontend.Deployment{
			Network:         cfg.Export.Network,
			RegistryAddress: eng.GetNftAddress(),
			MarketAddress:   eng.MarketAddress(),
		}
		if err := frontend.Export(cfg.Export.Dir, d); err != nil {
			return fmt.Errorf("front-end export: %w", err)
		}
		log.Info("front-end artifacts written", zap.String("dir", cfg.Export.Dir), zap.String("network", d.Network))
	}

	srv, err := api.NewServer(api.Config{Environment: cfg.Server.Environment}, eng, bus, recorder, log)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		srv.Close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Drop websocket clients first; Shutdown does not wait for hijacked conns.
	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// createStore returns the configured ledger store and its cleanup.
func createStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.LedgerStore, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory storage; state is lost on exit")
		return memory.NewLedgerStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             cfg.PostgresDSN,
		MaxConns:        cfg.Pool.MaxConns,
		MinConns:        cfg.Pool.MinConns,
		MaxConnLifetime: cfg.Pool.MaxConnLifetime,
		ConnectTimeout:  cfg.Pool.ConnectTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", zap.Strings("files", applied))
	}
	return pgstore.NewLedgerStore(pool), pool.Close, nil
}
