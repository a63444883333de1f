// Package main writes the front-end deployment artifacts (component addresses
// and interface descriptors) without starting the service. Addresses come
// from a running server when -rpc is set, otherwise they are derived from the
// configured authority.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"file-nft-market/internal/client"
	"file-nft-market/internal/config"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/frontend"
	"file-nft-market/internal/logger"
)

func main() {
	rpcEndpoint := flag.String("rpc", "", "Query addresses from this JSON-RPC endpoint instead of deriving them")

	cfg, err := config.LoadWithFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if cfg.Export.Network == "" {
		log.Fatal("--network is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := deployment(ctx, cfg, *rpcEndpoint)
	if err != nil {
		log.Fatal("resolve addresses", zap.Error(err))
	}
	if err := frontend.Export(cfg.Export.Dir, d); err != nil {
		log.Fatal("export", zap.Error(err))
	}

	log.Info("front-end artifacts written",
		zap.String("dir", cfg.Export.Dir),
		zap.String("network", d.Network),
		zap.String("registry", d.RegistryAddress.String()),
		zap.String("market", d.MarketAddress.String()),
	)
}

func deployment(ctx context.Context, cfg *config.Config, endpoint string) (frontend.Deployment, error) {
	d := frontend.Deployment{Network: cfg.Export.Network}

	if endpoint == "" {
		if err := cfg.Validate(); err != nil {
			return d, err
		}
		eng, err := engine.New(engine.Config{Authority: cfg.AuthorityAddress()})
		if err != nil {
			return d, err
		}
		d.RegistryAddress = eng.GetNftAddress()
		d.MarketAddress = eng.MarketAddress()
		return d, nil
	}

	c := client.NewHTTPClient(endpoint)
	var err error
	if d.RegistryAddress, err = c.GetNftAddress(ctx); err != nil {
		return d, fmt.Errorf("getNftAddress: %w", err)
	}
	if d.MarketAddress, err = c.GetMarketAddress(ctx); err != nil {
		return d, fmt.Errorf("getMarketAddress: %w", err)
	}
	return d, nil
}
