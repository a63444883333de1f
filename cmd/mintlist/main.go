// Package main mints a record and lists all of its units on the marketplace
// through a running server: mint, approve the market, list.
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
	"file-nft-market/internal/domain"
	"file-nft-market/internal/logger"
)

func main() {
	rpcEndpoint := flag.String("rpc", envOr("MARKET_RPC_ENDPOINT", "http://localhost:8080/rpc"), "JSON-RPC endpoint")
	caller := flag.String("caller", os.Getenv("MARKET_CALLER"), "Seller address (base58, required)")
	cid := flag.String("cid", "Qmd4JPXw4iYeLVt1doZCo6vzFgzg7eZ3cymjNUG8cYSvWj", "Content pointer (IPFS CID)")
	password := flag.String("password", "456", "Secret revealed to holders")
	amount := flag.Uint64("amount", 3, "Units to mint and list")
	price := flag.Uint64("price", 0, "Price per unit")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	env := flag.String("env", "development", "Environment (development, production)")
	flag.Parse()

	log, err := logger.New(*env, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	seller, err := domain.ParseAddress(*caller)
	if err != nil {
		log.Fatal("--caller must be a base58 address", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.NewHTTPClient(*rpcEndpoint, client.WithCaller(seller))

	log.Info("minting", zap.String("cid", *cid), zap.Uint64("amount", *amount))
	id, err := c.Mint(ctx, *cid, *password, *amount)
	if err != nil {
		log.Fatal("mint", zap.Error(err))
	}
	log.Info("minted", zap.Uint64("record_id", uint64(id)))

	market, err := c.GetMarketAddress(ctx)
	if err != nil {
		log.Fatal("getMarketAddress", zap.Error(err))
	}
	approved, err := c.IsApprovedForAll(ctx, seller, market)
	if err != nil {
		log.Fatal("isApprovedForAll", zap.Error(err))
	}
	if !approved {
		if err := c.SetApprovalForAll(ctx, market, true); err != nil {
			log.Fatal("setApprovalForAll", zap.Error(err))
		}
		log.Info("approved market", zap.String("market", market.String()))
	}

	listing, err := c.ListItem(ctx, id, *price, *amount)
	if err != nil {
		log.Fatal("listItem", zap.Error(err))
	}
	log.Info("listed",
		zap.Uint64("record_id", uint64(listing.RecordID)),
		zap.Uint64("price", listing.Price),
		zap.Uint64("amount", listing.Amount),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
