// Package main streams committed ledger events to stdout as JSON lines.
// With -from it first replays recorded history over HTTP, then follows the
// WebSocket feed without duplicates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"file-nft-market/internal/client"
	"file-nft-market/internal/domain"
	"file-nft-market/internal/logger"
)

func main() {
	base := flag.String("server", envOr("MARKET_SERVER_URL", "http://localhost:8080"), "Server base URL")
	kinds := flag.String("kinds", "", "Comma-separated event kinds (default all)")
	from := flag.Uint64("from", 0, "Replay recorded events after this sequence number first (0 disables)")
	replay := flag.Bool("replay", false, "Replay all recorded events first")
	env := flag.String("env", "development", "Environment (development, production)")
	flag.Parse()

	log, err := logger.New(*env, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	filter, err := parseKinds(*kinds)
	if err != nil {
		log.Fatal("invalid --kinds", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpBase := strings.TrimSuffix(*base, "/")
	wsURL := "ws" + strings.TrimPrefix(httpBase, "http") + "/ws"

	ws, err := client.NewWSClient(ctx, wsURL, nil, log)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer ws.Close()

	// Subscribe before replaying so nothing falls between the two.
	stream, err := ws.Subscribe(ctx, filter...)
	if err != nil {
		log.Fatal("subscribe", zap.Error(err))
	}
	log.Info("subscribed", zap.String("endpoint", wsURL), zap.Int("kinds", len(filter)))

	enc := json.NewEncoder(os.Stdout)
	var seq sequencer

	if *replay || *from > 0 {
		history, err := client.NewHTTPClient(httpBase+"/rpc").GetEvents(ctx, *from)
		if err != nil {
			log.Fatal("getEvents", zap.Error(err))
		}
		for _, e := range history {
			seq.replayed = e.Seq
			if wanted(filter, e.Kind) {
				enc.Encode(e) //nolint:errcheck
			}
		}
		log.Info("replayed history", zap.Int("events", len(history)), zap.Uint64("last_seq", seq.replayed))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			if !seq.admit(e.Seq) {
				continue
			}
			enc.Encode(e) //nolint:errcheck
		}
	}
}

// sequencer drops stream events the replay already printed. Sequence numbers
// restart with the server, so a stream event at or below the previous one
// means a restart and ends the overlap.
type sequencer struct {
	replayed uint64 // highest replayed seq; zero once the overlap is over
	prev     uint64 // last stream seq
}

func (s *sequencer) admit(seq uint64) bool {
	if s.prev > 0 && seq <= s.prev {
		s.replayed = 0
	}
	s.prev = seq
	return seq > s.replayed
}

func parseKinds(s string) ([]domain.EventKind, error) {
	if s == "" {
		return nil, nil
	}
	var out []domain.EventKind
	for _, name := range strings.Split(s, ",") {
		k := domain.EventKind(strings.TrimSpace(name))
		if !wanted(domain.AllEventKinds, k) {
			return nil, fmt.Errorf("unknown event kind %q", k)
		}
		out = append(out, k)
	}
	return out, nil
}

// wanted reports whether k passes filter; an empty filter passes everything.
func wanted(filter []domain.EventKind, k domain.EventKind) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == k {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
