package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitordhers/klapaucius/internal/market"
)

func TestFeedRunEmitsTrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"BTCUSDT"}, zerolog.Nop(), WithStubInterval(10*time.Millisecond))
	trades := make(chan market.Trade, 1)

	go func() {
		_ = feed.Run(ctx, trades)
	}()

	select {
	case tr := <-trades:
		if tr.Instrument != "BTCUSDT" {
			t.Fatalf("unexpected instrument %s", tr.Instrument)
		}
		if tr.Price <= 0 || tr.Qty <= 0 {
			t.Fatalf("expected positive price and size, got %+v", tr)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade")
	}
}

func TestFeedSymbolsDeduplicatedAndSorted(t *testing.T) {
	feed := NewFeed(ProviderStub, []string{"ETHUSDT", "BTCUSDT", " ", "ETHUSDT"}, zerolog.Nop())
	symbols := feed.snapshotSymbols()
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols %v", symbols)
	}
}

func TestBinanceFeedRequiresSymbols(t *testing.T) {
	feed := NewFeed(ProviderBinance, nil, zerolog.Nop())
	if err := feed.Run(context.Background(), make(chan market.Trade)); err == nil {
		t.Fatalf("expected error for empty symbol list")
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@trade":    "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}
