package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/engine"
	"paper_ledger/internal/infra"
	"paper_ledger/internal/ledger"

	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	seq := engine.NewSequencer(ledger.New(), 0, engine.Options{
		Metrics:  &infra.Metrics{},
		DumpFile: filepath.Join(t.TempDir(), "dump.json"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)
	return NewLedgerService(seq)
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
	return v
}

func TestLedgerService_AddAndRemoveAsset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.AddAsset(ctx, decode[AssetRequest](t, `{"symbol":" USD ","quantity":"1000"}`))
	if err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}
	if a.Symbol != "usd" || !a.Quantity.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected usd 1000, got %s %s", a.Symbol, a.Quantity)
	}

	// Numbers are accepted as well as strings.
	a, err = svc.RemoveAsset(ctx, decode[AssetRequest](t, `{"symbol":"eth","quantity":2.5}`))
	if err != nil {
		t.Fatalf("RemoveAsset failed: %v", err)
	}
	if !a.Quantity.Equal(decimal.RequireFromString("-2.5")) {
		t.Errorf("Expected -2.5 eth, got %s", a.Quantity)
	}

	assets := svc.Assets()
	if len(assets) != 2 || assets[1].Symbol != "eth" {
		t.Errorf("Unexpected assets: %v", assets)
	}
}

func TestLedgerService_OpenAndClose(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddAsset(ctx, decode[AssetRequest](t, `{"symbol":"usd","quantity":"1000"}`)); err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}

	pos, err := svc.OpenPosition(ctx, decode[OpenPositionRequest](t,
		`{"pair":"BTC/USD","quantity":"0.05","buyingPrice":"10000"}`))
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	if pos.ID != "trade_1" || pos.Pair != (domain.Pair{Base: "btc", Quote: "usd"}) {
		t.Errorf("Unexpected position: %+v", pos)
	}

	pos, err = svc.OpenPosition(ctx, decode[OpenPositionRequest](t,
		`{"pair":{"base":"btc","quote":"usd"},"quantity":0.05,"buyingPrice":12000}`))
	if err != nil {
		t.Fatalf("OpenPosition failed: %v", err)
	}
	if pos.ID != "trade_1" || !pos.BuyingPrice.Equal(decimal.NewFromInt(11000)) {
		t.Errorf("Expected merged trade_1 at 11000, got %s at %s", pos.ID, pos.BuyingPrice)
	}

	closed, err := svc.ClosePosition(ctx, decode[ClosePositionRequest](t,
		`{"id":"trade_1","pair":"btc-usd","quantity":"0.04","sellingPrice":"13000"}`))
	if err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}
	if closed.ID != "trade_2" || closed.OriginalTradeID != "trade_1" {
		t.Errorf("Unexpected closed record: %+v", closed)
	}

	_, err = svc.ClosePosition(ctx, decode[ClosePositionRequest](t,
		`{"id":"trade_1","pair":"eth/usd","quantity":"0.01","sellingPrice":"13000"}`))
	if !errors.Is(err, domain.ErrPairMismatch) {
		t.Errorf("Expected ErrPairMismatch, got %v", err)
	}

	if len(svc.OpenPositions()) != 1 || len(svc.ClosedPositions()) != 1 {
		t.Errorf("Expected 1 open and 1 closed, got %d and %d", len(svc.OpenPositions()), len(svc.ClosedPositions()))
	}
}

func TestLedgerService_InvalidRequests(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		call  func() error
	}{
		{"asset without symbol", "symbol", func() error {
			_, err := svc.AddAsset(ctx, decode[AssetRequest](t, `{"quantity":"1"}`))
			return err
		}},
		{"asset without quantity", "quantity", func() error {
			_, err := svc.RemoveAsset(ctx, decode[AssetRequest](t, `{"symbol":"usd"}`))
			return err
		}},
		{"open without pair", "pair", func() error {
			_, err := svc.OpenPosition(ctx, decode[OpenPositionRequest](t, `{"quantity":"1","buyingPrice":"1"}`))
			return err
		}},
		{"open without price", "buyingPrice", func() error {
			_, err := svc.OpenPosition(ctx, decode[OpenPositionRequest](t, `{"pair":"btc/usd","quantity":"1"}`))
			return err
		}},
		{"close without id", "id", func() error {
			_, err := svc.ClosePosition(ctx, decode[ClosePositionRequest](t, `{"pair":"btc/usd","quantity":"1","sellingPrice":"1"}`))
			return err
		}},
		{"close with null quantity", "quantity", func() error {
			_, err := svc.ClosePosition(ctx, decode[ClosePositionRequest](t, `{"id":"trade_1","pair":"btc/usd","quantity":null,"sellingPrice":"1"}`))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("Expected ErrInvalidRequest, got %v", err)
			}
			var reqErr *domain.RequestError
			if !errors.As(err, &reqErr) || reqErr.Field != tt.field {
				t.Errorf("Expected field %q, got %v", tt.field, err)
			}
		})
	}

	if got := svc.Assets(); len(got) != 1 || !got[0].Quantity.IsZero() {
		t.Errorf("Invalid requests changed the ledger: %v", got)
	}
}

func TestWirePair_Malformed(t *testing.T) {
	var req OpenPositionRequest
	if err := json.Unmarshal([]byte(`{"pair":"btcusd"}`), &req); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestLedgerService_Portfolio(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mustOpen := func(pair, qty, price string) {
		t.Helper()
		body := `{"pair":"` + pair + `","quantity":"` + qty + `","buyingPrice":"` + price + `"}`
		if _, err := svc.OpenPosition(ctx, decode[OpenPositionRequest](t, body)); err != nil {
			t.Fatalf("OpenPosition failed: %v", err)
		}
	}
	mustOpen("btc/usd", "1", "100")  // trade_1
	mustOpen("eth/usd", "2", "10")   // trade_2
	mustOpen("sol/usdt", "10", "20") // trade_3

	if _, err := svc.ClosePosition(ctx, decode[ClosePositionRequest](t,
		`{"id":"trade_1","pair":"btc/usd","quantity":"0.5","sellingPrice":"120"}`)); err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}

	p := svc.Portfolio()
	if p.Seq != 4 {
		t.Errorf("Expected seq 4, got %d", p.Seq)
	}
	if p.ClosedPositions != 1 || len(p.OpenPositions) != 3 {
		t.Errorf("Expected 3 open and 1 closed, got %d and %d", len(p.OpenPositions), p.ClosedPositions)
	}
	if len(p.Quotes) != 2 {
		t.Fatalf("Expected 2 quote currencies, got %d", len(p.Quotes))
	}

	usd, usdt := p.Quotes[0], p.Quotes[1]
	if usd.Quote != "usd" || usdt.Quote != "usdt" {
		t.Fatalf("Quotes not sorted: %v", p.Quotes)
	}
	// 0.5*100 + 2*10
	if !usd.CostBasis.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Expected usd cost basis 70, got %s", usd.CostBasis)
	}
	if !usd.RealizedPnL.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected usd realized 10, got %s", usd.RealizedPnL)
	}
	if !usdt.CostBasis.Equal(decimal.NewFromInt(200)) || !usdt.RealizedPnL.IsZero() {
		t.Errorf("Unexpected usdt summary: %+v", usdt)
	}
}
