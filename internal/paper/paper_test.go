package paper

import (
	"context"
	"testing"

	"hl-basis-bot/internal/config"
	"hl-basis-bot/internal/exec"
	"hl-basis-bot/internal/signal"

	"go.uber.org/zap"
)

func newTestExchange() *Exchange {
	return New(config.PaperConfig{
		Assets: map[string]config.PaperAsset{
			"ETH": {SpotPrice: 3000, PerpPrice: 3003, FundingRateHourly: 0.01},
		},
	}, zap.NewNop())
}

func TestSnapshotKnownAsset(t *testing.T) {
	e := newTestExchange()
	snap, ok := e.Snapshot(context.Background(), "ETH")
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.Asset != "ETH" || snap.SpotPrice != 3000 || snap.PerpPrice != 3003 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.SpotBook.Empty() || snap.PerpBook.Empty() {
		t.Fatalf("expected synthetic books on both legs")
	}
}

func TestSnapshotUnknownAsset(t *testing.T) {
	e := newTestExchange()
	if _, ok := e.Snapshot(context.Background(), "XRP"); ok {
		t.Fatalf("expected no snapshot for unknown asset")
	}
	e.RemoveAsset("ETH")
	if _, ok := e.Snapshot(context.Background(), "ETH"); ok {
		t.Fatalf("expected no snapshot after removal")
	}
}

func TestSyntheticBookPassesDepthCheck(t *testing.T) {
	e := newTestExchange()
	snap, _ := e.Snapshot(context.Background(), "ETH")
	// Default depth of 100 units easily covers 1000 USD at 3000.
	if !signal.SufficientDepth(snap.SpotBook, 1000, snap.SpotPrice, 0.005) {
		t.Fatalf("expected default depth to pass the liquidity check")
	}
	e.SetAsset("ETH", config.PaperAsset{SpotPrice: 3000, PerpPrice: 3003, Depth: 0.0001})
	snap, _ = e.Snapshot(context.Background(), "ETH")
	if signal.SufficientDepth(snap.SpotBook, 1000, snap.SpotPrice, 0.005) {
		t.Fatalf("expected tiny depth to fail the liquidity check")
	}
}

func TestOrdersRecorded(t *testing.T) {
	e := newTestExchange()
	order := exec.Order{Asset: "ETH", Leg: exec.LegSpot, IsBuy: true, NotionalUSD: 500, ClientOrderID: "c-1"}
	if err := e.PlaceMarketOrder(context.Background(), order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orders := e.Orders()
	if len(orders) != 1 || orders[0].ClientOrderID != "c-1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}
