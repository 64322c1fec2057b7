package signal

import (
	"context"
	"math"
	"testing"

	"hl-basis-bot/internal/market"

	"go.uber.org/zap"
)

type tableProvider struct {
	snaps map[string]market.Snapshot
}

func (p *tableProvider) Snapshot(ctx context.Context, asset string) (market.Snapshot, bool) {
	_ = ctx
	snap, ok := p.snaps[asset]
	return snap, ok
}

func deepBook(price float64) market.OrderBook {
	return market.OrderBook{
		Bids: []market.Level{{Price: price * 0.999, Size: 1000}},
		Asks: []market.Level{{Price: price * 1.001, Size: 1000}},
	}
}

func liquidSnapshot(asset string, spot, perp, funding float64) market.Snapshot {
	return market.Snapshot{
		Asset:             asset,
		SpotPrice:         spot,
		PerpPrice:         perp,
		FundingRateHourly: funding,
		SpotBook:          deepBook(spot),
		PerpBook:          deepBook(perp),
	}
}

func newTestCalculator(snaps map[string]market.Snapshot) *Calculator {
	return NewCalculator(&tableProvider{snaps: snaps}, 0.2, 0.005, zap.NewNop())
}

func TestSufficientDepthBothSidesRequired(t *testing.T) {
	// 1000 USD at price 100 needs 10 units within tolerance on each side.
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.9, Size: 50}},
		Asks: []market.Level{{Price: 100.1, Size: 5}},
	}
	if SufficientDepth(book, 1000, 100, 0.005) {
		t.Fatalf("expected insufficient ask depth")
	}
	book.Asks[0].Size = 50
	book.Bids[0].Size = 5
	if SufficientDepth(book, 1000, 100, 0.005) {
		t.Fatalf("expected insufficient bid depth")
	}
	book.Bids[0].Size = 50
	if !SufficientDepth(book, 1000, 100, 0.005) {
		t.Fatalf("expected sufficient depth")
	}
}

func TestSufficientDepthIgnoresLevelsOutsideTolerance(t *testing.T) {
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.9, Size: 50}},
		Asks: []market.Level{{Price: 101, Size: 1000}}, // beyond 100.5
	}
	if SufficientDepth(book, 1000, 100, 0.005) {
		t.Fatalf("expected asks beyond tolerance to be excluded")
	}
}

func TestSufficientDepthFailsClosed(t *testing.T) {
	if SufficientDepth(market.OrderBook{}, 1000, 100, 0.005) {
		t.Fatalf("expected empty book to fail")
	}
	if SufficientDepth(deepBook(100), 1000, 0, 0.005) {
		t.Fatalf("expected zero reference price to fail")
	}
	oneSided := market.OrderBook{Asks: []market.Level{{Price: 100.1, Size: 1000}}}
	if SufficientDepth(oneSided, 1000, 100, 0.005) {
		t.Fatalf("expected book without bids to fail")
	}
}

func TestScoreMatchesCarryFormula(t *testing.T) {
	calc := newTestCalculator(nil)
	snap := liquidSnapshot("ETH", 3000, 3003, 0.01)
	opp, ok := calc.Score(snap, 1000)
	if !ok {
		t.Fatalf("expected a score")
	}
	if math.Abs(opp.BasisPercent-0.1) > 1e-9 {
		t.Fatalf("expected basis 0.1, got %f", opp.BasisPercent)
	}
	// 0.01 + 0.1 - 0.2
	if math.Abs(opp.Score-(-0.09)) > 1e-9 {
		t.Fatalf("expected score -0.09, got %f", opp.Score)
	}
}

func TestScoreAbsentWhenEitherLegIlliquid(t *testing.T) {
	calc := newTestCalculator(nil)
	snap := liquidSnapshot("ETH", 3000, 3003, 0.01)
	snap.PerpBook = market.OrderBook{
		Bids: []market.Level{{Price: 3000, Size: 0.001}},
		Asks: []market.Level{{Price: 3006, Size: 0.001}},
	}
	if _, ok := calc.Score(snap, 1000); ok {
		t.Fatalf("expected absent score when perp leg is illiquid")
	}
	snap = liquidSnapshot("ETH", 3000, 3003, 0.01)
	snap.SpotBook = market.OrderBook{}
	if _, ok := calc.Score(snap, 1000); ok {
		t.Fatalf("expected absent score when spot book is missing")
	}
}

func TestScoreZeroSpotPriceGuard(t *testing.T) {
	calc := NewCalculator(nil, 0.2, 0.005, zap.NewNop())
	snap := market.Snapshot{
		Asset:     "X",
		SpotPrice: 0,
		PerpPrice: 100,
		SpotBook: market.OrderBook{
			Bids: []market.Level{{Price: 1, Size: 1}},
			Asks: []market.Level{{Price: 1, Size: 1}},
		},
		PerpBook: deepBook(100),
	}
	// Depth check already fails on refPrice == 0; the score is absent
	// rather than computed from a division by zero.
	if _, ok := calc.Score(snap, 1000); ok {
		t.Fatalf("expected absent score for zero spot price")
	}
}

func TestFindBestPicksStrictMaximum(t *testing.T) {
	calc := newTestCalculator(map[string]market.Snapshot{
		"ETH": liquidSnapshot("ETH", 3000, 3003, 0.01),
		"BTC": liquidSnapshot("BTC", 60000, 60120, 0.01), // basis 0.2
		"SOL": liquidSnapshot("SOL", 140, 139.5, -0.001),
	})
	best, ok := calc.FindBest(context.Background(), []string{"ETH", "BTC", "SOL"}, 1000, "")
	if !ok {
		t.Fatalf("expected a best opportunity")
	}
	if best.Asset != "BTC" {
		t.Fatalf("expected BTC, got %s", best.Asset)
	}
}

func TestFindBestNeverReturnsExcluded(t *testing.T) {
	calc := newTestCalculator(map[string]market.Snapshot{
		"ETH": liquidSnapshot("ETH", 3000, 3030, 0.5), // clearly best
		"BTC": liquidSnapshot("BTC", 60000, 60060, 0.01),
	})
	best, ok := calc.FindBest(context.Background(), []string{"ETH", "BTC"}, 1000, "ETH")
	if !ok {
		t.Fatalf("expected a best opportunity")
	}
	if best.Asset == "ETH" {
		t.Fatalf("excluded asset returned")
	}
}

func TestFindBestSkipsUnavailableAndIlliquid(t *testing.T) {
	illiquid := liquidSnapshot("DOGE", 0.1, 0.101, 0.9)
	illiquid.SpotBook.Asks[0].Size = 0.001
	calc := newTestCalculator(map[string]market.Snapshot{
		"DOGE": illiquid,
		"BTC":  liquidSnapshot("BTC", 60000, 60060, 0.01),
	})
	best, ok := calc.FindBest(context.Background(), []string{"MISSING", "DOGE", "BTC"}, 1000, "")
	if !ok {
		t.Fatalf("expected a best opportunity")
	}
	if best.Asset != "BTC" {
		t.Fatalf("expected BTC, got %s", best.Asset)
	}
}

func TestFindBestEmptyCandidates(t *testing.T) {
	calc := newTestCalculator(nil)
	if _, ok := calc.FindBest(context.Background(), nil, 1000, ""); ok {
		t.Fatalf("expected no opportunity for empty candidate set")
	}
}

func TestFindBestFirstSeenWinsOnTie(t *testing.T) {
	calc := newTestCalculator(map[string]market.Snapshot{
		"A": liquidSnapshot("A", 100, 100.1, 0.01),
		"B": liquidSnapshot("B", 200, 200.2, 0.01),
	})
	best, ok := calc.FindBest(context.Background(), []string{"A", "B"}, 1000, "")
	if !ok {
		t.Fatalf("expected a best opportunity")
	}
	if best.Asset != "A" {
		t.Fatalf("expected first-seen max to win, got %s", best.Asset)
	}
}
