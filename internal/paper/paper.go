package paper

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"hl-basis-bot/internal/config"
	"hl-basis-bot/internal/exec"
	"hl-basis-bot/internal/market"

	"go.uber.org/zap"
)

const defaultDepth = 100

// Exchange is an in-process simulation backing both capability
// interfaces: it serves snapshots from a mutable asset table and accepts
// market orders by logging them. Used by cmd/bot and by tests; the live
// exchange is deliberately outside this repository.
type Exchange struct {
	log   *zap.Logger
	drift float64
	rng   *rand.Rand

	mu     sync.RWMutex
	assets map[string]config.PaperAsset
	orders []exec.Order
}

func New(cfg config.PaperConfig, log *zap.Logger) *Exchange {
	assets := make(map[string]config.PaperAsset, len(cfg.Assets))
	for name, seed := range cfg.Assets {
		if seed.Depth == 0 {
			seed.Depth = defaultDepth
		}
		assets[name] = seed
	}
	return &Exchange{
		log:    log,
		drift:  cfg.Drift,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		assets: assets,
	}
}

// Snapshot builds a fresh snapshot around the asset's current prices,
// applying the configured random-walk drift first. Unknown assets return
// ok=false, never an error.
func (e *Exchange) Snapshot(ctx context.Context, asset string) (market.Snapshot, bool) {
	_ = ctx
	e.mu.Lock()
	defer e.mu.Unlock()
	seed, ok := e.assets[asset]
	if !ok {
		return market.Snapshot{}, false
	}
	if e.drift > 0 {
		seed.SpotPrice *= 1 + (e.rng.Float64()*2-1)*e.drift
		seed.PerpPrice *= 1 + (e.rng.Float64()*2-1)*e.drift
		e.assets[asset] = seed
	}
	return market.Snapshot{
		Asset:             asset,
		SpotPrice:         seed.SpotPrice,
		PerpPrice:         seed.PerpPrice,
		FundingRateHourly: seed.FundingRateHourly,
		SpotBook:          syntheticBook(seed.SpotPrice, seed.Depth),
		PerpBook:          syntheticBook(seed.PerpPrice, seed.Depth),
		FetchedAt:         time.Now().UTC(),
	}, true
}

func (e *Exchange) PlaceMarketOrder(ctx context.Context, order exec.Order) error {
	_ = ctx
	e.mu.Lock()
	e.orders = append(e.orders, order)
	e.mu.Unlock()
	side := "sell"
	if order.IsBuy {
		side = "buy"
	}
	e.log.Info("paper order filled",
		zap.String("asset", order.Asset),
		zap.String("leg", string(order.Leg)),
		zap.String("side", side),
		zap.Float64("notional_usd", order.NotionalUSD),
		zap.String("client_order_id", order.ClientOrderID),
	)
	return nil
}

// SetAsset replaces one asset's seed, creating it if new. Tests drive
// scenarios with this.
func (e *Exchange) SetAsset(asset string, seed config.PaperAsset) {
	if seed.Depth == 0 {
		seed.Depth = defaultDepth
	}
	e.mu.Lock()
	e.assets[asset] = seed
	e.mu.Unlock()
}

// RemoveAsset makes subsequent snapshots for the asset unavailable.
func (e *Exchange) RemoveAsset(asset string) {
	e.mu.Lock()
	delete(e.assets, asset)
	e.mu.Unlock()
}

// Orders returns a copy of every order received so far.
func (e *Exchange) Orders() []exec.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]exec.Order, len(e.orders))
	copy(out, e.orders)
	return out
}

// syntheticBook places symmetric liquidity just inside the usual
// slippage tolerance on both sides of price.
func syntheticBook(price, depth float64) market.OrderBook {
	if price <= 0 {
		return market.OrderBook{}
	}
	return market.OrderBook{
		Bids: []market.Level{
			{Price: price * 0.999, Size: depth},
			{Price: price * 0.997, Size: depth},
		},
		Asks: []market.Level{
			{Price: price * 1.001, Size: depth},
			{Price: price * 1.003, Size: depth},
		},
	}
}
