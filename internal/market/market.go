package market

import (
	"context"
	"time"
)

// Level is a single order-book entry.
type Level struct {
	Price float64
	Size  float64
}

// OrderBook holds one side-ordered book: best price first on both sides.
type OrderBook struct {
	Bids []Level
	Asks []Level
}

func (b OrderBook) Empty() bool {
	return len(b.Bids) == 0 || len(b.Asks) == 0
}

// Snapshot is the per-asset view the strategy consumes. It is produced
// fresh on every fetch and owned by nobody; stale copies are never reused
// across cycles.
type Snapshot struct {
	Asset             string
	SpotPrice         float64
	PerpPrice         float64
	FundingRateHourly float64
	SpotBook          OrderBook
	PerpBook          OrderBook
	FetchedAt         time.Time
}

// BasisPercent is the perp premium over spot, relative to spot.
func (s Snapshot) BasisPercent() float64 {
	if s.SpotPrice == 0 {
		return 0
	}
	return (s.PerpPrice - s.SpotPrice) / s.SpotPrice * 100
}

// Provider supplies market snapshots. Implementations report unknown or
// unavailable assets with ok=false rather than an error so callers can
// treat data loss as a state-machine input.
type Provider interface {
	Snapshot(ctx context.Context, asset string) (Snapshot, bool)
}
