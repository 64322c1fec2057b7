package state

import (
	"context"
	"time"
)

// Store is a small kv surface for operational bookkeeping (operator
// offsets, pause flag). Position state is deliberately not persisted;
// the bot always restarts flat.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// TradeEvent is one order submission as seen by the execution layer:
// either a single TWAP slice leg or an immediate-exit leg.
type TradeEvent struct {
	Time          time.Time `json:"time"`
	Asset         string    `json:"asset"`
	Intent        string    `json:"intent"`
	Leg           string    `json:"leg"`
	IsBuy         bool      `json:"is_buy"`
	NotionalUSD   float64   `json:"notional_usd"`
	RunID         string    `json:"run_id"`
	Slice         int       `json:"slice"`
	SliceCount    int       `json:"slice_count"`
	ClientOrderID string    `json:"client_order_id"`
}

// Journal is an append-only audit trail of everything submitted to the
// exchange.
type Journal interface {
	Append(ctx context.Context, event TradeEvent) error
}
