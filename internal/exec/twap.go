package exec

import (
	"context"
	"fmt"
	"time"

	"hl-basis-bot/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Intent names the direction of a two-leg basis trade.
type Intent string

const (
	IntentEntry Intent = "ENTRY"
	IntentExit  Intent = "EXIT"
)

type Leg string

const (
	LegSpot Leg = "spot"
	LegPerp Leg = "perp"
)

// Order is one market order on one leg, sized in quote notional.
type Order struct {
	Asset         string
	Leg           Leg
	IsBuy         bool
	NotionalUSD   float64
	ClientOrderID string
}

// OrderClient submits a single market order and reports rejection as an
// error. It is the only thing the execution layer needs from the
// exchange.
type OrderClient interface {
	PlaceMarketOrder(ctx context.Context, order Order) error
}

// Waiter performs the inter-slice pause. The default implementation
// blocks the calling goroutine; tests and a future preemptible scheduler
// substitute their own.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

type sleepWaiter struct{}

func (sleepWaiter) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Executor struct {
	client  OrderClient
	journal state.Journal
	waiter  Waiter
	log     *zap.Logger
	now     func() time.Time
}

func New(client OrderClient, journal state.Journal, log *zap.Logger) *Executor {
	return &Executor{
		client:  client,
		journal: journal,
		waiter:  sleepWaiter{},
		log:     log,
		now:     time.Now,
	}
}

// SetWaiter replaces the inter-slice pause strategy.
func (e *Executor) SetWaiter(w Waiter) {
	if w != nil {
		e.waiter = w
	}
}

// ExecuteTWAP splits totalNotionalUSD into intervals equal slices spread
// evenly over duration and submits both legs of each slice: buy spot /
// sell perp on entry, sell spot / buy perp on exit. The wait between
// slices blocks until the next slice is due; there is no pause after the
// last slice. A failed leg aborts the remaining slices and the error is
// returned to the caller, who owns reconciling the partially executed
// position. There is no retry and no compensating trade here.
func (e *Executor) ExecuteTWAP(ctx context.Context, asset string, intent Intent, totalNotionalUSD float64, duration time.Duration, intervals int) error {
	if intervals <= 0 {
		return fmt.Errorf("twap intervals must be > 0, got %d", intervals)
	}
	if duration <= 0 {
		return fmt.Errorf("twap duration must be > 0, got %s", duration)
	}
	if intent != IntentEntry && intent != IntentExit {
		return fmt.Errorf("unknown twap intent %q", intent)
	}
	pause := duration / time.Duration(intervals)
	sliceNotional := totalNotionalUSD / float64(intervals)
	runID := uuid.NewString()
	e.log.Info("twap start",
		zap.String("asset", asset),
		zap.String("intent", string(intent)),
		zap.String("run_id", runID),
		zap.Float64("total_notional_usd", totalNotionalUSD),
		zap.Float64("slice_notional_usd", sliceNotional),
		zap.Int("intervals", intervals),
		zap.Duration("pause", pause),
	)
	for i := 0; i < intervals; i++ {
		if err := e.placeSlicePair(ctx, asset, intent, sliceNotional, runID, i, intervals); err != nil {
			return fmt.Errorf("twap %s slice %d/%d for %s: %w", intent, i+1, intervals, asset, err)
		}
		if i < intervals-1 {
			if err := e.waiter.Wait(ctx, pause); err != nil {
				return fmt.Errorf("twap %s wait after slice %d/%d for %s: %w", intent, i+1, intervals, asset, err)
			}
		}
	}
	e.log.Info("twap complete",
		zap.String("asset", asset),
		zap.String("intent", string(intent)),
		zap.String("run_id", runID),
	)
	return nil
}

// ExecuteImmediate unwinds (or opens) both legs at full notional in a
// single slice with no pause. Used for the urgent exit paths where
// orderly execution loses to speed.
func (e *Executor) ExecuteImmediate(ctx context.Context, asset string, intent Intent, notionalUSD float64) error {
	if intent != IntentEntry && intent != IntentExit {
		return fmt.Errorf("unknown intent %q", intent)
	}
	runID := uuid.NewString()
	e.log.Warn("immediate execution",
		zap.String("asset", asset),
		zap.String("intent", string(intent)),
		zap.String("run_id", runID),
		zap.Float64("notional_usd", notionalUSD),
	)
	if err := e.placeSlicePair(ctx, asset, intent, notionalUSD, runID, 0, 1); err != nil {
		return fmt.Errorf("immediate %s for %s: %w", intent, asset, err)
	}
	return nil
}

func (e *Executor) placeSlicePair(ctx context.Context, asset string, intent Intent, notionalUSD float64, runID string, slice, intervals int) error {
	spotBuy := intent == IntentEntry
	legs := []Order{
		{Asset: asset, Leg: LegSpot, IsBuy: spotBuy, NotionalUSD: notionalUSD},
		{Asset: asset, Leg: LegPerp, IsBuy: !spotBuy, NotionalUSD: notionalUSD},
	}
	for _, order := range legs {
		order.ClientOrderID = fmt.Sprintf("%s-%d-%s", runID, slice, order.Leg)
		if err := e.client.PlaceMarketOrder(ctx, order); err != nil {
			return fmt.Errorf("%s leg: %w", order.Leg, err)
		}
		e.record(ctx, order, intent, runID, slice, intervals)
	}
	return nil
}

func (e *Executor) record(ctx context.Context, order Order, intent Intent, runID string, slice, intervals int) {
	if e.journal == nil {
		return
	}
	event := state.TradeEvent{
		Time:          e.now().UTC(),
		Asset:         order.Asset,
		Intent:        string(intent),
		Leg:           string(order.Leg),
		IsBuy:         order.IsBuy,
		NotionalUSD:   order.NotionalUSD,
		RunID:         runID,
		Slice:         slice,
		SliceCount:    intervals,
		ClientOrderID: order.ClientOrderID,
	}
	if err := e.journal.Append(ctx, event); err != nil {
		e.log.Warn("journal append failed", zap.Error(err))
	}
}
