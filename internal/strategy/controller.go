package strategy

import (
	"context"
	"fmt"
	"time"

	"hl-basis-bot/internal/config"
	"hl-basis-bot/internal/exec"
	"hl-basis-bot/internal/market"
	"hl-basis-bot/internal/metrics"
	"hl-basis-bot/internal/signal"

	"go.uber.org/zap"
)

// Trader is the execution surface the controller drives. The concrete
// implementation is exec.Executor; tests substitute fakes.
type Trader interface {
	ExecuteTWAP(ctx context.Context, asset string, intent exec.Intent, notionalUSD float64, duration time.Duration, intervals int) error
	ExecuteImmediate(ctx context.Context, asset string, intent exec.Intent, notionalUSD float64) error
}

// Notifier receives human-readable lifecycle messages. Optional.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Controller owns the single-position state machine. Cycles must not
// overlap; the caller drives Cycle sequentially and nothing else mutates
// state or position.
type Controller struct {
	cfg     config.StrategyConfig
	data    market.Provider
	signals *signal.Calculator
	trader  Trader
	log     *zap.Logger
	metrics *metrics.Metrics
	notify  Notifier
	now     func() time.Time

	state    State
	position *Position
}

func NewController(cfg config.StrategyConfig, data market.Provider, signals *signal.Calculator, trader Trader, log *zap.Logger, m *metrics.Metrics) *Controller {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Controller{
		cfg:     cfg,
		data:    data,
		signals: signals,
		trader:  trader,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

func (c *Controller) SetNotifier(n Notifier) {
	c.notify = n
}

// SetClock overrides the time source. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

func (c *Controller) State() State {
	if c.state == "" {
		return StateSearching
	}
	return c.state
}

func (c *Controller) Position() (Position, bool) {
	if c.position == nil {
		return Position{}, false
	}
	return *c.position, true
}

// Cycle runs one pass of the decision logic. Failures never propagate:
// every branch leaves the machine in a well-defined state and reports
// through the log and counters.
func (c *Controller) Cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cycle panicked", zap.Any("panic", r))
		}
	}()
	c.metrics.CyclesRun.Inc()
	switch c.State() {
	case StateSearching:
		c.searchCycle(ctx)
	case StatePositionOpen:
		c.manageCycle(ctx)
	}
}

func (c *Controller) searchCycle(ctx context.Context) {
	best, ok := c.signals.FindBest(ctx, c.cfg.Assets, c.cfg.TradeNotionalUSD, "")
	if !ok {
		c.log.Info("searching: no scorable candidates")
		return
	}
	if best.Opportunity.Score <= c.cfg.EntryThreshold {
		c.log.Info("searching: best below entry threshold",
			zap.String("asset", best.Asset),
			zap.Float64("score", best.Opportunity.Score),
			zap.Float64("entry_threshold", c.cfg.EntryThreshold),
		)
		return
	}
	c.enter(ctx, best)
}

func (c *Controller) manageCycle(ctx context.Context) {
	if c.position == nil {
		// POSITION_OPEN with no position violates the state invariant;
		// reset rather than trade on garbage.
		c.log.Error("position_open state without a position, resetting to searching")
		c.state = StateSearching
		return
	}
	pos := c.position

	snap, ok := c.data.Snapshot(ctx, pos.Asset)
	if !ok {
		c.metrics.DataUnavailable.Inc()
		c.log.Error("snapshot unavailable for held asset, exiting immediately",
			zap.String("asset", pos.Asset))
		c.immediateExit(ctx, pos.Asset, "data unavailable")
		return
	}

	change := BasisChangePercent(pos.EntrySpotPrice, pos.EntryPerpPrice, snap.SpotPrice, snap.PerpPrice)
	c.log.Debug("stop-loss check",
		zap.String("asset", pos.Asset),
		zap.Float64("basis_change_percent", change),
		zap.Float64("stop_loss_threshold_percent", c.cfg.StopLossBasisPercent),
	)
	if change > c.cfg.StopLossBasisPercent {
		// Stop-loss overrides the minimum holding period.
		c.log.Warn("stop-loss triggered",
			zap.String("asset", pos.Asset),
			zap.Float64("basis_change_percent", change),
		)
		if c.immediateExit(ctx, pos.Asset, "stop-loss") {
			c.metrics.StopLosses.Inc()
		}
		return
	}

	held := c.now().Sub(pos.OpenedAt)
	if held < c.cfg.MinHoldingPeriod {
		c.log.Info("within minimum holding period",
			zap.String("asset", pos.Asset),
			zap.Duration("held", held),
			zap.Duration("min_holding_period", c.cfg.MinHoldingPeriod),
		)
		return
	}

	opp, ok := c.signals.Score(snap, c.cfg.TradeNotionalUSD)
	if !ok {
		c.log.Warn("liquidity dried up for held asset, exiting",
			zap.String("asset", pos.Asset))
		if c.twapExit(ctx, pos.Asset, "liquidity dried up") {
			c.metrics.LiquidityExits.Inc()
		}
		return
	}
	pos.CurrentScore = opp.Score
	pos.HasCurrentScore = true

	if alt, ok := c.signals.FindBest(ctx, c.cfg.Assets, c.cfg.TradeNotionalUSD, pos.Asset); ok &&
		alt.Opportunity.Score > opp.Score+c.cfg.RotationThreshold {
		c.rotate(ctx, alt, opp.Score)
		return
	}

	if opp.Score < c.cfg.DecayThreshold {
		c.log.Info("position decayed below threshold",
			zap.String("asset", pos.Asset),
			zap.Float64("score", opp.Score),
			zap.Float64("decay_threshold", c.cfg.DecayThreshold),
		)
		if c.twapExit(ctx, pos.Asset, "position decayed") {
			c.metrics.DecayExits.Inc()
		}
		return
	}

	c.log.Info("holding position",
		zap.String("asset", pos.Asset),
		zap.Float64("score", opp.Score),
	)
}

func (c *Controller) enter(ctx context.Context, best signal.Best) bool {
	c.log.Info("entering position",
		zap.String("asset", best.Asset),
		zap.Float64("score", best.Opportunity.Score),
		zap.Float64("basis_percent", best.Opportunity.BasisPercent),
	)
	err := c.trader.ExecuteTWAP(ctx, best.Asset, exec.IntentEntry, c.cfg.TradeNotionalUSD, c.cfg.TWAPDuration, c.cfg.TWAPIntervals)
	if err != nil {
		c.metrics.ExecFailures.Inc()
		c.log.Warn("entry execution failed", zap.String("asset", best.Asset), zap.Error(err))
		return false
	}
	c.position = &Position{
		Asset:             best.Asset,
		EntrySpotPrice:    best.Snapshot.SpotPrice,
		EntryPerpPrice:    best.Snapshot.PerpPrice,
		EntryBasisPercent: best.Opportunity.BasisPercent,
		EntryScore:        best.Opportunity.Score,
		EntrySnapshot:     best.Snapshot,
		OpenedAt:          c.now(),
	}
	c.state = StatePositionOpen
	c.metrics.Entries.Inc()
	c.send(ctx, fmt.Sprintf("Entered %s: score %.4f, basis %.4f%%", best.Asset, best.Opportunity.Score, best.Opportunity.BasisPercent))
	return true
}

// rotate closes the held position and, only if the exit succeeded, opens
// the alternative. An exit failure aborts the rotation and keeps the old
// position. An entry failure after a clean exit leaves the bot flat; the
// old position is gone and no restore is attempted.
func (c *Controller) rotate(ctx context.Context, alt signal.Best, currentScore float64) {
	old := c.position.Asset
	c.log.Info("rotating position",
		zap.String("from", old),
		zap.String("to", alt.Asset),
		zap.Float64("current_score", currentScore),
		zap.Float64("alt_score", alt.Opportunity.Score),
		zap.Float64("rotation_threshold", c.cfg.RotationThreshold),
	)
	if !c.twapExit(ctx, old, "rotation") {
		c.log.Warn("rotation aborted: exit failed, holding", zap.String("asset", old))
		return
	}
	if !c.enter(ctx, alt) {
		c.log.Error("rotation entry failed after exit, bot is flat",
			zap.String("from", old),
			zap.String("to", alt.Asset),
		)
		return
	}
	c.metrics.Rotations.Inc()
}

// twapExit unwinds the position over the configured TWAP schedule and
// clears it on success. Reports whether the exit happened.
func (c *Controller) twapExit(ctx context.Context, asset, reason string) bool {
	c.log.Info("exiting position via twap",
		zap.String("asset", asset),
		zap.String("reason", reason),
	)
	err := c.trader.ExecuteTWAP(ctx, asset, exec.IntentExit, c.cfg.TradeNotionalUSD, c.cfg.TWAPDuration, c.cfg.TWAPIntervals)
	if err != nil {
		c.metrics.ExecFailures.Inc()
		c.log.Error("twap exit failed", zap.String("asset", asset), zap.String("reason", reason), zap.Error(err))
		return false
	}
	c.clearPosition()
	c.metrics.Exits.Inc()
	c.send(ctx, fmt.Sprintf("Exited %s (%s)", asset, reason))
	return true
}

// immediateExit unwinds both legs at full notional without slicing and
// clears the position on success. Reports whether the exit happened.
func (c *Controller) immediateExit(ctx context.Context, asset, reason string) bool {
	err := c.trader.ExecuteImmediate(ctx, asset, exec.IntentExit, c.cfg.TradeNotionalUSD)
	if err != nil {
		c.metrics.ExecFailures.Inc()
		c.log.Error("immediate exit failed", zap.String("asset", asset), zap.String("reason", reason), zap.Error(err))
		return false
	}
	c.clearPosition()
	c.metrics.Exits.Inc()
	c.metrics.ImmediateExits.Inc()
	c.send(ctx, fmt.Sprintf("Immediate exit %s (%s)", asset, reason))
	return true
}

func (c *Controller) clearPosition() {
	c.position = nil
	c.state = StateSearching
}

func (c *Controller) send(ctx context.Context, message string) {
	if c.notify == nil {
		return
	}
	if err := c.notify.Send(ctx, message); err != nil {
		c.log.Warn("notification failed", zap.Error(err))
	}
}
