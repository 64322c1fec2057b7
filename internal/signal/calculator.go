package signal

import (
	"context"

	"hl-basis-bot/internal/market"

	"go.uber.org/zap"
)

// Opportunity is a liquidity-gated score for one asset. A zero score is a
// valid (bad) opportunity; absence is reported through the ok result of
// the functions below, never as a zero value.
type Opportunity struct {
	Score        float64
	BasisPercent float64
}

// Best is the winner of a best-opportunity search, together with the
// snapshot it was scored from so the caller can enter at the same prices
// it evaluated.
type Best struct {
	Asset       string
	Opportunity Opportunity
	Snapshot    market.Snapshot
}

// SufficientDepth reports whether both sides of a book can absorb the
// requested notional within the slippage tolerance around refPrice. It
// fails closed: an empty book or a zero reference price counts as
// insufficient.
func SufficientDepth(book market.OrderBook, notionalUSD, refPrice, tolerance float64) bool {
	if book.Empty() || refPrice == 0 {
		return false
	}
	required := notionalUSD / refPrice
	var askVol float64
	for _, lvl := range book.Asks {
		if lvl.Price <= refPrice*(1+tolerance) {
			askVol += lvl.Size
		}
	}
	var bidVol float64
	for _, lvl := range book.Bids {
		if lvl.Price >= refPrice*(1-tolerance) {
			bidVol += lvl.Size
		}
	}
	return askVol >= required && bidVol >= required
}

type Calculator struct {
	data              market.Provider
	feePercent        float64
	slippageTolerance float64
	log               *zap.Logger
}

func NewCalculator(data market.Provider, feePercent, slippageTolerance float64, log *zap.Logger) *Calculator {
	return &Calculator{
		data:              data,
		feePercent:        feePercent,
		slippageTolerance: slippageTolerance,
		log:               log,
	}
}

// Score computes the carry-plus-basis score for one snapshot. Both legs
// must pass the depth check for the requested notional; otherwise the
// opportunity is absent and ok is false.
func (c *Calculator) Score(snap market.Snapshot, notionalUSD float64) (Opportunity, bool) {
	if !SufficientDepth(snap.SpotBook, notionalUSD, snap.SpotPrice, c.slippageTolerance) ||
		!SufficientDepth(snap.PerpBook, notionalUSD, snap.PerpPrice, c.slippageTolerance) {
		c.log.Debug("insufficient depth for notional",
			zap.String("asset", snap.Asset),
			zap.Float64("notional_usd", notionalUSD),
		)
		return Opportunity{}, false
	}
	if snap.SpotPrice == 0 {
		// Guard against division by zero; a zero spot price with passing
		// depth checks should not occur on real data.
		c.log.Warn("zero spot price in scored snapshot", zap.String("asset", snap.Asset))
		return Opportunity{}, true
	}
	basis := snap.BasisPercent()
	score := snap.FundingRateHourly + basis - c.feePercent
	c.log.Debug("scored asset",
		zap.String("asset", snap.Asset),
		zap.Float64("spot", snap.SpotPrice),
		zap.Float64("perp", snap.PerpPrice),
		zap.Float64("funding_hourly", snap.FundingRateHourly),
		zap.Float64("basis_percent", basis),
		zap.Float64("score", score),
	)
	return Opportunity{Score: score, BasisPercent: basis}, true
}

// FindBest scans the candidate assets and returns the strict maximum
// score. exclude removes one asset from consideration (the currently held
// one during rotation checks); pass "" to consider all. Assets without a
// snapshot or without sufficient depth are skipped. The first candidate
// to reach the maximum wins, so candidate order breaks ties.
func (c *Calculator) FindBest(ctx context.Context, assets []string, notionalUSD float64, exclude string) (Best, bool) {
	var best Best
	found := false
	for _, asset := range assets {
		if asset == exclude {
			continue
		}
		snap, ok := c.data.Snapshot(ctx, asset)
		if !ok {
			c.log.Debug("snapshot unavailable", zap.String("asset", asset))
			continue
		}
		opp, ok := c.Score(snap, notionalUSD)
		if !ok {
			continue
		}
		if !found || opp.Score > best.Opportunity.Score {
			best = Best{Asset: asset, Opportunity: opp, Snapshot: snap}
			found = true
		}
	}
	if found {
		c.log.Debug("best opportunity",
			zap.String("asset", best.Asset),
			zap.Float64("score", best.Opportunity.Score),
			zap.Float64("basis_percent", best.Opportunity.BasisPercent),
		)
	}
	return best, found
}
