package strategy

import (
	"time"

	"hl-basis-bot/internal/market"
)

type State string

const (
	StateSearching    State = "SEARCHING"
	StatePositionOpen State = "POSITION_OPEN"
)

// Position is the single open basis trade. The controller holds at most
// one; rotation replaces it wholesale with a fresh entry snapshot and
// timestamp.
type Position struct {
	Asset             string
	EntrySpotPrice    float64
	EntryPerpPrice    float64
	EntryBasisPercent float64
	EntryScore        float64
	CurrentScore      float64
	HasCurrentScore   bool
	EntrySnapshot     market.Snapshot
	OpenedAt          time.Time
}

// BasisChangePercent measures how far the basis (perp minus spot, in
// price units) has moved since entry, relative to the entry spot price.
// A widening basis on a long-spot/short-perp position is a loss.
func BasisChangePercent(entrySpot, entryPerp, currentSpot, currentPerp float64) float64 {
	if entrySpot == 0 {
		return 0
	}
	entryBasis := entryPerp - entrySpot
	currentBasis := currentPerp - currentSpot
	return (currentBasis - entryBasis) / entrySpot * 100
}
