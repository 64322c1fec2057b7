package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	Entries         Counter
	Exits           Counter
	Rotations       Counter
	StopLosses      Counter
	ImmediateExits  Counter
	DecayExits      Counter
	LiquidityExits  Counter
	DataUnavailable Counter
	ExecFailures    Counter
	CyclesRun       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		Entries:         n,
		Exits:           n,
		Rotations:       n,
		StopLosses:      n,
		ImmediateExits:  n,
		DecayExits:      n,
		LiquidityExits:  n,
		DataUnavailable: n,
		ExecFailures:    n,
		CyclesRun:       n,
	}
}
