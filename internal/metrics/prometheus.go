package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_basis_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		Entries:         promCounter{newCounter("entries_total", "Total number of positions entered.")},
		Exits:           promCounter{newCounter("exits_total", "Total number of positions exited.")},
		Rotations:       promCounter{newCounter("rotations_total", "Total number of completed rotations.")},
		StopLosses:      promCounter{newCounter("stop_losses_total", "Total number of stop-loss exits.")},
		ImmediateExits:  promCounter{newCounter("immediate_exits_total", "Total number of immediate (non-TWAP) exits.")},
		DecayExits:      promCounter{newCounter("decay_exits_total", "Total number of score-decay exits.")},
		LiquidityExits:  promCounter{newCounter("liquidity_exits_total", "Total number of exits on dried-up liquidity.")},
		DataUnavailable: promCounter{newCounter("data_unavailable_total", "Total number of cycles with no snapshot for the held asset.")},
		ExecFailures:    promCounter{newCounter("exec_failures_total", "Total number of failed execution requests.")},
		CyclesRun:       promCounter{newCounter("cycles_total", "Total number of controller cycles run.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
