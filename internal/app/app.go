package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hl-basis-bot/internal/alerts"
	"hl-basis-bot/internal/config"
	"hl-basis-bot/internal/exec"
	"hl-basis-bot/internal/metrics"
	"hl-basis-bot/internal/paper"
	"hl-basis-bot/internal/signal"
	"hl-basis-bot/internal/state/sqlite"
	"hl-basis-bot/internal/strategy"
	"hl-basis-bot/internal/timescale"

	"go.uber.org/zap"
)

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	exchange   *paper.Exchange
	signals    *signal.Calculator
	executor   *exec.Executor
	controller *strategy.Controller
	metrics    *metrics.Metrics
	prom       *metrics.Prometheus
	tsdb       *timescale.Writer
	alerts     *alerts.Telegram

	opsMu          sync.RWMutex
	paused         bool
	operatorWarned bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	if len(cfg.Paper.Assets) == 0 {
		_ = store.Close()
		return nil, errors.New("paper.assets is required: this build trades against the paper exchange")
	}
	exchange := paper.New(cfg.Paper, log)
	signals := signal.NewCalculator(exchange, cfg.Strategy.RoundTripFeePercent, cfg.Strategy.SlippageTolerance, log)
	executor := exec.New(exchange, store, log)

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)
	controller := strategy.NewController(cfg.Strategy, exchange, signals, executor, log, m)
	controller.SetNotifier(alertsClient)

	tsdb, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		exchange:   exchange,
		signals:    signals,
		executor:   executor,
		controller: controller,
		metrics:    m,
		prom:       prom,
		tsdb:       tsdb,
		alerts:     alertsClient,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.tsdb != nil {
		a.tsdb.Start(ctx)
		defer a.tsdb.Close()
	}
	a.serveMetrics(ctx)
	a.startOperator(ctx)

	a.log.Info("controller loop starting",
		zap.Strings("assets", a.cfg.Strategy.Assets),
		zap.Float64("trade_notional_usd", a.cfg.Strategy.TradeNotionalUSD),
		zap.Duration("cycle_interval", a.cfg.Strategy.CycleInterval),
	)
	ticker := time.NewTicker(a.cfg.Strategy.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.isPaused() {
				a.log.Info("trading paused, skipping cycle")
				continue
			}
			a.sampleScores(ctx)
			a.controller.Cycle(ctx)
			a.emitCycle()
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
}

// sampleScores records a score sample per monitored asset. Read-only;
// the controller makes its own fetches inside the cycle.
func (a *App) sampleScores(ctx context.Context) {
	if a.tsdb == nil {
		return
	}
	now := time.Now().UTC()
	for _, asset := range a.cfg.Strategy.Assets {
		snap, ok := a.exchange.Snapshot(ctx, asset)
		if !ok {
			continue
		}
		opp, ok := a.signals.Score(snap, a.cfg.Strategy.TradeNotionalUSD)
		if !ok {
			continue
		}
		a.tsdb.EnqueueScore(timescale.ScoreSample{
			Time:         now,
			Asset:        asset,
			Score:        opp.Score,
			BasisPercent: opp.BasisPercent,
			FundingRate:  snap.FundingRateHourly,
			SpotPrice:    snap.SpotPrice,
			PerpPrice:    snap.PerpPrice,
		})
	}
}

func (a *App) emitCycle() {
	if a.tsdb == nil {
		return
	}
	snapshot := timescale.CycleSnapshot{
		Time:        time.Now().UTC(),
		State:       string(a.controller.State()),
		NotionalUSD: a.cfg.Strategy.TradeNotionalUSD,
	}
	if pos, ok := a.controller.Position(); ok {
		snapshot.Asset = pos.Asset
		snapshot.HasPosition = true
		snapshot.EntryScore = pos.EntryScore
		snapshot.EntryBasisPercent = pos.EntryBasisPercent
		snapshot.CurrentScore = pos.CurrentScore
		snapshot.HasCurrentScore = pos.HasCurrentScore
	}
	a.tsdb.EnqueueCycle(snapshot)
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

// setPaused reports whether the call changed the paused state.
func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	changed := a.paused != paused
	a.paused = paused
	return changed
}
