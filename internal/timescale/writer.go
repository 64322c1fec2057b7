package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-basis-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// ScoreSample is one scored candidate from one cycle.
type ScoreSample struct {
	Time         time.Time
	Asset        string
	Score        float64
	BasisPercent float64
	FundingRate  float64
	SpotPrice    float64
	PerpPrice    float64
}

// CycleSnapshot records the controller's view after one cycle.
type CycleSnapshot struct {
	Time               time.Time
	State              string
	Asset              string
	HasPosition        bool
	EntryScore         float64
	EntryBasisPercent  float64
	CurrentScore       float64
	HasCurrentScore    bool
	BasisChangePercent float64
	NotionalUSD        float64
}

// Writer flushes telemetry to TimescaleDB off the strategy path. Enqueue
// never blocks; rows are dropped when the queue is full.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	cycles    chan CycleSnapshot
	scores    chan ScoreSample
	started   atomic.Bool
	dropCycle atomic.Uint64
	dropScore atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		cycles: make(chan CycleSnapshot, queueSize),
		scores: make(chan ScoreSample, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueCycle(snapshot CycleSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- snapshot:
	default:
		if w.dropCycle.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale cycle queue full")
		}
	}
}

func (w *Writer) EnqueueScore(sample ScoreSample) {
	if w == nil {
		return
	}
	select {
	case w.scores <- sample:
	default:
		if w.dropScore.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale score queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.cycles:
			w.writeCycle(ctx, snap)
		case sample := <-w.scores:
			w.writeScore(ctx, sample)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		asset TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		basis_percent DOUBLE PRECISION NOT NULL,
		funding_rate DOUBLE PRECISION NOT NULL,
		spot_price DOUBLE PRECISION NOT NULL,
		perp_price DOUBLE PRECISION NOT NULL
	)`, w.table("score_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		state TEXT NOT NULL,
		asset TEXT NOT NULL,
		has_position BOOLEAN NOT NULL,
		entry_score DOUBLE PRECISION NOT NULL,
		entry_basis_percent DOUBLE PRECISION NOT NULL,
		current_score DOUBLE PRECISION NOT NULL,
		has_current_score BOOLEAN NOT NULL,
		basis_change_percent DOUBLE PRECISION NOT NULL,
		notional_usd DOUBLE PRECISION NOT NULL
	)`, w.table("cycle_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("score_samples"))); err != nil && w.log != nil {
		w.log.Warn("timescale score_samples hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("cycle_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale cycle_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeCycle(ctx context.Context, snap CycleSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, state, asset, has_position, entry_score, entry_basis_percent,
		current_score, has_current_score, basis_change_percent, notional_usd
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, w.table("cycle_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.State,
		snap.Asset,
		snap.HasPosition,
		snap.EntryScore,
		snap.EntryBasisPercent,
		snap.CurrentScore,
		snap.HasCurrentScore,
		snap.BasisChangePercent,
		snap.NotionalUSD,
	); err != nil && w.log != nil {
		w.log.Warn("timescale cycle insert failed", zap.Error(err))
	}
}

func (w *Writer) writeScore(ctx context.Context, sample ScoreSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, asset, score, basis_percent, funding_rate, spot_price, perp_price
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("score_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.Asset,
		sample.Score,
		sample.BasisPercent,
		sample.FundingRate,
		sample.SpotPrice,
		sample.PerpPrice,
	); err != nil && w.log != nil {
		w.log.Warn("timescale score insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
