package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	State     StateConfig     `yaml:"state"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Paper     PaperConfig     `yaml:"paper"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type StrategyConfig struct {
	Assets               []string      `yaml:"assets"`
	TradeNotionalUSD     float64       `yaml:"trade_notional_usd"`
	EntryThreshold       float64       `yaml:"entry_threshold"`
	RotationThreshold    float64       `yaml:"rotation_threshold"`
	DecayThreshold       float64       `yaml:"decay_threshold"`
	MinHoldingPeriod     time.Duration `yaml:"min_holding_period"`
	TWAPDuration         time.Duration `yaml:"twap_duration"`
	TWAPIntervals        int           `yaml:"twap_intervals"`
	StopLossBasisPercent float64       `yaml:"stop_loss_basis_percent"`
	CycleInterval        time.Duration `yaml:"cycle_interval"`
	RoundTripFeePercent  float64       `yaml:"round_trip_fee_percent"`
	SlippageTolerance    float64       `yaml:"slippage_tolerance"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Token                string        `yaml:"token"`
	ChatID               string        `yaml:"chat_id"`
	OperatorEnabled      bool          `yaml:"operator_enabled"`
	OperatorPollInterval time.Duration `yaml:"operator_poll_interval"`
}

type PaperAsset struct {
	SpotPrice         float64 `yaml:"spot_price"`
	PerpPrice         float64 `yaml:"perp_price"`
	FundingRateHourly float64 `yaml:"funding_rate_hourly"`
	Depth             float64 `yaml:"depth"`
}

type PaperConfig struct {
	Assets map[string]PaperAsset `yaml:"assets"`
	Drift  float64               `yaml:"drift"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-basis-bot.db"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Strategy.CycleInterval == 0 {
		cfg.Strategy.CycleInterval = 30 * time.Second
	}
	if cfg.Strategy.RoundTripFeePercent == 0 {
		cfg.Strategy.RoundTripFeePercent = 0.2
	}
	if cfg.Strategy.SlippageTolerance == 0 {
		cfg.Strategy.SlippageTolerance = 0.005
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func validate(cfg *Config) error {
	s := cfg.Strategy
	if len(s.Assets) == 0 {
		return errors.New("strategy.assets is required")
	}
	if s.TradeNotionalUSD <= 0 {
		return errors.New("strategy.trade_notional_usd must be > 0")
	}
	if s.TWAPDuration <= 0 {
		return errors.New("strategy.twap_duration must be > 0")
	}
	if s.TWAPIntervals <= 0 {
		return errors.New("strategy.twap_intervals must be > 0")
	}
	if s.StopLossBasisPercent <= 0 {
		return errors.New("strategy.stop_loss_basis_percent must be > 0")
	}
	if s.MinHoldingPeriod < 0 {
		return errors.New("strategy.min_holding_period must be >= 0")
	}
	if s.SlippageTolerance <= 0 {
		return errors.New("strategy.slippage_tolerance must be > 0")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	for asset, seed := range cfg.Paper.Assets {
		if seed.SpotPrice <= 0 || seed.PerpPrice <= 0 {
			return fmt.Errorf("paper.assets.%s prices must be > 0", asset)
		}
	}
	return nil
}
