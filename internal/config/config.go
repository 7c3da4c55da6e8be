package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Patterns    PatternConfig   `mapstructure:"patterns"`
	Backtest    BacktestConfig  `mapstructure:"backtest"`
	CacheTTL    CacheTTLConfig  `mapstructure:"cache_ttl"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// AnalysisConfig holds the decision-synthesis weights and thresholds.
type AnalysisConfig struct {
	// Weights per dimension. Each in [0,1]; the sum must be <= 1, the
	// remainder is reserved for the regime/risk adjustment.
	FundamentalWeight float64 `mapstructure:"fundamental_weight"`
	TechnicalWeight   float64 `mapstructure:"technical_weight"`
	SentimentWeight   float64 `mapstructure:"sentiment_weight"`
	ManagementWeight  float64 `mapstructure:"management_weight"`
	RegimeWeight      float64 `mapstructure:"regime_weight"`

	StrongBuyThreshold float64 `mapstructure:"strong_buy_threshold"`
	BuyThreshold       float64 `mapstructure:"buy_threshold"`
	SellThreshold      float64 `mapstructure:"sell_threshold"`

	WeakFundamentalsFloor      float64 `mapstructure:"weak_fundamentals_floor"`
	WeakFundamentalsMultiplier float64 `mapstructure:"weak_fundamentals_multiplier"`
	HighRiskPenalty            float64 `mapstructure:"high_risk_penalty"`

	// LLM synthesis triggers and decision-cache matching.
	BorderlineLow       float64 `mapstructure:"borderline_low"`
	BorderlineHigh      float64 `mapstructure:"borderline_high"`
	CacheSimilarity     float64 `mapstructure:"cache_similarity"`
	DisagreementGap     float64 `mapstructure:"disagreement_gap"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
}

// PatternConfig parametrizes the pattern detector and historical validator.
type PatternConfig struct {
	Lookback              int     `mapstructure:"lookback"`
	HandleBars            int     `mapstructure:"handle_bars"`
	MinConfidence         float64 `mapstructure:"min_confidence"`
	PrimaryConfidence     float64 `mapstructure:"primary_confidence"`
	ScanStride            int     `mapstructure:"scan_stride"`
	MinOccurrences        int     `mapstructure:"min_occurrences"`
	AggressiveThreshold   float64 `mapstructure:"aggressive_threshold"`
	ConservativeThreshold float64 `mapstructure:"conservative_threshold"`
	StopLossPct           float64 `mapstructure:"stop_loss_pct"`
	MinRiskReward         float64 `mapstructure:"min_risk_reward"`
}

// BacktestConfig parametrizes the historical replayer.
type BacktestConfig struct {
	MinHistoryBars int     `mapstructure:"min_history_bars"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	MaxPositions   int     `mapstructure:"max_positions"`
	MaxDrawdownPct float64 `mapstructure:"max_drawdown_pct"`
	StopLossPct    float64 `mapstructure:"stop_loss_pct"`
}

// CacheTTLConfig sets per-domain cache lifetimes.
type CacheTTLConfig struct {
	Fundamentals string `mapstructure:"fundamentals"`
	Validation   string `mapstructure:"validation"`
	Decisions    string `mapstructure:"decisions"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the startup invariants. A malformed weight set is fatal:
// refusing to start beats silently producing nonsensical scores.
func (c *Config) Validate() error {
	a := c.Analysis
	for name, w := range map[string]float64{
		"fundamental_weight": a.FundamentalWeight,
		"technical_weight":   a.TechnicalWeight,
		"sentiment_weight":   a.SentimentWeight,
		"management_weight":  a.ManagementWeight,
		"regime_weight":      a.RegimeWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("analysis.%s must be in [0,1], got %v", name, w)
		}
	}
	sum := a.FundamentalWeight + a.TechnicalWeight + a.SentimentWeight + a.ManagementWeight
	if sum <= 0 || sum > 1 {
		return fmt.Errorf("analysis dimension weights must sum to (0,1], got %v", sum)
	}
	if !(a.SellThreshold < a.BuyThreshold && a.BuyThreshold < a.StrongBuyThreshold) {
		return fmt.Errorf("analysis thresholds must be ordered sell < buy < strong_buy, got %v/%v/%v",
			a.SellThreshold, a.BuyThreshold, a.StrongBuyThreshold)
	}
	if a.BorderlineLow >= a.BorderlineHigh {
		return fmt.Errorf("analysis.borderline_low must be below borderline_high")
	}

	p := c.Patterns
	if p.MinConfidence <= 0 || p.MinConfidence >= 100 {
		return fmt.Errorf("patterns.min_confidence must be in (0,100), got %v", p.MinConfidence)
	}
	if p.Lookback < 2*p.HandleBars {
		return fmt.Errorf("patterns.lookback (%d) must be at least twice handle_bars (%d)", p.Lookback, p.HandleBars)
	}
	if p.ScanStride <= 0 {
		return fmt.Errorf("patterns.scan_stride must be positive, got %d", p.ScanStride)
	}
	for name, t := range map[string]float64{
		"aggressive_threshold":   p.AggressiveThreshold,
		"conservative_threshold": p.ConservativeThreshold,
	} {
		if t <= 0 || t > 1 {
			return fmt.Errorf("patterns.%s must be in (0,1], got %v", name, t)
		}
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("patterns.stop_loss_pct must be in (0,1), got %v", p.StopLossPct)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "equityresearch")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)

	viper.SetDefault("analysis.fundamental_weight", 0.25)
	viper.SetDefault("analysis.technical_weight", 0.20)
	viper.SetDefault("analysis.sentiment_weight", 0.20)
	viper.SetDefault("analysis.management_weight", 0.15)
	viper.SetDefault("analysis.regime_weight", 0.10)
	viper.SetDefault("analysis.strong_buy_threshold", 85.0)
	viper.SetDefault("analysis.buy_threshold", 70.0)
	viper.SetDefault("analysis.sell_threshold", 40.0)
	viper.SetDefault("analysis.weak_fundamentals_floor", 30.0)
	viper.SetDefault("analysis.weak_fundamentals_multiplier", 0.8)
	viper.SetDefault("analysis.high_risk_penalty", 5.0)
	viper.SetDefault("analysis.borderline_low", 40.0)
	viper.SetDefault("analysis.borderline_high", 70.0)
	viper.SetDefault("analysis.cache_similarity", 0.85)
	viper.SetDefault("analysis.disagreement_gap", 40.0)
	viper.SetDefault("analysis.max_position_fraction", 0.05)

	viper.SetDefault("patterns.lookback", 90)
	viper.SetDefault("patterns.handle_bars", 20)
	viper.SetDefault("patterns.min_confidence", 60.0)
	viper.SetDefault("patterns.primary_confidence", 65.0)
	viper.SetDefault("patterns.scan_stride", 5)
	viper.SetDefault("patterns.min_occurrences", 3)
	viper.SetDefault("patterns.aggressive_threshold", 0.70)
	viper.SetDefault("patterns.conservative_threshold", 0.55)
	viper.SetDefault("patterns.stop_loss_pct", 0.02)
	viper.SetDefault("patterns.min_risk_reward", 2.0)

	viper.SetDefault("backtest.min_history_bars", 1250)
	viper.SetDefault("backtest.initial_capital", 1000000.0)
	viper.SetDefault("backtest.max_positions", 10)
	viper.SetDefault("backtest.max_drawdown_pct", 20.0)
	viper.SetDefault("backtest.stop_loss_pct", 0.02)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.otlp_endpoint", "")

	viper.SetDefault("cache_ttl.fundamentals", "168h")
	viper.SetDefault("cache_ttl.validation", "2160h")
	viper.SetDefault("cache_ttl.decisions", "24h")
}

// Default returns a fully-populated configuration without touching the
// environment or any config file. Tests and the replayer use it.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server:      ServerConfig{Port: 8080},
		Analysis: AnalysisConfig{
			FundamentalWeight:          0.25,
			TechnicalWeight:            0.20,
			SentimentWeight:            0.20,
			ManagementWeight:           0.15,
			RegimeWeight:               0.10,
			StrongBuyThreshold:         85,
			BuyThreshold:               70,
			SellThreshold:              40,
			WeakFundamentalsFloor:      30,
			WeakFundamentalsMultiplier: 0.8,
			HighRiskPenalty:            5,
			BorderlineLow:              40,
			BorderlineHigh:             70,
			CacheSimilarity:            0.85,
			DisagreementGap:            40,
			MaxPositionFraction:        0.05,
		},
		Patterns: PatternConfig{
			Lookback:              90,
			HandleBars:            20,
			MinConfidence:         60,
			PrimaryConfidence:     65,
			ScanStride:            5,
			MinOccurrences:        3,
			AggressiveThreshold:   0.70,
			ConservativeThreshold: 0.55,
			StopLossPct:           0.02,
			MinRiskReward:         2.0,
		},
		Backtest: BacktestConfig{
			MinHistoryBars: 1250,
			InitialCapital: 1000000,
			MaxPositions:   10,
			MaxDrawdownPct: 20,
			StopLossPct:    0.02,
		},
		Telemetry: TelemetryConfig{Enabled: true},
		CacheTTL: CacheTTLConfig{
			Fundamentals: "168h",
			Validation:   "2160h",
			Decisions:    "24h",
		},
	}
}
