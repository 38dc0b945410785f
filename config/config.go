package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the single validated configuration struct for the scoring and
// ranking engine. It is built once at startup and passed by value into each
// component. Every weight, penalty and threshold used by the engines is a
// named field with a stated default; invalid or missing overrides fall back
// to the default.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Quality     QualityConfig     `yaml:"quality"`
	Conflict    ConflictConfig    `yaml:"conflict"`
	Justify     JustifyConfig     `yaml:"justify"`
	Futures     FuturesConfig     `yaml:"futures"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Ranker      RankerConfig      `yaml:"ranker"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level   string `yaml:"level" default:"info"`
	Console bool   `yaml:"console" default:"false"` // human-readable console writer instead of JSON
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `yaml:"host" default:"0.0.0.0"`
	Port            int    `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	AllowedOrigins  string `yaml:"allowed_origins" default:"*"`
	ReadTimeout     int    `yaml:"read_timeout" default:"30"`  // seconds
	WriteTimeout    int    `yaml:"write_timeout" default:"30"` // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout" default:"10"`
}

// RedisConfig holds the optional Redis backend for the correlation store
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" default:"false"`
	Address  string `yaml:"address" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

// QualityConfig holds the indicator quality scorer tunables. The point
// maxima are the per-check sub-ranges; CoverageDenominator is the coverage
// fraction denominator.
type QualityConfig struct {
	CoverageDenominator int `yaml:"coverage_denominator" default:"20" validate:"gt=0"`

	RSIMax       float64 `yaml:"rsi_max" default:"18" validate:"gte=0"`
	MACDMax      float64 `yaml:"macd_max" default:"20" validate:"gte=0"`
	BBWidthMax   float64 `yaml:"bb_width_max" default:"15" validate:"gte=0"`
	EMAMax       float64 `yaml:"ema_max" default:"15" validate:"gte=0"`
	ADXMax       float64 `yaml:"adx_max" default:"15" validate:"gte=0"`
	AroonMax     float64 `yaml:"aroon_max" default:"10" validate:"gte=0"`
	TrendMax     float64 `yaml:"trend_max" default:"15" validate:"gte=0"`
	VolumeMax    float64 `yaml:"volume_max" default:"10" validate:"gte=0"`
	OrderBookMax float64 `yaml:"order_book_max" default:"10" validate:"gte=0"`
	SRMax        float64 `yaml:"sr_max" default:"10" validate:"gte=0"`
	FibMax       float64 `yaml:"fib_max" default:"15" validate:"gte=0"`
	FuturesMax   float64 `yaml:"futures_max" default:"20" validate:"gte=0"`

	DivergenceBonus float64 `yaml:"divergence_bonus" default:"5" validate:"gte=0"`
	CVDBonus        float64 `yaml:"cvd_bonus" default:"3" validate:"gte=0"`
	NetDeltaBonus   float64 `yaml:"net_delta_bonus" default:"2" validate:"gte=0"`

	// Multiplicative cut applied when an influence adjuster reports major
	// mismatches (0.5 halves the score).
	InfluenceMismatchCut float64 `yaml:"influence_mismatch_cut" default:"0.5" validate:"gt=0,lte=1"`

	FibProximityPct float64 `yaml:"fib_proximity_pct" default:"1.0" validate:"gt=0"`
}

// ConflictConfig holds the six structural conflict rule magnitudes and
// their trigger thresholds
type ConflictConfig struct {
	TrendStructurePenalty  float64 `yaml:"trend_structure_penalty" default:"40" validate:"gte=0"`
	VolumeInvalidPenalty   float64 `yaml:"volume_invalid_penalty" default:"25" validate:"gte=0"`
	DeltaMACDPenalty       float64 `yaml:"delta_macd_penalty" default:"20" validate:"gte=0"`
	ChoppyADXPenalty       float64 `yaml:"choppy_adx_penalty" default:"20" validate:"gte=0"`
	SidewaysPenalty        float64 `yaml:"sideways_penalty" default:"15" validate:"gte=0"`
	LiquidationNearPenalty float64 `yaml:"liquidation_near_penalty" default:"25" validate:"gte=0"`
	LiquidationWarnPenalty float64 `yaml:"liquidation_warn_penalty" default:"15" validate:"gte=0"`
	NeutralMomentumPenalty float64 `yaml:"neutral_momentum_penalty" default:"10" validate:"gte=0"`
	BTCCoupledPenalty      float64 `yaml:"btc_coupled_penalty" default:"20" validate:"gte=0"`
	ShockRegimePenalty     float64 `yaml:"shock_regime_penalty" default:"25" validate:"gte=0"`

	ADXChoppyMax       float64 `yaml:"adx_choppy_max" default:"20"`
	BBWidthSidewaysMax float64 `yaml:"bb_width_sideways_max" default:"1.0"`
	LiquidationNearPct float64 `yaml:"liquidation_near_pct" default:"2.0"`
	LiquidationWarnPct float64 `yaml:"liquidation_warn_pct" default:"3.5"`
	BTCCorrThreshold   float64 `yaml:"btc_corr_threshold" default:"0.6"`
	ShockWidthPct      float64 `yaml:"shock_width_pct" default:"8.0"`
	FlatHistogramEps   float64 `yaml:"flat_histogram_eps" default:"0.001"`
}

// JustifyConfig holds the evidence ledger weights and modulation factors.
// Weights are fixed positive constants; regime and volatility modulation is
// applied on top before accumulation.
type JustifyConfig struct {
	MACDHistWeight    float64 `yaml:"macd_hist_weight" default:"2.0" validate:"gt=0"`
	MACDCrossWeight   float64 `yaml:"macd_cross_weight" default:"1.5" validate:"gt=0"`
	PriceEMA8Weight   float64 `yaml:"price_ema8_weight" default:"1.2" validate:"gt=0"`
	PriceEMA20Weight  float64 `yaml:"price_ema20_weight" default:"1.0" validate:"gt=0"`
	PriceVWAPWeight   float64 `yaml:"price_vwap_weight" default:"1.1" validate:"gt=0"`
	PriceBBMidWeight  float64 `yaml:"price_bb_mid_weight" default:"0.9" validate:"gt=0"`
	EMAStackWeight    float64 `yaml:"ema_stack_weight" default:"1.8" validate:"gt=0"`
	ADXTrendWeight    float64 `yaml:"adx_trend_weight" default:"1.5" validate:"gt=0"`
	DIDominanceWeight float64 `yaml:"di_dominance_weight" default:"1.3" validate:"gt=0"`
	DualOBOSWeight    float64 `yaml:"dual_obos_weight" default:"1.6" validate:"gt=0"`
	TripleOBOSWeight  float64 `yaml:"triple_obos_weight" default:"2.0" validate:"gt=0"`
	AroonEMAWeight    float64 `yaml:"aroon_ema_weight" default:"1.4" validate:"gt=0"`
	MACDDivWeight     float64 `yaml:"macd_div_weight" default:"1.4" validate:"gt=0"`
	RSIDivWeight      float64 `yaml:"rsi_div_weight" default:"1.4" validate:"gt=0"`
	VolumeDivWeight   float64 `yaml:"volume_div_weight" default:"1.2" validate:"gt=0"`
	OBVDivWeight      float64 `yaml:"obv_div_weight" default:"1.2" validate:"gt=0"`
	SRProximityWeight float64 `yaml:"sr_proximity_weight" default:"1.3" validate:"gt=0"`
	FundingWeight     float64 `yaml:"funding_weight" default:"1.0" validate:"gt=0"`

	// Context modulation
	TrendingBoost  float64 `yaml:"trending_boost" default:"1.3" validate:"gt=0"`
	OscillatorDamp float64 `yaml:"oscillator_damp" default:"0.7" validate:"gt=0"`
	DivergenceDamp float64 `yaml:"divergence_damp" default:"0.8" validate:"gt=0"`

	// Conflict severity factors. The Aroon/EMA special case reuses the
	// critical factor at MEDIUM severity.
	CriticalFactor float64 `yaml:"critical_factor" default:"0.70" validate:"gt=0,lte=1"`
	HighFactor     float64 `yaml:"high_factor" default:"0.85" validate:"gt=0,lte=1"`
	MediumFactor   float64 `yaml:"medium_factor" default:"0.95" validate:"gt=0,lte=1"`

	CriticalAt float64 `yaml:"critical_at" default:"6.0" validate:"gt=0"`
	HighAt     float64 `yaml:"high_at" default:"4.0" validate:"gt=0"`
	MediumAt   float64 `yaml:"medium_at" default:"2.0" validate:"gt=0"`

	RedundancyDiscount float64 `yaml:"redundancy_discount" default:"0.1" validate:"gte=0"`

	SRProximityPct     float64 `yaml:"sr_proximity_pct" default:"1.0" validate:"gt=0"`
	FundingExtreme     float64 `yaml:"funding_extreme" default:"0.001" validate:"gt=0"`
	OverboughtRSI      float64 `yaml:"overbought_rsi" default:"70"`
	OversoldRSI        float64 `yaml:"oversold_rsi" default:"30"`
	OverboughtStoch    float64 `yaml:"overbought_stoch" default:"80"`
	OversoldStoch      float64 `yaml:"oversold_stoch" default:"20"`
	OverboughtWilliams float64 `yaml:"overbought_williams" default:"-20"`
	OversoldWilliams   float64 `yaml:"oversold_williams" default:"-80"`
}

// FuturesConfig holds the multi-timeframe futures aligner tunables
type FuturesConfig struct {
	Timeframes         []string `yaml:"timeframes" default:"[\"5m\",\"15m\",\"1h\",\"4h\",\"1d\"]"`
	ExtremeFundingHigh float64  `yaml:"extreme_funding_high" default:"0.001"`
	ExtremeFundingLow  float64  `yaml:"extreme_funding_low" default:"-0.001"`
	MeanReversionBand  float64  `yaml:"mean_reversion_band" default:"0.0003" validate:"gte=0"`
	NeutralPenalty     float64  `yaml:"neutral_penalty" default:"30" validate:"gte=0"`
}

// CorrelationConfig holds the BTC correlation engine tunables
type CorrelationConfig struct {
	BTCPriceTTL  time.Duration `yaml:"btc_price_ttl" default:"30s"`
	RecordTTL    time.Duration `yaml:"record_ttl" default:"5m"`
	MinSamples   int           `yaml:"min_samples" default:"24" validate:"gt=1"`
	StrongAt     float64       `yaml:"strong_at" default:"0.7"`
	ModerateAt   float64       `yaml:"moderate_at" default:"0.4"`
	ImpactFactor float64       `yaml:"impact_factor" default:"1.5" validate:"gt=0"`
	ImpactMin    float64       `yaml:"impact_min" default:"0.1" validate:"gt=0"`
	ImpactMax    float64       `yaml:"impact_max" default:"3.0" validate:"gt=0"`
}

// RankerConfig holds the asset ranker gates, composite weights, contextual
// adjustments and aggressive score blend
type RankerConfig struct {
	WorkerCount int `yaml:"worker_count" default:"8" validate:"gt=0"`
	TopN        int `yaml:"top_n" default:"0" validate:"gte=0"` // 0 = unlimited

	// Gates
	PoorCoverageMinPct float64 `yaml:"poor_coverage_min_pct" default:"70" validate:"gte=0,lte=100"`
	BTCMoveCapPct      float64 `yaml:"btc_move_cap_pct" default:"0.8" validate:"gt=0"`

	// Composite weights
	QualityWeight  float64 `yaml:"quality_weight" default:"0.35" validate:"gte=0"`
	CoverageWeight float64 `yaml:"coverage_weight" default:"0.15" validate:"gte=0"`
	MomentumWeight float64 `yaml:"momentum_weight" default:"0.25" validate:"gte=0"`
	TrendWeight    float64 `yaml:"trend_weight" default:"0.20" validate:"gte=0"`
	ExternalWeight float64 `yaml:"external_weight" default:"0.05" validate:"gte=0"`

	QualityNormCap   float64 `yaml:"quality_norm_cap" default:"200" validate:"gt=0"`
	MomentumClampPct float64 `yaml:"momentum_clamp_pct" default:"5" validate:"gt=0"`

	// Sequential contextual adjustments
	TrendMomentumPenalty  float64 `yaml:"trend_momentum_penalty" default:"0.10" validate:"gte=0"`
	NotAlignedCap         float64 `yaml:"not_aligned_cap" default:"0.60" validate:"gt=0,lte=1"`
	H4MisalignedPenalty   float64 `yaml:"h4_misaligned_penalty" default:"0.05" validate:"gte=0"`
	H1MisalignedPenalty   float64 `yaml:"h1_misaligned_penalty" default:"0.03" validate:"gte=0"`
	ChoppyPenalty         float64 `yaml:"choppy_penalty" default:"0.10" validate:"gte=0"`
	VolumeMomentumPenalty float64 `yaml:"volume_momentum_penalty" default:"0.05" validate:"gte=0"`
	MomentumTrendReward   float64 `yaml:"momentum_trend_reward" default:"0.05" validate:"gte=0"`
	AlignmentReward       float64 `yaml:"alignment_reward" default:"0.04" validate:"gte=0"`
	VolumeConfirmReward   float64 `yaml:"volume_confirm_reward" default:"0.03" validate:"gte=0"`

	ChoppyATRMax float64 `yaml:"choppy_atr_max" default:"1.0"`
	ChoppyADXMax float64 `yaml:"choppy_adx_max" default:"20"`

	// Aggressive score blend
	AggressiveScoreWeight      float64 `yaml:"aggressive_score_weight" default:"0.25" validate:"gte=0"`
	AggressiveCompositeWeight  float64 `yaml:"aggressive_composite_weight" default:"0.25" validate:"gte=0"`
	AggressiveConfidenceWeight float64 `yaml:"aggressive_confidence_weight" default:"0.20" validate:"gte=0"`
	AggressiveMomentumWeight   float64 `yaml:"aggressive_momentum_weight" default:"0.30" validate:"gte=0"`
	MomentumScale              float64 `yaml:"momentum_scale" default:"15" validate:"gt=0"`
	AggressiveDenominator      float64 `yaml:"aggressive_denominator" default:"120" validate:"gt=0"`
}

// Load builds the configuration: struct defaults first, then an optional
// YAML file, then environment overrides, then validation. A missing file is
// not an error; a malformed file or invalid values are.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Non-numeric values in numeric variables are ignored and the existing
// value is kept.
func applyEnvOverrides(cfg *Config) {
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Console = getEnvOrDefault("LOG_CONSOLE", boolString(cfg.Logging.Console)) == "true"

	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Quality.CoverageDenominator = getEnvIntOrDefault("QUALITY_COVERAGE_DENOMINATOR", cfg.Quality.CoverageDenominator)
	cfg.Ranker.PoorCoverageMinPct = getEnvFloatOrDefault("RANKER_POOR_COVERAGE_MIN_PCT", cfg.Ranker.PoorCoverageMinPct)
	cfg.Ranker.BTCMoveCapPct = getEnvFloatOrDefault("RANKER_BTC_MOVE_CAP_PCT", cfg.Ranker.BTCMoveCapPct)
	cfg.Ranker.WorkerCount = getEnvIntOrDefault("RANKER_WORKER_COUNT", cfg.Ranker.WorkerCount)
	cfg.Ranker.TopN = getEnvIntOrDefault("RANKER_TOP_N", cfg.Ranker.TopN)
	cfg.Correlation.MinSamples = getEnvIntOrDefault("CORRELATION_MIN_SAMPLES", cfg.Correlation.MinSamples)
	cfg.Correlation.BTCPriceTTL = getEnvDurationOrDefault("CORRELATION_BTC_PRICE_TTL", cfg.Correlation.BTCPriceTTL)
	cfg.Correlation.RecordTTL = getEnvDurationOrDefault("CORRELATION_RECORD_TTL", cfg.Correlation.RecordTTL)
}

// WriteSample writes a fully-populated sample configuration file with the
// default values
func WriteSample(path string) error {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
