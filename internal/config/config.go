package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every threshold the risk core enforces. Defaults are
// conservative; all of them can be overridden through the environment.
type Config struct {
	Environment string
	LogLevel    string
	AccountID   string

	Broker struct {
		Name      string
		APIKey    string
		APISecret string
		Category  string
		Testnet   bool
		Demo      bool
	}

	Risk      RiskConfig
	Margin    MarginConfig
	Sizing    SizingConfig
	Stops     StopsConfig
	Trailing  TrailingConfig
	Portfolio PortfolioConfig

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}
}

// RiskConfig drives the risk state controller and account gate.
type RiskConfig struct {
	// Drawdown % thresholds, descending severity.
	DrawdownCritical float64
	DrawdownHigh     float64
	DrawdownModerate float64
	DrawdownLow      float64

	// Margin level % thresholds, descending severity.
	MarginCritical float64
	MarginHigh     float64
	MarginModerate float64
	MarginLow      float64

	// Win-rate below this over the recent window bumps the level one
	// step worse.
	MinWinRate    float64
	WinRateWindow int

	// Daily loss % that forces CRITICAL health.
	DailyLossCritical float64
	DailyLossWarning  float64

	// Fractions of positions closed per emergency severity.
	CloseFractionHigh      float64
	CloseFractionEmergency float64

	// Per-instrument cooldown after a consecutive-loss streak.
	CooldownLosses   int
	CooldownDuration time.Duration

	AccountTTL time.Duration
}

// MarginConfig drives the exposure and margin safety validator.
type MarginConfig struct {
	CallImminentLevel float64 // margin level % below which nothing trades
	MinProjectedLevel float64 // projected margin level floor for new trades
	MinFreeMarginPct  float64 // projected free margin floor, % of equity
	MaxExposurePct    float64 // exposure cap, % of equity
	MaxMarginUsagePct float64 // margin usage cap, % of equity
	EmergencyLevel    float64 // tiered de-risk: 25% cut
	CriticalLevel     float64 // tiered de-risk: 50% cut
	MonitorInterval   time.Duration
}

// SizingConfig drives the position sizing engine.
type SizingConfig struct {
	// Risk % per trade by tier, index 0 = tier 1. Smaller accounts risk
	// a larger percentage so the absolute size stays meaningful.
	TierRiskPercent [5]float64

	// Martingale caps.
	MartingaleEnabled    bool
	MartingaleMultiplier float64
	MaxConsecutiveLosses int
	MaxRiskMultiple      float64

	// Per-tier max volume caps for volatile instruments vs majors.
	TierMaxVolumeMajor    [5]float64
	TierMaxVolumeVolatile [5]float64
}

// StopsConfig drives the protective-level calculator.
type StopsConfig struct {
	ATRPeriod         int
	MAPeriod          int
	BandPeriod        int
	BandDeviation     float64
	SwingLookback     int
	StructureBuffer   float64 // extra distance past a swing extreme, in pips
	FixedDistancePips float64

	MinRiskReward float64
	DefaultRR     float64
	MinProfitPips float64

	// Minimum stop distance in pips per instrument class.
	MinStopPipsMajor float64
	MinStopPipsMetal float64
}

// TrailingConfig is the default trailing behaviour attached to
// positions that have no explicit override.
type TrailingConfig struct {
	Method          string // fixed, atr, ma, highlow, parabolic
	DistancePips    float64
	ActivationPips  float64 // profit required before trailing starts
	ATRPeriod       int
	ATRMultiplier   float64
	MAPeriod        int
	HighLowLookback int
	SARStep         float64
	SARMax          float64
	BufferPips      float64 // fixed buffer behind the computed stop
	ProfitBufferPct float64 // percentage-of-profit buffer
}

// PortfolioConfig drives capital allocation and rebalancing.
type PortfolioConfig struct {
	Method               string // equal, inverse_volatility, sharpe, kelly, custom
	Instruments          []string
	MaxInstrumentRisk    float64 // risk budget cap per instrument, % of equity
	KellyCap             float64
	RebalanceHours       time.Duration
	DriftThresholdPct    float64
	PerformanceShiftPct  float64 // max capital shifted per cycle
	UnderperformReturn   float64 // return below this sheds capital
	OutperformReturn     float64 // return above this attracts capital
	CorrelationLimit     float64
	CorrelationLookback  int
	CorrelationReduction float64 // weight cut on the weaker of a hot pair
	CorrelationTTL       time.Duration
}

// Load reads configuration from the environment with safe defaults.
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AccountID:   getEnv("ACCOUNT_ID", "default"),
	}

	cfg.Broker.Name = getEnv("BROKER_NAME", "bybit")
	cfg.Broker.APIKey = getEnv("BROKER_API_KEY", "")
	cfg.Broker.APISecret = getEnv("BROKER_API_SECRET", "")
	cfg.Broker.Category = getEnv("BROKER_CATEGORY", "linear")
	cfg.Broker.Testnet = getEnvBool("BROKER_TESTNET", true)
	cfg.Broker.Demo = getEnvBool("BROKER_DEMO", false)

	cfg.Risk = RiskConfig{
		DrawdownCritical:       getEnvFloat("RISK_DD_CRITICAL", 15.0),
		DrawdownHigh:           getEnvFloat("RISK_DD_HIGH", 10.0),
		DrawdownModerate:       getEnvFloat("RISK_DD_MODERATE", 5.0),
		DrawdownLow:            getEnvFloat("RISK_DD_LOW", 2.0),
		MarginCritical:         getEnvFloat("RISK_MARGIN_CRITICAL", 100.0),
		MarginHigh:             getEnvFloat("RISK_MARGIN_HIGH", 150.0),
		MarginModerate:         getEnvFloat("RISK_MARGIN_MODERATE", 200.0),
		MarginLow:              getEnvFloat("RISK_MARGIN_LOW", 300.0),
		MinWinRate:             getEnvFloat("RISK_MIN_WINRATE", 35.0),
		WinRateWindow:          getEnvInt("RISK_WINRATE_WINDOW", 20),
		DailyLossCritical:      getEnvFloat("RISK_DAILY_LOSS_CRITICAL", 5.0),
		DailyLossWarning:       getEnvFloat("RISK_DAILY_LOSS_WARNING", 3.0),
		CloseFractionHigh:      getEnvFloat("RISK_CLOSE_FRACTION_HIGH", 0.50),
		CloseFractionEmergency: getEnvFloat("RISK_CLOSE_FRACTION_EMERGENCY", 0.75),
		CooldownLosses:         getEnvInt("RISK_COOLDOWN_LOSSES", 3),
		CooldownDuration:       getEnvDuration("RISK_COOLDOWN", 30*time.Minute),
		AccountTTL:             getEnvDuration("RISK_ACCOUNT_TTL", 60*time.Second),
	}

	cfg.Margin = MarginConfig{
		CallImminentLevel: getEnvFloat("MARGIN_CALL_IMMINENT", 100.0),
		MinProjectedLevel: getEnvFloat("MARGIN_MIN_PROJECTED", 200.0),
		MinFreeMarginPct:  getEnvFloat("MARGIN_MIN_FREE_PCT", 40.0),
		MaxExposurePct:    getEnvFloat("MARGIN_MAX_EXPOSURE_PCT", 30.0),
		MaxMarginUsagePct: getEnvFloat("MARGIN_MAX_USAGE_PCT", 50.0),
		EmergencyLevel:    getEnvFloat("MARGIN_EMERGENCY_LEVEL", 150.0),
		CriticalLevel:     getEnvFloat("MARGIN_CRITICAL_LEVEL", 120.0),
		MonitorInterval:   getEnvDuration("MARGIN_MONITOR_INTERVAL", 30*time.Second),
	}

	cfg.Sizing = SizingConfig{
		TierRiskPercent:       [5]float64{3.0, 2.5, 2.0, 1.5, 1.0},
		MartingaleEnabled:     getEnvBool("SIZING_MARTINGALE", false),
		MartingaleMultiplier:  getEnvFloat("SIZING_MARTINGALE_MULT", 2.0),
		MaxConsecutiveLosses:  getEnvInt("SIZING_MAX_LOSSES", 5),
		MaxRiskMultiple:       getEnvFloat("SIZING_MAX_RISK_MULTIPLE", 4.0),
		TierMaxVolumeMajor:    [5]float64{0.5, 2.0, 5.0, 10.0, 20.0},
		TierMaxVolumeVolatile: [5]float64{0.2, 1.0, 2.0, 5.0, 10.0},
	}

	cfg.Stops = StopsConfig{
		ATRPeriod:         getEnvInt("STOPS_ATR_PERIOD", 14),
		MAPeriod:          getEnvInt("STOPS_MA_PERIOD", 20),
		BandPeriod:        getEnvInt("STOPS_BAND_PERIOD", 20),
		BandDeviation:     getEnvFloat("STOPS_BAND_DEVIATION", 2.0),
		SwingLookback:     getEnvInt("STOPS_SWING_LOOKBACK", 50),
		StructureBuffer:   getEnvFloat("STOPS_STRUCTURE_BUFFER", 3.0),
		FixedDistancePips: getEnvFloat("STOPS_FIXED_PIPS", 30.0),
		MinRiskReward:     getEnvFloat("STOPS_MIN_RR", 1.0),
		DefaultRR:         getEnvFloat("STOPS_DEFAULT_RR", 2.0),
		MinProfitPips:     getEnvFloat("STOPS_MIN_PROFIT_PIPS", 10.0),
		MinStopPipsMajor:  getEnvFloat("STOPS_MIN_PIPS_MAJOR", 10.0),
		MinStopPipsMetal:  getEnvFloat("STOPS_MIN_PIPS_METAL", 50.0),
	}

	cfg.Trailing = TrailingConfig{
		Method:          getEnv("TRAIL_METHOD", "atr"),
		DistancePips:    getEnvFloat("TRAIL_DISTANCE_PIPS", 20.0),
		ActivationPips:  getEnvFloat("TRAIL_ACTIVATION_PIPS", 15.0),
		ATRPeriod:       getEnvInt("TRAIL_ATR_PERIOD", 14),
		ATRMultiplier:   getEnvFloat("TRAIL_ATR_MULT", 2.0),
		MAPeriod:        getEnvInt("TRAIL_MA_PERIOD", 20),
		HighLowLookback: getEnvInt("TRAIL_HIGHLOW_LOOKBACK", 10),
		SARStep:         getEnvFloat("TRAIL_SAR_STEP", 0.02),
		SARMax:          getEnvFloat("TRAIL_SAR_MAX", 0.20),
		BufferPips:      getEnvFloat("TRAIL_BUFFER_PIPS", 2.0),
		ProfitBufferPct: getEnvFloat("TRAIL_PROFIT_BUFFER_PCT", 0.0),
	}

	cfg.Portfolio = PortfolioConfig{
		Method:               getEnv("PORTFOLIO_METHOD", "inverse_volatility"),
		Instruments:          splitList(getEnv("PORTFOLIO_INSTRUMENTS", "EURUSD,GBPUSD,USDJPY,XAUUSD")),
		MaxInstrumentRisk:    getEnvFloat("PORTFOLIO_MAX_INSTRUMENT_RISK", 10.0),
		KellyCap:             getEnvFloat("PORTFOLIO_KELLY_CAP", 0.25),
		RebalanceHours:       getEnvDuration("PORTFOLIO_REBALANCE_INTERVAL", 4*time.Hour),
		DriftThresholdPct:    getEnvFloat("PORTFOLIO_DRIFT_THRESHOLD", 5.0),
		PerformanceShiftPct:  getEnvFloat("PORTFOLIO_PERF_SHIFT_PCT", 10.0),
		UnderperformReturn:   getEnvFloat("PORTFOLIO_UNDERPERFORM_RETURN", 0.0),
		OutperformReturn:     getEnvFloat("PORTFOLIO_OUTPERFORM_RETURN", 2.0),
		CorrelationLimit:     getEnvFloat("PORTFOLIO_CORRELATION_LIMIT", 0.70),
		CorrelationLookback:  getEnvInt("PORTFOLIO_CORRELATION_LOOKBACK", 50),
		CorrelationReduction: getEnvFloat("PORTFOLIO_CORRELATION_REDUCTION", 0.30),
		CorrelationTTL:       getEnvDuration("PORTFOLIO_CORRELATION_TTL", 30*time.Second),
	}

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
