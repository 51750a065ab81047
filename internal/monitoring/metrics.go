package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Account metrics
	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_core_account_equity",
			Help: "Current account equity",
		},
	)

	marginLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_core_margin_level_percent",
			Help: "Current margin level, equity over used margin",
		},
	)

	drawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_core_drawdown_percent",
			Help: "Equity drawdown from the session peak",
		},
	)

	// Risk state metrics
	riskLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_core_risk_level",
			Help: "Current risk level, 0=CRITICAL through 4=OPTIMAL",
		},
	)

	emergencyStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "risk_core_emergency_stops_total",
			Help: "Total number of emergency stop activations",
		},
	)

	// Validation metrics
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_core_validations_total",
			Help: "Total number of pre-trade validations",
		},
		[]string{"symbol", "result"},
	)

	denialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_core_denials_total",
			Help: "Total number of denials by failing check",
		},
		[]string{"check"},
	)

	// Position management metrics
	stopMovesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_core_stop_moves_total",
			Help: "Total number of trailing stop advances",
		},
		[]string{"symbol"},
	)

	forcedClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_core_forced_closes_total",
			Help: "Total number of positions force-closed by de-risking",
		},
		[]string{"band"},
	)

	positionVolume = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_core_position_volume_lots",
			Help: "Open volume per instrument in lots",
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_core_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(marginLevel)
	prometheus.MustRegister(drawdown)
	prometheus.MustRegister(riskLevel)
	prometheus.MustRegister(emergencyStops)
	prometheus.MustRegister(validationsTotal)
	prometheus.MustRegister(denialsTotal)
	prometheus.MustRegister(stopMovesTotal)
	prometheus.MustRegister(forcedClosesTotal)
	prometheus.MustRegister(positionVolume)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// UpdateAccount updates the account gauges from a fresh snapshot.
func UpdateAccount(equity, marginLevelPct, drawdownPct float64) {
	accountEquity.Set(equity)
	marginLevel.Set(marginLevelPct)
	drawdown.Set(drawdownPct)
}

// UpdateRiskLevel updates the risk level gauge.
func UpdateRiskLevel(level int) {
	riskLevel.Set(float64(level))
}

// RecordEmergencyStop counts an emergency stop activation.
func RecordEmergencyStop() {
	emergencyStops.Inc()
}

// RecordValidation counts a pre-trade validation outcome.
func RecordValidation(symbol string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	validationsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordDenial counts a denial by the check that fired.
func RecordDenial(check string) {
	denialsTotal.WithLabelValues(check).Inc()
}

// RecordStopMove counts a trailing stop advance.
func RecordStopMove(symbol string) {
	stopMovesTotal.WithLabelValues(symbol).Inc()
}

// RecordForcedClose counts a de-risking close by severity band.
func RecordForcedClose(band string) {
	forcedClosesTotal.WithLabelValues(band).Inc()
}

// UpdatePositionVolume updates the open volume gauge for an instrument.
func UpdatePositionVolume(symbol string, lots float64) {
	positionVolume.WithLabelValues(symbol).Set(lots)
}

// RecordError counts an error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
