package metrics

import (
	"net/http"

	"github.com/dnldd/tradeflow/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// namespace prefixes every metric name.
	namespace = "tradeflow"

	// Cycle outcomes.
	CycleOK       = "ok"
	CycleFailed   = "failed"
	CyclePanicked = "panicked"
	CycleNoData   = "no_data"
)

// Recorder records pipeline metrics on its own prometheus registry.
type Recorder struct {
	registry       *prometheus.Registry
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	fetchAttempts  *prometheus.CounterVec
	fetchFallbacks prometheus.Counter
	storedCandles  prometheus.Counter
	partitions     prometheus.Counter
	trades         *prometheus.CounterVec
	sessionGain    prometheus.Gauge
	state          prometheus.Gauge
}

// New creates a new prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of pipeline cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of pipeline cycles in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of candle fetch attempts by result",
			},
			[]string{"result"},
		),
		fetchFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_fallbacks_total",
				Help:      "Total number of zeroed fallback candles produced",
			},
		),
		storedCandles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stored_candles_total",
				Help:      "Total number of candles appended to the store",
			},
		),
		partitions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "partitions_ensured_total",
				Help:      "Total number of partition creations requested",
			},
		),
		trades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Total number of completed trades by entry and exit",
			},
			[]string{"entry", "exit"},
		),
		sessionGain: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_gain",
				Help:      "Cumulative gain of the open trade",
			},
		),
		state: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trading_state",
				Help:      "Trading state (0 idle, 1 awaiting confirmation, 2 in trade)",
			},
		),
	}
}

// RecordCycle records a completed cycle and its duration.
func (r *Recorder) RecordCycle(outcome string, seconds float64) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(seconds)
}

// RecordFetchAttempt records the result of a candle fetch attempt.
func (r *Recorder) RecordFetchAttempt(success bool) {
	result := "error"
	if success {
		result = "success"
	}
	r.fetchAttempts.WithLabelValues(result).Inc()
}

// RecordFallback records a zeroed fallback candle.
func (r *Recorder) RecordFallback() {
	r.fetchFallbacks.Inc()
}

// RecordStoredCandles records candles appended to the store.
func (r *Recorder) RecordStoredCandles(count int) {
	r.storedCandles.Add(float64(count))
}

// RecordPartition records a partition creation request.
func (r *Recorder) RecordPartition() {
	r.partitions.Inc()
}

// RecordTrade records a completed trade.
func (r *Recorder) RecordTrade(trade *shared.TradeRecord) {
	r.trades.WithLabelValues(string(trade.Entry), string(trade.Exit)).Inc()
}

// RecordSession records the trading session state.
func (r *Recorder) RecordSession(session shared.Session) {
	r.state.Set(float64(session.State))
	r.sessionGain.Set(session.SessionGain)
}

// Handler returns the http handler exposing the recorded metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
