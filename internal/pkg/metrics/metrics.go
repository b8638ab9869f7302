package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 予約結果のラベル値
const (
	OutcomeAdmitted     = "admitted"
	OutcomeInsufficient = "insufficient_capacity"
	OutcomeInvalid      = "invalid_request"
	OutcomeNotFound     = "not_found"
	OutcomeForbidden    = "forbidden"
	OutcomeBusy         = "busy"
	OutcomeError        = "error"
	OutcomeCancelled    = "cancelled"
	OutcomeNoop         = "already_cancelled"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約の試行回数（outcome）
	ReservationsTotal *prometheus.CounterVec

	// 予約が成立した座席数の累計
	ReservedSeatsTotal prometheus.Counter

	// キャンセルの試行回数（outcome）
	CancellationsTotal *prometheus.CounterVec

	// 便ロックの待ち時間（status: acquired/failed）
	TripLockWait *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation attempts by outcome",
			},
			[]string{"outcome"},
		),
		ReservedSeatsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reserved_seats_total",
				Help: "Total number of seats granted by admitted reservations",
			},
		),
		CancellationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cancellations_total",
				Help: "Total number of cancellation attempts by outcome",
			},
			[]string{"outcome"},
		),
		TripLockWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trip_lock_wait_seconds",
				Help:    "Time spent waiting for a trip-scoped lock",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.ReservedSeatsTotal,
		m.CancellationsTotal,
		m.TripLockWait,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
