package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	AccountRegisteredTotal prometheus.Counter
	RelaySubmittedTotal    *prometheus.CounterVec
	RelayConfirmDuration   *prometheus.HistogramVec
	NonceIssuedTotal       *prometheus.CounterVec
	SignatureTotal         *prometheus.CounterVec
	VerificationTotal      *prometheus.CounterVec
	PendingTransactions    prometheus.Gauge
}

// Global Metrics Instance
// 未调用 InitBusinessMetrics 时为 nil，下面的辅助函数会直接跳过
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		AccountRegisteredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "station_account_registered_total",
			Help: "The total number of machine smart accounts registered",
		}),
		RelaySubmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "station_relay_submitted_total",
			Help: "Relay submissions by action kind and outcome",
		}, []string{"kind", "outcome"}),
		RelayConfirmDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "station_relay_confirm_duration_seconds",
			Help:    "Time from broadcast to receipt",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"kind"}),
		NonceIssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "station_nonce_issued_total",
			Help: "Nonces issued per domain type",
		}, []string{"domain"}),
		SignatureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "station_signature_total",
			Help: "Signatures produced by the service per role",
		}, []string{"role"}),
		VerificationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "station_verification_total",
			Help: "Signature and document verifications by outcome",
		}, []string{"target", "outcome"}),
		PendingTransactions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "station_pending_transactions",
			Help: "Transactions broadcast but not yet confirmed",
		}),
	}
}

func ObserveRelay(kind, outcome string, elapsed time.Duration) {
	if Business == nil {
		return
	}
	Business.RelaySubmittedTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "confirmed" || outcome == "reverted" {
		Business.RelayConfirmDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

func IncNonce(domain string) {
	if Business == nil {
		return
	}
	Business.NonceIssuedTotal.WithLabelValues(domain).Inc()
}

func IncSignature(role string) {
	if Business == nil {
		return
	}
	Business.SignatureTotal.WithLabelValues(role).Inc()
}

func IncVerification(target, outcome string) {
	if Business == nil {
		return
	}
	Business.VerificationTotal.WithLabelValues(target, outcome).Inc()
}

func IncAccountRegistered() {
	if Business == nil {
		return
	}
	Business.AccountRegisteredTotal.Inc()
}

func SetPending(n int) {
	if Business == nil {
		return
	}
	Business.PendingTransactions.Set(float64(n))
}
