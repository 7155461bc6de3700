package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "player_wallet"

// Metrics 每个实例使用独立的 Registry，测试之间互不干扰。
// 所有方法对 nil 接收者安全。
type Metrics struct {
	registry *prometheus.Registry

	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	transactionRetries  prometheus.Counter
	outboxPublished     *prometheus.CounterVec
	resetTokensDeleted  prometheus.Counter
	loginAttemptsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "transactions_total",
				Help:      "Wallet transactions partitioned by type and result.",
			},
			[]string{"type", "result"},
		),
		transactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "transaction_duration_seconds",
				Help:      "End-to-end latency of processTransaction including retries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		transactionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "transaction_retries_total",
				Help:      "Attempts retried after a conflict.",
			},
		),
		outboxPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "published_total",
				Help:      "Outbox deliveries partitioned by result.",
			},
			[]string{"result"},
		),
		resetTokensDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "reset_tokens_deleted_total",
				Help:      "Expired password reset tokens removed by the cleanup job.",
			},
		),
		loginAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "login_attempts_total",
				Help:      "Login attempts partitioned by method and result.",
			},
			[]string{"method", "result"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransaction result 为 ok / insufficient_funds / limit_exceeded / not_found / conflict / timeout / error 之一
func (m *Metrics) ObserveTransaction(txType, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(txType, result).Inc()
	m.transactionDuration.WithLabelValues(txType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.transactionRetries.Inc()
}

func (m *Metrics) ObserveOutboxPublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.outboxPublished.WithLabelValues("error").Inc()
		return
	}
	m.outboxPublished.WithLabelValues("success").Inc()
}

func (m *Metrics) ObserveResetCleanup(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.resetTokensDeleted.Add(float64(deleted))
}

func (m *Metrics) ObserveLogin(method, result string) {
	if m == nil {
		return
	}
	m.loginAttemptsTotal.WithLabelValues(method, result).Inc()
}
