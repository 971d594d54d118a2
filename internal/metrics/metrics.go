package metrics

import (
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 账本事件计数
	LedgerEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_event_count",
			Help: "Total number of ledger events by kind",
		},
		[]string{"kind"},
	)

	// 完成募集的项目数
	PoolFinalizedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_finalized_count",
			Help: "Total number of funding pools that crossed their threshold",
		},
	)

	// 账本守恒检查发现的问题数
	AuditViolations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_audit_violations",
			Help: "Number of conservation violations found by the last audit",
		},
	)

	// 待写入数据库的事件数
	JournalPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "journal_pending_events",
			Help: "Ledger events waiting to be persisted",
		},
	)

	// 链上充值计数
	DepositCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_count",
			Help: "Total number of on-chain deposits processed",
		},
		[]string{"status"}, // status: credited, duplicate, failed
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// Sink 把账本事件计入指标，实现 logic.EventSink
type Sink struct{}

func (Sink) Publish(events ...model.LedgerEvent) {
	for _, e := range events {
		LedgerEventCount.WithLabelValues(string(e.Kind)).Inc()
		if e.Kind == model.EventPoolFinalized {
			PoolFinalizedCount.Inc()
		}
	}
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementDeposit 增加充值计数
func IncrementDeposit(status string) {
	DepositCount.WithLabelValues(status).Inc()
}
