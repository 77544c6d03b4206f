package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 解码流水线计数器，方法对 nil 接收者安全（未启用 metrics 时直接传 nil）
type Metrics struct {
	txProcessed     prometheus.Counter
	txRejected      prometheus.Counter
	instructions    *prometheus.CounterVec
	eventsDecoded   prometheus.Counter
	logScanFailures prometheus.Counter
	publishFailures prometheus.Counter
	batchDuration   prometheus.Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init 初始化全局 metrics（幂等）
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			txProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sniffer_transactions_processed_total",
				Help: "Total number of transactions reconstructed and decoded",
			}),
			txRejected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sniffer_transactions_rejected_total",
				Help: "Total number of malformed transactions",
			}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sniffer_instructions_total",
				Help: "Instruction decode outcomes by kind",
			}, []string{"kind"}),
			eventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sniffer_events_decoded_total",
				Help: "Total number of events decoded from program logs",
			}),
			logScanFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sniffer_log_scan_failures_total",
				Help: "Total number of transactions whose log scan was aborted",
			}),
			publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sniffer_publish_failures_total",
				Help: "Total number of records that failed to publish",
			}),
			batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "sniffer_batch_duration_seconds",
				Help:    "Time spent processing one batch of transactions",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			metrics.txProcessed,
			metrics.txRejected,
			metrics.instructions,
			metrics.eventsDecoded,
			metrics.logScanFailures,
			metrics.publishFailures,
			metrics.batchDuration,
		)
	})
	return metrics
}

func (m *Metrics) TxProcessed() {
	if m != nil {
		m.txProcessed.Inc()
	}
}

func (m *Metrics) TxRejected() {
	if m != nil {
		m.txRejected.Inc()
	}
}

// Instruction kind 取 core.ResultKind.String()
func (m *Metrics) Instruction(kind string) {
	if m != nil {
		m.instructions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) EventsDecoded(n int) {
	if m != nil && n > 0 {
		m.eventsDecoded.Add(float64(n))
	}
}

func (m *Metrics) LogScanFailed() {
	if m != nil {
		m.logScanFailures.Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

func (m *Metrics) ObserveBatch(seconds float64) {
	if m != nil {
		m.batchDuration.Observe(seconds)
	}
}

// Handler /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
