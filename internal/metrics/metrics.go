// file: internal/metrics/metrics.go
// version: 2.0.0
// guid: 9f8e7d6c-5b4a-3210-9fed-cba876543210

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "filesync"

var (
	registerOnce sync.Once

	transfersQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_queued_total",
		Help:      "Total number of downloads that had to wait behind the active one",
	})
	transfersStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_started_total",
		Help:      "Total number of downloads started",
	})
	transfersFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_finished_total",
		Help:      "Total number of downloads finished by result",
	}, []string{"result"})
	transferDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transfer_duration_seconds",
		Help:      "Histogram of download durations in seconds by result",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms up to ~100s
	}, []string{"result"})
	bytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloaded_bytes_total",
		Help:      "Total number of file bytes written by downloads",
	})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transfers_pending",
		Help:      "Downloads waiting in the backlog",
	})
	activeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transfers_active",
		Help:      "Downloads currently running (0 or 1)",
	})

	shareLinks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "share_link_requests_total",
		Help:      "Share link requests relayed for the file browser by result",
	}, []string{"result"})
	watchSetGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watch_set_size",
		Help:      "Number of directories in the published watch set",
	})

	memoryAllocGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_memory_alloc_bytes",
		Help:      "Current process memory allocation (runtime.Alloc)",
	})
	goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_goroutines",
		Help:      "Number of currently running goroutines",
	})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transfersQueued, transfersStarted, transfersFinished, transferDuration,
			bytesDownloaded, pendingGauge, activeGauge, shareLinks, watchSetGauge,
			memoryAllocGauge, goroutinesGauge)
	})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Transfer lifecycle helpers
func IncTransferQueued()  { transfersQueued.Inc() }
func IncTransferStarted() { transfersStarted.Inc() }
func IncTransferFinished(success bool) {
	transfersFinished.WithLabelValues(resultLabel(success)).Inc()
}
func ObserveTransferDuration(success bool, d time.Duration) {
	transferDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}
func AddBytesDownloaded(n int) { bytesDownloaded.Add(float64(n)) }

// Scheduler state
func SetPendingTransfers(n int) { pendingGauge.Set(float64(n)) }
func SetActiveTransfers(n int)  { activeGauge.Set(float64(n)) }

// File browser bridge
func IncShareLinkRequest(success bool) { shareLinks.WithLabelValues(resultLabel(success)).Inc() }
func SetWatchSetSize(n int)            { watchSetGauge.Set(float64(n)) }

// Process gauges
func SetMemoryAlloc(b uint64) { memoryAllocGauge.Set(float64(b)) }
func SetGoroutines(n int)     { goroutinesGauge.Set(float64(n)) }
