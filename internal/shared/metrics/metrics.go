package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for snapshot_assemble_total.
const (
	ResultOK               = "ok"
	ResultNoPartition      = "no_partition"
	ResultMalformed        = "malformed"
	ResultStoreUnavailable = "store_unavailable"
	ResultInvalid          = "invalid"
	ResultError            = "error"
)

var (
	snapshotAssembleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_assemble_total",
		Help: "Snapshot assemblies by result",
	}, []string{"result"})

	snapshotAssembleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_assemble_duration_seconds",
		Help:    "Snapshot assembly duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})

	storeReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapshot_store_read_duration_seconds",
		Help:    "Snapshot store call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"op"})

	ingestMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_messages_total",
		Help: "Ingest queue messages by outcome",
	}, []string{"outcome"})

	duplicateRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_duplicate_rows_total",
		Help: "Reads where a resolved partition version returned more than one row",
	})
)

// IncAssemble counts one assembly with the given result label.
func IncAssemble(result string) {
	snapshotAssembleTotal.WithLabelValues(result).Inc()
}

// ObserveAssembleDuration records how long an assembly took.
func ObserveAssembleDuration(d time.Duration) {
	snapshotAssembleDuration.Observe(d.Seconds())
}

// ObserveStoreRead records the duration of a store call (op is "list_versions" or "read").
func ObserveStoreRead(op string, d time.Duration) {
	storeReadDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncDuplicateRows counts a read that returned more than one row.
func IncDuplicateRows() {
	duplicateRowsTotal.Inc()
}

// Ingest outcomes for ingest_messages_total.
const (
	IngestReceived  = "received"
	IngestAppended  = "appended"
	IngestFailed    = "failed"
	IngestDiscarded = "discarded"
)

// IncIngest counts one ingest message outcome.
func IncIngest(outcome string) {
	ingestMessagesTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
