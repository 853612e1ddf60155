package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_requests_total",
			Help: "Total number of chat completion requests processed",
		},
		[]string{"model", "mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genaibridge_request_duration_seconds",
			Help:    "Chat completion duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "mode"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_tokens_total",
			Help: "Total number of tokens reported by the vendor",
		},
		[]string{"model", "type"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_upstream_errors_total",
			Help: "Total number of failed vendor calls",
		},
		[]string{"model", "error_type"},
	)

	StreamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_stream_chunks_total",
			Help: "Total number of SSE content chunks relayed to clients",
		},
		[]string{"model"},
	)

	StreamsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_streams_terminated_total",
			Help: "Streams by terminal state (done, failed, cancelled)",
		},
		[]string{"model", "state"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genaibridge_active_streams",
			Help: "Number of active streaming responses",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genaibridge_active_connections",
			Help: "Number of HTTP requests being processed",
		},
	)

	FilesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genaibridge_files_stored_total",
			Help: "Total number of uploads accepted",
		},
	)

	FileBytesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genaibridge_file_bytes_stored_total",
			Help: "Total bytes of uploads accepted",
		},
	)

	FilesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genaibridge_files_pruned_total",
			Help: "Total number of uploads removed by retention",
		},
	)

	FileDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genaibridge_file_downloads_total",
			Help: "Public file fetches by result",
		},
		[]string{"status"},
	)
)

func RecordRequest(model, mode, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(model, mode, status).Inc()
	RequestDuration.WithLabelValues(model, mode).Observe(durationSec)
}

func RecordTokens(model string, promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

func RecordUpstreamError(model, errorType string) {
	UpstreamErrors.WithLabelValues(model, errorType).Inc()
}

func RecordStreamChunk(model string) {
	StreamChunks.WithLabelValues(model).Inc()
}

func RecordStreamTerminated(model, state string) {
	StreamsTerminated.WithLabelValues(model, state).Inc()
}

func RecordFileStored(bytes int64) {
	FilesStored.Inc()
	FileBytesStored.Add(float64(bytes))
}

func RecordFilesPruned(n int) {
	FilesPruned.Add(float64(n))
}

func RecordFileDownload(status string) {
	FileDownloads.WithLabelValues(status).Inc()
}

func IncrementActiveConnections() {
	ActiveConnections.Inc()
}

func DecrementActiveConnections() {
	ActiveConnections.Dec()
}

func IncrementActiveStreams() {
	ActiveStreams.Inc()
}

func DecrementActiveStreams() {
	ActiveStreams.Dec()
}
