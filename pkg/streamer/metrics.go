package streamer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks stream lifecycle counters. A nil *Metrics is valid and
// records nothing, which keeps tests free of the global registry.
type Metrics struct {
	StreamsStarted prometheus.Counter
	StreamsStopped prometheus.Counter
	PipelineErrors prometheus.Counter
	ActiveStream   prometheus.Gauge
	StreamDuration prometheus.Histogram
}

// NewMetrics registers the stream metrics on the default registry. Call it
// once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		StreamsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iptv_streams_started_total",
			Help: "Total number of streams started",
		}),
		StreamsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iptv_streams_stopped_total",
			Help: "Total number of streams stopped",
		}),
		PipelineErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iptv_pipeline_errors_total",
			Help: "Total number of genuine encoder failures",
		}),
		ActiveStream: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "iptv_active_stream",
			Help: "Whether a stream is currently active (0 or 1)",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "iptv_stream_duration_seconds",
			Help:    "Duration of finished streams",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10),
		}),
	}
}

func (m *Metrics) streamStarted() {
	if m == nil {
		return
	}
	m.StreamsStarted.Inc()
	m.ActiveStream.Set(1)
}

func (m *Metrics) streamStopped(d time.Duration) {
	if m == nil {
		return
	}
	m.StreamsStopped.Inc()
	m.ActiveStream.Set(0)
	m.StreamDuration.Observe(d.Seconds())
}

func (m *Metrics) pipelineError() {
	if m == nil {
		return
	}
	m.PipelineErrors.Inc()
}
