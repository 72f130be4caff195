package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetforge"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	assetsProcessed *prom.CounterVec
	bytesWritten    prom.Counter
	precompressed   *prom.CounterVec
	requests        *prom.CounterVec
	requestDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		assetsProcessed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "assets_processed_total",
			Help:      "Assets published by kind",
		}, []string{"kind"}),
		bytesWritten: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to the output tree",
		}),
		precompressed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "precompressed_files_total",
			Help:      "Precompressed siblings written by encoding",
		}, []string{"encoding"}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests handled by the serving switch",
		}, []string{"source", "code"}),
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Request latency of the serving switch",
			Buckets:   prom.DefBuckets,
		}, []string{"source"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.assetsProcessed, pr.bytesWritten, pr.precompressed, pr.requests, pr.requestDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddAssetsProcessed(kind string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.assetsProcessed.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusRecorder) AddBytesWritten(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.bytesWritten.Add(float64(n))
}

func (p *PrometheusRecorder) IncPrecompressed(encoding string) {
	if p == nil {
		return
	}
	p.precompressed.WithLabelValues(encoding).Inc()
}

func (p *PrometheusRecorder) ObserveRequest(source string, status int, d time.Duration) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(source, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(source).Observe(d.Seconds())
}
