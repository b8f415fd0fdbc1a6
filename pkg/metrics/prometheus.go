package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	reg *prom.Registry

	sessionDuration  *prom.HistogramVec
	attempts         *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec
	workerBuilds     *prom.HistogramVec
	workerInFlight   prom.Gauge
	scheduled        *prom.CounterVec
	remoteBuilds     *prom.HistogramVec
	cacheBytes       *prom.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg, creating a
// registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		sessionDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tess",
			Name:      "session_duration_seconds",
			Help:      "Duration of build sessions by outcome",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"outcome"}),
		attempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tess",
			Name:      "build_attempts_total",
			Help:      "Build attempts per package",
		}, []string{"package"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tess",
			Name:      "build_retries_total",
			Help:      "Retries after a failed attempt",
		}, []string{"package"}),
		retriesExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tess",
			Name:      "build_retry_exhausted_total",
			Help:      "Packages that failed every attempt",
		}, []string{"package"}),
		workerBuilds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tess",
			Subsystem: "worker",
			Name:      "build_duration_seconds",
			Help:      "Duration of builds run by this worker",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"result"}),
		workerInFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "tess",
			Subsystem: "worker",
			Name:      "builds_in_flight",
			Help:      "Builds currently running on this worker",
		}),
		scheduled: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tess",
			Subsystem: "cluster",
			Name:      "jobs_scheduled_total",
			Help:      "Jobs assigned to each worker",
		}, []string{"worker"}),
		remoteBuilds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tess",
			Subsystem: "cluster",
			Name:      "remote_build_duration_seconds",
			Help:      "Duration of remote builds by worker and result",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"worker", "result"}),
		cacheBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tess",
			Subsystem: "cluster",
			Name:      "cache_bytes_total",
			Help:      "Bytes moved through the shared cache",
		}, []string{"direction"}),
	}
	reg.MustRegister(pr.sessionDuration, pr.attempts, pr.retries, pr.retriesExhausted,
		pr.workerBuilds, pr.workerInFlight, pr.scheduled, pr.remoteBuilds, pr.cacheBytes)
	return pr
}

// Handler exposes the registry for scraping.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveSession(outcome string, d time.Duration) {
	p.sessionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncAttempt(pkg string) {
	p.attempts.WithLabelValues(pkg).Inc()
}

func (p *PrometheusRecorder) IncRetry(pkg string) {
	p.retries.WithLabelValues(pkg).Inc()
}

func (p *PrometheusRecorder) IncRetriesExhausted(pkg string) {
	p.retriesExhausted.WithLabelValues(pkg).Inc()
}

func (p *PrometheusRecorder) ObserveWorkerBuild(success bool, d time.Duration) {
	p.workerBuilds.WithLabelValues(result(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetWorkerInFlight(n int) {
	p.workerInFlight.Set(float64(n))
}

func (p *PrometheusRecorder) IncScheduled(worker string) {
	p.scheduled.WithLabelValues(worker).Inc()
}

func (p *PrometheusRecorder) ObserveRemoteBuild(worker string, success bool, d time.Duration) {
	p.remoteBuilds.WithLabelValues(worker, result(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveCacheTransfer(direction string, bytes int) {
	p.cacheBytes.WithLabelValues(direction).Add(float64(bytes))
}
