// Package metrics exports upload pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for the upload pipeline and usage reads.
type Observer interface {
	RecordOutcome(code string)
	RecordStoragePut(duration time.Duration, sizeBytes int64, err error)
	RecordUsageRead(source string, duration time.Duration, err error)
	RecordUsageFallback(source string)
}

// PrometheusObserver exports pipeline metrics to Prometheus.
type PrometheusObserver struct {
	outcomes       *prometheus.CounterVec
	putDuration    prometheus.Histogram
	putErrors      prometheus.Counter
	uploadedBytes  prometheus.Counter
	usageDuration  *prometheus.HistogramVec
	usageFallbacks *prometheus.CounterVec
}

// NewPrometheusObserver registers the pipeline metrics on reg. A nil reg
// uses the default registerer.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "imguard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_outcomes_total",
			Help:      "Upload requests by terminal outcome code.",
		}, []string{"code"}),
		putDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_put_duration_seconds",
			Help:      "Latency of blob store writes.",
			Buckets:   prometheus.DefBuckets,
		}),
		putErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_put_errors_total",
			Help:      "Count of failed blob store writes.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully written to the blob store.",
		}),
		usageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_read_duration_seconds",
			Help:      "Latency of usage source reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "result"}),
		usageFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_fallbacks_total",
			Help:      "Usage reads replaced by the conservative fallback snapshot.",
		}, []string{"source"}),
	}

	collectors := []prometheus.Collector{
		o.outcomes, o.putDuration, o.putErrors, o.uploadedBytes, o.usageDuration, o.usageFallbacks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register pipeline metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordOutcome(code string) {
	o.outcomes.WithLabelValues(code).Inc()
}

func (o *PrometheusObserver) RecordStoragePut(duration time.Duration, sizeBytes int64, err error) {
	o.putDuration.Observe(duration.Seconds())
	if err != nil {
		o.putErrors.Inc()
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordUsageRead(source string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.usageDuration.WithLabelValues(source, result).Observe(duration.Seconds())
}

func (o *PrometheusObserver) RecordUsageFallback(source string) {
	o.usageFallbacks.WithLabelValues(source).Inc()
}

// RegisterTrackedIdentities exports the number of identities the rate
// limiter holds state for, read from tracked on every scrape.
func RegisterTrackedIdentities(namespace string, reg prometheus.Registerer, tracked func() int) error {
	if namespace == "" {
		namespace = "imguard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_tracked_identities",
		Help:      "Identities with at least one attempt inside the rate limit window.",
	}, func() float64 { return float64(tracked()) })
	if err := reg.Register(gauge); err != nil {
		return fmt.Errorf("register rate limit gauge: %w", err)
	}
	return nil
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) RecordOutcome(string) {}

func (Nop) RecordStoragePut(time.Duration, int64, error) {}

func (Nop) RecordUsageRead(string, time.Duration, error) {}

func (Nop) RecordUsageFallback(string) {}
