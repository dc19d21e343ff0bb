// Package metrics exports per-cycle measurements to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"binwatch/internal/types"
)

// Recorder observes the outcome of monitor cycles.
type Recorder interface {
	ObserveReading(distanceCM, fill int)
	ObserveInvalid()
	ObserveState(state types.BinState)
	ObserveNotification(err error)
	ObserveCycleDuration(d time.Duration)
	// Flush exports what has been observed so far.
	Flush(ctx context.Context) error
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveReading(int, int)            {}
func (NoopRecorder) ObserveInvalid()                    {}
func (NoopRecorder) ObserveState(types.BinState)        {}
func (NoopRecorder) ObserveNotification(error)          {}
func (NoopRecorder) ObserveCycleDuration(time.Duration) {}
func (NoopRecorder) Flush(context.Context) error        { return nil }

// DefaultPushTimeout bounds a single Pushgateway push.
const DefaultPushTimeout = time.Second

// PromConfig configures a PromRecorder.
type PromConfig struct {
	// PushgatewayURL enables Flush; empty keeps metrics local.
	PushgatewayURL string
	Job            string
	Instance       string
	// PushTimeout caps each Flush. Zero uses DefaultPushTimeout.
	PushTimeout time.Duration
}

// PromRecorder keeps binwatch metrics in a private registry.
type PromRecorder struct {
	registry    *prometheus.Registry
	pusher      *push.Pusher
	pushTimeout time.Duration

	distance      prometheus.Gauge
	fill          prometheus.Gauge
	full          prometheus.Gauge
	readings      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycle         prometheus.Histogram
}

// NewPromRecorder registers the binwatch metrics on a fresh registry.
func NewPromRecorder(cfg PromConfig) *PromRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &PromRecorder{
		registry: reg,
		distance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricDistanceCM,
			Help:      "Last valid distance between sensor and waste surface, in centimetres.",
		}),
		fill: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricFillPercent,
			Help:      "Last computed fill level, in percent.",
		}),
		full: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricFull,
			Help:      "1 while the bin is at or above the alert threshold.",
		}),
		readings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricReadings,
			Help:      "Sensor readings by result.",
		}, []string{types.LabelResult}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricNotifications,
			Help:      "Notification attempts by result.",
		}, []string{types.LabelResult}),
		cycle: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: types.MetricNamespace,
			Name:      types.MetricCycleDuration,
			Help:      "Duration of a monitor cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	if cfg.PushgatewayURL != "" {
		job := cfg.Job
		if job == "" {
			job = types.MetricNamespace
		}
		r.pushTimeout = cfg.PushTimeout
		if r.pushTimeout <= 0 {
			r.pushTimeout = DefaultPushTimeout
		}
		r.pusher = push.New(cfg.PushgatewayURL, job).
			Gatherer(reg).
			Client(&http.Client{Timeout: r.pushTimeout})
		if cfg.Instance != "" {
			r.pusher = r.pusher.Grouping("instance", cfg.Instance)
		}
	}
	return r
}

// Registry exposes the underlying registry.
func (r *PromRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PromRecorder) ObserveReading(distanceCM, fill int) {
	r.readings.WithLabelValues(types.ResultValid).Inc()
	r.distance.Set(float64(distanceCM))
	r.fill.Set(float64(fill))
}

func (r *PromRecorder) ObserveInvalid() {
	r.readings.WithLabelValues(types.ResultInvalid).Inc()
}

func (r *PromRecorder) ObserveState(state types.BinState) {
	if state == types.BinStateFull {
		r.full.Set(1)
		return
	}
	r.full.Set(0)
}

func (r *PromRecorder) ObserveNotification(err error) {
	if err != nil {
		r.notifications.WithLabelValues(types.ResultFailed).Inc()
		return
	}
	r.notifications.WithLabelValues(types.ResultSuccess).Inc()
}

func (r *PromRecorder) ObserveCycleDuration(d time.Duration) {
	r.cycle.Observe(d.Seconds())
}

// Flush pushes the registry to the Pushgateway, replacing the group.
// It returns within the push timeout even if the gateway hangs.
func (r *PromRecorder) Flush(ctx context.Context) error {
	if r.pusher == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()
	if err := r.pusher.PushContext(ctx); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "pushgateway push failed", err)
	}
	return nil
}
