// Package metrics provides Prometheus metrics collection for entityapi.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "entityapi"

// Collector holds all Prometheus metrics for entityapi.
type Collector struct {
	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	HookDuration     *prometheus.HistogramVec
	InstancesCreated *prometheus.CounterVec

	// Validation metrics
	ValidationFailures *prometheus.CounterVec

	// Schema metrics
	SchemaParses        *prometheus.CounterVec
	SchemaParseDuration prometheus.Histogram

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer, DefaultNamespace)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Collector{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of verb dispatches by outcome",
			},
			[]string{"entity", "verb", "outcome"},
		),
		HookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "hook_duration_seconds",
				Help:      "Entity hook duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"entity", "hook"},
		),
		InstancesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_total",
				Help:      "Total number of entity instances loaded",
			},
			[]string{"entity"},
		),

		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rejected validations by category",
			},
			[]string{"entity", "category"},
		),

		SchemaParses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_parses_total",
				Help:      "Total number of schema parses by result",
			},
			[]string{"entity", "result"},
		),
		SchemaParseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "schema_parse_duration_seconds",
				Help:      "Schema parse duration in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed configuration reloads",
			},
		),
	}
}

// RecordDispatch records the outcome of one verb call.
func (c *Collector) RecordDispatch(entity, verb, outcome string) {
	c.DispatchTotal.WithLabelValues(entity, verb, outcome).Inc()
}

// RecordHook records the duration of one hook call.
func (c *Collector) RecordHook(entity, hook string, took time.Duration) {
	c.HookDuration.WithLabelValues(entity, hook).Observe(took.Seconds())
}

// RecordValidationFailure counts a rejected validation.
func (c *Collector) RecordValidationFailure(entity, category string) {
	c.ValidationFailures.WithLabelValues(entity, category).Inc()
}

// RecordInstance counts a loaded instance.
func (c *Collector) RecordInstance(entity string) {
	c.InstancesCreated.WithLabelValues(entity).Inc()
}

// RecordSchemaParse records a parse attempt. It matches registry.ParseObserver.
func (c *Collector) RecordSchemaParse(entity string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SchemaParses.WithLabelValues(entity, result).Inc()
	c.SchemaParseDuration.Observe(took.Seconds())
}

// RecordConfigReload records a configuration reload.
func (c *Collector) RecordConfigReload(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
}
