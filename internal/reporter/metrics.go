package reporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dexcount/pkg/model"
)

const metricsNamespace = "dexcount"

var runLabels = []string{"artifact", "variant"}

// Metrics holds the gauges describing the latest run. They live in a private
// registry written out in the node_exporter textfile format, which suits a
// short-lived CLI better than a scrape endpoint.
type Metrics struct {
	registry *prometheus.Registry

	methods         *prometheus.GaugeVec
	fields          *prometheus.GaugeVec
	classes         *prometheus.GaugeVec
	declaredMethods *prometheus.GaugeVec
	declaredFields  *prometheus.GaugeVec
	maxMethods      *prometheus.GaugeVec
	passed          *prometheus.GaugeVec
	duration        *prometheus.GaugeVec
	lastRun         *prometheus.GaugeVec
}

// NewMetrics registers the run gauges on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, runLabels)
	}

	return &Metrics{
		registry:        reg,
		methods:         gauge("methods", "Method references in the artifact"),
		fields:          gauge("fields", "Field references in the artifact"),
		classes:         gauge("classes", "Classes with at least one reference"),
		declaredMethods: gauge("declared_methods", "Methods declared by the artifact's own classes"),
		declaredFields:  gauge("declared_fields", "Fields declared by the artifact's own classes"),
		maxMethods:      gauge("max_methods", "Configured method count threshold, 0 when unset"),
		passed:          gauge("run_passed", "1 when the run stayed within the threshold"),
		duration:        gauge("run_duration_seconds", "Wall time of the count run"),
		lastRun:         gauge("last_run_timestamp_seconds", "Unix time the run finished"),
	}
}

// Observe records run.
func (m *Metrics) Observe(run *model.CountRun) {
	labels := prometheus.Labels{"artifact": run.Artifact, "variant": run.Variant}

	m.methods.With(labels).Set(float64(run.Methods))
	m.fields.With(labels).Set(float64(run.Fields))
	m.classes.With(labels).Set(float64(run.Classes))
	m.declaredMethods.With(labels).Set(float64(run.DeclaredMethods))
	m.declaredFields.With(labels).Set(float64(run.DeclaredFields))
	m.maxMethods.With(labels).Set(float64(run.MaxMethodCount))
	m.duration.With(labels).Set(run.Duration.Seconds())
	m.lastRun.With(labels).Set(float64(run.CreatedAt.Unix()))

	passed := 0.0
	if run.Passed() {
		passed = 1
	}
	m.passed.With(labels).Set(passed)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all gauges to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
