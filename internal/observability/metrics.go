package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for mounted widgets.
type Metrics struct {
	WidgetsActive prometheus.Gauge
	// labels: state={loading,ready,destroyed}
	WidgetTransitions *prometheus.CounterVec
	// labels: event={mousemove,mouseleave}
	PointerEvents *prometheus.CounterVec
	// labels: hover={true,false}
	FeatureStateWrites *prometheus.CounterVec
	EngineErrors       prometheus.Counter
	CommandsStreamed   prometheus.Counter
}

// NewMetricsFor creates the widget metrics and registers them with reg.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.WidgetsActive,
		m.WidgetTransitions,
		m.PointerEvents,
		m.FeatureStateWrites,
		m.EngineErrors,
		m.CommandsStreamed,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		WidgetsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quakemap",
			Name:      "widgets_active",
			Help:      "Widgets mounted and not yet destroyed.",
		}),
		WidgetTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quakemap",
			Name:      "widget_transitions_total",
			Help:      "Widget lifecycle transitions by target state.",
		}, []string{"state"}),
		PointerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quakemap",
			Name:      "pointer_events_total",
			Help:      "Pointer events reported by map pages.",
		}, []string{"event"}),
		FeatureStateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quakemap",
			Name:      "feature_state_writes_total",
			Help:      "Hover feature-state writes by value.",
		}, []string{"hover"}),
		EngineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakemap",
			Name:      "engine_errors_total",
			Help:      "Errors reported by map engines.",
		}),
		CommandsStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quakemap",
			Name:      "commands_streamed_total",
			Help:      "Engine commands sent to map pages.",
		}),
	}
}
