// Package metrics exposes Prometheus instruments for resolution, lookups and
// module activation.
//
// A Collector owns its instruments and registers them on the Registerer it
// is given, so tests and embedded hosts can use a private registry instead of
// the global one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plugkit"

// Collector groups every instrument the framework records.
type Collector struct {
	ResolutionDuration prometheus.Histogram
	ContractsBound     prometheus.Gauge
	ContractsUnbound   prometheus.Gauge
	ServicesStandalone prometheus.Gauge
	Demotions          prometheus.Counter
	Exclusions         *prometheus.CounterVec

	Lookups              *prometheus.CounterVec
	ConstructionFailures *prometheus.CounterVec

	ModuleOutcomes *prometheus.CounterVec
}

// NewCollector creates the instruments and registers them on reg. A nil reg
// leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Time taken by one resolution pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		ContractsBound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contracts_bound",
			Help:      "Contracts bound to a winning service in the last resolution pass.",
		}),
		ContractsUnbound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contracts_unresolved",
			Help:      "Declared contracts left without any candidate in the last resolution pass.",
		}),
		ServicesStandalone: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "services_standalone",
			Help:      "Services registered without a contract in the last resolution pass.",
		}),
		Demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_demotions_total",
			Help:      "Services that lost contract contention and were demoted to standalone.",
		}),
		Exclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_exclusions_total",
			Help:      "Services dropped before grouping, by filter.",
		}, []string{"filter"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_lookups_total",
			Help:      "Container lookups by key kind and result.",
		}, []string{"kind", "result"}),
		ConstructionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_construction_failures_total",
			Help:      "Service constructors that returned an error or panicked.",
		}, []string{"service"}),
		ModuleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_transitions_total",
			Help:      "Module lifecycle outcomes by resulting state.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.ResolutionDuration,
			c.ContractsBound,
			c.ContractsUnbound,
			c.ServicesStandalone,
			c.Demotions,
			c.Exclusions,
			c.Lookups,
			c.ConstructionFailures,
			c.ModuleOutcomes,
		)
	}
	return c
}

// ObserveResolution records the outcome of one resolution pass.
func (c *Collector) ObserveResolution(elapsed time.Duration, bound, unresolved, standalone, demoted int) {
	if c == nil {
		return
	}
	c.ResolutionDuration.Observe(elapsed.Seconds())
	c.ContractsBound.Set(float64(bound))
	c.ContractsUnbound.Set(float64(unresolved))
	c.ServicesStandalone.Set(float64(standalone))
	c.Demotions.Add(float64(demoted))
}

// ObserveExclusion counts a descriptor dropped by filter ("feature" or "version").
func (c *Collector) ObserveExclusion(filter string) {
	if c == nil {
		return
	}
	c.Exclusions.WithLabelValues(filter).Inc()
}

// ObserveLookup counts a container lookup. kind is "contract" or "name".
func (c *Collector) ObserveLookup(kind string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Lookups.WithLabelValues(kind, result).Inc()
}

// ObserveConstructionFailure counts a failed constructor for service.
func (c *Collector) ObserveConstructionFailure(service string) {
	if c == nil {
		return
	}
	c.ConstructionFailures.WithLabelValues(service).Inc()
}

// ObserveModule counts a module reaching state.
func (c *Collector) ObserveModule(state string) {
	if c == nil {
		return
	}
	c.ModuleOutcomes.WithLabelValues(state).Inc()
}
