package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step results used as the "result" label of satroute_steps_total.
const (
	StepResultOK                 = "ok"
	StepResultConfigurationError = "configuration_error"
	StepResultEmissionError      = "emission_error"
	StepResultCanceled           = "canceled"
)

// StepCollector exposes routing step Prometheus metrics.
type StepCollector struct {
	gatherer prometheus.Gatherer

	Steps                *prometheus.CounterVec
	StepDuration         prometheus.Histogram
	ShortestPathDuration prometheus.Histogram
	ForwardingEntries    prometheus.Gauge
	DropEntries          prometheus.Gauge
	DeltaRecords         prometheus.Counter
	BandwidthInterfaces  prometheus.Gauge
	PendingEmission      prometheus.Gauge
}

// NewStepCollector registers step metrics against the provided registerer.
func NewStepCollector(reg prometheus.Registerer) (*StepCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satroute_steps_total",
		Help: "Routing steps computed, labeled by result.",
	}, []string{"result"}), "satroute_steps_total")
	if err != nil {
		return nil, err
	}

	stepHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satroute_step_duration_seconds",
		Help:    "Wall time of one routing step from topology build to emission.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "satroute_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	apspHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satroute_shortest_paths_duration_seconds",
		Help:    "Duration of the all-pairs shortest path computation over the ISL graph.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "satroute_shortest_paths_duration_seconds")
	if err != nil {
		return nil, err
	}

	entries, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satroute_forwarding_entries",
		Help: "Forwarding table entries of the last computed step.",
	}), "satroute_forwarding_entries")
	if err != nil {
		return nil, err
	}

	drops, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satroute_forwarding_drop_entries",
		Help: "Drop sentinel entries of the last computed step.",
	}), "satroute_forwarding_drop_entries")
	if err != nil {
		return nil, err
	}

	deltas, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satroute_delta_records_total",
		Help: "Cumulative forwarding delta records emitted.",
	}), "satroute_delta_records_total")
	if err != nil {
		return nil, err
	}

	bandwidth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satroute_bandwidth_interfaces",
		Help: "GSL interfaces in the last bandwidth assignment.",
	}), "satroute_bandwidth_interfaces")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satroute_pending_emission",
		Help: "1 while a computed step is waiting to be re-emitted.",
	}), "satroute_pending_emission")
	if err != nil {
		return nil, err
	}

	return &StepCollector{
		gatherer:             gatherer,
		Steps:                steps,
		StepDuration:         stepHistogram,
		ShortestPathDuration: apspHistogram,
		ForwardingEntries:    entries,
		DropEntries:          drops,
		DeltaRecords:         deltas,
		BandwidthInterfaces:  bandwidth,
		PendingEmission:      pending,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StepCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveStep counts a finished step and, for successful ones, its duration.
func (c *StepCollector) ObserveStep(result string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Steps != nil {
		c.Steps.WithLabelValues(result).Inc()
	}
	if result == StepResultOK && c.StepDuration != nil {
		c.StepDuration.Observe(d.Seconds())
	}
}

// ObserveShortestPaths records an all-pairs shortest path duration.
func (c *StepCollector) ObserveShortestPaths(d time.Duration) {
	if c == nil || c.ShortestPathDuration == nil {
		return
	}
	c.ShortestPathDuration.Observe(d.Seconds())
}

// SetTableSize updates the forwarding table gauges.
func (c *StepCollector) SetTableSize(entries, drops int) {
	if c == nil {
		return
	}
	if c.ForwardingEntries != nil {
		c.ForwardingEntries.Set(float64(entries))
	}
	if c.DropEntries != nil {
		c.DropEntries.Set(float64(drops))
	}
}

// AddDeltaRecords increments the emitted delta counter.
func (c *StepCollector) AddDeltaRecords(n int) {
	if c == nil || c.DeltaRecords == nil || n <= 0 {
		return
	}
	c.DeltaRecords.Add(float64(n))
}

// SetBandwidthInterfaces updates the bandwidth assignment size gauge.
func (c *StepCollector) SetBandwidthInterfaces(n int) {
	if c == nil || c.BandwidthInterfaces == nil {
		return
	}
	c.BandwidthInterfaces.Set(float64(n))
}

// SetPendingEmission flags whether a step awaits re-emission.
func (c *StepCollector) SetPendingEmission(pending bool) {
	if c == nil || c.PendingEmission == nil {
		return
	}
	if pending {
		c.PendingEmission.Set(1)
		return
	}
	c.PendingEmission.Set(0)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
