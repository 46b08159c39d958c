package metrics

import (
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const promNamespace = "chatline"

// Collector exposes a Registry to Prometheus. Series are built from a snapshot on every
// scrape, so it registers as an unchecked collector.
type Collector struct {
	registry *Registry
}

// NewCollector wraps registry for Prometheus
func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

// Describe sends nothing, which marks the collector as unchecked
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect converts counters, gauges and timers into const metrics
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters, gauges := c.registry.Snapshot()

	for _, m := range counters {
		desc, values := describe(m)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, m.Value, values...)
	}
	for _, m := range gauges {
		desc, values := describe(m)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value, values...)
	}
	for key, t := range c.registry.TimerSnapshot() {
		desc := prometheus.NewDesc(promName(key)+"_ms", "Timer "+key+" in milliseconds", nil, nil)
		quantiles := map[float64]float64{}
		if t.P95 > 0 {
			quantiles[0.95] = t.P95
		}
		if t.P99 > 0 {
			quantiles[0.99] = t.P99
		}
		ch <- prometheus.MustNewConstSummary(desc, uint64(t.Count), t.Sum, quantiles)
	}
}

// NewPrometheusRegistry returns a Prometheus registry serving only registry
func NewPrometheusRegistry(registry *Registry) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(registry))
	return reg
}

func describe(m Metric) (*prometheus.Desc, []string) {
	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	labelNames := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		labelNames[i] = sanitize(k)
		values[i] = m.Labels[k]
	}

	help := m.Description
	if help == "" {
		help = m.Name
	}
	return prometheus.NewDesc(promName(m.Name), help, labelNames, nil), values
}

func promName(name string) string {
	return promNamespace + "_" + sanitize(name)
}

// sanitize maps a name onto the Prometheus metric name alphabet
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}
