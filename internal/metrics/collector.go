// internal/metrics/collector.go
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/sdm-poller/internal/poller"
	"github.com/tamzrod/sdm-poller/internal/status"
)

// Source is what the collector reads from a device. *poller.Poller satisfies it.
type Source interface {
	DeviceID() string
	Model() string
	Snapshot() map[string]poller.DecodedValue
	Stats() poller.Stats
	Status() status.Snapshot
}

const namespace = "sdm"

var (
	valueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "register_value"),
		"Latest decoded register value.",
		[]string{"device", "model", "key"}, nil,
	)
	pollsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "poll", "total"),
		"Poll cycles by outcome.",
		[]string{"device", "outcome"}, nil,
	)
	healthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "device", "health"),
		"Device health code (0 unknown, 1 ok, 2 error, 3 stale).",
		[]string{"device"}, nil,
	)
	failuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "device", "consecutive_failures"),
		"Consecutive failed poll cycles.",
		[]string{"device"}, nil,
	)
	durationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "poll", "duration_avg_seconds"),
		"Average poll cycle duration.",
		[]string{"device"}, nil,
	)
	lastUpdateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "poll", "last_success_timestamp_seconds"),
		"Unix time of the last successful poll.",
		[]string{"device"}, nil,
	)
)

// Collector exports poller state at scrape time.
type Collector struct {
	sources []Source
}

func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- valueDesc
	ch <- pollsDesc
	ch <- healthDesc
	ch <- failuresDesc
	ch <- durationDesc
	ch <- lastUpdateDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sources {
		id := s.DeviceID()
		model := s.Model()

		snap := s.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := snap[k]
			if v.Value == nil {
				continue
			}
			ch <- prometheus.MustNewConstMetric(valueDesc, prometheus.GaugeValue, *v.Value, id, model, k)
		}

		st := s.Stats()
		ch <- prometheus.MustNewConstMetric(pollsDesc, prometheus.CounterValue, float64(st.SuccessCount), id, "success")
		ch <- prometheus.MustNewConstMetric(pollsDesc, prometheus.CounterValue, float64(st.FailureCount), id, "failure")
		ch <- prometheus.MustNewConstMetric(pollsDesc, prometheus.CounterValue, float64(st.StaleCount), id, "stale")
		ch <- prometheus.MustNewConstMetric(durationDesc, prometheus.GaugeValue, st.AvgDuration.Seconds(), id)
		if !st.LastUpdate.IsZero() {
			ch <- prometheus.MustNewConstMetric(lastUpdateDesc, prometheus.GaugeValue, float64(st.LastUpdate.Unix()), id)
		}

		hs := s.Status()
		ch <- prometheus.MustNewConstMetric(healthDesc, prometheus.GaugeValue, float64(hs.Health), id)
		ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.GaugeValue, float64(hs.ConsecutiveFailures), id)
	}
}
