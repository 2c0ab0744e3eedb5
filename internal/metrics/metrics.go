// Package metrics exposes Prometheus counters for unit and cursor activity.
//
// A nil *Collector is valid and records nothing, so library code can call
// its methods unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Retry reasons.
const (
	ReasonLocked       = "locked"
	ReasonInUse        = "in_use"
	ReasonUndetermined = "undetermined"
	ReasonMissingDir   = "missing_dir"
)

// Collector holds the store's metrics.
type Collector struct {
	unitOpens   *prometheus.CounterVec
	unitCloses  *prometheus.CounterVec
	openRetries *prometheus.CounterVec
	records     *prometheus.CounterVec
	degraded    prometheus.Counter
	openUnits   prometheus.Gauge
	reformatted prometheus.Counter
}

// New creates a collector and registers it with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		unitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "unit_opens_total",
			Help:      "Storage units opened, by backend and mode.",
		}, []string{"backend", "mode"}),
		unitCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "unit_closes_total",
			Help:      "Storage units closed, by backend.",
		}, []string{"backend"}),
		openRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "open_retries_total",
			Help:      "Unit open retries, by reason.",
		}, []string{"reason"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "records_total",
			Help:      "Records read or written through cursors.",
		}, []string{"op"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "decode_degraded_total",
			Help:      "Values decoded with lossy UTF-8 replacement.",
		}),
		openUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treekv",
			Name:      "open_units",
			Help:      "Units currently held open by cursors.",
		}),
		reformatted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treekv",
			Name:      "reformat_records_total",
			Help:      "Records copied by reformat runs.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.unitOpens, c.unitCloses, c.openRetries, c.records,
			c.degraded, c.openUnits, c.reformatted)
	}
	return c
}

// UnitOpened records a successful unit open.
func (c *Collector) UnitOpened(backend, mode string) {
	if c == nil {
		return
	}
	c.unitOpens.WithLabelValues(backend, mode).Inc()
	c.openUnits.Inc()
}

// UnitClosed records a unit close.
func (c *Collector) UnitClosed(backend string) {
	if c == nil {
		return
	}
	c.unitCloses.WithLabelValues(backend).Inc()
	c.openUnits.Dec()
}

// Retried records one retry of an open or registry reservation.
func (c *Collector) Retried(reason string) {
	if c == nil {
		return
	}
	c.openRetries.WithLabelValues(reason).Inc()
}

// RecordRead counts n decoded reads.
func (c *Collector) RecordRead(n int) {
	if c == nil {
		return
	}
	c.records.WithLabelValues("read").Add(float64(n))
}

// RecordWritten counts one write.
func (c *Collector) RecordWritten() {
	if c == nil {
		return
	}
	c.records.WithLabelValues("write").Inc()
}

// Degraded counts one lossy decode.
func (c *Collector) Degraded() {
	if c == nil {
		return
	}
	c.degraded.Inc()
}

// Reformatted counts one record copied by reformat.
func (c *Collector) Reformatted() {
	if c == nil {
		return
	}
	c.reformatted.Inc()
}

// Totals gathers g and sums every counter and gauge by family name.
func Totals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		totals[mf.GetName()] = familyTotal(mf)
	}
	return totals, nil
}

func familyTotal(mf *dto.MetricFamily) float64 {
	var sum float64
	for _, m := range mf.GetMetric() {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			sum += m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			sum += m.GetGauge().GetValue()
		}
	}
	return sum
}
