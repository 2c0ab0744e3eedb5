package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.UnitOpened("bolt", "w")
	c.UnitClosed("bolt")
	c.Retried(ReasonLocked)
	c.RecordRead(3)
	c.RecordWritten()
	c.Degraded()
	c.Reformatted()
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.UnitOpened("bolt", "W")
	c.UnitOpened("bolt", "W")
	c.UnitClosed("bolt")
	c.Retried(ReasonLocked)
	c.RecordRead(4)
	c.RecordWritten()

	got, err := Totals(reg)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}

	want := map[string]float64{
		"treekv_unit_opens_total":   2,
		"treekv_unit_closes_total":  1,
		"treekv_open_retries_total": 1,
		"treekv_records_total":      5,
		"treekv_open_units":         1,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}
