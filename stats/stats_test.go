package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewCollectorsRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.PhaseExecuted()
	c.PhaseExecuted()
	c.ResendScheduled()
	c.CacheHit()
	c.SetSlotsOccupied(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				found[mf.GetName()] = m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				found[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	if found["ucg_phases_executed_total"] != 2 {
		t.Fatalf("phases_executed_total = %v, want 2", found["ucg_phases_executed_total"])
	}
	if found["ucg_rx_slots_occupied"] != 3 {
		t.Fatalf("rx_slots_occupied = %v, want 3", found["ucg_rx_slots_occupied"])
	}
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	c.PhaseExecuted()
	c.ResendScheduled()
	c.ResendRecovered()
	c.CacheHit()
	c.CacheMiss()
	c.CacheEviction()
	c.SetSlotsOccupied(1)
	c.EarlyArrival()
}
