// Package stats exposes the engine's runtime counters/gauges via
// Prometheus, replacing the teacher's bespoke StatsD-style runner
// (_examples/rajatrh-aistore/stats/xaction_stats.go) with
// github.com/prometheus/client_golang, the instrumentation library
// the rest of the example pack standardizes on for this concern.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package stats

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the executor and cache touch. A
// nil *Collectors is valid and turns every recording method into a
// no-op, so callers don't need a feature flag to disable metrics.
type Collectors struct {
	PhasesExecuted prometheus.Counter
	ResendsScheduled prometheus.Counter
	ResendsRecovered prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	SlotsOccupied  prometheus.Gauge
	EarlyArrivals  prometheus.Counter
}

// NewCollectors registers a fresh set of collectors with reg (pass a
// *prometheus.Registry, or prometheus.DefaultRegisterer to publish on
// the default /metrics endpoint).
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		PhasesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "phases_executed_total",
			Help: "Number of plan phases the executor has advanced through.",
		}),
		ResendsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "resends_scheduled_total",
			Help: "Number of times an operation was added to the resend list after NO_RESOURCE.",
		}),
		ResendsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "resends_recovered_total",
			Help: "Number of resend-list entries that completed their stalled send.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "plan_cache_hits_total",
			Help: "Plan cache lookups that found a cached plan.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "plan_cache_misses_total",
			Help: "Plan cache lookups that required lowering a new plan.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "plan_cache_evictions_total",
			Help: "Non-persistent plans discarded to stay within the cache's configured limit.",
		}),
		SlotsOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ucg", Name: "rx_slots_occupied",
			Help: "Number of RX slots currently holding a running operation.",
		}),
		EarlyArrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ucg", Name: "early_arrivals_total",
			Help: "Messages buffered because they arrived before the matching operation started.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.PhasesExecuted, c.ResendsScheduled, c.ResendsRecovered,
			c.CacheHits, c.CacheMisses, c.CacheEvictions,
			c.SlotsOccupied, c.EarlyArrivals,
		)
	}
	return c
}

func (c *Collectors) incPhasesExecuted() {
	if c != nil {
		c.PhasesExecuted.Inc()
	}
}

// PhaseExecuted records one phase advance. Safe to call on a nil
// receiver.
func (c *Collectors) PhaseExecuted() { c.incPhasesExecuted() }

// ResendScheduled records an operation entering the resend list.
func (c *Collectors) ResendScheduled() {
	if c != nil {
		c.ResendsScheduled.Inc()
	}
}

// ResendRecovered records an operation leaving the resend list
// because its stalled send finally went through.
func (c *Collectors) ResendRecovered() {
	if c != nil {
		c.ResendsRecovered.Inc()
	}
}

// CacheHit/CacheMiss/CacheEviction record plan-cache outcomes.
func (c *Collectors) CacheHit() {
	if c != nil {
		c.CacheHits.Inc()
	}
}
func (c *Collectors) CacheMiss() {
	if c != nil {
		c.CacheMisses.Inc()
	}
}
func (c *Collectors) CacheEviction() {
	if c != nil {
		c.CacheEvictions.Inc()
	}
}

// SetSlotsOccupied updates the RX slot occupancy gauge.
func (c *Collectors) SetSlotsOccupied(n int) {
	if c != nil {
		c.SlotsOccupied.Set(float64(n))
	}
}

// EarlyArrival records one message buffered ahead of its operation.
func (c *Collectors) EarlyArrival() {
	if c != nil {
		c.EarlyArrivals.Inc()
	}
}
