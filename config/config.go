// Package config holds the environment-configurable knobs spec §6
// lists under "Environment-configurable knobs", following the
// teacher's global-config-owner pattern (cmn.GCO.Get()/.Clone() in
// _examples/rajatrh-aistore/reb/bcast.go and .../reb/global.go): a
// single atomically-swappable Config, loaded once at startup and read
// by value thereafter so a concurrent reload never tears an in-flight
// read.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package config

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config mirrors the knobs spec §6 calls out. Its JSON field names are
// the lower-case knob names without the OVER_UCT_ prefix of the
// environment variables FromEnv reads.
type Config struct {
	IncastMemberThresh   int           `json:"incast_member_thresh"`
	BcastMemberThresh    int           `json:"bcast_member_thresh"`
	ZcopyTotalThresh     int           `json:"zcopy_total_thresh"`
	ResendTimerTick      time.Duration `json:"resend_timer_tick"`
	VolatileDatatypes    bool          `json:"volatile_datatypes"`
	TreeRadix            int           `json:"tree_radix"`
	RecursiveFactor      int           `json:"recursive_factor"`
	MultirootThresh      int           `json:"multiroot_thresh"`
	PlanCacheSize        int           `json:"plan_cache_size"`
}

// Default returns the spec's documented defaults (§6 "Environment-
// configurable knobs").
func Default() Config {
	return Config{
		IncastMemberThresh: 5,
		BcastMemberThresh:  5,
		ZcopyTotalThresh:   8 << 10,
		ResendTimerTick:    100 * time.Millisecond,
		VolatileDatatypes:  false,
		TreeRadix:          2,
		RecursiveFactor:    2,
		MultirootThresh:    4,
		PlanCacheSize:      64,
	}
}

// FromEnv overlays OVER_UCT_*-prefixed environment variables onto base
// and returns the result, leaving base untouched. Unset variables, and
// integer variables that do not parse, keep base's existing value;
// OVER_UCT_VOLATILE_DATATYPES, when set, is true for "1" or "true" and
// false for any other value.
func FromEnv(base Config) Config {
	c := base
	if v, ok := getenvInt("OVER_UCT_INCAST_MEMBER_THRESH"); ok {
		c.IncastMemberThresh = v
	}
	if v, ok := getenvInt("OVER_UCT_BCAST_MEMBER_THRESH"); ok {
		c.BcastMemberThresh = v
	}
	if v, ok := getenvInt("OVER_UCT_ZCOPY_TOTAL_THRESH"); ok {
		c.ZcopyTotalThresh = v
	}
	if v, ok := getenvInt("OVER_UCT_RESEND_TIMER_TICK_MS"); ok {
		c.ResendTimerTick = time.Duration(v) * time.Millisecond
	}
	if v, ok := os.LookupEnv("OVER_UCT_VOLATILE_DATATYPES"); ok {
		c.VolatileDatatypes = v == "1" || v == "true"
	}
	return c
}

func getenvInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Marshal renders c as JSON via jsoniter, matching the codec the rest
// of the pack standardizes on (cmn.ActionMsg and friends in
// _examples/rajatrh-aistore/cmn/api.go).
func (c Config) Marshal() ([]byte, error) {
	return jsoniter.Marshal(c)
}

// owner is the atomically-swappable global config, mirroring
// cmn.GCO's role in the teacher (reb/bcast.go: cmn.GCO.Get()).
type owner struct {
	v atomic.Value
}

// GCO is the process-wide config owner. It starts holding Default().
var GCO = newOwner()

func newOwner() *owner {
	o := &owner{}
	o.v.Store(Default())
	return o
}

// Get returns the current config by value.
func (o *owner) Get() Config { return o.v.Load().(Config) }

// Put installs c as the current config.
func (o *owner) Put(c Config) { o.v.Store(c) }
