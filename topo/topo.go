// Package topo is the Topology Builder (spec.md §4.1): it consumes a
// group's placement description (distance levels, per-level pattern,
// radix/factor, my index, optional root) and produces an ordered list
// of abstract communication steps. It knows nothing about endpoints,
// transports, or datatypes — that belongs to the plan lowerer.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package topo

import (
	"fmt"

	"github.com/aistore-labs/ucg/types"
)

// RXDesc describes one step's receive side.
type RXDesc struct {
	Distance      types.Distance
	Count         int  // expected number of distinct peers to receive from
	StepIdx       uint8
	Leader        bool // this rank aggregates on behalf of the level (I6)
	FromEveryPeer bool // RX_FROM_EVERY_PEER: every one of Count peers must be heard from
	MsgSize       int
	Source        int // single expected source (tree parent, ring predecessor); with FromEveryPeer, -1 or the first of the sources
}

// TXDesc describes one step's send side.
type TXDesc struct {
	Distance types.Distance
	Dests    []int // absolute peer indices, destination order is significant for fragment/offset math
	StepIdx  uint8
	Leader   bool
	MsgSize  int
}

// Step is one abstract communication round. At least one of RX/TX is
// non-nil (I6: at most one of {RX,TX} may be "leader"; appendTX keeps
// this at construction time and Validate checks it).
type Step struct {
	RX           *RXDesc
	TX           *TXDesc
	LevelMembers []int // absolute peer indices participating at this distance (I5 bookkeeping, collective-transport wire-up)
}

// Descriptor is the ordered list of steps the builder produces for one
// group + collective-type + placement combination.
type Descriptor struct {
	Steps []Step
}

// Validate checks invariants I4 (non-decreasing step indices, checked
// independently for the RX subsequence and the TX subsequence), I5
// (no mixed intra/inter-host step) and I6 (at most one leader side per
// step), and I7 (fan-in/fan-out RX source is never the local rank,
// enforced by construction — callers should not pass rank into Source).
func (d *Descriptor) Validate(me int) error {
	var lastRX, lastTX uint8
	sawRX, sawTX := false, false
	for i, s := range d.Steps {
		if s.RX == nil && s.TX == nil {
			return fmt.Errorf("topo: step %d has neither RX nor TX", i)
		}
		if s.RX != nil && s.TX != nil && s.RX.Leader && s.TX.Leader {
			return fmt.Errorf("topo: step %d violates I6 (both RX and TX claim leadership)", i)
		}
		if s.RX != nil && s.TX != nil && s.RX.Distance.OutsideHost() != s.TX.Distance.OutsideHost() {
			return fmt.Errorf("topo: step %d violates I5 (mixes intra- and inter-host communication)", i)
		}
		if s.RX != nil {
			if sawRX && s.RX.StepIdx < lastRX {
				return fmt.Errorf("topo: step %d violates I4 on RX (step_idx %d < %d)", i, s.RX.StepIdx, lastRX)
			}
			if s.RX.StepIdx == 0 {
				return fmt.Errorf("topo: step %d has RX step_idx 0, reserved for \"no operation\"", i)
			}
			if !s.RX.FromEveryPeer && s.RX.Source == me {
				return fmt.Errorf("topo: step %d violates I7 (RX source is local rank)", i)
			}
			lastRX, sawRX = s.RX.StepIdx, true
		}
		if s.TX != nil {
			if sawTX && s.TX.StepIdx < lastTX {
				return fmt.Errorf("topo: step %d violates I4 on TX (step_idx %d < %d)", i, s.TX.StepIdx, lastTX)
			}
			if s.TX.StepIdx == 0 {
				return fmt.Errorf("topo: step %d has TX step_idx 0, reserved for \"no operation\"", i)
			}
			for _, d := range s.TX.Dests {
				if d == me {
					return fmt.Errorf("topo: step %d sends to local rank", i)
				}
			}
			lastTX, sawTX = s.TX.StepIdx, true
		}
	}
	return nil
}

// builder is the shared, mutable step-index allocator used while
// constructing a Descriptor. A new step is only appended when the
// rules in spec §4.1 "Step-index accounting" require one; otherwise a
// field is filled into the last step in place.
type builder struct {
	desc   Descriptor
	nextRX uint8
	nextTX uint8
	// overflowed latches once a step index would wrap past 255 (spec
	// §4.1's per-direction bit budget); Build() turns this into ExceedsLimit.
	overflowed bool
}

func newBuilder() *builder {
	// step_idx >= 1 (spec §9 fixes the source's overload of 0 as "free slot")
	return &builder{nextRX: 1, nextTX: 1}
}

func (b *builder) bumpRX() uint8 {
	if b.nextRX == 0 {
		b.overflowed = true
	}
	v := b.nextRX
	b.nextRX++
	return v
}

func (b *builder) bumpTX() uint8 {
	if b.nextTX == 0 {
		b.overflowed = true
	}
	v := b.nextTX
	b.nextTX++
	return v
}

// appendRX opens a new step (or reuses the last one, if it has neither
// an RX nor a TX side yet) and fills in its RX side. An RX is never
// added to a step that already has a TX.
func (b *builder) appendRX(rx RXDesc, levelMembers []int) *Step {
	n := len(b.desc.Steps)
	if n > 0 {
		last := &b.desc.Steps[n-1]
		// Per level this builder only ever constructs one RX burst and one TX
		// burst (never peer-by-peer), so a prior step missing both sides can't
		// happen in practice; the check is kept for I5/I6 defense in depth.
		if last.RX == nil && last.TX == nil {
			last.RX = &rx
			last.RX.StepIdx = b.bumpRX()
			if len(last.LevelMembers) == 0 {
				last.LevelMembers = levelMembers
			}
			return last
		}
	}
	rx.StepIdx = b.bumpRX()
	b.desc.Steps = append(b.desc.Steps, Step{RX: &rx, LevelMembers: levelMembers})
	return &b.desc.Steps[len(b.desc.Steps)-1]
}

// appendTX appends the TX side to the last step if it is the matching
// RX-only step just opened (the common "RX then TX" shape from spec
// §4.1) and the two sides would not both be leaders, otherwise opens a
// new step.
func (b *builder) appendTX(tx TXDesc, levelMembers []int) *Step {
	n := len(b.desc.Steps)
	if n > 0 {
		last := &b.desc.Steps[n-1]
		if last.TX == nil && last.RX != nil && last.RX.Distance == tx.Distance && !(last.RX.Leader && tx.Leader) {
			last.TX = &tx
			last.TX.StepIdx = b.bumpTX()
			return last
		}
	}
	tx.StepIdx = b.bumpTX()
	b.desc.Steps = append(b.desc.Steps, Step{TX: &tx, LevelMembers: levelMembers})
	return &b.desc.Steps[len(b.desc.Steps)-1]
}
