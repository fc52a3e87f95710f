/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"sync"

	"github.com/aistore-labs/ucg/types"
	"github.com/aistore-labs/ucg/wire"
)

// bufferedMsg is an early-arrived message parked on a slot's ring
// because it didn't match the running operation's current phase yet
// (spec §4.5).
type bufferedMsg struct {
	header  wire.Header
	payload []byte
}

// slot owns at most one running Operation plus a ring of messages
// whose (coll_id, step_idx) hasn't been consumed yet (spec §3
// "Slot").
type slot struct {
	mu       sync.Mutex
	op       *Operation
	occupied bool
	buffered []bufferedMsg
}

// slotRing is the group's fixed array of concurrent-operation slots
// (spec §3 "Slot", invariant I11: slot = coll_id mod slot-count).
type slotRing struct {
	slots []*slot
}

func newSlotRing(n int) *slotRing {
	s := make([]*slot, n)
	for i := range s {
		s[i] = &slot{}
	}
	return &slotRing{slots: s}
}

func (r *slotRing) get(collID uint8) *slot {
	return r.slots[int(collID)%len(r.slots)]
}

func (r *slotRing) occupiedCount() int {
	n := 0
	for _, s := range r.slots {
		s.mu.Lock()
		if s.occupied {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Operation is one running plan instance (spec §3 "Operation"). mu
// serializes every state transition (trigger/progress/recv/tick); the
// single-threaded-per-worker model spec §5 describes is rendered here
// as "one goroutine holds op.mu at a time" rather than a literal
// non-reentrant assumption.
type Operation struct {
	mu sync.Mutex

	plan      *Plan
	phaseIdx  int
	compCount int
	status    types.Status
	req       interface{}
	buf       []byte
	collID    uint8

	pendingDests []int // destinations of the current phase not yet sent
	txDone       bool  // current phase's sends have all succeeded

	slot *slot

	resendPrev, resendNext *Operation // intrusive resend-list membership
	inResend               bool
}

func (op *Operation) phase() *Phase { return op.plan.Phases[op.phaseIdx] }

// matches reports whether hdr is the message this operation's current
// phase is waiting for.
func (op *Operation) matches(hdr wire.Header) bool {
	ph := op.phase()
	if !ph.ExpectsRX {
		return false
	}
	return wire.PackLocalID(ph.RXStepIdx, op.collID) == hdr.LocalID()
}

// Status returns the operation's current/terminal status
// (collective_check_status, spec §6).
func (op *Operation) Status() types.Status {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}
