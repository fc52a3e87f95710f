/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"context"

	"github.com/aistore-labs/ucg/types"
	"github.com/aistore-labs/ucg/wire"
)

// trigger starts a new Operation for plan in the slot coll_id selects
// (invariant I11), replays any messages that arrived before the
// operation existed, and drives the first round of progress
// synchronously (spec §4.4 "trigger").
func (g *Group) trigger(plan *Plan, collID uint8, req interface{}, buf []byte) (*Operation, types.Status) {
	s := g.slots.get(collID)

	s.mu.Lock()
	if s.occupied {
		s.mu.Unlock()
		return nil, types.NoResource
	}
	op := &Operation{
		plan:   plan,
		collID: collID,
		req:    req,
		buf:    buf,
		status: types.InProgress,
		slot:   s,
	}
	s.op = op
	s.occupied = true
	pending := s.buffered
	s.buffered = nil
	s.mu.Unlock()

	g.stats.SetSlotsOccupied(g.slots.occupiedCount())

	for _, bm := range pending {
		if op.matches(bm.header) {
			g.recv(op, bm.header, bm.payload)
		} else {
			s.mu.Lock()
			s.buffered = append(s.buffered, bm)
			s.mu.Unlock()
		}
	}

	op.mu.Lock()
	status, done := g.progressLocked(op)
	op.mu.Unlock()
	if done {
		g.completeOp(op, status)
	} else {
		g.drainBuffered(op)
	}
	return op, op.Status()
}

// progress re-enters the phase-advance loop for op, e.g. from the
// resend timer once a stalled send succeeds.
func (g *Group) progress(op *Operation) types.Status {
	op.mu.Lock()
	status, done := g.progressLocked(op)
	op.mu.Unlock()
	if done {
		g.completeOp(op, status)
	}
	return status
}

// progressLocked drives op forward one or more phases; the caller
// must hold op.mu. It returns the operation's current status and
// whether the operation has reached a terminal state.
func (g *Group) progressLocked(op *Operation) (types.Status, bool) {
	for {
		if op.phaseIdx >= len(op.plan.Phases) {
			op.status = types.OK
			return types.OK, true
		}
		ph := op.phase()

		if !op.txDone {
			status := g.sendPhase(op, ph)
			switch status {
			case types.OK:
				op.txDone = true
			case types.NoResource:
				op.status = types.InProgress
				return types.NoResource, false
			default:
				op.status = status
				return status, true
			}
		}

		required := requiredCompletions(ph)
		if ph.ExpectsRX && op.compCount < required {
			op.status = types.InProgress
			return types.InProgress, false
		}

		g.stats.PhaseExecuted()
		op.phaseIdx++
		op.compCount = 0
		op.txDone = false
		op.pendingDests = nil
	}
}

// requiredCompletions is the number of RX deliveries a phase needs
// before its completion criteria (spec §4.2 step 5) is satisfied.
func requiredCompletions(ph *Phase) int {
	if !ph.ExpectsRX {
		return 0
	}
	if ph.RXFromEvery && ph.RXCount > 0 {
		return ph.RXCount
	}
	return 1
}

// sendPhase attempts to deliver ph's TX side to every destination not
// yet acknowledged, returning NO_RESOURCE (and leaving the remainder
// in op.pendingDests for the resend service) on the first transient
// stall.
func (g *Group) sendPhase(op *Operation, ph *Phase) types.Status {
	if len(ph.Dests) == 0 {
		return types.OK
	}
	if op.pendingDests == nil {
		op.pendingDests = append([]int(nil), ph.Dests...)
	}

	hdrBuf := make([]byte, wire.HeaderSize)
	payload := op.buf
	if ph.MsgSize > 0 && len(payload) > ph.MsgSize {
		payload = payload[:ph.MsgSize]
	}

	for len(op.pendingDests) > 0 {
		dest := op.pendingDests[0]
		addr, err := g.endpoint(dest)
		if err != nil {
			return types.Unreachable
		}
		wire.Encode(hdrBuf, wire.Header{
			GroupID: uint16(g.id),
			CollID:  op.collID,
			StepIdx: ph.TXStepIdx,
		})
		status := g.transport.Send(context.Background(), addr, hdrBuf, payload)
		switch status {
		case types.OK:
			op.pendingDests = op.pendingDests[1:]
		case types.NoResource:
			g.stats.ResendScheduled()
			g.resend.schedule(op, g.resendTick)
			return types.NoResource
		default:
			return status
		}
	}
	return types.OK
}

// resendTick is the resendList's retry callback: re-attempt op's
// stalled phase and drop it from the resend list once it's no longer
// NO_RESOURCE (spec §4.6).
func (g *Group) resendTick(op *Operation) {
	op.mu.Lock()
	status, done := g.progressLocked(op)
	op.mu.Unlock()

	if status != types.NoResource {
		g.stats.ResendRecovered()
		g.resend.cancel(op)
	}
	if done {
		g.completeOp(op, status)
	} else if status != types.NoResource {
		g.drainBuffered(op)
	}
}

// recv applies an arrived fragment to op's current phase and resumes
// progress (spec §4.4 "recv"). Callers must have already confirmed
// op.matches(hdr).
func (g *Group) recv(op *Operation, hdr wire.Header, payload []byte) {
	op.mu.Lock()
	ph := op.phase()
	applyCompletion(ph, op, hdr, payload)
	op.compCount++
	status, done := g.progressLocked(op)
	op.mu.Unlock()

	if done {
		g.completeOp(op, status)
	} else {
		g.drainBuffered(op)
	}
}

// applyCompletion folds one arrived fragment into op's receive buffer
// per the phase's completion-aggregation mode (spec §4.2 step 5).
func applyCompletion(ph *Phase, op *Operation, hdr wire.Header, payload []byte) {
	if op.buf == nil || len(payload) == 0 {
		return
	}
	switch ph.CompAgg {
	case CompReduceInternal:
		if ph.ReduceCB == nil {
			return
		}
		elemSize := op.plan.Datatype.ElementSize()
		if elemSize == 0 {
			elemSize = 1
		}
		count := len(payload) / elemSize
		if count*elemSize > len(op.buf) {
			count = len(op.buf) / elemSize
		}
		if count > 0 {
			ph.ReduceCB(op.buf, payload[:count*elemSize], count)
		}
	case CompWriteWithOffset:
		off := int(hdr.RemoteOffset)
		if off >= 0 && off+len(payload) <= len(op.buf) {
			copy(op.buf[off:], payload)
		}
	default:
		n := len(payload)
		if n > len(op.buf) {
			n = len(op.buf)
		}
		copy(op.buf[:n], payload[:n])
	}
}

// completeOp releases op's slot and resend-list membership and
// delivers the terminal status to the application (spec §4.4
// "finish"). Must be called without op.mu held.
func (g *Group) completeOp(op *Operation, status types.Status) {
	s := op.slot
	s.mu.Lock()
	s.op = nil
	s.occupied = false
	s.mu.Unlock()

	g.resend.cancel(op)
	g.stats.SetSlotsOccupied(g.slots.occupiedCount())
	g.completion.OnComplete(op.req, status)
}

// drainBuffered replays any early-arrived messages on op's slot that
// now match op's (possibly advanced) phase.
func (g *Group) drainBuffered(op *Operation) {
	s := op.slot
	for {
		s.mu.Lock()
		idx := -1
		for i, bm := range s.buffered {
			if op.matches(bm.header) {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.mu.Unlock()
			return
		}
		bm := s.buffered[idx]
		s.buffered = append(s.buffered[:idx], s.buffered[idx+1:]...)
		s.mu.Unlock()
		g.recv(op, bm.header, bm.payload)
	}
}

// dispatchIncoming routes one wire message to the matching
// operation's slot, buffering it for later if no running operation
// wants it yet (spec §4.5 "RX Slot Ring / Early-Arrival Queue").
func (g *Group) dispatchIncoming(header, payload []byte) {
	hdr := wire.Decode(header)
	s := g.slots.get(hdr.CollID)

	s.mu.Lock()
	op := s.op
	if op != nil && op.matches(hdr) {
		s.mu.Unlock()
		g.recv(op, hdr, payload)
		return
	}
	buf := append([]byte(nil), payload...)
	s.buffered = append(s.buffered, bufferedMsg{header: hdr, payload: buf})
	s.mu.Unlock()
	g.stats.EarlyArrival()
}
