/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"github.com/pkg/errors"

	"github.com/aistore-labs/ucg/cache"
	"github.com/aistore-labs/ucg/config"
	"github.com/aistore-labs/ucg/reduce"
	"github.com/aistore-labs/ucg/topo"
	"github.com/aistore-labs/ucg/types"
)

// ModPersistent is the Modifiers bit spec §4.3 calls the PERSISTENT
// modifier; the low 8 bits of Modifiers are the cache-bucket hash
// input (spec §4.3's "insertion-hashed by the low 8 bits of the
// caller-computed modifiers mask").
const ModPersistent uint32 = 1 << 31

// CollParams are the per-invocation parameters that select and key a
// plan (spec §3 "Plan", §4.3 "Plan Cache").
type CollParams struct {
	Type      types.CollType
	Root      int
	Datatype  types.DatatypeKind
	Operator  types.Operator
	Count     int // element count of one member's contribution
	Modifiers uint32
}

// cacheKey truncates params to the 64-byte cache line spec §4.3
// describes, zero-padded. This is a value-type snapshot, not a
// pointer, so later mutation of params (there isn't any, CollParams is
// passed by value everywhere) can't invalidate a cached key.
func cacheKeyFor(groupID uint32, p CollParams) cache.Key {
	var k cache.Key
	k[0] = byte(p.Type)
	k[1] = byte(p.Datatype)
	k[2] = byte(p.Operator)
	k[3] = byte(p.Modifiers)
	putU32(k[4:8], uint32(p.Root))
	putU32(k[8:12], uint32(p.Count))
	putU32(k[12:16], groupID)
	return k
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// lower walks a topology descriptor (spec §4.2 "Plan Lowerer") and
// produces a Plan bound to g's endpoints.
func (g *Group) lower(desc *topo.Descriptor, p CollParams) (*Plan, error) {
	plan := &Plan{
		group:    g,
		me:       g.me,
		Datatype: p.Datatype,
		Operator: p.Operator,
	}
	if p.Type == types.CollBarrier {
		plan.Flags |= FlagBarrier
	}
	if p.Modifiers&ModPersistent != 0 {
		plan.Flags |= FlagPersistent
	}

	elemSize := p.Datatype.ElementSize()
	if elemSize == 0 {
		elemSize = 1
	}
	msgSize := p.Count * elemSize

	for i, step := range desc.Steps {
		ph := &Phase{LastStep: i == len(desc.Steps)-1}
		if step.RX != nil {
			ph.RXStepIdx = step.RX.StepIdx
			ph.ExpectsRX = true
			ph.RXFromEvery = step.RX.FromEveryPeer
			ph.RXCount = step.RX.Count
			ph.RXSource = step.RX.Source
			ph.RXLeader = step.RX.Leader
			ph.MsgSize = step.RX.MsgSize
			if ph.MsgSize == 0 {
				ph.MsgSize = msgSize
			}
		}
		if step.TX != nil {
			ph.TXStepIdx = step.TX.StepIdx
			dests := make([]int, 0, len(step.TX.Dests))
			for _, peer := range step.TX.Dests {
				if _, err := g.endpoint(peer); err != nil {
					return nil, errors.Wrapf(err, "lowering step for peer %d", peer)
				}
				dests = append(dests, peer)
			}
			ph.Dests = dests
			ph.TXLeader = step.TX.Leader
			if ph.MsgSize == 0 {
				ph.MsgSize = step.TX.MsgSize
			}
			if ph.MsgSize == 0 {
				ph.MsgSize = msgSize
			}
		}

		ph.SendMethod, ph.FragLen = chooseSendMethod(ph.MsgSize, elemSize, g.cfg)
		setCompletionParams(ph, p, elemSize)
		if ph.RXLeader && ph.RXFromEvery && p.Operator != types.OpNop {
			if cb, ok := reduce.Choose(p.Operator, p.Datatype); ok {
				ph.ReduceCB = cb
				ph.CompAgg = CompReduceInternal
			} else {
				ph.CompAgg = CompReduceExternal
			}
		}

		plan.Phases = append(plan.Phases, ph)
		if step.TX != nil && len(step.TX.Dests) > plan.maxFragCount {
			plan.maxFragCount = len(step.TX.Dests)
		}
	}

	if len(plan.Phases) > 0 {
		plan.Phases[len(plan.Phases)-1].LastStep = true
	}
	return plan, nil
}

// chooseSendMethod picks a send method and fragment length from
// message size vs. the configured thresholds (spec §4.2 step 2's
// length-vs-transport-limit table, with this implementation's
// transport-attribute stand-ins taken from config.Config rather than a
// live transport query, since the mock/real transport doesn't expose
// one).
func chooseSendMethod(msgSize, elemSize int, cfg config.Config) (types.SendMethod, int) {
	const maxShort = 256
	maxBcopy := cfg.ZcopyTotalThresh
	const maxZcopy = 1 << 24

	switch {
	case msgSize <= maxShort:
		return types.SendShort, 0
	case msgSize <= maxBcopy:
		return types.SendBcopy, 0
	case msgSize <= maxZcopy:
		return types.SendZcopy, 0
	default:
		frag := maxZcopy - (maxZcopy % elemSize)
		return types.SendZcopy, frag
	}
}

// setCompletionParams fills in CompAgg/CompCriteria/CompAction per the
// table in spec §4.2 step 5, before the reduce-callback selection
// (which may override CompAgg to CompReduceInternal/External) runs.
func setCompletionParams(ph *Phase, p CollParams, elemSize int) {
	switch {
	case p.Type == types.CollBarrier || ph.MsgSize == 0:
		ph.CompAgg = CompNop
	case ph.SendMethod == types.SendPutZcopy || ph.SendMethod == types.SendGetZcopy:
		ph.CompAgg = CompRemoteKey
	case ph.FragLen > 0:
		ph.CompAgg = CompWriteWithOffset
	default:
		ph.CompAgg = CompWriteNoOffset
	}

	fragCount := 1
	if ph.FragLen > 0 && ph.MsgSize > 0 {
		fragCount = (ph.MsgSize + ph.FragLen - 1) / ph.FragLen
	}
	switch {
	case fragCount == 1 && ph.FragLen == 0:
		ph.CompCriteria = CriteriaSingleMessage
	case ph.SendMethod == types.SendZcopy || ph.SendMethod == types.SendPutZcopy || ph.SendMethod == types.SendGetZcopy:
		ph.CompCriteria = CriteriaMultipleMessagesZcopy
	default:
		ph.CompCriteria = CriteriaMultipleMessages
	}

	ph.CompAction = ActionStep
	if ph.LastStep {
		ph.CompAction |= ActionOp
	}
}
