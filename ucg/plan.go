/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"fmt"
	"strings"

	"github.com/aistore-labs/ucg/cache"
	"github.com/aistore-labs/ucg/reduce"
	"github.com/aistore-labs/ucg/types"
)

// CompAgg is how a phase's RX side aggregates an arriving fragment
// into the receive buffer (spec §4.2 step 5).
type CompAgg int

const (
	CompNop CompAgg = iota
	CompRemoteKey
	CompReduceInternal
	CompReduceExternal
	CompPipeline
	CompWriteNoOffset
	CompWriteWithOffset
)

// CompCriteria decides when a phase's completion counter should be
// considered satisfied.
type CompCriteria int

const (
	CriteriaSingleMessage CompCriteria = iota
	CriteriaMultipleMessages
	CriteriaMultipleMessagesZcopy
)

// CompAction is the bitmask of what happens once completion fires.
type CompAction int

const (
	ActionStep CompAction = 1 << iota
	ActionOp
	ActionSend
)

// Phase is one physical communication step bound to concrete
// endpoints (spec §3 "Phase").
type Phase struct {
	// RXStepIdx is the step index this phase expects on incoming
	// messages; TXStepIdx is the step index packed into this phase's
	// own outgoing headers. The topology builder advances these on
	// independent counters (spec §4.1), so a phase merging both an RX
	// and a TX burst can legitimately carry two different values.
	RXStepIdx uint8
	TXStepIdx uint8

	ExpectsRX     bool
	RXFromEvery   bool
	RXCount       int
	RXSource      int // -1 when RXFromEvery
	RXLeader      bool

	Dests    []int // resolved destination peer indices
	TXLeader bool

	SendMethod types.SendMethod
	FragLen    int // 0 means "not fragmented"
	MsgSize    int

	CompAgg      CompAgg
	CompCriteria CompCriteria
	CompAction   CompAction

	ReduceCB reduce.Callback // non-nil when CompAgg == CompReduceInternal

	LastStep bool
}

func (p *Phase) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rx_step=%d tx_step=%d", p.RXStepIdx, p.TXStepIdx)
	if p.ExpectsRX {
		fmt.Fprintf(&b, " rx(count=%d every=%v leader=%v)", p.RXCount, p.RXFromEvery, p.RXLeader)
	}
	if len(p.Dests) > 0 {
		fmt.Fprintf(&b, " tx(dests=%v method=%v leader=%v)", p.Dests, p.SendMethod, p.TXLeader)
	}
	if p.LastStep {
		b.WriteString(" last")
	}
	return b.String()
}

// PlanFlags are the operation-wide flags spec §3 "Plan" lists.
type PlanFlags int

const (
	FlagBarrier PlanFlags = 1 << iota
	FlagPipelined
	FlagAsyncCompletePossible
	FlagPersistent
)

// Plan is a cached, immutable (after creation) lowering of a topology
// descriptor for one collective type + group + datatype/operator
// combination (spec §3 "Plan").
type Plan struct {
	Phases []*Phase
	Flags  PlanFlags

	group *Group // non-owning: Plan does not keep the group alive
	me    int

	Datatype types.DatatypeKind
	Operator types.Operator

	maxFragCount int

	cacheKey cache.Key // this plan's own cache.Cache key, for CollectiveDestroy
}

func (p *Plan) String() string {
	lines := make([]string, 0, len(p.Phases)+1)
	lines = append(lines, fmt.Sprintf("plan(me=%d phases=%d flags=%d)", p.me, len(p.Phases), p.Flags))
	for _, ph := range p.Phases {
		lines = append(lines, "  "+ph.String())
	}
	return strings.Join(lines, "\n")
}

// IsPersistent reports whether the plan was created with the
// PERSISTENT modifier and is therefore immune to cache eviction (spec
// §4.3).
func (p *Plan) IsPersistent() bool { return p.Flags&FlagPersistent != 0 }
