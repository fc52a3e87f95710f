// Package introspect renders a lowered plan as human-readable text or
// JSON, the way ucg_over_ucp_plan_print and the ucx_info CLI describe
// a plan/group from the command line
// (_examples/original_source/src/ucg/over_ucp/over_ucp_print.c,
// .../src/tools/info/group_info.c). It only knows about plain value
// types so it can stay a leaf package: the ucg package builds a
// PlanView/GroupView snapshot from its own Plan/Group and hands it
// here, rather than this package importing ucg back.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package introspect

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/aistore-labs/ucg/types"
)

// PhaseView is the read-only projection of one plan phase that
// Describe needs; field names track ucg.Phase.
type PhaseView struct {
	RXStepIdx   uint8
	TXStepIdx   uint8
	ExpectsRX   bool
	RXFromEvery bool
	RXCount     int
	Dests       []int
	SendMethod  types.SendMethod
	MsgSize     int
	LastStep    bool
}

// PlanView is the read-only projection of a lowered plan.
type PlanView struct {
	Phases   []PhaseView `json:"phases"`
	Flags    int         `json:"flags"`
	Me       int         `json:"me"`
	Datatype types.DatatypeKind `json:"datatype"`
	Operator types.Operator     `json:"operator"`
}

// GroupView is the read-only projection of a group's identity, the
// part group_info.c's dummy topology dump prints before the plan
// itself.
type GroupView struct {
	ID   uint32 `json:"id"`
	Size int    `json:"size"`
	Me   int    `json:"me"`
}

// DescribeText renders g/p the way ucg_over_ucp_plan_print does: a
// planner header followed by one paragraph per phase.
func DescribeText(g GroupView, p PlanView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group:    id=%d size=%d me=%d\n", g.ID, g.Size, g.Me)
	fmt.Fprintf(&b, "Datatype: %v  Operator: %v\n", p.Datatype, p.Operator)
	fmt.Fprintf(&b, "Phases:   %d\n\n", len(p.Phases))

	for i, ph := range p.Phases {
		fmt.Fprintf(&b, "Phase #%d ", i)
		if ph.ExpectsRX {
			fmt.Fprintf(&b, "(rx_idx: %d) ", ph.RXStepIdx)
		}
		if len(ph.Dests) > 0 {
			fmt.Fprintf(&b, "(tx_idx: %d) ", ph.TXStepIdx)
		}
		switch {
		case ph.ExpectsRX && len(ph.Dests) > 0:
			fmt.Fprintf(&b, ": %d incoming messages, then sends to %v", rxCount(ph), ph.Dests)
		case len(ph.Dests) > 0:
			fmt.Fprintf(&b, ": sends to %v (method %v)", ph.Dests, ph.SendMethod)
		default:
			fmt.Fprintf(&b, ": %d incoming messages (no peer information)", rxCount(ph))
		}
		if ph.LastStep {
			b.WriteString(" [last]")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func rxCount(ph PhaseView) int {
	if ph.RXFromEvery {
		return ph.RXCount
	}
	return 1
}

// DescribeJSON renders the same information as structured JSON, via
// jsoniter (the same codec config uses in this module).
func DescribeJSON(g GroupView, p PlanView) ([]byte, error) {
	doc := struct {
		Group GroupView `json:"group"`
		Plan  PlanView  `json:"plan"`
	}{Group: g, Plan: p}
	return jsoniter.MarshalIndent(doc, "", "  ")
}
