/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import "github.com/aistore-labs/ucg/introspect"

func (p *Plan) view() introspect.PlanView {
	v := introspect.PlanView{
		Me:       p.me,
		Flags:    int(p.Flags),
		Datatype: p.Datatype,
		Operator: p.Operator,
	}
	for _, ph := range p.Phases {
		v.Phases = append(v.Phases, introspect.PhaseView{
			RXStepIdx:   ph.RXStepIdx,
			TXStepIdx:   ph.TXStepIdx,
			ExpectsRX:   ph.ExpectsRX,
			RXFromEvery: ph.RXFromEvery,
			RXCount:     ph.RXCount,
			Dests:       ph.Dests,
			SendMethod:  ph.SendMethod,
			MsgSize:     ph.MsgSize,
			LastStep:    ph.LastStep,
		})
	}
	return v
}

func (g *Group) view() introspect.GroupView {
	return introspect.GroupView{ID: g.id, Size: g.size, Me: g.me}
}

// Describe renders plan bound to g as human-readable text (spec §6's
// "describe" introspection surface, grounded on the over_ucp plan
// printer).
func (g *Group) Describe(plan *Plan) string {
	return introspect.DescribeText(g.view(), plan.view())
}

// DescribeJSON is Describe's structured-output counterpart.
func (g *Group) DescribeJSON(plan *Plan) ([]byte, error) {
	return introspect.DescribeJSON(g.view(), plan.view())
}
