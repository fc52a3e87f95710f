package introspect

import (
	"strings"
	"testing"

	"github.com/aistore-labs/ucg/types"
)

func TestDescribeTextIncludesPhasesAndDestinations(t *testing.T) {
	g := GroupView{ID: 1, Size: 4, Me: 0}
	p := PlanView{
		Me:       0,
		Datatype: types.DTUint32,
		Operator: types.OpSum,
		Phases: []PhaseView{
			{TXStepIdx: 1, Dests: []int{1, 2, 3}, SendMethod: types.SendShort},
			{RXStepIdx: 2, ExpectsRX: true, RXFromEvery: true, RXCount: 3, LastStep: true},
		},
	}
	out := DescribeText(g, p)
	if !strings.Contains(out, "Phases:   2") {
		t.Fatalf("expected phase count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "sends to [1 2 3]") {
		t.Fatalf("expected destination list in output, got:\n%s", out)
	}
	if !strings.Contains(out, "3 incoming messages") {
		t.Fatalf("expected rx count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "[last]") {
		t.Fatalf("expected last-step marker, got:\n%s", out)
	}
}

func TestDescribeJSONIncludesGroupID(t *testing.T) {
	g := GroupView{ID: 7, Size: 2, Me: 1}
	p := PlanView{Phases: []PhaseView{{ExpectsRX: true, RXCount: 1}}}
	raw, err := DescribeJSON(g, p)
	if err != nil {
		t.Fatalf("DescribeJSON: %v", err)
	}
	if !strings.Contains(string(raw), `"id": 7`) {
		t.Fatalf("expected group id in JSON, got: %s", raw)
	}
}
