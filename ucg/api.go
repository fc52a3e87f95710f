/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aistore-labs/ucg/topo"
	"github.com/aistore-labs/ucg/types"
)

// nextCollID is a per-group monotonically increasing cycle counter
// (I11: slot = coll_id mod slot-count). Wraps at 256 like the wire
// header's single-byte CollID field.
func (g *Group) nextCollID() uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collCounter++
	return g.collCounter
}

// planFor returns the cached plan for p, lowering and inserting one on
// a miss (spec §4.3 "Plan Cache").
func (g *Group) planFor(p CollParams) (*Plan, error) {
	key := cacheKeyFor(g.id, p)
	if cached, ok := g.plans.Lookup(key); ok {
		g.stats.CacheHit()
		return cached.(*Plan), nil
	}
	g.stats.CacheMiss()

	desc, err := g.BuildTopology(p.Type, p.Root)
	if err != nil {
		return nil, err
	}
	plan, err := g.lower(desc, p)
	if err != nil {
		return nil, err
	}
	plan.cacheKey = key
	g.plans.Insert(key, plan, plan.IsPersistent(), func(evicted interface{}) {
		g.stats.CacheEviction()
	})
	return plan, nil
}

// CollectiveCreate builds (or reuses a cached) plan for p without
// starting it, mirroring the C API's split between plan creation and
// triggering (spec §6 "collective_create").
func (g *Group) CollectiveCreate(p CollParams) (*Plan, error) {
	return g.planFor(p)
}

// CollectiveStart lowers/caches a plan for p if needed and triggers a
// new Operation running it over buf, delivering req and the final
// status to the completion callback once finished (spec §6
// "collective_start").
func (g *Group) CollectiveStart(p CollParams, req interface{}, buf []byte) (*Operation, types.Status) {
	plan, err := g.planFor(p)
	if err != nil {
		return nil, g.statusFor(err)
	}
	collID := g.nextCollID()
	return g.trigger(plan, collID, req, buf)
}

// CollectiveCheckStatus reports op's current status without blocking
// (spec §6 "collective_check_status").
func (g *Group) CollectiveCheckStatus(op *Operation) types.Status {
	return op.Status()
}

// CollectiveDestroy releases a persistent plan's cache entry (spec §6
// "collective_destroy(plan) for persistent plans"): persistent plans
// are immune to the cache's own LRU eviction (spec §4.3), so this is
// the only way one is ever removed. Destroying a non-persistent plan
// is a no-op — it's already subject to ordinary eviction.
func (g *Group) CollectiveDestroy(plan *Plan) {
	if !plan.IsPersistent() {
		return
	}
	g.plans.Remove(plan.cacheKey)
}

// CollectiveCancel reports the status of attempting to cancel an
// in-flight operation. Per spec §5 "Cancellation", a collective in
// progress cannot be cancelled; this is the stub the spec explicitly
// inherits rather than inventing new semantics for (spec.md §9 open
// questions).
func (g *Group) CollectiveCancel(op *Operation) types.Status {
	return types.Unsupported
}

// Progress drains whatever the transport has buffered and feeds each
// message to dispatchIncoming, then returns how many messages it
// processed. Callers poll this from their own event loop (spec §6
// "progress").
func (g *Group) Progress() (int, error) {
	return g.transport.Recv(context.Background(), func(header, payload []byte) {
		g.dispatchIncoming(header, payload)
	})
}

// statusFor maps errors the topology builder/lowerer return to the
// fixed status taxonomy (spec §6). The topo sentinel errors map as in
// CollectiveIsSupported; any other error (e.g. a failed address
// lookup) maps to Unreachable rather than Unsupported.
func (g *Group) statusFor(err error) types.Status {
	switch {
	case err == nil:
		return types.OK
	default:
		return g.classifyBuildError(err)
	}
}

func (g *Group) classifyBuildError(err error) types.Status {
	switch {
	case errors.Is(err, topo.ErrUnsupported):
		return types.Unsupported
	case errors.Is(err, topo.ErrExceedsLimit):
		return types.ExceedsLimit
	case errors.Is(err, topo.ErrInvalidParam):
		return types.InvalidParam
	default:
		return types.Unreachable
	}
}
