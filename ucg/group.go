// Package ucg is the root package: it owns Group, Plan, Phase,
// Operation and the slot ring, and is the only package in this module
// that imports every leaf package (types, wire, topo, reduce, xport,
// cache, config, stats, introspect). None of those import back, which
// keeps the Group<->Plan<->Operation ownership graph (spec.md §9's
// "cyclic references" note) from becoming a package import cycle.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/aistore-labs/ucg/cache"
	"github.com/aistore-labs/ucg/config"
	"github.com/aistore-labs/ucg/stats"
	"github.com/aistore-labs/ucg/topo"
	"github.com/aistore-labs/ucg/types"
	"github.com/aistore-labs/ucg/xport"
)

// Context is the process-wide owner of groups, mirroring the "context"
// spoken of throughout spec.md §3-§5: groups share only the context's
// unexpected-message map and its group-id namespace. Construct with
// NewContext.
type Context struct {
	mu sync.Mutex

	groups map[uint32]*Group

	// unexpected holds payload-bearing messages that arrived for a
	// group id that hasn't been created yet (spec §4.5). Drained into
	// the matching group's slot ring at GroupCreate time.
	unexpected map[uint32][]rawMessage

	// unmatchedWireup holds wire-up packets for groups not yet created
	// (spec §4.5's addresses.unmatched array).
	unmatchedWireup map[uint32][]wireupMsg

	Stats *stats.Collectors
}

type rawMessage struct {
	header  []byte
	payload []byte
}

type wireupMsg struct {
	peerIndex int
	addr      []byte
}

// NewContext returns an empty Context. collectors may be nil to
// disable metrics entirely.
func NewContext(collectors *stats.Collectors) *Context {
	return &Context{
		groups:          make(map[uint32]*Group),
		unexpected:      make(map[uint32][]rawMessage),
		unmatchedWireup: make(map[uint32][]wireupMsg),
		Stats:           collectors,
	}
}

// DistanceKind is the spec §6 "4-way tagged union" selecting how a
// group's per-member distances are described.
type DistanceKind int

const (
	DistanceFixed DistanceKind = iota
	DistanceArray
	DistanceTable
	DistancePlacement
)

// Placement is one entry of a per-level placement table (the fourth
// arm of DistanceKind, clarified against original_source/src/ucg/api/ucg.h's
// ucg_group_distance_type — the distillation's spec.md names it but
// leaves the field layout to this implementation).
type Placement struct {
	Distance types.Distance
	FirstPeer int
	Stride    int
	Count     int
	Pattern   types.Pattern
	Radix     int
}

// GroupParams are the inputs to GroupCreate (spec §6).
type GroupParams struct {
	ID             uint32 // 0 means "assign the next free id"
	Size           int
	MyIndex        int
	DistanceKind   DistanceKind
	FixedDistance  types.Distance
	DistanceArray  []types.Distance
	DistanceTable  [][]types.Distance
	Placements     []Placement
	CacheSize      int // 0 uses the group config's PlanCacheSize
	WantTXTimestamps bool

	AddressBook xport.AddressBook
	Neighbors   xport.NeighborGraph
	Datatype    xport.DatatypeInfo
	ReduceOp    xport.ReduceOperator
	Completion  xport.Completion
	Transport   xport.Transport
	Config      *config.Config // nil uses config.Default()
}

// Group is a single collective-communication group (spec §3 "Group").
type Group struct {
	ctx *Context // non-owning: groups never outlive the context that holds them

	mu sync.Mutex

	id      uint32
	size    int
	me      int
	distKind DistanceKind
	fixedDistance types.Distance
	distArray     []types.Distance
	distTable     [][]types.Distance
	placements    []Placement

	endpoints map[int][]byte // peer index -> resolved address (I3: cached for group lifetime)

	addrBook   xport.AddressBook
	neighbors  xport.NeighborGraph
	dtInfo     xport.DatatypeInfo
	reduceOp   xport.ReduceOperator
	completion xport.Completion
	transport  xport.Transport

	cfg   config.Config
	plans *cache.Cache

	slots *slotRing

	collCounter uint8 // I11 source: next coll_id to hand out, wraps at 256

	resend *resendList

	stats *stats.Collectors
}

var (
	// ErrInvalidParam mirrors types.InvalidParam at the API boundary.
	ErrInvalidParam = errors.New("ucg: invalid parameter")
	// ErrGroupExists is returned by GroupCreate on an id collision (I1).
	ErrGroupExists = errors.New("ucg: group id already in use")
)

// GroupCreate validates params (I1, I2), allocates a Group, and drains
// any unexpected/wireup messages the context buffered for this id.
func (c *Context) GroupCreate(p GroupParams) (*Group, error) {
	if p.Size <= 0 || p.MyIndex < 0 || p.MyIndex >= p.Size {
		return nil, errors.Wrapf(ErrInvalidParam, "size=%d my_index=%d", p.Size, p.MyIndex)
	}
	if p.Transport == nil || p.AddressBook == nil || p.Completion == nil {
		return nil, errors.Wrap(ErrInvalidParam, "transport, address book and completion callback are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := p.ID
	if id == 0 {
		id = c.nextIDLocked()
	} else if _, exists := c.groups[id]; exists {
		return nil, errors.Wrapf(ErrGroupExists, "id=%d", id)
	}

	cfg := config.Default()
	if p.Config != nil {
		cfg = *p.Config
	}
	cacheSize := p.CacheSize
	if cacheSize == 0 {
		cacheSize = cfg.PlanCacheSize
	}
	slotCount := 8

	g := &Group{
		ctx:           c,
		id:            id,
		size:          p.Size,
		me:            p.MyIndex,
		distKind:      p.DistanceKind,
		fixedDistance: p.FixedDistance,
		distArray:     p.DistanceArray,
		distTable:     p.DistanceTable,
		placements:    p.Placements,
		endpoints:     make(map[int][]byte),
		addrBook:      p.AddressBook,
		neighbors:     p.Neighbors,
		dtInfo:        p.Datatype,
		reduceOp:      p.ReduceOp,
		completion:    p.Completion,
		transport:     p.Transport,
		cfg:           cfg,
		plans:         cache.New(cacheSize),
		slots:         newSlotRing(slotCount),
		resend:        newResendList(cfg.ResendTimerTick),
		stats:         c.Stats,
	}
	c.groups[id] = g

	for _, raw := range c.unexpected[id] {
		g.dispatchIncoming(raw.header, raw.payload)
	}
	delete(c.unexpected, id)
	for _, w := range c.unmatchedWireup[id] {
		g.endpoints[w.peerIndex] = w.addr
	}
	delete(c.unmatchedWireup, id)

	return g, nil
}

// nextIDLocked returns the smallest id ≥ 1 not currently in use.
func (c *Context) nextIDLocked() uint32 {
	var id uint32 = 1
	for {
		if _, ok := c.groups[id]; !ok {
			return id
		}
		id++
	}
}

// GroupDestroy removes g from its context. Per spec §5 "Cancellation",
// destroying a group with operations in flight is a caller error; this
// implementation warns and proceeds anyway rather than blocking, the
// same way a stuck rebalance wait is handled.
func (c *Context) GroupDestroy(g *Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, g.id)
	if n := g.resend.len(); n > 0 {
		glog.Warningf("ucg: group %d destroyed with %d operation(s) still in flight", g.id, n)
		return fmt.Errorf("ucg: group %d destroyed with %d operation(s) still in flight", g.id, n)
	}
	return nil
}

// GroupQuery answers simple introspection questions used by tests and
// the introspect package; attr is one of "size", "me", "id".
func (g *Group) GroupQuery(attr string) (int, error) {
	switch attr {
	case "size":
		return g.size, nil
	case "me":
		return g.me, nil
	case "id":
		return int(g.id), nil
	default:
		return 0, errors.Errorf("ucg: unknown group attribute %q", attr)
	}
}

// endpoint resolves peer's address, consulting the cache first (I3).
func (g *Group) endpoint(peer int) ([]byte, error) {
	g.mu.Lock()
	if addr, ok := g.endpoints[peer]; ok {
		g.mu.Unlock()
		return addr, nil
	}
	g.mu.Unlock()

	addr, err := g.addrBook.Lookup(peer)
	if err != nil {
		return nil, errors.Wrapf(err, "ucg: address lookup for peer %d failed", peer)
	}
	g.mu.Lock()
	g.endpoints[peer] = addr
	g.mu.Unlock()
	return addr, nil
}

// distanceBetween reports the distance BuildTopology assigns to its
// flat fallback level. A fixed distance answers directly; table/array
// forms report the coarsest (most conservative) distance across the
// level's absolute members; a per-level placement group reports
// DistanceNone.
func (g *Group) distanceBetween(members []int) types.Distance {
	switch g.distKind {
	case DistanceFixed:
		return g.fixedDistance
	case DistanceArray:
		worst := types.DistanceNone
		for _, m := range members {
			if m >= 0 && m < len(g.distArray) && g.distArray[m] > worst {
				worst = g.distArray[m]
			}
		}
		return worst
	case DistanceTable:
		worst := types.DistanceNone
		for _, a := range members {
			for _, b := range members {
				if a == b || a >= len(g.distTable) || b >= len(g.distTable[a]) {
					continue
				}
				if g.distTable[a][b] > worst {
					worst = g.distTable[a][b]
				}
			}
		}
		return worst
	default:
		return types.DistanceNone
	}
}

// BuildTopology runs the Topology Builder (topo.Build) for coll over
// this group's placement. Exposed so the lowerer and tests can drive
// it directly.
func (g *Group) BuildTopology(coll types.CollType, root int) (*topo.Descriptor, error) {
	levels := make([]topo.LevelParams, len(g.placements))
	for i, p := range g.placements {
		levels[i] = topo.LevelParams{
			Distance:  p.Distance,
			FirstPeer: p.FirstPeer,
			Stride:    p.Stride,
			Count:     p.Count,
			Pattern:   p.Pattern,
			Radix:     p.Radix,
			Neighbors: g.neighbors,
		}
	}
	if len(levels) == 0 {
		// DistanceFixed/Array/Table groups carry no explicit per-level
		// placement table: fall back to a single flat level spanning
		// the whole group, using the group's own distance arm to
		// decide whether members are allowed to cross a host boundary.
		all := make([]int, g.size)
		for i := range all {
			all[i] = i
		}
		levels = []topo.LevelParams{{
			Distance:  g.distanceBetween(all),
			FirstPeer: 0,
			Stride:    1,
			Count:     g.size,
			Pattern:   types.PatternKaryTree,
			Radix:     g.cfg.TreeRadix,
			Neighbors: g.neighbors,
		}}
	}
	mode := topo.ModeFull
	switch coll {
	case types.CollReduce, types.CollGather:
		mode = topo.ModeFanin
	case types.CollBroadcast, types.CollScatter:
		mode = topo.ModeFanout
	}
	return topo.Build(topo.BuildParams{
		Me:              g.me,
		GroupSize:       g.size,
		Root:            root,
		Levels:          levels,
		Mode:            mode,
		MultirootThresh: g.cfg.MultirootThresh,
	})
}

// CollectiveIsSupported is the spec §6 pre-check: it runs the
// Topology Builder without lowering a plan, reporting the same status
// taxonomy a real attempt would fail with.
func (g *Group) CollectiveIsSupported(coll types.CollType, root int) types.Status {
	_, err := g.BuildTopology(coll, root)
	if err == nil {
		return types.OK
	}
	switch {
	case errors.Is(err, topo.ErrUnsupported):
		return types.Unsupported
	case errors.Is(err, topo.ErrExceedsLimit):
		return types.ExceedsLimit
	case errors.Is(err, topo.ErrInvalidParam):
		return types.InvalidParam
	default:
		return types.Unsupported
	}
}
