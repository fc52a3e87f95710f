package topo

import (
	"fmt"

	"github.com/aistore-labs/ucg/types"
)

// Mode selects which directions of the topology get built: a pure
// fan-in (reduce-to-root), a pure fan-out (broadcast-from-root), or a
// full exchange (the fan-in immediately followed by fan-out used for
// e.g. allreduce, or fully symmetric algorithms like recursive-k/ring
// that don't distinguish the two and are built only once).
type Mode int

const (
	ModeFanin Mode = iota
	ModeFanout
	ModeFull
)

// NeighborCallback supplies a neighborhood collective's graph: who
// does "me" send to / receive from. Grounded on spec §6's
// neighbors_count / neighbors_query external callbacks.
type NeighborCallback interface {
	Degrees() (inDegree, outDegree int, err error)
	Peers() (in []int, out []int, err error)
}

// LevelParams describes one distance level's placement and pattern.
type LevelParams struct {
	Distance  types.Distance
	FirstPeer int // absolute index of the level's first member
	Stride    int // spacing between consecutive members of the level
	Count     int // number of members at this level
	Pattern   types.Pattern
	Radix     int // tree radix, or recursive-k/bruck factor (ignored by ring/pairwise/neighbor)
	MsgSizeTx int
	MsgSizeRx int
	Neighbors NeighborCallback // only consulted for PatternNeighbor
}

// BuildParams are the Topology Builder's inputs (spec §4.1).
type BuildParams struct {
	Me              int
	GroupSize       int
	Root            int // < 0 means "no designated root" (e.g. allreduce)
	Levels          []LevelParams
	Mode            Mode
	RingSingle      bool
	MultirootThresh int // spec §4.1 "Multi-root step"; 0 disables it
}

// Build walks BuildParams level by level (ascending distance for
// fan-in, reversed for fan-out — spec §4.1) and returns the resulting
// Descriptor, or an error classified per spec §4.1 "Fail modes".
func Build(p BuildParams) (*Descriptor, error) {
	if p.GroupSize <= 0 || p.Me < 0 || p.Me >= p.GroupSize {
		return nil, fmt.Errorf("%w: me=%d group_size=%d", ErrInvalidParam, p.Me, p.GroupSize)
	}
	b := newBuilder()

	doFanin := p.Mode == ModeFanin || p.Mode == ModeFull
	doFanout := p.Mode == ModeFanout || p.Mode == ModeFull

	if doFanin {
		for i := range p.Levels {
			if err := buildLevel(b, p, &p.Levels[i], directionFanin); err != nil {
				return nil, err
			}
		}
	}
	if doFanout {
		for i := len(p.Levels) - 1; i >= 0; i-- {
			if err := buildLevel(b, p, &p.Levels[i], directionFanout); err != nil {
				return nil, err
			}
		}
	}

	if b.overflowed {
		return nil, fmt.Errorf("%w: step index exceeds the 8-bit budget", ErrExceedsLimit)
	}
	if err := b.desc.Validate(p.Me); err != nil {
		return nil, err
	}
	return &b.desc, nil
}

type direction int

const (
	directionFanin direction = iota
	directionFanout
)

var ErrInvalidParam = fmt.Errorf("invalid parameter")
var ErrUnsupported = fmt.Errorf("unsupported")
var ErrExceedsLimit = fmt.Errorf("exceeds limit")

func buildLevel(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	if lvl.Count == 0 && lvl.Pattern != types.PatternNeighbor {
		return fmt.Errorf("%w: level count=0 with pattern %v", ErrInvalidParam, lvl.Pattern)
	}
	if lvl.Stride == 0 && lvl.Pattern != types.PatternNeighbor {
		return fmt.Errorf("%w: level stride=0", ErrInvalidParam)
	}
	if lvl.Count > 0 {
		last := lvl.FirstPeer + (lvl.Count-1)*lvl.Stride
		if p.Me < min(lvl.FirstPeer, last) || p.Me > max(lvl.FirstPeer, last) {
			return fmt.Errorf("%w: me=%d outside level span [%d,%d]", ErrInvalidParam, p.Me, lvl.FirstPeer, last)
		}
	}
	// Only the tree patterns distinguish fan-in from fan-out; every other
	// pattern is built once under ModeFull, in the fan-in pass.
	if p.Mode == ModeFull && dir == directionFanout &&
		lvl.Pattern != types.PatternKaryTree && lvl.Pattern != types.PatternKnomialTree {
		return nil
	}

	switch lvl.Pattern {
	case types.PatternKaryTree, types.PatternKnomialTree:
		return buildTree(b, p, lvl, dir)
	case types.PatternRecursiveK:
		return buildRecursiveK(b, p, lvl, dir, false)
	case types.PatternBruck:
		return buildRecursiveK(b, p, lvl, dir, true)
	case types.PatternRing:
		return buildRing(b, p, lvl, dir)
	case types.PatternRingSingle:
		return buildRingSingle(b, p, lvl, dir)
	case types.PatternPairwise:
		return buildPairwise(b, p, lvl, dir)
	case types.PatternNeighbor:
		return buildNeighbor(b, p, lvl, dir)
	default:
		return fmt.Errorf("%w: pattern %v", ErrUnsupported, lvl.Pattern)
	}
}

func levelMembers(lvl *LevelParams) []int {
	members := make([]int, lvl.Count)
	for i := range members {
		members[i] = lvl.FirstPeer + i*lvl.Stride
	}
	return members
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
