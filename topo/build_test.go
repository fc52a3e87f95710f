/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package topo

import (
	"testing"

	"github.com/aistore-labs/ucg/types"
)

// countSteps separates a Descriptor's steps into RX-bearing and
// TX-bearing counts, since a single Step can carry both.
func countSteps(d *Descriptor) (rx, tx int) {
	for _, s := range d.Steps {
		if s.RX != nil {
			rx++
		}
		if s.TX != nil {
			tx++
		}
	}
	return
}

// TestBarrierKaryTreeFourRanks exercises scenario S1: Barrier, N=4,
// k-ary tree radix 2, single host. Fan-in then fan-out; every rank's
// descriptor builds and validates.
func TestBarrierKaryTreeFourRanks(t *testing.T) {
	for me := 0; me < 4; me++ {
		p := BuildParams{
			Me:        me,
			GroupSize: 4,
			Root:      0,
			Mode:      ModeFull,
			Levels: []LevelParams{
				{
					Distance:  types.DistanceHost,
					FirstPeer: 0,
					Stride:    1,
					Count:     4,
					Pattern:   types.PatternKaryTree,
					Radix:     2,
				},
			},
		}
		d, err := Build(p)
		if err != nil {
			t.Fatalf("rank %d: Build failed: %v", me, err)
		}
		if err := d.Validate(me); err != nil {
			t.Fatalf("rank %d: Validate failed: %v", me, err)
		}
		if len(d.Steps) == 0 {
			t.Fatalf("rank %d: expected at least one step, got none", me)
		}
	}

	// Rank 1 and rank 2 are rank 0's children; rank 0 is the tree root
	// and should see two children arrive at the fan-in RX (leaf 3 folds
	// through rank 1 first).
	d, err := Build(BuildParams{
		Me: 0, GroupSize: 4, Root: 0, Mode: ModeFull,
		Levels: []LevelParams{{
			Distance: types.DistanceHost, FirstPeer: 0, Stride: 1, Count: 4,
			Pattern: types.PatternKaryTree, Radix: 2,
		}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rx, tx := countSteps(d)
	if rx == 0 {
		t.Errorf("root: expected at least one RX step, got %d", rx)
	}
	if tx == 0 {
		t.Errorf("root: expected at least one TX step (fan-out), got %d", tx)
	}
}

// TestAllreduceRecursiveDoublingEightRanks exercises scenario S2:
// Allreduce sum, N=8, recursive doubling (factor 2), three rounds.
func TestAllreduceRecursiveDoublingEightRanks(t *testing.T) {
	for me := 0; me < 8; me++ {
		p := BuildParams{
			Me:        me,
			GroupSize: 8,
			Root:      -1,
			Mode:      ModeFull,
			Levels: []LevelParams{
				{
					Distance:  types.DistanceHost,
					FirstPeer: 0,
					Stride:    1,
					Count:     8,
					Pattern:   types.PatternRecursiveK,
					Radix:     2,
				},
			},
		}
		d, err := Build(p)
		if err != nil {
			t.Fatalf("rank %d: Build failed: %v", me, err)
		}
		if err := d.Validate(me); err != nil {
			t.Fatalf("rank %d: Validate failed: %v", me, err)
		}
		rx, tx := countSteps(d)
		if rx != 3 {
			t.Errorf("rank %d: expected 3 RX rounds for 8-way recursive doubling, got %d", me, rx)
		}
		if tx != 3 {
			t.Errorf("rank %d: expected 3 TX rounds for 8-way recursive doubling, got %d", me, tx)
		}
	}
}

// TestRecursiveDoublingNonPowerOfTwo exercises the fold-in/fold-out
// path when the level size isn't an exact power of the factor.
func TestRecursiveDoublingNonPowerOfTwo(t *testing.T) {
	const n = 6 // span=4, extra=2
	for me := 0; me < n; me++ {
		d, err := Build(BuildParams{
			Me: me, GroupSize: n, Root: -1, Mode: ModeFull,
			Levels: []LevelParams{{
				Distance: types.DistanceHost, FirstPeer: 0, Stride: 1, Count: n,
				Pattern: types.PatternRecursiveK, Radix: 2,
			}},
		})
		if err != nil {
			t.Fatalf("rank %d: Build failed: %v", me, err)
		}
		if err := d.Validate(me); err != nil {
			t.Fatalf("rank %d: Validate failed: %v", me, err)
		}
	}
}

func TestBuildRejectsInvalidRank(t *testing.T) {
	_, err := Build(BuildParams{Me: 4, GroupSize: 4, Mode: ModeFanin})
	if err == nil {
		t.Fatal("expected an error for an out-of-range rank")
	}
}

func TestBuildRingFullDoublesRounds(t *testing.T) {
	d, err := Build(BuildParams{
		Me: 0, GroupSize: 5, Root: -1, Mode: ModeFull,
		Levels: []LevelParams{{
			Distance: types.DistanceHost, FirstPeer: 0, Stride: 1, Count: 5,
			Pattern: types.PatternRing,
		}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rx, tx := countSteps(d)
	if rx != 2 || tx != 2 {
		t.Errorf("expected 2 RX/2 TX rounds for a full ring, got rx=%d tx=%d", rx, tx)
	}
}

func TestBuildPairwiseAlltoall(t *testing.T) {
	const n = 4
	for me := 0; me < n; me++ {
		d, err := Build(BuildParams{
			Me: me, GroupSize: n, Root: -1, Mode: ModeFull,
			Levels: []LevelParams{{
				Distance: types.DistanceHost, FirstPeer: 0, Stride: 1, Count: n,
				Pattern: types.PatternPairwise,
			}},
		})
		if err != nil {
			t.Fatalf("rank %d: Build failed: %v", me, err)
		}
		for _, s := range d.Steps {
			if s.TX != nil && len(s.TX.Dests) != n-1 {
				t.Errorf("rank %d: expected %d pairwise destinations, got %d", me, n-1, len(s.TX.Dests))
			}
			if s.RX != nil && s.RX.Count != n-1 {
				t.Errorf("rank %d: expected %d pairwise sources, got %d", me, n-1, s.RX.Count)
			}
		}
	}
}

type fakeNeighbors struct {
	in, out []int
}

func (f fakeNeighbors) Degrees() (int, int, error) { return len(f.in), len(f.out), nil }
func (f fakeNeighbors) Peers() ([]int, []int, error) { return f.in, f.out, nil }

func TestBuildNeighborGraph(t *testing.T) {
	nb := fakeNeighbors{in: []int{1, 3}, out: []int{2}}
	d, err := Build(BuildParams{
		Me: 0, GroupSize: 4, Root: -1, Mode: ModeFanin,
		Levels: []LevelParams{{
			Distance: types.DistanceHost, FirstPeer: 0, Stride: 1, Count: 4,
			Pattern: types.PatternNeighbor, Neighbors: nb,
		}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := d.Validate(0); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}
