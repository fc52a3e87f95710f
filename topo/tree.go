package topo

// buildTree implements the K-ary / K-nomial tree pattern (spec §4.1).
// Both patterns share the same rooted-tree shape here: a node's
// effective index (after root rotation) has parent (i-1)/radix and
// children {i*radix+1 .. i*radix+radix}. If Count <= MultirootThresh
// this is instead lowered as a multi-root square (every member of the
// small residual group exchanges with every other member directly).
func buildTree(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	if lvl.Radix <= 0 {
		return ErrUnsupported
	}
	members := levelMembers(lvl)

	if p.MultirootThresh > 0 && lvl.Count <= p.MultirootThresh && lvl.Count > 1 {
		return buildMultiroot(b, p, lvl, members)
	}

	rootRel := 0
	if p.Root >= 0 {
		rootRel = ((p.Root-lvl.FirstPeer)/lvl.Stride%lvl.Count + lvl.Count) % lvl.Count
	}
	meAbs := (p.Me - lvl.FirstPeer) / lvl.Stride
	meEff := ((meAbs-rootRel)%lvl.Count + lvl.Count) % lvl.Count

	toAbs := func(eff int) int {
		return lvl.FirstPeer + (((eff+rootRel)%lvl.Count+lvl.Count)%lvl.Count)*lvl.Stride
	}

	var parentEff = -1
	if meEff != 0 {
		parentEff = (meEff - 1) / lvl.Radix
	}
	var childrenEff []int
	for c := meEff*lvl.Radix + 1; c <= meEff*lvl.Radix+lvl.Radix && c < lvl.Count; c++ {
		childrenEff = append(childrenEff, c)
	}

	switch dir {
	case directionFanin:
		// Fan-in: aggregate from children, forward the aggregate to parent.
		if len(childrenEff) > 0 {
			rx := RXDesc{
				Distance:      lvl.Distance,
				Count:         len(childrenEff),
				Leader:        true,
				FromEveryPeer: true,
				MsgSize:       lvl.MsgSizeRx,
				Source:        -1,
			}
			b.appendRX(rx, members)
		}
		if parentEff >= 0 {
			tx := TXDesc{
				Distance: lvl.Distance,
				Dests:    []int{toAbs(parentEff)},
				MsgSize:  lvl.MsgSizeTx,
			}
			b.appendTX(tx, members)
		}
	case directionFanout:
		// Fan-out: receive from parent, forward to children.
		if parentEff >= 0 {
			rx := RXDesc{
				Distance: lvl.Distance,
				Count:    1,
				MsgSize:  lvl.MsgSizeRx,
				Source:   toAbs(parentEff),
			}
			b.appendRX(rx, members)
		}
		if len(childrenEff) > 0 {
			dests := make([]int, len(childrenEff))
			for i, c := range childrenEff {
				dests[i] = toAbs(c)
			}
			tx := TXDesc{
				Distance: lvl.Distance,
				Dests:    dests,
				Leader:   true,
				MsgSize:  lvl.MsgSizeTx,
			}
			b.appendTX(tx, members)
		}
	}
	return nil
}

// buildMultiroot lowers a small residual group (spec §4.1 "Multi-root
// step") as a square: everyone sends to everyone else and aggregates
// from everyone else, so every member of the group ends up holding the
// reduced value simultaneously rather than only the tree root.
func buildMultiroot(b *builder, p BuildParams, lvl *LevelParams, members []int) error {
	var dests []int
	for _, m := range members {
		if m != p.Me {
			dests = append(dests, m)
		}
	}
	if len(dests) == 0 {
		return nil
	}
	b.appendRX(RXDesc{
		Distance:      lvl.Distance,
		Count:         len(dests),
		Leader:        true,
		FromEveryPeer: true,
		MsgSize:       lvl.MsgSizeRx,
		Source:        -1,
	}, members)
	b.appendTX(TXDesc{
		Distance: lvl.Distance,
		Dests:    dests,
		MsgSize:  lvl.MsgSizeTx,
	}, members)
	return nil
}
