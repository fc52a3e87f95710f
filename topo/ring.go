package topo

// buildRing implements the Ring pattern: RX-from-left then TX-to-right.
// A full ring (Mode == ModeFull) does this twice — once per direction
// — which is how a ring-allgather/ring-reduce-scatter pair is built;
// a fan-in/fan-out-only mode does it once.
func buildRing(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	members := levelMembers(lvl)
	n := lvl.Count
	if n < 2 {
		return nil
	}
	meAbs := (p.Me - lvl.FirstPeer) / lvl.Stride
	left := members[((meAbs-1)%n+n)%n]
	right := members[(meAbs+1)%n]

	rounds := 1
	if p.Mode == ModeFull {
		rounds = 2
	}
	for r := 0; r < rounds; r++ {
		b.appendRX(RXDesc{
			Distance: lvl.Distance,
			Count:    1,
			MsgSize:  lvl.MsgSizeRx,
			Source:   left,
		}, members)
		b.appendTX(TXDesc{
			Distance: lvl.Distance,
			Dests:    []int{right},
			MsgSize:  lvl.MsgSizeTx,
		}, members)
	}
	return nil
}

// buildRingSingle does one round starting from the root: the root
// sends to its right neighbor, every other member forwards what it
// receives to its own right neighbor, and the ring stops one hop
// before wrapping back to the root.
func buildRingSingle(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	members := levelMembers(lvl)
	n := lvl.Count
	if n < 2 {
		return nil
	}
	root := p.Root
	if root < 0 {
		root = lvl.FirstPeer
	}
	rootRel := ((root-lvl.FirstPeer)/lvl.Stride%n + n) % n
	meAbs := (p.Me - lvl.FirstPeer) / lvl.Stride
	meRel := ((meAbs-rootRel)%n + n) % n

	left := members[((meAbs-1)%n+n)%n]
	right := members[(meAbs+1)%n]

	if meRel != 0 {
		b.appendRX(RXDesc{Distance: lvl.Distance, Count: 1, MsgSize: lvl.MsgSizeRx, Source: left}, members)
	}
	if meRel != n-1 {
		b.appendTX(TXDesc{Distance: lvl.Distance, Dests: []int{right}, MsgSize: lvl.MsgSizeTx}, members)
	}
	return nil
}
