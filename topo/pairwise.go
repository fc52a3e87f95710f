package topo

// buildPairwise emits a TX burst to every other peer on the level,
// then an RX burst from each (spec §4.1 "Pairwise") — the shape used
// for alltoall. Sets RX_FROM_EVERY_PEER.
func buildPairwise(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	members := levelMembers(lvl)
	var dests []int
	for _, m := range members {
		if m != p.Me {
			dests = append(dests, m)
		}
	}
	if len(dests) == 0 {
		return nil
	}
	b.appendTX(TXDesc{
		Distance: lvl.Distance,
		Dests:    dests,
		MsgSize:  lvl.MsgSizeTx,
	}, members)
	b.appendRX(RXDesc{
		Distance:      lvl.Distance,
		Count:         len(dests),
		FromEveryPeer: true,
		MsgSize:       lvl.MsgSizeRx,
		Source:        -1,
	}, members)
	return nil
}
