package topo

// buildNeighbor consults the neighborhood callback for in/out degree
// and then for the peer lists, emitting one TX burst and one RX burst
// (spec §4.1 "Neighbor"). Neighborhood alltoall-v/w is out of scope
// (spec Non-goals) — only the fixed-size exchange is built here.
func buildNeighbor(b *builder, p BuildParams, lvl *LevelParams, dir direction) error {
	if lvl.Neighbors == nil {
		return ErrInvalidParam
	}
	inDeg, outDeg, err := lvl.Neighbors.Degrees()
	if err != nil {
		return err
	}
	if inDeg == 0 && outDeg == 0 {
		return nil
	}
	in, out, err := lvl.Neighbors.Peers()
	if err != nil {
		return err
	}
	if len(in) != inDeg || len(out) != outDeg {
		return ErrInvalidParam
	}
	if len(out) > 0 {
		b.appendTX(TXDesc{Distance: lvl.Distance, Dests: out, MsgSize: lvl.MsgSizeTx}, append(append([]int{}, in...), out...))
	}
	if len(in) > 0 {
		b.appendRX(RXDesc{
			Distance:      lvl.Distance,
			Count:         len(in),
			FromEveryPeer: len(in) > 1,
			MsgSize:       lvl.MsgSizeRx,
			Source:        in[0],
		}, append(append([]int{}, in...), out...))
	}
	return nil
}
