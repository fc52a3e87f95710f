package topo

// buildRecursiveK implements recursive-k-ing (vector-halving/doubling
// generalized to an arbitrary radix == factor) and its Bruck variant,
// which differs by sending to one fewer destination per round with
// offsets shifted by one (spec §4.1). Both pad the level to the next
// power of `factor`; members outside that span fold into it first and
// fold back out after the last round.
func buildRecursiveK(b *builder, p BuildParams, lvl *LevelParams, dir direction, bruck bool) error {
	factor := lvl.Radix
	if factor < 2 {
		factor = 2
	}
	members := levelMembers(lvl)
	n := lvl.Count
	meAbs := (p.Me - lvl.FirstPeer) / lvl.Stride

	span := 1
	for span*factor <= n {
		span *= factor
	}
	extra := n - span // members with relative index >= span fold into [0, extra)

	inSpan := meAbs < span
	foldPartner := -1
	if !inSpan {
		foldPartner = meAbs - span // folds into this in-span member
	} else if meAbs < extra {
		foldPartner = span + meAbs // receives a fold-in from this out-of-span member
	}

	if !inSpan {
		// Out-of-span member: send my data into the span, then receive the
		// final result back from the same partner.
		b.appendTX(TXDesc{Distance: lvl.Distance, Dests: []int{members[foldPartner]}, MsgSize: lvl.MsgSizeTx}, members)
		b.appendRX(RXDesc{Distance: lvl.Distance, Count: 1, MsgSize: lvl.MsgSizeRx, Source: members[foldPartner]}, members)
		return nil
	}
	if foldPartner >= 0 {
		b.appendRX(RXDesc{Distance: lvl.Distance, Count: 1, Leader: true, MsgSize: lvl.MsgSizeRx, Source: members[foldPartner]}, members)
	}

	rounds := 0
	for s := 1; s < span; s *= factor {
		rounds++
	}
	digitSpan := 1
	for r := 0; r < rounds; r++ {
		myDigit := (meAbs / digitSpan) % factor
		base := meAbs - myDigit*digitSpan

		destsPerRound := factor - 1
		if bruck {
			destsPerRound = factor - 1
			if destsPerRound > 1 {
				destsPerRound-- // Bruck: one less destination per round (spec §4.1)
			}
		}

		var dests, srcs []int
		for k := 1; k <= destsPerRound; k++ {
			peerDigit := (myDigit + k) % factor
			if bruck {
				// Bruck: rotate forward for sends, backward for receives.
				sendDigit := (myDigit + k) % factor
				recvDigit := ((myDigit-k)%factor + factor) % factor
				sendRel := base + sendDigit*digitSpan
				recvRel := base + recvDigit*digitSpan
				if sendRel < span {
					dests = append(dests, members[sendRel])
				}
				if recvRel < span {
					srcs = append(srcs, members[recvRel])
				}
				continue
			}
			if peerDigit == myDigit {
				continue
			}
			peerRel := base + peerDigit*digitSpan
			if peerRel < span {
				dests = append(dests, members[peerRel])
				srcs = append(srcs, members[peerRel])
			}
		}

		if len(dests) > 0 {
			b.appendTX(TXDesc{Distance: lvl.Distance, Dests: dests, MsgSize: lvl.MsgSizeTx}, members)
		}
		if len(srcs) > 0 {
			b.appendRX(RXDesc{
				Distance:      lvl.Distance,
				Count:         len(srcs),
				Leader:        true,
				FromEveryPeer: len(srcs) > 1,
				MsgSize:       lvl.MsgSizeRx,
				Source:        srcs[0],
			}, members)
		}
		digitSpan *= factor
	}

	if foldPartner >= 0 {
		b.appendTX(TXDesc{Distance: lvl.Distance, Dests: []int{members[foldPartner]}, MsgSize: lvl.MsgSizeTx}, members)
	}
	return nil
}
