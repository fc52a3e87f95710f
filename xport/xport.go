// Package xport declares the external collaborator interfaces the
// core consumes (spec §6): address resolution, neighborhood queries,
// datatype introspection, reduce-operator introspection, and
// completion delivery. The core never talks to a transport, cluster
// map, or registration domain directly — it only calls through these
// interfaces, which keeps it free of any concrete network stack.
/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package xport

import (
	"context"

	"github.com/aistore-labs/ucg/types"
)

// AddressBook resolves a group member index to a wire address.
// Grounded on transport's connection cache in
// _examples/rajatrh-aistore/reb/bcast.go, which keeps one looked-up
// peer URL per target for the lifetime of a rebalance.
type AddressBook interface {
	// Lookup returns the peer's opaque wire address. The address is
	// valid until the group is destroyed; callers must not retain it
	// past that point.
	Lookup(peerIndex int) ([]byte, error)
}

// NeighborGraph supplies a neighborhood collective's send/receive
// graph for one member.
type NeighborGraph interface {
	Degrees() (inDegree, outDegree int, err error)
	Peers() (in []int, out []int, err error)
}

// DatatypeInfo answers questions about an opaque application datatype
// that the core needs in order to choose a built-in reduction
// callback and compute fragment lengths (invariant I9).
type DatatypeInfo interface {
	Convert(dt interface{}) (types.DatatypeKind, error)
	IsInteger(dt interface{}) (signed bool, ok bool)
	IsFloatingPoint(dt interface{}) bool
	// Span returns the byte length and any trailing gap for count
	// elements of dt (non-contiguous datatypes report gap > 0).
	Span(dt interface{}, count int) (span, gap int, err error)
}

// ReduceOperator answers questions about an opaque application
// reduction operator and performs the reduction when no built-in
// callback covers it (spec §4.2 step 4's external-reduction path).
type ReduceOperator interface {
	Operator(op interface{}) (kind types.Operator, wantLocation bool, commutative bool, err error)
	Reduce(op interface{}, src, dst []byte, count int, dt interface{}) error
}

// Completion delivers the terminal status of an operation back to the
// application. The core calls it once per operation: from within
// CollectiveStart or Progress when the operation completes on the
// caller's thread, or from the resend tick for deferred completion
// (spec §4.4 "finish").
type Completion interface {
	OnComplete(req interface{}, status types.Status)
}

// Transport is the point-to-point send/receive surface the executor
// drives. It is intentionally minimal: the core owns fragmentation,
// pipelining and retry bookkeeping, so Transport only needs to attempt
// one fragment at a time and report back NO_RESOURCE on transient
// backpressure (spec §7 "Transient send stall").
type Transport interface {
	// Send attempts to deliver one fragment to peer at addr. A
	// types.NoResource return means the caller should enqueue the
	// fragment on the resend list and retry later; any other non-OK
	// status is terminal for the operation.
	Send(ctx context.Context, addr []byte, header []byte, payload []byte) types.Status
	// Recv drains whatever is currently available without blocking,
	// invoking deliver for each complete message. Returns the number
	// of messages delivered.
	Recv(ctx context.Context, deliver func(header []byte, payload []byte)) (int, error)
}
