/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package xport

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/aistore-labs/ucg/types"
)

// MockRegistry wires a set of in-process MockTransport endpoints
// together so tests can exercise a full group without a real network.
// Grounded on reb/bcast.go's fan-out-and-wait pattern for dispatching
// concurrently to every peer.
type MockRegistry struct {
	mu    sync.Mutex
	peers map[int]*MockTransport
	sent  atomic.Int64
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{peers: make(map[int]*MockTransport)}
}

// Endpoint creates (or returns the existing) MockTransport for the
// given member index, registering it in the shared peer table.
func (r *MockRegistry) Endpoint(idx int) *MockTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.peers[idx]; ok {
		return t
	}
	t := &MockTransport{registry: r, self: idx, inbox: make(chan mockMsg, 256)}
	r.peers[idx] = t
	return t
}

// SentCount returns the total number of fragments successfully sent
// across every endpoint in the registry (useful for asserting
// dedup/no-duplicate-payload properties in resend tests).
func (r *MockRegistry) SentCount() int64 { return r.sent.Load() }

type mockMsg struct {
	header  []byte
	payload []byte
}

// MockTransport is an in-memory Transport for one group member,
// backed by a channel inbox. Address bytes are the decimal ASCII
// encoding of the destination's member index — good enough for tests,
// not meant to resemble a real wire address.
type MockTransport struct {
	registry *MockRegistry
	self     int
	inbox    chan mockMsg

	mu      sync.Mutex
	stalled map[string]int // header string -> remaining stall count, for NO_RESOURCE injection
}

// Stall arranges for the next `times` sends whose header matches hdr
// to return NoResource before succeeding — used to reproduce scenario
// S6 (transient stall, resend recovers it).
func (t *MockTransport) Stall(hdr []byte, times int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stalled == nil {
		t.stalled = make(map[string]int)
	}
	t.stalled[string(hdr)] = times
}

func (t *MockTransport) Send(_ context.Context, addr []byte, header []byte, payload []byte) types.Status {
	t.mu.Lock()
	if n := t.stalled[string(header)]; n > 0 {
		t.stalled[string(header)] = n - 1
		t.mu.Unlock()
		return types.NoResource
	}
	t.mu.Unlock()

	peerIdx := decodeIndex(addr)
	t.registry.mu.Lock()
	peer, ok := t.registry.peers[peerIdx]
	t.registry.mu.Unlock()
	if !ok {
		return types.Unreachable
	}
	cp := mockMsg{header: append([]byte(nil), header...), payload: append([]byte(nil), payload...)}
	peer.inbox <- cp
	t.registry.sent.Inc()
	return types.OK
}

func (t *MockTransport) Recv(_ context.Context, deliver func(header, payload []byte)) (int, error) {
	n := 0
	for {
		select {
		case m := <-t.inbox:
			deliver(m.header, m.payload)
			n++
		default:
			return n, nil
		}
	}
}

// mockAddressBook resolves a member index to its decimal ASCII
// encoding, matched by decodeIndex above.
type mockAddressBook struct{}

func (mockAddressBook) Lookup(peerIndex int) ([]byte, error) {
	return encodeIndex(peerIndex), nil
}

// NewMockAddressBook returns an AddressBook usable with MockTransport.
func NewMockAddressBook() AddressBook { return mockAddressBook{} }

func encodeIndex(idx int) []byte {
	if idx == 0 {
		return []byte{'0'}
	}
	neg := idx < 0
	if neg {
		idx = -idx
	}
	var buf []byte
	for idx > 0 {
		buf = append([]byte{byte('0' + idx%10)}, buf...)
		idx /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return buf
}

func decodeIndex(b []byte) int {
	neg := len(b) > 0 && b[0] == '-'
	if neg {
		b = b[1:]
	}
	v := 0
	for _, c := range b {
		v = v*10 + int(c-'0')
	}
	if neg {
		v = -v
	}
	return v
}
