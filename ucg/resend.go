/*
 * Copyright (c) 2024, aistore-labs. All rights reserved.
 */
package ucg

import (
	"sync"
	"time"
)

// resendList is the per-group linked list of operations stalled on a
// transient send failure, plus the periodic timer that retries them
// (spec §4.6 "Resend Service"). Grounded on transport/collect.go's
// ticker-driven collector loop in the teacher, generalized from a
// idle-stream reaper to a stalled-operation retrier.
type resendList struct {
	mu     sync.Mutex
	head   *Operation
	tick   time.Duration
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
}

func newResendList(tick time.Duration) *resendList {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &resendList{tick: tick}
}

func (r *resendList) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for op := r.head; op != nil; op = op.resendNext {
		n++
	}
	return n
}

// schedule adds op to the resend list (if not already on it) and
// starts the timer goroutine on first use.
func (r *resendList) schedule(op *Operation, retry func(*Operation)) {
	r.mu.Lock()
	if !op.inResend {
		op.resendNext = r.head
		if r.head != nil {
			r.head.resendPrev = op
		}
		r.head = op
		op.inResend = true
	}
	needsStart := r.ticker == nil
	r.mu.Unlock()

	if needsStart {
		r.start(retry)
	}
}

// cancel removes op from the resend list, e.g. on finish().
func (r *resendList) cancel(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !op.inResend {
		return
	}
	if op.resendPrev != nil {
		op.resendPrev.resendNext = op.resendNext
	} else {
		r.head = op.resendNext
	}
	if op.resendNext != nil {
		op.resendNext.resendPrev = op.resendPrev
	}
	op.resendPrev, op.resendNext = nil, nil
	op.inResend = false
}

func (r *resendList) start(retry func(*Operation)) {
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		return
	}
	r.ticker = time.NewTicker(r.tick)
	r.stopCh = make(chan struct{})
	ticker := r.ticker
	stop := r.stopCh
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.drain(retry)
			case <-stop:
				return
			}
		}
	}()
}

// drain walks the list once, retrying every member; members that
// complete remove themselves via cancel from inside retry. The timer
// is disabled once that leaves the list empty (spec §4.6 "The timer
// is disabled when the list drains").
func (r *resendList) drain(retry func(*Operation)) {
	r.mu.Lock()
	var members []*Operation
	for op := r.head; op != nil; op = op.resendNext {
		members = append(members, op)
	}
	r.mu.Unlock()

	for _, op := range members {
		retry(op)
	}

	r.mu.Lock()
	empty := r.head == nil
	r.mu.Unlock()
	if empty {
		r.stopLocked()
	}
}

func (r *resendList) stopLocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stopCh)
		r.ticker = nil
		r.stopCh = nil
	}
}

// Stop shuts the timer goroutine down if running; used by
// Context/Group teardown in tests.
func (r *resendList) Stop() {
	r.mu.Lock()
	running := r.ticker != nil
	r.mu.Unlock()
	if running {
		r.stopLocked()
	}
}
