package kvstore

import (
	"context"
	"sync"
	"sync/atomic"
)

// OrderToken is a monotonically increasing stamp threaded through an
// operation so the engine can verify it observes operations in issue order.
type OrderToken struct {
	Sequence uint64
	Label    string
}

// OrderSource mints strictly increasing OrderTokens for a single store.
type OrderSource struct {
	next atomic.Uint64
}

// Next mints the next OrderToken, stamped with label (the call site, e.g.
// "write" or "backfill-read").
func (s *OrderSource) Next(label string) OrderToken {
	return OrderToken{Sequence: s.next.Add(1), Label: label}
}

// ticketKind distinguishes a read ticket (shared admission) from a write
// ticket (exclusive admission) in the FIFO queue.
type ticketKind int

const (
	readTicket ticketKind = iota
	writeTicket
)

type ticket struct {
	kind    ticketKind
	admit   chan struct{}
	release chan struct{}
}

// TokenSource is the FIFO ticket dispenser for one store: it reserves tickets
// in issue order and grants them in that order, from within the reserve,
// release and cancel calls themselves, while allowing concurrent readers.
type TokenSource struct {
	mu      sync.Mutex
	pending []*ticket
	active  int // count of currently-admitted readers, or -1 while a writer holds the store
}

// NewTokenSource returns an idle TokenSource.
func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

// AdmissionHandle is a scoped ticket: Wait blocks (cancellably) until the
// engine admits this ticket in FIFO order; Release must be called exactly
// once, exiting the ticket so the next waiter (if any) can be admitted.
type AdmissionHandle struct {
	source   *TokenSource
	t        *ticket
	released bool
}

// NewReadToken reserves a read ticket immediately, preserving issue order,
// and returns its scoped admission handle.
func (s *TokenSource) NewReadToken() *AdmissionHandle {
	return s.reserve(readTicket)
}

// NewWriteToken reserves a write ticket immediately, preserving issue order,
// and returns its scoped admission handle.
func (s *TokenSource) NewWriteToken() *AdmissionHandle {
	return s.reserve(writeTicket)
}

func (s *TokenSource) reserve(kind ticketKind) *AdmissionHandle {
	t := &ticket{kind: kind, admit: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.tryAdmitLocked()
	s.mu.Unlock()
	return &AdmissionHandle{source: s, t: t}
}

// tryAdmitLocked admits every ticket at the head of the queue that can
// proceed given the current admission state, stopping at the first ticket
// that cannot (a write ticket when anything is active, or any ticket once a
// write is active). Must be called with s.mu held.
func (s *TokenSource) tryAdmitLocked() {
	for len(s.pending) > 0 {
		head := s.pending[0]
		if s.active < 0 {
			// A writer currently holds the store; nobody else may be admitted.
			return
		}
		if head.kind == writeTicket {
			if s.active > 0 {
				return
			}
			s.active = -1
			s.pending = s.pending[1:]
			close(head.admit)
			return
		}
		// Read ticket: admit it and keep scanning, since later reads queued
		// behind it may also be admissible, but never admit past a write.
		s.active++
		s.pending = s.pending[1:]
		close(head.admit)
	}
}

func (s *TokenSource) releaseTicket(t *ticket) {
	s.mu.Lock()
	if t.kind == writeTicket {
		s.active = 0
	} else if s.active > 0 {
		s.active--
	}
	s.tryAdmitLocked()
	s.mu.Unlock()
}

// Wait blocks until the store admits this ticket, or ctx is cancelled first
// (in which case it returns ErrInterrupted and the ticket is dequeued so
// later waiters are unaffected).
func (h *AdmissionHandle) Wait(ctx context.Context) error {
	select {
	case <-h.t.admit:
		return nil
	case <-ctx.Done():
		h.cancel()
		return ErrInterrupted
	}
}

// cancel removes a not-yet-admitted ticket from the queue on interruption.
func (h *AdmissionHandle) cancel() {
	s := h.source
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.pending {
		if t == h.t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			h.released = true
			s.tryAdmitLocked()
			return
		}
	}
	// Already admitted (race with Wait's ctx.Done branch); release normally
	// so the store's admission state stays consistent.
	if !h.released {
		h.released = true
		go s.releaseTicket(h.t)
	}
}

// Release exits the ticket, admitting the next eligible waiter(s). Safe to
// call multiple times.
func (h *AdmissionHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.source.releaseTicket(h.t)
}

// IsWrite reports whether this handle reserved exclusive (write) admission.
func (h *AdmissionHandle) IsWrite() bool {
	return h.t.kind == writeTicket
}
