package kvstore

import (
	"errors"
	"fmt"
)

// ErrRegionMismatch reports a violated routing precondition: a shard was
// asked to serve a region it does not own, or a write's region did not
// match the sub-region it was asked to handle.
var ErrRegionMismatch = errors.New("kvstore: region mismatch")

// ErrArityMismatch reports that unshard received a response count that
// violates the arity the originating query's shard calls promised.
var ErrArityMismatch = errors.New("kvstore: arity mismatch")

// IncrDecrKind distinguishes increment from decrement in IncrDecr.
type IncrDecrKind int

const (
	Incr IncrDecrKind = iota
	Decr
)

// AppendPrependKind distinguishes append from prepend.
type AppendPrependKind int

const (
	Append AppendPrependKind = iota
	Prepend
)

// InvalidCas in a write's OldCas means "do not check the CAS"; in its
// ProposedCas it means the engine mints a fresh CAS for the new value.
const InvalidCas uint64 = 0

// Read is the sum type of point-get and range-get queries.
type Read struct {
	// Get, when non-nil, selects the point-get variant.
	Get *GetQuery
	// RGet, when non-nil, selects the range-get variant.
	RGet *RGetQuery
}

// GetQuery is a point read.
type GetQuery struct {
	Key []byte
}

// RGetQuery is a range read over (LeftMode, Left, RightMode, Right).
type RGetQuery struct {
	LeftMode  BoundMode
	Left      []byte
	RightMode BoundMode
	Right     []byte
}

// NewGet builds a Read wrapping a point-get.
func NewGet(key []byte) Read { return Read{Get: &GetQuery{Key: key}} }

// NewRGet builds a Read wrapping a range-get, converting the caller's bound
// modes into internal form.
func NewRGet(leftMode BoundMode, left []byte, rightMode BoundMode, right []byte) Read {
	return Read{RGet: &RGetQuery{
		LeftMode:  ConvertBoundMode(leftMode),
		Left:      left,
		RightMode: ConvertBoundMode(rightMode),
		Right:     right,
	}}
}

// GetRegion returns the region this read touches: [key,key] closed for a
// point-get, or the converted bounds for a range-get.
func (r Read) GetRegion() Region {
	if r.Get != nil {
		return Point(r.Get.Key)
	}
	return Region{LeftMode: r.RGet.LeftMode, Left: r.RGet.Left, RightMode: r.RGet.RightMode, Right: r.RGet.Right}
}

// Shard rewrites r to serve only sub-region s of its own region. Point-gets
// require s == GetRegion() and return unchanged; range-gets require
// s ⊆ GetRegion() and rewrite to the canonical internal shape so every
// shard receives a query of the same form regardless of how the caller
// phrased bounds.
func (r Read) Shard(s Region) (Read, error) {
	own := r.GetRegion()
	if r.Get != nil {
		if !s.Equal(own) {
			return Read{}, fmt.Errorf("%w: point-get shard region differs from key region", ErrRegionMismatch)
		}
		return r, nil
	}
	if !own.IsSupersetOf(s) {
		return Read{}, fmt.Errorf("%w: rget shard region is not a sub-region of the query", ErrRegionMismatch)
	}
	cs := Canonical(s)
	rightMode, right := Open, cs.Right
	if cs.RightMode == None {
		rightMode, right = None, nil
	}
	return Read{RGet: &RGetQuery{
		LeftMode:  Closed,
		Left:      cs.Left,
		RightMode: rightMode,
		Right:     right,
	}}, nil
}

// ReadResponse is the sum type returned by the read executor.
type ReadResponse struct {
	GetResult  *GetResult
	RGetResult *RGetResult
}

// GetResult is the outcome of a point-get: either a hit (Found true) or a miss.
type GetResult struct {
	Found bool
	Value []byte
	Flags uint32
	Cas   uint64
}

// RGetEntry is one (key, value) pair of a range-get result, in ascending
// key order.
type RGetEntry struct {
	Key   []byte
	Value []byte
	Flags uint32
	Cas   uint64
}

// RGetResult holds a materialized, ascending-order slice of matches.
// Superblock.ExecuteRead fills it from engine.rget, not from a lazy
// sequence; the lazy single-pass form is RangeCursor in cursor.go, which
// ExecuteRead does not use. Unshard and the tests work against the
// materialized form.
type RGetResult struct {
	Entries []RGetEntry
}

// Unshard combines per-shard responses for r into one logical response.
// Point-gets require exactly one response and unwrap it. Range-gets
// concatenate every shard's entries via a merge-ordered walk that produces
// keys in globally ascending order; a tie on equal keys cannot occur
// because shard regions are disjoint by construction.
func (r Read) Unshard(responses []ReadResponse) (ReadResponse, error) {
	if r.Get != nil {
		if len(responses) != 1 {
			return ReadResponse{}, fmt.Errorf("%w: point-get expects exactly one response, got %d", ErrArityMismatch, len(responses))
		}
		if responses[0].GetResult == nil {
			return ReadResponse{}, fmt.Errorf("%w: expected a get result", ErrArityMismatch)
		}
		return responses[0], nil
	}
	sequences := make([][]RGetEntry, 0, len(responses))
	for _, resp := range responses {
		if resp.RGetResult == nil {
			return ReadResponse{}, fmt.Errorf("%w: expected an rget result", ErrArityMismatch)
		}
		sequences = append(sequences, resp.RGetResult.Entries)
	}
	return ReadResponse{RGetResult: &RGetResult{Entries: mergeOrdered(sequences)}}, nil
}

// mergeOrdered merges N ascending-key sequences into one ascending-key
// sequence using a straightforward repeated-min scan. N is the shard count
// for one query, expected to be small, so a min-heap is unnecessary.
func mergeOrdered(sequences [][]RGetEntry) []RGetEntry {
	idx := make([]int, len(sequences))
	var out []RGetEntry
	for {
		best := -1
		for i, seq := range sequences {
			if idx[i] >= len(seq) {
				continue
			}
			if best == -1 || ltBytes(seq[idx[i]].Key, sequences[best][idx[best]].Key) {
				best = i
			}
		}
		if best == -1 {
			return out
		}
		out = append(out, sequences[best][idx[best]])
		idx[best]++
	}
}

// Write is the sum type of every mutation variant. Exactly one field is
// non-nil.
type Write struct {
	GetCas         *GetCasWrite
	Sarc           *SarcWrite
	IncrDecr       *IncrDecrWrite
	AppendPrepend  *AppendPrependWrite
	Delete         *DeleteWrite
}

type GetCasWrite struct {
	Key []byte
}

type SarcWrite struct {
	Key            []byte
	Data           []byte
	Flags          uint32
	Exptime        uint32
	AddPolicy      bool
	ReplacePolicy  bool
	OldCas         uint64
	ProposedCas    uint64
}

type IncrDecrWrite struct {
	Key    []byte
	Kind   IncrDecrKind
	Amount int64
}

type AppendPrependWrite struct {
	Key  []byte
	Data []byte
	Kind AppendPrependKind
}

type DeleteWrite struct {
	Key                 []byte
	DontPutInDeleteQueue bool
}

// Key returns the single key every write variant carries.
func (w Write) Key() []byte {
	switch {
	case w.GetCas != nil:
		return w.GetCas.Key
	case w.Sarc != nil:
		return w.Sarc.Key
	case w.IncrDecr != nil:
		return w.IncrDecr.Key
	case w.AppendPrepend != nil:
		return w.AppendPrepend.Key
	case w.Delete != nil:
		return w.Delete.Key
	}
	return nil
}

// GetRegion returns [key,key] closed, since every write variant touches
// exactly one key.
func (w Write) GetRegion() Region {
	return Point(w.Key())
}

// Shard requires s == GetRegion() (writes are always single-key) and
// returns w unchanged.
func (w Write) Shard(s Region) (Write, error) {
	if !s.Equal(w.GetRegion()) {
		return Write{}, fmt.Errorf("%w: write shard region differs from key region", ErrRegionMismatch)
	}
	return w, nil
}

// WriteResponse is the sum type returned by the write executor.
type WriteResponse struct {
	Ok       bool
	NotFound bool
	Conflict bool
	// NumericResult carries incr/decr's resulting value when the write was
	// an IncrDecrWrite that succeeded.
	NumericResult *int64
	// Cas is the CAS assigned to the write, when applicable and successful.
	Cas uint64
}

// Unshard requires exactly one response for a write (writes are always
// single-key, so they are never actually sharded across stores) and returns
// it unchanged.
func (w Write) Unshard(responses []WriteResponse) (WriteResponse, error) {
	if len(responses) != 1 {
		return WriteResponse{}, fmt.Errorf("%w: write expects exactly one response, got %d", ErrArityMismatch, len(responses))
	}
	return responses[0], nil
}
