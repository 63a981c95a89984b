package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMetainfoMismatch is returned by CheckMetainfo when the caller's expected
// view of the metainfo no longer matches what is persisted.
var ErrMetainfoMismatch = errors.New("kvstore: metainfo mismatch")

// MetainfoArea is the superblock's reserved key/value area that persists the
// region-keyed metainfo map. It is satisfied by a dedicated small B-tree
// (see Store.metaTree) so the same transactional/versioned machinery
// that guards the data tree also guards metainfo updates.
type MetainfoArea interface {
	// ReadAll returns every (key_blob, value_blob) pair currently stored.
	ReadAll(ctx context.Context) ([]KeyValue, error)
	// Clear removes every pair from the area.
	Clear(ctx context.Context) error
	// Put writes (or overwrites) one (key_blob, value_blob) pair.
	Put(ctx context.Context, keyBlob, valueBlob []byte) error
}

// KeyValue is a raw (key_blob, value_blob) pair as persisted in the
// metainfo area.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// EncodeRegionKey serializes a region as the self-describing, stable form
// described by the on-disk format: u8 left_mode | varint-len + left key
// bytes | u8 right_mode | (if right_mode != None) varint-len + right key
// bytes.
func EncodeRegionKey(r Region) []byte {
	cr := Canonical(r)
	buf := make([]byte, 0, 2+len(cr.Left)+len(cr.Right)+10)
	buf = append(buf, byte(cr.LeftMode))
	buf = appendVarintBytes(buf, cr.Left)
	buf = append(buf, byte(cr.RightMode))
	if cr.RightMode != None {
		buf = appendVarintBytes(buf, cr.Right)
	}
	return buf
}

// DecodeRegionKey is the inverse of EncodeRegionKey.
func DecodeRegionKey(data []byte) (Region, error) {
	if len(data) < 1 {
		return Region{}, fmt.Errorf("kvstore: region key too short")
	}
	leftMode := BoundMode(data[0])
	rest := data[1:]
	left, rest, err := readVarintBytes(rest)
	if err != nil {
		return Region{}, err
	}
	if len(rest) < 1 {
		return Region{}, fmt.Errorf("kvstore: region key missing right mode")
	}
	rightMode := BoundMode(rest[0])
	rest = rest[1:]
	var right []byte
	if rightMode != None {
		right, rest, err = readVarintBytes(rest)
		if err != nil {
			return Region{}, err
		}
	}
	if len(rest) != 0 {
		return Region{}, fmt.Errorf("kvstore: trailing bytes in region key")
	}
	return Region{LeftMode: leftMode, Left: left, RightMode: rightMode, Right: right}, nil
}

func appendVarintBytes(buf []byte, b []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, b...)
	return buf
}

func readVarintBytes(data []byte) (value, rest []byte, err error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, fmt.Errorf("kvstore: bad varint length prefix")
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, nil, fmt.Errorf("kvstore: truncated key bytes")
	}
	return data[:length], data[length:], nil
}

// GetMetainfoInternal reads every pair from area and assembles the region
// map whose value for each region is the raw value blob. Postcondition: the
// resulting map's domain equals Universe().
func GetMetainfoInternal(ctx context.Context, area MetainfoArea) (RegionMap[[]byte], error) {
	pairs, err := area.ReadAll(ctx)
	if err != nil {
		return RegionMap[[]byte]{}, err
	}
	entries := make([]Entry[[]byte], 0, len(pairs))
	for _, p := range pairs {
		r, err := DecodeRegionKey(p.Key)
		if err != nil {
			return RegionMap[[]byte]{}, fmt.Errorf("kvstore: corrupt metainfo key: %w", err)
		}
		entries = append(entries, Entry[[]byte]{Region: r, Value: p.Value})
	}
	sortEntries(entries)
	m := RegionMap[[]byte]{}
	for _, e := range entries {
		m.Append(e)
	}
	if m.GetDomain().LeftMode != None || m.GetDomain().RightMode != None {
		return m, fmt.Errorf("kvstore: metainfo domain is not universe")
	}
	return m, nil
}

// Append adds an entry directly without invariant checking. Used only while
// bootstrapping a map from a trusted, already-disjoint source such as the
// on-disk metainfo area.
func (m *RegionMap[V]) Append(e Entry[V]) {
	m.entries = append(m.entries, e)
}

func sortEntries[V any](entries []Entry[V]) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && ltBytesOrUnbounded(entries[j].Region, entries[j-1].Region); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func ltBytesOrUnbounded(a, b Region) bool {
	if a.LeftMode == None {
		return b.LeftMode != None
	}
	if b.LeftMode == None {
		return false
	}
	return ltBytes(a.Left, b.Left)
}

// UpdateMetainfo computes updated = old.Update(newMap), asserts the result's
// domain is Universe, clears the on-disk metainfo area and rewrites every
// (region, blob) pair in left-to-right order.
func UpdateMetainfo(ctx context.Context, area MetainfoArea, old, newMap RegionMap[[]byte]) (RegionMap[[]byte], error) {
	updated, err := old.Update(newMap)
	if err != nil {
		return RegionMap[[]byte]{}, err
	}
	domain := updated.GetDomain()
	if domain.LeftMode != None || domain.RightMode != None {
		return RegionMap[[]byte]{}, fmt.Errorf("kvstore: %w: updated metainfo domain is not universe", ErrInvariantViolated)
	}
	if err := area.Clear(ctx); err != nil {
		return RegionMap[[]byte]{}, err
	}
	var writeErr error
	updated.Iterate(func(r Region, blob []byte) bool {
		if err := area.Put(ctx, EncodeRegionKey(r), blob); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return RegionMap[[]byte]{}, writeErr
	}
	return updated, nil
}

// CheckMetainfo loads the current metainfo and requires that
// current.Mask(expected.GetDomain()) equals expected exactly, returning the
// full current map on success.
func CheckMetainfo(ctx context.Context, area MetainfoArea, expected RegionMap[[]byte]) (RegionMap[[]byte], error) {
	current, err := GetMetainfoInternal(ctx, area)
	if err != nil {
		return RegionMap[[]byte]{}, err
	}
	masked := current.Mask(expected.GetDomain())
	if !regionMapEqual(masked, expected) {
		return current, ErrMetainfoMismatch
	}
	return current, nil
}

func regionMapEqual(a, b RegionMap[[]byte]) bool {
	ea, eb := a.Entries(), b.Entries()
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if !ea[i].Region.Equal(eb[i].Region) {
			return false
		}
		if string(ea[i].Value) != string(eb[i].Value) {
			return false
		}
	}
	return true
}

// CheckAndUpdateMetainfo composes CheckMetainfo and UpdateMetainfo so both
// happen atomically within the caller's already-acquired write transaction.
func CheckAndUpdateMetainfo(ctx context.Context, area MetainfoArea, expected, newMap RegionMap[[]byte]) (RegionMap[[]byte], error) {
	current, err := CheckMetainfo(ctx, area, expected)
	if err != nil {
		return RegionMap[[]byte]{}, err
	}
	return UpdateMetainfo(ctx, area, current, newMap)
}
