package kvstore

import (
	"context"
	"strconv"

	"github.com/sharedcode/shardstore/btree"
)

// RangeCursor is the lazy, single-pass sequence a range-get walks: it
// advances the underlying B-tree cursor one item at a time, skipping keys
// outside the region and records that are not currently live (tombstoned or
// expired), instead of materializing the whole match set up front.
type RangeCursor struct {
	tree          btree.BtreeInterface[string, Record]
	region        Region
	effectiveTime uint32
	started       bool
	done          bool
}

// NewRangeCursor returns a RangeCursor over r. Call Next repeatedly until it
// reports ok=false.
func NewRangeCursor(tree btree.BtreeInterface[string, Record], r Region, effectiveTime uint32) *RangeCursor {
	return &RangeCursor{tree: tree, region: r, effectiveTime: effectiveTime}
}

// Next advances to the next live, in-region entry, or reports ok=false once
// the sequence is exhausted.
func (c *RangeCursor) Next(ctx context.Context) (RGetEntry, bool, error) {
	if c.done {
		return RGetEntry{}, false, nil
	}
	for {
		var ok bool
		var err error
		if !c.started {
			c.started = true
			// Find only reports whether an exact key match exists; on a miss
			// it leaves the cursor on a nearby item that can lie before the
			// key, so scanning from First and skipping forward is the only
			// safe way to locate the left bound for an arbitrary region.
			ok, err = c.tree.First(ctx)
		} else {
			ok, err = c.tree.Next(ctx)
		}
		if err != nil {
			return RGetEntry{}, false, err
		}
		if !ok {
			c.done = true
			return RGetEntry{}, false, nil
		}
		item := c.tree.GetCurrentKey()
		key := []byte(item.Key)
		if !c.region.ContainsKey(key) {
			if c.region.RightMode != None && ltBytes(c.region.Right, key) {
				c.done = true
				return RGetEntry{}, false, nil
			}
			continue
		}
		rec, err := c.tree.GetCurrentValue(ctx)
		if err != nil {
			return RGetEntry{}, false, err
		}
		if !isLive(rec, c.effectiveTime) {
			continue
		}
		return RGetEntry{Key: key, Value: rec.Value, Flags: rec.Flags, Cas: rec.Cas}, true, nil
	}
}

// parseDecimal parses a base-10 signed integer the way memcached's incr/decr
// does: the stored value must be entirely numeric or the operation reports a
// conflict rather than a silent reinterpretation.
func parseDecimal(v []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatDecimal(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}
