package kvstore

import (
	"context"

	"github.com/sharedcode/shardstore/btree"
)

// treeMetainfoArea is the MetainfoArea implementation backed by a dedicated
// small B-tree (Store.metaTree), keyed by the encoded region key so the same
// transactional/versioned machinery that guards the data tree also guards
// metainfo updates.
type treeMetainfoArea struct {
	tree btree.BtreeInterface[string, []byte]
}

func newTreeMetainfoArea(tree btree.BtreeInterface[string, []byte]) *treeMetainfoArea {
	return &treeMetainfoArea{tree: tree}
}

func (a *treeMetainfoArea) ReadAll(ctx context.Context) ([]KeyValue, error) {
	var out []KeyValue
	ok, err := a.tree.First(ctx)
	if err != nil {
		return nil, err
	}
	for ok {
		item := a.tree.GetCurrentKey()
		v, err := a.tree.GetCurrentValue(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyValue{Key: []byte(item.Key), Value: v})
		ok, err = a.tree.Next(ctx)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *treeMetainfoArea) Clear(ctx context.Context) error {
	var keys []string
	ok, err := a.tree.First(ctx)
	if err != nil {
		return err
	}
	for ok {
		keys = append(keys, a.tree.GetCurrentKey().Key)
		ok, err = a.tree.Next(ctx)
		if err != nil {
			return err
		}
	}
	for _, k := range keys {
		if _, err := a.tree.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (a *treeMetainfoArea) Put(ctx context.Context, keyBlob, valueBlob []byte) error {
	found, err := a.tree.Find(ctx, string(keyBlob), false)
	if err != nil {
		return err
	}
	if found {
		_, err = a.tree.UpdateCurrentValue(ctx, valueBlob)
		return err
	}
	_, err = a.tree.Add(ctx, string(keyBlob), valueBlob)
	return err
}
