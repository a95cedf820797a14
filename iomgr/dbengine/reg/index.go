package reg

import (
	"github.com/cubefs/cubefs/util/btree"
)

const indexDegree = 32

// nameItem maps a unique object name to the object id.
type nameItem struct {
	name string
	id   uint64
}

func (i *nameItem) Less(than btree.Item) bool {
	return i.name < than.(*nameItem).name
}

func (i *nameItem) Copy() btree.Item {
	c := *i
	return &c
}

// nameIndex is a unique name -> id view backed by an ordered tree so that
// callers can also walk records in name order.
type nameIndex struct {
	tree *btree.BTree
}

func newNameIndex() *nameIndex {
	return &nameIndex{tree: btree.New(indexDegree)}
}

func (ix *nameIndex) find(name string) (uint64, bool) {
	item := ix.tree.Get(&nameItem{name: name})
	if item == nil {
		return 0, false
	}
	return item.(*nameItem).id, true
}

func (ix *nameIndex) contains(name string) bool {
	_, ok := ix.find(name)
	return ok
}

func (ix *nameIndex) insert(name string, id uint64) {
	ix.tree.ReplaceOrInsert(&nameItem{name: name, id: id})
}

func (ix *nameIndex) erase(name string) {
	ix.tree.Delete(&nameItem{name: name})
}

// ascend walks (name, id) pairs in ascending name order while fn returns true.
func (ix *nameIndex) ascend(fn func(name string, id uint64) bool) {
	ix.tree.Ascend(func(item btree.Item) bool {
		ni := item.(*nameItem)
		return fn(ni.name, ni.id)
	})
}

// pairItem keys a record by a compound (hi, lo) tuple, e.g. (columnID, id).
type pairItem struct {
	hi uint64
	lo uint64
	id uint64
}

func (i *pairItem) Less(than btree.Item) bool {
	o := than.(*pairItem)
	if i.hi != o.hi {
		return i.hi < o.hi
	}
	return i.lo < o.lo
}

func (i *pairItem) Copy() btree.Item {
	c := *i
	return &c
}

// pairIndex is an ordered (hi, lo) -> id view used for range scans such as
// the column definition history of a single column.
type pairIndex struct {
	tree *btree.BTree
}

func newPairIndex() *pairIndex {
	return &pairIndex{tree: btree.New(indexDegree)}
}

func (ix *pairIndex) insert(hi, lo, id uint64) {
	ix.tree.ReplaceOrInsert(&pairItem{hi: hi, lo: lo, id: id})
}

func (ix *pairIndex) erase(hi, lo uint64) {
	ix.tree.Delete(&pairItem{hi: hi, lo: lo})
}

// ascendGroup walks all entries with the given hi key in ascending lo order.
func (ix *pairIndex) ascendGroup(hi uint64, fn func(lo, id uint64) bool) {
	ix.tree.AscendGreaterOrEqual(&pairItem{hi: hi}, func(item btree.Item) bool {
		pi := item.(*pairItem)
		if pi.hi != hi {
			return false
		}
		return fn(pi.lo, pi.id)
	})
}

// last returns the entry with the greatest lo for the given hi key.
func (ix *pairIndex) last(hi uint64) (lo, id uint64, ok bool) {
	ix.tree.DescendLessOrEqual(&pairItem{hi: hi, lo: ^uint64(0)}, func(item btree.Item) bool {
		pi := item.(*pairItem)
		if pi.hi != hi {
			return false
		}
		lo, id, ok = pi.lo, pi.id, true
		return false
	})
	return lo, id, ok
}
