package dbengine

import (
	"github.com/govindnetworks/siodb/proto"
)

// IndexColumnSpecification is one key part of an index.
type IndexColumnSpecification struct {
	Column         *Column
	SortDescending bool
}

// Index is a loaded index object.
type Index struct {
	table     *Table
	id        proto.IndexID
	name      string
	indexType proto.IndexType
	unique    bool
	columns   []IndexColumnSpecification
}

func (ix *Index) ID() proto.IndexID     { return ix.id }
func (ix *Index) Name() string          { return ix.name }
func (ix *Index) Table() *Table         { return ix.table }
func (ix *Index) Type() proto.IndexType { return ix.indexType }
func (ix *Index) Unique() bool          { return ix.unique }

// Columns returns the key parts in ordinal order.
func (ix *Index) Columns() []IndexColumnSpecification {
	out := make([]IndexColumnSpecification, len(ix.columns))
	copy(out, ix.columns)
	return out
}
