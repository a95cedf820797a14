package dbengine

import (
	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/proto"
)

// ColumnSet is an ordered list of a table's columns at one point of its
// schema history. Exactly one column set per table is open at a time; closing
// it freezes the list.
type ColumnSet struct {
	table   *Table
	id      proto.ColumnSetID
	open    bool
	columns []proto.ColumnSetColumnID
}

func (cs *ColumnSet) ID() proto.ColumnSetID { return cs.id }
func (cs *ColumnSet) Table() *Table         { return cs.table }
func (cs *ColumnSet) Open() bool            { return cs.open }

// Columns returns the member ids in position order.
func (cs *ColumnSet) Columns() []proto.ColumnSetColumnID {
	out := make([]proto.ColumnSetColumnID, len(cs.columns))
	copy(out, cs.columns)
	return out
}

func (cs *ColumnSet) addColumnUnlocked(col *Column, def *ColumnDefinition) error {
	if !cs.open {
		return errors.New(errors.CodeColumnSetDoesNotExist,
			"database '%s': column set %d is closed", cs.table.database.name, cs.id)
	}
	db := cs.table.database
	id, err := db.generateNextColumnSetColumnID(cs.table.IsSystemTable())
	if err != nil {
		return err
	}
	if err := db.columnSetColumnRegistry.Insert(&reg.ColumnSetColumnRecord{
		ID:                 id,
		ColumnSetID:        cs.id,
		ColumnID:           col.id,
		ColumnDefinitionID: def.id,
		Position:           uint32(len(cs.columns)),
	}); err != nil {
		return mapRegistryError(err, errors.CodeColumnSetDoesNotExist)
	}
	cs.columns = append(cs.columns, id)
	return nil
}
