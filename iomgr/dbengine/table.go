package dbengine

import (
	"fmt"
	"math"

	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/proto"
)

// Table is a catalog table object. It holds a non-owning back-reference to
// its database, valid for the database's lifetime, and is reachable through
// the table cache while loaded.
type Table struct {
	database      *Database
	id            proto.TableID
	name          string
	tableType     proto.TableType
	firstUserTrid uint64

	// rec is the registry record; the TRID allocator counters live there so
	// they survive table cache eviction. Mutated under the database mutex.
	rec *reg.TableRecord

	currentColumnSet *ColumnSet
	masterColumn     *Column
	columns          map[proto.ColumnID]*Column
}

func newTable(db *Database, rec *reg.TableRecord) *Table {
	if rec.CurrentUserTrid == 0 {
		rec.CurrentUserTrid = rec.FirstUserTrid - 1
	}
	return &Table{
		database:      db,
		id:            rec.ID,
		name:          rec.Name,
		tableType:     rec.Type,
		firstUserTrid: rec.FirstUserTrid,
		rec:           rec,
		columns:       make(map[proto.ColumnID]*Column),
	}
}

func (t *Table) ID() proto.TableID            { return t.id }
func (t *Table) Name() string                 { return t.name }
func (t *Table) Type() proto.TableType        { return t.tableType }
func (t *Table) Database() *Database          { return t.database }
func (t *Table) DatabaseName() string         { return t.database.name }
func (t *Table) FirstUserTrid() uint64        { return t.firstUserTrid }
func (t *Table) MasterColumn() *Column        { return t.masterColumn }
func (t *Table) CurrentColumnSet() *ColumnSet { return t.currentColumnSet }

func (t *Table) DisplayName() string {
	return fmt.Sprintf("'%s'.'%s'", t.database.name, t.name)
}

// IsSystemTable reports whether the table id falls into the system range.
func (t *Table) IsSystemTable() bool {
	return uint64(t.id) < FirstUserTableID
}

// GenerateNextSystemTrid mints the next row id in the system range of this
// table. System TRIDs must stay below the first user TRID.
func (t *Table) GenerateNextSystemTrid() (uint64, error) {
	next := t.rec.CurrentSystemTrid + 1
	if next >= t.firstUserTrid {
		return 0, errors.New(errors.CodeResourceExhausted,
			"table %s: system TRID range exhausted", t.DisplayName())
	}
	t.rec.CurrentSystemTrid = next
	return next, nil
}

// GenerateNextUserTrid mints the next row id in the user range.
func (t *Table) GenerateNextUserTrid() (uint64, error) {
	if t.rec.CurrentUserTrid == math.MaxUint64 {
		return 0, errors.New(errors.CodeResourceExhausted,
			"table %s: user TRID range exhausted", t.DisplayName())
	}
	t.rec.CurrentUserTrid++
	return t.rec.CurrentUserTrid, nil
}

func (t *Table) checkColumnBelongsToTable(column *Column, operationName string) error {
	if column.table != t {
		return errors.New(errors.CodeColumnDoesNotBelongToTable,
			"%s: column '%s' belongs to table %s, not to %s",
			operationName, column.name, column.table.DisplayName(), t.DisplayName())
	}
	return nil
}

func (t *Table) findColumnUnlocked(name string) *Column {
	rec, ok := t.database.columnRegistry.ByTableAndName(t.id, name)
	if !ok {
		return nil
	}
	return t.columns[rec.ID]
}

// createColumnSetUnlocked opens a fresh column set and makes it current.
func (t *Table) createColumnSetUnlocked(system bool) (*ColumnSet, error) {
	id, err := t.database.generateNextColumnSetID(system)
	if err != nil {
		return nil, err
	}
	cs := &ColumnSet{table: t, id: id, open: true}
	if err := t.database.registerColumnSetUnlocked(cs); err != nil {
		return nil, err
	}
	t.currentColumnSet = cs
	t.rec.CurrentColumnSetID = id
	return cs, nil
}

// createMasterColumnUnlocked adds the implicit first column. Its NOT NULL
// constraint is always backed by a system constraint definition, shared
// across every table of the database.
func (t *Table) createMasterColumnUnlocked() (*Column, error) {
	col, err := t.createColumnInternal(ColumnSpecification{
		Name:     MasterColumnName,
		DataType: proto.ColumnDataTypeUInt64,
		Constraints: []ColumnConstraintSpecification{{
			Type:       proto.ConstraintTypeNotNull,
			Expression: NewConstantExpression(BoolVariant(true)),
		}},
	}, true)
	if err != nil {
		return nil, err
	}
	t.masterColumn = col
	return col, nil
}

// createColumnUnlocked adds a user-visible column per specification.
// Validation of names and constraint batches happens in createUserTable.
func (t *Table) createColumnUnlocked(spec ColumnSpecification) (*Column, error) {
	return t.createColumnInternal(spec, t.IsSystemTable())
}

func (t *Table) createColumnInternal(spec ColumnSpecification, systemConstraintDef bool) (*Column, error) {
	db := t.database
	system := t.IsSystemTable()

	columnID, err := db.generateNextColumnID(system)
	if err != nil {
		return nil, err
	}
	col := &Column{table: t, id: columnID, name: spec.Name, dataType: spec.DataType}
	if err := db.registerColumnUnlocked(col); err != nil {
		return nil, err
	}

	defID, err := db.generateNextColumnDefinitionID(system)
	if err != nil {
		return nil, err
	}
	def := &ColumnDefinition{column: col, id: defID}
	if err := db.columnDefinitionRegistry.Insert(&reg.ColumnDefinitionRecord{
		ID:       defID,
		ColumnID: columnID,
	}); err != nil {
		return nil, mapRegistryError(err, errors.CodeColumnDefinitionDoesNotExist)
	}
	col.currentDefinition = def

	for i := range spec.Constraints {
		cspec := &spec.Constraints[i]
		cd, _, err := db.createConstraintDefinitionUnlocked(
			systemConstraintDef, cspec.Type, cspec.Expression)
		if err != nil {
			return nil, err
		}
		constraint, err := db.createConstraintUnlocked(t, col, cspec.Name, cd)
		if err != nil {
			return nil, err
		}
		linkID, err := db.generateNextColumnDefinitionConstraintID(system)
		if err != nil {
			return nil, err
		}
		if err := db.columnDefinitionConstraintRegistry.Insert(&reg.ColumnDefinitionConstraintRecord{
			ID:                 linkID,
			ColumnDefinitionID: defID,
			ConstraintID:       constraint.id,
		}); err != nil {
			return nil, mapRegistryError(err, errors.CodeColumnDefinitionDoesNotExist)
		}
		def.constraints = append(def.constraints, constraint)
		if cspec.Type == proto.ConstraintTypeNotNull {
			col.notNull = true
			if rec, ok := db.columnRegistry.ByID(columnID); ok {
				updated := *rec
				updated.NotNull = true
				if err := db.columnRegistry.Replace(&updated); err != nil {
					return nil, mapRegistryError(err, errors.CodeColumnDoesNotExist)
				}
			}
		}
	}

	if err := t.currentColumnSet.addColumnUnlocked(col, def); err != nil {
		return nil, err
	}
	t.columns[columnID] = col
	return col, nil
}

// closeCurrentColumnSetUnlocked freezes the open column set: its column list
// becomes immutable and the registry record is updated in place.
func (t *Table) closeCurrentColumnSetUnlocked() error {
	cs := t.currentColumnSet
	if cs == nil || !cs.open {
		return nil
	}
	cs.open = false
	rec, ok := t.database.columnSetRegistry.ByID(cs.id)
	if !ok {
		return errors.New(errors.CodeColumnSetDoesNotExist,
			"database '%s': column set %d does not exist", t.database.name, cs.id)
	}
	updated := *rec
	updated.Open = false
	if err := t.database.columnSetRegistry.Replace(&updated); err != nil {
		return mapRegistryError(err, errors.CodeColumnSetDoesNotExist)
	}
	return nil
}
