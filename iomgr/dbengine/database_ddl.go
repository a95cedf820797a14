package dbengine

import (
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/metrics"
	"github.com/govindnetworks/siodb/proto"
)

// userTableFirstUserTrid is the first row id of a user table; user tables
// have no system row range.
const userTableFirstUserTrid = 1

// CreateUserTable validates the whole column specification batch, then
// creates the table, its master column, the user columns and their
// constraints atomically: on any validation failure nothing is registered.
func (db *Database) CreateUserTable(
	name string, tableType proto.TableType,
	columnSpecs []ColumnSpecification, currentUserID proto.UserID,
) (*Table, error) {
	if tableType != proto.TableTypeDisk {
		return nil, errors.New(errors.CodeTableTypeNotSupported,
			"table type %v is not supported", tableType)
	}
	if !isValidDatabaseObjectName(name) {
		return nil, errors.New(errors.CodeInvalidTableName, "invalid table name '%s'", name)
	}

	log.Debugf("database '%s': creating user table '%s'", db.name, name)
	metrics.CatalogOperations.WithLabelValues("create_user_table").Inc()

	db.mu.Lock()
	defer db.mu.Unlock()

	compound := &errors.CompoundError{}
	knownColumns := make(map[string]struct{}, len(columnSpecs))
	knownConstraints := make(map[string]struct{})

	for i := range columnSpecs {
		columnSpec := &columnSpecs[i]

		if !isValidDatabaseObjectName(columnSpec.Name) {
			compound.Add(errors.New(errors.CodeInvalidColumnName,
				"invalid column name '%s'", columnSpec.Name))
			continue
		}

		if _, ok := knownColumns[columnSpec.Name]; ok {
			compound.Add(errors.New(errors.CodeCreateTableDuplicateColumnName,
				"duplicate column name '%s'", columnSpec.Name))
			continue
		}
		knownColumns[columnSpec.Name] = struct{}{}

		// Constraint names must be unique among themselves and against the
		// database. Empty names are placeholders for generated names and are
		// assumed unique here.
		constraintCounts := make(map[proto.ConstraintType]int)
		for j := range columnSpec.Constraints {
			constraintSpec := &columnSpec.Constraints[j]
			constraintCounts[constraintSpec.Type]++
			if constraintSpec.Name == "" {
				continue
			}
			if !isValidDatabaseObjectName(constraintSpec.Name) {
				compound.Add(errors.New(errors.CodeInvalidConstraintName,
					"invalid constraint name '%s'", constraintSpec.Name))
				continue
			}
			if _, ok := knownConstraints[constraintSpec.Name]; ok {
				compound.Add(errors.New(errors.CodeCreateTableDuplicateConstraintName,
					"duplicate constraint name '%s'", constraintSpec.Name))
			}
			knownConstraints[constraintSpec.Name] = struct{}{}
			if db.constraintRegistry.ContainsName(constraintSpec.Name) {
				compound.Add(errors.New(errors.CodeConstraintAlreadyExists,
					"constraint '%s' already exists in database '%s'",
					constraintSpec.Name, db.name))
			}
		}

		// Each constraint type at most once per column.
		for constraintType, count := range constraintCounts {
			if count > 1 {
				compound.Add(errors.New(errors.CodeCreateTableDuplicateColumnConstraintType,
					"duplicate %s constraint for column '%s'",
					constraintType, columnSpec.Name))
			}
		}
	}

	if !compound.Empty() {
		return nil, compound
	}

	table, err := db.createTableUnlocked(name, tableType, userTableFirstUserTrid, false)
	if err != nil {
		return nil, err
	}

	for i := range columnSpecs {
		if _, err := table.createColumnUnlocked(columnSpecs[i]); err != nil {
			db.rollbackTableCreationUnlocked(table)
			return nil, err
		}
	}

	if err := table.closeCurrentColumnSetUnlocked(); err != nil {
		db.rollbackTableCreationUnlocked(table)
		return nil, err
	}

	tp := TransactionParameters{
		UserID:        currentUserID,
		TransactionID: db.generateNextTransactionIDUnlocked(),
	}
	if err := db.recordTableDefinitionUnlocked(table, tp); err != nil {
		db.rollbackTableCreationUnlocked(table)
		return nil, err
	}
	return table, nil
}

// DropTable removes a user table and every record that belongs to it.
// System tables cannot be dropped. Interned constraint definitions stay.
func (db *Database) DropTable(
	name string, tableMustExist bool, currentUserID proto.UserID,
) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, ok := db.tableRegistry.ByName(name)
	if !ok {
		if tableMustExist {
			return false, errors.New(errors.CodeTableDoesNotExist,
				"table '%s'.'%s' does not exist", db.name, name)
		}
		return false, nil
	}
	if uint64(rec.ID) < FirstUserTableID {
		return false, errors.New(errors.CodeCannotDropSystemObject,
			"cannot drop system table '%s'.'%s'", db.name, name)
	}

	table := db.getTableFromRecordUnlocked(rec)
	if table == nil {
		return false, errors.New(errors.CodeTableDoesNotExist,
			"table '%s'.'%s' failed to load", db.name, name)
	}
	db.rollbackTableCreationUnlocked(table)
	if err := db.saveSystemObjectsUnlocked(); err != nil {
		return false, err
	}
	log.Debugf("database '%s': user %d dropped table '%s'", db.name, currentUserID, name)
	return true, nil
}

// createTableUnlocked creates and registers a table with its current column
// set and master column.
func (db *Database) createTableUnlocked(
	name string, tableType proto.TableType, firstUserTrid uint64, system bool,
) (*Table, error) {
	if db.tableRegistry.ContainsName(name) {
		return nil, errors.New(errors.CodeTableAlreadyExists,
			"table '%s'.'%s' already exists", db.name, name)
	}

	id, err := db.generateNextTableID(system)
	if err != nil {
		return nil, err
	}
	table := newTable(db, &reg.TableRecord{
		ID:            id,
		Type:          tableType,
		Name:          name,
		FirstUserTrid: firstUserTrid,
	})
	if err := db.registerTableUnlocked(table); err != nil {
		return nil, err
	}
	db.tableCache.emplace(uint64(table.id), table)

	if _, err := table.createColumnSetUnlocked(system); err != nil {
		return nil, err
	}
	if _, err := table.createMasterColumnUnlocked(); err != nil {
		return nil, err
	}
	return table, nil
}

// rollbackTableCreationUnlocked removes every record registered for the
// table during a failed creation. Interned constraint definitions stay, they
// live for the database's lifetime.
func (db *Database) rollbackTableCreationUnlocked(table *Table) {
	for _, rec := range db.constraintRegistry.All() {
		if rec.TableID == table.id {
			db.constraintRegistry.Erase(rec.ID)
		}
	}
	for _, rec := range db.columnDefinitionConstraintRegistry.All() {
		if colDef, ok := db.columnDefinitionRegistry.ByID(rec.ColumnDefinitionID); ok {
			if colRec, ok := db.columnRegistry.ByID(colDef.ColumnID); ok && colRec.TableID == table.id {
				db.columnDefinitionConstraintRegistry.Erase(rec.ID)
			}
		}
	}
	for _, rec := range db.columnDefinitionRegistry.All() {
		if colRec, ok := db.columnRegistry.ByID(rec.ColumnID); ok && colRec.TableID == table.id {
			db.columnDefinitionRegistry.Erase(rec.ID)
		}
	}
	for _, rec := range db.columnSetColumnRegistry.All() {
		if csRec, ok := db.columnSetRegistry.ByID(rec.ColumnSetID); ok && csRec.TableID == table.id {
			db.columnSetColumnRegistry.Erase(rec.ID)
		}
	}
	for _, rec := range db.columnSetRegistry.All() {
		if rec.TableID == table.id {
			db.columnSetRegistry.Erase(rec.ID)
		}
	}
	for _, rec := range db.columnRegistry.All() {
		if rec.TableID == table.id {
			db.columnRegistry.Erase(rec.ID)
		}
	}
	db.tableCache.erase(uint64(table.id))
	db.tableRegistry.Erase(table.id)
}

// recordTableDefinitionUnlocked persists the catalog after a table DDL
// operation; the in-memory mutation is kept only when persistence succeeds.
func (db *Database) recordTableDefinitionUnlocked(table *Table, tp TransactionParameters) error {
	if err := db.saveSystemObjectsUnlocked(); err != nil {
		return err
	}
	log.Debugf("database '%s': recorded table '%s' definition, txn %d, user %d",
		db.name, table.name, tp.TransactionID, tp.UserID)
	return nil
}

func (db *Database) generateNextTransactionIDUnlocked() proto.TransactionID {
	meta := db.metadataFile.Metadata()
	next := meta.LastTransactionID() + 1
	meta.SetLastTransactionID(next)
	return next
}

// ---- system table bootstrap ----

// createSystemTablesUnlocked creates the catalog system tables. Until a
// system table is bound, ids of its kind come from the in-memory temporary
// counters; binding hands the counter value over to the table's system TRID
// counter exactly once.
func (db *Database) createSystemTablesUnlocked() error {
	systemTables := []struct {
		name          string
		firstUserTrid uint64
	}{
		{SysTablesTableName, FirstUserTableID},
		{SysDummyTableName, FirstUserTableID},
		{SysColumnSetsTableName, FirstUserColumnSetID},
		{SysColumnsTableName, FirstUserColumnID},
		{SysColumnDefsTableName, FirstUserColumnDefinitionID},
		{SysColumnSetColumnsTableName, FirstUserColumnSetColumnID},
		{SysColumnDefConstraintsTableName, FirstUserColumnDefinitionConstraintID},
		{SysConstraintDefsTableName, FirstUserTableConstraintDefinitionID},
		{SysConstraintsTableName, FirstUserConstraintID},
		{SysIndicesTableName, FirstUserIndexID},
		{SysIndexColumnsTableName, FirstUserIndexColumnID},
	}
	for _, st := range systemTables {
		table, err := db.createTableUnlocked(st.name, proto.TableTypeDisk, st.firstUserTrid, true)
		if err != nil {
			return err
		}
		if err := table.closeCurrentColumnSetUnlocked(); err != nil {
			return err
		}
		db.bindSystemTableUnlocked(table)
	}
	return nil
}

func (db *Database) bindSystemTableUnlocked(table *Table) {
	switch table.name {
	case SysTablesTableName:
		db.sysTablesTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastTableID
	case SysDummyTableName:
		db.sysDummyTable = table
	case SysColumnSetsTableName:
		db.sysColumnSetsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastColumnSetID
	case SysColumnsTableName:
		db.sysColumnsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastColumnID
	case SysColumnDefsTableName:
		db.sysColumnDefsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastColumnDefinitionID
	case SysColumnSetColumnsTableName:
		db.sysColumnSetColumnsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastColumnSetColumnID
	case SysColumnDefConstraintsTableName:
		db.sysColumnDefConstraintsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastColumnDefinitionConstraintID
	case SysConstraintDefsTableName:
		db.sysConstraintDefsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastConstraintDefinitionID
	case SysConstraintsTableName:
		db.sysConstraintsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastConstraintID
	case SysIndicesTableName:
		db.sysIndicesTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastIndexID
	case SysIndexColumnsTableName:
		db.sysIndexColumnsTable = table
		table.rec.CurrentSystemTrid = db.tmpTridCounters.lastIndexColumnID
	}
}

// bindLoadedSystemTablesUnlocked resolves system table pointers after
// loading an existing database.
func (db *Database) bindLoadedSystemTablesUnlocked() error {
	names := []string{
		SysTablesTableName, SysDummyTableName, SysColumnSetsTableName, SysColumnsTableName,
		SysColumnDefsTableName, SysColumnSetColumnsTableName, SysColumnDefConstraintsTableName,
		SysConstraintDefsTableName, SysConstraintsTableName, SysIndicesTableName,
		SysIndexColumnsTableName,
	}
	for _, name := range names {
		table := db.getTableUnlocked(name)
		if table == nil {
			return errors.New(errors.CodeMissingSystemTable,
				"database '%s' (%d): missing system table '%s'", db.name, db.id, name)
		}
		switch name {
		case SysTablesTableName:
			db.sysTablesTable = table
		case SysDummyTableName:
			db.sysDummyTable = table
		case SysColumnSetsTableName:
			db.sysColumnSetsTable = table
		case SysColumnsTableName:
			db.sysColumnsTable = table
		case SysColumnDefsTableName:
			db.sysColumnDefsTable = table
		case SysColumnSetColumnsTableName:
			db.sysColumnSetColumnsTable = table
		case SysColumnDefConstraintsTableName:
			db.sysColumnDefConstraintsTable = table
		case SysConstraintDefsTableName:
			db.sysConstraintDefsTable = table
		case SysConstraintsTableName:
			db.sysConstraintsTable = table
		case SysIndicesTableName:
			db.sysIndicesTable = table
		case SysIndexColumnsTableName:
			db.sysIndexColumnsTable = table
		}
	}
	return nil
}

// ---- constraints ----

// CreateConstraintDefinition interns the (type, expression) pair within the
// requested id partition and reports whether an existing definition was
// reused.
func (db *Database) CreateConstraintDefinition(
	system bool, constraintType proto.ConstraintType, expression Expression,
) (*ConstraintDefinition, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.createConstraintDefinitionUnlocked(system, constraintType, expression)
}

// FindOrCreateConstraintDefinition is the pre-serialized variant used when
// loading constraints from storage; the expression is deserialized only on
// an interning miss.
func (db *Database) FindOrCreateConstraintDefinition(
	system bool, constraintType proto.ConstraintType, serializedExpression []byte,
) (*ConstraintDefinition, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	hash := reg.ComputeConstraintDefinitionHash(constraintType, serializedExpression)
	probe := &reg.ConstraintDefinitionRecord{
		Type:       constraintType,
		Expression: serializedExpression,
	}
	if def := db.findConstraintDefinitionUnlocked(system, hash, probe); def != nil {
		return def, nil
	}

	expression, _, err := DeserializeExpression(serializedExpression)
	if err != nil {
		return nil, errors.New(errors.CodeConstraintDefinitionDoesNotExist,
			"database '%s': cannot deserialize constraint expression: %v", db.name, err)
	}
	def, _, err := db.newConstraintDefinitionUnlocked(system, constraintType, expression)
	return def, err
}

func (db *Database) createConstraintDefinitionUnlocked(
	system bool, constraintType proto.ConstraintType, expression Expression,
) (*ConstraintDefinition, bool, error) {
	serialized := expression.Serialize()
	hash := reg.ComputeConstraintDefinitionHash(constraintType, serialized)
	probe := &reg.ConstraintDefinitionRecord{
		Type:       constraintType,
		Expression: serialized,
	}
	if def := db.findConstraintDefinitionUnlocked(system, hash, probe); def != nil {
		return def, true, nil
	}
	def, existing, err := db.newConstraintDefinitionUnlocked(system, constraintType, expression)
	return def, existing, err
}

func (db *Database) createSystemConstraintDefinitionUnlocked(
	constraintType proto.ConstraintType, expression Expression,
) (*ConstraintDefinition, error) {
	def, _, err := db.createConstraintDefinitionUnlocked(true, constraintType, expression)
	return def, err
}

// findConstraintDefinitionUnlocked scans the hash bucket for a definition
// with matching partition, type and expression bytes.
func (db *Database) findConstraintDefinitionUnlocked(
	system bool, hash uint64, probe *reg.ConstraintDefinitionRecord,
) *ConstraintDefinition {
	var found *reg.ConstraintDefinitionRecord
	db.constraintDefinitionRegistry.ByHash(hash, func(rec *reg.ConstraintDefinitionRecord) bool {
		if (rec.ID < FirstUserTableConstraintDefinitionID) == system && rec.IsEqualDefinition(probe) {
			found = rec
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return db.getConstraintDefinitionUnlocked(found.ID)
}

func (db *Database) newConstraintDefinitionUnlocked(
	system bool, constraintType proto.ConstraintType, expression Expression,
) (*ConstraintDefinition, bool, error) {
	id, err := db.generateNextConstraintDefinitionID(system)
	if err != nil {
		return nil, false, err
	}
	def := &ConstraintDefinition{
		database:       db,
		id:             id,
		constraintType: constraintType,
		expression:     expression,
		hash: reg.ComputeConstraintDefinitionHash(
			constraintType, expression.Serialize()),
	}
	if err := db.constraintDefinitionRegistry.Insert(def.record()); err != nil {
		return nil, false, mapRegistryError(err, errors.CodeConstraintDefinitionDoesNotExist)
	}
	db.constraintDefinitionCache.emplace(uint64(def.id), def)
	return def, false, nil
}

// CreateConstraint attaches a constraint definition to a table or to one of
// its columns under the given name.
func (db *Database) CreateConstraint(
	table *Table, column *Column, name string, definition *ConstraintDefinition,
) (*Constraint, error) {
	if err := db.checkTableBelongsToThisDatabase(table, "CreateConstraint"); err != nil {
		return nil, err
	}
	if column != nil {
		if err := table.checkColumnBelongsToTable(column, "CreateConstraint"); err != nil {
			return nil, err
		}
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.createConstraintUnlocked(table, column, name, definition)
}

func (db *Database) createConstraintUnlocked(
	table *Table, column *Column, name string, definition *ConstraintDefinition,
) (*Constraint, error) {
	if name != "" && db.constraintRegistry.ContainsName(name) {
		return nil, errors.New(errors.CodeConstraintAlreadyExists,
			"constraint '%s' already exists in database '%s'", name, db.name)
	}

	switch definition.constraintType {
	case proto.ConstraintTypeNotNull, proto.ConstraintTypeDefaultValue:
	default:
		return nil, errors.New(errors.CodeConstraintNotSupported,
			"database '%s': constraint definition %d (%s): type %d is not supported",
			db.name, definition.id, db.databaseUUID, definition.constraintType)
	}

	id, err := db.generateNextConstraintID(table.IsSystemTable())
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = generateConstraintName(table, column, definition.constraintType, id)
	}
	constraint := &Constraint{
		id:         id,
		name:       name,
		table:      table,
		column:     column,
		definition: definition,
	}
	if err := db.registerConstraintUnlocked(constraint); err != nil {
		return nil, err
	}
	return constraint, nil
}

// CheckConstraintType verifies that a constraint definition carries the
// expected type for the given target.
func (db *Database) CheckConstraintType(
	table *Table, column *Column, constraintName string,
	definition *ConstraintDefinition, expected proto.ConstraintType,
) error {
	if definition.constraintType == expected {
		return nil
	}
	if column != nil {
		return errors.New(errors.CodeColumnConstraintTypeDoesNotMatch,
			"constraint '%s' on column '%s'.'%s'.'%s': type %d does not match expected %d",
			constraintName, db.name, table.name, column.name,
			definition.constraintType, expected)
	}
	return errors.New(errors.CodeTableConstraintTypeDoesNotMatch,
		"constraint '%s' on table '%s'.'%s': type %d does not match expected %d",
		constraintName, db.name, table.name, definition.constraintType, expected)
}

// ---- indexes ----

// CreateIndex creates and registers an index over the given key parts.
func (db *Database) CreateIndex(
	table *Table, name string, indexType proto.IndexType,
	columns []IndexColumnSpecification, unique bool,
) (*Index, error) {
	if err := db.checkTableBelongsToThisDatabase(table, "CreateIndex"); err != nil {
		return nil, err
	}
	if !isValidDatabaseObjectName(name) {
		return nil, errors.New(errors.CodeInvalidConstraintName, "invalid index name '%s'", name)
	}
	for i := range columns {
		if err := table.checkColumnBelongsToTable(columns[i].Column, "CreateIndex"); err != nil {
			return nil, err
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.indexRegistry.ContainsName(name) {
		return nil, errors.New(errors.CodeConstraintAlreadyExists,
			"index '%s' already exists in database '%s'", name, db.name)
	}
	id, err := db.generateNextIndexID(table.IsSystemTable())
	if err != nil {
		return nil, err
	}
	ix := &Index{
		table:     table,
		id:        id,
		name:      name,
		indexType: indexType,
		unique:    unique,
		columns:   columns,
	}
	if err := db.registerIndexUnlocked(ix); err != nil {
		return nil, err
	}
	return ix, nil
}
