package dbengine

import (
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"

	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine/crypto"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/metrics"
	"github.com/govindnetworks/siodb/proto"
)

// Database is the catalog facade. It owns the engine-wide mutex and every
// registry, cache and system table reference of one database.
type Database struct {
	instance *Instance

	id              proto.DatabaseID
	databaseUUID    uuid.UUID
	name            string
	cipherID        string
	cipher          crypto.Cipher
	cipherBlock     cipher.Block // nil when plaintext
	dataDir         string
	createTimestamp int64

	// system marks the system database.
	system bool

	// mu serializes all catalog state of this database. useCount is the only
	// field mutated outside of it.
	mu       sync.Mutex
	useCount uint64

	tableRegistry                      *reg.TableRegistry
	columnRegistry                     *reg.ColumnRegistry
	columnSetRegistry                  *reg.ColumnSetRegistry
	columnSetColumnRegistry            *reg.ColumnSetColumnRegistry
	columnDefinitionRegistry           *reg.ColumnDefinitionRegistry
	columnDefinitionConstraintRegistry *reg.ColumnDefinitionConstraintRegistry
	constraintRegistry                 *reg.ConstraintRegistry
	constraintDefinitionRegistry       *reg.ConstraintDefinitionRegistry
	indexRegistry                      *reg.IndexRegistry
	indexColumnRegistry                *reg.IndexColumnRegistry

	tableCache                *objectCache
	constraintDefinitionCache *objectCache

	metadataFile *MemoryMappedFile

	sysTablesTable               *Table
	sysDummyTable                *Table
	sysColumnSetsTable           *Table
	sysColumnsTable              *Table
	sysColumnDefsTable           *Table
	sysColumnSetColumnsTable     *Table
	sysColumnDefConstraintsTable *Table
	sysConstraintDefsTable       *Table
	sysConstraintsTable          *Table
	sysIndicesTable              *Table
	sysIndexColumnsTable         *Table

	tmpTridCounters tmpTridCounters
}

// tmpTridCounters mint object ids during bootstrap, before the corresponding
// system tables exist. Each counter hands its value over to the system
// table's TRID counter when the table is bound.
type tmpTridCounters struct {
	lastTableID                      uint64
	lastColumnID                     uint64
	lastColumnDefinitionID           uint64
	lastColumnSetID                  uint64
	lastColumnSetColumnID            uint64
	lastConstraintDefinitionID       uint64
	lastConstraintID                 uint64
	lastColumnDefinitionConstraintID uint64
	lastIndexID                      uint64
	lastIndexColumnID                uint64
}

func newDatabaseObject(instance *Instance, rec *reg.DatabaseRecord) (*Database, error) {
	c, err := crypto.GetCipher(rec.CipherID)
	if err != nil {
		return nil, err
	}
	db := &Database{
		instance:        instance,
		id:              rec.ID,
		databaseUUID:    rec.UUID,
		name:            rec.Name,
		cipherID:        rec.CipherID,
		cipher:          c,
		createTimestamp: rec.CreateTimestamp,

		tableRegistry:                      reg.NewTableRegistry(),
		columnRegistry:                     reg.NewColumnRegistry(),
		columnSetRegistry:                  reg.NewColumnSetRegistry(),
		columnSetColumnRegistry:            reg.NewColumnSetColumnRegistry(),
		columnDefinitionRegistry:           reg.NewColumnDefinitionRegistry(),
		columnDefinitionConstraintRegistry: reg.NewColumnDefinitionConstraintRegistry(),
		constraintRegistry:                 reg.NewConstraintRegistry(),
		constraintDefinitionRegistry:       reg.NewConstraintDefinitionRegistry(),
		indexRegistry:                      reg.NewIndexRegistry(),
		indexColumnRegistry:                reg.NewIndexColumnRegistry(),

		tableCache: newObjectCache("table", instance.options.IOManager.TableCacheCapacity),
		constraintDefinitionCache: newObjectCache(
			"constraint_definition", instance.options.IOManager.TableCacheCapacity),
	}
	if c != nil {
		block, err := c.NewBlock(instance.databaseCipherKey(c))
		if err != nil {
			return nil, err
		}
		db.cipherBlock = block
	}
	return db, nil
}

// createDatabase materializes a brand new user database on disk and in memory.
func createDatabase(instance *Instance, rec *reg.DatabaseRecord) (*Database, error) {
	return createDatabaseWithFlag(instance, rec, false)
}

func createDatabaseWithFlag(instance *Instance, rec *reg.DatabaseRecord, system bool) (*Database, error) {
	db, err := newDatabaseObject(instance, rec)
	if err != nil {
		return nil, err
	}
	db.system = system
	if db.dataDir, err = db.ensureDataDir(true); err != nil {
		return nil, err
	}
	if db.metadataFile, err = db.createMetadataFile(); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.createSystemTablesUnlocked(); err != nil {
		return nil, err
	}
	if err := db.saveSystemObjectsUnlocked(); err != nil {
		return nil, err
	}
	if err := db.createInitializationFlagFile(); err != nil {
		return nil, err
	}
	log.Infof("database '%s': created, uuid %s", db.name, db.databaseUUID)
	metrics.OpenDatabases.Inc()
	return db, nil
}

// openDatabase loads an existing user database from disk.
func openDatabase(instance *Instance, rec *reg.DatabaseRecord) (*Database, error) {
	return openDatabaseWithFlag(instance, rec, false)
}

func openDatabaseWithFlag(instance *Instance, rec *reg.DatabaseRecord, system bool) (*Database, error) {
	db, err := newDatabaseObject(instance, rec)
	if err != nil {
		return nil, err
	}
	db.system = system
	if db.dataDir, err = db.ensureDataDir(false); err != nil {
		return nil, err
	}
	if db.metadataFile, err = db.openMetadataFile(); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.loadSystemObjectsUnlocked(); err != nil {
		return nil, err
	}
	log.Infof("database '%s': opened, uuid %s", db.name, db.databaseUUID)
	metrics.OpenDatabases.Inc()
	return db, nil
}

func (db *Database) ID() proto.DatabaseID { return db.id }
func (db *Database) Name() string         { return db.name }
func (db *Database) UUID() uuid.UUID      { return db.databaseUUID }
func (db *Database) CipherID() string     { return db.cipherID }
func (db *Database) DataDir() string      { return db.dataDir }

func (db *Database) DisplayName() string {
	return fmt.Sprintf("'%s'", db.name)
}

// IsSystemDatabase reports whether this is the system database.
func (db *Database) IsSystemDatabase() bool {
	return db.system
}

// Use acquires one use of the database.
func (db *Database) Use() {
	atomic.AddUint64(&db.useCount, 1)
}

// UseCount returns the current use count.
func (db *Database) UseCount() uint64 {
	return atomic.LoadUint64(&db.useCount)
}

// Release drops one use of the database. It fails on the transition from
// zero: an unused database cannot be released.
func (db *Database) Release() error {
	for {
		current := atomic.LoadUint64(&db.useCount)
		if current == 0 {
			return errors.New(errors.CodeCannotReleaseUnusedDatabase,
				"database '%s' (%s) is not in use", db.name, db.databaseUUID)
		}
		if atomic.CompareAndSwapUint64(&db.useCount, current, current-1) {
			return nil
		}
	}
}

// Close releases the metadata mapping. The database must not be in use.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.metadataFile != nil {
		if err := db.metadataFile.Close(); err != nil {
			return err
		}
		db.metadataFile = nil
	}
	metrics.OpenDatabases.Dec()
	return nil
}

// GenerateNextTransactionID mints a monotonically increasing transaction id,
// written through to the metadata mapping.
func (db *Database) GenerateNextTransactionID() proto.TransactionID {
	db.mu.Lock()
	defer db.mu.Unlock()
	meta := db.metadataFile.Metadata()
	next := meta.LastTransactionID() + 1
	meta.SetLastTransactionID(next)
	return next
}

// ComputeDatabaseUUID derives the stable database UUID from the database
// name and its creation timestamp.
func ComputeDatabaseUUID(databaseName string, createTimestamp int64) uuid.UUID {
	h := md5.New()
	h.Write([]byte(databaseName))
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(createTimestamp))
	h.Write(ts[:])
	var u uuid.UUID
	copy(u[:], h.Sum(nil))
	return u
}

// ---- lookups ----

// GetTableChecked returns the table by name, loading it when necessary.
func (db *Database) GetTableChecked(tableName string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if table := db.getTableUnlocked(tableName); table != nil {
		return table, nil
	}
	return nil, errors.New(errors.CodeTableDoesNotExist,
		"table '%s'.'%s' does not exist", db.name, tableName)
}

// GetTableCheckedByID returns the table by id, loading it when necessary.
func (db *Database) GetTableCheckedByID(tableID proto.TableID) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if table := db.getTableUnlockedByID(tableID); table != nil {
		return table, nil
	}
	return nil, errors.New(errors.CodeTableDoesNotExist,
		"table %d in database '%s' does not exist", tableID, db.name)
}

func (db *Database) getTableUnlocked(tableName string) *Table {
	rec, ok := db.tableRegistry.ByName(tableName)
	if !ok {
		return nil
	}
	return db.getTableFromRecordUnlocked(rec)
}

func (db *Database) getTableUnlockedByID(tableID proto.TableID) *Table {
	rec, ok := db.tableRegistry.ByID(tableID)
	if !ok {
		return nil
	}
	return db.getTableFromRecordUnlocked(rec)
}

func (db *Database) getTableFromRecordUnlocked(rec *reg.TableRecord) *Table {
	if cached, ok := db.tableCache.get(uint64(rec.ID)); ok {
		return cached.(*Table)
	}
	return db.loadTableUnlocked(rec)
}

// loadTableUnlocked reconstructs a table object from its registry records
// and inserts it into the table cache.
func (db *Database) loadTableUnlocked(rec *reg.TableRecord) *Table {
	table := newTable(db, rec)

	if csRec, ok := db.columnSetRegistry.ByID(rec.CurrentColumnSetID); ok {
		cs := &ColumnSet{table: table, id: csRec.ID, open: csRec.Open}
		db.columnSetColumnRegistry.AscendColumnSet(csRec.ID, func(m *reg.ColumnSetColumnRecord) bool {
			cs.columns = append(cs.columns, m.ID)
			if colRec, ok := db.columnRegistry.ByID(m.ColumnID); ok {
				col := &Column{
					table:    table,
					id:       colRec.ID,
					name:     colRec.Name,
					dataType: colRec.DataType,
					notNull:  colRec.NotNull,
				}
				if defID, ok := db.columnDefinitionRegistry.LatestForColumn(col.id); ok {
					col.currentDefinition = &ColumnDefinition{column: col, id: defID}
				}
				table.columns[col.id] = col
				if col.name == MasterColumnName {
					table.masterColumn = col
				}
			}
			return true
		})
		table.currentColumnSet = cs
	}

	db.tableCache.emplace(uint64(table.id), table)
	return table
}

// GetConstraintDefinitionChecked returns the constraint definition by id,
// loading it when necessary.
func (db *Database) GetConstraintDefinitionChecked(
	id proto.ConstraintDefinitionID,
) (*ConstraintDefinition, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getConstraintDefinitionCheckedUnlocked(id)
}

func (db *Database) getConstraintDefinitionCheckedUnlocked(
	id proto.ConstraintDefinitionID,
) (*ConstraintDefinition, error) {
	if def := db.getConstraintDefinitionUnlocked(id); def != nil {
		return def, nil
	}
	return nil, errors.New(errors.CodeConstraintDefinitionDoesNotExist,
		"constraint definition %d in database '%s' does not exist", id, db.name)
}

func (db *Database) getConstraintDefinitionUnlocked(
	id proto.ConstraintDefinitionID,
) *ConstraintDefinition {
	rec, ok := db.constraintDefinitionRegistry.ByID(id)
	if !ok {
		return nil
	}
	if cached, ok := db.constraintDefinitionCache.get(uint64(id)); ok {
		return cached.(*ConstraintDefinition)
	}
	return db.loadConstraintDefinitionUnlocked(rec)
}

func (db *Database) loadConstraintDefinitionUnlocked(
	rec *reg.ConstraintDefinitionRecord,
) *ConstraintDefinition {
	expr, _, err := DeserializeExpression(rec.Expression)
	if err != nil {
		log.Errorf("database '%s': constraint definition %d: bad expression: %v",
			db.name, rec.ID, err)
		return nil
	}
	def := &ConstraintDefinition{
		database:       db,
		id:             rec.ID,
		constraintType: rec.Type,
		expression:     expr,
		hash:           rec.Hash,
	}
	db.constraintDefinitionCache.emplace(uint64(def.id), def)
	return def
}

// ---- registry record accessors ----

// GetColumnSetRecord returns the registry record of a column set.
func (db *Database) GetColumnSetRecord(id proto.ColumnSetID) (reg.ColumnSetRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.columnSetRegistry.ByID(id)
	if !ok {
		return reg.ColumnSetRecord{}, errors.New(errors.CodeColumnSetDoesNotExist,
			"column set %d in database '%s' does not exist", id, db.name)
	}
	return *rec, nil
}

// GetColumnRecord returns the registry record of a column.
func (db *Database) GetColumnRecord(id proto.ColumnID) (reg.ColumnRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.columnRegistry.ByID(id)
	if !ok {
		return reg.ColumnRecord{}, errors.New(errors.CodeColumnDoesNotExist,
			"column %d in database '%s' does not exist", id, db.name)
	}
	return *rec, nil
}

// GetColumnDefinitionRecord returns the registry record of a column definition.
func (db *Database) GetColumnDefinitionRecord(
	id proto.ColumnDefinitionID,
) (reg.ColumnDefinitionRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.columnDefinitionRegistry.ByID(id)
	if !ok {
		return reg.ColumnDefinitionRecord{}, errors.New(errors.CodeColumnDefinitionDoesNotExist,
			"column definition %d in database '%s' does not exist", id, db.name)
	}
	return *rec, nil
}

// GetLatestColumnDefinitionIDForColumn returns the most recent definition id
// recorded for the column.
func (db *Database) GetLatestColumnDefinitionIDForColumn(
	tableID proto.TableID, columnID proto.ColumnID,
) (proto.ColumnDefinitionID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if id, ok := db.columnDefinitionRegistry.LatestForColumn(columnID); ok {
		return id, nil
	}
	return 0, errors.New(errors.CodeMissingColumnDefinitionsForColumn,
		"database %s: no column definitions for column %d of table %d",
		db.databaseUUID, columnID, tableID)
}

// GetConstraintRecord returns the registry record of a constraint.
func (db *Database) GetConstraintRecord(id proto.ConstraintID) (reg.ConstraintRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.constraintRegistry.ByID(id)
	if !ok {
		return reg.ConstraintRecord{}, errors.New(errors.CodeConstraintDoesNotExist,
			"constraint %d in database '%s' does not exist", id, db.name)
	}
	return *rec, nil
}

// GetIndexRecord returns the registry record of an index.
func (db *Database) GetIndexRecord(id proto.IndexID) (reg.IndexRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.indexRegistry.ByID(id)
	if !ok {
		return reg.IndexRecord{}, errors.New(errors.CodeIndexDoesNotExist,
			"index %d in database '%s' does not exist", id, db.name)
	}
	return *rec, nil
}

// IsConstraintExists reports whether a constraint with the given name exists.
func (db *Database) IsConstraintExists(constraintName string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.constraintRegistry.ContainsName(constraintName)
}

// ---- identifier service ----

func (db *Database) generateNextTableID(system bool) (proto.TableID, error) {
	var id uint64
	var err error
	if system {
		if db.sysTablesTable != nil {
			id, err = db.sysTablesTable.GenerateNextSystemTrid()
		} else {
			db.tmpTridCounters.lastTableID++
			id = db.tmpTridCounters.lastTableID
		}
	} else {
		id, err = db.sysTablesTable.GenerateNextUserTrid()
	}
	if err != nil {
		return 0, err
	}
	if id >= math.MaxUint32 {
		return 0, errors.New(errors.CodeResourceExhausted,
			"database '%s': table id space exhausted", db.name)
	}
	return proto.TableID(id), nil
}

func (db *Database) generateNextColumnID(system bool) (proto.ColumnID, error) {
	if system {
		if db.sysColumnsTable != nil {
			return db.sysColumnsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastColumnID++
		return db.tmpTridCounters.lastColumnID, nil
	}
	return db.sysColumnsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextColumnDefinitionID(system bool) (proto.ColumnDefinitionID, error) {
	if system {
		if db.sysColumnDefsTable != nil {
			return db.sysColumnDefsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastColumnDefinitionID++
		return db.tmpTridCounters.lastColumnDefinitionID, nil
	}
	return db.sysColumnDefsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextColumnSetID(system bool) (proto.ColumnSetID, error) {
	if system {
		if db.sysColumnSetsTable != nil {
			return db.sysColumnSetsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastColumnSetID++
		return db.tmpTridCounters.lastColumnSetID, nil
	}
	return db.sysColumnSetsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextColumnSetColumnID(system bool) (proto.ColumnSetColumnID, error) {
	if system {
		if db.sysColumnSetColumnsTable != nil {
			return db.sysColumnSetColumnsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastColumnSetColumnID++
		return db.tmpTridCounters.lastColumnSetColumnID, nil
	}
	return db.sysColumnSetColumnsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextConstraintDefinitionID(system bool) (proto.ConstraintDefinitionID, error) {
	if system {
		if db.sysConstraintDefsTable != nil {
			return db.sysConstraintDefsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastConstraintDefinitionID++
		return db.tmpTridCounters.lastConstraintDefinitionID, nil
	}
	return db.sysConstraintDefsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextConstraintID(system bool) (proto.ConstraintID, error) {
	if system {
		if db.sysConstraintsTable != nil {
			return db.sysConstraintsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastConstraintID++
		return db.tmpTridCounters.lastConstraintID, nil
	}
	return db.sysConstraintsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextColumnDefinitionConstraintID(system bool) (proto.ColumnDefinitionID, error) {
	if system {
		if db.sysColumnDefConstraintsTable != nil {
			return db.sysColumnDefConstraintsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastColumnDefinitionConstraintID++
		return db.tmpTridCounters.lastColumnDefinitionConstraintID, nil
	}
	return db.sysColumnDefConstraintsTable.GenerateNextUserTrid()
}

func (db *Database) generateNextIndexID(system bool) (proto.IndexID, error) {
	if system {
		if db.sysIndicesTable != nil {
			return db.sysIndicesTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastIndexID++
		return db.tmpTridCounters.lastIndexID, nil
	}
	return db.sysIndicesTable.GenerateNextUserTrid()
}

func (db *Database) generateNextIndexColumnID(system bool) (proto.IndexColumnID, error) {
	if system {
		if db.sysIndexColumnsTable != nil {
			return db.sysIndexColumnsTable.GenerateNextSystemTrid()
		}
		db.tmpTridCounters.lastIndexColumnID++
		return db.tmpTridCounters.lastIndexColumnID, nil
	}
	return db.sysIndexColumnsTable.GenerateNextUserTrid()
}

// ---- registration ----

func mapRegistryError(err error, code errors.Code) error {
	if err == nil {
		return nil
	}
	return errors.New(code, "%v", err)
}

// RegisterTable records a table in the registry.
func (db *Database) RegisterTable(table *Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registerTableUnlocked(table)
}

func (db *Database) registerTableUnlocked(table *Table) error {
	if err := db.tableRegistry.Insert(table.rec); err != nil {
		return errors.New(errors.CodeTableAlreadyExists,
			"table '%s'.'%s' already exists", db.name, table.name)
	}
	return nil
}

// RegisterColumn records a column in the registry.
func (db *Database) RegisterColumn(column *Column) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registerColumnUnlocked(column)
}

func (db *Database) registerColumnUnlocked(column *Column) error {
	err := db.columnRegistry.Insert(&reg.ColumnRecord{
		ID:       column.id,
		TableID:  column.table.id,
		Name:     column.name,
		DataType: column.dataType,
		NotNull:  column.notNull,
	})
	return mapRegistryError(err, errors.CodeInvalidColumnName)
}

// RegisterColumnDefinition records a column definition in the registry.
func (db *Database) RegisterColumnDefinition(def *ColumnDefinition) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.columnDefinitionRegistry.Insert(&reg.ColumnDefinitionRecord{
		ID:       def.id,
		ColumnID: def.column.id,
	})
	return mapRegistryError(err, errors.CodeColumnDefinitionDoesNotExist)
}

// UpdateColumnDefinitionRegistration re-indexes an existing column
// definition record; it fails when the record is absent.
func (db *Database) UpdateColumnDefinitionRegistration(def *ColumnDefinition) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.columnDefinitionRegistry.Replace(&reg.ColumnDefinitionRecord{
		ID:       def.id,
		ColumnID: def.column.id,
	})
	if err != nil {
		return errors.New(errors.CodeColumnDefinitionDoesNotExist,
			"column definition %d in database '%s' does not exist", def.id, db.name)
	}
	return nil
}

// RegisterColumnSet records a column set in the registry.
func (db *Database) RegisterColumnSet(cs *ColumnSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registerColumnSetUnlocked(cs)
}

func (db *Database) registerColumnSetUnlocked(cs *ColumnSet) error {
	err := db.columnSetRegistry.Insert(&reg.ColumnSetRecord{
		ID:      cs.id,
		TableID: cs.table.id,
		Open:    cs.open,
	})
	return mapRegistryError(err, errors.CodeColumnSetDoesNotExist)
}

// UpdateColumnSetRegistration re-indexes an existing column set record; it
// fails when the record is absent.
func (db *Database) UpdateColumnSetRegistration(cs *ColumnSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.columnSetRegistry.Replace(&reg.ColumnSetRecord{
		ID:      cs.id,
		TableID: cs.table.id,
		Open:    cs.open,
	})
	if err != nil {
		return errors.New(errors.CodeColumnSetDoesNotExist,
			"column set %d in database '%s' does not exist", cs.id, db.name)
	}
	return nil
}

// RegisterConstraintDefinition records a constraint definition.
func (db *Database) RegisterConstraintDefinition(def *ConstraintDefinition) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.constraintDefinitionRegistry.Insert(def.record())
	return mapRegistryError(err, errors.CodeConstraintDefinitionDoesNotExist)
}

// RegisterConstraint records a constraint.
func (db *Database) RegisterConstraint(c *Constraint) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registerConstraintUnlocked(c)
}

func (db *Database) registerConstraintUnlocked(c *Constraint) error {
	var columnID proto.ColumnID
	if c.column != nil {
		columnID = c.column.id
	}
	err := db.constraintRegistry.Insert(&reg.ConstraintRecord{
		ID:                     c.id,
		Name:                   c.name,
		TableID:                c.table.id,
		ColumnID:               columnID,
		ConstraintDefinitionID: c.definition.id,
	})
	if err != nil {
		return errors.New(errors.CodeConstraintAlreadyExists,
			"constraint '%s' already exists in database '%s'", c.name, db.name)
	}
	return nil
}

// RegisterIndex records an index and its key parts.
func (db *Database) RegisterIndex(ix *Index) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registerIndexUnlocked(ix)
}

func (db *Database) registerIndexUnlocked(ix *Index) error {
	if err := db.indexRegistry.Insert(&reg.IndexRecord{
		ID:      ix.id,
		TableID: ix.table.id,
		Type:    ix.indexType,
		Name:    ix.name,
		Unique:  ix.unique,
	}); err != nil {
		return mapRegistryError(err, errors.CodeIndexDoesNotExist)
	}
	system := ix.table.IsSystemTable()
	for ordinal, part := range ix.columns {
		id, err := db.generateNextIndexColumnID(system)
		if err != nil {
			return err
		}
		if err := db.indexColumnRegistry.Insert(&reg.IndexColumnRecord{
			ID:             id,
			IndexID:        ix.id,
			ColumnID:       part.Column.id,
			Ordinal:        uint32(ordinal),
			SortDescending: part.SortDescending,
		}); err != nil {
			return mapRegistryError(err, errors.CodeIndexDoesNotExist)
		}
	}
	return nil
}

// ---- consistency ----

func (db *Database) checkTableBelongsToThisDatabase(table *Table, operationName string) error {
	if table.database != db {
		return errors.New(errors.CodeTableDoesNotBelongToDatabase,
			"%s: table '%s' belongs to database '%s' (%s), not to '%s' (%s)",
			operationName, table.name, table.database.name, table.database.databaseUUID,
			db.name, db.databaseUUID)
	}
	return nil
}

// CheckDataConsistency loads every known table; any load error surfaces.
func (db *Database) CheckDataConsistency() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	db.tableRegistry.AscendName(func(rec *reg.TableRecord) bool {
		table := db.getTableFromRecordUnlocked(rec)
		if table == nil {
			firstErr = errors.New(errors.CodeTableDoesNotExist,
				"table '%s'.'%s' failed to load", db.name, rec.Name)
			return false
		}
		log.Debugf("table %s OK", table.DisplayName())
		return true
	})
	return firstErr
}
