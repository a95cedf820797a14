package dbengine

import (
	"crypto/md5"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/proto"
)

func testOptions(dataDir, cipherID string) *config.InstanceOptions {
	return &config.InstanceOptions{
		General: config.GeneralOptions{
			Name:    "test",
			DataDir: dataDir,
		},
		IOManager: config.IOManagerOptions{
			BlockCacheCapacity:    config.MinBlockCacheCapacity,
			UserCacheCapacity:     10,
			DatabaseCacheCapacity: 10,
			TableCacheCapacity:    100,
		},
		Encryption: config.EncryptionOptions{
			DefaultCipherID:  cipherID,
			SystemDbCipherID: cipherID,
		},
	}
}

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	i, err := NewInstance(testOptions(filepath.Join(t.TempDir(), "data"), "none"))
	require.NoError(t, err)
	return i
}

func intColumn(name string, notNull bool) ColumnSpecification {
	return NewColumnSpecification(SimpleColumnSpecification{
		Name:     name,
		DataType: proto.ColumnDataTypeInt32,
		NotNull:  notNull,
	})
}

func TestInstanceBootstrap(t *testing.T) {
	i := newTestInstance(t)

	sdb := i.SystemDatabase()
	require.NotNil(t, sdb)
	require.True(t, sdb.IsSystemDatabase())
	require.Equal(t, SystemDatabaseID, sdb.ID())

	table, err := sdb.GetTableChecked(SysTablesTableName)
	require.NoError(t, err)
	require.True(t, table.IsSystemTable())
	require.Less(t, uint64(table.ID()), FirstUserTableID)
	require.NotNil(t, table.MasterColumn())
	require.Equal(t, MasterColumnName, table.MasterColumn().Name())
	require.False(t, table.CurrentColumnSet().Open())

	require.Equal(t, SuperUserName, i.SuperUser().Name())
	require.True(t, i.SuperUser().IsSuperUser())
}

func TestComputeDatabaseUUID(t *testing.T) {
	// uuid = MD5(name bytes || little-endian 8-byte creation timestamp)
	h := md5.New()
	h.Write([]byte("DB1"))
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], 1600000000)
	h.Write(ts[:])

	u := ComputeDatabaseUUID("DB1", 1600000000)
	require.Equal(t, h.Sum(nil), u[:])

	// pure function
	require.Equal(t, u, ComputeDatabaseUUID("DB1", 1600000000))
	require.NotEqual(t, u, ComputeDatabaseUUID("DB2", 1600000000))
	require.NotEqual(t, u, ComputeDatabaseUUID("DB1", 1600000001))
}

func TestCreateAndReopenDatabase(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "none")

	i, err := NewInstance(options)
	require.NoError(t, err)

	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)
	db.Use()

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", true), intColumn("C2", false)}, SuperUserID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, uint64(table.ID()), FirstUserTableID)
	tableID := table.ID()

	require.NoError(t, db.Release())
	require.NoError(t, i.Close())

	// reopen from disk
	i2, err := NewInstance(options)
	require.NoError(t, err)
	db2, err := i2.GetDatabaseChecked("DB1")
	require.NoError(t, err)
	require.Equal(t, db.UUID(), db2.UUID())

	sysTables, err := db2.GetTableChecked(SysTablesTableName)
	require.NoError(t, err)
	require.True(t, sysTables.IsSystemTable())

	t1, err := db2.GetTableChecked("T1")
	require.NoError(t, err)
	require.Equal(t, tableID, t1.ID())
	require.NotNil(t, t1.MasterColumn())

	require.NoError(t, db2.CheckDataConsistency())
}

func TestCreateUserTableDuplicateConstraintName(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	columns := []ColumnSpecification{
		{
			Name:     "C1",
			DataType: proto.ColumnDataTypeInt32,
			Constraints: []ColumnConstraintSpecification{{
				Name:       "NN1",
				Type:       proto.ConstraintTypeNotNull,
				Expression: NewConstantExpression(BoolVariant(true)),
			}},
		},
		{
			Name:     "C2",
			DataType: proto.ColumnDataTypeInt32,
			Constraints: []ColumnConstraintSpecification{{
				Name:       "NN1",
				Type:       proto.ConstraintTypeNotNull,
				Expression: NewConstantExpression(BoolVariant(true)),
			}},
		},
	}

	columnsBefore := db.columnRegistry.Len()

	_, err = db.CreateUserTable("T1", proto.TableTypeDisk, columns, SuperUserID)
	require.Error(t, err)
	compound, ok := err.(*errors.CompoundError)
	require.True(t, ok, "expected a compound error, got %T", err)
	require.NotEmpty(t, compound.Errors)
	require.Equal(t, errors.CodeCreateTableDuplicateConstraintName, compound.Errors[0].Code)
	require.Contains(t, compound.Errors[0].Message, "NN1")

	// nothing was registered
	_, err = db.GetTableChecked("T1")
	require.True(t, errors.HasCode(err, errors.CodeTableDoesNotExist))
	require.Equal(t, columnsBefore, db.columnRegistry.Len())
}

func TestCreateUserTableValidationAccumulates(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	columns := []ColumnSpecification{
		intColumn("C1", false),
		intColumn("C1", false), // duplicate column name
		{
			Name:     "C3",
			DataType: proto.ColumnDataTypeInt32,
			Constraints: []ColumnConstraintSpecification{
				{
					Type:       proto.ConstraintTypeNotNull,
					Expression: NewConstantExpression(BoolVariant(true)),
				},
				{
					// same constraint type twice on one column
					Type:       proto.ConstraintTypeNotNull,
					Expression: NewConstantExpression(BoolVariant(true)),
				},
			},
		},
		intColumn("9BAD", false), // invalid name
	}

	_, err = db.CreateUserTable("T1", proto.TableTypeDisk, columns, SuperUserID)
	compound, ok := err.(*errors.CompoundError)
	require.True(t, ok)
	require.Len(t, compound.Errors, 3)
	require.True(t, errors.HasCode(err, errors.CodeCreateTableDuplicateColumnName))
	require.True(t, errors.HasCode(err, errors.CodeCreateTableDuplicateColumnConstraintType))
	require.True(t, errors.HasCode(err, errors.CodeInvalidColumnName))
}

func TestCreateUserTableUnsupportedType(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	_, err = db.CreateUserTable("T1", proto.TableTypeMemory, nil, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeTableTypeNotSupported))
}

func TestCreateUserTableConstraints(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	defaultValue := Int64Variant(42)
	columns := []ColumnSpecification{
		NewColumnSpecification(SimpleColumnSpecification{
			Name:         "C1",
			DataType:     proto.ColumnDataTypeInt64,
			NotNull:      true,
			DefaultValue: &defaultValue,
		}),
	}
	table, err := db.CreateUserTable("T1", proto.TableTypeDisk, columns, SuperUserID)
	require.NoError(t, err)

	col := table.findColumnUnlocked("C1")
	require.NotNil(t, col)
	require.True(t, col.NotNull())
	require.Len(t, col.CurrentDefinition().Constraints(), 2)

	// generated names are registered and unique
	for _, c := range col.CurrentDefinition().Constraints() {
		require.True(t, db.IsConstraintExists(c.Name()))
		require.True(t, strings.HasPrefix(c.Name(), "T1_C1_"))
	}

	// explicit name collides with the generated one on a second table
	name := col.CurrentDefinition().Constraints()[0].Name()
	_, err = db.CreateUserTable("T2", proto.TableTypeDisk, []ColumnSpecification{
		{
			Name:     "C1",
			DataType: proto.ColumnDataTypeInt32,
			Constraints: []ColumnConstraintSpecification{{
				Name:       name,
				Type:       proto.ConstraintTypeNotNull,
				Expression: NewConstantExpression(BoolVariant(true)),
			}},
		},
	}, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeConstraintAlreadyExists))
}

func TestConstraintDefinitionInterning(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	expr := NewConstantExpression(BoolVariant(true))

	def1, existing, err := db.CreateConstraintDefinition(false, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, err)
	require.False(t, existing)

	def2, existing, err := db.CreateConstraintDefinition(false, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, err)
	require.True(t, existing)
	require.Equal(t, def1.ID(), def2.ID())

	// pre-serialized variant resolves to the same definition
	def3, err := db.FindOrCreateConstraintDefinition(
		false, proto.ConstraintTypeNotNull, expr.Serialize())
	require.NoError(t, err)
	require.Equal(t, def1.ID(), def3.ID())

	// different type with the same expression is a distinct definition
	def4, existing, err := db.CreateConstraintDefinition(
		false, proto.ConstraintTypeDefaultValue, expr)
	require.NoError(t, err)
	require.False(t, existing)
	require.NotEqual(t, def1.ID(), def4.ID())
}

func TestConstraintDefinitionIDPartitioning(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	expr := NewConstantExpression(StringVariant("shared content"))

	systemDef, _, err := db.CreateConstraintDefinition(true, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, err)
	userDef, _, err := db.CreateConstraintDefinition(false, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, err)

	require.Less(t, systemDef.ID(), FirstUserTableConstraintDefinitionID)
	require.GreaterOrEqual(t, userDef.ID(), FirstUserTableConstraintDefinitionID)
	require.NotEqual(t, systemDef.ID(), userDef.ID())
	require.True(t, systemDef.IsSystemDefinition())
	require.False(t, userDef.IsSystemDefinition())

	// identical content on the same partition still dedups
	again, existing, err := db.CreateConstraintDefinition(true, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, err)
	require.True(t, existing)
	require.Equal(t, systemDef.ID(), again.ID())
}

func TestCrossDatabaseTableUse(t *testing.T) {
	i := newTestInstance(t)
	dbA, err := i.CreateDatabase("A", "", SuperUserID)
	require.NoError(t, err)
	dbB, err := i.CreateDatabase("B", "", SuperUserID)
	require.NoError(t, err)

	table, err := dbA.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", false)}, SuperUserID)
	require.NoError(t, err)

	def, _, err := dbB.CreateConstraintDefinition(
		false, proto.ConstraintTypeNotNull, NewConstantExpression(BoolVariant(true)))
	require.NoError(t, err)

	_, err = dbB.CreateConstraint(table, nil, "CC1", def)
	require.True(t, errors.HasCode(err, errors.CodeTableDoesNotBelongToDatabase))
}

func TestCreateConstraintUnsupportedType(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", false)}, SuperUserID)
	require.NoError(t, err)

	def := &ConstraintDefinition{
		database:       db,
		id:             FirstUserTableConstraintDefinitionID,
		constraintType: proto.ConstraintTypeMax,
		expression:     NewConstantExpression(NullVariant()),
	}
	_, err = db.CreateConstraint(table, table.MasterColumn(), "CC1", def)
	require.True(t, errors.HasCode(err, errors.CodeConstraintNotSupported))
}

func TestCheckConstraintType(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", true)}, SuperUserID)
	require.NoError(t, err)
	col := table.findColumnUnlocked("C1")

	def, _, err := db.CreateConstraintDefinition(
		false, proto.ConstraintTypeNotNull, NewConstantExpression(BoolVariant(true)))
	require.NoError(t, err)

	require.NoError(t,
		db.CheckConstraintType(table, col, "X", def, proto.ConstraintTypeNotNull))

	err = db.CheckConstraintType(table, col, "X", def, proto.ConstraintTypeDefaultValue)
	require.True(t, errors.HasCode(err, errors.CodeColumnConstraintTypeDoesNotMatch))

	err = db.CheckConstraintType(table, nil, "X", def, proto.ConstraintTypeDefaultValue)
	require.True(t, errors.HasCode(err, errors.CodeTableConstraintTypeDoesNotMatch))
}

func TestReleaseUseCount(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	db.Use()
	db.Use()
	require.Equal(t, uint64(2), db.UseCount())
	require.NoError(t, db.Release())
	require.NoError(t, db.Release())

	err = db.Release()
	require.True(t, errors.HasCode(err, errors.CodeCannotReleaseUnusedDatabase))
	require.Equal(t, uint64(0), db.UseCount())
}

func TestTransactionIDMonotonicAndDurable(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "none")
	i, err := NewInstance(options)
	require.NoError(t, err)

	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	first := db.GenerateNextTransactionID()
	second := db.GenerateNextTransactionID()
	require.Greater(t, second, first)

	require.NoError(t, i.Close())
	i2, err := NewInstance(options)
	require.NoError(t, err)
	db2, err := i2.GetDatabaseChecked("DB1")
	require.NoError(t, err)
	require.Greater(t, db2.GenerateNextTransactionID(), second)
}

func TestInitializationFlagFile(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	flagPath := filepath.Join(db.DataDir(), InitializationFlagFileName)
	content, err := os.ReadFile(flagPath)
	require.NoError(t, err)
	ts, err := strconv.ParseInt(string(content), 10, 64)
	require.NoError(t, err)
	require.Greater(t, ts, int64(1_500_000_000))

	// creating the same database again must fail
	_, err = i.CreateDatabase("DB1", "", SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeDatabaseAlreadyExists))
}

func TestUserTridExhaustion(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", false)}, SuperUserID)
	require.NoError(t, err)

	table.rec.CurrentUserTrid = ^uint64(0)
	_, err = table.GenerateNextUserTrid()
	require.True(t, errors.HasCode(err, errors.CodeResourceExhausted))
}

func TestSystemTridExhaustion(t *testing.T) {
	i := newTestInstance(t)
	sdb := i.SystemDatabase()

	table, err := sdb.GetTableChecked(SysConstraintDefsTableName)
	require.NoError(t, err)
	table.rec.CurrentSystemTrid = table.FirstUserTrid() - 1
	_, err = table.GenerateNextSystemTrid()
	require.True(t, errors.HasCode(err, errors.CodeResourceExhausted))
}

func TestAllocatorMonotonicity(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	var last proto.ConstraintDefinitionID
	for n := 0; n < 10; n++ {
		def, _, err := db.CreateConstraintDefinition(
			false, proto.ConstraintTypeDefaultValue,
			NewConstantExpression(Int64Variant(int64(n))))
		require.NoError(t, err)
		require.Greater(t, def.ID(), last)
		last = def.ID()
	}
}

func TestGetLatestColumnDefinitionIDForColumn(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", false)}, SuperUserID)
	require.NoError(t, err)
	col := table.findColumnUnlocked("C1")

	id, err := db.GetLatestColumnDefinitionIDForColumn(table.ID(), col.ID())
	require.NoError(t, err)
	require.Equal(t, col.CurrentDefinition().ID(), id)

	_, err = db.GetLatestColumnDefinitionIDForColumn(table.ID(), col.ID()+10000)
	require.True(t, errors.HasCode(err, errors.CodeMissingColumnDefinitionsForColumn))
}

func TestDropTable(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", true)}, SuperUserID)
	require.NoError(t, err)
	constraintName := table.findColumnUnlocked("C1").CurrentDefinition().Constraints()[0].Name()
	require.True(t, db.IsConstraintExists(constraintName))

	dropped, err := db.DropTable("T1", true, SuperUserID)
	require.NoError(t, err)
	require.True(t, dropped)

	_, err = db.GetTableChecked("T1")
	require.True(t, errors.HasCode(err, errors.CodeTableDoesNotExist))
	require.False(t, db.IsConstraintExists(constraintName))

	// absent table
	dropped, err = db.DropTable("T1", false, SuperUserID)
	require.NoError(t, err)
	require.False(t, dropped)
	_, err = db.DropTable("T1", true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeTableDoesNotExist))

	// system tables are protected
	_, err = db.DropTable(SysTablesTableName, true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeCannotDropSystemObject))
}

func TestCreateIndex(t *testing.T) {
	i := newTestInstance(t)
	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)

	table, err := db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", false)}, SuperUserID)
	require.NoError(t, err)
	col := table.findColumnUnlocked("C1")

	ix, err := db.CreateIndex(table, "IX1", proto.IndexTypeBTree,
		[]IndexColumnSpecification{{Column: col}}, true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ix.ID(), FirstUserIndexID)

	rec, err := db.GetIndexRecord(ix.ID())
	require.NoError(t, err)
	require.Equal(t, "IX1", rec.Name)
	require.True(t, rec.Unique)

	_, err = db.CreateIndex(table, "IX1", proto.IndexTypeBTree,
		[]IndexColumnSpecification{{Column: col}}, false)
	require.Error(t, err)
}
