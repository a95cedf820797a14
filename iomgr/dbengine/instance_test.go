package dbengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/proto"
)

func TestInstanceReopen(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "none")

	i, err := NewInstance(options)
	require.NoError(t, err)
	instanceUUID := i.UUID()
	_, err = i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)
	require.NoError(t, i.Close())

	i2, err := NewInstance(options)
	require.NoError(t, err)
	require.Equal(t, instanceUUID, i2.UUID())
	require.Equal(t, 2, i2.DatabaseCount()) // SYS + DB1

	records := i2.GetDatabaseRecordsOrderedByName()
	require.Equal(t, "DB1", records[0].Name)
	require.Equal(t, SystemDatabaseName, records[1].Name)
}

func TestGetDatabaseAbsent(t *testing.T) {
	i := newTestInstance(t)

	db, err := i.GetDatabase("NOPE")
	require.NoError(t, err)
	require.Nil(t, db)

	_, err = i.GetDatabaseChecked("NOPE")
	require.True(t, errors.HasCode(err, errors.CodeDatabaseDoesNotExist))
}

func TestCreateDatabaseInvalidName(t *testing.T) {
	i := newTestInstance(t)
	_, err := i.CreateDatabase("1BAD", "", SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeInvalidDatabaseName))
}

func TestDatabaseIDPartitioning(t *testing.T) {
	i := newTestInstance(t)

	// the system database occupies the system range
	require.Less(t, uint64(i.SystemDatabase().ID()), uint64(FirstUserDatabaseID))

	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, uint64(db.ID()), uint64(FirstUserDatabaseID))

	systemID, err := i.GenerateNextDatabaseID(true)
	require.NoError(t, err)
	require.Less(t, uint64(systemID), uint64(FirstUserDatabaseID))
}

func TestDropDatabase(t *testing.T) {
	i := newTestInstance(t)

	db, err := i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)
	dataDir := db.DataDir()

	// in-use database cannot be dropped
	db.Use()
	_, err = i.DropDatabase("DB1", true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeCannotDropUsedDatabase))
	require.NoError(t, db.Release())

	dropped, err := i.DropDatabase("DB1", true, SuperUserID)
	require.NoError(t, err)
	require.True(t, dropped)
	_, err = os.Stat(dataDir)
	require.True(t, os.IsNotExist(err))

	dropped, err = i.DropDatabase("DB1", false, SuperUserID)
	require.NoError(t, err)
	require.False(t, dropped)

	_, err = i.DropDatabase("DB1", true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeDatabaseDoesNotExist))
}

func TestDropSystemDatabaseRejected(t *testing.T) {
	i := newTestInstance(t)
	_, err := i.DropDatabase(SystemDatabaseName, true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeCannotDropSystemObject))
}

func TestUsers(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "none")
	i, err := NewInstance(options)
	require.NoError(t, err)

	id, err := i.CreateUser("ALICE", "Alice", true, SuperUserID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, uint64(id), uint64(FirstUserUserID))

	_, err = i.CreateUser("ALICE", "", true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeUserAlreadyExists))

	_, err = i.CreateUser("bad name", "", true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeInvalidUserName))

	user, err := i.GetUserChecked("ALICE")
	require.NoError(t, err)
	require.Equal(t, id, user.ID())
	require.False(t, user.IsSuperUser())

	active := false
	realName := "Alice A."
	require.NoError(t, i.UpdateUser("ALICE", &active, &realName, SuperUserID))
	user, err = i.GetUserChecked("ALICE")
	require.NoError(t, err)
	require.False(t, user.Active())
	require.Equal(t, realName, user.RealName())

	keyID, err := i.CreateUserAccessKey("ALICE", "main", "ssh-rsa AAAA...", true, SuperUserID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, keyID, firstUserAccessKeyID)

	// users survive a restart
	require.NoError(t, i.Close())
	i2, err := NewInstance(options)
	require.NoError(t, err)
	user, err = i2.GetUserCheckedByID(id)
	require.NoError(t, err)
	require.Equal(t, "ALICE", user.Name())

	require.NoError(t, i2.DropUserAccessKey("ALICE", "main", true))
	require.NoError(t, i2.DropUser("ALICE", true, SuperUserID))
	_, err = i2.GetUserChecked("ALICE")
	require.True(t, errors.HasCode(err, errors.CodeUserDoesNotExist))

	err = i2.DropUser(SuperUserName, true, SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeCannotDropSystemObject))
}

func TestEncryptedDatabaseReopen(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "aes128")

	i, err := NewInstance(options)
	require.NoError(t, err)

	db, err := i.CreateDatabase("SECURE", "aes256", SuperUserID)
	require.NoError(t, err)
	require.Equal(t, "aes256", db.CipherID())

	_, err = db.CreateUserTable("T1", proto.TableTypeDisk,
		[]ColumnSpecification{intColumn("C1", true)}, SuperUserID)
	require.NoError(t, err)

	// the system objects file must not contain plaintext JSON
	raw, err := os.ReadFile(filepath.Join(db.DataDir(), SystemObjectsFileName))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "SYS_TABLES")

	require.NoError(t, i.Close())

	i2, err := NewInstance(options)
	require.NoError(t, err)
	db2, err := i2.GetDatabaseChecked("SECURE")
	require.NoError(t, err)
	t1, err := db2.GetTableChecked("T1")
	require.NoError(t, err)
	require.Equal(t, "T1", t1.Name())
	require.NoError(t, db2.CheckDataConsistency())
}

func TestUnknownCipherRejected(t *testing.T) {
	i := newTestInstance(t)
	_, err := i.CreateDatabase("DB1", "rot13", SuperUserID)
	require.True(t, errors.HasCode(err, errors.CodeCipherUnknown))
}

func TestConcurrentGetDatabase(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	options := testOptions(dataDir, "none")
	i, err := NewInstance(options)
	require.NoError(t, err)
	_, err = i.CreateDatabase("DB1", "", SuperUserID)
	require.NoError(t, err)
	require.NoError(t, i.Close())

	i2, err := NewInstance(options)
	require.NoError(t, err)

	results := make(chan *Database, 8)
	for n := 0; n < 8; n++ {
		go func() {
			db, err := i2.GetDatabase("DB1")
			if err != nil {
				results <- nil
				return
			}
			results <- db
		}()
	}
	first := <-results
	require.NotNil(t, first)
	for n := 1; n < 8; n++ {
		db := <-results
		require.Same(t, first, db)
	}
}
