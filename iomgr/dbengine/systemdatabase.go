package dbengine

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"

	"github.com/govindnetworks/siodb/errors"
	dbio "github.com/govindnetworks/siodb/iomgr/dbengine/io"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/proto"
	"github.com/govindnetworks/siodb/util"
)

const instanceObjectsFileName = "instance_objects"

const (
	firstUserAccessKeyID  uint64 = 4096
	firstUserPermissionID uint64 = 4096
	firstUserDatabaseTrid        = uint64(FirstUserDatabaseID)
	firstUserAccountTrid         = uint64(FirstUserUserID)
)

// SystemDatabase is the database that hosts the instance-wide system tables:
// users, access keys, databases and permissions. It is the id source for
// instance-level objects.
type SystemDatabase struct {
	*Database

	sysUsersTable           *Table
	sysUserAccessKeysTable  *Table
	sysDatabasesTable       *Table
	sysUserPermissionsTable *Table
}

// createSystemDatabase materializes the system database of a new instance.
func createSystemDatabase(instance *Instance, rec *reg.DatabaseRecord) (*SystemDatabase, error) {
	db, err := createDatabaseWithFlag(instance, rec, true)
	if err != nil {
		return nil, err
	}
	sdb := &SystemDatabase{Database: db}
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	if err := sdb.createInstanceTablesUnlocked(); err != nil {
		return nil, err
	}
	if err := sdb.saveSystemObjectsUnlocked(); err != nil {
		return nil, err
	}
	return sdb, nil
}

// openSystemDatabase loads the system database of an existing instance.
func openSystemDatabase(instance *Instance, rec *reg.DatabaseRecord) (*SystemDatabase, error) {
	db, err := openDatabaseWithFlag(instance, rec, true)
	if err != nil {
		return nil, err
	}
	sdb := &SystemDatabase{Database: db}
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	if err := sdb.bindInstanceTablesUnlocked(); err != nil {
		return nil, err
	}
	return sdb, nil
}

func (sdb *SystemDatabase) createInstanceTablesUnlocked() error {
	tables := []struct {
		name          string
		firstUserTrid uint64
		target        **Table
	}{
		{SysUsersTableName, firstUserAccountTrid, &sdb.sysUsersTable},
		{SysUserAccessKeysTableName, firstUserAccessKeyID, &sdb.sysUserAccessKeysTable},
		{SysDatabasesTableName, firstUserDatabaseTrid, &sdb.sysDatabasesTable},
		{SysUserPermissionsTableName, firstUserPermissionID, &sdb.sysUserPermissionsTable},
	}
	for _, st := range tables {
		table, err := sdb.createTableUnlocked(st.name, proto.TableTypeDisk, st.firstUserTrid, true)
		if err != nil {
			return err
		}
		if err := table.closeCurrentColumnSetUnlocked(); err != nil {
			return err
		}
		*st.target = table
	}
	// The superuser occupies the first system row of SYS_USERS.
	if _, err := sdb.sysUsersTable.GenerateNextSystemTrid(); err != nil {
		return err
	}
	// The system database itself occupies the first system row of SYS_DATABASES.
	if _, err := sdb.sysDatabasesTable.GenerateNextSystemTrid(); err != nil {
		return err
	}
	return nil
}

func (sdb *SystemDatabase) bindInstanceTablesUnlocked() error {
	bindings := []struct {
		name   string
		target **Table
	}{
		{SysUsersTableName, &sdb.sysUsersTable},
		{SysUserAccessKeysTableName, &sdb.sysUserAccessKeysTable},
		{SysDatabasesTableName, &sdb.sysDatabasesTable},
		{SysUserPermissionsTableName, &sdb.sysUserPermissionsTable},
	}
	for _, b := range bindings {
		table := sdb.getTableUnlocked(b.name)
		if table == nil {
			return errors.New(errors.CodeMissingSystemTable,
				"database '%s' (%d): missing system table '%s'", sdb.name, sdb.id, b.name)
		}
		*b.target = table
	}
	return nil
}

// GenerateNextUserID mints the id of a new user account.
func (sdb *SystemDatabase) GenerateNextUserID() (proto.UserID, error) {
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	id, err := sdb.sysUsersTable.GenerateNextUserTrid()
	if err != nil {
		return 0, err
	}
	if id >= math.MaxUint32 {
		return 0, errors.New(errors.CodeResourceExhausted,
			"database '%s': user id space exhausted", sdb.name)
	}
	return proto.UserID(id), nil
}

// GenerateNextDatabaseID mints a database id in the requested partition.
func (sdb *SystemDatabase) GenerateNextDatabaseID(system bool) (proto.DatabaseID, error) {
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	var id uint64
	var err error
	if system {
		id, err = sdb.sysDatabasesTable.GenerateNextSystemTrid()
	} else {
		id, err = sdb.sysDatabasesTable.GenerateNextUserTrid()
	}
	if err != nil {
		return 0, err
	}
	if id >= math.MaxUint32 {
		return 0, errors.New(errors.CodeResourceExhausted,
			"database '%s': database id space exhausted", sdb.name)
	}
	return proto.DatabaseID(id), nil
}

// GenerateNextUserAccessKeyID mints the id of a new user access key.
func (sdb *SystemDatabase) GenerateNextUserAccessKeyID() (uint64, error) {
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	return sdb.sysUserAccessKeysTable.GenerateNextUserTrid()
}

// GenerateNextUserPermissionID mints the id of a new user permission record.
func (sdb *SystemDatabase) GenerateNextUserPermissionID() (uint64, error) {
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	return sdb.sysUserPermissionsTable.GenerateNextUserTrid()
}

// saveCatalog persists this database's own catalog registries, including
// the TRID counters of the instance tables.
func (sdb *SystemDatabase) saveCatalog() error {
	sdb.mu.Lock()
	defer sdb.mu.Unlock()
	return sdb.saveSystemObjectsUnlocked()
}

// instanceObjectsSnapshot is the persistent image of the instance-level
// registries hosted by the system database.
type instanceObjectsSnapshot struct {
	Version         uint32                      `json:"version"`
	Databases       []*reg.DatabaseRecord       `json:"databases"`
	Users           []*reg.UserRecord           `json:"users"`
	UserAccessKeys  []*reg.UserAccessKeyRecord  `json:"user_access_keys"`
	UserPermissions []*reg.UserPermissionRecord `json:"user_permissions"`
}

func (sdb *SystemDatabase) instanceObjectsFilePath() string {
	return util.ConstructPath(sdb.dataDir, instanceObjectsFileName)
}

// SaveInstanceObjects writes the instance registries through this database's
// file abstraction, so they are encrypted with the system database cipher.
func (sdb *SystemDatabase) SaveInstanceObjects(snapshot *instanceObjectsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot serialize instance objects: %v", sdb.name, err)
	}
	tmpPath := sdb.instanceObjectsFilePath() + ".tmp"
	f, err := sdb.CreateFile(tmpPath, os.O_TRUNC, dbio.DataFileCreationMode, 0)
	if err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot create instance objects file: %v", sdb.name, err)
	}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(data)))
	if _, err := f.WriteAt(size[:], 0); err == nil {
		_, err = f.WriteAt(data, 8)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot write instance objects file: %v", sdb.name, err)
	}
	if err := os.Rename(tmpPath, sdb.instanceObjectsFilePath()); err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot replace instance objects file: %v", sdb.name, err)
	}
	return nil
}

// LoadInstanceObjects reads the instance registries back.
func (sdb *SystemDatabase) LoadInstanceObjects() (*instanceObjectsSnapshot, error) {
	path := sdb.instanceObjectsFilePath()
	f, err := sdb.OpenFile(path, 0)
	if err != nil {
		return nil, errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot open instance objects file '%s': %v", sdb.name, path, err)
	}
	defer f.Close()

	var size [8]byte
	if _, err := f.ReadAt(size[:], 0); err != nil {
		return nil, errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot read instance objects file '%s': %v", sdb.name, path, err)
	}
	data := make([]byte, binary.LittleEndian.Uint64(size[:]))
	if _, err := f.ReadAt(data, 8); err != nil {
		return nil, errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot read instance objects file '%s': %v", sdb.name, path, err)
	}
	snapshot := &instanceObjectsSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot parse instance objects file '%s': %v", sdb.name, path, err)
	}
	return snapshot, nil
}
