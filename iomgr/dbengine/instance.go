package dbengine

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine/crypto"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/proto"
	"github.com/govindnetworks/siodb/util"
)

const (
	instanceMetadataFileName = "instance_metadata"
	instanceInitFlagFileName = "initialized"
	masterCipherKeyFileName  = "master_key"

	masterCipherKeySize = 32
)

// Instance is the database server instance: it exclusively owns all
// databases, the instance-wide user accounts and the system database.
type Instance struct {
	options         *config.InstanceOptions
	instanceUUID    uuid.UUID
	name            string
	dataDir         string
	createTimestamp int64
	masterCipherKey []byte

	// mu serializes the instance registries and caches.
	mu               sync.Mutex
	databaseRegistry *reg.DatabaseRegistry
	databaseCache    *objectCache
	userRegistry     *reg.UserRegistry
	userCache        *objectCache
	userAccessKeys   []*reg.UserAccessKeyRecord
	userPermissions  []*reg.UserPermissionRecord

	superUser      *User
	systemDatabase *SystemDatabase

	// loadGroup collapses concurrent loads of the same database.
	loadGroup singleflight.Group
}

type instanceMetadata struct {
	Version         uint32    `json:"version"`
	UUID            uuid.UUID `json:"uuid"`
	Name            string    `json:"name"`
	CreateTimestamp int64     `json:"create_timestamp"`
}

// NewInstance opens an existing instance from its data directory or creates
// a brand new one.
func NewInstance(options *config.InstanceOptions) (*Instance, error) {
	i := &Instance{
		options:          options,
		name:             options.General.Name,
		dataDir:          options.General.DataDir,
		databaseRegistry: reg.NewDatabaseRegistry(),
		databaseCache:    newObjectCache("database", options.IOManager.DatabaseCacheCapacity),
		userRegistry:     reg.NewUserRegistry(),
		userCache:        newObjectCache("user", options.IOManager.UserCacheCapacity),
	}
	if _, err := os.Stat(i.initFlagFilePath()); err == nil {
		if err := i.loadInstanceData(); err != nil {
			return nil, err
		}
	} else {
		if err := i.createInstanceData(); err != nil {
			return nil, err
		}
	}
	return i, nil
}

func (i *Instance) UUID() uuid.UUID { return i.instanceUUID }
func (i *Instance) Name() string    { return i.name }
func (i *Instance) DataDir() string { return i.dataDir }

// SystemDatabase returns the system database.
func (i *Instance) SystemDatabase() *SystemDatabase { return i.systemDatabase }

// SuperUser returns the built-in superuser.
func (i *Instance) SuperUser() *User { return i.superUser }

func (i *Instance) superUserID() proto.UserID { return SuperUserID }

func (i *Instance) metadataFilePath() string {
	return util.ConstructPath(i.dataDir, instanceMetadataFileName)
}

func (i *Instance) initFlagFilePath() string {
	return util.ConstructPath(i.dataDir, instanceInitFlagFileName)
}

func (i *Instance) masterCipherKeyFilePath() string {
	return util.ConstructPath(i.dataDir, masterCipherKeyFileName)
}

// databaseCipherKey derives the database encryption key for the cipher from
// the instance master key.
func (i *Instance) databaseCipherKey(c crypto.Cipher) []byte {
	return i.masterCipherKey[:c.KeySize()]
}

func (i *Instance) createInstanceData() error {
	if err := os.MkdirAll(i.dataDir, 0o770); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot create instance data directory '%s': %v", i.dataDir, err)
	}

	i.instanceUUID = uuid.New()
	i.createTimestamp = time.Now().Unix()

	metadata := &instanceMetadata{
		Version:         1,
		UUID:            i.instanceUUID,
		Name:            i.name,
		CreateTimestamp: i.createTimestamp,
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot serialize instance metadata: %v", err)
	}
	if err := os.WriteFile(i.metadataFilePath(), data, 0o660); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot write instance metadata file: %v", err)
	}

	i.masterCipherKey = make([]byte, masterCipherKeySize)
	if _, err := rand.Read(i.masterCipherKey); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot generate instance master cipher key: %v", err)
	}
	if err := os.WriteFile(i.masterCipherKeyFilePath(), i.masterCipherKey, 0o600); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot write instance master cipher key: %v", err)
	}

	if err := i.createSystemDatabase(); err != nil {
		return err
	}
	if err := i.createSuperUser(); err != nil {
		return err
	}
	if err := i.saveInstanceObjectsUnlocked(); err != nil {
		return err
	}

	// The durable "instance created" marker is written last.
	f, err := os.OpenFile(i.initFlagFilePath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		return errors.New(errors.CodeCannotCreateInstanceInitializationFlagFile,
			"cannot create instance initialization flag file '%s': %v", i.initFlagFilePath(), err)
	}
	defer f.Close()
	if _, err := f.WriteString(time.Unix(i.createTimestamp, 0).UTC().Format(time.RFC3339)); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceInitializationFlagFile,
			"cannot write instance initialization flag file '%s': %v", i.initFlagFilePath(), err)
	}

	log.Infof("instance '%s': created, uuid %s", i.name, i.instanceUUID)
	return nil
}

func (i *Instance) loadInstanceData() error {
	data, err := os.ReadFile(i.metadataFilePath())
	if err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot read instance metadata file: %v", err)
	}
	metadata := &instanceMetadata{}
	if err := json.Unmarshal(data, metadata); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot parse instance metadata file: %v", err)
	}
	i.instanceUUID = metadata.UUID
	i.createTimestamp = metadata.CreateTimestamp

	if i.masterCipherKey, err = os.ReadFile(i.masterCipherKeyFilePath()); err != nil {
		return errors.New(errors.CodeCannotCreateInstanceDataDir,
			"cannot read instance master cipher key: %v", err)
	}

	if err := i.loadSystemDatabase(); err != nil {
		return err
	}

	snapshot, err := i.systemDatabase.LoadInstanceObjects()
	if err != nil {
		return err
	}
	for _, rec := range snapshot.Databases {
		if err := i.databaseRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.Users {
		if err := i.userRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	i.userAccessKeys = snapshot.UserAccessKeys
	i.userPermissions = snapshot.UserPermissions

	if err := i.loadSuperUser(); err != nil {
		return err
	}

	log.Infof("instance '%s': loaded, %d databases, %d users",
		i.name, i.databaseRegistry.Len(), i.userRegistry.Len())
	return nil
}

func (i *Instance) systemDatabaseRecord() *reg.DatabaseRecord {
	return &reg.DatabaseRecord{
		ID:              SystemDatabaseID,
		UUID:            ComputeDatabaseUUID(SystemDatabaseName, i.createTimestamp),
		Name:            SystemDatabaseName,
		CipherID:        i.options.Encryption.SystemDbCipherID,
		CreateTimestamp: i.createTimestamp,
	}
}

func (i *Instance) createSystemDatabase() error {
	rec := i.systemDatabaseRecord()
	sdb, err := createSystemDatabase(i, rec)
	if err != nil {
		return err
	}
	i.systemDatabase = sdb
	if err := i.databaseRegistry.Insert(rec); err != nil {
		return mapRegistryError(err, errors.CodeDatabaseAlreadyExists)
	}
	i.databaseCache.emplace(uint64(rec.ID), sdb.Database)
	return nil
}

func (i *Instance) loadSystemDatabase() error {
	sdb, err := openSystemDatabase(i, i.systemDatabaseRecord())
	if err != nil {
		return err
	}
	i.systemDatabase = sdb
	i.databaseCache.emplace(uint64(SystemDatabaseID), sdb.Database)
	return nil
}

func (i *Instance) createSuperUser() error {
	i.superUser = &User{id: SuperUserID, name: SuperUserName, active: true}
	err := i.userRegistry.Insert(&reg.UserRecord{
		ID:     SuperUserID,
		Name:   SuperUserName,
		Active: true,
	})
	if err != nil {
		return mapRegistryError(err, errors.CodeUserAlreadyExists)
	}
	i.userCache.emplace(uint64(SuperUserID), i.superUser)
	return nil
}

func (i *Instance) loadSuperUser() error {
	rec, ok := i.userRegistry.ByID(SuperUserID)
	if !ok {
		return errors.New(errors.CodeUserDoesNotExist,
			"instance '%s': superuser record is missing", i.name)
	}
	i.superUser = &User{id: rec.ID, name: rec.Name, realName: rec.RealName, active: rec.Active}
	i.userCache.emplace(uint64(SuperUserID), i.superUser)
	return nil
}

func (i *Instance) saveInstanceObjectsUnlocked() error {
	// Instance-level ids are TRIDs of the system database's instance tables;
	// persisting its catalog keeps the allocators durable.
	if err := i.systemDatabase.saveCatalog(); err != nil {
		return err
	}
	return i.systemDatabase.SaveInstanceObjects(&instanceObjectsSnapshot{
		Version:         1,
		Databases:       i.databaseRegistry.All(),
		Users:           i.userRegistry.All(),
		UserAccessKeys:  i.userAccessKeys,
		UserPermissions: i.userPermissions,
	})
}

// ---- databases ----

// DatabaseCount returns the number of known databases.
func (i *Instance) DatabaseCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.databaseRegistry.Len()
}

// GetDatabaseRecordsOrderedByName returns copies of all database records in
// name order.
func (i *Instance) GetDatabaseRecordsOrderedByName() []reg.DatabaseRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]reg.DatabaseRecord, 0, i.databaseRegistry.Len())
	i.databaseRegistry.AscendName(func(rec *reg.DatabaseRecord) bool {
		out = append(out, *rec)
		return true
	})
	return out
}

// GetDatabaseChecked returns the database by name, loading it when necessary.
func (i *Instance) GetDatabaseChecked(databaseName string) (*Database, error) {
	db, err := i.GetDatabase(databaseName)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New(errors.CodeDatabaseDoesNotExist,
			"database '%s' does not exist", databaseName)
	}
	return db, nil
}

// GetDatabase returns the database by name or nil when it does not exist.
// Concurrent calls for the same database perform a single disk load.
func (i *Instance) GetDatabase(databaseName string) (*Database, error) {
	i.mu.Lock()
	rec, ok := i.databaseRegistry.ByName(databaseName)
	if !ok {
		i.mu.Unlock()
		return nil, nil
	}
	if cached, ok := i.databaseCache.get(uint64(rec.ID)); ok {
		i.mu.Unlock()
		return cached.(*Database), nil
	}
	recCopy := *rec
	i.mu.Unlock()

	v, err, _ := i.loadGroup.Do(databaseName, func() (interface{}, error) {
		i.mu.Lock()
		defer i.mu.Unlock()
		if cached, ok := i.databaseCache.get(uint64(recCopy.ID)); ok {
			return cached.(*Database), nil
		}
		db, err := openDatabase(i, &recCopy)
		if err != nil {
			return nil, err
		}
		i.databaseCache.emplace(uint64(db.id), db)
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Database), nil
}

// CreateDatabase creates a new database with the given cipher; an empty
// cipher id selects the instance default.
func (i *Instance) CreateDatabase(
	name, cipherID string, currentUserID proto.UserID,
) (*Database, error) {
	if !isValidDatabaseObjectName(name) {
		return nil, errors.New(errors.CodeInvalidDatabaseName, "invalid database name '%s'", name)
	}
	if cipherID == "" {
		cipherID = i.options.Encryption.DefaultCipherID
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.databaseRegistry.ByName(name); ok {
		return nil, errors.New(errors.CodeDatabaseAlreadyExists,
			"database '%s' already exists", name)
	}

	id, err := i.systemDatabase.GenerateNextDatabaseID(false)
	if err != nil {
		return nil, err
	}
	createTimestamp := time.Now().Unix()
	rec := &reg.DatabaseRecord{
		ID:              id,
		UUID:            ComputeDatabaseUUID(name, createTimestamp),
		Name:            name,
		CipherID:        cipherID,
		CreateTimestamp: createTimestamp,
	}
	db, err := createDatabase(i, rec)
	if err != nil {
		return nil, err
	}
	if err := i.databaseRegistry.Insert(rec); err != nil {
		return nil, mapRegistryError(err, errors.CodeDatabaseAlreadyExists)
	}
	i.databaseCache.emplace(uint64(id), db)
	if err := i.saveInstanceObjectsUnlocked(); err != nil {
		i.databaseCache.erase(uint64(id))
		i.databaseRegistry.Erase(id)
		return nil, err
	}
	log.Infof("instance '%s': user %d created database '%s'", i.name, currentUserID, name)
	return db, nil
}

// DropDatabase removes an existing database together with its data
// directory.
func (i *Instance) DropDatabase(name string, databaseMustExist bool, currentUserID proto.UserID) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.databaseRegistry.ByName(name)
	if !ok {
		if databaseMustExist {
			return false, errors.New(errors.CodeDatabaseDoesNotExist,
				"database '%s' does not exist", name)
		}
		return false, nil
	}
	if rec.ID == SystemDatabaseID {
		return false, errors.New(errors.CodeCannotDropSystemObject,
			"cannot drop system database '%s'", name)
	}

	var dataDir string
	if cached, ok := i.databaseCache.get(uint64(rec.ID)); ok {
		db := cached.(*Database)
		if db.UseCount() > 0 {
			return false, errors.New(errors.CodeCannotDropUsedDatabase,
				"database '%s' is in use", name)
		}
		dataDir = db.dataDir
		if err := db.Close(); err != nil {
			return false, err
		}
		i.databaseCache.erase(uint64(rec.ID))
	} else {
		dataDir = util.ConstructPath(i.dataDir, DatabaseDataDirPrefix+rec.UUID.String())
	}

	if err := i.databaseRegistry.Erase(rec.ID); err != nil {
		return false, mapRegistryError(err, errors.CodeDatabaseDoesNotExist)
	}
	if err := i.saveInstanceObjectsUnlocked(); err != nil {
		return false, err
	}
	if err := os.RemoveAll(dataDir); err != nil {
		log.Errorf("instance '%s': cannot remove data directory of dropped database '%s': %v",
			i.name, name, err)
	}
	log.Infof("instance '%s': user %d dropped database '%s'", i.name, currentUserID, name)
	return true, nil
}

// GenerateNextDatabaseID mints a database id in the requested partition.
func (i *Instance) GenerateNextDatabaseID(system bool) (proto.DatabaseID, error) {
	return i.systemDatabase.GenerateNextDatabaseID(system)
}

// CheckDataConsistency loads every database and every table in it.
func (i *Instance) CheckDataConsistency() error {
	for _, rec := range i.GetDatabaseRecordsOrderedByName() {
		db, err := i.GetDatabaseChecked(rec.Name)
		if err != nil {
			return err
		}
		if err := db.CheckDataConsistency(); err != nil {
			return err
		}
	}
	return nil
}

// ---- users ----

// GetUserChecked returns the user by name.
func (i *Instance) GetUserChecked(userName string) (*User, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.userRegistry.ByName(userName)
	if !ok {
		return nil, errors.New(errors.CodeUserDoesNotExist, "user '%s' does not exist", userName)
	}
	return i.getUserFromRecordUnlocked(rec), nil
}

// GetUserCheckedByID returns the user by id.
func (i *Instance) GetUserCheckedByID(userID proto.UserID) (*User, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.userRegistry.ByID(userID)
	if !ok {
		return nil, errors.New(errors.CodeUserDoesNotExist, "user #%d does not exist", userID)
	}
	return i.getUserFromRecordUnlocked(rec), nil
}

func (i *Instance) getUserFromRecordUnlocked(rec *reg.UserRecord) *User {
	if cached, ok := i.userCache.get(uint64(rec.ID)); ok {
		return cached.(*User)
	}
	user := &User{id: rec.ID, name: rec.Name, realName: rec.RealName, active: rec.Active}
	i.userCache.emplace(uint64(user.id), user)
	return user
}

// CreateUser creates a new user account.
func (i *Instance) CreateUser(
	name, realName string, active bool, currentUserID proto.UserID,
) (proto.UserID, error) {
	if !isValidDatabaseObjectName(name) {
		return 0, errors.New(errors.CodeInvalidUserName, "invalid user name '%s'", name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.userRegistry.ByName(name); ok {
		return 0, errors.New(errors.CodeUserAlreadyExists, "user '%s' already exists", name)
	}
	id, err := i.systemDatabase.GenerateNextUserID()
	if err != nil {
		return 0, err
	}
	rec := &reg.UserRecord{ID: id, Name: name, RealName: realName, Active: active}
	if err := i.userRegistry.Insert(rec); err != nil {
		return 0, mapRegistryError(err, errors.CodeUserAlreadyExists)
	}
	if err := i.saveInstanceObjectsUnlocked(); err != nil {
		i.userRegistry.Erase(id)
		return 0, err
	}
	log.Infof("instance '%s': user %d created user '%s'", i.name, currentUserID, name)
	return id, nil
}

// DropUser removes a user account.
func (i *Instance) DropUser(name string, userMustExist bool, currentUserID proto.UserID) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.userRegistry.ByName(name)
	if !ok {
		if userMustExist {
			return errors.New(errors.CodeUserDoesNotExist, "user '%s' does not exist", name)
		}
		return nil
	}
	if rec.ID == SuperUserID {
		return errors.New(errors.CodeCannotDropSystemObject, "cannot drop superuser '%s'", name)
	}
	if err := i.userRegistry.Erase(rec.ID); err != nil {
		return mapRegistryError(err, errors.CodeUserDoesNotExist)
	}
	i.userCache.erase(uint64(rec.ID))

	// Cascade: the user's access keys and permissions go away with it.
	keys := i.userAccessKeys[:0]
	for _, key := range i.userAccessKeys {
		if key.UserID != rec.ID {
			keys = append(keys, key)
		}
	}
	i.userAccessKeys = keys
	permissions := i.userPermissions[:0]
	for _, p := range i.userPermissions {
		if p.UserID != rec.ID {
			permissions = append(permissions, p)
		}
	}
	i.userPermissions = permissions

	return i.saveInstanceObjectsUnlocked()
}

// UpdateUser modifies the state or real name of a user account.
func (i *Instance) UpdateUser(
	name string, active *bool, realName *string, currentUserID proto.UserID,
) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.userRegistry.ByName(name)
	if !ok {
		return errors.New(errors.CodeUserDoesNotExist, "user '%s' does not exist", name)
	}
	updated := *rec
	if active != nil {
		updated.Active = *active
	}
	if realName != nil {
		updated.RealName = *realName
	}
	if err := i.userRegistry.Replace(&updated); err != nil {
		return mapRegistryError(err, errors.CodeUserDoesNotExist)
	}
	i.userCache.erase(uint64(rec.ID))
	return i.saveInstanceObjectsUnlocked()
}

// CreateUserAccessKey attaches an access key to a user account.
func (i *Instance) CreateUserAccessKey(
	userName, keyName, text string, active bool, currentUserID proto.UserID,
) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.userRegistry.ByName(userName)
	if !ok {
		return 0, errors.New(errors.CodeUserDoesNotExist, "user '%s' does not exist", userName)
	}
	for _, key := range i.userAccessKeys {
		if key.UserID == rec.ID && key.Name == keyName {
			return 0, errors.New(errors.CodeUserAlreadyExists,
				"access key '%s' of user '%s' already exists", keyName, userName)
		}
	}
	id, err := i.systemDatabase.GenerateNextUserAccessKeyID()
	if err != nil {
		return 0, err
	}
	i.userAccessKeys = append(i.userAccessKeys, &reg.UserAccessKeyRecord{
		ID:     id,
		UserID: rec.ID,
		Name:   keyName,
		Text:   text,
		Active: active,
	})
	return id, i.saveInstanceObjectsUnlocked()
}

// DropUserAccessKey removes an access key from a user account.
func (i *Instance) DropUserAccessKey(userName, keyName string, accessKeyMustExist bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.userRegistry.ByName(userName)
	if !ok {
		return errors.New(errors.CodeUserDoesNotExist, "user '%s' does not exist", userName)
	}
	for idx, key := range i.userAccessKeys {
		if key.UserID == rec.ID && key.Name == keyName {
			i.userAccessKeys = append(i.userAccessKeys[:idx], i.userAccessKeys[idx+1:]...)
			return i.saveInstanceObjectsUnlocked()
		}
	}
	if accessKeyMustExist {
		return errors.New(errors.CodeUserDoesNotExist,
			"access key '%s' of user '%s' does not exist", keyName, userName)
	}
	return nil
}

// Close closes every loaded database.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	var firstErr error
	for _, rec := range i.databaseRegistry.All() {
		if cached, ok := i.databaseCache.get(uint64(rec.ID)); ok {
			if err := cached.(*Database).Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			i.databaseCache.erase(uint64(rec.ID))
		}
	}
	return firstErr
}
