package dbengine

import (
	"encoding/binary"
	"encoding/json"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/govindnetworks/siodb/errors"
	dbio "github.com/govindnetworks/siodb/iomgr/dbengine/io"
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/util"
)

// ensureDataDir resolves the database data directory. With create, the
// directory is (re)created and the database must not exist yet; without it,
// both the directory and the initialization flag file must exist.
func (db *Database) ensureDataDir(create bool) (string, error) {
	dataDir := util.ConstructPath(db.instance.dataDir,
		DatabaseDataDirPrefix+db.databaseUUID.String())
	initFlagFile := util.ConstructPath(dataDir, InitializationFlagFileName)
	_, err := os.Stat(initFlagFile)
	initFlagFileExists := err == nil

	if create {
		if initFlagFileExists {
			return "", errors.New(errors.CodeDatabaseAlreadyExists,
				"database '%s' already exists", db.name)
		}
		// A stale directory from an interrupted creation is discarded.
		if err := os.RemoveAll(dataDir); err != nil {
			return "", errors.New(errors.CodeCannotCreateDatabaseDataDir,
				"cannot create data directory '%s' of database '%s' (%s): %v",
				dataDir, db.name, db.databaseUUID, err)
		}
		if err := os.MkdirAll(dataDir, 0o770); err != nil {
			return "", errors.New(errors.CodeCannotCreateDatabaseDataDir,
				"cannot create data directory '%s' of database '%s' (%s): %v",
				dataDir, db.name, db.databaseUUID, err)
		}
	} else {
		if st, err := os.Stat(dataDir); err != nil || !st.IsDir() {
			return "", errors.New(errors.CodeDatabaseDataFolderDoesNotExist,
				"data directory '%s' of database '%s' does not exist", dataDir, db.name)
		}
		if !initFlagFileExists {
			return "", errors.New(errors.CodeDatabaseInitFileDoesNotExist,
				"initialization flag file '%s' of database '%s' does not exist",
				initFlagFile, db.name)
		}
	}
	return dataDir, nil
}

// createInitializationFlagFile writes the durable "database created" marker.
// Its content is the creation unix timestamp.
func (db *Database) createInitializationFlagFile() error {
	initFlagFile := util.ConstructPath(db.dataDir, InitializationFlagFileName)
	f, err := os.OpenFile(initFlagFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		return errors.New(errors.CodeCannotCreateDatabaseInitializationFlagFile,
			"cannot create initialization flag file '%s' of database '%s' (%s): create file failed: %v",
			initFlagFile, db.name, db.databaseUUID, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return errors.New(errors.CodeCannotCreateDatabaseInitializationFlagFile,
			"cannot create initialization flag file '%s' of database '%s' (%s): write failed: %v",
			initFlagFile, db.name, db.databaseUUID, err)
	}
	if err := f.Sync(); err != nil {
		return errors.New(errors.CodeCannotCreateDatabaseInitializationFlagFile,
			"cannot create initialization flag file '%s' of database '%s' (%s): write failed: %v",
			initFlagFile, db.name, db.databaseUUID, err)
	}
	return nil
}

func (db *Database) metadataFilePath() string {
	return util.ConstructPath(db.dataDir, MetadataFileName)
}

func (db *Database) systemObjectsFilePath() string {
	return util.ConstructPath(db.dataDir, SystemObjectsFileName)
}

// createMetadataFile creates the metadata file with the initial record and
// maps it into memory.
func (db *Database) createMetadataFile() (*MemoryMappedFile, error) {
	m, err := createMetadataMapping(db.metadataFilePath(), db.instance.superUserID())
	if err != nil {
		return nil, errors.New(errors.CodeCannotCreateDatabaseMetadataFile,
			"cannot create metadata file '%s' of database '%s' (%s): %v",
			db.metadataFilePath(), db.name, db.databaseUUID, err)
	}
	return m, nil
}

// openMetadataFile maps the existing metadata file.
func (db *Database) openMetadataFile() (*MemoryMappedFile, error) {
	m, err := openMetadataMapping(db.metadataFilePath())
	if err != nil {
		return nil, errors.New(errors.CodeCannotOpenDatabaseMetadataFile,
			"cannot open metadata file '%s' of database '%s' (%s): %v",
			db.metadataFilePath(), db.name, db.databaseUUID, err)
	}
	return m, nil
}

// CreateFile creates a data file in this database's data directory,
// encrypted when the database has a cipher.
func (db *Database) CreateFile(
	path string, extraFlags int, createMode fs.FileMode, initialSize int64,
) (dbio.File, error) {
	if db.cipherBlock != nil {
		return dbio.CreateEncryptedFile(path, extraFlags, createMode, db.cipherBlock, initialSize)
	}
	return dbio.CreateFile(path, extraFlags, createMode, initialSize)
}

// OpenFile opens an existing data file of this database.
func (db *Database) OpenFile(path string, extraFlags int) (dbio.File, error) {
	if db.cipherBlock != nil {
		return dbio.OpenEncryptedFile(path, extraFlags, db.cipherBlock)
	}
	return dbio.OpenFile(path, extraFlags)
}

// systemObjectsSnapshot is the persistent image of all catalog registries.
type systemObjectsSnapshot struct {
	Version                     uint32                                  `json:"version"`
	Tables                      []*reg.TableRecord                      `json:"tables"`
	Columns                     []*reg.ColumnRecord                     `json:"columns"`
	ColumnSets                  []*reg.ColumnSetRecord                  `json:"column_sets"`
	ColumnSetColumns            []*reg.ColumnSetColumnRecord            `json:"column_set_columns"`
	ColumnDefinitions           []*reg.ColumnDefinitionRecord           `json:"column_definitions"`
	ColumnDefinitionConstraints []*reg.ColumnDefinitionConstraintRecord `json:"column_definition_constraints"`
	Constraints                 []*reg.ConstraintRecord                 `json:"constraints"`
	ConstraintDefinitions       []*reg.ConstraintDefinitionRecord       `json:"constraint_definitions"`
	Indices                     []*reg.IndexRecord                      `json:"indices"`
	IndexColumns                []*reg.IndexColumnRecord                `json:"index_columns"`
}

const systemObjectsFormatVersion = 1

// saveSystemObjectsUnlocked writes the catalog registries to the system
// objects file through the file abstraction, so the image is encrypted
// whenever the database is.
func (db *Database) saveSystemObjectsUnlocked() error {
	snapshot := &systemObjectsSnapshot{
		Version:                     systemObjectsFormatVersion,
		Tables:                      db.tableRegistry.All(),
		Columns:                     db.columnRegistry.All(),
		ColumnSets:                  db.columnSetRegistry.All(),
		ColumnSetColumns:            db.columnSetColumnRegistry.All(),
		ColumnDefinitions:           db.columnDefinitionRegistry.All(),
		ColumnDefinitionConstraints: db.columnDefinitionConstraintRegistry.All(),
		Constraints:                 db.constraintRegistry.All(),
		ConstraintDefinitions:       db.constraintDefinitionRegistry.All(),
		Indices:                     db.indexRegistry.All(),
		IndexColumns:                db.indexColumnRegistry.All(),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot serialize system objects: %v", db.name, err)
	}

	tmpPath := db.systemObjectsFilePath() + ".tmp"
	f, err := db.CreateFile(tmpPath, os.O_TRUNC, dbio.DataFileCreationMode, 0)
	if err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot create system objects file '%s': %v", db.name, tmpPath, err)
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
			"database '%s': cannot write system objects file '%s': %v", db.name, tmpPath, err)
	}
	if err := os.Rename(tmpPath, db.systemObjectsFilePath()); err != nil {
		return errors.New(errors.CodeCannotSaveSystemObjects,
			"database '%s': cannot replace system objects file: %v", db.name, err)
	}
	return nil
}

// loadSystemObjectsUnlocked reads the system objects file and rebuilds every
// registry, then binds the system tables.
func (db *Database) loadSystemObjectsUnlocked() error {
	path := db.systemObjectsFilePath()
	f, err := db.OpenFile(path, 0)
	if err != nil {
		return errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot open system objects file '%s': %v", db.name, path, err)
	}
	defer f.Close()

	var size [8]byte
	if _, err := f.ReadAt(size[:], 0); err != nil {
		return errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot read system objects file '%s': %v", db.name, path, err)
	}
	data := make([]byte, binary.LittleEndian.Uint64(size[:]))
	if _, err := f.ReadAt(data, 8); err != nil {
		return errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot read system objects file '%s': %v", db.name, path, err)
	}

	snapshot := &systemObjectsSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return errors.New(errors.CodeCannotLoadSystemObjects,
			"database '%s': cannot parse system objects file '%s': %v", db.name, path, err)
	}

	for _, rec := range snapshot.Tables {
		if err := db.tableRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.Columns {
		if err := db.columnRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.ColumnSets {
		if err := db.columnSetRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.ColumnSetColumns {
		if err := db.columnSetColumnRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.ColumnDefinitions {
		if err := db.columnDefinitionRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.ColumnDefinitionConstraints {
		if err := db.columnDefinitionConstraintRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.Constraints {
		if err := db.constraintRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.ConstraintDefinitions {
		if err := db.constraintDefinitionRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.Indices {
		if err := db.indexRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}
	for _, rec := range snapshot.IndexColumns {
		if err := db.indexColumnRegistry.Insert(rec); err != nil {
			return mapRegistryError(err, errors.CodeCannotLoadSystemObjects)
		}
	}

	return db.bindLoadedSystemTablesUnlocked()
}
