package dbengine

import "github.com/govindnetworks/siodb/proto"

// Identifier partitioning. Ids below the "first user" threshold of a kind
// denote system objects; ids at or above denote user objects. Allocators must
// never cross the partition for the wrong caller.
const (
	FirstUserTableID                      uint64 = 4096
	FirstUserColumnID                     uint64 = 4096
	FirstUserColumnSetID                  uint64 = 4096
	FirstUserColumnSetColumnID            uint64 = 4096
	FirstUserColumnDefinitionID           uint64 = 4096
	FirstUserColumnDefinitionConstraintID uint64 = 4096
	FirstUserConstraintID                 uint64 = 4096
	FirstUserTableConstraintDefinitionID  uint64 = 4096
	FirstUserIndexID                      uint64 = 4096
	FirstUserIndexColumnID                uint64 = 4096

	FirstUserDatabaseID proto.DatabaseID = 256
	FirstUserUserID     proto.UserID     = 256
)

const (
	// SuperUserID is the id of the built-in superuser.
	SuperUserID proto.UserID = 1
	// SuperUserName is the name of the built-in superuser.
	SuperUserName = "ROOT"

	// SystemDatabaseID is the id of the system database.
	SystemDatabaseID proto.DatabaseID = 1
	// SystemDatabaseName is the name of the system database.
	SystemDatabaseName = "SYS"

	// MasterColumnName is the implicit first column of every disk table.
	MasterColumnName = "SYS_TRID"
)

// On-disk names inside a database data directory.
const (
	DatabaseDataDirPrefix      = "db-"
	InitializationFlagFileName = "initialized"
	MetadataFileName           = "metadata"
	SystemObjectsFileName      = "system_objects"
)

// Catalog system tables present in every database.
const (
	SysTablesTableName               = "SYS_TABLES"
	SysDummyTableName                = "SYS_DUMMY"
	SysColumnSetsTableName           = "SYS_COLUMN_SETS"
	SysColumnsTableName              = "SYS_COLUMNS"
	SysColumnDefsTableName           = "SYS_COLUMN_DEFS"
	SysColumnSetColumnsTableName     = "SYS_COLUMN_SET_COLUMNS"
	SysColumnDefConstraintsTableName = "SYS_COLUMN_DEF_CONSTRAINTS"
	SysConstraintDefsTableName       = "SYS_CONSTRAINT_DEFS"
	SysConstraintsTableName          = "SYS_CONSTRAINTS"
	SysIndicesTableName              = "SYS_INDICES"
	SysIndexColumnsTableName         = "SYS_INDEX_COLUMNS"
)

// System tables hosted only by the system database.
const (
	SysUsersTableName           = "SYS_USERS"
	SysUserAccessKeysTableName  = "SYS_USER_ACCESS_KEYS"
	SysDatabasesTableName       = "SYS_DATABASES"
	SysUserPermissionsTableName = "SYS_USER_PERMISSIONS"
)
