package proto

type (
	DatabaseID             = uint32
	TableID                = uint32
	ColumnID               = uint64
	ColumnSetID            = uint64
	ColumnSetColumnID      = uint64
	ColumnDefinitionID     = uint64
	ConstraintID           = uint64
	ConstraintDefinitionID = uint64
	IndexID                = uint64
	IndexColumnID          = uint64
	UserID                 = uint32
	TransactionID          = uint64
)

// TableType is the storage kind of a table.
type TableType uint32

const (
	TableTypeDisk TableType = iota + 1
	TableTypeMemory
)

func (t TableType) String() string {
	switch t {
	case TableTypeDisk:
		return "DISK"
	case TableTypeMemory:
		return "MEMORY"
	default:
		return "UNKNOWN"
	}
}

// ConstraintType discriminates constraint definitions.
type ConstraintType uint32

const (
	ConstraintTypeNotNull ConstraintType = iota + 1
	ConstraintTypeDefaultValue

	// sentinel, keep last
	ConstraintTypeMax
)

func (t ConstraintType) String() string {
	switch t {
	case ConstraintTypeNotNull:
		return "NOT NULL"
	case ConstraintTypeDefaultValue:
		return "DEFAULT"
	default:
		return "UNKNOWN"
	}
}

// ColumnDataType enumerates column value types supported by the engine.
type ColumnDataType uint32

const (
	ColumnDataTypeBool ColumnDataType = iota + 1
	ColumnDataTypeInt8
	ColumnDataTypeUInt8
	ColumnDataTypeInt16
	ColumnDataTypeUInt16
	ColumnDataTypeInt32
	ColumnDataTypeUInt32
	ColumnDataTypeInt64
	ColumnDataTypeUInt64
	ColumnDataTypeFloat
	ColumnDataTypeDouble
	ColumnDataTypeText
	ColumnDataTypeBinary
	ColumnDataTypeTimestamp
)

// IndexType enumerates index implementations.
type IndexType uint32

const (
	IndexTypeBTree IndexType = iota + 1
	IndexTypeHash
)
