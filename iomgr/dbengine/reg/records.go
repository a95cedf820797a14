package reg

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/govindnetworks/siodb/proto"
)

// Registry records. These are the persistent shape of catalog objects: a
// record may exist without the corresponding object being loaded, never the
// other way around.

type TableRecord struct {
	ID                 proto.TableID     `json:"id"`
	Type               proto.TableType   `json:"type"`
	Name               string            `json:"name"`
	FirstUserTrid      uint64            `json:"first_user_trid"`
	CurrentColumnSetID proto.ColumnSetID `json:"current_column_set_id"`

	// TRID allocator state. The registry record is always resident, so the
	// counters survive table cache eviction.
	CurrentSystemTrid uint64 `json:"current_system_trid"`
	CurrentUserTrid   uint64 `json:"current_user_trid"`
}

type ColumnRecord struct {
	ID       proto.ColumnID       `json:"id"`
	TableID  proto.TableID        `json:"table_id"`
	Name     string               `json:"name"`
	DataType proto.ColumnDataType `json:"data_type"`
	NotNull  bool                 `json:"not_null"`
}

type ColumnSetRecord struct {
	ID      proto.ColumnSetID `json:"id"`
	TableID proto.TableID     `json:"table_id"`
	Open    bool              `json:"open"`
}

type ColumnSetColumnRecord struct {
	ID                 proto.ColumnSetColumnID  `json:"id"`
	ColumnSetID        proto.ColumnSetID        `json:"column_set_id"`
	ColumnID           proto.ColumnID           `json:"column_id"`
	ColumnDefinitionID proto.ColumnDefinitionID `json:"column_definition_id"`
	Position           uint32                   `json:"position"`
}

type ColumnDefinitionRecord struct {
	ID       proto.ColumnDefinitionID `json:"id"`
	ColumnID proto.ColumnID           `json:"column_id"`
}

type ColumnDefinitionConstraintRecord struct {
	ID                 proto.ColumnDefinitionID `json:"id"`
	ColumnDefinitionID proto.ColumnDefinitionID `json:"column_definition_id"`
	ConstraintID       proto.ConstraintID       `json:"constraint_id"`
}

type ConstraintRecord struct {
	ID                     proto.ConstraintID           `json:"id"`
	Name                   string                       `json:"name"`
	TableID                proto.TableID                `json:"table_id"`
	ColumnID               proto.ColumnID               `json:"column_id"` // 0 for table constraints
	ConstraintDefinitionID proto.ConstraintDefinitionID `json:"constraint_definition_id"`
}

type ConstraintDefinitionRecord struct {
	ID         proto.ConstraintDefinitionID `json:"id"`
	Type       proto.ConstraintType         `json:"type"`
	Expression []byte                       `json:"expression"`
	Hash       uint64                       `json:"hash"`
}

// NewConstraintDefinitionRecord computes the content hash as part of
// construction so the record is ready for the hash index.
func NewConstraintDefinitionRecord(
	id proto.ConstraintDefinitionID, constraintType proto.ConstraintType, expression []byte,
) *ConstraintDefinitionRecord {
	return &ConstraintDefinitionRecord{
		ID:         id,
		Type:       constraintType,
		Expression: expression,
		Hash:       ComputeConstraintDefinitionHash(constraintType, expression),
	}
}

// IsEqualDefinition reports whether both records describe the same
// (type, expression) content. Ids are not compared.
func (r *ConstraintDefinitionRecord) IsEqualDefinition(other *ConstraintDefinitionRecord) bool {
	return r.Type == other.Type && bytes.Equal(r.Expression, other.Expression)
}

// ComputeConstraintDefinitionHash hashes the constraint type, the expression
// length and the expression bytes into the content hash used for interning.
func ComputeConstraintDefinitionHash(
	constraintType proto.ConstraintType, expression []byte,
) uint64 {
	var head [8]byte
	binary.LittleEndian.PutUint32(head[0:], uint32(constraintType))
	binary.LittleEndian.PutUint32(head[4:], uint32(len(expression)))
	d := xxhash.New()
	d.Write(head[:])
	d.Write(expression)
	return d.Sum64()
}

type IndexRecord struct {
	ID      proto.IndexID   `json:"id"`
	TableID proto.TableID   `json:"table_id"`
	Type    proto.IndexType `json:"type"`
	Name    string          `json:"name"`
	Unique  bool            `json:"unique"`
}

type IndexColumnRecord struct {
	ID             proto.IndexColumnID `json:"id"`
	IndexID        proto.IndexID       `json:"index_id"`
	ColumnID       proto.ColumnID      `json:"column_id"`
	Ordinal        uint32              `json:"ordinal"`
	SortDescending bool                `json:"sort_descending"`
}

type DatabaseRecord struct {
	ID              proto.DatabaseID `json:"id"`
	UUID            uuid.UUID        `json:"uuid"`
	Name            string           `json:"name"`
	CipherID        string           `json:"cipher_id"` // empty means plaintext
	CreateTimestamp int64            `json:"create_timestamp"`
}

type UserRecord struct {
	ID       proto.UserID `json:"id"`
	Name     string       `json:"name"`
	RealName string       `json:"real_name"`
	Active   bool         `json:"active"`
}

type UserAccessKeyRecord struct {
	ID     uint64       `json:"id"`
	UserID proto.UserID `json:"user_id"`
	Name   string       `json:"name"`
	Text   string       `json:"text"`
	Active bool         `json:"active"`
}

type UserPermissionRecord struct {
	ID          uint64           `json:"id"`
	UserID      proto.UserID     `json:"user_id"`
	DatabaseID  proto.DatabaseID `json:"database_id"`
	ObjectType  uint32           `json:"object_type"`
	ObjectID    uint64           `json:"object_id"`
	Permissions uint64           `json:"permissions"`
}
