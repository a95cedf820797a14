package reg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/proto"
)

func TestTableRegistryUniqueIndexes(t *testing.T) {
	r := NewTableRegistry()
	require.NoError(t, r.Insert(&TableRecord{ID: 1, Name: "SYS_TABLES", Type: proto.TableTypeDisk}))
	require.NoError(t, r.Insert(&TableRecord{ID: 2, Name: "T1", Type: proto.TableTypeDisk}))

	require.ErrorIs(t, r.Insert(&TableRecord{ID: 1, Name: "OTHER"}), ErrAlreadyExists)
	require.ErrorIs(t, r.Insert(&TableRecord{ID: 3, Name: "T1"}), ErrAlreadyExists)

	rec, ok := r.ByName("T1")
	require.True(t, ok)
	require.Equal(t, proto.TableID(2), rec.ID)

	require.NoError(t, r.Erase(2))
	_, ok = r.ByName("T1")
	require.False(t, ok)
	require.ErrorIs(t, r.Erase(2), ErrNotFound)
}

func TestTableRegistryReplaceKeepsNameUnique(t *testing.T) {
	r := NewTableRegistry()
	require.NoError(t, r.Insert(&TableRecord{ID: 1, Name: "A"}))
	require.NoError(t, r.Insert(&TableRecord{ID: 2, Name: "B"}))

	require.ErrorIs(t, r.Replace(&TableRecord{ID: 2, Name: "A"}), ErrAlreadyExists)
	require.ErrorIs(t, r.Replace(&TableRecord{ID: 9, Name: "X"}), ErrNotFound)

	require.NoError(t, r.Replace(&TableRecord{ID: 2, Name: "C"}))
	_, ok := r.ByName("B")
	require.False(t, ok)
	rec, ok := r.ByName("C")
	require.True(t, ok)
	require.Equal(t, proto.TableID(2), rec.ID)
}

func TestTableRegistryAscendNameOrder(t *testing.T) {
	r := NewTableRegistry()
	for i, name := range []string{"ZULU", "ALPHA", "MIKE"} {
		require.NoError(t, r.Insert(&TableRecord{ID: proto.TableID(i + 1), Name: name}))
	}
	var names []string
	r.AscendName(func(rec *TableRecord) bool {
		names = append(names, rec.Name)
		return true
	})
	require.Equal(t, []string{"ALPHA", "MIKE", "ZULU"}, names)
}

func TestColumnRegistryNameUniquePerTable(t *testing.T) {
	r := NewColumnRegistry()
	require.NoError(t, r.Insert(&ColumnRecord{ID: 1, TableID: 1, Name: "C1"}))
	// same name in another table is fine
	require.NoError(t, r.Insert(&ColumnRecord{ID: 2, TableID: 2, Name: "C1"}))
	require.ErrorIs(t, r.Insert(&ColumnRecord{ID: 3, TableID: 1, Name: "C1"}), ErrAlreadyExists)

	rec, ok := r.ByTableAndName(2, "C1")
	require.True(t, ok)
	require.Equal(t, proto.ColumnID(2), rec.ID)
}

func TestColumnDefinitionHistory(t *testing.T) {
	r := NewColumnDefinitionRegistry()
	require.NoError(t, r.Insert(&ColumnDefinitionRecord{ID: 10, ColumnID: 5}))
	require.NoError(t, r.Insert(&ColumnDefinitionRecord{ID: 12, ColumnID: 5}))
	require.NoError(t, r.Insert(&ColumnDefinitionRecord{ID: 11, ColumnID: 6}))

	latest, ok := r.LatestForColumn(5)
	require.True(t, ok)
	require.Equal(t, proto.ColumnDefinitionID(12), latest)

	latest, ok = r.LatestForColumn(6)
	require.True(t, ok)
	require.Equal(t, proto.ColumnDefinitionID(11), latest)

	_, ok = r.LatestForColumn(7)
	require.False(t, ok)
}

func TestColumnSetColumnOrder(t *testing.T) {
	r := NewColumnSetColumnRegistry()
	require.NoError(t, r.Insert(&ColumnSetColumnRecord{ID: 1, ColumnSetID: 1, ColumnID: 20, Position: 2}))
	require.NoError(t, r.Insert(&ColumnSetColumnRecord{ID: 2, ColumnSetID: 1, ColumnID: 10, Position: 0}))
	require.NoError(t, r.Insert(&ColumnSetColumnRecord{ID: 3, ColumnSetID: 1, ColumnID: 15, Position: 1}))
	require.NoError(t, r.Insert(&ColumnSetColumnRecord{ID: 4, ColumnSetID: 2, ColumnID: 99, Position: 0}))

	var cols []proto.ColumnID
	r.AscendColumnSet(1, func(rec *ColumnSetColumnRecord) bool {
		cols = append(cols, rec.ColumnID)
		return true
	})
	require.Equal(t, []proto.ColumnID{10, 15, 20}, cols)
}

func TestConstraintDefinitionHashBucket(t *testing.T) {
	r := NewConstraintDefinitionRegistry()
	expr := []byte{0x01, 0x02, 0x03}
	rec := NewConstraintDefinitionRecord(1, proto.ConstraintTypeNotNull, expr)
	require.NoError(t, r.Insert(rec))

	var found []*ConstraintDefinitionRecord
	r.ByHash(rec.Hash, func(c *ConstraintDefinitionRecord) bool {
		found = append(found, c)
		return true
	})
	require.Len(t, found, 1)
	require.True(t, found[0].IsEqualDefinition(rec))

	require.NoError(t, r.Erase(1))
	found = nil
	r.ByHash(rec.Hash, func(c *ConstraintDefinitionRecord) bool {
		found = append(found, c)
		return true
	})
	require.Empty(t, found)
}

func TestComputeConstraintDefinitionHash(t *testing.T) {
	expr := []byte{0xAA, 0xBB}
	h1 := ComputeConstraintDefinitionHash(proto.ConstraintTypeNotNull, expr)
	h2 := ComputeConstraintDefinitionHash(proto.ConstraintTypeNotNull, expr)
	require.Equal(t, h1, h2)

	require.NotEqual(t, h1, ComputeConstraintDefinitionHash(proto.ConstraintTypeDefaultValue, expr))
	require.NotEqual(t, h1, ComputeConstraintDefinitionHash(proto.ConstraintTypeNotNull, []byte{0xAA}))
}

func TestDatabaseRegistryIndexes(t *testing.T) {
	r := NewDatabaseRegistry()
	rec := &DatabaseRecord{ID: 1, Name: "SYS"}
	require.NoError(t, r.Insert(rec))
	require.ErrorIs(t, r.Insert(&DatabaseRecord{ID: 2, Name: "SYS"}), ErrAlreadyExists)

	got, ok := r.ByUUID(rec.UUID)
	require.True(t, ok)
	require.Equal(t, rec, got)
}
