package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseError(t *testing.T) {
	err := New(CodeTableDoesNotExist, "table '%s' does not exist", "T1")
	require.Equal(t, "[2002] table 'T1' does not exist", err.Error())
	require.True(t, HasCode(err, CodeTableDoesNotExist))
	require.False(t, HasCode(err, CodeTableAlreadyExists))
	require.Equal(t, CodeTableDoesNotExist, CodeOf(err))
}

func TestCompoundError(t *testing.T) {
	compound := &CompoundError{}
	require.True(t, compound.Empty())

	compound.Add(New(CodeInvalidColumnName, "invalid column name 'a b'"))
	compound.Add(New(CodeCreateTableDuplicateColumnName, "duplicate column name 'C1'"))
	require.False(t, compound.Empty())
	require.Len(t, compound.Errors, 2)

	require.True(t, HasCode(compound, CodeInvalidColumnName))
	require.True(t, HasCode(compound, CodeCreateTableDuplicateColumnName))
	require.False(t, HasCode(compound, CodeTableDoesNotExist))
	require.Contains(t, compound.Error(), "2 errors:")
}
