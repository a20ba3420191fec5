package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathTableAccumulatesInOrder(t *testing.T) {
	table := NewPathTable()
	require.NoError(t, table.Add("data/", "r"))
	require.NoError(t, table.Add("out/", "rwc"))

	assert.False(t, table.Sealed())
	assert.Equal(t, []PathEntry{
		{Path: "data/", Perms: "r"},
		{Path: "out/", Perms: "rwc"},
	}, table.Entries())
}

func TestPathTableRejectsAddAfterSeal(t *testing.T) {
	table := NewPathTable()
	require.NoError(t, table.Add("data/", "r"))
	table.Seal()

	assert.True(t, table.Sealed())
	err := table.Add("late/", "r")
	assert.Error(t, err)

	// The sealed entry set is unchanged by the rejected Add.
	assert.Equal(t, []PathEntry{{Path: "data/", Perms: "r"}}, table.Entries())
}

func TestPathTableSealIsIdempotent(t *testing.T) {
	table := NewPathTable()
	table.Seal()
	table.Seal()
	assert.True(t, table.Sealed())
}

func TestPathTableEntriesReturnsCopy(t *testing.T) {
	table := NewPathTable()
	require.NoError(t, table.Add("data/", "r"))

	entries := table.Entries()
	entries[0].Path = "mutated/"

	assert.Equal(t, "data/", table.Entries()[0].Path)
}
