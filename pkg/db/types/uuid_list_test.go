package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDListValueScan(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	value, err := UUIDList{a, b}.Value()
	require.NoError(t, err)

	var out UUIDList
	require.NoError(t, out.Scan([]byte(value.(string))))
	require.Equal(t, UUIDList{a, b}, out)
	require.True(t, out.Contains(b))
}

func TestUUIDListScanEmpty(t *testing.T) {
	var out UUIDList
	require.NoError(t, out.Scan(nil))
	require.Empty(t, out)

	value, err := UUIDList(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", value)
}

func TestUUIDListScanRejectsGarbage(t *testing.T) {
	var out UUIDList
	require.Error(t, out.Scan("not json"))
	require.Error(t, out.Scan(42))
}
