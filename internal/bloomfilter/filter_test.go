package bloomfilter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	f := NewForCapacity(1000, 0.01)
	keys := []string{"abc123", "xyz789", "short-code", "another-one"}
	for _, k := range keys {
		f.Insert([]byte(k))
	}
	for _, k := range keys {
		require.True(t, f.MayContain([]byte(k)), "inserted key must test positive")
	}
}

func TestFilterAbsentKeyUsuallyNegative(t *testing.T) {
	f := NewForCapacity(1000, 0.01)
	f.Insert([]byte("present"))
	require.False(t, f.MayContain([]byte("definitely-not-inserted-xyz")))
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := NewForCapacity(500, 0.01)
	f.Insert([]byte("one"))
	f.Insert([]byte("two"))

	snap := f.Snapshot()
	loaded, err := Load(snap)
	require.NoError(t, err)

	require.True(t, loaded.MayContain([]byte("one")))
	require.True(t, loaded.MayContain([]byte("two")))
	require.Equal(t, f.k, loaded.k)
	require.Equal(t, f.m, loaded.m)
}

func TestLoadRejectsShortPayload(t *testing.T) {
	_, err := Load([]byte{0, 1})
	require.Error(t, err)
}

func TestNewForCapacityDefaultsInvalidInputs(t *testing.T) {
	f := NewForCapacity(0, 0)
	require.NotNil(t, f)
	require.Greater(t, f.m, uint64(0))
	require.Greater(t, f.k, uint32(0))
}
