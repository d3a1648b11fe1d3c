package kvlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), DuckFileName)

	backend, err := NewDuckBackend(dbPath)
	require.NoError(t, err)

	l := Open(backend)
	l.Write("notification", "erroredList", []*string{nil, strPtr("401 Unauthorized")})
	l.Write("notification", "erroredList", []*string{nil, strPtr("403 Forbidden")})
	require.NoError(t, l.Close())

	reopened, err := NewDuckBackend(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	l = Open(reopened)
	got := Read[[]*string](l, "notification", "erroredList", nil)
	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	assert.Equal(t, "403 Forbidden", *got[1])

	keys, err := reopened.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{StoreVersionKey, "notification.erroredList"}, keys)
}

func strPtr(s string) *string {
	return &s
}
