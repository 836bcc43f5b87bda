package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("ABC_correct", "3"))
	require.NoError(t, s.Set("ABC_correct", "4"))
	require.NoError(t, s.Set("report_ABC_paused", "true"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok := s.Get("ABC_correct")
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	require.NoError(t, s.Delete("ABC_correct"))
	_, ok = s.Get("ABC_correct")
	assert.False(t, ok)
}

func TestStoresListKeysByPrefix(t *testing.T) {
	sqlite, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sqlite.Close()

	stores := map[string]KeyedStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"ABC_images", "ABC_cases", "report_ABC_cases", "ABD_cases"} {
				require.NoError(t, store.Set(k, "1"))
			}
			keys, err := store.Keys("ABC_")
			require.NoError(t, err)
			assert.Equal(t, []string{"ABC_cases", "ABC_images"}, keys)

			// LIKE wildcards in the prefix are literal
			keys, err = store.Keys("AB%")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}
