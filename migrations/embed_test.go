package migrations

import (
	"io/fs"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	versions, err := fs.Glob(Files, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	assert.Contains(t, versions, "001_init.sql")
	assert.True(t, sort.StringsAreSorted(versions), "migration files must apply in filename order")

	for _, v := range versions {
		data, err := fs.ReadFile(Files, v)
		require.NoError(t, err)
		assert.NotEmpty(t, data, v)
	}
}
