package db

import (
	"database/sql"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestTmpDB creates an on-disk database in a test temp dir.
func CreateTestTmpDB(t *testing.T) *sql.DB {
	f := path.Join(t.TempDir(), "svdb.db")
	d, err := SqlDB(f)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}
