package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	req.NoError(CreateAllTables(ctx, sqldb))
	req.NoError(Migrate(sqldb))

	// Migrations are idempotent
	req.NoError(Migrate(sqldb))
}
