package db

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"
)

func TestSchedulerDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewSchedulerDB(sqldb)

	_, err := db.LastEpoch(ctx, "epochs")
	req.ErrorIs(err, ErrNotFound)

	req.NoError(db.SetLastEpoch(ctx, "epochs", abi.ChainEpoch(42)))

	epoch, err := db.LastEpoch(ctx, "epochs")
	req.NoError(err)
	req.Equal(abi.ChainEpoch(42), epoch)

	req.NoError(db.SetLastEpoch(ctx, "epochs", abi.ChainEpoch(43)))

	epoch, err = db.LastEpoch(ctx, "epochs")
	req.NoError(err)
	req.Equal(abi.ChainEpoch(43), epoch)
}
