package db

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

func TestProvidersDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewProvidersDB(sqldb)

	prov := &types.Provider{
		Addr:       testutil.GenerateAddr(),
		Stake:      abi.NewTokenAmount(5_000_000),
		Region:     "eu-west",
		GPU:        true,
		Bandwidth:  1000,
		Reputation: 500,
		Active:     true,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	req.NoError(db.Insert(ctx, prov))

	stored, err := db.ByAddr(ctx, prov.Addr)
	req.NoError(err)

	prov.CreatedAt = time.Time{}
	stored.CreatedAt = time.Time{}
	req.Equal(prov, stored)

	prov.Stake = abi.NewTokenAmount(6_000_000)
	prov.Reputation = 510
	prov.ProofsAccepted = 1
	req.NoError(db.Update(ctx, prov))

	stored, err = db.ByAddr(ctx, prov.Addr)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(6_000_000), stored.Stake)
	req.Equal(int64(510), stored.Reputation)
	req.Equal(int64(1), stored.ProofsAccepted)

	active, err := db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, 1)

	prov.Active = false
	req.NoError(db.Update(ctx, prov))

	active, err = db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, 0)

	_, err = db.ByAddr(ctx, testutil.GenerateAddr())
	req.ErrorIs(err, ErrNotFound)
}
