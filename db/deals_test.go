package db

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/types"
)

func TestDealsDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))
	require.NoError(t, Migrate(sqldb))

	db := NewDealsDB(sqldb)
	deals, err := GenerateDeals()
	req.NoError(err)

	for _, deal := range deals {
		deal := deal
		err = db.Insert(ctx, &deal)
		req.NoError(err)
	}

	deal := deals[0]
	storedDeal, err := db.ByID(ctx, deal.ID)
	req.NoError(err)

	deal.CreatedAt = time.Time{}
	storedDeal.CreatedAt = time.Time{}
	req.Equal(deal, *storedDeal)

	dealList, err := db.List(ctx, 0, 0)
	req.NoError(err)
	req.Len(dealList, len(deals))

	limitedDealList, err := db.List(ctx, 1, 1)
	req.NoError(err)
	req.Len(limitedDealList, 1)
	req.Equal(dealList[1].ID, limitedDealList[0].ID)

	count, err := db.Count(ctx)
	req.NoError(err)
	req.Equal(len(deals), count)

	byPayer, err := db.ByPayer(ctx, deal.Payer)
	req.NoError(err)
	req.Len(byPayer, 1)
	req.Equal(deal.ID, byPayer[0].ID)

	byRoot, err := db.ByManifestRoot(ctx, deal.ManifestRoot)
	req.NoError(err)
	req.Len(byRoot, 1)

	deal.State = types.DealCancelled
	deal.Streamed = abi.NewTokenAmount(42)
	deal.Refunded = big.Sub(deal.Escrow, deal.Streamed)
	err = db.Update(ctx, &deal)
	req.NoError(err)

	storedDeal, err = db.ByID(ctx, deal.ID)
	req.NoError(err)
	req.Equal(types.DealCancelled, storedDeal.State)
	req.Equal(deal.Streamed, storedDeal.Streamed)
	req.Equal(deal.Refunded, storedDeal.Refunded)

	active, err := db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, len(deals)-1)
}

func TestDealsDBNotFound(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewDealsDB(sqldb)
	deals, err := GenerateDeals()
	req.NoError(err)

	_, err = db.ByID(ctx, deals[0].ID)
	req.ErrorIs(err, ErrNotFound)
}
