package db

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

// LoadFixtures populates a database with generated deals for tests.
func LoadFixtures(ctx context.Context, db *sql.DB) ([]types.Deal, error) {
	err := CreateAllTables(ctx, db)
	if err != nil {
		return nil, err
	}

	dealsDB := NewDealsDB(db)

	deals, err := GenerateDeals()
	if err != nil {
		return nil, err
	}

	for _, deal := range deals {
		deal := deal
		err = dealsDB.Insert(ctx, &deal)
		if err != nil {
			return nil, err
		}
	}

	return deals, err
}

func GenerateDeals() ([]types.Deal, error) {
	return GenerateNDeals(5)
}

func GenerateNDeals(count int) ([]types.Deal, error) {
	payers := testutil.GenerateAddrs(count)

	deals := make([]types.Deal, 0, count)
	for i := 0; i < count; i++ {
		startEpoch := abi.ChainEpoch(rand.Intn(100000))
		deal := types.Deal{
			ID:            uuid.New(),
			CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
			Payer:         payers[i],
			ManifestRoot:  testutil.GenerateCid(),
			SizeBytes:     uint64(rand.Intn(1 << 30)),
			Replicas:      1 + rand.Intn(3),
			Months:        1 + rand.Intn(12),
			PricePerEpoch: abi.NewTokenAmount(rand.Int63n(1_000_000)),
			Escrow:        abi.NewTokenAmount(rand.Int63()),
			Streamed:      abi.NewTokenAmount(0),
			Refunded:      abi.NewTokenAmount(0),
			Nonce:         testutil.RandomBytes(32),
			StartEpoch:    startEpoch,
			TotalEpochs:   abi.ChainEpoch(rand.Intn(50000)),
			State:         types.DealActive,
		}

		deals = append(deals, deal)
	}

	return deals, nil
}
