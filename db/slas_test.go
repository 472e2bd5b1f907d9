package db

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

func TestSlasDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewSlasDB(sqldb)

	sla := &types.SLA{
		ID:           uuid.New(),
		Client:       testutil.GenerateAddr(),
		Provider:     testutil.GenerateAddr(),
		ManifestRoot: testutil.GenerateCid(),
		Tier:         types.TierPlatinum,
		Collateral:   abi.NewTokenAmount(8000),
		State:        types.SlaActive,
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	req.NoError(db.Insert(ctx, sla))

	stored, err := db.ByID(ctx, sla.ID)
	req.NoError(err)
	req.Equal(sla.Client, stored.Client)
	req.Equal(sla.Provider, stored.Provider)
	req.Equal(types.TierPlatinum, stored.Tier)
	req.Equal(sla.Collateral, stored.Collateral)
	req.Empty(stored.LatencySamples)

	sla.Violations = 2
	sla.LatencySamples = []uint64{30, 45, 220}
	req.NoError(db.Update(ctx, sla))

	stored, err = db.ByID(ctx, sla.ID)
	req.NoError(err)
	req.Equal(2, stored.Violations)
	req.Equal([]uint64{30, 45, 220}, stored.LatencySamples)

	active, err := db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, 1)

	byProv, err := db.ByProvider(ctx, sla.Provider)
	req.NoError(err)
	req.Len(byProv, 1)

	sla.State = types.SlaSlashed
	req.NoError(db.Update(ctx, sla))

	active, err = db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, 0)
}
