package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

func TestSealsDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewSealsDB(sqldb)

	root := testutil.GenerateCid()
	provider := testutil.GenerateAddr()
	randomness := testutil.RandomBytes(32)
	seal := &types.Seal{
		Commitment:   types.SealCommitment(root, randomness, provider),
		ManifestRoot: root,
		Provider:     provider,
		Randomness:   randomness,
		RegisteredAt: time.Now().UTC().Truncate(time.Millisecond),
		State:        types.SealActive,
	}
	req.NoError(db.Insert(ctx, seal))

	stored, err := db.ByCommitment(ctx, seal.Commitment)
	req.NoError(err)
	req.Equal(seal.Commitment, stored.Commitment)
	req.Equal(seal.ManifestRoot, stored.ManifestRoot)
	req.Equal(seal.Provider, stored.Provider)
	req.Equal(seal.Randomness, stored.Randomness)
	req.Equal(types.SealActive, stored.State)

	byProv, err := db.ByProvider(ctx, provider)
	req.NoError(err)
	req.Len(byProv, 1)

	byRoot, err := db.ByManifestRoot(ctx, root)
	req.NoError(err)
	req.Len(byRoot, 1)

	req.NoError(db.SetMisses(ctx, seal.Commitment, 3, types.SealTerminated))

	stored, err = db.ByCommitment(ctx, seal.Commitment)
	req.NoError(err)
	req.Equal(3, stored.ConsecutiveMisses)
	req.Equal(types.SealTerminated, stored.State)

	active, err := db.ListActive(ctx)
	req.NoError(err)
	req.Len(active, 0)

	var unknown [32]byte
	unknown[0] = 0xff
	_, err = db.ByCommitment(ctx, unknown)
	req.ErrorIs(err, ErrNotFound)
}
