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

func generateChallenge(chType types.ChallengeType) *types.Challenge {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.Challenge{
		ID:         uuid.New(),
		Type:       chType,
		DealID:     uuid.New(),
		ChunkIndex: 7,
		Provider:   testutil.GenerateAddr(),
		Epoch:      abi.ChainEpoch(123),
		Salt:       testutil.RandomBytes(32),
		IssuedAt:   now,
		Deadline:   now.Add(30 * time.Minute),
		State:      types.ChallengeOpen,
	}
}

func TestChallengesDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewChallengesDB(sqldb)

	ch := generateChallenge(types.ChallengeMerkleSample)
	req.NoError(db.Insert(ctx, ch))

	stored, err := db.ByID(ctx, ch.ID)
	req.NoError(err)
	req.Equal(ch.ID, stored.ID)
	req.Equal(ch.Type, stored.Type)
	req.Equal(ch.DealID, stored.DealID)
	req.Equal(ch.ChunkIndex, stored.ChunkIndex)
	req.Equal(ch.Provider, stored.Provider)
	req.Equal(ch.Salt, stored.Salt)
	req.Equal(types.ChallengeOpen, stored.State)

	open, err := db.ListOpen(ctx)
	req.NoError(err)
	req.Len(open, 1)

	byProv, err := db.OpenByProvider(ctx, ch.Provider)
	req.NoError(err)
	req.Len(byProv, 1)

	byDeal, err := db.ByDealAndEpoch(ctx, ch.DealID, 123)
	req.NoError(err)
	req.Len(byDeal, 1)
}

func TestChallengeAnswerExclusivity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewChallengesDB(sqldb)

	ch := generateChallenge(types.ChallengeMerkleSample)
	req.NoError(db.Insert(ctx, ch))

	// First answer takes the transition
	won, err := db.MarkAnswered(ctx, ch.ID, time.Now())
	req.NoError(err)
	req.True(won)

	// Second answer loses the race
	won, err = db.MarkAnswered(ctx, ch.ID, time.Now())
	req.NoError(err)
	req.False(won)

	// An answered challenge cannot be marked missed
	missed, err := db.MarkMissed(ctx, ch.ID)
	req.NoError(err)
	req.False(missed)

	stored, err := db.ByID(ctx, ch.ID)
	req.NoError(err)
	req.Equal(types.ChallengeAnswered, stored.State)
}

func TestChallengesPastDeadline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	db := NewChallengesDB(sqldb)

	ch := generateChallenge(types.ChallengePoRepSeal)
	req.NoError(db.Insert(ctx, ch))

	expired, err := db.OpenPastDeadline(ctx, ch.Deadline.Add(-time.Minute))
	req.NoError(err)
	req.Len(expired, 0)

	expired, err = db.OpenPastDeadline(ctx, ch.Deadline.Add(time.Minute))
	req.NoError(err)
	req.Len(expired, 1)

	missed, err := db.MarkMissed(ctx, ch.ID)
	req.NoError(err)
	req.True(missed)

	expired, err = db.OpenPastDeadline(ctx, ch.Deadline.Add(time.Minute))
	req.NoError(err)
	req.Len(expired, 0)
}
