package beacon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockBeaconDeterministic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	mb := NewMockBeacon()

	e1, err := mb.Entry(ctx, 42)
	req.NoError(err)
	e2, err := mb.Entry(ctx, 42)
	req.NoError(err)
	req.Equal(e1, e2)
	req.Len(e1.Data, 32)

	e3, err := mb.Entry(ctx, 43)
	req.NoError(err)
	req.NotEqual(e1.Data, e3.Data)

	req.Equal(uint64(1), mb.MaxBeaconRoundForEpoch(0))
	req.Equal(uint64(10), mb.MaxBeaconRoundForEpoch(10))
}

func TestDrandRoundForEpoch(t *testing.T) {
	req := require.New(t)

	db := &DrandBeacon{
		interval:     30 * time.Second,
		drandGenTime: 1000,
		genTime:      4000,
		epochTime:    300,
	}

	// epoch 0 starts at ts 4000, 3000s after drand genesis: round 101
	req.Equal(uint64(101), db.MaxBeaconRoundForEpoch(0))
	// one epoch is ten drand rounds
	req.Equal(uint64(111), db.MaxBeaconRoundForEpoch(1))
	req.Equal(uint64(201), db.MaxBeaconRoundForEpoch(10))
}
