package repair

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/lib/erasure"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

type auctionHarness struct {
	auction *Auction
	store   *chunkstore.Store
	wallet  *db.WalletDB
	deals   *db.DealsDB
	repairs *db.RepairsDB
	ledger  *ledger.Ledger
	clock   *clock.Mock
}

func setupAuction(t *testing.T) *auctionHarness {
	ctx := context.Background()
	sqldb := db.CreateTestTmpDB(t)
	require.NoError(t, db.CreateAllTables(ctx, sqldb))

	dealsDB := db.NewDealsDB(sqldb)
	repairsDB := db.NewRepairsDB(sqldb)
	walletDB := db.NewWalletDB(sqldb)
	govDB := db.NewGovParamsDB(sqldb)

	clk := clock.NewMock()
	events := svdbevents.NewBus()
	store := chunkstore.NewStore(dssync.MutexWrap(datastore.NewMapDatastore()))
	ldg := ledger.New(dealsDB, walletDB, govDB, events, clk)

	return &auctionHarness{
		auction: NewAuction(repairsDB, dealsDB, walletDB, store, ldg, events, clk),
		store:   store,
		wallet:  walletDB,
		deals:   dealsDB,
		repairs: repairsDB,
		ledger:  ldg,
		clock:   clk,
	}
}

// addDealOverData ingests data and opens a funded deal covering it.
func (h *auctionHarness) addDealOverData(t *testing.T, data []byte) (*types.Deal, *chunkstore.Manifest) {
	ctx := context.Background()
	root, manifest, err := h.store.AddData(ctx, data, chunkstore.AddDataParams{})
	require.NoError(t, err)

	payer := testutil.GenerateAddr()
	require.NoError(t, h.wallet.Credit(ctx, payer, abi.NewTokenAmount(1_000_000_000)))

	deal, err := h.ledger.CreateDeal(ctx, ledger.CreateDealParams{
		Payer:         payer,
		ManifestRoot:  root,
		SizeBytes:     uint64(len(data)),
		Replicas:      1,
		Months:        1,
		PricePerEpoch: abi.NewTokenAmount(10),
		StartEpoch:    100,
	})
	require.NoError(t, err)
	return deal, manifest
}

func shardsFor(t *testing.T, manifest *chunkstore.Manifest, data []byte) [][]byte {
	coder, err := erasure.NewCoder(manifest.DataShards, manifest.ParityShards)
	require.NoError(t, err)
	shards, err := coder.Split(data)
	require.NoError(t, err)
	return shards
}

func TestOpenTask(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupAuction(t)

	data := testutil.RandomBytes(640)
	deal, manifest := h.addDealOverData(t, data)

	task, err := h.auction.OpenTask(ctx, deal.ManifestRoot, 2)
	req.NoError(err)
	wantBounty := big.Mul(deal.PricePerEpoch, big.NewInt(build.RepairBountyEpochs))
	req.Equal(wantBounty, task.Bounty)
	req.Equal(deal.Payer, task.Payer)
	req.Equal(types.RepairOpen, task.State)

	// the bounty left the deal escrow for the bounty pool
	poolBal, err := h.wallet.Balance(ctx, ledger.BountyPoolAddr)
	req.NoError(err)
	req.Equal(wantBounty, poolBal)
	got, err := h.deals.ByID(ctx, deal.ID)
	req.NoError(err)
	req.Equal(wantBounty, got.Streamed)

	// one open task per shard
	_, err = h.auction.OpenTask(ctx, deal.ManifestRoot, 2)
	req.ErrorIs(err, ErrTaskOpen)

	// a different shard gets its own task
	_, err = h.auction.OpenTask(ctx, deal.ManifestRoot, 3)
	req.NoError(err)

	_, err = h.auction.OpenTask(ctx, deal.ManifestRoot, manifest.DataShards+manifest.ParityShards)
	req.Error(err)

	// no active deal, no bounty
	orphanRoot, _, err := h.store.AddData(ctx, testutil.RandomBytes(64), chunkstore.AddDataParams{})
	req.NoError(err)
	_, err = h.auction.OpenTask(ctx, orphanRoot, 0)
	req.ErrorIs(err, ErrNoFundingDeal)
}

func TestSubmitRepair(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupAuction(t)

	data := testutil.RandomBytes(640)
	deal, manifest := h.addDealOverData(t, data)
	shards := shardsFor(t, manifest, data)

	task, err := h.auction.OpenTask(ctx, deal.ManifestRoot, 2)
	req.NoError(err)

	repairer := testutil.GenerateAddr()

	// wrong shard bytes fail the commitment check
	_, err = h.auction.SubmitRepair(ctx, task.ID, repairer, shards[3])
	req.ErrorIs(err, ErrShardMismatch)

	paid, err := h.auction.SubmitRepair(ctx, task.ID, repairer, shards[2])
	req.NoError(err)
	req.Equal(task.Bounty, paid)

	bal, err := h.wallet.Balance(ctx, repairer)
	req.NoError(err)
	req.Equal(task.Bounty, bal)

	got, err := h.repairs.ByID(ctx, task.ID)
	req.NoError(err)
	req.Equal(types.RepairCompleted, got.State)
	req.Equal(repairer, got.Winner)

	// second valid submission loses
	_, err = h.auction.SubmitRepair(ctx, task.ID, testutil.GenerateAddr(), shards[2])
	req.ErrorIs(err, ErrTaskClaimed)
}

func TestSweepExpiredRefundsPayer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupAuction(t)

	data := testutil.RandomBytes(640)
	deal, manifest := h.addDealOverData(t, data)
	shards := shardsFor(t, manifest, data)

	task, err := h.auction.OpenTask(ctx, deal.ManifestRoot, 1)
	req.NoError(err)

	payerBefore, err := h.wallet.Balance(ctx, deal.Payer)
	req.NoError(err)

	h.clock.Add(build.RepairTimeout + time.Second)

	refunded, err := h.auction.SweepExpired(ctx)
	req.NoError(err)
	req.Equal(1, refunded)

	payerAfter, err := h.wallet.Balance(ctx, deal.Payer)
	req.NoError(err)
	req.Equal(big.Add(payerBefore, task.Bounty), payerAfter)

	// nothing left for a late submission
	_, err = h.auction.SubmitRepair(ctx, task.ID, testutil.GenerateAddr(), shards[1])
	req.ErrorIs(err, ErrTaskExpired)

	// the sweep is idempotent
	refunded, err = h.auction.SweepExpired(ctx)
	req.NoError(err)
	req.Equal(0, refunded)
}

func TestReconstructShard(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupAuction(t)

	data := testutil.RandomBytes(640)
	_, manifest, err := h.store.AddData(ctx, data, chunkstore.AddDataParams{})
	req.NoError(err)

	shards := shardsFor(t, manifest, data)
	lost := append([]byte(nil), shards[4]...)
	shards[4] = nil

	rebuilt, err := ReconstructShard(manifest, shards, 4)
	req.NoError(err)
	req.Equal(lost, rebuilt)
	req.Equal(manifest.ShardHashes[4], blake3.Sum256(rebuilt))

	// with too many holes reconstruction is impossible
	shards2 := shardsFor(t, manifest, data)
	for i := 0; i <= manifest.ParityShards; i++ {
		shards2[i] = nil
	}
	_, err = ReconstructShard(manifest, shards2, 0)
	req.ErrorIs(err, erasure.ErrTooFewShards)
}
