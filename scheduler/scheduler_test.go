package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/svdb-project/svdb/beacon"
	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/proofengine"
	"github.com/svdb-project/svdb/prover"
	"github.com/svdb-project/svdb/repair"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

type schedHarness struct {
	sched      *Scheduler
	cfg        *Config
	deals      *db.DealsDB
	seals      *db.SealsDB
	challenges *db.ChallengesDB
	providers  *db.ProvidersDB
	repairs    *db.RepairsDB
	wallet     *db.WalletDB
	store      *chunkstore.Store
	ledger     *ledger.Ledger
	engine     *proofengine.Engine
	clock      *clock.Mock
	genesis    time.Time
}

// lostShards is a canned ShardChecker: every listed shard of every
// manifest reads as gone.
type lostShards struct {
	lost map[int]bool
}

func (f *lostShards) AvailableShards(ctx context.Context, root cid.Cid, manifest *chunkstore.Manifest) ([]bool, error) {
	total := manifest.DataShards + manifest.ParityShards
	out := make([]bool, total)
	for i := 0; i < total; i++ {
		out[i] = !f.lost[i]
	}
	return out, nil
}

func setupScheduler(t *testing.T) *schedHarness {
	ctx := context.Background()
	sqldb := db.CreateTestTmpDB(t)
	require.NoError(t, db.CreateAllTables(ctx, sqldb))

	dealsDB := db.NewDealsDB(sqldb)
	sealsDB := db.NewSealsDB(sqldb)
	challengesDB := db.NewChallengesDB(sqldb)
	providersDB := db.NewProvidersDB(sqldb)
	repairsDB := db.NewRepairsDB(sqldb)
	walletDB := db.NewWalletDB(sqldb)
	govDB := db.NewGovParamsDB(sqldb)
	schedDB := db.NewSchedulerDB(sqldb)

	clk := clock.NewMock()
	genesis := clk.Now()
	events := svdbevents.NewBus()
	store := chunkstore.NewStore(dssync.MutexWrap(datastore.NewMapDatastore()))
	ldg := ledger.New(dealsDB, walletDB, govDB, events, clk)
	eng := proofengine.New(proofengine.Config{
		Deals:      dealsDB,
		Seals:      sealsDB,
		Challenges: challengesDB,
		Providers:  providersDB,
		Wallet:     walletDB,
		Store:      store,
		Ledger:     ldg,
		Events:     events,
		Clock:      clk,
	})
	auction := repair.NewAuction(repairsDB, dealsDB, walletDB, store, ldg, events, clk)

	cfg := Config{
		Deals:       dealsDB,
		Seals:       sealsDB,
		Sched:       schedDB,
		Store:       store,
		Ledger:      ldg,
		Engine:      eng,
		Auction:     auction,
		Beacon:      beacon.NewMockBeacon(),
		Clock:       clk,
		Challenge:   challengesDB,
		GenesisTime: genesis,
	}
	h := &schedHarness{
		cfg:        &cfg,
		deals:      dealsDB,
		seals:      sealsDB,
		challenges: challengesDB,
		providers:  providersDB,
		repairs:    repairsDB,
		wallet:     walletDB,
		store:      store,
		ledger:     ldg,
		engine:     eng,
		clock:      clk,
		genesis:    genesis,
	}
	h.rebuild()
	return h
}

func (h *schedHarness) rebuild() {
	h.sched = New(*h.cfg)
}

func (h *schedHarness) addDeal(t *testing.T, data []byte, startEpoch abi.ChainEpoch, months int) *types.Deal {
	ctx := context.Background()
	root, _, err := h.store.AddData(ctx, data, chunkstore.AddDataParams{ChunkSize: 16})
	require.NoError(t, err)

	payer := testutil.GenerateAddr()
	require.NoError(t, h.wallet.Credit(ctx, payer, abi.NewTokenAmount(1_000_000_000)))
	deal, err := h.ledger.CreateDeal(ctx, ledger.CreateDealParams{
		Payer:         payer,
		ManifestRoot:  root,
		SizeBytes:     uint64(len(data)),
		Replicas:      1,
		Months:        months,
		PricePerEpoch: abi.NewTokenAmount(10),
		StartEpoch:    startEpoch,
	})
	require.NoError(t, err)
	return deal
}

func (h *schedHarness) addProviderWithSeal(t *testing.T, root cid.Cid) *types.Seal {
	ctx := context.Background()
	addr := testutil.GenerateAddr()
	require.NoError(t, h.wallet.Credit(ctx, addr, build.MinProviderStake))
	_, err := h.engine.RegisterProvider(ctx, addr, build.MinProviderStake, proofengine.ProviderCaps{Region: "eu-west"})
	require.NoError(t, err)
	seal, err := h.engine.RegisterSeal(ctx, root, addr, []byte("seal-rand"))
	require.NoError(t, err)
	return seal
}

// advanceEpochs moves the mock clock forward by n epochs.
func (h *schedHarness) advanceEpochs(n int) {
	h.clock.Add(time.Duration(n) * build.EpochDuration)
}

func TestCurrentEpoch(t *testing.T) {
	req := require.New(t)
	h := setupScheduler(t)

	req.EqualValues(0, h.sched.CurrentEpoch())
	h.advanceEpochs(3)
	req.EqualValues(3, h.sched.CurrentEpoch())
}

func TestCatchUpPersistsProgress(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	h.advanceEpochs(5)
	req.NoError(h.sched.CatchUp(ctx))

	last, err := h.cfg.Sched.LastEpoch(ctx, stateName)
	req.NoError(err)
	req.EqualValues(5, last)

	// nothing new to do, progress stays
	req.NoError(h.sched.CatchUp(ctx))
	last, err = h.cfg.Sched.LastEpoch(ctx, stateName)
	req.NoError(err)
	req.EqualValues(5, last)
}

func TestEpochIssuesChallenges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	deal := h.addDeal(t, testutil.RandomBytes(64), 1, 1)
	h.addProviderWithSeal(t, deal.ManifestRoot)

	h.advanceEpochs(1)
	req.NoError(h.sched.CatchUp(ctx))

	open, err := h.challenges.ListOpen(ctx)
	req.NoError(err)
	req.Len(open, build.ChallengesPerDeal)
	for _, ch := range open {
		req.Equal(types.ChallengeMerkleSample, ch.Type)
		req.Equal(deal.ID, ch.DealID)
	}
}

func TestSealChallengeInterval(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	seal := h.addProviderWithSeal(t, testutil.GenerateCid())

	// epochs 1..9: no possession challenge
	for epoch := abi.ChainEpoch(1); epoch < build.SealChallengeIntervalEpochs; epoch++ {
		req.NoError(h.sched.ProcessEpoch(ctx, epoch))
	}
	open, err := h.challenges.OpenByProvider(ctx, seal.Provider)
	req.NoError(err)
	req.Empty(open)

	req.NoError(h.sched.ProcessEpoch(ctx, build.SealChallengeIntervalEpochs))
	open, err = h.challenges.OpenByProvider(ctx, seal.Provider)
	req.NoError(err)
	req.Len(open, 1)
	req.Equal(types.ChallengePoRepSeal, open[0].Type)
}

// Full cycle: the provider-side scheduler answers its own challenges and
// earns the streamed reward for every proved epoch.
func TestProvingCycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	deal := h.addDeal(t, testutil.RandomBytes(64), 1, 1)
	seal := h.addProviderWithSeal(t, deal.ManifestRoot)

	h.cfg.ProviderAddr = seal.Provider
	h.cfg.Prover = &prover.MockProver{}
	h.rebuild()

	const epochs = 3
	for i := 0; i < epochs; i++ {
		h.advanceEpochs(1)
		req.NoError(h.sched.CatchUp(ctx))
	}

	// every issued challenge was answered within its own epoch
	open, err := h.challenges.ListOpen(ctx)
	req.NoError(err)
	req.Empty(open)

	// the engine streams one reward per accepted deal challenge
	bal, err := h.wallet.Balance(ctx, seal.Provider)
	req.NoError(err)
	req.Equal(big.Mul(deal.PricePerEpoch, big.NewInt(epochs*build.ChallengesPerDeal)), bal)

	prov, err := h.providers.ByAddr(ctx, seal.Provider)
	req.NoError(err)
	req.EqualValues(epochs*build.ChallengesPerDeal, prov.ProofsAccepted)
	req.EqualValues(0, prov.ProofsMissed)
}

// A silent provider misses its challenges and gets slashed at sweep time.
func TestSilentProviderSlashed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	deal := h.addDeal(t, testutil.RandomBytes(64), 1, 1)
	seal := h.addProviderWithSeal(t, deal.ManifestRoot)

	h.advanceEpochs(1)
	req.NoError(h.sched.CatchUp(ctx))

	// the challenge window spans several epochs; once it lapses the next
	// epoch's sweep marks the miss
	h.clock.Add(build.ChallengeWindow + time.Second)
	req.NoError(h.sched.CatchUp(ctx))

	prov, err := h.providers.ByAddr(ctx, seal.Provider)
	req.NoError(err)
	req.True(prov.ProofsMissed > 0)
	req.True(prov.Stake.LessThan(build.MinProviderStake))

	slashBal, err := h.wallet.Balance(ctx, ledger.SlashPoolAddr)
	req.NoError(err)
	req.True(slashBal.GreaterThan(abi.NewTokenAmount(0)))
}

func TestDealExpiryStopsChallenges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	deal := h.addDeal(t, testutil.RandomBytes(64), 1, 1)
	h.addProviderWithSeal(t, deal.ManifestRoot)

	// jump straight past the deal's end
	req.NoError(h.sched.ProcessEpoch(ctx, deal.EndEpoch()))

	got, err := h.deals.ByID(ctx, deal.ID)
	req.NoError(err)
	req.Equal(types.DealExpired, got.State)

	open, err := h.challenges.ListOpen(ctx)
	req.NoError(err)
	req.Empty(open)
}

func TestRepairScanOpensTasks(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	// default erasure coding is 8+2: losing 3 shards drops below k
	deal := h.addDeal(t, testutil.RandomBytes(640), 1, 1)
	h.addProviderWithSeal(t, deal.ManifestRoot)

	h.cfg.Shards = &lostShards{lost: map[int]bool{1: true, 4: true, 7: true}}
	h.rebuild()

	h.advanceEpochs(1)
	req.NoError(h.sched.CatchUp(ctx))

	open, err := h.repairs.ListOpen(ctx)
	req.NoError(err)
	req.Len(open, 3)

	// a second pass does not duplicate open tasks
	h.advanceEpochs(1)
	req.NoError(h.sched.CatchUp(ctx))
	open, err = h.repairs.ListOpen(ctx)
	req.NoError(err)
	req.Len(open, 3)
}

func TestRepairScanIgnoresHealthyManifests(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupScheduler(t)

	deal := h.addDeal(t, testutil.RandomBytes(640), 1, 1)
	h.addProviderWithSeal(t, deal.ManifestRoot)

	// two lost shards of 8+2 still leave k available
	h.cfg.Shards = &lostShards{lost: map[int]bool{1: true, 4: true}}
	h.rebuild()

	h.advanceEpochs(1)
	req.NoError(h.sched.CatchUp(ctx))

	open, err := h.repairs.ListOpen(ctx)
	req.NoError(err)
	req.Empty(open)
}
