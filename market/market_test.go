package market

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

type marketHarness struct {
	market    *Market
	offers    *db.OffersDB
	slas      *db.SlasDB
	providers *db.ProvidersDB
	wallet    *db.WalletDB
	clock     *clock.Mock
}

func setupMarket(t *testing.T) *marketHarness {
	ctx := context.Background()
	sqldb := db.CreateTestTmpDB(t)
	require.NoError(t, db.CreateAllTables(ctx, sqldb))

	offersDB := db.NewOffersDB(sqldb)
	slasDB := db.NewSlasDB(sqldb)
	providersDB := db.NewProvidersDB(sqldb)
	walletDB := db.NewWalletDB(sqldb)
	clk := clock.NewMock()

	return &marketHarness{
		market:    New(offersDB, slasDB, providersDB, walletDB, svdbevents.NewBus(), clk),
		offers:    offersDB,
		slas:      slasDB,
		providers: providersDB,
		wallet:    walletDB,
		clock:     clk,
	}
}

func (h *marketHarness) addActiveProvider(t *testing.T, reputation int64) address.Address {
	ctx := context.Background()
	addr := testutil.GenerateAddr()
	require.NoError(t, h.providers.Insert(ctx, &types.Provider{
		Addr:       addr,
		Stake:      build.MinProviderStake,
		Region:     "eu-west",
		Reputation: reputation,
		Active:     true,
		CreatedAt:  h.clock.Now(),
	}))
	return addr
}

func offerFor(provider address.Address, price int64) *types.Offer {
	return &types.Offer{
		Provider:          provider,
		Region:            "eu-west",
		PricePerGBMonth:   abi.NewTokenAmount(price),
		Tier:              types.TierSilver,
		CapacityBytes:     1 << 40,
		ExpectedLatencyMs: 200,
	}
}

func TestPublishOffer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	err := h.market.PublishOffer(ctx, offerFor(testutil.GenerateAddr(), 100))
	req.ErrorIs(err, ErrNotRegistered)

	prov := h.addActiveProvider(t, 500)

	bad := offerFor(prov, 100)
	bad.PricePerGBMonth = abi.NewTokenAmount(0)
	req.Error(h.market.PublishOffer(ctx, bad))

	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 100)))

	// republishing replaces the offer
	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 80)))
	got, err := h.offers.ByProvider(ctx, prov)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(80), got.PricePerGBMonth)

	req.NoError(h.market.RetractOffer(ctx, prov))
	_, err = h.offers.ByProvider(ctx, prov)
	req.ErrorIs(err, db.ErrNotFound)
}

func TestListOffersRanking(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	cheapUnreliable := h.addActiveProvider(t, 100)
	req.NoError(h.market.PublishOffer(ctx, offerFor(cheapUnreliable, 50)))

	reliable := h.addActiveProvider(t, 900)
	req.NoError(h.market.PublishOffer(ctx, offerFor(reliable, 120)))

	reliableCheaper := h.addActiveProvider(t, 900)
	req.NoError(h.market.PublishOffer(ctx, offerFor(reliableCheaper, 90)))

	gpu := h.addActiveProvider(t, 500)
	gpuOffer := offerFor(gpu, 200)
	gpuOffer.GPU = true
	gpuOffer.Region = "us-east"
	req.NoError(h.market.PublishOffer(ctx, gpuOffer))

	ranked, err := h.market.ListOffers(ctx, OfferQuery{Region: "eu-west"})
	req.NoError(err)
	req.Len(ranked, 3)
	// reputation first, then price
	req.Equal(reliableCheaper, ranked[0].Offer.Provider)
	req.Equal(reliable, ranked[1].Offer.Provider)
	req.Equal(cheapUnreliable, ranked[2].Offer.Provider)

	ranked, err = h.market.ListOffers(ctx, OfferQuery{GPU: true})
	req.NoError(err)
	req.Len(ranked, 1)
	req.Equal(gpu, ranked[0].Offer.Provider)

	ranked, err = h.market.ListOffers(ctx, OfferQuery{MaxPrice: abi.NewTokenAmount(100)})
	req.NoError(err)
	req.Len(ranked, 2)

	// inactive providers drop out of the book
	prov, err := h.providers.ByAddr(ctx, reliableCheaper)
	req.NoError(err)
	prov.Active = false
	req.NoError(h.providers.Update(ctx, prov))
	ranked, err = h.market.ListOffers(ctx, OfferQuery{Region: "eu-west"})
	req.NoError(err)
	req.Len(ranked, 2)
	req.Equal(reliable, ranked[0].Offer.Provider)
}

func TestStartSlaPostsCollateral(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	prov := h.addActiveProvider(t, 500)
	client := testutil.GenerateAddr()
	root := testutil.GenerateCid()

	// no offer, no SLA
	_, err := h.market.StartSLA(ctx, client, prov, root, types.TierGold)
	req.ErrorIs(err, ErrNoOffer)

	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 100)))

	// no funds for the collateral
	_, err = h.market.StartSLA(ctx, client, prov, root, types.TierGold)
	req.ErrorIs(err, db.ErrInsufficientFunds)

	collateral := CollateralForTier(types.TierGold)
	req.Equal(big.Mul(build.BaseSlaCollateral, big.NewInt(4)), collateral)
	req.NoError(h.wallet.Credit(ctx, prov, collateral))

	sla, err := h.market.StartSLA(ctx, client, prov, root, types.TierGold)
	req.NoError(err)
	req.Equal(types.SlaActive, sla.State)
	req.Equal(collateral, sla.Collateral)

	poolBal, err := h.wallet.Balance(ctx, ledger.SlaPoolAddr)
	req.NoError(err)
	req.Equal(collateral, poolBal)
}

func TestLatencyViolationsSlash(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	prov := h.addActiveProvider(t, 500)
	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 100)))
	collateral := CollateralForTier(types.TierSilver)
	req.NoError(h.wallet.Credit(ctx, prov, collateral))

	sla, err := h.market.StartSLA(ctx, testutil.GenerateAddr(), prov, testutil.GenerateCid(), types.TierSilver)
	req.NoError(err)

	// within 2x the Silver threshold: a sample, not a violation
	got, err := h.market.ReportLatency(ctx, sla.ID, 900)
	req.NoError(err)
	req.Equal(0, got.Violations)
	req.Len(got.LatencySamples, 1)

	for i := 0; i < build.SlaViolationLimit-1; i++ {
		got, err = h.market.ReportLatency(ctx, sla.ID, 5000)
		req.NoError(err)
		req.Equal(types.SlaActive, got.State)
	}
	req.Equal(build.SlaViolationLimit-1, got.Violations)

	// the final violation burns half and closes the SLA
	got, err = h.market.ReportLatency(ctx, sla.ID, 5000)
	req.NoError(err)
	req.Equal(types.SlaSlashed, got.State)

	burned := big.Div(collateral, big.NewInt(2))
	slashBal, err := h.wallet.Balance(ctx, ledger.SlashPoolAddr)
	req.NoError(err)
	req.Equal(burned, slashBal)
	provBal, err := h.wallet.Balance(ctx, prov)
	req.NoError(err)
	req.Equal(big.Sub(collateral, burned), provBal)

	// reputation took a hit per violation
	p, err := h.providers.ByAddr(ctx, prov)
	req.NoError(err)
	req.EqualValues(500-25*build.SlaViolationLimit, p.Reputation)

	_, err = h.market.ReportLatency(ctx, sla.ID, 100)
	req.ErrorIs(err, ErrSlaNotActive)
}

func TestEndSlaReturnsCollateral(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	prov := h.addActiveProvider(t, 500)
	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 100)))
	collateral := CollateralForTier(types.TierBronze)
	req.NoError(h.wallet.Credit(ctx, prov, collateral))

	sla, err := h.market.StartSLA(ctx, testutil.GenerateAddr(), prov, testutil.GenerateCid(), types.TierBronze)
	req.NoError(err)

	got, err := h.market.EndSLA(ctx, sla.ID)
	req.NoError(err)
	req.Equal(types.SlaExpired, got.State)

	bal, err := h.wallet.Balance(ctx, prov)
	req.NoError(err)
	req.Equal(collateral, bal)

	_, err = h.market.EndSLA(ctx, sla.ID)
	req.ErrorIs(err, ErrSlaNotActive)
}

func TestLatencySampleCap(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupMarket(t)

	prov := h.addActiveProvider(t, 500)
	req.NoError(h.market.PublishOffer(ctx, offerFor(prov, 100)))
	req.NoError(h.wallet.Credit(ctx, prov, CollateralForTier(types.TierBronze)))

	sla, err := h.market.StartSLA(ctx, testutil.GenerateAddr(), prov, testutil.GenerateCid(), types.TierBronze)
	req.NoError(err)

	var got *types.SLA
	for i := 0; i < build.SlaLatencySampleCap+10; i++ {
		got, err = h.market.ReportLatency(ctx, sla.ID, uint64(100+i))
		req.NoError(err)
	}
	req.Len(got.LatencySamples, build.SlaLatencySampleCap)
	// oldest samples rolled off
	req.EqualValues(100+10, got.LatencySamples[0])
}
