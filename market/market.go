// Package market is the provider offer book and SLA ledger. Offers
// advertise capacity and price; SLAs bind a provider to a latency tier
// backed by collateral that is burned after repeated violations.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("market")

var (
	// ErrNotRegistered means the provider has no active registration.
	ErrNotRegistered = errors.New("provider is not registered or inactive")
	// ErrNoOffer means the provider has not published an offer.
	ErrNoOffer = errors.New("provider has no published offer")
	// ErrSlaNotActive means the SLA is already slashed or expired.
	ErrSlaNotActive = errors.New("sla is not active")
)

type Market struct {
	offers    *db.OffersDB
	slas      *db.SlasDB
	providers *db.ProvidersDB
	wallet    *db.WalletDB
	events    *svdbevents.Bus
	clock     clock.Clock
}

func New(offers *db.OffersDB, slas *db.SlasDB, providers *db.ProvidersDB, wallet *db.WalletDB, events *svdbevents.Bus, clk clock.Clock) *Market {
	return &Market{
		offers:    offers,
		slas:      slas,
		providers: providers,
		wallet:    wallet,
		events:    events,
		clock:     clk,
	}
}

// PublishOffer records or replaces the provider's offer in the book.
func (m *Market) PublishOffer(ctx context.Context, offer *types.Offer) error {
	prov, err := m.activeProvider(ctx, offer.Provider)
	if err != nil {
		return err
	}
	if offer.PricePerGBMonth.Nil() || offer.PricePerGBMonth.LessThanEqual(abi.NewTokenAmount(0)) {
		return fmt.Errorf("offer price must be positive, got %s", offer.PricePerGBMonth)
	}
	if offer.CapacityBytes == 0 {
		return fmt.Errorf("offer capacity must be non-zero")
	}

	offer.UpdatedAt = m.clock.Now()
	if err := m.offers.Upsert(ctx, offer); err != nil {
		return fmt.Errorf("publishing offer for %s: %w", offer.Provider, err)
	}

	log.Infow("offer published", "provider", offer.Provider, "region", offer.Region, "price", offer.PricePerGBMonth, "tier", offer.Tier, "reputation", prov.Reputation)
	m.events.Publish(svdbevents.Event{
		Code:     svdbevents.OfferPublished,
		Provider: offer.Provider,
	})
	return nil
}

// RetractOffer removes the provider's offer from the book.
func (m *Market) RetractOffer(ctx context.Context, provider address.Address) error {
	return m.offers.Delete(ctx, provider)
}

// OfferQuery filters and bounds an offer book listing.
type OfferQuery struct {
	Region   string
	GPU      bool
	MaxPrice abi.TokenAmount
	Limit    int
}

// RankedOffer pairs an offer with the reputation that ranked it.
type RankedOffer struct {
	Offer      *types.Offer
	Reputation int64
}

// ListOffers returns offers matching the query, best first. Ranking
// prefers reputation and breaks ties on price, so a cheap provider with a
// slashing history sorts below a reliable one at the same price point.
func (m *Market) ListOffers(ctx context.Context, query OfferQuery) ([]*RankedOffer, error) {
	var offers []*types.Offer
	var err error
	if query.Region != "" {
		offers, err = m.offers.ByRegion(ctx, query.Region)
	} else {
		offers, err = m.offers.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}

	var ranked []*RankedOffer
	for _, offer := range offers {
		if query.GPU && !offer.GPU {
			continue
		}
		if !query.MaxPrice.Nil() && offer.PricePerGBMonth.GreaterThan(query.MaxPrice) {
			continue
		}
		prov, err := m.providers.ByAddr(ctx, offer.Provider)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !prov.Active {
			continue
		}
		ranked = append(ranked, &RankedOffer{Offer: offer, Reputation: prov.Reputation})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Reputation != ranked[j].Reputation {
			return ranked[i].Reputation > ranked[j].Reputation
		}
		return ranked[i].Offer.PricePerGBMonth.LessThan(ranked[j].Offer.PricePerGBMonth)
	})

	if query.Limit > 0 && len(ranked) > query.Limit {
		ranked = ranked[:query.Limit]
	}
	return ranked, nil
}

// CollateralForTier is the collateral a provider posts to back an SLA.
func CollateralForTier(tier types.SlaTier) abi.TokenAmount {
	return big.Mul(build.BaseSlaCollateral, big.NewInt(tier.CollateralMultiplier()))
}

// StartSLA opens a tier agreement between a client and a provider for one
// manifest. The provider posts the tier's collateral into the SLA pool.
func (m *Market) StartSLA(ctx context.Context, client address.Address, provider address.Address, root cid.Cid, tier types.SlaTier) (*types.SLA, error) {
	if _, err := m.activeProvider(ctx, provider); err != nil {
		return nil, err
	}
	if _, err := m.offers.ByProvider(ctx, provider); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("provider %s: %w", provider, ErrNoOffer)
		}
		return nil, err
	}

	collateral := CollateralForTier(tier)
	if err := m.wallet.Transfer(ctx, provider, ledger.SlaPoolAddr, collateral); err != nil {
		return nil, fmt.Errorf("posting sla collateral for %s: %w", provider, err)
	}

	sla := &types.SLA{
		ID:           uuid.New(),
		Client:       client,
		Provider:     provider,
		ManifestRoot: root,
		Tier:         tier,
		Collateral:   collateral,
		State:        types.SlaActive,
		StartedAt:    m.clock.Now(),
	}
	if err := m.slas.Insert(ctx, sla); err != nil {
		if rerr := m.wallet.Transfer(ctx, ledger.SlaPoolAddr, provider, collateral); rerr != nil {
			log.Errorw("failed to return sla collateral after insert error", "provider", provider, "err", rerr)
		}
		return nil, fmt.Errorf("recording sla for %s: %w", provider, err)
	}

	log.Infow("sla started", "id", sla.ID, "client", client, "provider", provider, "tier", tier, "collateral", collateral)
	m.events.Publish(svdbevents.Event{
		Code:     svdbevents.SlaStarted,
		SlaID:    sla.ID,
		Client:   client,
		Provider: provider,
		Amount:   collateral,
	})
	return sla, nil
}

// ReportLatency records a retrieval latency sample against an SLA. A
// sample above twice the tier threshold is a violation; the violation
// that reaches the limit slashes the collateral and closes the SLA.
func (m *Market) ReportLatency(ctx context.Context, slaID uuid.UUID, measuredMs uint64) (*types.SLA, error) {
	sla, err := m.slas.ByID(ctx, slaID)
	if err != nil {
		return nil, fmt.Errorf("getting sla %s: %w", slaID, err)
	}
	if sla.State != types.SlaActive {
		return nil, fmt.Errorf("sla %s: %w", slaID, ErrSlaNotActive)
	}

	sla.LatencySamples = append(sla.LatencySamples, measuredMs)
	if len(sla.LatencySamples) > build.SlaLatencySampleCap {
		sla.LatencySamples = sla.LatencySamples[len(sla.LatencySamples)-build.SlaLatencySampleCap:]
	}

	if measuredMs > build.SlaViolationFactor*sla.Tier.LatencyThresholdMs() {
		sla.Violations++
		log.Warnw("sla violation", "id", sla.ID, "provider", sla.Provider, "measuredMs", measuredMs, "violations", sla.Violations)
		m.events.Publish(svdbevents.Event{
			Code:     svdbevents.SlaViolated,
			SlaID:    sla.ID,
			Provider: sla.Provider,
			Message:  fmt.Sprintf("latency %dms over %s tier threshold", measuredMs, sla.Tier),
		})
		m.dingReputation(ctx, sla.Provider)

		if sla.Violations >= build.SlaViolationLimit {
			if err := m.slashCollateral(ctx, sla); err != nil {
				return nil, err
			}
		}
	}

	if err := m.slas.Update(ctx, sla); err != nil {
		return nil, fmt.Errorf("recording latency sample for sla %s: %w", slaID, err)
	}
	return sla, nil
}

// slashCollateral burns half the collateral, returns the rest to the
// provider and closes the SLA.
func (m *Market) slashCollateral(ctx context.Context, sla *types.SLA) error {
	burned := big.Div(big.Mul(sla.Collateral, big.NewInt(build.SlaSlashNum)), big.NewInt(build.SlaSlashDenom))
	returned := big.Sub(sla.Collateral, burned)

	if err := m.wallet.Transfer(ctx, ledger.SlaPoolAddr, ledger.SlashPoolAddr, burned); err != nil {
		return fmt.Errorf("burning sla collateral for %s: %w", sla.ID, err)
	}
	if returned.GreaterThan(abi.NewTokenAmount(0)) {
		if err := m.wallet.Transfer(ctx, ledger.SlaPoolAddr, sla.Provider, returned); err != nil {
			return fmt.Errorf("returning sla collateral remainder for %s: %w", sla.ID, err)
		}
	}

	sla.State = types.SlaSlashed

	log.Warnw("sla slashed", "id", sla.ID, "provider", sla.Provider, "burned", burned)
	m.events.Publish(svdbevents.Event{
		Code:     svdbevents.SlaSlashed,
		SlaID:    sla.ID,
		Provider: sla.Provider,
		Amount:   burned,
	})
	return nil
}

// EndSLA closes an SLA cleanly and returns the full collateral.
func (m *Market) EndSLA(ctx context.Context, slaID uuid.UUID) (*types.SLA, error) {
	sla, err := m.slas.ByID(ctx, slaID)
	if err != nil {
		return nil, fmt.Errorf("getting sla %s: %w", slaID, err)
	}
	if sla.State != types.SlaActive {
		return nil, fmt.Errorf("sla %s: %w", slaID, ErrSlaNotActive)
	}

	if err := m.wallet.Transfer(ctx, ledger.SlaPoolAddr, sla.Provider, sla.Collateral); err != nil {
		return nil, fmt.Errorf("returning sla collateral for %s: %w", slaID, err)
	}
	sla.State = types.SlaExpired
	if err := m.slas.Update(ctx, sla); err != nil {
		return nil, fmt.Errorf("recording sla expiry for %s: %w", slaID, err)
	}
	return sla, nil
}

func (m *Market) activeProvider(ctx context.Context, addr address.Address) (*types.Provider, error) {
	prov, err := m.providers.ByAddr(ctx, addr)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("provider %s: %w", addr, ErrNotRegistered)
		}
		return nil, err
	}
	if !prov.Active {
		return nil, fmt.Errorf("provider %s: %w", addr, ErrNotRegistered)
	}
	return prov, nil
}

func (m *Market) dingReputation(ctx context.Context, addr address.Address) {
	prov, err := m.providers.ByAddr(ctx, addr)
	if err != nil {
		log.Errorw("reputation update for unknown provider", "provider", addr, "err", err)
		return
	}
	prov.Reputation -= 25
	if prov.Reputation < 0 {
		prov.Reputation = 0
	}
	if err := m.providers.Update(ctx, prov); err != nil {
		log.Errorw("failed to record reputation", "provider", addr, "err", err)
	}
}
