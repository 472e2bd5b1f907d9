// Package ledger implements the deal lifecycle: escrow lock-up at deal
// creation, per-epoch reward streaming to providers, cancellation and
// expiry refunds. All money movements go through the wallet table so the
// escrow pool balance always equals the sum of unstreamed deal funds.
package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("ledger")

var (
	ErrDealNotActive   = errors.New("deal is not active")
	ErrOutsideTerm     = errors.New("epoch is outside the deal term")
	ErrEscrowExhausted = errors.New("deal escrow is exhausted")
)

// Pool accounts. Escrowed deal funds, slashed stake and repair bounties
// are held under reserved actor addresses in the wallet table.
var (
	EscrowAddr     = mustActorAddr("svdb/escrow")
	StakePoolAddr  = mustActorAddr("svdb/stake-pool")
	SlashPoolAddr  = mustActorAddr("svdb/slash-pool")
	BountyPoolAddr = mustActorAddr("svdb/repair-bounty")
	SlaPoolAddr    = mustActorAddr("svdb/sla-collateral")
)

func mustActorAddr(name string) address.Address {
	addr, err := address.NewActorAddress([]byte(name))
	if err != nil {
		panic(err)
	}
	return addr
}

// GovPriceName is the governance parameter holding the storage price per
// GB-month, used when a deal does not name its own price.
const GovPriceName = "price-per-gb-month"

type Ledger struct {
	deals  *db.DealsDB
	wallet *db.WalletDB
	gov    *db.GovParamsDB
	events *svdbevents.Bus
	clock  clock.Clock
}

func New(deals *db.DealsDB, wallet *db.WalletDB, gov *db.GovParamsDB, events *svdbevents.Bus, clk clock.Clock) *Ledger {
	return &Ledger{
		deals:  deals,
		wallet: wallet,
		gov:    gov,
		events: events,
		clock:  clk,
	}
}

type CreateDealParams struct {
	Payer        address.Address
	ManifestRoot cid.Cid
	SizeBytes    uint64
	Replicas     int
	Months       int
	// PricePerEpoch is the per-replica epoch price. Left nil, the price is
	// derived from the governance price per GB-month.
	PricePerEpoch abi.TokenAmount
	StartEpoch    abi.ChainEpoch
}

// CreateDeal validates the terms, locks price x epochs x replicas in
// escrow and records the deal with a fresh challenge nonce.
func (l *Ledger) CreateDeal(ctx context.Context, params CreateDealParams) (*types.Deal, error) {
	if params.SizeBytes == 0 {
		return nil, fmt.Errorf("deal size must be non-zero")
	}
	if params.Replicas < 1 {
		return nil, fmt.Errorf("deal must have at least one replica, got %d", params.Replicas)
	}
	if params.Months < 1 {
		return nil, fmt.Errorf("deal term must be at least one month, got %d", params.Months)
	}
	if !params.ManifestRoot.Defined() {
		return nil, fmt.Errorf("deal manifest root is not defined")
	}

	price := params.PricePerEpoch
	if price.Nil() || price.IsZero() {
		var err error
		price, err = l.pricePerEpoch(ctx, params.SizeBytes)
		if err != nil {
			return nil, err
		}
	}

	totalEpochs := abi.ChainEpoch(params.Months) * build.EpochsPerMonth
	escrow := big.Mul(price, big.NewInt(int64(totalEpochs)*int64(params.Replicas)))

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating deal nonce: %w", err)
	}

	if err := l.wallet.Transfer(ctx, params.Payer, EscrowAddr, escrow); err != nil {
		return nil, fmt.Errorf("locking escrow for deal: %w", err)
	}

	deal := &types.Deal{
		ID:            uuid.New(),
		CreatedAt:     l.clock.Now(),
		Payer:         params.Payer,
		ManifestRoot:  params.ManifestRoot,
		SizeBytes:     params.SizeBytes,
		Replicas:      params.Replicas,
		Months:        params.Months,
		PricePerEpoch: price,
		Escrow:        escrow,
		Streamed:      abi.NewTokenAmount(0),
		Refunded:      abi.NewTokenAmount(0),
		Nonce:         nonce,
		StartEpoch:    params.StartEpoch,
		TotalEpochs:   totalEpochs,
		State:         types.DealActive,
	}
	if err := l.deals.Insert(ctx, deal); err != nil {
		// Escrow was locked but the deal could not be recorded
		if rerr := l.wallet.Transfer(ctx, EscrowAddr, params.Payer, escrow); rerr != nil {
			log.Errorw("failed to return escrow after insert error", "deal", deal.ID, "err", rerr)
		}
		return nil, fmt.Errorf("inserting deal: %w", err)
	}

	log.Infow("deal created", "id", deal.ID, "payer", deal.Payer, "escrow", escrow, "epochs", totalEpochs)
	l.events.Publish(svdbevents.Event{
		Code:         svdbevents.DealCreated,
		DealID:       deal.ID,
		ManifestRoot: deal.ManifestRoot,
		Client:       deal.Payer,
		Amount:       escrow,
		Epoch:        deal.StartEpoch,
	})
	return deal, nil
}

// pricePerEpoch converts the governance price per GB-month into a
// per-epoch price for the given payload size.
func (l *Ledger) pricePerEpoch(ctx context.Context, sizeBytes uint64) (abi.TokenAmount, error) {
	perGBMonth, err := l.gov.Amount(ctx, GovPriceName)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			perGBMonth = build.DefaultPricePerGBMonth
		} else {
			return abi.TokenAmount{}, fmt.Errorf("reading governance price: %w", err)
		}
	}

	// price x bytes / bytesPerGB, spread over the epochs in a month
	total := big.Mul(perGBMonth, big.NewInt(int64(sizeBytes)))
	perEpoch := big.Div(total, big.NewInt(int64(build.BytesPerGB)*int64(build.EpochsPerMonth)))
	if perEpoch.IsZero() {
		perEpoch = abi.NewTokenAmount(1)
	}
	return perEpoch, nil
}

// Remaining returns the unstreamed, unrefunded escrow of a deal.
func Remaining(deal *types.Deal) abi.TokenAmount {
	return big.Sub(big.Sub(deal.Escrow, deal.Streamed), deal.Refunded)
}

// StreamReward pays one epoch's reward from the deal escrow to a provider
// that proved storage for the epoch.
func (l *Ledger) StreamReward(ctx context.Context, dealID uuid.UUID, provider address.Address, epoch abi.ChainEpoch) error {
	deal, err := l.deals.ByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("getting deal %s: %w", dealID, err)
	}
	if deal.State != types.DealActive {
		return fmt.Errorf("streaming reward for deal %s: %w", dealID, ErrDealNotActive)
	}
	if epoch < deal.StartEpoch || epoch >= deal.EndEpoch() {
		return fmt.Errorf("epoch %d not in [%d, %d): %w", epoch, deal.StartEpoch, deal.EndEpoch(), ErrOutsideTerm)
	}

	remaining := Remaining(deal)
	if remaining.LessThan(deal.PricePerEpoch) {
		return fmt.Errorf("deal %s has %s remaining, needs %s: %w", dealID, remaining, deal.PricePerEpoch, ErrEscrowExhausted)
	}

	if err := l.wallet.Transfer(ctx, EscrowAddr, provider, deal.PricePerEpoch); err != nil {
		return fmt.Errorf("streaming reward for deal %s: %w", dealID, err)
	}

	deal.Streamed = big.Add(deal.Streamed, deal.PricePerEpoch)
	if err := l.deals.Update(ctx, deal); err != nil {
		return fmt.Errorf("recording streamed reward for deal %s: %w", dealID, err)
	}

	l.events.Publish(svdbevents.Event{
		Code:     svdbevents.RewardStreamed,
		DealID:   deal.ID,
		Provider: provider,
		Amount:   deal.PricePerEpoch,
		Epoch:    epoch,
	})
	return nil
}

// FundBounty moves part of a deal's remaining escrow into the repair
// bounty pool. The amount counts as streamed: it pays for service, and
// CancelDeal must not refund it.
func (l *Ledger) FundBounty(ctx context.Context, dealID uuid.UUID, amount abi.TokenAmount) error {
	deal, err := l.deals.ByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("getting deal %s: %w", dealID, err)
	}
	if deal.State != types.DealActive {
		return fmt.Errorf("funding bounty for deal %s: %w", dealID, ErrDealNotActive)
	}

	remaining := Remaining(deal)
	if remaining.LessThan(amount) {
		return fmt.Errorf("deal %s has %s remaining, bounty needs %s: %w", dealID, remaining, amount, ErrEscrowExhausted)
	}

	if err := l.wallet.Transfer(ctx, EscrowAddr, BountyPoolAddr, amount); err != nil {
		return fmt.Errorf("funding bounty for deal %s: %w", dealID, err)
	}

	deal.Streamed = big.Add(deal.Streamed, amount)
	if err := l.deals.Update(ctx, deal); err != nil {
		return fmt.Errorf("recording bounty for deal %s: %w", dealID, err)
	}
	return nil
}

// CancelDeal stops an active deal and refunds the unstreamed escrow to the
// payer. Rewards already streamed are not clawed back.
func (l *Ledger) CancelDeal(ctx context.Context, dealID uuid.UUID) (*types.Deal, error) {
	deal, err := l.deals.ByID(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("getting deal %s: %w", dealID, err)
	}
	if deal.State != types.DealActive {
		return nil, fmt.Errorf("cancelling deal %s: %w", dealID, ErrDealNotActive)
	}

	refund := Remaining(deal)
	if refund.GreaterThan(abi.NewTokenAmount(0)) {
		if err := l.wallet.Transfer(ctx, EscrowAddr, deal.Payer, refund); err != nil {
			return nil, fmt.Errorf("refunding deal %s: %w", dealID, err)
		}
	}

	deal.Refunded = big.Add(deal.Refunded, refund)
	deal.State = types.DealCancelled
	if err := l.deals.Update(ctx, deal); err != nil {
		return nil, fmt.Errorf("recording cancellation of deal %s: %w", dealID, err)
	}

	log.Infow("deal cancelled", "id", deal.ID, "refund", refund)
	l.events.Publish(svdbevents.Event{
		Code:   svdbevents.DealCancelled,
		DealID: deal.ID,
		Client: deal.Payer,
		Amount: refund,
	})
	return deal, nil
}

// ExpireDeals moves every active deal whose term has ended at the given
// epoch to Expired, refunding leftover escrow. It returns the number of
// deals expired.
func (l *Ledger) ExpireDeals(ctx context.Context, epoch abi.ChainEpoch) (int, error) {
	deals, err := l.deals.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active deals: %w", err)
	}

	var expired int
	for _, deal := range deals {
		if epoch < deal.EndEpoch() {
			continue
		}

		refund := Remaining(deal)
		if refund.GreaterThan(abi.NewTokenAmount(0)) {
			if err := l.wallet.Transfer(ctx, EscrowAddr, deal.Payer, refund); err != nil {
				return expired, fmt.Errorf("refunding expired deal %s: %w", deal.ID, err)
			}
		}

		deal.Refunded = big.Add(deal.Refunded, refund)
		deal.State = types.DealExpired
		if err := l.deals.Update(ctx, deal); err != nil {
			return expired, fmt.Errorf("recording expiry of deal %s: %w", deal.ID, err)
		}
		expired++

		log.Infow("deal expired", "id", deal.ID, "refund", refund, "epoch", epoch)
		l.events.Publish(svdbevents.Event{
			Code:   svdbevents.DealExpired,
			DealID: deal.ID,
			Client: deal.Payer,
			Amount: refund,
			Epoch:  epoch,
		})
	}

	return expired, nil
}

// SetPrice updates the governance storage price. New deals pick up the new
// price; existing deals keep the price they were created with.
func (l *Ledger) SetPrice(ctx context.Context, price abi.TokenAmount) error {
	if price.LessThan(build.PriceFloor) || price.GreaterThan(build.PriceCeiling) {
		return fmt.Errorf("price %s outside [%s, %s]", price, build.PriceFloor, build.PriceCeiling)
	}
	if err := l.gov.SetAmount(ctx, GovPriceName, price); err != nil {
		return fmt.Errorf("setting governance price: %w", err)
	}

	log.Infow("storage price changed", "price", price)
	l.events.Publish(svdbevents.Event{
		Code:   svdbevents.PriceChanged,
		Amount: price,
	})
	return nil
}

// Price returns the current governance storage price per GB-month.
func (l *Ledger) Price(ctx context.Context) (abi.TokenAmount, error) {
	price, err := l.gov.Amount(ctx, GovPriceName)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return build.DefaultPricePerGBMonth, nil
		}
		return abi.TokenAmount{}, err
	}
	return price, nil
}
