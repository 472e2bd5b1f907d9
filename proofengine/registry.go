package proofengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/types"
)

var (
	ErrInsufficientStake = errors.New("stake below the registration minimum")
	ErrUnknownProvider   = errors.New("provider is not registered")
	ErrProviderInactive  = errors.New("provider is not active")
)

// ProviderCaps describes the hardware a provider registers with.
type ProviderCaps struct {
	Region    string
	GPU       bool
	Bandwidth uint64
}

// RegisterProvider locks the stake in the stake pool and records the
// provider with a neutral starting reputation.
func (e *Engine) RegisterProvider(ctx context.Context, addr address.Address, stake abi.TokenAmount, caps ProviderCaps) (*types.Provider, error) {
	if stake.LessThan(build.MinProviderStake) {
		return nil, fmt.Errorf("stake %s below minimum %s: %w", stake, build.MinProviderStake, ErrInsufficientStake)
	}

	if err := e.wallet.Transfer(ctx, addr, ledger.StakePoolAddr, stake); err != nil {
		return nil, fmt.Errorf("locking stake for %s: %w", addr, err)
	}

	prov := &types.Provider{
		Addr:       addr,
		Stake:      stake,
		Region:     caps.Region,
		GPU:        caps.GPU,
		Bandwidth:  caps.Bandwidth,
		Reputation: types.MaxReputation / 2,
		Active:     true,
		CreatedAt:  e.clock.Now(),
	}
	if err := e.providers.Insert(ctx, prov); err != nil {
		if rerr := e.wallet.Transfer(ctx, ledger.StakePoolAddr, addr, stake); rerr != nil {
			log.Errorw("failed to return stake after insert error", "provider", addr, "err", rerr)
		}
		return nil, fmt.Errorf("registering provider %s: %w", addr, err)
	}

	log.Infow("provider registered", "addr", addr, "stake", stake, "region", caps.Region, "gpu", caps.GPU)
	return prov, nil
}

// TopUpStake adds stake to an existing provider.
func (e *Engine) TopUpStake(ctx context.Context, addr address.Address, amount abi.TokenAmount) (*types.Provider, error) {
	prov, err := e.provider(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := e.wallet.Transfer(ctx, addr, ledger.StakePoolAddr, amount); err != nil {
		return nil, fmt.Errorf("topping up stake for %s: %w", addr, err)
	}

	prov.Stake = big.Add(prov.Stake, amount)
	if err := e.providers.Update(ctx, prov); err != nil {
		return nil, fmt.Errorf("recording stake top-up for %s: %w", addr, err)
	}
	return prov, nil
}

// Deactivate retires a provider and returns the remaining stake to its
// wallet. An inactive provider receives no new challenges.
func (e *Engine) Deactivate(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	prov, err := e.provider(ctx, addr)
	if err != nil {
		return abi.TokenAmount{}, err
	}

	remaining := prov.Stake
	if remaining.GreaterThan(abi.NewTokenAmount(0)) {
		if err := e.wallet.Transfer(ctx, ledger.StakePoolAddr, addr, remaining); err != nil {
			return abi.TokenAmount{}, fmt.Errorf("returning stake to %s: %w", addr, err)
		}
	}

	prov.Stake = abi.NewTokenAmount(0)
	prov.Active = false
	if err := e.providers.Update(ctx, prov); err != nil {
		return abi.TokenAmount{}, fmt.Errorf("recording deactivation of %s: %w", addr, err)
	}

	log.Infow("provider deactivated", "addr", addr, "returned", remaining)
	return remaining, nil
}

func (e *Engine) provider(ctx context.Context, addr address.Address) (*types.Provider, error) {
	prov, err := e.providers.ByAddr(ctx, addr)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("provider %s: %w", addr, ErrUnknownProvider)
		}
		return nil, fmt.Errorf("getting provider %s: %w", addr, err)
	}
	return prov, nil
}

// bumpReputation moves reputation by delta, clamped to [0, MaxReputation].
func bumpReputation(prov *types.Provider, delta int64) {
	prov.Reputation += delta
	if prov.Reputation < 0 {
		prov.Reputation = 0
	}
	if prov.Reputation > types.MaxReputation {
		prov.Reputation = types.MaxReputation
	}
}
