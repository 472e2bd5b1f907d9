package proofengine

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

func TestRegisterProvider(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupEngine(t)

	addr := testutil.GenerateAddr()
	req.NoError(h.wallet.Credit(ctx, addr, build.MinProviderStake))

	// below the stake floor
	low := big.Sub(build.MinProviderStake, abi.NewTokenAmount(1))
	_, err := h.eng.RegisterProvider(ctx, addr, low, ProviderCaps{})
	req.ErrorIs(err, ErrInsufficientStake)

	prov, err := h.eng.RegisterProvider(ctx, addr, build.MinProviderStake, ProviderCaps{
		Region:    "us-east",
		GPU:       true,
		Bandwidth: 1000,
	})
	req.NoError(err)
	req.True(prov.Active)
	req.EqualValues(types.MaxReputation/2, prov.Reputation)

	// the full stake moved to the stake pool
	bal, err := h.wallet.Balance(ctx, addr)
	req.NoError(err)
	req.True(bal.IsZero())
	poolBal, err := h.wallet.Balance(ctx, ledger.StakePoolAddr)
	req.NoError(err)
	req.Equal(build.MinProviderStake, poolBal)

	got, err := h.providers.ByAddr(ctx, addr)
	req.NoError(err)
	req.Equal("us-east", got.Region)
	req.True(got.GPU)
}

func TestRegisterWithoutFunds(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupEngine(t)

	addr := testutil.GenerateAddr()
	_, err := h.eng.RegisterProvider(ctx, addr, build.MinProviderStake, ProviderCaps{})
	req.Error(err)
}

func TestTopUpStake(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupEngine(t)

	addr := h.addProvider(t, build.MinProviderStake)

	topUp := abi.NewTokenAmount(5000)
	req.NoError(h.wallet.Credit(ctx, addr, topUp))
	prov, err := h.eng.TopUpStake(ctx, addr, topUp)
	req.NoError(err)
	req.Equal(big.Add(build.MinProviderStake, topUp), prov.Stake)

	_, err = h.eng.TopUpStake(ctx, testutil.GenerateAddr(), topUp)
	req.ErrorIs(err, ErrUnknownProvider)
}

func TestDeactivateReturnsStake(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := setupEngine(t)

	addr := h.addProvider(t, build.MinProviderStake)

	returned, err := h.eng.Deactivate(ctx, addr)
	req.NoError(err)
	req.Equal(build.MinProviderStake, returned)

	bal, err := h.wallet.Balance(ctx, addr)
	req.NoError(err)
	req.Equal(build.MinProviderStake, bal)

	prov, err := h.providers.ByAddr(ctx, addr)
	req.NoError(err)
	req.False(prov.Active)
	req.True(prov.Stake.IsZero())
}
