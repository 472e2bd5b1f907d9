package db

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/testutil"
)

func TestWalletDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	require.NoError(t, CreateAllTables(ctx, sqldb))

	w := NewWalletDB(sqldb)
	addrs := testutil.GenerateAddrs(2)
	alice, bob := addrs[0], addrs[1]

	// A fresh account has a zero balance
	bal, err := w.Balance(ctx, alice)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(0), bal)

	req.NoError(w.Credit(ctx, alice, abi.NewTokenAmount(1000)))

	bal, err = w.Balance(ctx, alice)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(1000), bal)

	req.NoError(w.Transfer(ctx, alice, bob, abi.NewTokenAmount(300)))

	bal, err = w.Balance(ctx, alice)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(700), bal)

	bal, err = w.Balance(ctx, bob)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(300), bal)

	err = w.Debit(ctx, bob, abi.NewTokenAmount(301))
	req.ErrorIs(err, ErrInsufficientFunds)

	// A failed transfer leaves both balances untouched
	err = w.Transfer(ctx, bob, alice, abi.NewTokenAmount(500))
	req.ErrorIs(err, ErrInsufficientFunds)

	bal, err = w.Balance(ctx, bob)
	req.NoError(err)
	req.Equal(abi.NewTokenAmount(300), bal)
}
