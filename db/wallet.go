package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/svdb-project/svdb/db/fielddef"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// WalletDB is the token balance table. All debits and credits happen inside
// a single sqlite transaction so a transfer is atomic.
type WalletDB struct {
	db *sql.DB
}

func NewWalletDB(db *sql.DB) *WalletDB {
	return &WalletDB{db: db}
}

func (w *WalletDB) Balance(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	return balance(ctx, w.db, addr)
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func balance(ctx context.Context, q execQueryer, addr address.Address) (abi.TokenAmount, error) {
	row := q.QueryRowContext(ctx, "SELECT Balance FROM Balances WHERE Addr = ?", addr.String())

	bal := &fielddef.BigIntFieldDef{F: new(abi.TokenAmount)}
	err := row.Scan(&bal.Marshalled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return abi.NewTokenAmount(0), nil
		}
		return abi.TokenAmount{}, fmt.Errorf("getting balance for %s: %w", addr, err)
	}
	if err := bal.Unmarshall(); err != nil {
		return abi.TokenAmount{}, err
	}
	return *bal.F, nil
}

func setBalance(ctx context.Context, q execQueryer, addr address.Address, amt abi.TokenAmount) error {
	_, err := q.ExecContext(ctx, "REPLACE INTO Balances (Addr, Balance) VALUES (?, ?)", addr.String(), amt.String())
	return err
}

// Credit adds amt to the address balance, creating the row if needed.
func (w *WalletDB) Credit(ctx context.Context, addr address.Address, amt abi.TokenAmount) error {
	return w.withTx(ctx, func(tx *sql.Tx) error {
		bal, err := balance(ctx, tx, addr)
		if err != nil {
			return err
		}
		return setBalance(ctx, tx, addr, big.Add(bal, amt))
	})
}

// Debit removes amt from the address balance, failing with
// ErrInsufficientFunds if the balance would go negative.
func (w *WalletDB) Debit(ctx context.Context, addr address.Address, amt abi.TokenAmount) error {
	return w.withTx(ctx, func(tx *sql.Tx) error {
		return debit(ctx, tx, addr, amt)
	})
}

func debit(ctx context.Context, tx *sql.Tx, addr address.Address, amt abi.TokenAmount) error {
	bal, err := balance(ctx, tx, addr)
	if err != nil {
		return err
	}
	if bal.LessThan(amt) {
		return fmt.Errorf("debiting %s from %s with balance %s: %w", amt, addr, bal, ErrInsufficientFunds)
	}
	return setBalance(ctx, tx, addr, big.Sub(bal, amt))
}

// Transfer moves amt from one address to another atomically.
func (w *WalletDB) Transfer(ctx context.Context, from address.Address, to address.Address, amt abi.TokenAmount) error {
	return w.withTx(ctx, func(tx *sql.Tx) error {
		if err := debit(ctx, tx, from, amt); err != nil {
			return err
		}
		bal, err := balance(ctx, tx, to)
		if err != nil {
			return err
		}
		return setBalance(ctx, tx, to, big.Add(bal, amt))
	})
}

func (w *WalletDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning wallet tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
