package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/svdb-project/svdb/db/fielddef"
)

// GovParamsDB stores governance-set protocol parameters, such as the
// current storage price.
type GovParamsDB struct {
	db *sql.DB
}

func NewGovParamsDB(db *sql.DB) *GovParamsDB {
	return &GovParamsDB{db: db}
}

func (g *GovParamsDB) SetAmount(ctx context.Context, name string, amt abi.TokenAmount) error {
	_, err := g.db.ExecContext(ctx, "REPLACE INTO GovParams (Name, Value) VALUES (?, ?)", name, amt.String())
	return err
}

func (g *GovParamsDB) Amount(ctx context.Context, name string) (abi.TokenAmount, error) {
	row := g.db.QueryRowContext(ctx, "SELECT Value FROM GovParams WHERE Name = ?", name)

	amt := &fielddef.BigIntFieldDef{F: new(abi.TokenAmount)}
	err := row.Scan(&amt.Marshalled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return abi.TokenAmount{}, ErrNotFound
		}
		return abi.TokenAmount{}, fmt.Errorf("getting gov param %s: %w", name, err)
	}
	if err := amt.Unmarshall(); err != nil {
		return abi.TokenAmount{}, err
	}
	return *amt.F, nil
}
