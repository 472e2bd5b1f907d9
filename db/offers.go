package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

const offerFieldsStr = "Provider, Region, PricePerGBMonth, Tier, CapacityBytes, GPU, ExpectedLatencyMs, UpdatedAt"

type OffersDB struct {
	db *sql.DB
}

func NewOffersDB(db *sql.DB) *OffersDB {
	return &OffersDB{db: db}
}

// Upsert publishes or replaces a provider's ask.
func (o *OffersDB) Upsert(ctx context.Context, offer *types.Offer) error {
	qry := "REPLACE INTO Offers (" + offerFieldsStr + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	values := []interface{}{
		offer.Provider.String(),
		offer.Region,
		offer.PricePerGBMonth.String(),
		offer.Tier.String(),
		offer.CapacityBytes,
		offer.GPU,
		offer.ExpectedLatencyMs,
		offer.UpdatedAt,
	}
	_, err := o.db.ExecContext(ctx, qry, values...)
	return err
}

func (o *OffersDB) ByProvider(ctx context.Context, provider address.Address) (*types.Offer, error) {
	qry := "SELECT " + offerFieldsStr + " FROM Offers WHERE Provider = ?"
	row := o.db.QueryRowContext(ctx, qry, provider.String())
	offer, err := o.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting offer: %w", err)
	}
	return offer, nil
}

func (o *OffersDB) Delete(ctx context.Context, provider address.Address) error {
	_, err := o.db.ExecContext(ctx, "DELETE FROM Offers WHERE Provider = ?", provider.String())
	return err
}

func (o *OffersDB) List(ctx context.Context) ([]*types.Offer, error) {
	return o.list(ctx, "")
}

func (o *OffersDB) ByRegion(ctx context.Context, region string) ([]*types.Offer, error) {
	return o.list(ctx, "Region = ?", region)
}

func (o *OffersDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.Offer, error) {
	qry := "SELECT " + offerFieldsStr + " FROM Offers"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}

	rows, err := o.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]*types.Offer, 0, 16)
	for rows.Next() {
		offer, err := o.scanRow(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return offers, nil
}

func (o *OffersDB) scanRow(row Scannable) (*types.Offer, error) {
	var offer types.Offer
	provider := &fielddef.AddrFieldDef{F: &offer.Provider}
	price := &fielddef.BigIntFieldDef{F: &offer.PricePerGBMonth}
	tier := &fielddef.SlaTierFieldDef{F: &offer.Tier}

	err := row.Scan(
		&provider.Marshalled,
		&offer.Region,
		&price.Marshalled,
		&tier.Marshalled,
		&offer.CapacityBytes,
		&offer.GPU,
		&offer.ExpectedLatencyMs,
		&offer.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, fd := range []fielddef.FieldDefinition{provider, price, tier} {
		if err := fd.Unmarshall(); err != nil {
			return nil, err
		}
	}

	return &offer, nil
}
