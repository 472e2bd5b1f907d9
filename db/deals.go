package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

// Used for SELECT statements: "ID, CreatedAt, ..."
var dealFields []string
var dealFieldsStr = ""

func init() {
	var deal types.Deal
	def := newDealAccessor(nil, &deal)
	dealFields = make([]string, 0, len(def.def))
	for k := range def.def {
		dealFields = append(dealFields, k)
	}
	dealFieldsStr = strings.Join(dealFields, ", ")
}

type dealAccessor struct {
	db   *sql.DB
	deal *types.Deal
	def  map[string]fielddef.FieldDefinition
}

func (d *DealsDB) newDealDef(deal *types.Deal) *dealAccessor {
	return newDealAccessor(d.db, deal)
}

func newDealAccessor(db *sql.DB, deal *types.Deal) *dealAccessor {
	return &dealAccessor{
		db:   db,
		deal: deal,
		def: map[string]fielddef.FieldDefinition{
			"ID":            &fielddef.FieldDef{F: &deal.ID},
			"CreatedAt":     &fielddef.FieldDef{F: &deal.CreatedAt},
			"Payer":         &fielddef.AddrFieldDef{F: &deal.Payer},
			"ManifestRoot":  &fielddef.CidFieldDef{F: &deal.ManifestRoot},
			"SizeBytes":     &fielddef.FieldDef{F: &deal.SizeBytes},
			"Replicas":      &fielddef.FieldDef{F: &deal.Replicas},
			"Months":        &fielddef.FieldDef{F: &deal.Months},
			"PricePerEpoch": &fielddef.BigIntFieldDef{F: &deal.PricePerEpoch},
			"Escrow":        &fielddef.BigIntFieldDef{F: &deal.Escrow},
			"Streamed":      &fielddef.BigIntFieldDef{F: &deal.Streamed},
			"Refunded":      &fielddef.BigIntFieldDef{F: &deal.Refunded},
			"Nonce":         &fielddef.FieldDef{F: &deal.Nonce},
			"StartEpoch":    &fielddef.FieldDef{F: &deal.StartEpoch},
			"TotalEpochs":   &fielddef.FieldDef{F: &deal.TotalEpochs},
			"State":         &fielddef.DealStateFieldDef{F: &deal.State},
			"Error":         &fielddef.FieldDef{F: &deal.Err},
		},
	}
}

func (d *dealAccessor) scan(row Scannable) error {
	return scan(dealFields, d.def, row)
}

func scan(fields []string, def map[string]fielddef.FieldDefinition, row Scannable) error {
	// For each field
	dest := []interface{}{}
	for _, name := range fields {
		// Get a pointer to the field that will receive the scanned value
		fieldDef := def[name]
		dest = append(dest, fieldDef.FieldPtr())
	}

	// Scan the row into each pointer
	err := row.Scan(dest...)
	if err != nil {
		return fmt.Errorf("scanning row: %w", err)
	}

	// For each field
	for name, fieldDef := range def {
		// Unmarshall the scanned value into the target object
		err := fieldDef.Unmarshall()
		if err != nil {
			return fmt.Errorf("unmarshalling db field %s: %s", name, err)
		}
	}
	return nil
}

func (d *dealAccessor) insert(ctx context.Context) error {
	return insert(ctx, "Deals", dealFields, dealFieldsStr, d.def, d.db)
}

func insert(ctx context.Context, table string, fields []string, fieldsStr string, def map[string]fielddef.FieldDefinition, db *sql.DB) error {
	// For each field
	values := []interface{}{}
	placeholders := make([]string, 0, len(values))
	for _, name := range fields {
		// Add a placeholder "?"
		fieldDef := def[name]
		placeholders = append(placeholders, "?")

		// Marshall the field into a value that can be stored in the database
		v, err := fieldDef.Marshall()
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	// Execute the INSERT
	qry := "INSERT INTO " + table + " (" + fieldsStr + ") "
	qry += "VALUES (" + strings.Join(placeholders, ",") + ")"
	_, err := db.ExecContext(ctx, qry, values...)
	return err
}

func (d *dealAccessor) update(ctx context.Context) error {
	return update(ctx, "Deals", "ID", dealFields, d.def, d.db, d.deal.ID)
}

func update(ctx context.Context, table string, idField string, fields []string, def map[string]fielddef.FieldDefinition, db *sql.DB, id interface{}) error {
	// For each field
	values := []interface{}{}
	setNames := make([]string, 0, len(values))
	for _, name := range fields {
		// Skip the ID field
		if name == idField {
			continue
		}

		// Add "fieldName = ?"
		fieldDef := def[name]
		setNames = append(setNames, name+" = ?")

		// Marshall the field into a value that can be stored in the database
		v, err := fieldDef.Marshall()
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	// Execute the UPDATE
	qry := "UPDATE " + table + " "
	qry += "SET " + strings.Join(setNames, ", ")

	qry += " WHERE " + idField + " = ?"
	values = append(values, id)

	_, err := db.ExecContext(ctx, qry, values...)
	return err
}

type DealsDB struct {
	db *sql.DB
}

func NewDealsDB(db *sql.DB) *DealsDB {
	return &DealsDB{db: db}
}

func (d *DealsDB) Insert(ctx context.Context, deal *types.Deal) error {
	return d.newDealDef(deal).insert(ctx)
}

func (d *DealsDB) Update(ctx context.Context, deal *types.Deal) error {
	return d.newDealDef(deal).update(ctx)
}

func (d *DealsDB) ByID(ctx context.Context, id uuid.UUID) (*types.Deal, error) {
	qry := "SELECT " + dealFieldsStr + " FROM Deals WHERE ID=?"
	row := d.db.QueryRowContext(ctx, qry, id)
	return d.scanRow(row)
}

func (d *DealsDB) ByManifestRoot(ctx context.Context, root cid.Cid) ([]*types.Deal, error) {
	return d.list(ctx, 0, 0, "ManifestRoot=?", root.String())
}

func (d *DealsDB) ByPayer(ctx context.Context, payer address.Address) ([]*types.Deal, error) {
	return d.list(ctx, 0, 0, "Payer=?", payer.String())
}

func (d *DealsDB) ListActive(ctx context.Context) ([]*types.Deal, error) {
	return d.list(ctx, 0, 0, "State = ?", types.DealActive.String())
}

// ActiveAtOrBefore returns active deals whose payment stream has started by
// the given epoch.
func (d *DealsDB) ActiveAtOrBefore(ctx context.Context, epoch int64) ([]*types.Deal, error) {
	return d.list(ctx, 0, 0, "State = ? AND StartEpoch <= ?", types.DealActive.String(), epoch)
}

func (d *DealsDB) List(ctx context.Context, offset int, limit int) ([]*types.Deal, error) {
	return d.list(ctx, offset, limit, "")
}

func (d *DealsDB) Count(ctx context.Context) (int, error) {
	row := d.db.QueryRowContext(ctx, "SELECT count(*) FROM Deals")
	var count int
	err := row.Scan(&count)
	return count, err
}

func (d *DealsDB) list(ctx context.Context, offset int, limit int, whereClause string, whereArgs ...interface{}) ([]*types.Deal, error) {
	args := whereArgs
	qry := "SELECT " + dealFieldsStr + " FROM Deals"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY CreatedAt DESC"
	if limit > 0 {
		qry += " LIMIT ?"
		args = append(args, limit)

		if offset > 0 {
			qry += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, qry, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	deals := make([]*types.Deal, 0, 16)
	for rows.Next() {
		deal, err := d.scanRow(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return deals, nil
}

func (d *DealsDB) scanRow(row Scannable) (*types.Deal, error) {
	var deal types.Deal
	err := d.newDealDef(&deal).scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &deal, nil
}
