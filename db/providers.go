package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

var providerFields []string
var providerFieldsStr = ""

func init() {
	var prov types.Provider
	def := newProviderAccessor(nil, &prov)
	providerFields = make([]string, 0, len(def.def))
	for k := range def.def {
		providerFields = append(providerFields, k)
	}
	providerFieldsStr = strings.Join(providerFields, ", ")
}

type providerAccessor struct {
	db   *sql.DB
	prov *types.Provider
	def  map[string]fielddef.FieldDefinition
}

func newProviderAccessor(db *sql.DB, prov *types.Provider) *providerAccessor {
	return &providerAccessor{
		db:   db,
		prov: prov,
		def: map[string]fielddef.FieldDefinition{
			"Addr":           &fielddef.AddrFieldDef{F: &prov.Addr},
			"Stake":          &fielddef.BigIntFieldDef{F: &prov.Stake},
			"Region":         &fielddef.FieldDef{F: &prov.Region},
			"GPU":            &fielddef.FieldDef{F: &prov.GPU},
			"Bandwidth":      &fielddef.FieldDef{F: &prov.Bandwidth},
			"Reputation":     &fielddef.FieldDef{F: &prov.Reputation},
			"ProofsAccepted": &fielddef.FieldDef{F: &prov.ProofsAccepted},
			"ProofsMissed":   &fielddef.FieldDef{F: &prov.ProofsMissed},
			"Active":         &fielddef.FieldDef{F: &prov.Active},
			"CreatedAt":      &fielddef.FieldDef{F: &prov.CreatedAt},
		},
	}
}

type ProvidersDB struct {
	db *sql.DB
}

func NewProvidersDB(db *sql.DB) *ProvidersDB {
	return &ProvidersDB{db: db}
}

func (p *ProvidersDB) Insert(ctx context.Context, prov *types.Provider) error {
	acc := newProviderAccessor(p.db, prov)
	return insert(ctx, "Providers", providerFields, providerFieldsStr, acc.def, p.db)
}

func (p *ProvidersDB) Update(ctx context.Context, prov *types.Provider) error {
	acc := newProviderAccessor(p.db, prov)
	return update(ctx, "Providers", "Addr", providerFields, acc.def, p.db, prov.Addr.String())
}

func (p *ProvidersDB) ByAddr(ctx context.Context, addr address.Address) (*types.Provider, error) {
	qry := "SELECT " + providerFieldsStr + " FROM Providers WHERE Addr=?"
	row := p.db.QueryRowContext(ctx, qry, addr.String())
	return p.scanRow(row)
}

func (p *ProvidersDB) ListActive(ctx context.Context) ([]*types.Provider, error) {
	return p.list(ctx, "Active = ?", true)
}

func (p *ProvidersDB) List(ctx context.Context) ([]*types.Provider, error) {
	return p.list(ctx, "")
}

func (p *ProvidersDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.Provider, error) {
	qry := "SELECT " + providerFieldsStr + " FROM Providers"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY CreatedAt DESC"

	rows, err := p.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	provs := make([]*types.Provider, 0, 16)
	for rows.Next() {
		prov, err := p.scanRow(rows)
		if err != nil {
			return nil, err
		}
		provs = append(provs, prov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return provs, nil
}

func (p *ProvidersDB) scanRow(row Scannable) (*types.Provider, error) {
	var prov types.Provider
	err := scan(providerFields, newProviderAccessor(p.db, &prov).def, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &prov, nil
}
