package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/google/uuid"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

var slaFields []string
var slaFieldsStr = ""

func init() {
	var sla types.SLA
	def := newSlaAccessor(nil, &sla)
	slaFields = make([]string, 0, len(def.def))
	for k := range def.def {
		slaFields = append(slaFields, k)
	}
	slaFieldsStr = strings.Join(slaFields, ", ")
}

type slaAccessor struct {
	db  *sql.DB
	sla *types.SLA
	def map[string]fielddef.FieldDefinition
}

func newSlaAccessor(db *sql.DB, sla *types.SLA) *slaAccessor {
	return &slaAccessor{
		db:  db,
		sla: sla,
		def: map[string]fielddef.FieldDefinition{
			"ID":             &fielddef.FieldDef{F: &sla.ID},
			"Client":         &fielddef.AddrFieldDef{F: &sla.Client},
			"Provider":       &fielddef.AddrFieldDef{F: &sla.Provider},
			"ManifestRoot":   &fielddef.CidFieldDef{F: &sla.ManifestRoot},
			"Tier":           &fielddef.SlaTierFieldDef{F: &sla.Tier},
			"Collateral":     &fielddef.BigIntFieldDef{F: &sla.Collateral},
			"Violations":     &fielddef.FieldDef{F: &sla.Violations},
			"LatencySamples": &fielddef.SamplesFieldDef{F: &sla.LatencySamples},
			"State":          &fielddef.SlaStateFieldDef{F: &sla.State},
			"StartedAt":      &fielddef.FieldDef{F: &sla.StartedAt},
		},
	}
}

type SlasDB struct {
	db *sql.DB
}

func NewSlasDB(db *sql.DB) *SlasDB {
	return &SlasDB{db: db}
}

func (s *SlasDB) Insert(ctx context.Context, sla *types.SLA) error {
	acc := newSlaAccessor(s.db, sla)
	return insert(ctx, "SLAs", slaFields, slaFieldsStr, acc.def, s.db)
}

func (s *SlasDB) Update(ctx context.Context, sla *types.SLA) error {
	acc := newSlaAccessor(s.db, sla)
	return update(ctx, "SLAs", "ID", slaFields, acc.def, s.db, sla.ID)
}

func (s *SlasDB) ByID(ctx context.Context, id uuid.UUID) (*types.SLA, error) {
	qry := "SELECT " + slaFieldsStr + " FROM SLAs WHERE ID=?"
	row := s.db.QueryRowContext(ctx, qry, id)
	return s.scanRow(row)
}

func (s *SlasDB) ByProvider(ctx context.Context, provider address.Address) ([]*types.SLA, error) {
	return s.list(ctx, "Provider = ?", provider.String())
}

func (s *SlasDB) ListActive(ctx context.Context) ([]*types.SLA, error) {
	return s.list(ctx, "State = ?", types.SlaActive.String())
}

func (s *SlasDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.SLA, error) {
	qry := "SELECT " + slaFieldsStr + " FROM SLAs"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY StartedAt DESC"

	rows, err := s.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	slas := make([]*types.SLA, 0, 16)
	for rows.Next() {
		sla, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		slas = append(slas, sla)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slas, nil
}

func (s *SlasDB) scanRow(row Scannable) (*types.SLA, error) {
	var sla types.SLA
	err := scan(slaFields, newSlaAccessor(s.db, &sla).def, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sla, nil
}
