package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

type SealsDB struct {
	db *sql.DB
}

func NewSealsDB(db *sql.DB) *SealsDB {
	return &SealsDB{db: db}
}

func (s *SealsDB) Insert(ctx context.Context, seal *types.Seal) error {
	qry := "INSERT INTO Seals (Commitment, ManifestRoot, Provider, Randomness, RegisteredAt, ConsecutiveMisses, State) "
	qry += "VALUES (?, ?, ?, ?, ?, ?, ?)"
	commitment := &fielddef.Hash32FieldDef{F: &seal.Commitment}
	comm, err := commitment.Marshall()
	if err != nil {
		return err
	}
	values := []interface{}{comm, seal.ManifestRoot.String(), seal.Provider.String(), seal.Randomness, seal.RegisteredAt, seal.ConsecutiveMisses, seal.State.String()}
	_, err = s.db.ExecContext(ctx, qry, values...)
	return err
}

func (s *SealsDB) ByCommitment(ctx context.Context, commitment [32]byte) (*types.Seal, error) {
	comm := &fielddef.Hash32FieldDef{F: &commitment}
	key, err := comm.Marshall()
	if err != nil {
		return nil, err
	}
	qry := "SELECT Commitment, ManifestRoot, Provider, Randomness, RegisteredAt, ConsecutiveMisses, State FROM Seals WHERE Commitment = ?"
	row := s.db.QueryRowContext(ctx, qry, key)
	seal, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting seal: %w", err)
	}
	return seal, nil
}

func (s *SealsDB) ByProvider(ctx context.Context, provider address.Address) ([]*types.Seal, error) {
	return s.list(ctx, "Provider = ?", provider.String())
}

func (s *SealsDB) ByManifestRoot(ctx context.Context, root cid.Cid) ([]*types.Seal, error) {
	return s.list(ctx, "ManifestRoot = ?", root.String())
}

func (s *SealsDB) ListActive(ctx context.Context) ([]*types.Seal, error) {
	return s.list(ctx, "State = ?", types.SealActive.String())
}

// SetMisses records the consecutive miss count after a sweep. A terminated
// seal stops being challenged.
func (s *SealsDB) SetMisses(ctx context.Context, commitment [32]byte, misses int, state types.SealState) error {
	comm := &fielddef.Hash32FieldDef{F: &commitment}
	key, err := comm.Marshall()
	if err != nil {
		return err
	}
	qry := "UPDATE Seals SET ConsecutiveMisses = ?, State = ? WHERE Commitment = ?"
	_, err = s.db.ExecContext(ctx, qry, misses, state.String(), key)
	return err
}

func (s *SealsDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.Seal, error) {
	qry := "SELECT Commitment, ManifestRoot, Provider, Randomness, RegisteredAt, ConsecutiveMisses, State FROM Seals"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY RegisteredAt DESC"

	rows, err := s.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seals := make([]*types.Seal, 0, 16)
	for rows.Next() {
		seal, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		seals = append(seals, seal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return seals, nil
}

func (s *SealsDB) scanRow(row Scannable) (*types.Seal, error) {
	var seal types.Seal
	commitment := &fielddef.Hash32FieldDef{F: &seal.Commitment}
	root := &fielddef.CidFieldDef{F: &seal.ManifestRoot}
	provider := &fielddef.AddrFieldDef{F: &seal.Provider}
	state := &fielddef.SealStateFieldDef{F: &seal.State}

	err := row.Scan(
		&commitment.Marshalled,
		root.FieldPtr(),
		&provider.Marshalled,
		&seal.Randomness,
		&seal.RegisteredAt,
		&seal.ConsecutiveMisses,
		&state.Marshalled)
	if err != nil {
		return nil, err
	}

	for _, fd := range []fielddef.FieldDefinition{commitment, root, provider, state} {
		if err := fd.Unmarshall(); err != nil {
			return nil, err
		}
	}

	return &seal, nil
}
