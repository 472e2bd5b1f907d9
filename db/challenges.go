package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/google/uuid"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

var challengeFields []string
var challengeFieldsStr = ""

func init() {
	var ch types.Challenge
	def := newChallengeAccessor(nil, &ch)
	challengeFields = make([]string, 0, len(def.def))
	for k := range def.def {
		challengeFields = append(challengeFields, k)
	}
	challengeFieldsStr = strings.Join(challengeFields, ", ")
}

type challengeAccessor struct {
	db *sql.DB
	ch *types.Challenge
	def map[string]fielddef.FieldDefinition
}

func newChallengeAccessor(db *sql.DB, ch *types.Challenge) *challengeAccessor {
	return &challengeAccessor{
		db: db,
		ch: ch,
		def: map[string]fielddef.FieldDefinition{
			"ID":             &fielddef.FieldDef{F: &ch.ID},
			"ChallengeType":  &fielddef.ChallengeTypeFieldDef{F: &ch.Type},
			"DealID":         &fielddef.FieldDef{F: &ch.DealID},
			"ChunkIndex":     &fielddef.FieldDef{F: &ch.ChunkIndex},
			"SealCommitment": &fielddef.Hash32FieldDef{F: &ch.SealCommitment},
			"Provider":       &fielddef.AddrFieldDef{F: &ch.Provider},
			"Epoch":          &fielddef.FieldDef{F: &ch.Epoch},
			"Salt":           &fielddef.FieldDef{F: &ch.Salt},
			"IssuedAt":       &fielddef.FieldDef{F: &ch.IssuedAt},
			"Deadline":       &fielddef.FieldDef{F: &ch.Deadline},
			"State":          &fielddef.ChallengeStateFieldDef{F: &ch.State},
			"AnsweredAt":     &fielddef.FieldDef{F: &ch.AnsweredAt},
		},
	}
}

type ChallengesDB struct {
	db *sql.DB
}

func NewChallengesDB(db *sql.DB) *ChallengesDB {
	return &ChallengesDB{db: db}
}

func (c *ChallengesDB) Insert(ctx context.Context, ch *types.Challenge) error {
	acc := newChallengeAccessor(c.db, ch)
	return insert(ctx, "Challenges", challengeFields, challengeFieldsStr, acc.def, c.db)
}

func (c *ChallengesDB) ByID(ctx context.Context, id uuid.UUID) (*types.Challenge, error) {
	qry := "SELECT " + challengeFieldsStr + " FROM Challenges WHERE ID=?"
	row := c.db.QueryRowContext(ctx, qry, id)
	return c.scanRow(row)
}

func (c *ChallengesDB) ListOpen(ctx context.Context) ([]*types.Challenge, error) {
	return c.list(ctx, "State = ?", types.ChallengeOpen.String())
}

func (c *ChallengesDB) OpenByProvider(ctx context.Context, provider address.Address) ([]*types.Challenge, error) {
	return c.list(ctx, "State = ? AND Provider = ?", types.ChallengeOpen.String(), provider.String())
}

// OpenPastDeadline returns open challenges whose response window has closed.
func (c *ChallengesDB) OpenPastDeadline(ctx context.Context, now time.Time) ([]*types.Challenge, error) {
	return c.list(ctx, "State = ? AND Deadline < ?", types.ChallengeOpen.String(), now)
}

func (c *ChallengesDB) ByDealAndEpoch(ctx context.Context, dealID uuid.UUID, epoch int64) ([]*types.Challenge, error) {
	return c.list(ctx, "DealID = ? AND Epoch = ?", dealID, epoch)
}

// MarkAnswered moves the challenge from Open to Answered. The UPDATE is
// conditional on the current state so that only the first valid answer wins;
// it reports whether this call took the transition.
func (c *ChallengesDB) MarkAnswered(ctx context.Context, id uuid.UUID, answeredAt time.Time) (bool, error) {
	qry := "UPDATE Challenges SET State = ?, AnsweredAt = ? WHERE ID = ? AND State = ?"
	res, err := c.db.ExecContext(ctx, qry, types.ChallengeAnswered.String(), answeredAt, id, types.ChallengeOpen.String())
	if err != nil {
		return false, fmt.Errorf("marking challenge %s answered: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// MarkMissed moves the challenge from Open to Missed, conditionally, so a
// late answer that raced the sweep cannot be overwritten.
func (c *ChallengesDB) MarkMissed(ctx context.Context, id uuid.UUID) (bool, error) {
	qry := "UPDATE Challenges SET State = ? WHERE ID = ? AND State = ?"
	res, err := c.db.ExecContext(ctx, qry, types.ChallengeMissed.String(), id, types.ChallengeOpen.String())
	if err != nil {
		return false, fmt.Errorf("marking challenge %s missed: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

func (c *ChallengesDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.Challenge, error) {
	qry := "SELECT " + challengeFieldsStr + " FROM Challenges"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY IssuedAt DESC"

	rows, err := c.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	chs := make([]*types.Challenge, 0, 16)
	for rows.Next() {
		ch, err := c.scanRow(rows)
		if err != nil {
			return nil, err
		}
		chs = append(chs, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chs, nil
}

func (c *ChallengesDB) scanRow(row Scannable) (*types.Challenge, error) {
	var ch types.Challenge
	err := scan(challengeFields, newChallengeAccessor(c.db, &ch).def, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}
