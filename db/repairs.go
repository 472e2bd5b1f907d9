package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/svdb-project/svdb/db/fielddef"
	"github.com/svdb-project/svdb/types"
)

const repairFieldsStr = "ID, ManifestRoot, ShardIndex, Bounty, Payer, CreatedAt, Deadline, State, Winner"

type RepairsDB struct {
	db *sql.DB
}

func NewRepairsDB(db *sql.DB) *RepairsDB {
	return &RepairsDB{db: db}
}

func (r *RepairsDB) Insert(ctx context.Context, task *types.RepairTask) error {
	qry := "INSERT INTO RepairTasks (" + repairFieldsStr + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	winner := ""
	if !task.Winner.Empty() {
		winner = task.Winner.String()
	}
	values := []interface{}{
		task.ID,
		task.ManifestRoot.String(),
		task.ShardIndex,
		task.Bounty.String(),
		task.Payer.String(),
		task.CreatedAt,
		task.Deadline,
		task.State.String(),
		winner,
	}
	_, err := r.db.ExecContext(ctx, qry, values...)
	return err
}

func (r *RepairsDB) ByID(ctx context.Context, id uuid.UUID) (*types.RepairTask, error) {
	qry := "SELECT " + repairFieldsStr + " FROM RepairTasks WHERE ID = ?"
	row := r.db.QueryRowContext(ctx, qry, id)
	task, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting repair task: %w", err)
	}
	return task, nil
}

func (r *RepairsDB) ListOpen(ctx context.Context) ([]*types.RepairTask, error) {
	return r.list(ctx, "State = ?", types.RepairOpen.String())
}

func (r *RepairsDB) OpenByManifestAndShard(ctx context.Context, root cid.Cid, shard int) ([]*types.RepairTask, error) {
	return r.list(ctx, "State = ? AND ManifestRoot = ? AND ShardIndex = ?", types.RepairOpen.String(), root.String(), shard)
}

// OpenPastDeadline returns open tasks whose repair window has closed.
func (r *RepairsDB) OpenPastDeadline(ctx context.Context, now time.Time) ([]*types.RepairTask, error) {
	return r.list(ctx, "State = ? AND Deadline < ?", types.RepairOpen.String(), now)
}

// Claim marks the task completed with the given winner. The UPDATE is
// conditional on the task still being open, so concurrent repairers race to
// a single payout.
func (r *RepairsDB) Claim(ctx context.Context, id uuid.UUID, winner string) (bool, error) {
	qry := "UPDATE RepairTasks SET State = ?, Winner = ? WHERE ID = ? AND State = ?"
	res, err := r.db.ExecContext(ctx, qry, types.RepairCompleted.String(), winner, id, types.RepairOpen.String())
	if err != nil {
		return false, fmt.Errorf("claiming repair task %s: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// MarkRefunded moves an expired open task to Refunded.
func (r *RepairsDB) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	qry := "UPDATE RepairTasks SET State = ? WHERE ID = ? AND State = ?"
	res, err := r.db.ExecContext(ctx, qry, types.RepairRefunded.String(), id, types.RepairOpen.String())
	if err != nil {
		return false, fmt.Errorf("refunding repair task %s: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

func (r *RepairsDB) list(ctx context.Context, whereClause string, whereArgs ...interface{}) ([]*types.RepairTask, error) {
	qry := "SELECT " + repairFieldsStr + " FROM RepairTasks"
	if whereClause != "" {
		qry += " WHERE " + whereClause
	}
	qry += " ORDER BY CreatedAt DESC"

	rows, err := r.db.QueryContext(ctx, qry, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]*types.RepairTask, 0, 16)
	for rows.Next() {
		task, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *RepairsDB) scanRow(row Scannable) (*types.RepairTask, error) {
	var task types.RepairTask
	root := &fielddef.CidFieldDef{F: &task.ManifestRoot}
	bounty := &fielddef.BigIntFieldDef{F: &task.Bounty}
	payer := &fielddef.AddrFieldDef{F: &task.Payer}
	state := &fielddef.RepairStateFieldDef{F: &task.State}
	winner := &fielddef.AddrFieldDef{F: &task.Winner}

	err := row.Scan(
		&task.ID,
		root.FieldPtr(),
		&task.ShardIndex,
		&bounty.Marshalled,
		&payer.Marshalled,
		&task.CreatedAt,
		&task.Deadline,
		&state.Marshalled,
		&winner.Marshalled)
	if err != nil {
		return nil, err
	}

	for _, fd := range []fielddef.FieldDefinition{root, bounty, payer, state, winner} {
		if err := fd.Unmarshall(); err != nil {
			return nil, err
		}
	}

	return &task, nil
}
