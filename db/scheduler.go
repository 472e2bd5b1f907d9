package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
)

// SchedulerDB persists the scheduler's progress so a restart resumes from
// the last completed epoch instead of re-running the whole history.
type SchedulerDB struct {
	db *sql.DB
}

func NewSchedulerDB(db *sql.DB) *SchedulerDB {
	return &SchedulerDB{db: db}
}

func (s *SchedulerDB) LastEpoch(ctx context.Context, name string) (abi.ChainEpoch, error) {
	row := s.db.QueryRowContext(ctx, "SELECT Epoch FROM SchedulerState WHERE Name = ?", name)

	var epoch int64
	err := row.Scan(&epoch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("getting scheduler epoch for %s: %w", name, err)
	}
	return abi.ChainEpoch(epoch), nil
}

func (s *SchedulerDB) SetLastEpoch(ctx context.Context, name string, epoch abi.ChainEpoch) error {
	_, err := s.db.ExecContext(ctx, "REPLACE INTO SchedulerState (Name, Epoch) VALUES (?, ?)", name, int64(epoch))
	return err
}
