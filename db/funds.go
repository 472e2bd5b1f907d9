package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"

	"github.com/svdb-project/svdb/db/fielddef"
)

// FundsLog is one escrow movement: a lock, a streamed reward, a refund, a
// slash or a bounty payout.
type FundsLog struct {
	DealUUID  uuid.UUID
	CreatedAt time.Time
	Amount    abi.TokenAmount
	Text      string
}

type FundsDB struct {
	db *sql.DB
}

func NewFundsDB(db *sql.DB) *FundsDB {
	return &FundsDB{db: db}
}

func (f *FundsDB) InsertLog(ctx context.Context, logs ...*FundsLog) error {
	now := time.Now()
	for _, l := range logs {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}

		qry := "INSERT INTO FundsLogs (DealUUID, CreatedAt, Amount, LogText) "
		qry += "VALUES (?, ?, ?, ?)"
		values := []interface{}{l.DealUUID.String(), l.CreatedAt, l.Amount.String(), l.Text}
		_, err := f.db.ExecContext(ctx, qry, values...)
		if err != nil {
			return fmt.Errorf("inserting funds log: %w", err)
		}
	}

	return nil
}

func (f *FundsDB) Logs(ctx context.Context) ([]FundsLog, error) {
	return f.scanLogs(ctx, "SELECT DealUUID, CreatedAt, Amount, LogText FROM FundsLogs ORDER BY CreatedAt")
}

func (f *FundsDB) LogsForDeal(ctx context.Context, dealID uuid.UUID) ([]FundsLog, error) {
	qry := "SELECT DealUUID, CreatedAt, Amount, LogText FROM FundsLogs WHERE DealUUID=? ORDER BY CreatedAt"
	return f.scanLogs(ctx, qry, dealID.String())
}

func (f *FundsDB) scanLogs(ctx context.Context, qry string, args ...interface{}) ([]FundsLog, error) {
	rows, err := f.db.QueryContext(ctx, qry, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fundsLogs := make([]FundsLog, 0, 16)
	for rows.Next() {
		var fundsLog FundsLog
		var dealID string
		amt := &fielddef.BigIntFieldDef{F: &fundsLog.Amount}
		err := rows.Scan(
			&dealID,
			&fundsLog.CreatedAt,
			&amt.Marshalled,
			&fundsLog.Text)
		if err != nil {
			return nil, fmt.Errorf("getting fund log: %w", err)
		}

		fundsLog.DealUUID, err = uuid.Parse(dealID)
		if err != nil {
			return nil, fmt.Errorf("parsing fund log deal id: %w", err)
		}
		err = amt.Unmarshall()
		if err != nil {
			return nil, fmt.Errorf("unmarshalling fund log Amount: %w", err)
		}

		fundsLogs = append(fundsLogs, fundsLog)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fundsLogs, nil
}

// CleanupLogs drops funds log entries older than the retention window.
func (f *FundsDB) CleanupLogs(ctx context.Context, daysOld int) error {
	td := time.Now().AddDate(0, 0, -1*daysOld)
	_, err := f.db.ExecContext(ctx, "DELETE FROM FundsLogs WHERE CreatedAt < ?", td)
	return err
}
