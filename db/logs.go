package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DealLog is one line of a deal's persisted event history.
type DealLog struct {
	DealUUID  uuid.UUID
	CreatedAt time.Time
	LogLevel  string
	LogMsg    string
	LogParams string
	Subsystem string
}

type LogsDB struct {
	db *sql.DB
}

func NewLogsDB(db *sql.DB) *LogsDB {
	return &LogsDB{db}
}

func (d *LogsDB) InsertLog(ctx context.Context, l *DealLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	qry := "INSERT INTO DealLogs (DealUUID, CreatedAt, LogLevel, LogMsg, LogParams, Subsystem) "
	qry += "VALUES (?, ?, ?, ?, ?, ?)"
	values := []interface{}{l.DealUUID.String(), l.CreatedAt, l.LogLevel, l.LogMsg, l.LogParams, l.Subsystem}
	_, err := d.db.ExecContext(ctx, qry, values...)
	return err
}

func (d *LogsDB) Logs(ctx context.Context, dealID uuid.UUID) ([]DealLog, error) {
	qry := "SELECT DealUUID, CreatedAt, LogLevel, LogMsg, LogParams, Subsystem FROM DealLogs WHERE DealUUID=? ORDER BY CreatedAt"
	rows, err := d.db.QueryContext(ctx, qry, dealID.String())
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	dealLogs := make([]DealLog, 0, 16)
	for rows.Next() {
		var dealLog DealLog
		var id string
		err := rows.Scan(
			&id,
			&dealLog.CreatedAt,
			&dealLog.LogLevel,
			&dealLog.LogMsg,
			&dealLog.LogParams,
			&dealLog.Subsystem)
		if err != nil {
			return nil, err
		}
		dealLog.DealUUID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		dealLogs = append(dealLogs, dealLog)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dealLogs, nil
}

// CleanupLogs drops the whole history of deals whose newest entry is older
// than the retention window.
func (d *LogsDB) CleanupLogs(ctx context.Context, daysOld int) error {
	td := time.Now().AddDate(0, 0, -1*daysOld)

	qry := "DELETE from DealLogs WHERE DealUUID IN (SELECT DISTINCT DealUUID FROM DealLogs WHERE CreatedAt < ?)"

	_, err := d.db.ExecContext(ctx, qry, td)
	return err
}
