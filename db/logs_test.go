package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogsDB(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	req.NoError(CreateAllTables(ctx, sqldb))

	ldb := NewLogsDB(sqldb)

	deals, err := GenerateDeals()
	req.NoError(err)
	deal := deals[0]

	err = ldb.InsertLog(ctx, &DealLog{DealUUID: deal.ID, LogLevel: "INFO", LogParams: "params", LogMsg: "DealCreated", Subsystem: "ledger"})
	req.NoError(err)

	logs, err := ldb.Logs(ctx, deal.ID)
	req.NoError(err)
	req.Len(logs, 1)
	req.Equal("DealCreated", logs[0].LogMsg)
	req.Equal("ledger", logs[0].Subsystem)

	// other deals have no history
	logs, err = ldb.Logs(ctx, deals[1].ID)
	req.NoError(err)
	req.Empty(logs)
}

func TestLogsDBCleanup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	sqldb := CreateTestTmpDB(t)
	req.NoError(CreateAllTables(ctx, sqldb))

	ldb := NewLogsDB(sqldb)

	deals, err := GenerateDeals()
	req.NoError(err)

	old := time.Now().AddDate(0, 0, -10)
	req.NoError(ldb.InsertLog(ctx, &DealLog{DealUUID: deals[0].ID, CreatedAt: old, LogLevel: "INFO", LogMsg: "DealCreated", Subsystem: "ledger"}))
	req.NoError(ldb.InsertLog(ctx, &DealLog{DealUUID: deals[0].ID, CreatedAt: old.Add(time.Minute), LogLevel: "INFO", LogMsg: "RewardStreamed", Subsystem: "ledger"}))
	req.NoError(ldb.InsertLog(ctx, &DealLog{DealUUID: deals[1].ID, LogLevel: "INFO", LogMsg: "DealCreated", Subsystem: "ledger"}))

	req.NoError(ldb.CleanupLogs(ctx, 7))

	// the whole history of the stale deal goes, the fresh deal stays
	logs, err := ldb.Logs(ctx, deals[0].ID)
	req.NoError(err)
	req.Empty(logs)

	logs, err = ldb.Logs(ctx, deals[1].ID)
	req.NoError(err)
	req.Len(logs, 1)
}
