package node

import (
	"context"

	"github.com/google/uuid"

	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/svdbevents"
)

// persistEvents mirrors deal-scoped bus events into the DealLogs history
// and escrow movements into the FundsLogs table, so the audit trail
// survives restarts.
func persistEvents(bus *svdbevents.Bus, logs *db.LogsDB, funds *db.FundsDB) svdbevents.Unsubscribe {
	return bus.Subscribe(func(evt svdbevents.Event) {
		if evt.DealID == uuid.Nil {
			return
		}
		ctx := context.Background()

		err := logs.InsertLog(ctx, &db.DealLog{
			DealUUID:  evt.DealID,
			CreatedAt: evt.Timestamp,
			LogLevel:  "INFO",
			LogMsg:    evt.Code.String(),
			LogParams: evt.Message,
			Subsystem: "events",
		})
		if err != nil {
			log.Warnw("persisting deal log", "deal", evt.DealID, "err", err)
		}

		if !evt.Amount.Nil() {
			err := funds.InsertLog(ctx, &db.FundsLog{
				DealUUID:  evt.DealID,
				CreatedAt: evt.Timestamp,
				Amount:    evt.Amount,
				Text:      evt.Code.String(),
			})
			if err != nil {
				log.Warnw("persisting funds log", "deal", evt.DealID, "err", err)
			}
		}
	})
}
