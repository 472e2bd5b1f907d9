package db

import (
	"database/sql"

	"github.com/pressly/goose/v3"
	"github.com/svdb-project/svdb/db/migrations"
)

func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.EmbedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	beforeVer, err := goose.GetDBVersion(db)
	if err != nil {
		return err
	}

	if err := goose.Up(db, "."); err != nil {
		return err
	}

	afterVer, err := goose.GetDBVersion(db)
	if err != nil {
		return err
	}

	if beforeVer != afterVer {
		log.Warnw("svdb sqlite3 migrated", "previous", beforeVer, "current", afterVer)
	}

	return nil
}
