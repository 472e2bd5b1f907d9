package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.Logger("db")

var ErrNotFound = errors.New("not found")

type Scannable interface {
	Scan(dest ...interface{}) error
}

//go:embed create_main_db.sql
var createMainDBSQL string

func SqlDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", "file:"+dbPath)
}

// CreateTmpDB creates an in-memory database with all tables, for tests.
func CreateTmpDB(ctx context.Context) (*sql.DB, error) {
	sqldb, err := SqlDB("test.db?cache=shared&mode=memory")
	if err != nil {
		return nil, err
	}

	return sqldb, CreateAllTables(ctx, sqldb)
}

func CreateAllTables(ctx context.Context, mainDB *sql.DB) error {
	if _, err := mainDB.ExecContext(ctx, createMainDBSQL); err != nil {
		return fmt.Errorf("failed to create tables in main DB: %w", err)
	}
	return nil
}
