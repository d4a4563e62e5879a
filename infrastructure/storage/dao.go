package storage

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
)

var (
	xdb *sqlx.DB
)

func InitMysql(dsn string) (err error) {
	xdb, err = sqlx.Open("mysql", dsn)
	return err
}

// SetDb test hook
func SetDb(db *sqlx.DB) {
	xdb = db
}

func db() *sqlx.DB {
	return xdb
}

// Db exposes the handle for non-transactional single statements.
func Db() sqlx.ExtContext {
	return xdb
}

func Close() error {
	return db().Close()
}

// Transaction runs fn in one transaction, rolling back on error.
func Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Transaction begin failed cause=%s", err.Error())
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	return tx.Commit()
}
