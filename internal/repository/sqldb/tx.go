package sqldb

import (
	"context"
	"database/sql"
)

// withTx runs fn inside a transaction.
//
// It commits when fn returns nil and rolls back when fn returns an error or
// panics (the panic is re-raised after rollback). Either way the connection
// goes back to the pool before withTx returns.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
