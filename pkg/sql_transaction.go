package pkg

import (
	"context"
	"database/sql"
	"log/slog"
)

// WithTransaction runs fn inside a transaction on conn, committing on success and rolling back on error.
// component is only used to tag log lines.
func WithTransaction(ctx context.Context, conn *sql.DB, component string, fn func(context.Context, *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		slog.ErrorContext(ctx, "["+component+"] WithTransaction", "beginTx", err)
		return err
	}

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.ErrorContext(ctx, "["+component+"] WithTransaction", "rollback", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.ErrorContext(ctx, "["+component+"] WithTransaction", "commit", err)
		return err
	}

	return nil
}
