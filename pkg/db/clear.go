package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearServiceConfigs deletes every stored service config and reports how
// many were removed. The schema and migration history are left alone.
func ClearServiceConfigs(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM service_configs`)
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Removed %d service configs", clearLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
