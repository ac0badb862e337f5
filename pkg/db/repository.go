package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for persisted service configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// SERVICE CONFIG OPERATIONS
// =========================================================================

// SaveServiceConfig inserts or replaces the config of a service. Config must
// be a JSON document.
func (r *Repository) SaveServiceConfig(ctx context.Context, sc *ServiceConfig) error {
	slog.Debug(fmt.Sprintf("%s - SaveServiceConfig fullname=%s", repoLogPrefix, sc.Fullname))

	config := sc.Config
	if len(config) == 0 {
		config = []byte("{}")
	}
	now := time.Now().UTC()

	row := r.pool.QueryRow(ctx,
		`INSERT INTO service_configs (fullname, type_key, config, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (fullname) DO UPDATE SET
		   type_key = EXCLUDED.type_key,
		   config = EXCLUDED.config,
		   revision = service_configs.revision + 1,
		   modified = EXCLUDED.modified
		 RETURNING fullname, type_key, config, revision, created, modified`,
		sc.Fullname, sc.TypeKey, config, now)

	saved, err := scanServiceConfig(row)
	if err != nil {
		return fmt.Errorf("%s - failed to save config for %s: %w", repoLogPrefix, sc.Fullname, err)
	}
	*sc = *saved
	return nil
}

// GetServiceConfig returns the stored config of a service, or nil if none.
func (r *Repository) GetServiceConfig(ctx context.Context, fullname string) (*ServiceConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT fullname, type_key, config, revision, created, modified
		 FROM service_configs
		 WHERE fullname = $1`, fullname)

	sc, err := scanServiceConfig(row)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get config for %s: %w", repoLogPrefix, fullname, err)
	}
	return sc, nil
}

// ListServiceConfigs lists stored configs ordered by fullname.
func (r *Repository) ListServiceConfigs(ctx context.Context, params ListServiceConfigsParams) ([]*ServiceConfig, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.pool.Query(ctx,
		`SELECT fullname, type_key, config, revision, created, modified
		 FROM service_configs
		 WHERE ($1 = '' OR type_key = $1)
		 ORDER BY fullname
		 LIMIT $2`, params.TypeKey, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list configs: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []*ServiceConfig
	for rows.Next() {
		sc := &ServiceConfig{}
		if err := rows.Scan(&sc.Fullname, &sc.TypeKey, &sc.Config, &sc.Revision, &sc.Created, &sc.Modified); err != nil {
			return nil, fmt.Errorf("%s - failed to scan config: %w", repoLogPrefix, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to iterate configs: %w", repoLogPrefix, err)
	}
	return out, nil
}

// DeleteServiceConfig removes the stored config of a service. It reports
// whether a row was deleted.
func (r *Repository) DeleteServiceConfig(ctx context.Context, fullname string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM service_configs WHERE fullname = $1`, fullname)
	if err != nil {
		return false, fmt.Errorf("%s - failed to delete config for %s: %w", repoLogPrefix, fullname, err)
	}
	return tag.RowsAffected() > 0, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func scanServiceConfig(row pgx.Row) (*ServiceConfig, error) {
	sc := &ServiceConfig{}
	err := row.Scan(&sc.Fullname, &sc.TypeKey, &sc.Config, &sc.Revision, &sc.Created, &sc.Modified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}
