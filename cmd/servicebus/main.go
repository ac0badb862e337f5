// Package main is the entrypoint for the servicebus runtime.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/servicebus/internal/config"
	"github.com/morezero/servicebus/internal/server"
	"github.com/morezero/servicebus/pkg/db"
)

const usage = `Usage: servicebus [command]
       servicebus serve              Start the runtime (HTTP, WebSocket, NATS bridge).
       servicebus migrate up         Run database migrations.
       servicebus migrate down       Roll back the last applied migration using its .down.sql file.
       servicebus migrate status     Show migration status.
       servicebus ensure-db [name]   Create database if missing (default name: servicebus_test). Uses DATABASE_URL host/user.
       servicebus clear              Delete all stored service configs; schema is preserved.
       servicebus configs list [type]     List stored service configs, optionally of one type.
       servicebus configs delete <name>   Delete the stored config of one service (name@id).

Commands:
  serve           (default) Start the runtime.
  migrate up      Run database migrations only.
  migrate down    Roll back the last applied migration.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. servicebus_test) on same host as DATABASE_URL; then run tests with that URL.
  clear           Delete stored service configs; schema preserved.
  configs         Inspect (list) or remove (delete) stored service configs.

Environment: RUNTIME_ID, HTTP_ADDR / HTTP_PORT (default 3001), COMMS_URL, NATS_PEERS,
CONNECT_URLS, DATABASE_URL (migrate, clear, configs, ensure-db), MIGRATION_PATH, REPO_DIR, LAUNCH_FILE, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("servicebus migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("servicebus migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("servicebus migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("servicebus migrate down: %v", err)
			}
		default:
			log.Fatalf("servicebus migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("servicebus clear: %v", err)
		}
		return
	case "configs":
		if len(args) < 2 {
			log.Fatalf("servicebus configs: require subcommand (list, delete)")
		}
		var err error
		switch args[1] {
		case "list":
			typeKey := ""
			if len(args) > 2 {
				typeKey = args[2]
			}
			err = runConfigsList(typeKey)
		case "delete":
			if len(args) < 3 || args[2] == "" {
				log.Fatalf("servicebus configs delete: require a service fullname")
			}
			err = runConfigsDelete(args[2])
		default:
			log.Fatalf("servicebus configs: unknown subcommand %q (use list, delete)", args[1])
		}
		if err != nil {
			log.Fatalf("servicebus configs %s: %v", args[1], err)
		}
		return
	case "ensure-db":
		dbName := "servicebus_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("servicebus ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("servicebus: %v", err)
	}
}

// withPool loads config, requires DATABASE_URL and hands fn a connected pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withMigrations(func(ctx context.Context, pool *pgxpool.Pool, migrations []db.Migration) error {
		return db.RunMigrations(ctx, pool, migrations)
	})
}

func runMigrateStatus() error {
	return withMigrations(func(ctx context.Context, pool *pgxpool.Pool, migrations []db.Migration) error {
		states, err := db.MigrationStatus(ctx, pool, migrations)
		if err != nil {
			return err
		}
		for _, st := range states {
			if st.Applied {
				fmt.Printf("  applied  %s  (%s)\n", st.Version, st.AppliedAt.Format(time.RFC3339))
			} else {
				fmt.Printf("  pending  %s\n", st.Version)
			}
		}
		return nil
	})
}

func runMigrateDown() error {
	return withMigrations(func(ctx context.Context, pool *pgxpool.Pool, migrations []db.Migration) error {
		version, err := db.MigrationDown(ctx, pool, migrations)
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Println("No applied migrations to roll back.")
			return nil
		}
		fmt.Printf("Rolled back %s.\n", version)
		return nil
	})
}

// withMigrations is withPool plus the migrations found at MIGRATION_PATH.
func withMigrations(fn func(ctx context.Context, pool *pgxpool.Pool, migrations []db.Migration) error) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrations, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		return fn(ctx, pool, migrations)
	})
}

func runClear() error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		n, err := db.ClearServiceConfigs(ctx, pool)
		if err != nil {
			return fmt.Errorf("clear service configs: %w", err)
		}
		fmt.Printf("Removed %d stored service configs.\n", n)
		return nil
	})
}

func runConfigsList(typeKey string) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		configs, err := db.NewRepository(pool).ListServiceConfigs(ctx, db.ListServiceConfigsParams{TypeKey: typeKey})
		if err != nil {
			return err
		}
		if len(configs) == 0 {
			fmt.Println("No stored service configs.")
			return nil
		}
		for _, sc := range configs {
			fmt.Println(formatConfigLine(sc))
		}
		return nil
	})
}

func runConfigsDelete(fullname string) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		deleted, err := db.NewRepository(pool).DeleteServiceConfig(ctx, fullname)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("no stored config for %q", fullname)
		}
		fmt.Printf("Deleted stored config of %s.\n", fullname)
		return nil
	})
}

// formatConfigLine renders one stored config for `configs list`.
func formatConfigLine(sc *db.ServiceConfig) string {
	typeKey := sc.TypeKey
	if typeKey == "" {
		typeKey = "-"
	}
	return fmt.Sprintf("%-32s %-16s rev %-4d %s  %s", sc.Fullname, typeKey, sc.Revision, sc.Modified.Format(time.RFC3339), sc.Config)
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := databaseURLFor(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// databaseURLFor replaces the database name of databaseURL, keeping the query (e.g. sslmode).
func databaseURLFor(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
