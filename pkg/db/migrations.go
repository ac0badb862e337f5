package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

const downSuffix = ".down.sql"

// Migration is one schema version read from NNNN_name.sql, with the optional
// rollback read from NNNN_name.down.sql.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// LoadMigrations reads the migrations in dir ordered by version.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}

		down := strings.HasSuffix(name, downSuffix)
		version := strings.TrimSuffix(name, ".sql")
		if down {
			version = strings.TrimSuffix(name, downSuffix)
		}
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if down {
			m.Down = string(data)
		} else {
			m.Up = string(data)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("%s - %s%s has no matching up migration", migrationsLogPrefix, m.Version, downSuffix)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// pending returns the migrations not yet in applied, in order.
func pending(migrations []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// lastApplied returns the highest applied migration known to this build.
func lastApplied(migrations []Migration, applied map[string]bool) (Migration, bool) {
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Version] {
			return migrations[i], true
		}
	}
	return Migration{}, false
}
