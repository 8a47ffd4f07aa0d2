package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded schema files in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	return out, nil
}

// Migrate applies every embedded migration, one transaction per file. All
// statements are idempotent, so re-running is safe.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	migrations, err := Migrations()
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		err := withTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, m.SQL)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		logger.Debug("postgres: migration applied", "file", m.Name)
		applied++
	}
	return applied, nil
}

// WarehouseTables lists the tables and views of the warehouse namespaces.
func WarehouseTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT schemaname || '.' || tablename FROM pg_tables
		WHERE schemaname IN ('raw', 'staging', 'marts')
		UNION ALL
		SELECT schemaname || '.' || viewname FROM pg_views
		WHERE schemaname IN ('raw', 'staging', 'marts')
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("list warehouse tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
