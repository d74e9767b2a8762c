package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/example/tgshopbot/internal/config"
)

// Connect opens the MySQL connection with sensible pooling defaults.
func Connect(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// Migrate runs the bootstrap schema and applies additive column checks for
// columns introduced after the first release.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	for _, col := range additiveColumns {
		if err := ensureColumn(ctx, db, col); err != nil {
			return err
		}
	}
	return nil
}

type columnCheck struct {
	table      string
	column     string
	definition string
}

// Columns added across revisions; older databases get them on startup.
var additiveColumns = []columnCheck{
	{table: "products", column: "category_id", definition: "BIGINT NULL"},
	{table: "products", column: "photo_url", definition: "VARCHAR(512) NOT NULL DEFAULT ''"},
	{table: "purchases", column: "price", definition: "INT NOT NULL DEFAULT 0"},
	{table: "purchases", column: "status", definition: "VARCHAR(16) NOT NULL DEFAULT 'created'"},
}

func ensureColumn(ctx context.Context, db *sql.DB, col columnCheck) error {
	const probe = `
SELECT COUNT(*) FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`
	var count int
	if err := db.QueryRowContext(ctx, probe, col.table, col.column).Scan(&count); err != nil {
		return fmt.Errorf("probe column %s.%s: %w", col.table, col.column, err)
	}
	if count > 0 {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.column, col.definition)
	if _, err := db.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("add column %s.%s: %w", col.table, col.column, err)
	}
	return nil
}
