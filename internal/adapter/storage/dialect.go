package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case DialectMySQL, DialectPostgres, DialectSQLite:
		return d, nil
	}
	return "", fmt.Errorf("unsupported storage driver %q", s)
}

func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockClause is appended to the SELECT that loads a record for mutation.
// SQLite has no row locks; the version check in the UPDATE covers it.
func (d Dialect) lockClause() string {
	if d == DialectSQLite {
		return ""
	}
	return " FOR UPDATE"
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database for the dialect and verifies the connection.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

var schemas = map[Dialect][]string{
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS associates (
			id BIGINT NOT NULL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			is_manager BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			UNIQUE KEY uq_associates_name (name)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_records (
			record_id BIGINT NOT NULL PRIMARY KEY,
			label_id VARCHAR(100) NOT NULL,
			storage_location VARCHAR(4) NOT NULL DEFAULT 'HOLD',
			quantity_on_pallet INT NOT NULL DEFAULT -100,
			product_description VARCHAR(200) NOT NULL,
			scheduled_for_deletion BIGINT NULL,
			latest_transaction_id BIGINT NOT NULL,
			version INT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			KEY idx_inventory_records_label (label_id)
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_history (
			id BIGINT NOT NULL PRIMARY KEY,
			inventory_record_id BIGINT NOT NULL,
			action VARCHAR(16) NOT NULL,
			occurred_at BIGINT NOT NULL,
			performed_by BIGINT NOT NULL,
			performed_by_name VARCHAR(100) NOT NULL,
			previous_quantity INT NULL,
			new_quantity INT NULL,
			previous_location VARCHAR(4) NULL,
			new_location VARCHAR(4) NULL,
			KEY idx_transaction_history_record (inventory_record_id, occurred_at),
			CONSTRAINT fk_transaction_history_record FOREIGN KEY (inventory_record_id)
				REFERENCES inventory_records (record_id)
		)`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS associates (
			id BIGINT PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(100) NOT NULL,
			is_manager BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_records (
			record_id BIGINT PRIMARY KEY,
			label_id VARCHAR(100) NOT NULL,
			storage_location VARCHAR(4) NOT NULL DEFAULT 'HOLD',
			quantity_on_pallet INTEGER NOT NULL DEFAULT -100,
			product_description VARCHAR(200) NOT NULL,
			scheduled_for_deletion BIGINT NULL,
			latest_transaction_id BIGINT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_records_label ON inventory_records (label_id)`,
		`CREATE TABLE IF NOT EXISTS transaction_history (
			id BIGINT PRIMARY KEY,
			inventory_record_id BIGINT NOT NULL REFERENCES inventory_records (record_id),
			action VARCHAR(16) NOT NULL,
			occurred_at BIGINT NOT NULL,
			performed_by BIGINT NOT NULL,
			performed_by_name VARCHAR(100) NOT NULL,
			previous_quantity INTEGER NULL,
			new_quantity INTEGER NULL,
			previous_location VARCHAR(4) NULL,
			new_location VARCHAR(4) NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_record ON transaction_history (inventory_record_id, occurred_at)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS associates (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_manager INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_records (
			record_id INTEGER PRIMARY KEY,
			label_id TEXT NOT NULL,
			storage_location TEXT NOT NULL DEFAULT 'HOLD',
			quantity_on_pallet INTEGER NOT NULL DEFAULT -100,
			product_description TEXT NOT NULL,
			scheduled_for_deletion INTEGER NULL,
			latest_transaction_id INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_records_label ON inventory_records (label_id)`,
		`CREATE TABLE IF NOT EXISTS transaction_history (
			id INTEGER PRIMARY KEY,
			inventory_record_id INTEGER NOT NULL REFERENCES inventory_records (record_id),
			action TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			performed_by INTEGER NOT NULL,
			performed_by_name TEXT NOT NULL,
			previous_quantity INTEGER NULL,
			new_quantity INTEGER NULL,
			previous_location TEXT NULL,
			new_location TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_record ON transaction_history (inventory_record_id, occurred_at)`,
	},
}
