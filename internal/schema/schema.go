// Package schema reads the live table layout of the placement database. The
// snapshot backs the about page, the /schema endpoints and the startup check
// that the STUDENT, COMPANIES and OFFERS tables exist.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/SqlAssist/internal/database"
)

// Expected lists the tables the schema prompt describes.
var Expected = []string{"student", "companies", "offers"}

// Dialect selects the catalog queries.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DialectFor maps a database driver name to its catalog dialect.
func DialectFor(driver string) Dialect {
	if driver == database.DriverSQLite {
		return SQLite
	}
	return Postgres
}

type Snapshot struct {
	Tables   []Table   `json:"tables"`
	LoadedAt time.Time `json:"loaded_at"`
}

type Table struct {
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	RowEstimate int64    `json:"row_estimate,omitempty"`
}

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	// References is "table.column" for foreign keys.
	References string `json:"references,omitempty"`
}

// Table returns the named table, matched case-insensitively.
func (s Snapshot) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// Missing returns the names in expected that the snapshot lacks.
func (s Snapshot) Missing(expected ...string) []string {
	var missing []string
	for _, name := range expected {
		if _, ok := s.Table(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Text renders the snapshot one table per block.
func (s Snapshot) Text() string {
	if len(s.Tables) == 0 {
		return "(no tables found)"
	}
	blocks := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		blocks = append(blocks, t.text())
	}
	return strings.Join(blocks, "\n")
}

func (t Table) text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TABLE: %s", t.Name)
	if t.RowEstimate > 0 {
		fmt.Fprintf(&sb, " (~%d rows)", t.RowEstimate)
	}
	sb.WriteString("\n")

	for _, col := range t.Columns {
		fmt.Fprintf(&sb, "  - %s: %s", col.Name, col.Type)
		var attrs []string
		if col.PrimaryKey {
			attrs = append(attrs, "PK")
		}
		if !col.Nullable {
			attrs = append(attrs, "NOT NULL")
		}
		if len(attrs) > 0 {
			sb.WriteString(", " + strings.Join(attrs, ", "))
		}
		if col.References != "" {
			sb.WriteString(" -> " + col.References)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Opener opens a fresh connection; the cache closes it after loading.
type Opener func(ctx context.Context) (*sql.DB, error)

// Cache keeps the last loaded snapshot.
type Cache struct {
	open    Opener
	dialect Dialect

	mu   sync.RWMutex
	snap Snapshot
	err  error
}

func NewCache(open Opener, dialect Dialect) *Cache {
	return &Cache{open: open, dialect: dialect}
}

// Refresh reloads the snapshot over a new connection. On failure the previous
// snapshot is kept and the error is remembered for Err.
func (c *Cache) Refresh(ctx context.Context) error {
	snap, err := c.load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	if err != nil {
		return err
	}
	c.snap = snap
	return nil
}

func (c *Cache) load(ctx context.Context) (Snapshot, error) {
	if c.open == nil {
		return Snapshot{}, fmt.Errorf("database is not configured")
	}
	db, err := c.open(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer db.Close()
	return Load(ctx, db, c.dialect)
}

// Snapshot returns a copy of the cached snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tables := make([]Table, len(c.snap.Tables))
	copy(tables, c.snap.Tables)
	return Snapshot{Tables: tables, LoadedAt: c.snap.LoadedAt}
}

// Err returns the error of the last refresh, if it failed.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Load reads tables, columns, keys and (on PostgreSQL) row estimates.
func Load(ctx context.Context, db *sql.DB, dialect Dialect) (Snapshot, error) {
	q := queriesFor(dialect)

	tables, err := loadColumns(ctx, db, q.columns)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load columns: %w", err)
	}
	if err := loadForeignKeys(ctx, db, q.foreignKeys, tables); err != nil {
		return Snapshot{}, fmt.Errorf("load foreign keys: %w", err)
	}
	if q.rowEstimates != "" {
		// Estimates are decoration; a failure here leaves them at zero.
		_ = loadRowEstimates(ctx, db, q.rowEstimates, tables)
	}
	return Snapshot{Tables: tables, LoadedAt: time.Now()}, nil
}

type catalogQueries struct {
	columns      string
	foreignKeys  string
	rowEstimates string
}

func queriesFor(dialect Dialect) catalogQueries {
	if dialect == SQLite {
		return sqliteQueries
	}
	return postgresQueries
}

var postgresQueries = catalogQueries{
	columns: `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS nullable,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND kcu.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			) AS primary_key
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
			AND t.table_type = 'BASE TABLE'
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`,
	foreignKeys: `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'`,
	rowEstimates: `
		SELECT relname, reltuples::bigint
		FROM pg_class
		WHERE relnamespace = 'public'::regnamespace
		  AND relkind = 'r'`,
}

var sqliteQueries = catalogQueries{
	columns: `
		SELECT m.name, p.name, p.type, p."notnull" = 0, p.pk > 0
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`,
	foreignKeys: `
		SELECT m.name, f."from", f."table", f."to"
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'`,
}

func loadColumns(ctx context.Context, db *sql.DB, query string) ([]Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, err
		}
		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, Table{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}
	return tables, rows.Err()
}

func loadForeignKeys(ctx context.Context, db *sql.DB, query string, tables []Table) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return err
		}
		if col := findColumn(tables, table, column); col != nil {
			col.References = refTable + "." + refColumn
		}
	}
	return rows.Err()
}

func loadRowEstimates(ctx context.Context, db *sql.DB, query string, tables []Table) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return err
		}
		for i := range tables {
			if tables[i].Name == name && count > 0 {
				tables[i].RowEstimate = count
			}
		}
	}
	return rows.Err()
}

func findColumn(tables []Table, table, column string) *Column {
	for i := range tables {
		if tables[i].Name != table {
			continue
		}
		for j := range tables[i].Columns {
			if tables[i].Columns[j].Name == column {
				return &tables[i].Columns[j]
			}
		}
	}
	return nil
}
