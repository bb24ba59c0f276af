// Package database builds driver-specific DSNs and opens the short-lived
// connections the executor and schema loader use.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx stdlib
	DriverSQLite   = "sqlite"   // modernc.org/sqlite, Name is the file path
)

const pingTimeout = 5 * time.Second

// Config holds the connection parameters read from DB_* variables.
type Config struct {
	Driver   string
	Name     string
	User     string
	Password string
	Host     string
	Port     string
	SSLMode  string
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres, "":
		return c.keywordDSN(), nil
	case DriverPgx:
		return c.urlDSN(), nil
	case DriverSQLite:
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("sqlite database path is required")
		}
		return c.Name, nil
	default:
		return "", fmt.Errorf("unknown database driver: %q (supported: postgres, pgx, sqlite)", c.Driver)
	}
}

// DriverName returns the database/sql driver name.
func (c Config) DriverName() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

// keywordDSN renders "dbname=... user=..." pairs, skipping empty values.
func (c Config) keywordDSN() string {
	pairs := []struct{ key, value string }{
		{"dbname", c.Name},
		{"user", c.User},
		{"password", c.Password},
		{"host", c.Host},
		{"port", c.Port},
		{"sslmode", c.SSLMode},
	}
	var parts []string
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteValue(p.value))
	}
	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (c Config) urlDSN() string {
	u := url.URL{Scheme: "postgres", Path: "/" + c.Name}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	if c.Port != "" {
		host = net.JoinHostPort(host, c.Port)
	}
	u.Host = host
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Open opens a single-connection handle and pings it. The handle is closed
// again when the ping fails.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Opener returns a function that opens a fresh connection per call.
func Opener(cfg Config) func(ctx context.Context) (*sql.DB, error) {
	return func(ctx context.Context) (*sql.DB, error) {
		return Open(ctx, cfg)
	}
}
