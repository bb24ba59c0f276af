package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "lib/pq keyword form",
			cfg:  Config{Driver: DriverPostgres, Name: "placements", User: "app", Password: "s3cret", Host: "db", Port: "5432"},
			want: "dbname=placements user=app password=s3cret host=db port=5432",
		},
		{
			name: "default driver quotes awkward values",
			cfg:  Config{Name: "placements", Password: "it's a pass"},
			want: `dbname=placements password='it\'s a pass'`,
		},
		{
			name: "pgx url form escapes the password",
			cfg:  Config{Driver: DriverPgx, Name: "placements", User: "app", Password: "p@ss", Host: "db", Port: "5433", SSLMode: "disable"},
			want: "postgres://app:p%40ss@db:5433/placements?sslmode=disable",
		},
		{
			name: "pgx defaults host",
			cfg:  Config{Driver: DriverPgx, Name: "placements"},
			want: "postgres://localhost/placements",
		},
		{
			name: "sqlite path",
			cfg:  Config{Driver: DriverSQLite, Name: "placements.db"},
			want: "placements.db",
		},
		{
			name:    "sqlite without path",
			cfg:     Config{Driver: DriverSQLite},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "oracle"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DSN()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDriverNameDefaultsToPostgres(t *testing.T) {
	assert.Equal(t, DriverPostgres, Config{}.DriverName())
	assert.Equal(t, DriverPgx, Config{Driver: DriverPgx}.DriverName())
}

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
}
