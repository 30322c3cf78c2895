package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a Postgres connection pool using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Pinger wraps *sql.DB for readiness checks.
type Pinger struct {
	DB *sql.DB
}

// Ping checks connectivity with a SELECT 1 round-trip.
func (p Pinger) Ping(ctx context.Context) error {
	var one int
	return p.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
