// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"praxis-pilot/backend/internal/db"
)

// Direction selects which way migrations run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var (
	// ErrNoDSN is returned when no database URL is configured.
	ErrNoDSN = errors.New("DATABASE_URL is not set")
	// ErrNoChange means the schema was already at the target version.
	ErrNoChange = migrate.ErrNoChange
)

// ParseDirection accepts exactly "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Up, Down:
		return d, nil
	}
	return "", fmt.Errorf("migrate: direction must be up or down, got %q", s)
}

// Status is the schema version after a run. Version 0 means no migration is applied.
type Status struct {
	Version uint
	Dirty   bool
}

// Run migrates the database at dsn. steps > 0 moves that many versions in dir; 0 goes all
// the way. It returns the resulting status, with ErrNoChange when nothing was applied.
func Run(dsn string, dir Direction, steps int) (Status, error) {
	if dsn == "" {
		return Status{}, ErrNoDSN
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return Status{}, err
	}
	if steps < 0 {
		return Status{}, fmt.Errorf("migrate: steps must not be negative, got %d", steps)
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return Status{}, fmt.Errorf("migrate: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return Status{}, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case steps > 0 && dir == Down:
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case dir == Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, err
	}
	st, verr := version(m)
	if verr != nil {
		return st, verr
	}
	return st, err
}

func version(m *migrate.Migrate) (Status, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrate: version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}
