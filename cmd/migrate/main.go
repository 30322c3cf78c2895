// migrate applies or rolls back the embedded schema, row-level security policies
// included. Usage: migrate [-direction up|down] [-steps n].
package main

import (
	"errors"
	"flag"
	"log"

	"praxis-pilot/backend/internal/config"
	"praxis-pilot/backend/internal/db/migrate"
)

func main() {
	dirFlag := flag.String("direction", string(migrate.Up), "up or down")
	steps := flag.Int("steps", 0, "number of versions to move; 0 applies all")
	flag.Parse()

	dir, err := migrate.ParseDirection(*dirFlag)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := migrate.Run(cfg.DatabaseURL, dir, *steps)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Printf("migrate: no change, schema at version %d", st.Version)
	case err != nil:
		log.Fatalf("migrate %s: %v", dir, err)
	default:
		log.Printf("migrate %s: schema at version %d (dirty=%v)", dir, st.Version, st.Dirty)
	}
}
