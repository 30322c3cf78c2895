// seed inserts the development tenant, its admin user, the global prompts (version 1)
// and the global intervention library from the embedded data.yaml.
// Idempotent: existing rows are left alone, so it is safe to run on every start.
package main

import (
	"context"
	"log"

	"praxis-pilot/backend/internal/config"
	"praxis-pilot/backend/internal/db"
	interventiondomain "praxis-pilot/backend/internal/intervention/domain"
	interventionrepo "praxis-pilot/backend/internal/intervention/repository"
	promptdomain "praxis-pilot/backend/internal/prompt/domain"
	promptrepo "praxis-pilot/backend/internal/prompt/repository"
	"praxis-pilot/backend/internal/tenancy"
	userdomain "praxis-pilot/backend/internal/user/domain"
	userrepo "praxis-pilot/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; set it in .env or the environment")
	}
	data, err := loadSeed(seedYAML)
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository()
	prompts := promptrepo.NewPostgresRepository()
	interventions := interventionrepo.NewPostgresRepository()

	// Every write runs under the seeded tenant so the row-level security policies accept it.
	tc := tenancy.Context{TenantID: data.Tenant.ID, UserID: tenancy.DevUserID, Subject: tenancy.DevSubject}
	var addedPrompts, addedInterventions int
	err = db.NewScope(conn).Run(context.Background(), tc, func(ctx context.Context) error {
		if err := ensureTenant(ctx, data.Tenant.ID, data.Tenant.Name); err != nil {
			return err
		}
		for _, u := range data.Users {
			if err := users.Upsert(ctx, &userdomain.User{
				ID:       u.ID,
				TenantID: data.Tenant.ID,
				Subject:  u.Subject,
				Email:    u.Email,
				Role:     u.Role,
			}); err != nil {
				return err
			}
		}

		active, err := prompts.ActiveVersions(ctx)
		if err != nil {
			return err
		}
		for _, p := range data.Prompts {
			if active[p.Key] > 0 {
				continue
			}
			id, err := prompts.EnsureGlobal(ctx, p.Key, promptdomain.DisplayName(p.Key))
			if err != nil {
				return err
			}
			if _, err := prompts.AddVersion(ctx, id, p.Body); err != nil {
				return err
			}
			addedPrompts++
		}

		for _, in := range data.Interventions {
			entry := &interventiondomain.Intervention{
				Category:    in.Category,
				Title:       in.Title,
				Description: in.Description,
				References:  in.References,
			}
			if in.EvidenceLevel != "" {
				level := in.EvidenceLevel
				entry.EvidenceLevel = &level
			}
			added, err := interventions.EnsureGlobal(ctx, entry)
			if err != nil {
				return err
			}
			if added {
				addedInterventions++
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("Seed completed: tenant %s, %d prompt(s) and %d intervention(s) added.", data.Tenant.ID, addedPrompts, addedInterventions)
}

func ensureTenant(ctx context.Context, id, name string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO tenants (id, name, settings)
		VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (id) DO NOTHING`, id, name)
	return err
}
