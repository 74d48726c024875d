//go:build ignore
// +build ignore

// Seeds demo users and pricing views so a local stack has something to
// sweep.
//
// Usage:
//
//	go run scripts/seed_users.go --postgres="postgres://localhost:5432/drip?sslmode=disable" --users=50
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func main() {
	dsn := flag.String("postgres", "", "PostgreSQL DSN")
	n := flag.Int("users", 20, "number of users to create")
	backdate := flag.Duration("backdate", 73*time.Hour, "how long ago the pricing views happened")
	flag.Parse()
	if *dsn == "" {
		log.Fatal("--postgres is required")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	viewedAt := time.Now().UTC().Add(-*backdate)
	plans := []string{"free", "free", "free", "pro"}
	locales := []string{"en", "ru"}

	for i := 0; i < *n; i++ {
		id := uuid.New().String()
		plan := plans[i%len(plans)]
		if _, err := db.ExecContext(ctx, `
			INSERT INTO users (id, email, full_name, subscription_plan, preferred_language)
			VALUES ($1, $2, $3, $4, $5)`,
			id, fmt.Sprintf("demo+%d@example.com", i), fmt.Sprintf("Demo User%d", i), plan, locales[i%len(locales)],
		); err != nil {
			log.Fatalf("insert user: %v", err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO behavior_events (id, user_id, event_type, metadata, occurred_at)
			VALUES ($1, $2, 'pricing_viewed', '{}', $3)`,
			uuid.New().String(), id, viewedAt,
		); err != nil {
			log.Fatalf("insert event: %v", err)
		}
		if plan == "free" {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO pending_drip_checks (id, user_id, due_at, status, created_at)
				VALUES ($1, $2, $3, 'pending', $4)`,
				uuid.New().String(), id, viewedAt.Add(72*time.Hour), viewedAt,
			); err != nil {
				log.Fatalf("insert check: %v", err)
			}
		}
	}
	log.Printf("Seeded %d users (pricing views at %s)", *n, viewedAt.Format(time.RFC3339))
}
