// Command seed fills a development database with demo admins and requests.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"giftdesk/internal/config"
	"giftdesk/internal/database"
	"giftdesk/internal/seed"
)

func main() {
	numPending := flag.Int("pending", 8, "Number of pending requests to create")
	numHistory := flag.Int("history", 40, "Number of decided requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = cfg.DevAdminPassword
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Seeding %d pending and %d decided requests (clean=%v)", *numPending, *numHistory, *shouldClean)
	err = seed.NewSeeder(db, *randSeed).Run(context.Background(), seed.Options{
		NumPending:    *numPending,
		NumHistory:    *numHistory,
		ShouldClean:   *shouldClean,
		AdminPassword: password,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Println("Seeding complete")
}
