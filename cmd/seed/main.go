// Command seed fills a sqlite or postgres store with demo data, either
// generated or loaded from a YAML fixture.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/seed"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	randSeed := flag.Int64("seed", 0, "Random seed; 0 uses the clock")
	fixture := flag.String("fixture", "", "Load this YAML fixture instead of generating data")
	shouldClean := flag.Bool("clean", false, "Drop and recreate all tables before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.SetLogger(observability.NewLogger(cfg.Env, os.Stdout))

	if cfg.StoreDriver == config.StoreMemory {
		log.Fatal("STORE_DRIVER=memory keeps nothing between runs; seed a sqlite or postgres store")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if *shouldClean {
		if err := database.Reset(db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	ctx := context.Background()
	store := repository.NewGormStore(db, nil)

	var sum *seed.Summary
	if *fixture != "" {
		f, err := seed.ReadFixtureFile(*fixture)
		if err != nil {
			log.Fatalf("Failed to read fixture: %v", err)
		}
		sum, err = f.Load(ctx, store, bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Fixture load failed: %v", err)
		}
	} else {
		sum, err = seed.NewSeeder(store, seed.Options{
			Users: *numUsers,
			Posts: *numPosts,
			Seed:  *randSeed,
		}).Run(ctx)
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	log.Printf("Seeded %d users, %d friendships, %d posts, %d comments, %d messages, %d notifications",
		sum.Users, sum.Friendships, sum.Posts, sum.Comments, sum.Messages, sum.Notifications)
	if *fixture == "" {
		log.Printf("All generated users have the password: %s", seed.DefaultPassword)
	}
}
