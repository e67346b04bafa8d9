package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/railconnect/route-finder/internal/config"
	"github.com/railconnect/route-finder/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	var dbURLFlag, driverFlag string
	flag.StringVar(&dbURLFlag, "database-url", "", "Database connection string (overrides DATABASE_URL)")
	flag.StringVar(&driverFlag, "driver", "", "Database driver: pgx, postgres or sqlite (overrides DATABASE_DRIVER)")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	driver := driverFlag
	if driver == "" {
		driver = os.Getenv("DATABASE_DRIVER")
	}
	if driver == "" {
		driver = "pgx"
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		Driver:             driver,
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}

	logger := logrus.New()
	db, err := database.NewConnection(dbCfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo := database.NewRouteCacheRepository(db.DB)
	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatalf("failed to prepare route cache: %v", err)
	}

	fmt.Println("Connected to database. Clearing route cache...")

	removed, err := repo.Clear(ctx)
	if err != nil {
		log.Fatalf("failed to clear route cache: %v", err)
	}
	fmt.Printf("Removed %d cached station pairs.\n", removed)

	remaining, err := repo.Count(ctx)
	if err != nil {
		log.Fatalf("failed to count route cache: %v", err)
	}
	fmt.Printf("Post-clear row count: route_cache=%d\n", remaining)
}
