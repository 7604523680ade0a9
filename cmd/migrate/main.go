package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"jobtracker/internal/config"
	"jobtracker/internal/database"
	"jobtracker/internal/database/migrations"
	"jobtracker/internal/database/schema"
	"jobtracker/internal/repository/sqlite"
)

func main() {
	down := flag.Int("down", 0, "roll back this many applied ClickHouse migrations instead of applying pending ones")
	flag.Parse()
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if cfg.DataStore == config.StoreSQLite {
		// Opening the store applies its pending migrations.
		store, err := sqlite.Open(cfg.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			logger.Fatal("Failed to migrate SQLite store", zap.String("path", cfg.SQLitePath), zap.Error(err))
		}
		_ = store.Close()
		logger.Info("SQLite store is up to date", zap.String("path", cfg.SQLitePath))
		return
	}

	db, err := database.New(ctx, database.Options{
		DSN:      cfg.ClickHouseDSN,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Database: cfg.ClickHouseDatabase,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to ClickHouse", zap.Error(err))
	}
	defer db.Close()

	migrator := schema.NewMigrator(db.Conn(), logger)

	if *down > 0 {
		n, err := migrator.Down(ctx, migrations.All(), *down)
		if err != nil {
			logger.Fatal("Failed to roll back migrations", zap.Int("rolled_back", n), zap.Error(err))
		}
		logger.Info("Rolled back migrations", zap.Int("count", n))
		return
	}

	n, err := migrator.Up(ctx, migrations.All())
	if err != nil {
		logger.Fatal("Failed to apply migrations", zap.Int("applied", n), zap.Error(err))
	}
	logger.Info("All migrations completed successfully", zap.Int("applied", n))
}
