package main

import (
	"context"
	"database/sql"
	"fmt"
	logg "log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/config"
	"github.com/vncsmyrnk/livepoll/pkg/logger"
	"go.uber.org/zap"
)

// Applies every embedded postgres migration, or only the one named by the first argument
// (e.g. "create_polls.down").
func main() {
	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initialize logger: %s", err)
	}
	defer log.Sync()

	db, err := sql.Open("postgres", cfg.Postgres.ConnString())
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if len(os.Args) < 2 {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("failed to apply migrations", zap.Error(err))
		}
		fmt.Println("All migrations executed successfully.")
		return
	}

	name, content, err := postgres.MigrationContent(os.Args[1])
	if err != nil {
		log.Fatal("failed to find migration", zap.String("migration", os.Args[1]), zap.Error(err))
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		log.Fatal("failed to execute migration", zap.String("migration", name), zap.Error(err))
	}

	fmt.Println("Migration file executed successfully.")
}
