package main

import (
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"keyhub/internal/platform/config"
	"keyhub/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.Open(cfg.Storage.SQLite)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.SQLite.Path).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, *direction); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}

	fmt.Println("Migration completed successfully")
}
