// Command migrate_data copies the bot's session state from a sqlite file into
// the database configured by DB_DRIVER/DB_DSN, e.g. when moving to postgres.
package main

import (
	"flag"
	"log"

	"whatsapp-bot/internal/config"
	"whatsapp-bot/internal/database"
)

func main() {
	cfg := config.LoadConfig()

	source := flag.String("from", cfg.DBPath, "sqlite file to copy from")
	flag.Parse()

	if cfg.DBDriver != "postgres" {
		log.Fatalf("DB_DRIVER must be postgres for migration, got %q", cfg.DBDriver)
	}

	// 1. Source
	sqliteDB, err := database.OpenSQLite(*source)
	if err != nil {
		log.Fatalf("Failed to connect to SQLite: %v", err)
	}
	log.Printf("Connected to SQLite at %s", *source)

	// 2. Destination
	pgDB, err := database.InitGorm(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	log.Println("Starting data migration...")
	n, err := database.CopyTables(sqliteDB, pgDB)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration completed, %d rows copied", n)
}
