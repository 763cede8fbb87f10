package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/domain/stream"
	"github.com/agentmarket/backend/internal/infrastructure/config"
	"github.com/agentmarket/backend/internal/infrastructure/logger"
	"github.com/agentmarket/backend/internal/infrastructure/persistence"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	models := []any{
		&catalog.Agent{},
		&catalog.Tier{},
		&access.Entitlement{},
		&access.UsageCounter{},
		&payment.Settlement{},
		&stream.Event{},
	}

	switch command {
	case "up":
		log.Info("Applying schema migrations")
		if err := db.DB.AutoMigrate(models...); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Schema is up to date", zap.Int("models", len(models)))

	case "drop":
		confirm := false
		for _, arg := range args[1:] {
			if arg == "-confirm" || arg == "--confirm" {
				confirm = true
				break
			}
		}
		if !confirm {
			log.Fatal("Drop cancelled. Use 'migrate drop -confirm' to confirm.")
		}
		log.Warn("Dropping all marketplace tables")
		// reverse order so foreign keys drop before their targets
		for i := len(models) - 1; i >= 0; i-- {
			if err := db.DB.Migrator().DropTable(models[i]); err != nil {
				log.Fatal("Drop failed", zap.Error(err))
			}
		}
		log.Info("All tables dropped")

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`AgentMarket Database Migration Tool

Usage:
  migrate [flags] <command>

Commands:
  up              Create or update all marketplace tables
  drop -confirm   Drop all marketplace tables (DANGEROUS)

Flags:
  -log-level string   Log level: debug, info, warn, error (default: info)

Configuration is read from config.toml and AGENTMARKET_* environment
variables, the same way the server reads it.

Examples:
  # Apply the schema
  migrate up

  # Drop everything
  migrate drop -confirm`)
}
