package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// Supported CREDITS_DRIVER values.
const (
	driverMemory   = "memory"
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMongo    = "mongo"
)

type config struct {
	Driver        string        `env:"CREDITS_DRIVER" envDefault:"sqlite"`
	DSN           string        `env:"CREDITS_DSN" envDefault:"credits.db"`
	MongoDatabase string        `env:"CREDITS_MONGO_DATABASE" envDefault:"credits"`
	BankAccountID string        `env:"CREDITS_BANK_ACCOUNT_ID"`
	InitialGrant  int64         `env:"CREDITS_INITIAL_GRANT" envDefault:"15"`
	LockTimeout   time.Duration `env:"CREDITS_LOCK_TIMEOUT" envDefault:"5s"`
	LogLevel      string        `env:"CREDITS_LOG_LEVEL" envDefault:"warn"`
	Audit         bool          `env:"CREDITS_AUDIT" envDefault:"false"`
}

// loadConfig reads .env (if present) and then the process environment.
// Variables already set in the environment win over the file.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c *config) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("CREDITS_LOG_LEVEL: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func (c *config) openStore(ctx context.Context) (store.Store, error) {
	switch c.Driver {
	case driverMemory:
		return memory.New(), nil
	case driverSQLite:
		return sqlite.Open(ctx, c.DSN)
	case driverPostgres:
		return postgres.Open(ctx, c.DSN)
	case driverMongo:
		return mongo.Open(ctx, c.DSN, c.MongoDatabase)
	default:
		return nil, fmt.Errorf("CREDITS_DRIVER: unknown driver %q (want %s, %s, %s or %s)",
			c.Driver, driverMemory, driverSQLite, driverPostgres, driverMongo)
	}
}

func (c *config) engineOptions(logger *slog.Logger) ([]credits.Option, error) {
	opts := []credits.Option{
		credits.WithLogger(logger),
		credits.WithInitialGrant(c.InitialGrant),
		credits.WithLockTimeout(c.LockTimeout),
	}
	if c.BankAccountID != "" {
		bankID, err := id.ParseAccountID(c.BankAccountID)
		if err != nil {
			return nil, fmt.Errorf("CREDITS_BANK_ACCOUNT_ID: %w", err)
		}
		opts = append(opts, credits.WithBankAccount(bankID))
	}
	return opts, nil
}
