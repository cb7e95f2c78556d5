package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"astroreports/internal/adapter/sqlite"
	"astroreports/internal/db"
	"astroreports/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "migrate").Logger()

	// SQLite applies its schema on open.
	if cfg.UsesSQLite() {
		conn, err := sqlite.Open(cfg.SQLitePath(), nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate: sqlite schema failed")
		}
		_ = conn.Close()
		logger.Info().Str("path", cfg.SQLitePath()).Msg("migrate: sqlite schema applied")
		return
	}

	conn, err := sql.Open("postgres", strings.TrimSpace(cfg.DatabaseURL))
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate: ping database")
	}
	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal().Err(err).Msg("migrate: failed")
	}
	logger.Info().Msg("migrate: schema applied")
}
