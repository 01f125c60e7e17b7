package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/runplane/config"
	"github.com/target/runplane/internal/data"
)

const dbPingTimeout = 5 * time.Second

// ConnectDB opens the PostgreSQL pool and verifies connectivity with a
// bounded ping. DATABASE_URL, when set, takes precedence over the
// individual DB_* settings.
func ConnectDB(cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = buildDSN(cfg.Postgres)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(
			fmt.Errorf("ping database: %w", err),
			db.Close(),
		)
	}

	logger.Info("connected to database",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.Name,
	)
	return db, nil
}

func buildDSN(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectRedis opens a Redis client for run event publishing and verifies
// connectivity with a bounded ping.
func ConnectRedis(cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URI,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(
			fmt.Errorf("ping redis: %w", err),
			client.Close(),
		)
	}

	logger.Info("connected to redis", "addr", cfg.URI, "db", cfg.DB)
	return client, nil
}

// RunMigrations applies pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return data.RunMigrations(ctx, db)
}
