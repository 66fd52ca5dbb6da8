package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/brainyx/internal/config"
	"github.com/illegalcall/brainyx/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Clients holds the connections for the configured store driver. Only one of
// DB and Redis is set.
type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &Clients{DB: db}, nil

	case config.StoreDriverRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return &Clients{Redis: redisClient}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Migrate applies the embedded schema migrations. It is a no-op for Redis.
func (c *Clients) Migrate(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, c.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("✅ Database schema is ready!")
	return nil
}

func (c *Clients) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// Store returns the repository backed by whichever client is connected, with
// every call bounded by timeout.
func (c *Clients) Store(timeout time.Duration) repository.Store {
	var store repository.Store
	if c.DB != nil {
		store = repository.NewPostgresStore(c.DB)
	} else {
		store = repository.NewRedisStore(c.Redis)
	}
	return repository.WithTimeout(store, timeout)
}
