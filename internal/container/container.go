package container

import (
	"context"
	"fmt"

	"dicedecision/internal/config"
	"dicedecision/internal/dice"
	"dicedecision/internal/repository"
	"dicedecision/internal/service"
	"dicedecision/pkg/database"
	"dicedecision/pkg/logger"
	"dicedecision/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	Postgres     *database.PostgresDB
	SQLite       *database.SQLiteDB
	RedisClient  *redis.Client
	Repositories repository.Repositories
	Services     *service.Services
	Idempotency  service.IdempotencyStore
	Events       service.EventBacklog
}

// New opens the configured store, connects Redis when configured and wires
// the decision services
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	// Redis is optional: without it chat events are dropped and rerolls
	// ignore Idempotency-Key
	var (
		notifier service.ChatNotifier = service.NopNotifier{}
		cache    *service.DecisionCache
	)
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without chat notifications")
		} else {
			c.RedisClient = client
			redisNotifier := service.NewRedisNotifier(client, log.Logger, cfg.ChatBacklogSize)
			notifier = redisNotifier
			c.Events = redisNotifier
			c.Idempotency = service.NewRedisIdempotencyStore(client)
			cache = service.NewDecisionCache(client, log.Logger)
			log.WithField("key_prefix", client.KeyBuilder.GetPrefix()).Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without chat notifications")
	}

	decisions := service.NewDecisionService(c.Repositories, dice.NewGenerator(nil), notifier, log.Logger, service.DecisionConfig{
		VoteMaxRetries: cfg.VoteMaxRetries,
		DecisionTTL:    cfg.DecisionTTL,
	})
	if cache != nil {
		decisions.UseCache(cache)
	}
	c.Services = &service.Services{
		Decisions: decisions,
		Sweeper:   service.NewExpirySweeper(decisions, log.Logger, cfg.ExpirySweepInterval),
	}

	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	switch c.Config.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgresDB(ctx, c.Config.DatabaseURL, database.PoolOptions{ApplicationName: "dicedecision"})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.Postgres = db
		c.Repositories = repository.Repositories{
			Decisions:   repository.NewPostgresDecisionRepository(db),
			Memberships: repository.NewPostgresMembershipRepository(db),
		}

	case config.StoreDriverSQLite:
		db, err := database.NewSQLiteDB(ctx, c.Config.SQLitePath)
		if err != nil {
			return err
		}
		if err := repository.ApplySQLiteSchema(ctx, db); err != nil {
			db.Close()
			return err
		}
		c.SQLite = db
		c.Repositories = repository.Repositories{
			Decisions:   repository.NewSQLiteDecisionRepository(db),
			Memberships: repository.NewSQLiteMembershipRepository(db),
		}

	default:
		return fmt.Errorf("unknown store driver %q", c.Config.StoreDriver)
	}

	c.Logger.WithField("driver", c.Config.StoreDriver).Info("Decision store ready")
	return nil
}

// Store returns the health checker of the active database
func (c *Container) Store() interface{ Health(context.Context) error } {
	if c.Postgres != nil {
		return c.Postgres
	}
	return c.SQLite
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Close releases the store and Redis connections
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close completed with %d errors: %v", len(errs), errs)
	}
	return nil
}
