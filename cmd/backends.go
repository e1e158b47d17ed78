package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/database/mariadb"
	"github.com/kozaktomas/checkpoint/internal/database/postgres"
	"github.com/kozaktomas/checkpoint/internal/database/redisstore"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

// backends holds the open storage connections of a command.
type backends struct {
	pool   *postgres.Pool
	enroll *mariadb.Pool
	redis  *redis.Client
	log    *logger.Logger
}

// openBackends connects to PostgreSQL, runs migrations and registers the repositories.
// When ENROLLMENT_DATABASE_URL is set the gallery is read from that MariaDB instead.
func openBackends(cfg *config.Config, log *logger.Logger) (*backends, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log.Info("connecting to PostgreSQL")
	pool, err := postgres.Initialize(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	b := &backends{pool: pool, log: log}

	gallery := postgres.NewGalleryRepository(pool)
	visits := postgres.NewVisitRepository(pool)
	staff := postgres.NewStaffRepository(pool)
	database.RegisterPostgresBackend(
		func() database.GalleryReader { return gallery },
		func() database.VisitWriter { return visits },
		func() database.StaffReader { return staff },
	)

	if cfg.Enrollment.DatabaseURL != "" {
		log.Info("connecting to enrollment database")
		enroll, err := mariadb.NewPool(cfg.Enrollment)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to enrollment database: %w", err)
		}
		b.enroll = enroll
		external := mariadb.NewGalleryRepository(enroll)
		database.RegisterExternalGallery(func() database.GalleryReader { return external })
		log.Info("gallery source: enrollment database (MariaDB)")
	} else {
		log.Info("gallery source: PostgreSQL")
	}
	return b, nil
}

// sessionRepository selects the session store named by SESSION_STORE.
// A nil repository keeps sessions in memory only.
func (b *backends) sessionRepository(ctx context.Context, cfg *config.Config) (middleware.SessionRepository, error) {
	switch cfg.Session.Store {
	case "", "postgres":
		b.log.Info("session persistence: PostgreSQL")
		return postgres.NewSessionRepository(b.pool), nil
	case "redis":
		if cfg.Session.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
		client, err := redisstore.Connect(ctx, cfg.Session.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.redis = client
		b.log.Info("session persistence: Redis")
		return redisstore.NewSessionRepository(client), nil
	case "memory":
		b.log.Warn("sessions are kept in memory and lost on restart")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q: must be postgres, redis or memory", cfg.Session.Store)
	}
}

// Close releases every open connection.
func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			b.log.Warn("closing Redis", "error", err)
		}
	}
	if b.enroll != nil {
		if err := b.enroll.Close(); err != nil {
			b.log.Warn("closing enrollment database", "error", err)
		}
	}
	if b.pool != nil {
		if err := b.pool.Close(); err != nil {
			b.log.Warn("closing PostgreSQL", "error", err)
		}
	}
}
