package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/repository/firestore"
	"github.com/secmon-lab/moderato/pkg/repository/memory"
	"github.com/secmon-lab/moderato/pkg/repository/postgres"
	"github.com/secmon-lab/moderato/pkg/repository/rediscache"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite/db"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/secmon-lab/moderato/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	projectID        string
	databaseID       string
	collectionPrefix string
	sqlitePath       string
	postgresDSN      string

	redisAddr     string
	redisPassword string
	redisDB       int
	redisTTL      time.Duration
	redisPrefix   string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (memory, firestore, sqlite or postgres)",
			Category:    "Repository",
			Value:       BackendSQLite,
			Sources:     cli.EnvVars("MODERATO_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("MODERATO_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("MODERATO_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of Firestore collection names",
			Category:    "Repository",
			Sources:     cli.EnvVars("MODERATO_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file",
			Category:    "Repository",
			Value:       "./data/moderato.db",
			Sources:     cli.EnvVars("MODERATO_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string (required when using postgres backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("MODERATO_POSTGRES_DSN"),
			Destination: &r.postgresDSN,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for the action record cache. Disabled when empty",
			Category:    "Cache",
			Sources:     cli.EnvVars("MODERATO_REDIS_ADDR"),
			Destination: &r.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Cache",
			Sources:     cli.EnvVars("MODERATO_REDIS_PASSWORD"),
			Destination: &r.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Cache",
			Sources:     cli.EnvVars("MODERATO_REDIS_DB"),
			Destination: &r.redisDB,
		},
		&cli.DurationFlag{
			Name:        "redis-ttl",
			Usage:       "TTL of cached action records",
			Category:    "Cache",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("MODERATO_REDIS_TTL"),
			Destination: &r.redisTTL,
		},
		&cli.StringFlag{
			Name:        "redis-key-prefix",
			Usage:       "Prefix of cache keys",
			Category:    "Cache",
			Value:       "moderato",
			Sources:     cli.EnvVars("MODERATO_REDIS_KEY_PREFIX"),
			Destination: &r.redisPrefix,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.String("sqlite_path", r.sqlitePath),
		slog.Int("postgres_dsn.len", len(r.postgresDSN)),
		slog.String("redis_addr", r.redisAddr),
		slog.Int("redis_password.len", len(r.redisPassword)),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// Configure initializes the backend and wraps it with the redis cache when an
// address is set. The returned func closes everything that was opened.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, func(), error) {
	repo, err := r.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	if r.redisAddr == "" {
		return repo, func() { safe.Close(ctx, repo) }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     r.redisAddr,
		Password: r.redisPassword,
		DB:       r.redisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		safe.Close(ctx, client)
		safe.Close(ctx, repo)
		return nil, nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", r.redisAddr))
	}
	logging.Default().Info("Using redis action record cache", "addr", r.redisAddr, "ttl", r.redisTTL)

	cached := rediscache.New(repo, client, rediscache.WithTTL(r.redisTTL), rediscache.WithKeyPrefix(r.redisPrefix))
	return cached, func() {
		safe.Close(ctx, cached)
		safe.Close(ctx, client)
	}, nil
}

func (r *Repository) open(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrMissingOption, "firestore-project-id is required when using firestore backend",
				goerr.V(OptionKey, "firestore-project-id"))
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case BackendSQLite:
		repo, err := sqlite.New(ctx, db.Config{Path: r.sqlitePath})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite repository")
		}
		logging.Default().Info("Using SQLite repository", "path", r.sqlitePath)
		return repo, nil

	case BackendPostgres:
		repo, err := r.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		logging.Default().Info("Using PostgreSQL repository")
		return repo, nil

	case BackendMemory:
		logging.Default().Warn("Using in-memory repository (development mode). Timed actions are lost on restart")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "unknown repository backend", goerr.V(BackendKey, r.backend))
	}
}

func (r *Repository) openPostgres(ctx context.Context) (*postgres.Postgres, error) {
	if r.postgresDSN == "" {
		return nil, goerr.Wrap(ErrMissingOption, "postgres-dsn is required when using postgres backend",
			goerr.V(OptionKey, "postgres-dsn"))
	}
	repo, err := postgres.New(ctx, r.postgresDSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize postgres repository")
	}
	if err := repo.Migrate(ctx); err != nil {
		safe.Close(ctx, repo)
		return nil, goerr.Wrap(err, "failed to migrate postgres")
	}
	return repo, nil
}

// MigrateSQL applies the schema of the SQL backends. Both of them migrate
// on open, so opening and closing is enough.
func (r *Repository) MigrateSQL(ctx context.Context) error {
	if r.backend != BackendSQLite && r.backend != BackendPostgres {
		return goerr.Wrap(ErrInvalidBackend, "backend has no SQL schema", goerr.V(BackendKey, r.backend))
	}
	repo, err := r.open(ctx)
	if err != nil {
		return err
	}
	safe.Close(ctx, repo)
	return nil
}
